package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phoorichet/confluence-sync-sub002/internal/convert"
	"github.com/phoorichet/confluence-sync-sub002/internal/frontmatter"
	"github.com/phoorichet/confluence-sync-sub002/internal/manifest"
)

type fakeVersions struct {
	versions map[string]int
	err      error
	bulkErr  error
}

func (f *fakeVersions) PageVersion(_ context.Context, id string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.versions[id], nil
}

func (f *fakeVersions) PageVersions(_ context.Context, ids []string) (map[string]int, error) {
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		if v, ok := f.versions[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManifest(t *testing.T, dir string) *manifest.Store {
	t.Helper()

	store := manifest.NewStore(filepath.Join(dir, ".confluence-sync.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return store
}

// writeTrackedPage materializes a page on disk exactly as pull would and
// records it in the manifest at the given version.
func writeTrackedPage(t *testing.T, root string, store *manifest.Store, id, rel, body string, version int) {
	t.Helper()

	fm := &frontmatter.Frontmatter{ID: id, Title: "Page " + id, SpaceKey: "DOCS", Version: version}
	doc := frontmatter.BuildContent(fm, body) + "\n"
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(abs, []byte(doc), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	err := store.SetPage(manifest.PageRecord{
		ID:           id,
		SpaceKey:     "DOCS",
		Title:        "Page " + id,
		Version:      version,
		LastModified: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		LocalPath:    rel,
		ContentHash:  convert.HashContent(body),
		Status:       manifest.StatusSynced,
	})
	if err != nil {
		t.Fatalf("set page: %v", err)
	}
}

func editLocalFile(t *testing.T, root, rel, body string) {
	t.Helper()

	abs := filepath.Join(root, filepath.FromSlash(rel))
	raw, err := os.ReadFile(abs)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	fm, _, err := frontmatter.Parse(string(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := os.WriteFile(abs, []byte(frontmatter.BuildContent(fm, body)+"\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		local  bool
		remote bool
		want   ChangeState
	}{
		{"neither", false, false, StateUnchanged},
		{"local only", true, false, StateLocalOnly},
		{"remote only", false, true, StateRemoteOnly},
		{"both", true, true, StateBothChanged},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := Classify(tc.local, tc.remote); got != tc.want {
				t.Fatalf("Classify(%v, %v) = %v, want %v", tc.local, tc.remote, got, tc.want)
			}
		})
	}
}

func TestChangeStateString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state ChangeState
		want  string
	}{
		{StateUnchanged, "unchanged"},
		{StateLocalOnly, "local-only"},
		{StateRemoteOnly, "remote-only"},
		{StateBothChanged, "both-changed"},
	}

	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Fatalf("String() = %q, want %q", got, tc.want)
		}
	}

	data, err := StateBothChanged.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"both-changed"` {
		t.Fatalf("unexpected JSON: %s", data)
	}
}

func TestDetectStates(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := newTestManifest(t, root)
	writeTrackedPage(t, root, store, "1", "001-clean.md", "Clean body.", 2)
	writeTrackedPage(t, root, store, "2", "002-edited.md", "Original body.", 2)
	writeTrackedPage(t, root, store, "3", "003-stale.md", "Stale body.", 2)
	writeTrackedPage(t, root, store, "4", "004-diverged.md", "Diverged body.", 2)

	editLocalFile(t, root, "002-edited.md", "Edited body.")
	editLocalFile(t, root, "004-diverged.md", "Edited body.")

	remote := &fakeVersions{versions: map[string]int{"1": 2, "2": 2, "3": 5, "4": 5}}
	d := NewDetector(root, store, remote, testLogger())

	got := d.DetectBatch(context.Background(), []string{"1", "2", "3", "4"})
	want := []ItemState{
		{ID: "1", State: StateUnchanged},
		{ID: "2", State: StateLocalOnly},
		{ID: "3", State: StateRemoteOnly},
		{ID: "4", State: StateBothChanged},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d states, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("state[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	single, err := d.Detect(context.Background(), "2")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if single != StateLocalOnly {
		t.Fatalf("Detect(2) = %v, want %v", single, StateLocalOnly)
	}
}

func TestDetectUntracked(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := newTestManifest(t, root)
	d := NewDetector(root, store, &fakeVersions{}, testLogger())

	if _, err := d.Detect(context.Background(), "99"); err == nil {
		t.Fatalf("expected error for untracked id")
	}
}

func TestDetectBatchBulkFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := newTestManifest(t, root)
	writeTrackedPage(t, root, store, "1", "001-a.md", "Body A.", 2)
	writeTrackedPage(t, root, store, "2", "002-b.md", "Body B.", 2)
	editLocalFile(t, root, "002-b.md", "Edited.")

	remote := &fakeVersions{bulkErr: errors.New("boom")}
	d := NewDetector(root, store, remote, testLogger())

	got := d.DetectBatch(context.Background(), []string{"1", "2"})
	for i, st := range got {
		if st.State != StateUnchanged {
			t.Fatalf("state[%d] = %v, want unchanged when the bulk lookup fails", i, st.State)
		}
	}
}

func TestDetectBatchUntrackedID(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := newTestManifest(t, root)
	writeTrackedPage(t, root, store, "1", "001-a.md", "Body A.", 2)

	remote := &fakeVersions{versions: map[string]int{"1": 2}}
	d := NewDetector(root, store, remote, testLogger())

	got := d.DetectBatch(context.Background(), []string{"1", "99"})
	if len(got) != 2 {
		t.Fatalf("got %d states, want 2", len(got))
	}
	if got[1].ID != "99" || got[1].State != StateUnchanged {
		t.Fatalf("untracked id = %+v, want unchanged", got[1])
	}
}

func TestDetectMissingFileIsNoLocalChange(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := newTestManifest(t, root)
	writeTrackedPage(t, root, store, "1", "001-a.md", "Body A.", 2)
	if err := os.Remove(filepath.Join(root, "001-a.md")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	remote := &fakeVersions{versions: map[string]int{"1": 2}}
	d := NewDetector(root, store, remote, testLogger())

	got, err := d.Detect(context.Background(), "1")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if got != StateUnchanged {
		t.Fatalf("Detect = %v, want unchanged for a missing file", got)
	}
}

func TestDetectLookupFailureIsNoRemoteChange(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := newTestManifest(t, root)
	writeTrackedPage(t, root, store, "1", "001-a.md", "Body A.", 2)
	editLocalFile(t, root, "001-a.md", "Edited.")

	remote := &fakeVersions{err: errors.New("boom")}
	d := NewDetector(root, store, remote, testLogger())

	got, err := d.Detect(context.Background(), "1")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if got != StateLocalOnly {
		t.Fatalf("Detect = %v, want local-only when the lookup fails", got)
	}
}

func TestLocalBodyHash(t *testing.T) {
	t.Parallel()

	body := "# Title\n\nSome body."
	fm := &frontmatter.Frontmatter{ID: "1", Title: "Title", SpaceKey: "DOCS", Version: 3}

	doc := frontmatter.BuildContent(fm, body) + "\n"
	if got := LocalBodyHash(doc); got != convert.HashContent(body) {
		t.Fatalf("frontmatter should not affect the body hash")
	}

	// Plain markdown hashes its trimmed self.
	if got := LocalBodyHash("\n" + body + "\n\n"); got != convert.HashContent(body) {
		t.Fatalf("surrounding blank lines should not affect the hash")
	}
}
