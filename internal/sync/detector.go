package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/phoorichet/confluence-sync-sub002/internal/apierr"
	"github.com/phoorichet/confluence-sync-sub002/internal/convert"
	"github.com/phoorichet/confluence-sync-sub002/internal/frontmatter"
	"github.com/phoorichet/confluence-sync-sub002/internal/manifest"
)

// ChangeState classifies one tracked item against its last confirmed sync
// point.
type ChangeState int

const (
	// StateUnchanged means neither side moved since the last sync.
	StateUnchanged ChangeState = iota
	// StateLocalOnly means the local file changed and the remote did not.
	StateLocalOnly
	// StateRemoteOnly means the remote version advanced while the local
	// file stayed put.
	StateRemoteOnly
	// StateBothChanged means both sides moved. The engine reports these and
	// touches neither side.
	StateBothChanged
)

func (s ChangeState) String() string {
	switch s {
	case StateLocalOnly:
		return "local-only"
	case StateRemoteOnly:
		return "remote-only"
	case StateBothChanged:
		return "both-changed"
	default:
		return "unchanged"
	}
}

// MarshalJSON emits the string form so reports stay readable.
func (s ChangeState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Classify folds the two change bits into a terminal state.
func Classify(localChanged, remoteChanged bool) ChangeState {
	switch {
	case localChanged && remoteChanged:
		return StateBothChanged
	case localChanged:
		return StateLocalOnly
	case remoteChanged:
		return StateRemoteOnly
	default:
		return StateUnchanged
	}
}

// ItemState pairs a tracked id with its detected state.
type ItemState struct {
	ID    string      `json:"id"`
	State ChangeState `json:"state"`
}

// VersionSource yields live remote version numbers for tracked pages.
type VersionSource interface {
	PageVersion(ctx context.Context, id string) (int, error)
	PageVersions(ctx context.Context, ids []string) (map[string]int, error)
}

// Detector classifies tracked items. Every call computes fresh from the
// file system, the manifest, and the live remote; nothing is cached
// between calls.
type Detector struct {
	root   string
	store  *manifest.Store
	remote VersionSource
	logger *slog.Logger
}

func NewDetector(root string, store *manifest.Store, remote VersionSource, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{root: root, store: store, remote: remote, logger: logger}
}

// Detect classifies a single tracked page. A failed remote lookup counts
// as no remote change and is logged rather than raised, so one broken id
// cannot abort a larger operation.
func (d *Detector) Detect(ctx context.Context, id string) (ChangeState, error) {
	rec, ok := d.store.Page(id)
	if !ok {
		return StateUnchanged, fmt.Errorf("sync: page %s is not tracked", id)
	}

	remoteChanged := false
	version, err := d.remote.PageVersion(ctx, id)
	switch {
	case err != nil:
		d.logger.Warn("remote version lookup failed",
			slog.String("id", id),
			slog.String("error", apierr.Sanitize(err.Error())))
	case version > rec.Version:
		remoteChanged = true
	}

	return Classify(d.localChanged(rec), remoteChanged), nil
}

// DetectBatch classifies every id in one pass, resolving remote versions
// through a single bulk lookup. A failed bulk lookup reports every item
// unchanged so the report stays usable, with the failure logged.
func (d *Detector) DetectBatch(ctx context.Context, ids []string) []ItemState {
	out := make([]ItemState, 0, len(ids))

	versions, err := d.remote.PageVersions(ctx, ids)
	if err != nil {
		d.logger.Warn("bulk version lookup failed",
			slog.Int("items", len(ids)),
			slog.String("error", apierr.Sanitize(err.Error())))
		for _, id := range ids {
			out = append(out, ItemState{ID: id, State: StateUnchanged})
		}
		return out
	}

	for _, id := range ids {
		rec, ok := d.store.Page(id)
		if !ok {
			d.logger.Warn("skipping untracked id", slog.String("id", id))
			out = append(out, ItemState{ID: id, State: StateUnchanged})
			continue
		}

		remoteChanged := false
		if v, found := versions[id]; found && v > rec.Version {
			remoteChanged = true
		}
		out = append(out, ItemState{ID: id, State: Classify(d.localChanged(rec), remoteChanged)})
	}
	return out
}

// localChanged reports whether the tracked file's body hash differs from
// the manifest hash. A missing file is no local change; deletion is an
// explicit operation, never an inferred one.
func (d *Detector) localChanged(rec manifest.PageRecord) bool {
	if rec.LocalPath == "" {
		return false
	}

	raw, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(rec.LocalPath)))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			d.logger.Warn("reading tracked file failed",
				slog.String("path", rec.LocalPath),
				slog.String("error", err.Error()))
		}
		return false
	}

	return LocalBodyHash(string(raw)) != rec.ContentHash
}

// LocalBodyHash hashes a local document's body. Frontmatter is stripped
// and surrounding blank lines ignored, so an editor appending a final
// newline does not flag the file as changed. A file whose frontmatter no
// longer parses hashes whole, which correctly flags it as modified.
func LocalBodyHash(content string) string {
	_, body, _ := frontmatter.Parse(content)
	return convert.HashContent(strings.TrimSpace(body))
}
