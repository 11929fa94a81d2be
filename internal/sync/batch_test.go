package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phoorichet/confluence-sync-sub002/internal/confluence"
	"github.com/phoorichet/confluence-sync-sub002/internal/resilience"
)

func TestNewExecutorDefaults(t *testing.T) {
	t.Parallel()

	e := NewExecutor(0, 0, nil)
	if got := e.reads.Size(); got != DefaultReadSlots {
		t.Fatalf("read slots = %d, want %d", got, DefaultReadSlots)
	}
	if got := e.writes.Size(); got != DefaultWriteSlots {
		t.Fatalf("write slots = %d, want %d", got, DefaultWriteSlots)
	}
}

func TestExecutorRunKeepsOrder(t *testing.T) {
	t.Parallel()

	e := NewExecutor(4, 4, testLogger())
	keys := []string{"a", "b", "c", "d", "e"}

	res := e.Run(context.Background(), resilience.CallWrite, keys, func(_ context.Context, key string) error {
		if key == "b" || key == "d" {
			return fmt.Errorf("cannot process %s", key)
		}
		return nil
	})

	if res.RunID == "" {
		t.Fatalf("expected a run id")
	}
	wantOK := []string{"a", "c", "e"}
	if len(res.Successes) != len(wantOK) {
		t.Fatalf("successes = %v, want %v", res.Successes, wantOK)
	}
	for i, id := range wantOK {
		if res.Successes[i] != id {
			t.Fatalf("successes = %v, want %v", res.Successes, wantOK)
		}
	}

	if len(res.Failures) != 2 {
		t.Fatalf("failures = %+v, want 2 entries", res.Failures)
	}
	if res.Failures[0].Index != 1 || res.Failures[0].ID != "b" {
		t.Fatalf("first failure = %+v, want index 1 id b", res.Failures[0])
	}
	if res.Failures[1].Index != 3 || res.Failures[1].ID != "d" {
		t.Fatalf("second failure = %+v, want index 3 id d", res.Failures[1])
	}
}

func TestExecutorRunEmpty(t *testing.T) {
	t.Parallel()

	e := NewExecutor(2, 2, testLogger())
	res := e.Run(context.Background(), resilience.CallRead, nil, func(_ context.Context, _ string) error {
		t.Errorf("op should not run for an empty batch")
		return nil
	})

	if res.RunID == "" {
		t.Fatalf("expected a run id")
	}
	if len(res.Successes) != 0 || len(res.Failures) != 0 {
		t.Fatalf("expected an empty result, got %+v", res)
	}
}

func TestExecutorRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	e := NewExecutor(8, 2, testLogger())
	keys := make([]string, 20)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}

	var inFlight atomic.Int32
	var exceeded atomic.Bool
	res := e.Run(context.Background(), resilience.CallWrite, keys, func(_ context.Context, _ string) error {
		if cur := inFlight.Add(1); cur > 2 {
			exceeded.Store(true)
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	if exceeded.Load() {
		t.Fatalf("write concurrency exceeded the slot count")
	}
	if len(res.Successes) != len(keys) {
		t.Fatalf("successes = %d, want %d", len(res.Successes), len(keys))
	}
}

func TestExecutorRunSanitizesFailures(t *testing.T) {
	t.Parallel()

	e := NewExecutor(2, 2, testLogger())
	res := e.Run(context.Background(), resilience.CallWrite, []string{"1"}, func(_ context.Context, _ string) error {
		return errors.New("401 unauthorized: Bearer supersecret123")
	})

	if len(res.Failures) != 1 {
		t.Fatalf("failures = %+v, want 1 entry", res.Failures)
	}
	msg := res.Failures[0].Message
	if msg == "" {
		t.Fatalf("expected a failure message")
	}
	if strings.Contains(msg, "supersecret123") {
		t.Fatalf("failure message leaked the credential: %q", msg)
	}
}

func TestFetchPagesChunksAndFlattens(t *testing.T) {
	t.Parallel()

	e := NewExecutor(4, 4, testLogger())
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}

	var mu stdsync.Mutex
	var sizes []int
	pages := e.FetchPages(context.Background(), ids, func(_ context.Context, chunk []string) ([]confluence.Page, error) {
		mu.Lock()
		sizes = append(sizes, len(chunk))
		mu.Unlock()

		out := make([]confluence.Page, len(chunk))
		for i, id := range chunk {
			out[i].ID = id
		}
		return out, nil
	})

	if len(sizes) != 3 {
		t.Fatalf("chunks = %v, want 3", sizes)
	}
	total := 0
	for _, n := range sizes {
		if n > confluence.MaxResultsPerPage {
			t.Fatalf("chunk size %d exceeds the API page limit", n)
		}
		total += n
	}
	if total != len(ids) {
		t.Fatalf("chunks cover %d ids, want %d", total, len(ids))
	}

	if len(pages) != len(ids) {
		t.Fatalf("pages = %d, want %d", len(pages), len(ids))
	}
	for i := range ids {
		if pages[i].ID != ids[i] {
			t.Fatalf("pages[%d].ID = %s, want %s", i, pages[i].ID, ids[i])
		}
	}
}

func TestFetchPagesSkipsFailedChunk(t *testing.T) {
	t.Parallel()

	e := NewExecutor(4, 4, testLogger())
	ids := make([]string, 150)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}

	pages := e.FetchPages(context.Background(), ids, func(_ context.Context, chunk []string) ([]confluence.Page, error) {
		if chunk[0] == "0" {
			return nil, errors.New("boom")
		}
		out := make([]confluence.Page, len(chunk))
		for i, id := range chunk {
			out[i].ID = id
		}
		return out, nil
	})

	if len(pages) != 50 {
		t.Fatalf("pages = %d, want the surviving chunk only", len(pages))
	}
	if pages[0].ID != "100" {
		t.Fatalf("pages[0].ID = %s, want 100", pages[0].ID)
	}
}

func TestChunkKeys(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		n    int
		size int
		want []int
	}{
		{"empty", 0, 3, nil},
		{"exact", 6, 3, []int{3, 3}},
		{"remainder", 7, 3, []int{3, 3, 1}},
		{"single", 2, 3, []int{2}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			keys := make([]string, tc.n)
			for i := range keys {
				keys[i] = strconv.Itoa(i)
			}

			chunks := chunkKeys(keys, tc.size)
			if len(chunks) != len(tc.want) {
				t.Fatalf("chunks = %d, want %d", len(chunks), len(tc.want))
			}
			for i, want := range tc.want {
				if len(chunks[i]) != want {
					t.Fatalf("chunk[%d] = %d keys, want %d", i, len(chunks[i]), want)
				}
			}
		})
	}
}
