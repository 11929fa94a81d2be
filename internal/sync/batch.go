package sync

import (
	"context"
	"log/slog"
	stdsync "sync"

	"github.com/google/uuid"

	"github.com/phoorichet/confluence-sync-sub002/internal/apierr"
	"github.com/phoorichet/confluence-sync-sub002/internal/confluence"
	"github.com/phoorichet/confluence-sync-sub002/internal/resilience"
)

// Default worker pool sizes. Reads parallelize harder than writes since
// writes contend on the remote rate budget.
const (
	DefaultReadSlots  = 8
	DefaultWriteSlots = 4
)

// Failure records one item of a bulk operation that could not be
// processed. Index is the item's position in the batch input, or -1 when
// only the id applies. Messages are sanitized before they land here.
type Failure struct {
	Index   int    `json:"index"`
	ID      string `json:"id,omitempty"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
}

// BatchResult aggregates per-item outcomes of a bulk operation. Entries
// follow the input order.
type BatchResult struct {
	RunID     string    `json:"runId"`
	Successes []string  `json:"successes,omitempty"`
	Failures  []Failure `json:"failures,omitempty"`
}

// ItemFunc processes one item of a bulk operation. Keys are manifest ids
// for tracked items and local paths for items with no remote identity yet.
type ItemFunc func(ctx context.Context, key string) error

// FetchFunc fetches one chunk of pages by id. The executor never passes
// more than confluence.MaxResultsPerPage ids per call.
type FetchFunc func(ctx context.Context, ids []string) ([]confluence.Page, error)

// Executor fans bulk operations out over bounded worker pools. One item's
// failure never blocks another's; failures come back as records in the
// result, not as errors.
type Executor struct {
	reads  *resilience.Pool
	writes *resilience.Pool
	logger *slog.Logger
}

// NewExecutor sizes the two pools. Non-positive sizes take the defaults.
func NewExecutor(readSlots, writeSlots int, logger *slog.Logger) *Executor {
	if readSlots < 1 {
		readSlots = DefaultReadSlots
	}
	if writeSlots < 1 {
		writeSlots = DefaultWriteSlots
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		reads:  resilience.NewPool(readSlots),
		writes: resilience.NewPool(writeSlots),
		logger: logger,
	}
}

// Run executes op once per key with bounded concurrency. Each batch run
// carries a uuid so its log lines correlate.
func (e *Executor) Run(ctx context.Context, kind resilience.CallKind, keys []string, op ItemFunc) BatchResult {
	runID := uuid.NewString()
	pool := e.reads
	if kind == resilience.CallWrite {
		pool = e.writes
	}

	errs := make([]error, len(keys))
	var wg stdsync.WaitGroup
	for i, key := range keys {
		i, key := i, key
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = pool.Run(ctx, func(ctx context.Context) error {
				return op(ctx, key)
			})
		}()
	}
	wg.Wait()

	result := BatchResult{RunID: runID}
	for i, err := range errs {
		if err != nil {
			msg := apierr.Sanitize(err.Error())
			result.Failures = append(result.Failures, Failure{Index: i, ID: keys[i], Message: msg})
			e.logger.Warn("batch item failed",
				slog.String("run", runID),
				slog.String("id", keys[i]),
				slog.String("error", msg))
			continue
		}
		result.Successes = append(result.Successes, keys[i])
	}
	return result
}

// FetchPages bulk-fetches pages in chunks with bounded read concurrency.
// A failed chunk contributes nothing while the other chunks proceed, so
// one bad window cannot empty the whole result. Output keeps chunk order.
func (e *Executor) FetchPages(ctx context.Context, ids []string, fetch FetchFunc) []confluence.Page {
	if len(ids) == 0 {
		return nil
	}

	runID := uuid.NewString()
	chunks := chunkKeys(ids, confluence.MaxResultsPerPage)
	results := make([][]confluence.Page, len(chunks))

	var wg stdsync.WaitGroup
	for i, chunk := range chunks {
		i, chunk := i, chunk
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.reads.Run(ctx, func(ctx context.Context) error {
				pages, err := fetch(ctx, chunk)
				if err != nil {
					return err
				}
				results[i] = pages
				return nil
			})
			if err != nil {
				e.logger.Warn("page chunk fetch failed",
					slog.String("run", runID),
					slog.Int("chunk", i),
					slog.Int("items", len(chunk)),
					slog.String("error", apierr.Sanitize(err.Error())))
			}
		}()
	}
	wg.Wait()

	var out []confluence.Page
	for _, pages := range results {
		out = append(out, pages...)
	}
	return out
}

// chunkKeys partitions keys into windows of at most size.
func chunkKeys(keys []string, size int) [][]string {
	var chunks [][]string
	for len(keys) > size {
		chunks = append(chunks, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		chunks = append(chunks, keys)
	}
	return chunks
}
