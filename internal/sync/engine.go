// Package sync drives pull and push runs between a Confluence space and a
// local directory tree. The engine walks one side, classifies every item
// against the manifest, and applies the winning side's changes through
// rate-limited, breaker-guarded calls. Items that diverged on both sides
// are reported and left untouched.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phoorichet/confluence-sync-sub002/internal/apierr"
	"github.com/phoorichet/confluence-sync-sub002/internal/confluence"
	"github.com/phoorichet/confluence-sync-sub002/internal/convert"
	"github.com/phoorichet/confluence-sync-sub002/internal/frontmatter"
	"github.com/phoorichet/confluence-sync-sub002/internal/hierarchy"
	"github.com/phoorichet/confluence-sync-sub002/internal/manifest"
	"github.com/phoorichet/confluence-sync-sub002/internal/resilience"
)

// Config carries the engine's collaborators. A struct keeps construction
// readable; everything except Executor, Converter, and Logger is required.
// The manifest store arrives already loaded.
type Config struct {
	Root      string
	SpaceKey  string
	Client    *confluence.Client
	Store     *manifest.Store
	Protector *resilience.Protector
	Executor  *Executor
	Converter *convert.Converter
	Logger    *slog.Logger
}

// Options are per-run switches.
type Options struct {
	DryRun bool
}

// Report summarizes one engine run. Written counts local files created,
// rewritten, or moved by pull; Skipped counts items where the other side
// holds newer work. Failure messages arrive sanitized.
type Report struct {
	RunID     string        `json:"runId"`
	SpaceKey  string        `json:"spaceKey"`
	DryRun    bool          `json:"dryRun,omitempty"`
	Duration  time.Duration `json:"duration"`
	Written   int           `json:"written"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Deleted   int           `json:"deleted"`
	Unchanged int           `json:"unchanged"`
	Skipped   int           `json:"skipped"`
	Conflicts []string      `json:"conflicts,omitempty"`
	Failures  []Failure     `json:"failures,omitempty"`
}

// Engine orchestrates pull and push runs. Per-item problems become report
// entries; only setup failures abort a run.
type Engine struct {
	root      string
	spaceKey  string
	client    *confluence.Client
	store     *manifest.Store
	protector *resilience.Protector
	executor  *Executor
	converter *convert.Converter
	detector  *Detector
	logger    *slog.Logger
}

// New validates cfg and builds an Engine. Absent optional collaborators
// take defaults.
func New(cfg Config) (*Engine, error) {
	if cfg.Root == "" {
		return nil, errors.New("sync: root directory required")
	}
	if cfg.SpaceKey == "" {
		return nil, errors.New("sync: space key required")
	}
	if cfg.Client == nil {
		return nil, errors.New("sync: confluence client required")
	}
	if cfg.Store == nil {
		return nil, errors.New("sync: manifest store required")
	}
	if cfg.Protector == nil {
		return nil, errors.New("sync: protector required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Executor == nil {
		cfg.Executor = NewExecutor(0, 0, cfg.Logger)
	}
	if cfg.Converter == nil {
		cfg.Converter = convert.New()
	}

	e := &Engine{
		root:      cfg.Root,
		spaceKey:  cfg.SpaceKey,
		client:    cfg.Client,
		store:     cfg.Store,
		protector: cfg.Protector,
		executor:  cfg.Executor,
		converter: cfg.Converter,
		logger:    cfg.Logger,
	}
	e.detector = NewDetector(cfg.Root, cfg.Store, e, cfg.Logger)
	return e, nil
}

// Detector exposes the change detector for callers that classify without
// running a full sync.
func (e *Engine) Detector() *Detector {
	return e.detector
}

// Summary reports the manifest bookkeeping counts.
func (e *Engine) Summary() manifest.Summary {
	return e.store.Summarize()
}

// SpaceKey reports the space this engine is bound to.
func (e *Engine) SpaceKey() string {
	return e.spaceKey
}

// Tracked looks up a page's manifest record.
func (e *Engine) Tracked(id string) (manifest.PageRecord, bool) {
	return e.store.Page(id)
}

// DetectAll classifies every tracked page in one bulk pass.
func (e *Engine) DetectAll(ctx context.Context) []ItemState {
	pages := e.store.Pages()
	ids := make([]string, 0, len(pages))
	for _, rec := range pages {
		ids = append(ids, rec.ID)
	}
	return e.detector.DetectBatch(ctx, ids)
}

// ResolvePath reports the local path the manifest snapshot implies for a
// tracked item.
func (e *Engine) ResolvePath(id string) (string, error) {
	var homeID string
	if sp, ok := e.store.Space(e.spaceKey); ok {
		homeID = sp.HomepageID
	}
	r := hierarchy.FromRecords(e.store.Pages(), e.store.Folders(), homeID)
	return r.Resolve(id)
}

// PageVersion implements VersionSource through the protected read path.
func (e *Engine) PageVersion(ctx context.Context, id string) (int, error) {
	var page *confluence.Page
	err := e.protector.Do(ctx, resilience.CallRead, func(ctx context.Context) error {
		p, err := e.client.GetPage(ctx, id)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return 0, err
	}
	return page.Version.Number, nil
}

// PageVersions implements VersionSource with a single protected bulk
// lookup. Ids missing from the response are simply absent from the map.
func (e *Engine) PageVersions(ctx context.Context, ids []string) (map[string]int, error) {
	var pages []confluence.Page
	err := e.protector.Do(ctx, resilience.CallRead, func(ctx context.Context) error {
		ps, err := e.client.GetPagesByIDs(ctx, ids)
		if err != nil {
			return err
		}
		pages = ps
		return nil
	})
	if err != nil {
		return nil, err
	}

	versions := make(map[string]int, len(pages))
	for _, p := range pages {
		versions[p.ID] = p.Version.Number
	}
	return versions, nil
}

// Pull downloads the space tree and writes changed pages under root,
// parents before children. Conflicted and locally modified pages are
// never overwritten. Only space resolution aborts; anything per-item
// lands in the report.
func (e *Engine) Pull(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), SpaceKey: e.spaceKey, DryRun: opts.DryRun}

	e.logger.Info("pull starting",
		slog.String("run", report.RunID),
		slog.String("space", e.spaceKey),
		slog.Bool("dry_run", opts.DryRun))

	space, err := e.getSpace(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: resolving space %s: %w", e.spaceKey, err)
	}
	if space.Homepage.ID == "" {
		return nil, fmt.Errorf("sync: space %s has no home page", e.spaceKey)
	}
	homeID := space.Homepage.ID

	ids := e.listTree(ctx, homeID, report)
	pages := e.executor.FetchPages(ctx, ids, e.fetchChunk)

	missing := make(map[string]bool, len(ids))
	for _, id := range ids {
		missing[id] = true
	}
	for _, p := range pages {
		delete(missing, p.ID)
	}
	if len(missing) > 0 {
		report.Failures = append(report.Failures, Failure{
			Index:   -1,
			Op:      "fetch",
			Message: fmt.Sprintf("%d of %d pages not fetched", len(missing), len(ids)),
		})
	}

	items := make([]hierarchy.Item, 0, len(pages))
	for _, p := range pages {
		items = append(items, hierarchy.Item{
			ID:       p.ID,
			Title:    p.Title,
			ParentID: parentOf(p),
			Position: positionOf(p),
			Home:     p.ID == homeID,
		})
	}
	resolver := hierarchy.NewResolver(items)

	paths := make(map[string]string, len(pages))
	for _, p := range pages {
		localPath, err := resolver.Resolve(p.ID)
		if err != nil {
			continue
		}
		paths[p.ID] = localPath
	}

	// Parents before children: an index page keys as its own directory,
	// which prefixes every descendant's key.
	sort.Slice(pages, func(i, j int) bool {
		return sortKey(paths[pages[i].ID]) < sortKey(paths[pages[j].ID])
	})

	for _, p := range pages {
		if descendsFromMissing(p, missing) {
			report.Skipped++
			e.logger.Debug("skipping page below unfetched ancestor", slog.String("id", p.ID))
			continue
		}
		e.pullOne(p, paths[p.ID], report, opts)
	}

	if !opts.DryRun {
		e.store.SetConfluenceURL(e.client.BaseURL())
		if err := e.store.SetSpace(manifest.SpaceRecord{
			ID:         space.ID,
			Key:        space.Key,
			Name:       space.Name,
			HomepageID: homeID,
		}); err != nil {
			return report, err
		}
		e.ensureFolderDirs(homeID)
		e.store.MarkSynced(time.Now())
		if err := e.store.Save(); err != nil {
			return report, fmt.Errorf("sync: saving manifest: %w", err)
		}
	}

	report.Duration = time.Since(start)
	e.logger.Info("pull complete",
		slog.String("run", report.RunID),
		slog.Int("written", report.Written),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("skipped", report.Skipped),
		slog.Int("conflicts", len(report.Conflicts)),
		slog.Int("failures", len(report.Failures)),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// Prune walks the live remote tree and drops manifest records for items
// that no longer exist there, returning the dropped ids sorted. Local
// files stay on disk. An incomplete walk never drives removals.
func (e *Engine) Prune(ctx context.Context, opts Options) ([]string, error) {
	space, err := e.getSpace(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: resolving space %s: %w", e.spaceKey, err)
	}
	if space.Homepage.ID == "" {
		return nil, fmt.Errorf("sync: space %s has no home page", e.spaceKey)
	}

	report := &Report{RunID: uuid.NewString(), SpaceKey: e.spaceKey}
	ids := e.listTree(ctx, space.Homepage.ID, report)
	if len(report.Failures) > 0 {
		return nil, fmt.Errorf("sync: tree walk incomplete, not pruning: %s", report.Failures[0].Message)
	}

	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	for _, f := range e.store.Folders() {
		err := e.protector.Do(ctx, resilience.CallRead, func(ctx context.Context) error {
			_, err := e.client.GetFolder(ctx, f.ID)
			return err
		})
		switch {
		case err == nil:
			keep[f.ID] = true
		case apierr.KindOf(err) == apierr.KindNotFound:
		default:
			keep[f.ID] = true
			e.logger.Warn("folder check failed, keeping record",
				slog.String("id", f.ID),
				slog.String("error", apierr.Sanitize(err.Error())))
		}
	}

	if opts.DryRun {
		var removed []string
		for _, rec := range e.store.Pages() {
			if !keep[rec.ID] {
				removed = append(removed, rec.ID)
			}
		}
		for _, f := range e.store.Folders() {
			if !keep[f.ID] {
				removed = append(removed, f.ID)
			}
		}
		sort.Strings(removed)
		return removed, nil
	}

	removed := e.store.Prune(keep)
	if len(removed) > 0 {
		if err := e.store.Save(); err != nil {
			return removed, fmt.Errorf("sync: saving manifest: %w", err)
		}
	}
	e.logger.Info("pruned stale records", slog.Int("count", len(removed)))
	return removed, nil
}

// listTree walks the page tree breadth-first from the home page and
// returns every reachable id, parents first. A failed child listing drops
// that subtree for this run and lands in the report.
func (e *Engine) listTree(ctx context.Context, homeID string, report *Report) []string {
	ids := []string{homeID}
	queue := []string{homeID}
	seen := map[string]bool{homeID: true}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		var children []confluence.Page
		err := e.protector.Do(ctx, resilience.CallRead, func(ctx context.Context) error {
			cs, err := e.client.GetChildren(ctx, id)
			if err != nil {
				return err
			}
			children = cs
			return nil
		})
		if err != nil {
			msg := apierr.Sanitize(err.Error())
			report.Failures = append(report.Failures, Failure{Index: -1, ID: id, Op: "list", Message: msg})
			e.logger.Warn("listing children failed",
				slog.String("id", id),
				slog.String("error", msg))
			continue
		}

		for _, child := range children {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			ids = append(ids, child.ID)
			queue = append(queue, child.ID)
		}
	}
	return ids
}

// fetchChunk retrieves one id window through the protected read path.
func (e *Engine) fetchChunk(ctx context.Context, ids []string) ([]confluence.Page, error) {
	var out []confluence.Page
	err := e.protector.Do(ctx, resilience.CallRead, func(ctx context.Context) error {
		pages, err := e.client.GetPagesByIDs(ctx, ids)
		if err != nil {
			return err
		}
		out = pages
		return nil
	})
	return out, err
}

// pullOne classifies one remote page against the manifest and writes it
// locally when the remote side won. The manifest record changes only
// after the file write succeeded.
func (e *Engine) pullOne(p confluence.Page, localPath string, report *Report, opts Options) {
	if localPath == "" {
		report.Failures = append(report.Failures, Failure{Index: -1, ID: p.ID, Op: "resolve", Message: "no local path"})
		return
	}

	rec, tracked := e.store.Page(p.ID)
	if tracked {
		switch Classify(e.detector.localChanged(rec), p.Version.Number > rec.Version) {
		case StateUnchanged:
			abs := filepath.Join(e.root, filepath.FromSlash(rec.LocalPath))
			if _, err := os.Stat(abs); err == nil {
				if localPath == rec.LocalPath {
					report.Unchanged++
					return
				}
				if opts.DryRun {
					report.Written++
					return
				}
				if err := e.relocate(rec, localPath); err != nil {
					msg := apierr.Sanitize(err.Error())
					report.Failures = append(report.Failures, Failure{Index: -1, ID: p.ID, Op: "move", Message: msg})
					return
				}
				report.Written++
				return
			}
			// Clean in the manifest but gone locally: restore below.
		case StateLocalOnly:
			report.Skipped++
			if !opts.DryRun {
				e.setStatus(p.ID, manifest.StatusModified)
			}
			return
		case StateBothChanged:
			report.Conflicts = append(report.Conflicts, p.ID)
			if !opts.DryRun {
				e.setStatus(p.ID, manifest.StatusConflict)
			}
			e.logger.Warn("conflict: both sides changed",
				slog.String("id", p.ID),
				slog.String("path", rec.LocalPath))
			return
		case StateRemoteOnly:
			// Remote wins; rewrite below.
		}
	}

	if opts.DryRun {
		report.Written++
		return
	}

	if err := e.writePage(p, localPath); err != nil {
		msg := apierr.Sanitize(err.Error())
		report.Failures = append(report.Failures, Failure{Index: -1, ID: p.ID, Op: "write", Message: msg})
		e.logger.Warn("writing page failed",
			slog.String("id", p.ID),
			slog.String("error", msg))
		return
	}
	if tracked && rec.LocalPath != "" && rec.LocalPath != localPath {
		_ = os.Remove(filepath.Join(e.root, filepath.FromSlash(rec.LocalPath)))
	}
	report.Written++
}

// writePage normalizes the storage body, writes frontmatter plus markdown,
// and replaces the manifest record. Directories appear as needed.
func (e *Engine) writePage(p confluence.Page, localPath string) error {
	body, err := e.converter.Normalize(p.Body.Storage.Value)
	if err != nil {
		return fmt.Errorf("normalizing %s: %w", p.ID, err)
	}

	abs := filepath.Join(e.root, filepath.FromSlash(localPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}

	fm := &frontmatter.Frontmatter{
		ID:         p.ID,
		Title:      p.Title,
		SpaceKey:   e.spaceKey,
		Version:    p.Version.Number,
		ParentID:   parentOf(p),
		Position:   p.Extensions.Position,
		LastSynced: frontmatter.FormatTimestamp(time.Now()),
	}
	doc := frontmatter.BuildContent(fm, body) + "\n"
	if err := os.WriteFile(abs, []byte(doc), 0o644); err != nil {
		return err
	}

	return e.store.SetPage(manifest.PageRecord{
		ID:           p.ID,
		SpaceKey:     e.spaceKey,
		Title:        p.Title,
		Version:      p.Version.Number,
		ParentID:     parentOf(p),
		ParentType:   manifest.ParentPage,
		Position:     p.Extensions.Position,
		LastModified: p.Version.When,
		LocalPath:    localPath,
		ContentHash:  convert.HashContent(body),
		Status:       manifest.StatusSynced,
	})
}

// relocate moves a clean local file to the path the current remote tree
// implies, keeping re-pulls deterministic without rewriting content.
func (e *Engine) relocate(rec manifest.PageRecord, newPath string) error {
	oldAbs := filepath.Join(e.root, filepath.FromSlash(rec.LocalPath))
	newAbs := filepath.Join(e.root, filepath.FromSlash(newPath))
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return err
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return err
	}
	return e.store.UpdatePage(rec.ID, func(r *manifest.PageRecord) { r.LocalPath = newPath })
}

// ensureFolderDirs materializes tracked folders as directories so the
// local tree mirrors remote nesting even where folders are empty.
func (e *Engine) ensureFolderDirs(homeID string) {
	folders := e.store.Folders()
	if len(folders) == 0 {
		return
	}

	r := hierarchy.FromRecords(e.store.Pages(), folders, homeID)
	for _, f := range folders {
		dir, err := r.Resolve(f.ID)
		if err != nil {
			continue
		}
		if err := os.MkdirAll(filepath.Join(e.root, filepath.FromSlash(dir)), 0o755); err != nil {
			e.logger.Warn("creating folder directory failed",
				slog.String("id", f.ID),
				slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) setStatus(id string, status manifest.Status) {
	if err := e.store.UpdatePage(id, func(rec *manifest.PageRecord) { rec.Status = status }); err != nil {
		e.logger.Warn("updating status failed",
			slog.String("id", id),
			slog.String("error", err.Error()))
	}
}

func (e *Engine) getSpace(ctx context.Context) (*confluence.Space, error) {
	var space *confluence.Space
	err := e.protector.Do(ctx, resilience.CallRead, func(ctx context.Context) error {
		s, err := e.client.GetSpace(ctx, e.spaceKey)
		if err != nil {
			return err
		}
		space = s
		return nil
	})
	return space, err
}

// parentOf returns the page's direct parent id. Ancestors arrive ordered
// root first, so the parent is the last entry.
func parentOf(p confluence.Page) string {
	if len(p.Ancestors) == 0 {
		return ""
	}
	return p.Ancestors[len(p.Ancestors)-1].ID
}

func positionOf(p confluence.Page) int {
	if p.Extensions.Position == nil {
		return 0
	}
	return *p.Extensions.Position
}

// sortKey reduces a resolved path to its tree identity: an index file
// keys as its directory, which prefixes every descendant's key.
func sortKey(p string) string {
	if p == "index.md" {
		return ""
	}
	if dir, ok := strings.CutSuffix(p, "/index.md"); ok {
		return dir
	}
	return strings.TrimSuffix(p, ".md")
}

func descendsFromMissing(p confluence.Page, missing map[string]bool) bool {
	for _, a := range p.Ancestors {
		if missing[a.ID] {
			return true
		}
	}
	return false
}
