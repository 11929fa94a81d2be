package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/phoorichet/confluence-sync-sub002/internal/apierr"
	"github.com/phoorichet/confluence-sync-sub002/internal/confluence"
	"github.com/phoorichet/confluence-sync-sub002/internal/convert"
	"github.com/phoorichet/confluence-sync-sub002/internal/frontmatter"
	"github.com/phoorichet/confluence-sync-sub002/internal/hierarchy"
	"github.com/phoorichet/confluence-sync-sub002/internal/manifest"
	"github.com/phoorichet/confluence-sync-sub002/internal/resilience"
)

// Push uploads local work to Confluence: tracked pages whose files changed
// become version bumps, untracked markdown files become new pages. Pages
// the remote side also changed stay put and land in the conflict list.
func (e *Engine) Push(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), SpaceKey: e.spaceKey, DryRun: opts.DryRun}

	e.logger.Info("push starting",
		slog.String("run", report.RunID),
		slog.String("space", e.spaceKey),
		slog.Bool("dry_run", opts.DryRun))

	e.pushTracked(ctx, report, opts)
	e.pushNew(ctx, report, opts)

	if !opts.DryRun {
		e.store.SetConfluenceURL(e.client.BaseURL())
		e.store.MarkSynced(time.Now())
		if err := e.store.Save(); err != nil {
			return report, fmt.Errorf("sync: saving manifest: %w", err)
		}
	}

	report.Duration = time.Since(start)
	e.logger.Info("push complete",
		slog.String("run", report.RunID),
		slog.Int("updated", report.Updated),
		slog.Int("created", report.Created),
		slog.Int("conflicts", len(report.Conflicts)),
		slog.Int("failures", len(report.Failures)),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// pushTracked classifies every tracked page in one bulk pass and uploads
// the ones only the local side changed.
func (e *Engine) pushTracked(ctx context.Context, report *Report, opts Options) {
	if len(e.store.Pages()) == 0 {
		return
	}
	states := e.DetectAll(ctx)

	var updates []string
	for _, st := range states {
		switch st.State {
		case StateUnchanged:
			report.Unchanged++
		case StateRemoteOnly:
			report.Skipped++
		case StateBothChanged:
			report.Conflicts = append(report.Conflicts, st.ID)
			if !opts.DryRun {
				e.setStatus(st.ID, manifest.StatusConflict)
			}
			e.logger.Warn("conflict: both sides changed", slog.String("id", st.ID))
		case StateLocalOnly:
			updates = append(updates, st.ID)
		}
	}

	if len(updates) == 0 {
		return
	}
	if opts.DryRun {
		report.Updated += len(updates)
		return
	}

	res := e.executor.Run(ctx, resilience.CallWrite, updates, func(ctx context.Context, id string) error {
		return e.pushUpdate(ctx, id)
	})
	report.Updated += len(res.Successes)
	for i := range res.Failures {
		res.Failures[i].Op = "update"
	}
	report.Failures = append(report.Failures, res.Failures...)
}

// pushUpdate uploads one locally changed page and advances its manifest
// record. The version sent is the manifest version plus one; if the
// remote moved past that, Confluence answers 409 and the record flips to
// conflict instead of clobbering the newer page.
func (e *Engine) pushUpdate(ctx context.Context, id string) error {
	rec, ok := e.store.Page(id)
	if !ok {
		return fmt.Errorf("page %s is not tracked", id)
	}

	raw, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rec.LocalPath)))
	if err != nil {
		return err
	}
	fm, body, err := frontmatter.Parse(string(raw))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", rec.LocalPath, err)
	}
	body = strings.TrimSpace(body)

	title := rec.Title
	if fm != nil && fm.Title != "" {
		title = fm.Title
	}

	storage, err := e.converter.RenderStorage(body)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", rec.LocalPath, err)
	}

	var updated *confluence.Page
	err = e.protector.Do(ctx, resilience.CallWrite, func(ctx context.Context) error {
		p, err := e.client.UpdatePage(ctx, id, confluence.PageInput{
			SpaceKey: rec.SpaceKey,
			Title:    title,
			Body:     storage,
			ParentID: rec.ParentID,
			Version:  rec.Version + 1,
		})
		if err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		if apierr.KindOf(err) == apierr.KindConflict {
			e.setStatus(id, manifest.StatusConflict)
		}
		return err
	}

	if err := e.store.UpdatePage(id, func(r *manifest.PageRecord) {
		r.Title = title
		r.Version = updated.Version.Number
		r.LastModified = updated.Version.When
		r.ContentHash = convert.HashContent(body)
		r.Status = manifest.StatusSynced
	}); err != nil {
		return err
	}

	e.refreshFrontmatter(rec, fm, body, updated.Version.Number, title)
	return nil
}

// refreshFrontmatter rewrites a pushed file's header so the embedded
// version matches what the server now holds. Body bytes stay as pushed.
func (e *Engine) refreshFrontmatter(rec manifest.PageRecord, fm *frontmatter.Frontmatter, body string, version int, title string) {
	if fm == nil {
		fm = &frontmatter.Frontmatter{}
	}
	fm.ID = rec.ID
	fm.Title = title
	fm.SpaceKey = rec.SpaceKey
	fm.Version = version
	if fm.ParentID == "" {
		fm.ParentID = rec.ParentID
	}
	if fm.Position == nil {
		fm.Position = rec.Position
	}
	fm.LastSynced = frontmatter.FormatTimestamp(time.Now())

	doc := frontmatter.BuildContent(fm, body) + "\n"
	abs := filepath.Join(e.root, filepath.FromSlash(rec.LocalPath))
	if err := os.WriteFile(abs, []byte(doc), 0o644); err != nil {
		e.logger.Warn("refreshing frontmatter failed",
			slog.String("path", rec.LocalPath),
			slog.String("error", err.Error()))
	}
}

// pushNew creates remote pages for untracked markdown files, parents
// first so a new index page exists before its children need it. Creates
// run in path order rather than through the pool because each index page
// becomes the parent the next file attaches to.
func (e *Engine) pushNew(ctx context.Context, report *Report, opts Options) {
	files, err := e.findUntracked()
	if err != nil {
		report.Failures = append(report.Failures, Failure{Index: -1, Op: "scan", Message: apierr.Sanitize(err.Error())})
		e.logger.Warn("scanning for new files failed", slog.String("error", err.Error()))
		return
	}
	if len(files) == 0 {
		return
	}
	if opts.DryRun {
		report.Created += len(files)
		return
	}

	sp, err := e.spaceRecord(ctx)
	if err != nil {
		report.Failures = append(report.Failures, Failure{Index: -1, Op: "create", Message: apierr.Sanitize(err.Error())})
		return
	}
	owners := e.containerOwners(sp.HomepageID)

	for _, rel := range files {
		if err := e.pushCreate(ctx, rel, sp, owners); err != nil {
			msg := apierr.Sanitize(err.Error())
			report.Failures = append(report.Failures, Failure{Index: -1, ID: rel, Op: "create", Message: msg})
			e.logger.Warn("creating page failed",
				slog.String("path", rel),
				slog.String("error", msg))
			continue
		}
		report.Created++
	}
}

// findUntracked walks root for markdown files no manifest record points
// at. Paths come back slash separated and ordered parents first. Dot
// files and dot directories stay out of sync scope.
func (e *Engine) findUntracked() ([]string, error) {
	tracked := make(map[string]bool)
	for _, rec := range e.store.Pages() {
		tracked[rec.LocalPath] = true
	}

	var out []string
	err := filepath.WalkDir(e.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p != e.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(e.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !tracked[rel] {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return sortKey(out[i]) < sortKey(out[j]) })
	return out, nil
}

// containerOwners maps each known directory to the remote container new
// files in it attach to. The root maps to the space home page; an index
// page owns its directory; tracked folders own theirs.
func (e *Engine) containerOwners(homeID string) map[string]string {
	owners := map[string]string{"": homeID}
	for _, rec := range e.store.Pages() {
		if dir, ok := strings.CutSuffix(rec.LocalPath, "/index.md"); ok {
			owners[dir] = rec.ID
		}
	}

	folders := e.store.Folders()
	if len(folders) > 0 {
		r := hierarchy.FromRecords(e.store.Pages(), folders, homeID)
		for _, f := range folders {
			if dir, err := r.Resolve(f.ID); err == nil {
				owners[dir] = f.ID
			}
		}
	}
	return owners
}

// ensureContainer resolves the remote container for dir, creating folders
// for directory levels no page or folder owns yet. Created folders
// register in owners and in the manifest.
func (e *Engine) ensureContainer(ctx context.Context, dir string, sp manifest.SpaceRecord, owners map[string]string) (string, error) {
	if id, ok := owners[dir]; ok {
		return id, nil
	}

	parent, err := e.ensureContainer(ctx, parentDir(dir), sp, owners)
	if err != nil {
		return "", err
	}

	title := titleFromSegment(path.Base(dir))
	var folder *confluence.Folder
	err = e.protector.Do(ctx, resilience.CallWrite, func(ctx context.Context) error {
		f, err := e.client.CreateFolder(ctx, confluence.FolderInput{
			SpaceID:  strconv.FormatInt(sp.ID, 10),
			Title:    title,
			ParentID: parent,
		})
		if err != nil {
			return err
		}
		folder = f
		return nil
	})
	if err != nil {
		return "", err
	}

	parentType := manifest.ParentPage
	if _, ok := e.store.Folder(parent); ok {
		parentType = manifest.ParentFolder
	}
	position := 0
	if pos, _, ok := hierarchy.SplitSegment(path.Base(dir)); ok {
		position = pos
	}

	if err := e.store.SetFolder(manifest.FolderRecord{
		ID:         folder.ID,
		Type:       folder.Type,
		Status:     folder.Status,
		Title:      folder.Title,
		ParentID:   parent,
		ParentType: parentType,
		Position:   position,
		AuthorID:   folder.AuthorID,
		OwnerID:    folder.OwnerID,
		CreatedAt:  folder.CreatedAt,
		Version:    folder.Version.Number,
	}); err != nil {
		return "", err
	}

	owners[dir] = folder.ID
	e.logger.Info("created folder",
		slog.String("id", folder.ID),
		slog.String("dir", dir))
	return folder.ID, nil
}

// pushCreate uploads one new file. An index file attaches to the owner of
// its parent directory and then owns its own; a plain file attaches to
// its directory's owner.
func (e *Engine) pushCreate(ctx context.Context, rel string, sp manifest.SpaceRecord, owners map[string]string) error {
	raw, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	fm, body, err := frontmatter.Parse(string(raw))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", rel, err)
	}
	body = strings.TrimSpace(body)
	if fm != nil && fm.ID != "" {
		return fmt.Errorf("%s carries id %s but is not tracked; run pull first", rel, fm.ID)
	}
	if rel == "index.md" {
		return errors.New("index.md is the space home page; run pull first")
	}

	dir := parentDir(rel)
	var seg string
	if path.Base(rel) == "index.md" {
		seg = path.Base(dir)
		dir = parentDir(dir)
	} else {
		seg = strings.TrimSuffix(path.Base(rel), ".md")
	}

	parentID, err := e.ensureContainer(ctx, dir, sp, owners)
	if err != nil {
		return err
	}

	title := titleFromSegment(seg)
	if fm != nil && fm.Title != "" {
		title = fm.Title
	}

	storage, err := e.converter.RenderStorage(body)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", rel, err)
	}

	var created *confluence.Page
	err = e.protector.Do(ctx, resilience.CallWrite, func(ctx context.Context) error {
		p, err := e.client.CreatePage(ctx, confluence.PageInput{
			SpaceKey: sp.Key,
			Title:    title,
			Body:     storage,
			ParentID: parentID,
		})
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return err
	}

	parentType := manifest.ParentPage
	if _, ok := e.store.Folder(parentID); ok {
		parentType = manifest.ParentFolder
	}
	var position *int
	if pos, _, ok := hierarchy.SplitSegment(seg); ok {
		position = &pos
	}

	rec := manifest.PageRecord{
		ID:           created.ID,
		SpaceKey:     sp.Key,
		Title:        title,
		Version:      created.Version.Number,
		ParentID:     parentID,
		ParentType:   parentType,
		Position:     position,
		LastModified: created.Version.When,
		LocalPath:    rel,
		ContentHash:  convert.HashContent(body),
		Status:       manifest.StatusSynced,
	}
	if err := e.store.SetPage(rec); err != nil {
		return err
	}

	e.refreshFrontmatter(rec, fm, body, created.Version.Number, title)

	if d, ok := strings.CutSuffix(rel, "/index.md"); ok {
		owners[d] = created.ID
	}
	e.logger.Info("created page",
		slog.String("id", created.ID),
		slog.String("path", rel))
	return nil
}

// Delete removes tracked items remotely and drops their records and local
// files. A remote 404 counts as already gone.
func (e *Engine) Delete(ctx context.Context, ids []string, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), SpaceKey: e.spaceKey, DryRun: opts.DryRun}

	if opts.DryRun {
		report.Deleted = len(ids)
		report.Duration = time.Since(start)
		return report, nil
	}

	res := e.executor.Run(ctx, resilience.CallWrite, ids, func(ctx context.Context, id string) error {
		return e.deleteOne(ctx, id)
	})
	report.Deleted = len(res.Successes)
	for i := range res.Failures {
		res.Failures[i].Op = "delete"
	}
	report.Failures = append(report.Failures, res.Failures...)

	if err := e.store.Save(); err != nil {
		return report, fmt.Errorf("sync: saving manifest: %w", err)
	}

	report.Duration = time.Since(start)
	e.logger.Info("delete complete",
		slog.String("run", report.RunID),
		slog.Int("deleted", report.Deleted),
		slog.Int("failures", len(report.Failures)))
	return report, nil
}

func (e *Engine) deleteOne(ctx context.Context, id string) error {
	if _, ok := e.store.Folder(id); ok {
		err := e.protector.Do(ctx, resilience.CallWrite, func(ctx context.Context) error {
			return e.client.DeleteFolder(ctx, id)
		})
		if err != nil && apierr.KindOf(err) != apierr.KindNotFound {
			return err
		}
		e.store.DeleteFolder(id)
		return nil
	}

	rec, ok := e.store.Page(id)
	if !ok {
		return fmt.Errorf("id %s is not tracked", id)
	}
	err := e.protector.Do(ctx, resilience.CallWrite, func(ctx context.Context) error {
		return e.client.DeletePage(ctx, id)
	})
	if err != nil && apierr.KindOf(err) != apierr.KindNotFound {
		return err
	}

	e.store.DeletePage(id)
	if rec.LocalPath != "" {
		err := os.Remove(filepath.Join(e.root, filepath.FromSlash(rec.LocalPath)))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			e.logger.Warn("removing local file failed",
				slog.String("path", rec.LocalPath),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// spaceRecord returns the cached space record, resolving and caching it
// on first use so push works before any pull has run.
func (e *Engine) spaceRecord(ctx context.Context) (manifest.SpaceRecord, error) {
	if sp, ok := e.store.Space(e.spaceKey); ok && sp.HomepageID != "" {
		return sp, nil
	}

	space, err := e.getSpace(ctx)
	if err != nil {
		return manifest.SpaceRecord{}, err
	}
	if space.Homepage.ID == "" {
		return manifest.SpaceRecord{}, fmt.Errorf("space %s has no home page", e.spaceKey)
	}

	rec := manifest.SpaceRecord{ID: space.ID, Key: space.Key, Name: space.Name, HomepageID: space.Homepage.ID}
	if err := e.store.SetSpace(rec); err != nil {
		return manifest.SpaceRecord{}, err
	}
	return rec, nil
}

func parentDir(p string) string {
	parent := path.Dir(p)
	if parent == "." || parent == "/" {
		return ""
	}
	return parent
}

// titleFromSegment derives a page title from a path segment when the file
// has no frontmatter title: strip the position prefix, then capitalize
// each slug word.
func titleFromSegment(seg string) string {
	slug := seg
	if _, s, ok := hierarchy.SplitSegment(seg); ok {
		slug = s
	}

	words := strings.Split(slug, "-")
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			r[0] = unicode.ToUpper(r[0])
		}
		words[i] = string(r)
	}
	title := strings.TrimSpace(strings.Join(words, " "))
	if title == "" {
		return "Untitled"
	}
	return title
}
