// Package hierarchy maps the remote parent/child/position tree onto a
// deterministic local directory layout. Sibling order survives locally as a
// zero-padded position prefix on every path segment, so a plain directory
// listing mirrors the remote ordering.
package hierarchy

import (
	"fmt"
	"path"

	"github.com/phoorichet/confluence-sync-sub002/internal/manifest"
)

// Item carries the tree fields the resolver reads for one tracked item.
type Item struct {
	ID       string
	Title    string
	ParentID string
	Position int
	Folder   bool
	Home     bool
}

// Resolver computes local paths from a fixed snapshot of tracked items.
// Paths are slash-separated and relative to the sync root; resolving the
// same id against the same snapshot always yields the same path.
type Resolver struct {
	items    map[string]Item
	children map[string]int
}

// NewResolver builds a resolver over a snapshot of items.
func NewResolver(items []Item) *Resolver {
	r := &Resolver{
		items:    make(map[string]Item, len(items)),
		children: make(map[string]int),
	}
	for _, it := range items {
		r.items[it.ID] = it
		if it.ParentID != "" {
			r.children[it.ParentID]++
		}
	}
	return r
}

// FromRecords builds a resolver over the pages and folders of a manifest
// snapshot. homeID marks the space home page, which anchors the tree root.
func FromRecords(pages []manifest.PageRecord, folders []manifest.FolderRecord, homeID string) *Resolver {
	items := make([]Item, 0, len(pages)+len(folders))
	for _, p := range pages {
		pos := 0
		if p.Position != nil {
			pos = *p.Position
		}
		items = append(items, Item{
			ID:       p.ID,
			Title:    p.Title,
			ParentID: p.ParentID,
			Position: pos,
			Home:     p.ID == homeID,
		})
	}
	for _, f := range folders {
		items = append(items, Item{
			ID:       f.ID,
			Title:    f.Title,
			ParentID: f.ParentID,
			Position: f.Position,
			Folder:   true,
		})
	}
	return NewResolver(items)
}

// Resolve returns the item's path relative to the sync root. Pages resolve
// to .md files; a page with children becomes index.md inside its own
// directory, and the space home page is the root index.md. Folders resolve
// to their directory.
func (r *Resolver) Resolve(id string) (string, error) {
	it, ok := r.items[id]
	if !ok {
		return "", fmt.Errorf("hierarchy: unknown item %s", id)
	}

	prefix := r.ancestorPrefix(it)

	if it.Home {
		return "index.md", nil
	}
	seg := Segment(it.Position, it.Title)
	if it.Folder {
		return path.Join(prefix, seg), nil
	}
	if r.children[it.ID] > 0 {
		return path.Join(prefix, seg, "index.md"), nil
	}
	return path.Join(prefix, seg+".md"), nil
}

// ancestorPrefix walks the parent chain toward the root and joins the
// directory segments in root-to-leaf order. Each call carries its own
// visited set: a revisited id ends the walk with whatever was collected,
// so a corrupt parent chain cannot loop it. Unknown parents and the space
// home also end the walk, anchoring the item at the root.
func (r *Resolver) ancestorPrefix(it Item) string {
	visited := map[string]bool{it.ID: true}
	var segs []string
	cur := it
	for cur.ParentID != "" {
		parent, ok := r.items[cur.ParentID]
		if !ok || visited[parent.ID] || parent.Home {
			break
		}
		visited[parent.ID] = true
		segs = append(segs, Segment(parent.Position, parent.Title))
		cur = parent
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return path.Join(segs...)
}

// HasChildren reports whether any tracked item names id as its parent.
func (r *Resolver) HasChildren(id string) bool {
	return r.children[id] > 0
}
