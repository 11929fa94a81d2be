package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Store guards a manifest for concurrent use and persists it atomically.
// Reads return copies; mutations go through per-key helpers so concurrent
// batch workers never hand out aliased records.
type Store struct {
	path string
	mu   sync.RWMutex
	m    *Manifest
}

// NewStore creates a store persisting to path. The manifest starts empty;
// call Load to read existing state.
func NewStore(path string) *Store {
	return &Store{path: path, m: New()}
}

// Path reports where the manifest persists.
func (s *Store) Path() string {
	return s.path
}

// Load reads the manifest from disk. A missing file leaves the store empty,
// ready for a first sync.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.m = New()
		return nil
	}
	if err != nil {
		return fmt.Errorf("manifest: read %s: %w", s.path, err)
	}

	loaded := New()
	if err := json.Unmarshal(data, loaded); err != nil {
		return fmt.Errorf("manifest: parse %s: %w", s.path, err)
	}
	if err := loaded.CheckSchema(); err != nil {
		return err
	}

	s.m = loaded
	return nil
}

// Save writes the manifest atomically: marshal to a temp file in the same
// directory, keep the previous manifest as .bak, then rename into place.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("manifest: create state dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("manifest: write temp file: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, s.path+".bak"); err != nil {
			return fmt.Errorf("manifest: keep backup: %w", err)
		}
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("manifest: replace %s: %w", s.path, err)
	}

	return nil
}

// Page returns the record for id.
func (s *Store) Page(id string) (PageRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.m.Pages[id]
	return rec, ok
}

// Pages returns all page records sorted by id.
func (s *Store) Pages() []PageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PageRecord, 0, len(s.m.Pages))
	for _, rec := range s.m.Pages {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetPage inserts or replaces a page record. Ids are unique across pages
// and folders.
func (s *Store) SetPage(rec PageRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("manifest: page record missing id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m.Folders[rec.ID]; ok {
		return fmt.Errorf("manifest: id %s already tracked as folder", rec.ID)
	}
	s.m.Pages[rec.ID] = rec
	return nil
}

// UpdatePage applies fn to the record for id under the write lock, so
// read-modify-write cycles from concurrent workers serialize per store.
func (s *Store) UpdatePage(id string, fn func(*PageRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.m.Pages[id]
	if !ok {
		return fmt.Errorf("manifest: unknown page %s", id)
	}
	fn(&rec)
	rec.ID = id
	s.m.Pages[id] = rec
	return nil
}

// DeletePage removes a page record if present.
func (s *Store) DeletePage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m.Pages, id)
}

// Folder returns the record for id.
func (s *Store) Folder(id string) (FolderRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.m.Folders[id]
	return rec, ok
}

// Folders returns all folder records sorted by id.
func (s *Store) Folders() []FolderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]FolderRecord, 0, len(s.m.Folders))
	for _, rec := range s.m.Folders {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetFolder inserts or replaces a folder record.
func (s *Store) SetFolder(rec FolderRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("manifest: folder record missing id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m.Pages[rec.ID]; ok {
		return fmt.Errorf("manifest: id %s already tracked as page", rec.ID)
	}
	s.m.Folders[rec.ID] = rec
	return nil
}

// UpdateFolder applies fn to the record for id under the write lock.
func (s *Store) UpdateFolder(id string, fn func(*FolderRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.m.Folders[id]
	if !ok {
		return fmt.Errorf("manifest: unknown folder %s", id)
	}
	fn(&rec)
	rec.ID = id
	s.m.Folders[id] = rec
	return nil
}

// DeleteFolder removes a folder record if present.
func (s *Store) DeleteFolder(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m.Folders, id)
}

// Space returns the record for key.
func (s *Store) Space(key string) (SpaceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.m.Spaces[key]
	return rec, ok
}

// Spaces returns all space records sorted by key.
func (s *Store) Spaces() []SpaceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SpaceRecord, 0, len(s.m.Spaces))
	for _, rec := range s.m.Spaces {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// SetSpace inserts or replaces a space record.
func (s *Store) SetSpace(rec SpaceRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("manifest: space record missing key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Spaces[rec.Key] = rec
	return nil
}

// SetConfluenceURL records the site this manifest belongs to.
func (s *Store) SetConfluenceURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.ConfluenceURL = url
}

// ConfluenceURL reports the site this manifest belongs to.
func (s *Store) ConfluenceURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m.ConfluenceURL
}

// SetSyncMode records the configured sync mode.
func (s *Store) SetSyncMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.SyncMode = mode
}

// MarkSynced stamps the time of the latest completed sync.
func (s *Store) MarkSynced(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.LastSyncTime = at
}

// LastSyncTime reports when the latest sync completed.
func (s *Store) LastSyncTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m.LastSyncTime
}

// Prune removes page and folder records whose ids are not in keep and
// returns the removed ids sorted. Records are never dropped implicitly;
// this is the only way entries leave the manifest.
func (s *Store) Prune(keep map[string]bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id := range s.m.Pages {
		if !keep[id] {
			delete(s.m.Pages, id)
			removed = append(removed, id)
		}
	}
	for id := range s.m.Folders {
		if !keep[id] {
			delete(s.m.Folders, id)
			removed = append(removed, id)
		}
	}

	sort.Strings(removed)
	return removed
}

// Summary is a point-in-time view for status reporting.
type Summary struct {
	ConfluenceURL string
	LastSyncTime  time.Time
	SyncMode      string
	Pages         int
	Folders       int
	Spaces        int
	ByStatus      map[Status]int
}

// Summarize reports counts without exposing the underlying maps.
func (s *Store) Summarize() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		ConfluenceURL: s.m.ConfluenceURL,
		LastSyncTime:  s.m.LastSyncTime,
		SyncMode:      s.m.SyncMode,
		Pages:         len(s.m.Pages),
		Folders:       len(s.m.Folders),
		Spaces:        len(s.m.Spaces),
		ByStatus:      map[Status]int{},
	}
	for _, rec := range s.m.Pages {
		sum.ByStatus[rec.Status]++
	}
	return sum
}
