// Package manifest persists the durable record of the last confirmed sync:
// which pages and folders exist locally, at which remote version, under
// which path, and with which content hash. It is the source of truth for
// change detection across sessions.
package manifest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SchemaVersion is the current manifest file format. The major number
// gates compatibility: files written by a later major version are rejected.
const SchemaVersion = "1.0"

// Status of a tracked item relative to its last confirmed sync.
type Status string

const (
	StatusSynced   Status = "synced"
	StatusModified Status = "modified"
	StatusConflict Status = "conflict"
)

// Parent types a record can hang under.
const (
	ParentPage   = "page"
	ParentFolder = "folder"
)

// PageRecord tracks one page. Version and ContentHash reflect the last
// successful sync point, never the live remote state.
type PageRecord struct {
	ID           string    `json:"id"`
	SpaceKey     string    `json:"spaceKey"`
	Title        string    `json:"title"`
	Version      int       `json:"version"`
	ParentID     string    `json:"parentId,omitempty"`
	ParentType   string    `json:"parentType,omitempty"`
	Position     *int      `json:"position,omitempty"`
	LastModified time.Time `json:"lastModified"`
	LocalPath    string    `json:"localPath"`
	ContentHash  string    `json:"contentHash"`
	Status       Status    `json:"status"`
}

// FolderRecord tracks one folder. Folders are pure hierarchy nodes with no
// local file body, so no content hash.
type FolderRecord struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Title      string    `json:"title"`
	ParentID   string    `json:"parentId,omitempty"`
	ParentType string    `json:"parentType,omitempty"`
	Position   int       `json:"position"`
	AuthorID   string    `json:"authorId,omitempty"`
	OwnerID    string    `json:"ownerId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Version    int       `json:"version"`
}

// SpaceRecord tracks a space whose tree has been pulled.
type SpaceRecord struct {
	ID         int64  `json:"id"`
	Key        string `json:"key"`
	Name       string `json:"name"`
	HomepageID string `json:"homepageId,omitempty"`
}

// Manifest is the persisted document. Record ids are globally unique across
// the manifest; parent chains must terminate without cycles.
type Manifest struct {
	ConfluenceURL string
	LastSyncTime  time.Time
	SyncMode      string
	Version       string
	Pages         map[string]PageRecord
	Spaces        map[string]SpaceRecord
	Folders       map[string]FolderRecord
}

// New creates an empty manifest at the current schema version.
func New() *Manifest {
	return &Manifest{
		Version: SchemaVersion,
		Pages:   map[string]PageRecord{},
		Spaces:  map[string]SpaceRecord{},
		Folders: map[string]FolderRecord{},
	}
}

// manifestJSON is the on-disk shape. The maps serialize as arrays sorted by
// key so the file is deterministic and diffs stay readable.
type manifestJSON struct {
	ConfluenceURL string         `json:"confluenceUrl"`
	LastSyncTime  time.Time      `json:"lastSyncTime"`
	SyncMode      string         `json:"syncMode"`
	Version       string         `json:"version"`
	Pages         []PageRecord   `json:"pages"`
	Spaces        []SpaceRecord  `json:"spaces"`
	Folders       []FolderRecord `json:"folders"`
}

// MarshalJSON implements json.Marshaler.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	doc := manifestJSON{
		ConfluenceURL: m.ConfluenceURL,
		LastSyncTime:  m.LastSyncTime,
		SyncMode:      m.SyncMode,
		Version:       m.Version,
		Pages:         make([]PageRecord, 0, len(m.Pages)),
		Spaces:        make([]SpaceRecord, 0, len(m.Spaces)),
		Folders:       make([]FolderRecord, 0, len(m.Folders)),
	}

	for _, rec := range m.Pages {
		doc.Pages = append(doc.Pages, rec)
	}
	sort.Slice(doc.Pages, func(i, j int) bool { return doc.Pages[i].ID < doc.Pages[j].ID })

	for _, rec := range m.Spaces {
		doc.Spaces = append(doc.Spaces, rec)
	}
	sort.Slice(doc.Spaces, func(i, j int) bool { return doc.Spaces[i].Key < doc.Spaces[j].Key })

	for _, rec := range m.Folders {
		doc.Folders = append(doc.Folders, rec)
	}
	sort.Slice(doc.Folders, func(i, j int) bool { return doc.Folders[i].ID < doc.Folders[j].ID })

	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler. Duplicate ids are corruption,
// not something to resolve silently.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var doc manifestJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	m.ConfluenceURL = doc.ConfluenceURL
	m.LastSyncTime = doc.LastSyncTime
	m.SyncMode = doc.SyncMode
	m.Version = doc.Version
	m.Pages = make(map[string]PageRecord, len(doc.Pages))
	m.Spaces = make(map[string]SpaceRecord, len(doc.Spaces))
	m.Folders = make(map[string]FolderRecord, len(doc.Folders))

	for _, rec := range doc.Pages {
		if _, ok := m.Pages[rec.ID]; ok {
			return fmt.Errorf("manifest: duplicate page id %s", rec.ID)
		}
		m.Pages[rec.ID] = rec
	}

	for _, rec := range doc.Spaces {
		if _, ok := m.Spaces[rec.Key]; ok {
			return fmt.Errorf("manifest: duplicate space key %s", rec.Key)
		}
		m.Spaces[rec.Key] = rec
	}

	for _, rec := range doc.Folders {
		if _, ok := m.Folders[rec.ID]; ok {
			return fmt.Errorf("manifest: duplicate folder id %s", rec.ID)
		}
		if _, ok := m.Pages[rec.ID]; ok {
			return fmt.Errorf("manifest: id %s tracked as both page and folder", rec.ID)
		}
		m.Folders[rec.ID] = rec
	}

	return nil
}

// CheckSchema verifies the manifest was written by a compatible version.
func (m *Manifest) CheckSchema() error {
	if m.Version == "" {
		return fmt.Errorf("manifest: missing schema version")
	}

	major := func(v string) (int, error) {
		head, _, _ := strings.Cut(v, ".")
		return strconv.Atoi(head)
	}

	got, err := major(m.Version)
	if err != nil {
		return fmt.Errorf("manifest: bad schema version %q", m.Version)
	}
	supported, _ := major(SchemaVersion)

	if got > supported {
		return fmt.Errorf("manifest: schema version %s is newer than supported %s", m.Version, SchemaVersion)
	}

	return nil
}
