package confluence

import "time"

// Page represents a Confluence page from the v1 content API.
type Page struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Title   string `json:"title"`
	Space   struct {
		ID   int64  `json:"id"`
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"space"`
	Version struct {
		Number int       `json:"number"`
		When   time.Time `json:"when"`
	} `json:"version"`
	Ancestors []Ancestor `json:"ancestors"`
	Body      struct {
		Storage struct {
			Value          string `json:"value"`
			Representation string `json:"representation"`
		} `json:"storage"`
	} `json:"body"`
	Extensions struct {
		// Position is the manual ordering within the parent. Confluence
		// omits it for pages that were never reordered.
		Position *int `json:"position"`
	} `json:"extensions"`
}

// Ancestor is one entry in a page's ancestor chain, ordered root first.
type Ancestor struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

// Space represents a Confluence space summary.
type Space struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description struct {
		Plain struct {
			Value string `json:"value"`
		} `json:"plain"`
	} `json:"description"`
	Homepage struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"homepage"`
}

// Folder represents a content folder from the v2 API. Folders group pages in
// the space tree but carry no body of their own.
type Folder struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Title      string    `json:"title"`
	ParentID   string    `json:"parentId"`
	ParentType string    `json:"parentType"`
	Position   int       `json:"position"`
	AuthorID   string    `json:"authorId"`
	OwnerID    string    `json:"ownerId"`
	CreatedAt  time.Time `json:"createdAt"`
	Version    struct {
		Number    int       `json:"number"`
		CreatedAt time.Time `json:"createdAt"`
		AuthorID  string    `json:"authorId"`
		Message   string    `json:"message"`
		MinorEdit bool      `json:"minorEdit"`
	} `json:"version"`
}

// PageInput describes a page create/update request.
type PageInput struct {
	SpaceKey string
	Title    string
	Body     string
	ParentID string
	Version  int
}

// FolderInput describes a folder create request for the v2 API.
type FolderInput struct {
	SpaceID  string
	Title    string
	ParentID string
}
