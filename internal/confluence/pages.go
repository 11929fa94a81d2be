package confluence

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// pageExpand pulls everything sync needs in one round trip: storage body,
// version, owning space, ancestor chain and sibling position.
const pageExpand = "body.storage,version,space,ancestors,extensions.position"

// GetPage retrieves a single page with body, version, space, ancestors and
// position populated.
func (c *Client) GetPage(ctx context.Context, id string) (*Page, error) {
	if id == "" {
		return nil, fmt.Errorf("confluence: page id required")
	}

	ctx, cancel := c.opContext(ctx, c.singleTimeout)
	defer cancel()

	req, err := c.NewRequest(ctx, http.MethodGet, apiPath("content", id), map[string]string{"expand": pageExpand}, nil)
	if err != nil {
		return nil, err
	}

	var page Page
	if err := c.Do(req, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

// GetPagesByIDs retrieves many pages at once via CQL id lookups, chunked to
// MaxResultsPerPage ids per request. Pages the server no longer knows are
// silently absent from the result.
func (c *Client) GetPagesByIDs(ctx context.Context, ids []string) ([]Page, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := c.opContext(ctx, c.bulkTimeout)
	defer cancel()

	pages := make([]Page, 0, len(ids))
	for start := 0; start < len(ids); start += MaxResultsPerPage {
		end := start + MaxResultsPerPage
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		cql := fmt.Sprintf("id in (%s)", strings.Join(chunk, ","))
		results, err := c.searchCQL(ctx, cql, len(chunk), pageExpand)
		if err != nil {
			return nil, err
		}
		pages = append(pages, results...)
	}

	return pages, nil
}

// GetChildren lists the direct child pages of a page, following pagination
// until the listing is exhausted.
func (c *Client) GetChildren(ctx context.Context, id string) ([]Page, error) {
	if id == "" {
		return nil, fmt.Errorf("confluence: page id required")
	}

	ctx, cancel := c.opContext(ctx, c.bulkTimeout)
	defer cancel()

	var children []Page
	for start := 0; ; start += MaxResultsPerPage {
		query := map[string]string{
			"start":  strconv.Itoa(start),
			"limit":  strconv.Itoa(MaxResultsPerPage),
			"expand": "version,extensions.position",
		}

		req, err := c.NewRequest(ctx, http.MethodGet, apiPath("content", id, "child", "page"), query, nil)
		if err != nil {
			return nil, err
		}

		var response struct {
			Results []Page `json:"results"`
			Size    int    `json:"size"`
		}
		if err := c.Do(req, &response); err != nil {
			return nil, err
		}

		children = append(children, response.Results...)
		if response.Size < MaxResultsPerPage {
			break
		}
	}

	return children, nil
}

// SearchCQL performs a CQL search across content.
func (c *Client) SearchCQL(ctx context.Context, cql string, limit int) ([]Page, error) {
	if cql == "" {
		return nil, fmt.Errorf("confluence: cql required")
	}

	if limit <= 0 {
		limit = 25
	}

	ctx, cancel := c.opContext(ctx, c.bulkTimeout)
	defer cancel()

	return c.searchCQL(ctx, cql, limit, "body.storage,version")
}

func (c *Client) searchCQL(ctx context.Context, cql string, limit int, expand string) ([]Page, error) {
	query := map[string]string{
		"cql":    cql,
		"limit":  strconv.Itoa(limit),
		"expand": expand,
	}

	req, err := c.NewRequest(ctx, http.MethodGet, apiPath("content", "search"), query, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Results []Page `json:"results"`
	}
	if err := c.Do(req, &response); err != nil {
		return nil, err
	}

	return response.Results, nil
}

// CreatePage creates a Confluence page.
func (c *Client) CreatePage(ctx context.Context, in PageInput) (*Page, error) {
	if in.SpaceKey == "" {
		return nil, fmt.Errorf("confluence: space key required")
	}
	if in.Title == "" {
		return nil, fmt.Errorf("confluence: title required")
	}
	if in.Body == "" {
		return nil, fmt.Errorf("confluence: body required")
	}

	payload := map[string]interface{}{
		"type":  "page",
		"title": in.Title,
		"space": map[string]string{
			"key": in.SpaceKey,
		},
		"body": map[string]interface{}{
			"storage": map[string]string{
				"value":          in.Body,
				"representation": "storage",
			},
		},
	}

	if in.ParentID != "" {
		payload["ancestors"] = []map[string]string{
			{"id": in.ParentID},
		}
	}

	ctx, cancel := c.opContext(ctx, c.singleTimeout)
	defer cancel()

	req, err := c.NewRequest(ctx, http.MethodPost, apiPath("content"), nil, payload)
	if err != nil {
		return nil, err
	}

	var created Page
	if err := c.Do(req, &created); err != nil {
		return nil, err
	}

	return &created, nil
}

// UpdatePage updates an existing Confluence page. The input version must be
// the next version number, one above the version being replaced.
func (c *Client) UpdatePage(ctx context.Context, id string, in PageInput) (*Page, error) {
	if id == "" {
		return nil, fmt.Errorf("confluence: page id required")
	}
	if in.Title == "" {
		return nil, fmt.Errorf("confluence: title required")
	}
	if in.Body == "" {
		return nil, fmt.Errorf("confluence: body required")
	}
	if in.Version == 0 {
		return nil, fmt.Errorf("confluence: version required")
	}

	payload := map[string]interface{}{
		"type":  "page",
		"title": in.Title,
		"body": map[string]interface{}{
			"storage": map[string]string{
				"value":          in.Body,
				"representation": "storage",
			},
		},
		"version": map[string]int{
			"number": in.Version,
		},
	}

	if in.SpaceKey != "" {
		payload["space"] = map[string]string{
			"key": in.SpaceKey,
		}
	}

	if in.ParentID != "" {
		payload["ancestors"] = []map[string]string{
			{"id": in.ParentID},
		}
	}

	ctx, cancel := c.opContext(ctx, c.singleTimeout)
	defer cancel()

	req, err := c.NewRequest(ctx, http.MethodPut, apiPath("content", id), nil, payload)
	if err != nil {
		return nil, err
	}

	var updated Page
	if err := c.Do(req, &updated); err != nil {
		return nil, err
	}

	return &updated, nil
}

// DeletePage moves a page to the trash.
func (c *Client) DeletePage(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("confluence: page id required")
	}

	ctx, cancel := c.opContext(ctx, c.singleTimeout)
	defer cancel()

	req, err := c.NewRequest(ctx, http.MethodDelete, apiPath("content", id), nil, nil)
	if err != nil {
		return err
	}

	return c.Do(req, nil)
}
