package confluence

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// GetSpace retrieves a space by key, including its description and homepage.
func (c *Client) GetSpace(ctx context.Context, key string) (*Space, error) {
	if key == "" {
		return nil, fmt.Errorf("confluence: space key required")
	}

	ctx, cancel := c.opContext(ctx, c.singleTimeout)
	defer cancel()

	query := map[string]string{"expand": "description.plain,homepage"}
	req, err := c.NewRequest(ctx, http.MethodGet, apiPath("space", key), query, nil)
	if err != nil {
		return nil, err
	}

	var space Space
	if err := c.Do(req, &space); err != nil {
		return nil, err
	}

	return &space, nil
}

// GetSpaceHomeID resolves the id of a space's home page, the root under
// which the space tree hangs.
func (c *Client) GetSpaceHomeID(ctx context.Context, key string) (string, error) {
	space, err := c.GetSpace(ctx, key)
	if err != nil {
		return "", err
	}

	if space.Homepage.ID == "" {
		return "", fmt.Errorf("confluence: space %s has no home page", key)
	}

	return space.Homepage.ID, nil
}

// ListSpaces retrieves Confluence spaces.
func (c *Client) ListSpaces(ctx context.Context, limit int) ([]Space, error) {
	if limit <= 0 {
		limit = 25
	}

	ctx, cancel := c.opContext(ctx, c.bulkTimeout)
	defer cancel()

	query := map[string]string{
		"limit":  strconv.Itoa(limit),
		"expand": "description.plain,homepage",
	}

	req, err := c.NewRequest(ctx, http.MethodGet, apiPath("space"), query, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Results []Space `json:"results"`
	}
	if err := c.Do(req, &response); err != nil {
		return nil, err
	}

	return response.Results, nil
}
