package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"log/slog"

	"github.com/phoorichet/confluence-sync-sub002/internal/config"
)

const (
	apiPrefix   = "/rest/api"
	apiV2Prefix = "/api/v2"

	// MaxResultsPerPage is the largest page size Confluence Cloud serves
	// for content queries. Bulk lookups are chunked to this size.
	MaxResultsPerPage = 100

	defaultSingleTimeout = 30 * time.Second
	defaultBulkTimeout   = 120 * time.Second
)

// QuotaSink receives response headers so rate-limit bookkeeping can track the
// server-reported quota without the client importing the limiter.
type QuotaSink interface {
	UpdateFromHeaders(http.Header)
}

// Client is a helper around the Confluence Cloud REST API.
type Client struct {
	baseURL       *url.URL
	httpClient    *http.Client
	logger        *slog.Logger
	quota         QuotaSink
	singleTimeout time.Duration
	bulkTimeout   time.Duration
}

// NewClient constructs a Client for the specified site and credentials. The
// site may omit the scheme and the /wiki context path; both are filled in.
func NewClient(site string, creds config.ServiceCredentials, logger *slog.Logger) (*Client, error) {
	if site == "" {
		return nil, fmt.Errorf("confluence: site URL required")
	}

	parsed, err := normalizeSite(site)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:       parsed,
		httpClient:    &http.Client{Transport: newAuthTransport(nil, creds)},
		logger:        logger,
		singleTimeout: defaultSingleTimeout,
		bulkTimeout:   defaultBulkTimeout,
	}, nil
}

func normalizeSite(site string) (*url.URL, error) {
	if !strings.Contains(site, "://") {
		site = "https://" + site
	}

	parsed, err := url.Parse(site)
	if err != nil {
		return nil, fmt.Errorf("confluence: parse site url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("confluence: site URL missing host")
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(parsed.Path, "/wiki") {
		parsed.Path += "/wiki"
	}

	return parsed, nil
}

// BaseURL reports the normalized site URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SetQuotaSink registers a receiver for rate-limit response headers.
func (c *Client) SetQuotaSink(sink QuotaSink) {
	c.quota = sink
}

// SetTimeouts overrides the per-call deadlines for single-item and bulk
// operations. Non-positive values keep the current setting.
func (c *Client) SetTimeouts(single, bulk time.Duration) {
	if single > 0 {
		c.singleTimeout = single
	}
	if bulk > 0 {
		c.bulkTimeout = bulk
	}
}

// SetTransport overrides the underlying HTTP transport. Useful for testing.
func (c *Client) SetTransport(rt http.RoundTripper) {
	if rt == nil {
		return
	}
	c.httpClient.Transport = rt
}

// NewRequest builds an HTTP request with optional query parameters and JSON body.
func (c *Client) NewRequest(ctx context.Context, method, path string, query map[string]string, body any) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + path

	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	var bodyReader io.Reader
	contentType := ""
	if body != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("confluence: encode body: %w", err)
		}
		bodyReader = buf
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return req, nil
}

// Do executes the request and decodes the response JSON into out if provided.
// Rate-limit headers reach the quota sink on every response, including
// errors, so throttling state stays current.
func (c *Client) Do(req *http.Request, out any) error {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if c.quota != nil {
		c.quota.UpdateFromHeaders(res.Header)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return parseError(res)
	}

	if out == nil {
		io.Copy(io.Discard, res.Body)
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("confluence: decode response: %w", err)
	}

	return nil
}

// opContext derives the per-call deadline. The caller's deadline still wins
// when it is shorter.
func (c *Client) opContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func apiPath(parts ...string) string {
	return joinPath(apiPrefix, parts)
}

func apiV2Path(parts ...string) string {
	return joinPath(apiV2Prefix, parts)
}

func joinPath(prefix string, parts []string) string {
	builder := strings.Builder{}
	builder.WriteString(strings.TrimRight(prefix, "/"))

	for _, part := range parts {
		if trimmed := strings.Trim(part, "/"); trimmed != "" {
			builder.WriteByte('/')
			builder.WriteString(trimmed)
		}
	}

	return builder.String()
}
