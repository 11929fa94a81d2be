package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/phoorichet/confluence-sync-sub002/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, fn roundTripFunc) *Client {
	t.Helper()

	client, err := NewClient("https://example.atlassian.net", config.ServiceCredentials{OAuthToken: "token"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if fn != nil {
		client.SetTransport(fn)
	}
	return client
}

func jsonResponse(t *testing.T, status int, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
	}
}

func TestNewClientRequiresSite(t *testing.T) {
	t.Parallel()

	if _, err := NewClient("", config.ServiceCredentials{}, nil); err == nil {
		t.Fatalf("expected error when site is empty")
	}
}

func TestNewClientNormalizesSite(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		site string
		want string
	}{
		{"bare host", "example.atlassian.net", "https://example.atlassian.net/wiki"},
		{"https host", "https://example.atlassian.net", "https://example.atlassian.net/wiki"},
		{"trailing slash", "https://example.atlassian.net/", "https://example.atlassian.net/wiki"},
		{"wiki path kept", "https://example.atlassian.net/wiki", "https://example.atlassian.net/wiki"},
		{"context path", "https://confluence.example.com/conf", "https://confluence.example.com/conf/wiki"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewClient(tc.site, config.ServiceCredentials{OAuthToken: "token"}, nil)
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			if got := client.baseURL.String(); got != tc.want {
				t.Fatalf("unexpected base URL: %s", got)
			}
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, nil)

	if client.logger == nil {
		t.Fatalf("expected logger to default")
	}
	if client.httpClient == nil || client.httpClient.Transport == nil {
		t.Fatalf("expected http client with transport")
	}
	if client.singleTimeout != defaultSingleTimeout || client.bulkTimeout != defaultBulkTimeout {
		t.Fatalf("unexpected timeouts: %v %v", client.singleTimeout, client.bulkTimeout)
	}
}

func TestClientSetTimeouts(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, nil)
	client.SetTimeouts(0, 0)
	if client.singleTimeout != defaultSingleTimeout {
		t.Fatalf("zero should keep current timeout")
	}

	client.SetTimeouts(5e9, 6e9)
	if client.singleTimeout.Seconds() != 5 || client.bulkTimeout.Seconds() != 6 {
		t.Fatalf("unexpected timeouts: %v %v", client.singleTimeout, client.bulkTimeout)
	}
}

func TestClientNewRequest(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, nil)

	req, err := client.NewRequest(
		context.Background(),
		http.MethodPost,
		apiPath("content", "search"),
		map[string]string{"cql": "type=page", "limit": "10"},
		map[string]string{"title": "Page"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := req.URL.Path; got != "/wiki/rest/api/content/search" {
		t.Fatalf("unexpected path: %s", got)
	}
	if got := req.URL.Query().Get("cql"); got != "type=page" {
		t.Fatalf("unexpected query value: %s", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("unexpected content-type: %s", got)
	}

	var body map[string]string
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["title"] != "Page" {
		t.Fatalf("unexpected body: %#v", body)
	}
}

func TestClientDoSuccess(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/wiki/rest/api/content/1" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{"id": "1"}), nil
	})

	req, err := client.NewRequest(context.Background(), http.MethodGet, apiPath("content", "1"), nil, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := client.Do(req, &out); err != nil {
		t.Fatalf("do: %v", err)
	}
	if out.ID != "1" {
		t.Fatalf("unexpected id: %s", out.ID)
	}
}

func TestClientDoAPIError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		res := jsonResponse(t, http.StatusTooManyRequests, map[string]any{"message": "rate limited"})
		res.Header.Set("Retry-After", "30")
		return res, nil
	})

	req, err := client.NewRequest(context.Background(), http.MethodGet, apiPath("content", "1"), nil, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	err = client.Do(req, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.HTTPStatus() != http.StatusTooManyRequests || apiErr.Message != "rate limited" {
		t.Fatalf("unexpected error: %#v", apiErr)
	}
	if got := apiErr.HTTPHeader().Get("Retry-After"); got != "30" {
		t.Fatalf("expected headers to survive, got %q", got)
	}
}

func TestClientDoDecodeFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("{\"id\"")),
			Header:     make(http.Header),
		}, nil
	})

	req, err := client.NewRequest(context.Background(), http.MethodGet, apiPath("content", "1"), nil, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	var out struct{}
	if err := client.Do(req, &out); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestClientSetTransport(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, nil)
	original := client.httpClient.Transport

	client.SetTransport(nil)
	if client.httpClient.Transport != original {
		t.Fatalf("nil transport should be ignored")
	}
}

type recordingSink struct {
	remaining []string
}

func (s *recordingSink) UpdateFromHeaders(h http.Header) {
	s.remaining = append(s.remaining, h.Get("X-RateLimit-Remaining"))
}

func TestClientDoReportsQuota(t *testing.T) {
	t.Parallel()

	status := http.StatusOK
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		res := jsonResponse(t, status, map[string]any{})
		res.Header.Set("X-RateLimit-Remaining", "41")
		return res, nil
	})

	sink := &recordingSink{}
	client.SetQuotaSink(sink)

	req, err := client.NewRequest(context.Background(), http.MethodGet, apiPath("content", "1"), nil, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if err := client.Do(req, nil); err != nil {
		t.Fatalf("do: %v", err)
	}

	status = http.StatusServiceUnavailable
	req, err = client.NewRequest(context.Background(), http.MethodGet, apiPath("content", "1"), nil, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if err := client.Do(req, nil); err == nil {
		t.Fatalf("expected error response")
	}

	if len(sink.remaining) != 2 || sink.remaining[0] != "41" || sink.remaining[1] != "41" {
		t.Fatalf("expected quota updates for both responses, got %#v", sink.remaining)
	}
}

func TestParseErrorFallback(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		body       string
		wantText   string
		wantStatus int
	}{
		{"message field", `{"message":"boom"}`, "confluence: 400 boom", 400},
		{"v2 errors", `{"errors":[{"status":404,"title":"not found"}]}`, "confluence: 404 not found", 404},
		{"raw body", "unexpected", "confluence: 502 unexpected", 502},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res := &http.Response{
				StatusCode: tc.wantStatus,
				Body:       io.NopCloser(strings.NewReader(tc.body)),
				Header:     make(http.Header),
			}
			err := parseError(res)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if apiErr.StatusCode != tc.wantStatus {
				t.Fatalf("unexpected status: %d", apiErr.StatusCode)
			}
			if apiErr.Error() != tc.wantText {
				t.Fatalf("unexpected error string: %s", apiErr.Error())
			}
		})
	}
}

func TestAPIPathBuilders(t *testing.T) {
	t.Parallel()

	if got := apiPath("content", "123", "child", "page"); got != "/rest/api/content/123/child/page" {
		t.Fatalf("unexpected v1 path: %s", got)
	}
	if got := apiV2Path("folders", "9"); got != "/api/v2/folders/9" {
		t.Fatalf("unexpected v2 path: %s", got)
	}
}
