package confluence

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIError represents a Confluence REST error response. The v1 API reports a
// top-level message; the v2 API reports an errors array with titled entries.
type APIError struct {
	StatusCode int              `json:"-"`
	Header     http.Header      `json:"-"`
	Message    string           `json:"message"`
	Errors     []apiErrorDetail `json:"errors"`
}

type apiErrorDetail struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Message != "" {
		return fmt.Sprintf("confluence: %d %s", e.StatusCode, e.Message)
	}

	if len(e.Errors) > 0 && e.Errors[0].Title != "" {
		return fmt.Sprintf("confluence: %d %s", e.StatusCode, e.Errors[0].Title)
	}

	return fmt.Sprintf("confluence: %d", e.StatusCode)
}

// HTTPStatus reports the response status code.
func (e *APIError) HTTPStatus() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// HTTPHeader exposes the response headers so throttling hints such as
// Retry-After survive past the response body.
func (e *APIError) HTTPHeader() http.Header {
	if e == nil {
		return nil
	}
	return e.Header
}

func parseError(res *http.Response) error {
	data, _ := io.ReadAll(res.Body)
	errRes := &APIError{StatusCode: res.StatusCode, Header: res.Header.Clone()}
	if len(data) > 0 {
		_ = json.Unmarshal(data, errRes)
	}

	if errRes.Message == "" && len(errRes.Errors) == 0 {
		errRes.Message = string(data)
	}

	return errRes
}
