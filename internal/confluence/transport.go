package confluence

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"

	"github.com/phoorichet/confluence-sync-sub002/internal/config"
)

// authTransport injects Confluence authentication headers into outbound requests.
type authTransport struct {
	base    http.RoundTripper
	header  string
	once    sync.Once
	initErr error
	creds   config.ServiceCredentials
}

func newAuthTransport(base http.RoundTripper, creds config.ServiceCredentials) *authTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{base: base, creds: creds}
}

// RoundTrip implements http.RoundTripper.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.initialize(); err != nil {
		return nil, err
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", t.header)
	clone.Header.Set("Accept", "application/json")
	return t.base.RoundTrip(clone)
}

func (t *authTransport) initialize() error {
	t.once.Do(func() {
		switch {
		case t.creds.OAuthToken != "":
			t.header = fmt.Sprintf("Bearer %s", t.creds.OAuthToken)
		case t.creds.Email != "" && t.creds.APIToken != "":
			token := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", t.creds.Email, t.creds.APIToken)))
			t.header = fmt.Sprintf("Basic %s", token)
		default:
			t.initErr = fmt.Errorf("confluence: insufficient credentials")
		}
	})
	return t.initErr
}
