package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/agentstation/itemtype/pkg/constants"
	"github.com/agentstation/itemtype/pkg/errors"
)

// Authenticator applies authentication to HTTP requests.
type Authenticator interface {
	Apply(ctx context.Context, req *http.Request) error
}

// NoAuth implements no authentication.
type NoAuth struct{}

// Apply implements the Authenticator interface for NoAuth.
func (a *NoAuth) Apply(_ context.Context, _ *http.Request) error {
	return nil
}

// BasicAuth implements HTTP basic authentication with a user name and password.
type BasicAuth struct {
	Username string
	Password string
}

// Apply implements the Authenticator interface for BasicAuth.
func (a *BasicAuth) Apply(_ context.Context, req *http.Request) error {
	req.SetBasicAuth(a.Username, a.Password)
	return nil
}

// BearerAuth sets a Bearer token. ClientCredentials applies its access
// token through it.
type BearerAuth struct {
	Token string
}

// Apply implements the Authenticator interface for BearerAuth.
func (a *BearerAuth) Apply(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.Token)
	return nil
}

// ClientCredentials implements the OAuth client-credentials grant. The token
// is fetched on first use and reused until shortly before it expires.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTP         *http.Client

	// Now is the clock; nil means time.Now.
	Now func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// tokenResponse is the OAuth token endpoint payload.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Apply implements the Authenticator interface for ClientCredentials.
func (a *ClientCredentials) Apply(ctx context.Context, req *http.Request) error {
	token, err := a.Token(ctx)
	if err != nil {
		return err
	}
	return (&BearerAuth{Token: token}).Apply(ctx, req)
}

// Token returns a valid access token, requesting a new one when needed.
func (a *ClientCredentials) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.token != "" && now.Before(a.expiry) {
		return a.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.WrapResource("create", "request", "POST "+a.TokenURL, err)
	}
	req.SetBasicAuth(a.ClientID, a.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	client := a.HTTP
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", errors.NewAuthenticationError(ServiceName, "oauth", "token request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.WrapIO("read", "token response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.NewAuthenticationError(ServiceName, "oauth", truncate(string(body)),
			errors.NewAPIError(ServiceName, resp.StatusCode, resp.Status))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", errors.WrapParse("json", "token response", err)
	}
	if tok.AccessToken == "" {
		return "", errors.NewAuthenticationError(ServiceName, "oauth", "token response has no access_token", nil)
	}

	a.token = tok.AccessToken
	lifetime := time.Duration(tok.ExpiresIn)*time.Second - constants.TokenExpiryMargin
	if lifetime < 0 {
		lifetime = 0
	}
	a.expiry = now.Add(lifetime)
	return a.token, nil
}

func (a *ClientCredentials) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
