package google

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

// Scopes requested at consent. Gmail access is read-only.
var Scopes = []string{
	"openid",
	"email",
	"profile",
	gmail.GmailReadonlyScope,
}

// OAuthConfig returns the OAuth2 configuration for the Google client.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       append([]string(nil), Scopes...),
	}
}

// AuthURL returns the consent URL. It always asks for offline access and
// forces the consent screen so Google issues a refresh token each time.
func AuthURL(conf *oauth2.Config, state string) string {
	return conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for a token.
func Exchange(ctx context.Context, conf *oauth2.Config, code string) (*oauth2.Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return tok, nil
}

// ParseCallback accepts either a bare authorization code or the full URL the
// browser was redirected to, and returns the code and state.
func ParseCallback(input string) (code, state string, err error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", "", fmt.Errorf("empty input")
	}
	if !strings.Contains(input, "://") && !strings.HasPrefix(input, "?") {
		return input, "", nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", "", fmt.Errorf("authorization denied: %s", e)
	}
	code = q.Get("code")
	if code == "" {
		return "", "", fmt.Errorf("redirect URL has no code parameter")
	}
	return code, q.Get("state"), nil
}

// NewHTTPClient returns an HTTP client authorized by ts.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	client := oauth2.NewClient(ctx, ts)
	if transport, ok := client.Transport.(*oauth2.Transport); ok {
		transport.Base = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: false,
		}
	}
	return client
}
