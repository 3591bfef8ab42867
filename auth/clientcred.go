// Package auth signs and verifies the bearer tokens of API clients and
// obtains OAuth2 client credential tokens for outgoing SMTP.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Conf holds the OAuth2 client credentials used to obtain SMTP XOAUTH2
// access tokens.
type Conf struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes"`
	// Params are extra form values of the token request, e.g. resource.
	Params map[string]string `json:"params"`
}

// Validate checks the fields needed to reach the token endpoint.
func (c Conf) Validate() error {
	if c.TokenURL == "" {
		return errors.New("token_url is required")
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("client_id and client_secret are required")
	}
	return nil
}

// expiryLeeway renews tokens slightly before the server expires them so
// a long SMTP session does not present a stale token.
const expiryLeeway = time.Minute

// ClientCred caches one client credentials token.
type ClientCred struct {
	conf clientcredentials.Config
	now  func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

func NewClientCred(c Conf) *ClientCred {
	params := make(map[string][]string, len(c.Params))
	for k, v := range c.Params {
		params[k] = []string{v}
	}
	return &ClientCred{
		conf: clientcredentials.Config{
			ClientID:       c.ClientID,
			ClientSecret:   c.ClientSecret,
			TokenURL:       c.TokenURL,
			Scopes:         c.Scopes,
			EndpointParams: params,
		},
		now: time.Now,
	}
}

// Token returns the cached access token, requesting a new one when it is
// missing or about to expire.
func (c *ClientCred) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() {
		return c.token.AccessToken, nil
	}
	tok, err := c.conf.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("oauth2 token: %w", err)
	}
	c.token = tok
	return tok.AccessToken, nil
}

// Invalidate drops the cached token. The mailer calls it after the relay
// refused a token.
func (c *ClientCred) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

func (c *ClientCred) fresh() bool {
	if c.token == nil || c.token.AccessToken == "" {
		return false
	}
	if c.token.Expiry.IsZero() {
		return true
	}
	return c.now().Add(expiryLeeway).Before(c.token.Expiry)
}
