package registry

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AuthConf holds the client-credentials settings used to authenticate
// against the common-reference operator.
type AuthConf struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AuthURL      string `json:"auth_url"`
}

func (c *AuthConf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.AuthURL,
	}
}

// clientCred caches a client-credentials token and refreshes it when it
// expires.
type clientCred struct {
	conf  clientcredentials.Config
	token *oauth2.Token
}

func newClientCred(conf AuthConf) *clientCred {
	return &clientCred{conf: conf.toOauth2Config()}
}

func (c *clientCred) getToken(ctx context.Context) error {
	var err error
	c.token, err = c.conf.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}
	return nil
}

// setAuthHeader puts a valid bearer token on the request, fetching a
// fresh one when the cached token expired.
func (c *clientCred) setAuthHeader(r *http.Request) error {
	if c.token != nil && c.token.Valid() {
		c.token.SetAuthHeader(r)
		return nil
	}
	if err := c.getToken(r.Context()); err != nil {
		return err
	}
	c.token.SetAuthHeader(r)
	return nil
}
