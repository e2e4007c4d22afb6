package datamanager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/hashicorp-forge/datamanager/pkg/permission"
	"github.com/hashicorp-forge/datamanager/pkg/traverson"
)

// tokenHolder is the client's mutable access token. It is the TokenSource
// behind the bearer transport.
type tokenHolder struct {
	mu     sync.RWMutex
	token  string
	expiry time.Time
}

func (h *tokenHolder) set(token string, expiry time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token, h.expiry = token, expiry
}

func (h *tokenHolder) get() (string, time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token, h.expiry
}

// Token implements oauth2.TokenSource.
func (h *tokenHolder) Token() (*oauth2.Token, error) {
	token, expiry := h.get()
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}

// bearerTransport adds the bearer header when a token is set and passes
// requests through unchanged otherwise.
type bearerTransport struct {
	tokens *tokenHolder
	base   http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if token, _ := t.tokens.get(); token == "" {
		return t.base.RoundTrip(req)
	}
	return (&oauth2.Transport{Source: t.tokens, Base: t.base}).RoundTrip(req)
}

// tokenExpiry reads the exp claim without verifying the signature; the
// server is the authority on validity.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("error parsing token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, err
	}
	return exp.Time, nil
}

// AnonymousUser is the account created by Register.
type AnonymousUser struct {
	AccountID string    `json:"accountID"`
	Token     string    `json:"jwt"`
	Expiry    time.Time `json:"-"`
}

// Register creates an anonymous user and uses its token for all further
// requests.
func (c *Client) Register(ctx context.Context) (*AnonymousUser, error) {
	q := url.Values{}
	if c.clientID != "" {
		q.Set("clientID", c.clientID)
	}

	res, err := c.traversal().
		Follow(c.rel("_auth/anonymous")).
		With(traverson.WithQuery(q)).
		Post(ctx, nil)
	if err != nil {
		return nil, c.fail(err)
	}
	if res.Resource == nil {
		return nil, c.fail(errors.New("anonymous registration returned no body"))
	}

	user := &AnonymousUser{
		AccountID: res.Resource.StringProperty("accountID"),
		Token:     res.Resource.StringProperty("jwt"),
	}
	if user.Token == "" {
		return nil, c.fail(errors.New("anonymous registration returned no token"))
	}

	if user.Expiry, err = tokenExpiry(user.Token); err != nil {
		c.logger.Warn("could not read token expiry", "error", err)
	}

	c.tokens.set(user.Token, user.Expiry)
	c.logger.Debug("registered anonymous user", "account", user.AccountID,
		"expires", user.Expiry)
	return user, nil
}

// Logout invalidates the token on the server, if it offers a logout
// relation, and forgets it locally.
func (c *Client) Logout(ctx context.Context) error {
	token, _ := c.tokens.get()
	if token == "" {
		return nil
	}

	root, err := c.Resolve(ctx)
	if err != nil {
		return err
	}
	if root.HasLink(c.rel("_auth/logout")) {
		q := url.Values{"token": {token}}
		_, err := c.traversal().
			Follow(c.rel("_auth/logout")).
			With(traverson.WithQuery(q)).
			Post(ctx, nil)
		if err != nil {
			return c.fail(err)
		}
	}

	c.tokens.set("", time.Time{})
	return nil
}

// AccessToken returns the current token and its expiry, if known.
func (c *Client) AccessToken() (string, time.Time) {
	return c.tokens.get()
}

// SetAccessToken replaces the token. The expiry is read from the token.
func (c *Client) SetAccessToken(token string) {
	var expiry time.Time
	if token != "" {
		expiry, _ = tokenExpiry(token)
	}
	c.tokens.set(token, expiry)
}

// Can reports whether the current account holds perm.
func (c *Client) Can(ctx context.Context, perm string) (bool, error) {
	if token, _ := c.tokens.get(); token == "" {
		return false, c.fail(ErrNotAuthenticated)
	}

	account, err := c.traversal().Follow(c.rel("_auth/account")).GetResource(ctx)
	if err != nil {
		return false, c.fail(err)
	}

	raw, _ := account.Property("permissions")
	list, _ := raw.([]any)
	perms := make([]string, 0, len(list))
	for _, p := range list {
		if s, ok := p.(string); ok {
			perms = append(perms, s)
		}
	}
	return permission.New(perms...).Check(perm), nil
}
