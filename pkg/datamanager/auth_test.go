package datamanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndCan(t *testing.T) {
	f := newFakeDM(t)
	c := f.client(t, func(cfg *Config) { cfg.ClientID = "my-client" })
	ctx := context.Background()

	_, err := c.Can(ctx, "dm-entry:58b9a1f5:to-do-list:read")
	require.ErrorIs(t, err, ErrNotAuthenticated)

	user, err := c.Register(ctx)
	require.NoError(t, err)
	assert.Equal(t, "anon-account", user.AccountID)
	require.NotEmpty(t, user.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), user.Expiry, time.Minute)

	token, expiry := c.AccessToken()
	assert.Equal(t, user.Token, token)
	assert.Equal(t, user.Expiry, expiry)

	tests := []struct {
		perm string
		want bool
	}{
		{"dm-entry:58b9a1f5:to-do-list:read", true},
		{"dm-entry:58b9a1f5:to-do-list:read,update", true},
		{"dm-entry:58b9a1f5:to-do-list:delete", false},
		{"dm-entry:58b9a1f5:other:read", false},
	}
	for _, tt := range tests {
		t.Run(tt.perm, func(t *testing.T) {
			ok, err := c.Can(ctx, tt.perm)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	f.mu.Lock()
	headers := append([]string(nil), f.authHeaders...)
	f.mu.Unlock()
	require.NotEmpty(t, headers)
	for _, h := range headers {
		assert.Equal(t, "Bearer "+user.Token, h)
	}

	require.NoError(t, c.Logout(ctx))
	token, _ = c.AccessToken()
	assert.Empty(t, token)

	_, err = c.Can(ctx, "dm-entry:58b9a1f5:to-do-list:read")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestAccessTokenFromConfig(t *testing.T) {
	f := newFakeDM(t)
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	token := f.issueToken(t, exp)

	c := f.client(t, func(cfg *Config) { cfg.AccessToken = token })
	got, expiry := c.AccessToken()
	assert.Equal(t, token, got)
	assert.True(t, exp.Equal(expiry))

	f.mu.Lock()
	f.token = token
	f.mu.Unlock()

	ok, err := c.Can(context.Background(), "dm-entry:58b9a1f5:to-do-list:update")
	require.NoError(t, err)
	assert.True(t, ok)

	c.SetAccessToken("not-a-jwt")
	got, expiry = c.AccessToken()
	assert.Equal(t, "not-a-jwt", got)
	assert.True(t, expiry.IsZero())

	_, err = c.Can(context.Background(), "dm-entry:58b9a1f5:to-do-list:update")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
}

func TestTokenExpiry(t *testing.T) {
	_, err := tokenExpiry("garbage")
	assert.Error(t, err)
}
