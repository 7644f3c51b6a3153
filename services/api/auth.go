package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
)

// Login exchanges credentials for a token pair. The backend expects an OAuth2 password form, not JSON.
// A 401 here is a credential failure and never triggers a token refresh.
func (c *Client) Login(ctx context.Context, email, password string) (core.Tokens, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var tokens core.Tokens
	req, err := c.newRequest(withoutRefresh(ctx), http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return tokens, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	err = c.doJSON(c.http, req, &tokens)
	return tokens, err
}

// Refresh exchanges a refresh token for a new token pair. It bypasses the bearer & refresh interceptor.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (core.Tokens, error) {
	var tokens core.Tokens
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return tokens, errors.Wrap(err, "encoding body")
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return tokens, err
	}

	err = c.doJSON(c.raw, req, &tokens)
	return tokens, err
}

// Me fetches the identity of the token owner.
func (c *Client) Me(ctx context.Context) (user.User, error) {
	var usr user.User
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return usr, err
	}
	err = c.doJSON(c.http, req, &usr)
	return usr, err
}
