package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/masomo-portal/core"
)

type ctxKey int

const (
	retriedKey ctxKey = iota
	noRefreshKey
)

type (
	Options struct {
		BaseURL   string        // e.g. http://localhost:8000/api/v1
		Timeout   time.Duration // per request, 0 means none
		Transport http.RoundTripper
		Logger    core.Logger

		// OnSessionExpired is called once the tokens have been cleared because the session could not be renewed.
		OnSessionExpired func(ctx context.Context)
	}

	// Client calls the backend on behalf of the owner of storage.
	// Every request carries the stored access token; a 401 triggers one token refresh and one retry.
	Client struct {
		opts    Options
		storage core.Storage
		http    *http.Client
		raw     *http.Client // no bearer, no refresh
		group   singleflight.Group
	}

	authTransport struct {
		client *Client
		base   http.RoundTripper
	}
)

func New(storage core.Storage, opts Options) *Client {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	c := &Client{opts: opts, storage: storage}
	c.http = &http.Client{Transport: &authTransport{client: c, base: base}, Timeout: opts.Timeout}
	c.raw = &http.Client{Transport: base, Timeout: opts.Timeout}
	return c
}

// NewFromConfig builds a client for the configured backend.
func NewFromConfig(conf *core.Config, storage core.Storage, logger core.Logger, onExpired func(ctx context.Context)) *Client {
	return New(storage, Options{
		BaseURL:          conf.API.BaseURL(),
		Timeout:          conf.API.Timeout,
		Logger:           logger,
		OnSessionExpired: onExpired,
	})
}

// withoutRefresh marks requests whose 401 means "bad credentials" rather than "expired token".
func withoutRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRefreshKey, true)
}

func skipsRefresh(ctx context.Context) bool {
	skip, _ := ctx.Value(noRefreshKey).(bool)
	return skip
}

func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey).(bool)
	return retried
}

func (c *Client) url(path string) string {
	return c.opts.BaseURL + path
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) send(hc *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("%s %s", req.Method, req.URL.Path))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		apiErr := newAPIError(resp)
		if hc == c.http && resp.StatusCode == http.StatusUnauthorized && !skipsRefresh(req.Context()) {
			token, _ := core.GetToken(req.Context(), c.storage, core.AccessTokenKey)
			apiErr.SessionExpired = token == ""
		}
		return nil, apiErr
	}
	return resp, nil
}

// doJSON sends req and decodes the JSON response into v (if not nil).
func (c *Client) doJSON(hc *http.Client, req *http.Request, v interface{}) error {
	resp, err := c.send(hc, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if v == nil {
		_, _ = io.Copy(ioutil.Discard, resp.Body)
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}

// doBlob sends req and returns the raw response body.
func (c *Client) doBlob(req *http.Request) ([]byte, error) {
	resp, err := c.send(c.http, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}
	return data, nil
}

// refresh exchanges the stored refresh token for a new pair. Concurrent callers share one exchange.
func (c *Client) refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		refreshToken, err := core.GetToken(ctx, c.storage, core.RefreshTokenKey)
		if err != nil {
			return nil, errors.Wrap(err, "reading refresh token")
		}
		if refreshToken == "" {
			return nil, ErrNoRefreshToken
		}
		tokens, err := c.Refresh(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		return nil, errors.Wrap(core.StoreTokens(ctx, c.storage, tokens), "storing tokens")
	})
	return err
}

func (c *Client) expireSession(ctx context.Context, cause error) {
	if c.opts.Logger != nil {
		c.opts.Logger.Debug("session expired", cause)
	}
	if err := core.ClearTokens(ctx, c.storage); err != nil && c.opts.Logger != nil {
		c.opts.Logger.Error("clearing tokens", errors.Wrap(err, "clearing tokens"))
	}
	if c.opts.OnSessionExpired != nil {
		c.opts.OnSessionExpired(ctx)
	}
}

func (t *authTransport) authorize(req *http.Request) (*http.Request, error) {
	token, err := core.GetToken(req.Context(), t.client.storage, core.AccessTokenKey)
	if err != nil {
		return nil, errors.Wrap(err, "reading access token")
	}
	req = req.Clone(req.Context())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// rewind returns a copy of req, with a fresh body, to be sent again under ctx.
func rewind(ctx context.Context, req *http.Request) (*http.Request, error) {
	retry := req.Clone(ctx)
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, errors.New("request body can't be replayed")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, errors.Wrap(err, "replaying request body")
		}
		retry.Body = body
	}
	return retry, nil
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	authReq, err := t.authorize(req)
	if err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(authReq)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || skipsRefresh(ctx) {
		return resp, err
	}
	if isRetried(ctx) {
		t.client.expireSession(ctx, errors.New("refreshed token rejected"))
		return resp, nil
	}

	retry, err := rewind(context.WithValue(ctx, retriedKey, true), req)
	if err != nil {
		return resp, nil
	}
	if err = t.client.refresh(ctx); err != nil {
		t.client.expireSession(ctx, errors.Wrap(err, "refreshing token"))
		return resp, nil
	}

	_, _ = io.Copy(ioutil.Discard, resp.Body)
	_ = resp.Body.Close()
	return t.RoundTrip(retry)
}
