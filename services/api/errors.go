package api

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

const maxErrorBody = 1 << 20

var ErrNoRefreshToken = errors.New("no refresh token")

// APIError is a non-2xx backend response. Detail holds the backend's `detail` message, if any.
// SessionExpired is set when the response ended the session (tokens were cleared).
type APIError struct {
	StatusCode     int
	Detail         string
	SessionExpired bool
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return http.StatusText(e.StatusCode)
}

// ErrorDetail returns the message the backend sent, "" if none.
func (e *APIError) ErrorDetail() string {
	return e.Detail
}

// newAPIError reads (and consumes) the body of a failed response.
func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}
	apiErr.Detail = parseDetail(body)
	return apiErr
}

// parseDetail understands `{"detail": "msg"}`, `{"detail": [{"msg": "..."}, ...]}` and `{"error": "msg"}` payloads.
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if len(payload.Detail) == 0 {
		return payload.Error
	}

	var msg string
	if err := json.Unmarshal(payload.Detail, &msg); err == nil {
		return msg
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(payload.Detail)
}

// StatusCode returns the HTTP status of an *APIError cause, 0 otherwise.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsSessionExpired reports whether err ended the session: refresh failed or the refreshed token was rejected too.
func IsSessionExpired(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.SessionExpired
}
