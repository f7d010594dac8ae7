// README: HTTP client for the dispatch API, used by the driver agent.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"wecare/internal/modules/ride"
	"wecare/internal/types"
)

// Error codes the API puts next to the message of a 409.
const (
	CodeInvalidState = "invalid_state"
	CodeConflict     = "conflict"
)

// ErrorBody is the JSON shape of every non-2xx API response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type ridesResponse struct {
	Rides []ride.Ride `json:"rides"`
}

type statusRequest struct {
	Status  ride.Status `json:"status"`
	ActorID types.ID    `json:"actor_id"`
}

// HTTPBackend turns transport failures into *ride.NetworkError, 5xx into
// *ride.ServerError, 401 into *ride.AuthError and other 4xx into the ride
// sentinels, so callers can tell a
// retryable failure from a rejection with ride.IsRetryable.
type HTTPBackend struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPBackend(baseURL, token string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBackend) ListRides(ctx context.Context, driverID types.ID) ([]ride.Ride, error) {
	var out ridesResponse
	path := "/api/drivers/" + url.PathEscape(string(driverID)) + "/rides"
	if err := b.do(ctx, "list rides", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Rides, nil
}

func (b *HTTPBackend) UpdateStatus(ctx context.Context, rideID types.ID, target ride.Status, actorID types.ID) error {
	path := "/api/rides/" + url.PathEscape(string(rideID)) + "/status"
	return b.do(ctx, "update status", http.MethodPatch, path, statusRequest{Status: target, ActorID: actorID}, nil)
}

func (b *HTTPBackend) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return &ride.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &ride.NetworkError{Op: op, Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &ride.ServerError{Op: op, StatusCode: resp.StatusCode, Message: "malformed body: " + err.Error()}
		}
		return nil
	}
	return statusError(op, resp.StatusCode, raw)
}

func statusError(op string, code int, raw []byte) error {
	var eb ErrorBody
	_ = json.Unmarshal(raw, &eb)
	msg := eb.Error
	if msg == "" {
		msg = http.StatusText(code)
	}
	switch {
	case code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout:
		return &ride.ServerError{Op: op, StatusCode: code, Message: msg}
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ride.ErrNotFound)
	case code == http.StatusUnauthorized || code == http.StatusProxyAuthRequired:
		return &ride.AuthError{Op: op, StatusCode: code, Message: msg}
	case code == http.StatusForbidden:
		return fmt.Errorf("%s: %w: %s", op, ride.ErrForbidden, msg)
	case code == http.StatusConflict && eb.Code == CodeConflict:
		return fmt.Errorf("%s: %w", op, ride.ErrConflict)
	case code == http.StatusConflict:
		return fmt.Errorf("%s: %w: %s", op, ride.ErrInvalidState, msg)
	default:
		return fmt.Errorf("%s: %w: %s", op, ride.ErrBadRequest, msg)
	}
}
