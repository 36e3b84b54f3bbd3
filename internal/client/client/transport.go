package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// RequestIDHeaderName correlates client log lines with backend ones.
const RequestIDHeaderName = "X-Request-ID"

// errUpstreamStatus marks a 5xx so the breaker counts it as a failure while
// the response itself still reaches the caller.
var errUpstreamStatus = errors.New("upstream status")

// authTransport attaches the stored credential and a request id to every
// outbound request.
type authTransport struct {
	next   http.RoundTripper
	tokens TokenSource
	scheme string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())

	if req.Header.Get(RequestIDHeaderName) == "" {
		req.Header.Set(RequestIDHeaderName, uuid.NewString())
	}

	if t.tokens != nil {
		token, err := t.tokens.Token(req.Context())
		if err != nil {
			return nil, fmt.Errorf("read credential: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", t.scheme+" "+token)
		}
	}

	return t.next.RoundTrip(req)
}

// breakerTransport fails fast once the backend keeps failing.
type breakerTransport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.cb.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errUpstreamStatus
		}
		return resp, nil
	})

	resp, _ := res.(*http.Response)
	if errors.Is(err, errUpstreamStatus) {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// unauthorizedTransport is the outermost layer: every 401, whichever call
// produced it, is published before the response is handed back.
type unauthorizedTransport struct {
	next   http.RoundTripper
	events *notifier
}

func (t *unauthorizedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		t.events.emit(req.Context())
	}
	return resp, nil
}
