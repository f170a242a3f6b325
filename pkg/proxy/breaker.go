package proxy

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ngoyal88/auditrelay/pkg/config"
)

var errUpstreamStatus = errors.New("upstream returned a server error")

// BreakerTransport trips after consecutive upstream failures (transport
// errors or 5xx responses) and fails fast while open. 5xx responses are still
// handed back to the caller untouched.
type BreakerTransport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerTransport(next http.RoundTripper, cfg config.BreakerConfig) *BreakerTransport {
	threshold := uint32(max(cfg.ConsecutiveFailures, 1))
	openFor := time.Duration(max(cfg.OpenSeconds, 1)) * time.Second

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "upstream",
		Timeout: openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		// A client hanging up says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[PROXY] circuit %s: %s -> %s", name, from, to)
			breakerState.Set(float64(to))
		},
	})
	return &BreakerTransport{next: next, cb: cb}
}

func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out, err := t.cb.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errUpstreamStatus
		}
		return resp, nil
	})
	if resp, ok := out.(*http.Response); ok && resp != nil {
		return resp, nil
	}
	return nil, err
}

// state reports the breaker state.
func (t *BreakerTransport) state() gobreaker.State {
	return t.cb.State()
}
