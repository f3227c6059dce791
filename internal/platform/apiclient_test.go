package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/kapu/top-music-bot-go/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func newTestClient(srv *httptest.Server) *APIClient {
	c := NewAPIClient("test", srv.Client(), zap.NewNop())
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	c.sleep = func(time.Duration) {}
	return c
}

func TestAPIClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("Authorization") != "Bearer t" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":"ok"}`))
	}))
	defer srv.Close()

	req, err := JSONRequest(http.MethodPost, srv.URL, map[string]string{"a": "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req.Header.Set("Authorization", "Bearer t")

	var out struct {
		ID string `json:"id"`
	}
	if err := newTestClient(srv).DoJSON(context.Background(), req, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ID != "ok" || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("unexpected result %+v after %d calls", out, calls)
	}
}

func TestAPIClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"forbidden"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	var apiErr *apperrors.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 APIError, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}
