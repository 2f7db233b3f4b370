package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func ok(context.Context) error { return nil }

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	New().Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := decode(t, rec); body.Status != "ok" || body.Checks != nil {
		t.Errorf("body = %+v", body)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{},
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "artwork", Check: ok}, {Name: "ledger", Check: ok}},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{"artwork": "ok", "ledger": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "artwork", Check: func(context.Context) error { return errors.New("circuit open for cdn.example") }},
				{Name: "ledger", Check: ok},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{"artwork": "fail: circuit open for cdn.example", "ledger": "ok"},
		},
		{
			name: "all fail",
			checkers: []Checker{
				{Name: "artwork", Check: func(context.Context) error { return errors.New("a") }},
				{Name: "ledger", Check: func(context.Context) error { return errors.New("b") }},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{"artwork": "fail: a", "ledger": "fail: b"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			New(tc.checkers...).Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			body := decode(t, rec)
			if body.Status != tc.wantBody {
				t.Errorf("status field = %q, want %q", body.Status, tc.wantBody)
			}
			if len(body.Checks) != len(tc.wantChecks) {
				t.Errorf("checks = %v, want %v", body.Checks, tc.wantChecks)
			}
			for k, v := range tc.wantChecks {
				if body.Checks[k] != v {
					t.Errorf("checks[%q] = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestReadyz_RunsCheckersConcurrently(t *testing.T) {
	t.Parallel()

	var running atomic.Int32
	both := make(chan struct{})
	slow := func(ctx context.Context) error {
		if running.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec := httptest.NewRecorder()
	New(Checker{Name: "a", Check: slow}, Checker{Name: "b", Check: slow}).
		Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d; checkers did not overlap", rec.Code, http.StatusOK)
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New(Checker{Name: "artwork", Check: ok}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}
