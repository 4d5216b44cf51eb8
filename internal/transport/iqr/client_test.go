package iqr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/imagespace/iqrproxy/internal/domain"
	domresults "github.com/imagespace/iqrproxy/internal/domain/results"
	domsession "github.com/imagespace/iqrproxy/internal/domain/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func window(t *testing.T, offset, limit int) domresults.Window {
	t.Helper()
	w, err := domresults.NewWindow(&offset, &limit, 0, 0)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	return w
}

func TestNew_InvalidBaseURL(t *testing.T) {
	if _, err := New(Config{BaseURL: "ftp://iqr"}); err == nil {
		t.Fatal("expected error for non-http base url")
	}
}

func TestCreateSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/session" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"sid":"abc-123"}`))
	}, Config{})

	sid, err := c.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid != "abc-123" {
		t.Errorf("sid = %q, want abc-123", sid)
	}
}

func TestCreateSession_MissingSID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"session":"abc"}`))
	}, Config{})

	_, err := c.CreateSession(context.Background())
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestRefine_SendsForm(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/refine" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if got := r.PostForm.Get("sid"); got != "s1" {
			t.Errorf("sid = %q", got)
		}
		if got := r.PostForm.Get("pos_uuids"); got != `["a","b"]` {
			t.Errorf("pos_uuids = %q", got)
		}
		if got := r.PostForm.Get("neg_uuids"); got != `[]` {
			t.Errorf("neg_uuids = %q", got)
		}
		_, _ = w.Write([]byte(`{"sid":"s1","success":true}`))
	}, Config{})

	req, err := domsession.NewRefineRequest("s1", []string{"a", "b"}, []string{})
	if err != nil {
		t.Fatalf("NewRefineRequest: %v", err)
	}
	raw, err := c.Refine(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("raw response is not JSON: %v", err)
	}
	if body["success"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestRefine_InvalidJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}, Config{})

	req, _ := domsession.NewRefineRequest("s1", []string{}, []string{})
	if _, err := c.Refine(context.Background(), req); !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestResults_SendsWindow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_results" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("sid") != "s1" || q.Get("i") != "40" || q.Get("j") != "50" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(`{"total_results": 3, "results": [["aaa", 0.9], ["bbb", 0.9], ["ccc", 0.1]]}`))
	}, Config{})

	page, err := c.Results(context.Background(), "s1", window(t, 40, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 3 || len(page.Hits) != 3 {
		t.Fatalf("page = %+v", page)
	}
	if page.Hits[2].Checksum() != "ccc" || page.Hits[2].Confidence() != 0.1 {
		t.Errorf("hit[2] = (%q, %v)", page.Hits[2].Checksum(), page.Hits[2].Confidence())
	}
}

func TestResults_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing total", `{"results": []}`},
		{"missing results", `{"total_results": 0}`},
		{"not json", `nope`},
		{"bad tuple", `{"total_results": 1, "results": [["aaa"]]}`},
		{"string confidence", `{"total_results": 1, "results": [["aaa", "high"]]}`},
		{"empty checksum", `{"total_results": 1, "results": [["", 0.5]]}`},
		{"null confidence", `{"total_results": 2, "results": [["aaa", null], ["bbb", 0.5]]}`},
		{"null checksum", `{"total_results": 1, "results": [[null, 0.5]]}`},
		{"null entry", `{"total_results": 1, "results": [null]}`},
		{"null total", `{"total_results": null, "results": []}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}, Config{})

			_, err := c.Results(context.Background(), "s1", window(t, 0, 20))
			if !errors.Is(err, domain.ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
		})
	}
}

func TestResults_Non2xx(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown session", http.StatusNotFound)
	}, Config{RetryAttempts: 3})

	_, err := c.Results(context.Background(), "s1", window(t, 0, 20))
	var ue *domain.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if ue.Status != http.StatusNotFound || ue.Op != OpResults {
		t.Errorf("error = %+v", ue)
	}
}

func TestResults_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"total_results": 0, "results": []}`))
	}, Config{RetryAttempts: 3})

	if _, err := c.Results(context.Background(), "s1", window(t, 0, 20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestResults_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, Config{RetryAttempts: 3})

	if _, err := c.Results(context.Background(), "s1", window(t, 0, 20)); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestResults_NoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, Config{})

	if _, err := c.Results(context.Background(), "s1", window(t, 0, 20)); !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestResults_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}, Config{Timeout: 20 * time.Millisecond})

	_, err := c.Results(context.Background(), "s1", window(t, 0, 20))
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestResults_CanceledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total_results": 0, "results": []}`))
	}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Results(ctx, "s1", window(t, 0, 20)); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestRateLimit_WaitsForToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sid":"x"}`))
	}, Config{RateLimit: 1, RateBurst: 1})

	if _, err := c.CreateSession(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.CreateSession(ctx)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestPing(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}, Config{})

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("expected reachable service, got %v", err)
	}

	status.Store(http.StatusInternalServerError)
	if err := c.Ping(context.Background()); !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}
