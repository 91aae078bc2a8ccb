package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/sitesync/horosafe"
)

// noopValidator allows all URLs (for tests that don't test SSRF).
func noopValidator(_ string) error { return nil }

func newTestFetcher(cfg Config) *Fetcher {
	if cfg.URLValidator == nil {
		cfg.URLValidator = noopValidator
	}
	cfg.RatePerSecond = 1000
	return New(cfg)
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "sitesync/") {
			t.Errorf("user agent: %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte("<h2>FAQ</h2>"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(Config{}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "<h2>FAQ</h2>" {
		t.Fatalf("body: %q", body)
	}
}

func TestFetch_ErrorKinds(t *testing.T) {
	// WHAT: HTTP statuses map to notFound, blocked or upstream kinds.
	// WHY: The failed job message names the kind so admins can act on it.
	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusNotFound, KindNotFound},
		{http.StatusGone, KindNotFound},
		{http.StatusForbidden, KindBlocked},
		{http.StatusTooManyRequests, KindBlocked},
		{http.StatusInternalServerError, KindUpstream},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := newTestFetcher(Config{}).Fetch(context.Background(), srv.URL)
		srv.Close()
		if !IsKind(err, tt.kind) {
			t.Errorf("status %d: got %v, want kind %s", tt.status, err, tt.kind)
		}
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := newTestFetcher(Config{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	if !IsKind(err, KindTimeout) {
		t.Fatalf("got %v, want timeout", err)
	}
}

func TestFetch_SSRFBlocked(t *testing.T) {
	// WHAT: The default validator refuses loopback targets before any request.
	// WHY: Website URLs are tenant input.
	f := New(Config{})
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/faq")
	if !IsKind(err, KindBlocked) || !errors.Is(err, horosafe.ErrSSRF) {
		t.Fatalf("got %v, want blocked SSRF", err)
	}
}

func TestFetch_RedirectBlocked(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("internal"))
	}))
	defer target.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/secret", http.StatusFound)
	}))
	defer srv.Close()

	validator := func(u string) error {
		if strings.Contains(u, "/secret") {
			return horosafe.ErrSSRF
		}
		return nil
	}
	_, err := newTestFetcher(Config{URLValidator: validator}).Fetch(context.Background(), srv.URL)
	if !IsKind(err, KindBlocked) {
		t.Fatalf("got %v, want blocked", err)
	}
}

func TestFetch_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	_, err := newTestFetcher(Config{MaxBytes: 10}).Fetch(context.Background(), srv.URL)
	if !IsKind(err, KindUpstream) || !errors.Is(err, horosafe.ErrTooLarge) {
		t.Fatalf("got %v", err)
	}
}
