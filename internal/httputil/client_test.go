package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func newTestFetcher(ts *httptest.Server) *Fetcher {
	logger, _ := test.NewNullLogger()
	return New(Options{Client: ts.Client(), Logger: logger})
}

func TestFetcherGetSetsBrowserHeaders(t *testing.T) {
	var gotUA, gotReferer string
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Write([]byte("<html><body><p id=x>hello</p></body></html>"))
	}))
	defer ts.Close()

	f := newTestFetcher(ts)
	doc, resp, err := f.Document(context.Background(), ts.URL+"/page", "https://ref.example/")
	if err != nil {
		t.Fatalf("Document() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := doc.Find("#x").Text(); got != "hello" {
		t.Errorf("#x text = %q, want %q", got, "hello")
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want default", gotUA)
	}
	if gotReferer != "https://ref.example/" {
		t.Errorf("Referer = %q", gotReferer)
	}
}

func TestFetcherPostForm(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		r.ParseForm()
		w.Write([]byte("token=" + r.PostForm.Get("token")))
	}))
	defer ts.Close()

	f := newTestFetcher(ts)
	resp, err := f.PostForm(context.Background(), ts.URL, "", url.Values{"token": {"abc"}})
	if err != nil {
		t.Fatalf("PostForm() error: %v", err)
	}
	if resp.Body != "token=abc" {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestFetcherHeaderOverride(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("User-Agent") + "|" + r.Header.Get("X-Requested-With")))
	}))
	defer ts.Close()

	f := newTestFetcher(ts)
	resp, err := f.Do(context.Background(), Request{
		URL: ts.URL,
		Header: http.Header{
			"User-Agent":       {"custom/1.0"},
			"X-Requested-With": {"XMLHttpRequest"},
		},
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if resp.Body != "custom/1.0|XMLHttpRequest" {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestFetcherErrors(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/cf":
			w.Header().Set("cf-mitigated", "challenge")
			w.WriteHeader(http.StatusForbidden)
		case "/guard":
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("<title>Just a moment...</title>"))
		}
	}))
	defer ts.Close()

	tests := []struct {
		name          string
		url           string
		wantStatus    int
		wantChallenge bool
	}{
		{"not found", ts.URL + "/missing", http.StatusNotFound, false},
		{"cloudflare header", ts.URL + "/cf", http.StatusForbidden, true},
		{"challenge page", ts.URL + "/guard", http.StatusServiceUnavailable, true},
		{"plain http refused", strings.Replace(ts.URL, "https://", "http://", 1), 0, false},
	}

	f := newTestFetcher(ts)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Get(context.Background(), tt.url, "")
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("Get(%q) error = %v, want *FetchError", tt.url, err)
			}
			if fe.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", fe.StatusCode, tt.wantStatus)
			}
			if fe.Challenge != tt.wantChallenge {
				t.Errorf("Challenge = %v, want %v", fe.Challenge, tt.wantChallenge)
			}
		})
	}
}

func TestFetcherTimeout(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()

	f := newTestFetcher(ts)
	_, err := f.Do(context.Background(), Request{URL: ts.URL, Timeout: 50 * time.Millisecond})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if !fe.Timeout() {
		t.Errorf("Timeout() = false for %v", fe)
	}
}

func TestFetcherSessionJar(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "42", Path: "/"})
			return
		}
		c, err := r.Cookie("sid")
		if err != nil {
			w.Write([]byte("none"))
			return
		}
		w.Write([]byte(c.Value))
	}))
	defer ts.Close()

	f := newTestFetcher(ts)
	jar := NewJar()
	ctx := context.Background()
	if _, err := f.Do(ctx, Request{URL: ts.URL + "/set", Jar: jar}); err != nil {
		t.Fatalf("set cookie: %v", err)
	}
	resp, err := f.Do(ctx, Request{URL: ts.URL + "/get", Jar: jar})
	if err != nil {
		t.Fatalf("get cookie: %v", err)
	}
	if resp.Body != "42" {
		t.Errorf("cookie with jar = %q, want 42", resp.Body)
	}

	// Without the jar nothing is carried over.
	resp, err = f.Get(ctx, ts.URL+"/get", "")
	if err != nil {
		t.Fatalf("get without jar: %v", err)
	}
	if resp.Body != "none" {
		t.Errorf("cookie without jar = %q, want none", resp.Body)
	}
}

func TestFetcherInterceptor(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("X-Solved")))
	}))
	defer ts.Close()

	logger, _ := test.NewNullLogger()
	f := New(Options{
		Client: ts.Client(),
		Logger: logger,
		Interceptor: func(next http.RoundTripper) http.RoundTripper {
			return roundTripFunc(func(r *http.Request) (*http.Response, error) {
				r.Header.Set("X-Solved", "yes")
				return next.RoundTrip(r)
			})
		},
	})

	resp, err := f.Get(context.Background(), ts.URL, "")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.Body != "yes" {
		t.Errorf("interceptor header not applied, body = %q", resp.Body)
	}
}

func TestFetcherJSON(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Write([]byte(`{"link":"https://megacloud.tv/embed-2/e-1/abc"}`))
	}))
	defer ts.Close()

	var out struct {
		Link string `json:"link"`
	}
	f := newTestFetcher(ts)
	if err := f.JSON(context.Background(), Request{URL: ts.URL}, &out); err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	if out.Link != "https://megacloud.tv/embed-2/e-1/abc" {
		t.Errorf("link = %q", out.Link)
	}
}

func TestHostLimiterNil(t *testing.T) {
	var h *hostLimiter
	if err := h.wait(context.Background(), "https://a.com"); err != nil {
		t.Errorf("nil limiter wait() = %v", err)
	}
	if newHostLimiter(0, 5) != nil {
		t.Error("newHostLimiter(0) should disable limiting")
	}
}

func TestHostLimiterCancelled(t *testing.T) {
	h := newHostLimiter(0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())
	// Drain the single burst token, then the next wait must honor cancellation.
	if err := h.wait(ctx, "https://a.com/x"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	cancel()
	if err := h.wait(ctx, "https://a.com/y"); err == nil {
		t.Error("wait() after cancel should fail")
	}
	// Other hosts have their own bucket.
	if err := h.wait(context.Background(), "https://b.com/"); err != nil {
		t.Errorf("other host wait: %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
