package extract

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"linkchain/internal/httputil"
)

// Session is scoped to one resolve call. It carries the cookie jar shared
// by every hop and a small memo for values such as decryption keys.
type Session struct {
	fetcher Fetcher
	jar     http.CookieJar
	ttl     time.Duration
	now     func() time.Time

	mu   sync.Mutex
	memo map[string]*memoEntry
}

type memoEntry struct {
	mu    sync.Mutex
	value string
	at    time.Time
	ok    bool
}

// NewSession starts a session. A ttl of zero keeps memoized values for the
// whole session.
func NewSession(f Fetcher, ttl time.Duration) *Session {
	return &Session{
		fetcher: f,
		jar:     httputil.NewJar(),
		ttl:     ttl,
		now:     time.Now,
		memo:    make(map[string]*memoEntry),
	}
}

// Do sends r through the session's cookie jar.
func (s *Session) Do(ctx context.Context, r httputil.Request) (*httputil.Response, error) {
	r.Jar = s.jar
	return s.fetcher.Do(ctx, r)
}

// Get fetches rawURL with the session cookies.
func (s *Session) Get(ctx context.Context, rawURL, referer string) (*httputil.Response, error) {
	var h http.Header
	if referer != "" {
		h = http.Header{"Referer": {referer}}
	}
	return s.Do(ctx, httputil.Request{URL: rawURL, Header: h})
}

// PostForm submits form with the session cookies.
func (s *Session) PostForm(ctx context.Context, rawURL, referer string, form url.Values) (*httputil.Response, error) {
	var h http.Header
	if referer != "" {
		h = http.Header{"Referer": {referer}}
	}
	return s.Do(ctx, httputil.Request{Method: http.MethodPost, URL: rawURL, Header: h, Form: form})
}

// JSON decodes a JSON response with the session cookies.
func (s *Session) JSON(ctx context.Context, r httputil.Request, v any) error {
	r.Jar = s.jar
	return s.fetcher.JSON(ctx, r, v)
}

// Ensure returns the memoized value for key, calling fill when it is
// missing or older than the session TTL. Concurrent callers for the same
// key wait for a single fill. Errors are not memoized.
func (s *Session) Ensure(ctx context.Context, key string, fill func(context.Context) (string, error)) (string, error) {
	s.mu.Lock()
	e, ok := s.memo[key]
	if !ok {
		e = &memoEntry{}
		s.memo[key] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ok && (s.ttl <= 0 || s.now().Sub(e.at) < s.ttl) {
		return e.value, nil
	}

	v, err := fill(ctx)
	if err != nil {
		return "", err
	}
	e.value, e.at, e.ok = v, s.now(), true
	return v, nil
}

// Invalidate drops the memoized value for key, e.g. after a stale key
// failed to decrypt.
func (s *Session) Invalidate(key string) {
	s.mu.Lock()
	e, ok := s.memo[key]
	s.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.ok = false
	e.mu.Unlock()
}
