// Package httputil provides the hardened Fetcher used by every resolver, plus input sanitization utilities.
package httputil

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

const (
	// DefaultUserAgent is presented unless a request or config overrides it.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0"

	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 30 * time.Second

	maxBodySize = 10 * 1024 * 1024 // 10MB limit
)

// Interceptor wraps the transport, e.g. with an anti-bot challenge solver.
type Interceptor func(next http.RoundTripper) http.RoundTripper

// Options configures a Fetcher.
type Options struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64 // Per host; 0 disables limiting
	Burst             int
	ImpersonateTLS    bool // Chrome TLS fingerprint with h2 and h1 fallback
	AllowHTTP         bool
	Interceptor       Interceptor
	Client            *http.Client // Replaces the built-in client (tests)
	Logger            logrus.FieldLogger
}

// Request describes one outbound call.
type Request struct {
	Method  string // GET when empty
	URL     string
	Header  http.Header
	Form    url.Values // Form-encoded POST body
	Body    string     // Raw POST body, used when Form is nil
	Cookies []*http.Cookie
	Jar     http.CookieJar
	Timeout time.Duration
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Body       string
	Header     http.Header
	Cookies    []*http.Cookie
	URL        *url.URL // Final URL after redirects
}

// Fetcher performs outbound HTTP(S) requests with browser-like defaults.
// It is safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	userAgent string
	allowHTTP bool
	limits    *hostLimiter
	log       logrus.FieldLogger
}

// NewClient creates a hardened HTTP client with secure defaults.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        32,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 8,
		},
	}
}

// New builds a Fetcher from opts.
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = NewClient(opts.Timeout)
		if opts.ImpersonateTLS {
			client.Transport = newFingerprintTransport(client.Timeout)
		}
	} else {
		// Never mutate a caller-owned client.
		c := *client
		client = &c
	}
	if opts.Interceptor != nil {
		next := client.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		client.Transport = opts.Interceptor(next)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Fetcher{
		client:    client,
		userAgent: ua,
		allowHTTP: opts.AllowHTTP,
		limits:    newHostLimiter(opts.RequestsPerSecond, opts.Burst),
		log:       logger,
	}
}

// NewJar returns an empty cookie jar for one resolve session.
func NewJar() http.CookieJar {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New never fails with a non-nil options value.
		panic(fmt.Sprintf("creating cookie jar: %v", err))
	}
	return jar
}

// Do sends r and reads the whole body. Failures are returned as *FetchError.
func (f *Fetcher) Do(ctx context.Context, r Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var err error
	if f.allowHTTP {
		err = ValidateHTTPURL(r.URL)
	} else {
		err = ValidateURL(r.URL)
	}
	if err != nil {
		return nil, &FetchError{URL: r.URL, Err: fmt.Errorf("invalid URL: %w", err)}
	}

	if err := f.limits.wait(ctx, r.URL); err != nil {
		return nil, &FetchError{URL: r.URL, Err: err}
	}

	req, err := f.newRequest(ctx, method, r)
	if err != nil {
		return nil, &FetchError{URL: r.URL, Err: err}
	}

	client := f.client
	if r.Jar != nil || r.Timeout > 0 {
		c := *f.client
		if r.Jar != nil {
			c.Jar = r.Jar
		}
		if r.Timeout > 0 {
			c.Timeout = r.Timeout
		}
		client = &c
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: r.URL, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{URL: r.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	f.log.WithFields(logrus.Fields{
		"method":   method,
		"url":      r.URL,
		"status":   resp.StatusCode,
		"bytes":    len(body),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("fetched")

	out := &Response{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Header:     resp.Header,
		Cookies:    resp.Cookies(),
		URL:        resp.Request.URL,
	}

	if isChallenge(resp.StatusCode, resp.Header, out.Body) {
		return out, &FetchError{URL: r.URL, StatusCode: resp.StatusCode, Challenge: true}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &FetchError{URL: r.URL, StatusCode: resp.StatusCode}
	}
	return out, nil
}

func (f *Fetcher) newRequest(ctx context.Context, method string, r Request) (*http.Request, error) {
	var body io.Reader
	contentType := ""
	switch {
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.Body != "":
		body = strings.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range r.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for _, c := range r.Cookies {
		req.AddCookie(c)
	}
	return req, nil
}

// Get performs a GET request, presenting referer when non-empty.
func (f *Fetcher) Get(ctx context.Context, rawURL, referer string) (*Response, error) {
	return f.Do(ctx, Request{URL: rawURL, Header: refererHeader(referer)})
}

// PostForm submits form as an application/x-www-form-urlencoded POST.
func (f *Fetcher) PostForm(ctx context.Context, rawURL, referer string, form url.Values) (*Response, error) {
	if form == nil {
		form = url.Values{}
	}
	return f.Do(ctx, Request{Method: http.MethodPost, URL: rawURL, Header: refererHeader(referer), Form: form})
}

// Document fetches rawURL and parses it as HTML.
func (f *Fetcher) Document(ctx context.Context, rawURL, referer string) (*goquery.Document, *Response, error) {
	resp, err := f.Get(ctx, rawURL, referer)
	if err != nil {
		return nil, resp, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Body))
	if err != nil {
		return nil, resp, fmt.Errorf("parsing HTML from %s: %w", rawURL, err)
	}
	return doc, resp, nil
}

// JSON sends r with a JSON accept header and decodes the body into v.
func (f *Fetcher) JSON(ctx context.Context, r Request, v any) error {
	if r.Header == nil {
		r.Header = http.Header{}
	} else {
		r.Header = r.Header.Clone()
	}
	if r.Header.Get("Accept") == "" {
		r.Header.Set("Accept", "application/json")
	}

	resp, err := f.Do(ctx, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(resp.Body), v); err != nil {
		return fmt.Errorf("decoding JSON from %s: %w", r.URL, err)
	}
	return nil
}

func refererHeader(referer string) http.Header {
	if referer == "" {
		return nil
	}
	return http.Header{"Referer": []string{referer}}
}
