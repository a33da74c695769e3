// Package extract holds the per-site strategies that find server candidates
// on a watch page, and the resolvers that turn a candidate into stream links.
package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/mo"

	"linkchain/internal/httputil"
	"linkchain/internal/media"
)

// Fetcher is the subset of *httputil.Fetcher that extractors need.
type Fetcher interface {
	Do(ctx context.Context, r httputil.Request) (*httputil.Response, error)
	JSON(ctx context.Context, r httputil.Request, v any) error
}

// Strategy scans a fetched watch page for server candidates.
//
// Extract may return candidates together with a non-nil error when part of
// the page could not be read; callers keep the candidates and log the error.
// A page without anything to extract yields an empty slice and no error.
type Strategy interface {
	Name() string
	CanHandle(page *url.URL, hostLabel string) bool
	Extract(ctx context.Context, doc *Document) ([]media.Candidate, error)
}

// Resolver finishes a single candidate.
type Resolver interface {
	Name() string
	Hosts() []string
	Resolve(ctx context.Context, sess *Session, c media.Candidate) mo.Result[Outcome]
}

// Outcome is what resolving one candidate produced. Follow holds new
// candidates (e.g. the embed a redirector pointed at) to resolve next.
type Outcome struct {
	Links     []media.StreamLink
	Subtitles []media.Subtitle
	Follow    []media.Candidate
}

// Empty reports whether the outcome carries nothing.
func (o Outcome) Empty() bool {
	return len(o.Links) == 0 && len(o.Subtitles) == 0 && len(o.Follow) == 0
}

// ExtractionError reports that an expected pattern, node or field was missing.
type ExtractionError struct {
	Strategy string
	What     string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Strategy, e.What, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Strategy, e.What)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func missing(strategy, format string, args ...any) error {
	return &ExtractionError{Strategy: strategy, What: fmt.Sprintf(format, args...)}
}

// Document is a fetched watch page. The HTML tree is parsed on first use.
type Document struct {
	Page media.WatchPage
	URL  *url.URL // Final URL after redirects
	Body string

	once sync.Once
	html *goquery.Document
	err  error
}

// NewDocument wraps a fetched body. finalURL may be nil, in which case the page URL is used.
func NewDocument(page media.WatchPage, finalURL *url.URL, body string) *Document {
	if finalURL == nil {
		finalURL, _ = url.Parse(page.URL)
	}
	return &Document{Page: page, URL: finalURL, Body: body}
}

// HTML returns the parsed HTML tree.
func (d *Document) HTML() (*goquery.Document, error) {
	d.once.Do(func() {
		d.html, d.err = goquery.NewDocumentFromReader(strings.NewReader(d.Body))
	})
	return d.html, d.err
}

// Resolve makes ref absolute against the document URL.
func (d *Document) Resolve(ref string) (string, error) {
	return httputil.ResolveReference(d.URL.String(), ref)
}

func matchesHost(page *url.URL, hosts []string) bool {
	if page == nil {
		return false
	}
	h := strings.TrimPrefix(strings.ToLower(page.Hostname()), "www.")
	for _, want := range hosts {
		want = strings.TrimPrefix(strings.ToLower(want), "www.")
		if h == want || strings.HasSuffix(h, "."+want) {
			return true
		}
	}
	return false
}

func xhrHeader(referer string) http.Header {
	h := http.Header{"X-Requested-With": {"XMLHttpRequest"}}
	if referer != "" {
		h["Referer"] = []string{referer}
	}
	return h
}
