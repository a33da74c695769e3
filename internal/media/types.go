// Package media defines shared types for the linkchain resolver.
package media

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
)

// Kind represents how a stream is delivered.
type Kind int

const (
	Progressive Kind = iota
	HLS
	DASH
)

func (k Kind) String() string {
	switch k {
	case Progressive:
		return "progressive"
	case HLS:
		return "hls"
	case DASH:
		return "dash"
	default:
		return "unknown"
	}
}

// Segmented reports whether the stream needs a playlist manifest.
func (k Kind) Segmented() bool {
	return k == HLS || k == DASH
}

// MarshalText lets Kind render as its name in JSON output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// KindFromURL classifies a stream URL by its media extension.
func KindFromURL(rawURL string) Kind {
	switch mediaExtension(rawURL) {
	case ".m3u8":
		return HLS
	case ".mpd":
		return DASH
	default:
		return Progressive
	}
}

// HasMediaExtension reports whether the URL points at a recognized media file.
// Only HLS playlists and MP4 files count.
func HasMediaExtension(rawURL string) bool {
	ext := mediaExtension(rawURL)
	return ext == ".m3u8" || ext == ".mp4"
}

var mediaExtensions = map[string]bool{".m3u8": true, ".mp4": true, ".mpd": true}

// mediaExtension finds the media extension of rawURL. The path extension
// wins; otherwise path segments and then query values are searched, since
// some hosts hide the file name there. The host is never looked at.
func mediaExtension(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	if ext := strings.ToLower(path.Ext(u.Path)); mediaExtensions[ext] {
		return ext
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if ext := strings.ToLower(path.Ext(seg)); mediaExtensions[ext] {
			return ext
		}
	}
	for _, pair := range strings.Split(u.RawQuery, "&") {
		_, v, _ := strings.Cut(pair, "=")
		if unescaped, err := url.QueryUnescape(v); err == nil {
			v = unescaped
		}
		if ext := valueExtension(v); ext != "" {
			return ext
		}
	}
	return ""
}

// valueExtension reads a query value as a file name or nested URL.
func valueExtension(v string) string {
	if u, err := url.Parse(v); err == nil && u.Path != "" {
		v = u.Path
	}
	if ext := strings.ToLower(path.Ext(v)); mediaExtensions[ext] {
		return ext
	}
	return ""
}

// Quality is a numeric rank, usually the vertical resolution.
type Quality int

// QualityUnknown marks a stream whose quality could not be determined.
const QualityUnknown Quality = -1

// Known reports whether the quality was resolved.
func (q Quality) Known() bool {
	return q >= 0
}

func (q Quality) String() string {
	if !q.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%dp", int(q))
}

var qualityPattern = regexp.MustCompile(`(?i)(?:^|[^0-9])(2160|1440|1080|720|576|480|360|240|144)p?(?:[^0-9]|$)`)

// ParseQuality extracts a quality rank from a label or URL.
// e.g., "1080p" -> 1080, "HD" -> 720, "auto" -> QualityUnknown
func ParseQuality(s string) Quality {
	s = strings.TrimSpace(s)
	if s == "" {
		return QualityUnknown
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(s), "p")); err == nil && n >= 0 {
		return Quality(n)
	}
	switch strings.ToLower(s) {
	case "4k", "uhd":
		return 2160
	case "fhd", "fullhd":
		return 1080
	case "hd":
		return 720
	case "sd":
		return 480
	}
	if m := qualityPattern.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Quality(n)
	}
	return QualityUnknown
}

// DRMKey carries ClearKey material for encrypted manifests.
type DRMKey struct {
	KeyID string `json:"kid"`
	Key   string `json:"key"`
}

// StreamLink is a resolved, playable result.
type StreamLink struct {
	URL     string            `json:"url"`
	Kind    Kind              `json:"kind"`
	Referer string            `json:"referer,omitempty"`
	Quality Quality           `json:"quality"`
	Source  string            `json:"source"`
	Headers map[string]string `json:"headers,omitempty"`
	DRM     *DRMKey           `json:"drm,omitempty"`
	Order   int               `json:"-"` // Index of the candidate that produced it
}

// Validate checks the link invariants: absolute URL, non-negative quality.
func (l StreamLink) Validate() error {
	if l.URL == "" {
		return fmt.Errorf("stream link has empty URL")
	}
	u, err := url.Parse(l.URL)
	if err != nil {
		return fmt.Errorf("stream link URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("stream link URL %q is not absolute", l.URL)
	}
	if l.Quality < QualityUnknown {
		return fmt.Errorf("stream link quality %d is negative", l.Quality)
	}
	return nil
}

// NewLink builds a link for a direct media URL, classifying kind and quality.
func NewLink(rawURL, referer, source string) StreamLink {
	return StreamLink{
		URL:     rawURL,
		Kind:    KindFromURL(rawURL),
		Referer: referer,
		Quality: ParseQuality(rawURL),
		Source:  source,
	}
}

// SortLinks orders links by quality (best first), then by candidate order.
func SortLinks(links []StreamLink) {
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].Quality != links[j].Quality {
			return links[i].Quality > links[j].Quality
		}
		return links[i].Order < links[j].Order
	})
}

// Subtitle represents a subtitle track.
type Subtitle struct {
	Language string `json:"language"`        // e.g., "English"
	Label    string `json:"label,omitempty"` // Display label, e.g., "English - SDH"
	URL      string `json:"url"`             // URL to the subtitle file (usually VTT)
}

// Event is one item of a resolution sequence. Exactly one field is set.
type Event struct {
	Link     *StreamLink
	Subtitle *Subtitle
}

// WatchPage identifies the page to resolve. It is immutable once built.
type WatchPage struct {
	URL       string
	Season    mo.Option[int]
	Episode   mo.Option[int]
	ContentID string // Upstream content or episode ID
	Referer   string
	HostLabel string
}

// PageOption customizes a WatchPage.
type PageOption func(*WatchPage)

// WithEpisode sets season and episode numbers.
func WithEpisode(season, episode int) PageOption {
	return func(w *WatchPage) {
		if season > 0 {
			w.Season = mo.Some(season)
		}
		if episode > 0 {
			w.Episode = mo.Some(episode)
		}
	}
}

// WithContentID sets the upstream content ID.
func WithContentID(id string) PageOption {
	return func(w *WatchPage) { w.ContentID = id }
}

// WithReferer sets the referer presented when fetching the page.
func WithReferer(ref string) PageOption {
	return func(w *WatchPage) { w.Referer = ref }
}

// WithHostLabel names the site the page belongs to.
func WithHostLabel(label string) PageOption {
	return func(w *WatchPage) { w.HostLabel = label }
}

// NewWatchPage builds a WatchPage from an absolute http(s) URL.
func NewWatchPage(rawURL string, opts ...PageOption) (WatchPage, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return WatchPage{}, fmt.Errorf("parsing watch page URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return WatchPage{}, fmt.Errorf("watch page URL must be http(s), got %q", u.Scheme)
	}
	if u.Host == "" {
		return WatchPage{}, fmt.Errorf("watch page URL has no host")
	}

	w := WatchPage{URL: u.String()}
	for _, opt := range opts {
		opt(&w)
	}
	if w.HostLabel == "" {
		w.HostLabel = strings.TrimPrefix(u.Hostname(), "www.")
	}
	return w, nil
}

// Candidate is one "play on this server" entry discovered on a watch page.
type Candidate struct {
	Target   string         // Raw or encoded target
	Language mo.Option[string]
	Host     string // Server label, e.g., "Vidcloud"
	Index    int    // Position on the page
	Resolver string // In-process resolver that must finish this candidate
	Referer  string
	Episode  mo.Option[int]
	Title    string
}

// Label returns the server label, falling back to the target host.
func (c Candidate) Label() string {
	if c.Host != "" {
		return c.Host
	}
	if u, err := url.Parse(c.Target); err == nil && u.Host != "" {
		return strings.TrimPrefix(u.Hostname(), "www.")
	}
	return "unknown"
}

// Report summarizes one resolve call for the journal.
type Report struct {
	PageURL    string
	StartedAt  time.Time
	Duration   time.Duration
	Candidates int
	Links      int
	Subtitles  int
	Failures   int
	OK         bool
}
