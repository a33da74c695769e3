package extract

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/samber/mo"

	"linkchain/internal/httputil"
	"linkchain/internal/media"
)

// DirectPatterns are tried in order; earlier patterns win.
var DirectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`file:\s*["']([^"']+)["']`),
	regexp.MustCompile(`source:\s*["']([^"']+)["']`),
	regexp.MustCompile(`"file":\s*"([^"]+)"`),
}

var jsonEscapes = strings.NewReplacer(`\/`, `/`, `\u0026`, `&`, `\u002F`, `/`, `&amp;`, `&`)

// FindMediaURL scans body with DirectPatterns and returns the first match
// carrying an .m3u8 or .mp4 URL, made absolute against base. Patterns are
// tried in priority order and scanning stops at the first that yields one.
func FindMediaURL(body, base string) (string, bool) {
	for _, re := range DirectPatterns {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			raw := jsonEscapes.Replace(strings.TrimSpace(m[1]))
			if !media.HasMediaExtension(raw) {
				continue
			}
			abs, err := httputil.ResolveReference(base, raw)
			if err != nil {
				continue
			}
			return abs, true
		}
	}
	return "", false
}

// PatternStrategy reads a media URL straight out of the watch page's scripts.
type PatternStrategy struct {
	hosts []string // Empty accepts every page
}

// NewPatternStrategy limits the scan to hosts, or to every page when none are given.
func NewPatternStrategy(hosts ...string) *PatternStrategy {
	return &PatternStrategy{hosts: hosts}
}

func (p *PatternStrategy) Name() string { return "pattern" }

func (p *PatternStrategy) CanHandle(page *url.URL, _ string) bool {
	return len(p.hosts) == 0 || matchesHost(page, p.hosts)
}

func (p *PatternStrategy) Extract(_ context.Context, doc *Document) ([]media.Candidate, error) {
	u, ok := FindMediaURL(doc.Body, doc.URL.String())
	if !ok {
		return nil, nil
	}
	return []media.Candidate{{
		Target:  u,
		Host:    doc.Page.HostLabel,
		Referer: doc.URL.String(),
	}}, nil
}

// PatternResolver fetches an embed page and scans it like PatternStrategy.
// It covers the many small hosts that print the playlist URL into a player setup call.
type PatternResolver struct {
	hosts []string
}

// NewPatternResolver claims hosts.
func NewPatternResolver(hosts ...string) *PatternResolver {
	return &PatternResolver{hosts: hosts}
}

func (p *PatternResolver) Name() string    { return "pattern-embed" }
func (p *PatternResolver) Hosts() []string { return p.hosts }

func (p *PatternResolver) Resolve(ctx context.Context, sess *Session, c media.Candidate) mo.Result[Outcome] {
	resp, err := sess.Get(ctx, c.Target, c.Referer)
	if err != nil {
		return mo.Err[Outcome](err)
	}

	base := c.Target
	if resp.URL != nil {
		base = resp.URL.String()
	}
	u, ok := FindMediaURL(resp.Body, base)
	if !ok {
		return mo.Err[Outcome](missing(p.Name(), "no media URL in %s", c.Target))
	}

	link := media.NewLink(u, httputil.Origin(base), c.Label())
	return mo.Ok(Outcome{Links: []media.StreamLink{link}})
}
