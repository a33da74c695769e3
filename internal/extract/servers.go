package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/mo"

	"linkchain/internal/media"
)

const serverSelector = "[data-video], [data-embed], [data-src], iframe[src]"

// ServerListStrategy collects the "play on this server" entries most sites
// render as buttons or iframes carrying the embed URL in an attribute.
type ServerListStrategy struct {
	hosts []string
}

// NewServerListStrategy limits the scan to hosts, or to every page when none are given.
func NewServerListStrategy(hosts ...string) *ServerListStrategy {
	return &ServerListStrategy{hosts: hosts}
}

func (s *ServerListStrategy) Name() string { return "servers" }

func (s *ServerListStrategy) CanHandle(page *url.URL, _ string) bool {
	return len(s.hosts) == 0 || matchesHost(page, s.hosts)
}

func (s *ServerListStrategy) Extract(_ context.Context, doc *Document) ([]media.Candidate, error) {
	html, err := doc.HTML()
	if err != nil {
		return nil, fmt.Errorf("parsing watch page: %w", err)
	}

	var out []media.Candidate
	seen := make(map[string]bool)
	html.Find(serverSelector).Each(func(_ int, sel *goquery.Selection) {
		if goquery.NodeName(sel) == "img" {
			return
		}

		raw := firstAttr(sel, "data-video", "data-embed", "data-src")
		if raw == "" && goquery.NodeName(sel) == "iframe" {
			raw = sel.AttrOr("src", "")
		}
		raw = strings.TrimSpace(raw)
		if raw == "" || raw == "about:blank" || strings.HasPrefix(raw, "javascript:") {
			return
		}

		target, err := doc.Resolve(raw)
		if err != nil || seen[target] {
			return
		}
		seen[target] = true

		c := media.Candidate{
			Target:  target,
			Host:    serverLabel(sel),
			Index:   len(out),
			Referer: doc.URL.String(),
		}
		if lang := firstAttr(sel, "data-lang", "data-language", "data-type"); lang != "" {
			c.Language = mo.Some(lang)
		}
		out = append(out, c)
	})
	return out, nil
}

func serverLabel(sel *goquery.Selection) string {
	if l := firstAttr(sel, "data-server", "title"); l != "" {
		return l
	}
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func firstAttr(sel *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(sel.AttrOr(n, "")); v != "" {
			return v
		}
	}
	return ""
}
