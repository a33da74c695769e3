package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/mo"

	"linkchain/internal/decode"
	"linkchain/internal/httputil"
	"linkchain/internal/media"
)

// FormChainConfig describes a redirector that bounces the visitor through
// auto-submitting forms before revealing the embed URL.
type FormChainConfig struct {
	Name    string   `toml:"name"`
	Hosts   []string `toml:"hosts"`
	MaxHops int      `toml:"max_hops"`
	Field   string   `toml:"field"`   // Hidden input every hop must carry, optional
	Pattern string   `toml:"pattern"` // Regex with one group around the encoded URL, optional
	Scheme  string   `toml:"scheme"`  // decode.Named scheme; rotating when empty
}

const defaultFormHops = 5

// Tried after the configured pattern.
var finalURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`atob\(\s*["']([^"']+)["']\s*\)`),
	regexp.MustCompile(`window\.location(?:\.href)?\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`location\.replace\(\s*["']([^"']+)["']\s*\)`),
	regexp.MustCompile(`data-url=["']([^"']+)["']`),
}

// FormChainResolver walks the form chain and returns the revealed URL as a
// follow-up candidate. Cookies set on any hop are carried by the session.
type FormChainResolver struct {
	cfg     FormChainConfig
	scheme  decode.Scheme
	pattern *regexp.Regexp
}

// NewFormChainResolver validates cfg.
func NewFormChainResolver(cfg FormChainConfig) (*FormChainResolver, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("form chain: name is required")
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = defaultFormHops
	}
	scheme, err := decode.Named(cfg.Scheme)
	if err != nil {
		return nil, fmt.Errorf("form chain %s: %w", cfg.Name, err)
	}
	r := &FormChainResolver{cfg: cfg, scheme: scheme}
	if cfg.Pattern != "" {
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("form chain %s: pattern: %w", cfg.Name, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("form chain %s: pattern needs a capture group", cfg.Name)
		}
		r.pattern = re
	}
	return r, nil
}

// WithScheme swaps the decode step without touching hop handling.
func (f *FormChainResolver) WithScheme(s decode.Scheme) *FormChainResolver {
	cp := *f
	cp.scheme = s
	return &cp
}

func (f *FormChainResolver) Name() string    { return f.cfg.Name }
func (f *FormChainResolver) Hosts() []string { return f.cfg.Hosts }

func (f *FormChainResolver) Resolve(ctx context.Context, sess *Session, c media.Candidate) mo.Result[Outcome] {
	resp, err := sess.Get(ctx, c.Target, c.Referer)
	if err != nil {
		return mo.Err[Outcome](err)
	}
	current := finalURL(resp, c.Target)

	for hop := 0; ; hop++ {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Body))
		if err != nil {
			return mo.Err[Outcome](&ExtractionError{Strategy: f.Name(), What: "parsing hop page", Err: err})
		}
		form := doc.Find("form").First()
		if form.Length() == 0 {
			break
		}
		if hop >= f.cfg.MaxHops {
			return mo.Err[Outcome](missing(f.Name(), "gave up after %d hops", hop))
		}

		req, err := f.nextHop(form, current)
		if err != nil {
			return mo.Err[Outcome](err)
		}
		resp, err = sess.Do(ctx, req)
		if err != nil {
			return mo.Err[Outcome](fmt.Errorf("hop %d: %w", hop+1, err))
		}
		current = finalURL(resp, req.URL)
	}

	encoded, ok := f.findEncoded(resp.Body)
	if !ok {
		return mo.Err[Outcome](missing(f.Name(), "no encoded URL on final page %s", current))
	}
	target := encoded
	if !decode.LooksLikeURL(encoded) && !strings.HasPrefix(encoded, "/") {
		target, err = f.scheme.Decode(encoded)
		if err != nil {
			return mo.Err[Outcome](err)
		}
	}
	target, err = httputil.ResolveReference(current, target)
	if err != nil {
		return mo.Err[Outcome](&ExtractionError{Strategy: f.Name(), What: "final URL", Err: err})
	}

	next := c
	next.Target = target
	next.Referer = current
	next.Resolver = ""
	return mo.Ok(Outcome{Follow: []media.Candidate{next}})
}

func (f *FormChainResolver) nextHop(form *goquery.Selection, current string) (httputil.Request, error) {
	values := url.Values{}
	form.Find("input[name], textarea[name], select[name]").Each(func(_ int, in *goquery.Selection) {
		name := in.AttrOr("name", "")
		typ := strings.ToLower(in.AttrOr("type", ""))
		if typ == "submit" || typ == "button" || typ == "image" {
			return
		}
		if goquery.NodeName(in) == "textarea" {
			values.Add(name, in.Text())
			return
		}
		values.Add(name, in.AttrOr("value", ""))
	})
	if f.cfg.Field != "" && values.Get(f.cfg.Field) == "" {
		return httputil.Request{}, missing(f.Name(), "hop form lacks field %q", f.cfg.Field)
	}

	action := strings.TrimSpace(form.AttrOr("action", ""))
	if action == "" {
		action = current
	}
	target, err := httputil.ResolveReference(current, action)
	if err != nil {
		return httputil.Request{}, &ExtractionError{Strategy: f.Name(), What: "form action", Err: err}
	}

	header := http.Header{"Referer": {current}}
	if strings.EqualFold(form.AttrOr("method", "post"), "get") {
		u, err := url.Parse(target)
		if err != nil {
			return httputil.Request{}, &ExtractionError{Strategy: f.Name(), What: "form action", Err: err}
		}
		q := u.Query()
		for k, vs := range values {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
		return httputil.Request{URL: u.String(), Header: header}, nil
	}
	return httputil.Request{Method: http.MethodPost, URL: target, Header: header, Form: values}, nil
}

func (f *FormChainResolver) findEncoded(body string) (string, bool) {
	patterns := finalURLPatterns
	if f.pattern != nil {
		patterns = append([]*regexp.Regexp{f.pattern}, finalURLPatterns...)
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(body); m != nil && strings.TrimSpace(m[1]) != "" {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

func finalURL(resp *httputil.Response, fallback string) string {
	if resp != nil && resp.URL != nil {
		return resp.URL.String()
	}
	return fallback
}
