package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/mo"

	"linkchain/internal/decode"
	"linkchain/internal/media"
)

// TokenConfig describes a page that hides its player behind one attribute
// holding an encoded URL prefix and a per-video key.
type TokenConfig struct {
	Name      string   `toml:"name"`
	Hosts     []string `toml:"hosts"`
	Selector  string   `toml:"selector"`  // Default "[data-token]"
	Attr      string   `toml:"attr"`      // Default "data-token"
	Separator string   `toml:"separator"` // Default "|"
	Template  string   `toml:"template"`  // e.g. "{prefix}/e/{key}"
	Scheme    string   `toml:"scheme"`    // Default base64
}

// TokenStrategy decodes token attributes into embed URLs.
type TokenStrategy struct {
	cfg    TokenConfig
	scheme decode.Scheme
}

// NewTokenStrategy fills defaults and validates cfg.
func NewTokenStrategy(cfg TokenConfig) (*TokenStrategy, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("token: name is required")
	}
	if cfg.Selector == "" {
		cfg.Selector = "[data-token]"
	}
	if cfg.Attr == "" {
		cfg.Attr = "data-token"
	}
	if cfg.Separator == "" {
		cfg.Separator = "|"
	}
	if cfg.Template == "" {
		cfg.Template = "{prefix}{key}"
	}
	if !strings.Contains(cfg.Template, "{key}") {
		return nil, fmt.Errorf("token %s: template must contain {key}", cfg.Name)
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "base64"
	}
	scheme, err := decode.Named(cfg.Scheme)
	if err != nil {
		return nil, fmt.Errorf("token %s: %w", cfg.Name, err)
	}
	return &TokenStrategy{cfg: cfg, scheme: scheme}, nil
}

func (t *TokenStrategy) Name() string { return t.cfg.Name }

func (t *TokenStrategy) CanHandle(page *url.URL, _ string) bool {
	return len(t.cfg.Hosts) == 0 || matchesHost(page, t.cfg.Hosts)
}

// Extract returns one candidate per decodable token. Tokens that fail to
// decode are skipped and reported together in the returned error.
func (t *TokenStrategy) Extract(_ context.Context, doc *Document) ([]media.Candidate, error) {
	html, err := doc.HTML()
	if err != nil {
		return nil, fmt.Errorf("parsing watch page: %w", err)
	}

	var (
		out  []media.Candidate
		errs []error
	)
	html.Find(t.cfg.Selector).Each(func(i int, sel *goquery.Selection) {
		token := strings.TrimSpace(sel.AttrOr(t.cfg.Attr, ""))
		if token == "" {
			return
		}
		target, err := t.Decode(token)
		if err != nil {
			errs = append(errs, err)
			return
		}

		c := media.Candidate{
			Target:  target,
			Host:    firstAttr(sel, "data-server", "title"),
			Index:   len(out),
			Referer: doc.URL.String(),
		}
		if c.Host == "" {
			c.Host = t.cfg.Name
		}
		if lang := firstAttr(sel, "data-lang", "data-language", "data-type"); lang != "" {
			c.Language = mo.Some(lang)
		}
		out = append(out, c)
	})
	return out, errors.Join(errs...)
}

// Decode turns one token into the final URL.
func (t *TokenStrategy) Decode(token string) (string, error) {
	enc, key, ok := strings.Cut(token, t.cfg.Separator)
	if !ok || key == "" {
		return "", &decode.Error{Scheme: t.scheme.Name(), Err: fmt.Errorf("token has no %q separator", t.cfg.Separator)}
	}
	prefix, err := t.scheme.Decode(enc)
	if err != nil {
		return "", err
	}

	raw := strings.NewReplacer("{prefix}", prefix, "{key}", url.PathEscape(key)).Replace(t.cfg.Template)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return "", &decode.Error{Scheme: t.scheme.Name(), Err: fmt.Errorf("decoded URL %q is not absolute", raw)}
	}
	return raw, nil
}
