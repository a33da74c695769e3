package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/mo"

	"linkchain/internal/media"
)

// ScriptConfig describes a page that assigns its episode or server list to
// a script variable.
type ScriptConfig struct {
	Name     string   `toml:"name"`
	Hosts    []string `toml:"hosts"`
	Marker   string   `toml:"marker"`   // e.g. "var eps ="
	Template string   `toml:"template"` // Embed URL with {code}, {id}, {episode}
}

// EpisodeRecord is one [episode, id, code, title] tuple.
type EpisodeRecord struct {
	Episode int
	ID      string
	Code    string
	Title   string
}

// EmbedRecord is one object carrying an embed URL.
type EmbedRecord struct {
	URL      string
	Label    string
	Language string
	Episode  int
}

// ScriptStrategy finds the marker, cuts out the literal and builds candidates from it.
type ScriptStrategy struct {
	cfg ScriptConfig
}

// NewScriptStrategy validates cfg.
func NewScriptStrategy(cfg ScriptConfig) (*ScriptStrategy, error) {
	if cfg.Name == "" || cfg.Marker == "" {
		return nil, fmt.Errorf("script strategy: name and marker are required")
	}
	return &ScriptStrategy{cfg: cfg}, nil
}

func (s *ScriptStrategy) Name() string { return s.cfg.Name }

func (s *ScriptStrategy) CanHandle(page *url.URL, _ string) bool {
	return len(s.cfg.Hosts) == 0 || matchesHost(page, s.cfg.Hosts)
}

// Extract never fails on bad input: a missing marker or unparsable literal yields no candidates.
func (s *ScriptStrategy) Extract(_ context.Context, doc *Document) ([]media.Candidate, error) {
	payload, ok := CutAssignment(doc.Body, s.cfg.Marker)
	if !ok {
		return nil, nil
	}
	eps, embeds, err := ParseScriptRecords(payload)
	if err != nil {
		return nil, nil
	}

	want, filter := doc.Page.Episode.Get()
	var out []media.Candidate
	for _, ep := range eps {
		if filter && ep.Episode != want {
			continue
		}
		target := ep.Code
		if s.cfg.Template != "" {
			target = strings.NewReplacer(
				"{code}", url.PathEscape(ep.Code),
				"{id}", url.PathEscape(ep.ID),
				"{episode}", strconv.Itoa(ep.Episode),
			).Replace(s.cfg.Template)
			if abs, err := doc.Resolve(target); err == nil {
				target = abs
			}
		}
		out = append(out, media.Candidate{
			Target:  target,
			Host:    s.cfg.Name,
			Index:   len(out),
			Referer: doc.URL.String(),
			Episode: mo.Some(ep.Episode),
			Title:   ep.Title,
		})
	}
	for _, e := range embeds {
		if filter && e.Episode != 0 && e.Episode != want {
			continue
		}
		target, err := doc.Resolve(e.URL)
		if err != nil {
			continue
		}
		c := media.Candidate{
			Target:  target,
			Host:    e.Label,
			Index:   len(out),
			Referer: doc.URL.String(),
		}
		if c.Host == "" {
			c.Host = s.cfg.Name
		}
		if e.Language != "" {
			c.Language = mo.Some(e.Language)
		}
		if e.Episode != 0 {
			c.Episode = mo.Some(e.Episode)
		}
		out = append(out, c)
	}
	return out, nil
}

// CutAssignment returns the literal assigned after marker, up to the
// terminating semicolon outside any string literal.
func CutAssignment(body, marker string) (string, bool) {
	i := strings.Index(body, marker)
	if i < 0 {
		return "", false
	}
	rest := body[i+len(marker):]

	var quote byte
	escaped := false
	for j := 0; j < len(rest); j++ {
		c := rest[j]
		switch {
		case escaped:
			escaped = false
		case quote != 0:
			if c == '\\' {
				escaped = true
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'' || c == '`':
			quote = c
		case c == ';':
			out := strings.TrimSpace(rest[:j])
			return out, out != ""
		case c == '<' && strings.HasPrefix(rest[j:], "</script"):
			out := strings.TrimSpace(rest[:j])
			return out, out != ""
		}
	}
	return "", false
}

// CleanJSON drops trailing commas before a closing bracket or brace.
func CleanJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\r' || s[j] == '\t') {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ParseScriptRecords decodes an array (or single object) of tuples and embed objects.
func ParseScriptRecords(payload string) ([]EpisodeRecord, []EmbedRecord, error) {
	data := []byte(CleanJSON(payload))

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		var single map[string]any
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return nil, nil, fmt.Errorf("parsing script literal: %w", err)
		}
		items = []json.RawMessage{data}
	}

	var (
		eps    []EpisodeRecord
		embeds []EmbedRecord
	)
	for _, raw := range items {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		switch raw[0] {
		case '[':
			var tuple []any
			if err := json.Unmarshal(raw, &tuple); err != nil || len(tuple) < 3 {
				continue
			}
			ep, ok := toInt(tuple[0])
			if !ok {
				continue
			}
			rec := EpisodeRecord{Episode: ep, ID: toString(tuple[1]), Code: toString(tuple[2])}
			if len(tuple) > 3 {
				rec.Title = toString(tuple[3])
			}
			eps = append(eps, rec)
		case '{':
			var obj map[string]any
			if err := json.Unmarshal(raw, &obj); err != nil {
				continue
			}
			rec := EmbedRecord{
				URL:      pick(obj, "file", "url", "embed", "link"),
				Label:    pick(obj, "label", "server", "name"),
				Language: pick(obj, "lang", "language", "type"),
			}
			if rec.URL == "" {
				continue
			}
			if n, ok := toInt(obj["episode"]); ok {
				rec.Episode = n
			} else if n, ok := toInt(obj["ep"]); ok {
				rec.Episode = n
			}
			embeds = append(embeds, rec)
		}
	}
	return eps, embeds, nil
}

func pick(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := toString(obj[k]); v != "" {
			return v
		}
	}
	return ""
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	default:
		return 0, false
	}
}
