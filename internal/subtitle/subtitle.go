// Package subtitle picks and saves subtitle tracks found during resolution.
package subtitle

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"linkchain/internal/httputil"
	"linkchain/internal/media"
)

// Filter returns subtitles matching the preferred language (case-insensitive).
func Filter(subtitles []media.Subtitle, language string) []media.Subtitle {
	if language == "" {
		return subtitles
	}
	lang := strings.ToLower(language)
	return lo.Filter(subtitles, func(sub media.Subtitle, _ int) bool {
		return strings.Contains(strings.ToLower(sub.Language), lang) ||
			strings.Contains(strings.ToLower(sub.Label), lang)
	})
}

// BestMatch returns the best matching subtitle for the given language.
// Prefers a non-SDH match, then the first match.
func BestMatch(subtitles []media.Subtitle, language string) (media.Subtitle, bool) {
	filtered := Filter(subtitles, language)
	if len(filtered) == 0 {
		return media.Subtitle{}, false
	}

	lang := strings.ToLower(language)
	if sub, ok := lo.Find(filtered, func(sub media.Subtitle) bool {
		label := strings.ToLower(sub.Label)
		return strings.Contains(label, lang) && !strings.Contains(label, "sdh")
	}); ok {
		return sub, true
	}
	return filtered[0], true
}

// Fetcher is the part of *httputil.Fetcher Save uses.
type Fetcher interface {
	Get(ctx context.Context, rawURL, referer string) (*httputil.Response, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename derives a safe local file name for sub.
func Filename(sub media.Subtitle) string {
	name := ""
	if u, err := url.Parse(sub.URL); err == nil {
		name = path.Base(u.Path)
	}
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "._")
	if name == "" {
		name = "subtitle"
	}
	if path.Ext(name) == "" {
		name += ".vtt"
	}
	if sub.Language != "" {
		lang := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(sub.Language), "_"), "._")
		if lang != "" {
			name = lang + "." + name
		}
	}
	return name
}

// Save downloads sub into dir and returns the local path.
func Save(ctx context.Context, f Fetcher, sub media.Subtitle, referer, dir string) (string, error) {
	if err := httputil.ValidateURL(sub.URL); err != nil {
		return "", fmt.Errorf("invalid subtitle URL: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating subtitle dir: %w", err)
	}

	resp, err := f.Get(ctx, sub.URL, referer)
	if err != nil {
		return "", fmt.Errorf("downloading subtitle: %w", err)
	}

	localPath := filepath.Join(dir, Filename(sub))
	if err := os.WriteFile(localPath, []byte(resp.Body), 0644); err != nil {
		return "", fmt.Errorf("writing subtitle file: %w", err)
	}
	return localPath, nil
}
