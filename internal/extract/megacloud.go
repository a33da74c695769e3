package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/mo"

	"linkchain/internal/httputil"
	"linkchain/internal/media"
)

const (
	// MegaCloudKeysURL publishes the current decryption keys as {"mega": "..."}.
	MegaCloudKeysURL = "https://raw.githubusercontent.com/yogesh-hacker/MegacloudKeys/refs/heads/main/keys.json"

	megaKeyMemo = "megacloud-key"
)

// DefaultMegaCloudHosts are the domains MegaCloud/VidCloud embeds are served from.
var DefaultMegaCloudHosts = []string{
	"megacloud.tv",
	"megacloud.blog",
	"megacloud.club",
	"videostr.net",
	"streameeeeee.site",
}

var embedPrefixPattern = regexp.MustCompile(`^embed-\d+$`)

// MegaCloud resolves MegaCloud/VidCloud embeds into HLS links and captions.
type MegaCloud struct {
	hosts   []string
	keysURL string
}

// NewMegaCloud claims hosts (DefaultMegaCloudHosts when empty).
func NewMegaCloud(hosts ...string) *MegaCloud {
	if len(hosts) == 0 {
		hosts = DefaultMegaCloudHosts
	}
	return &MegaCloud{hosts: hosts, keysURL: MegaCloudKeysURL}
}

// WithKeysURL points key lookups at another endpoint.
func (m *MegaCloud) WithKeysURL(u string) *MegaCloud {
	cp := *m
	cp.keysURL = u
	return &cp
}

func (m *MegaCloud) Name() string    { return "megacloud" }
func (m *MegaCloud) Hosts() []string { return m.hosts }

// sourcesResponse represents the JSON from the getSources endpoint.
type sourcesResponse struct {
	Sources   json.RawMessage `json:"sources"`
	Tracks    []track         `json:"tracks"`
	Encrypted bool            `json:"encrypted"`
}

type track struct {
	File    string `json:"file"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Default bool   `json:"default"`
}

type source struct {
	File  string `json:"file"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

func (m *MegaCloud) Resolve(ctx context.Context, sess *Session, c media.Candidate) mo.Result[Outcome] {
	domain, embedPrefix, sourceID, err := parseEmbedURL(c.Target)
	if err != nil {
		return mo.Err[Outcome](&ExtractionError{Strategy: m.Name(), What: "embed URL", Err: err})
	}

	referer := c.Referer
	if referer == "" {
		referer = "https://flixhq.to/"
	}
	embedPageURL := fmt.Sprintf("https://%s/%s/v3/e-1/%s?z=", domain, embedPrefix, sourceID)
	page, err := sess.Get(ctx, embedPageURL, referer)
	if err != nil {
		return mo.Err[Outcome](fmt.Errorf("fetching embed page: %w", err))
	}

	clientKey, err := extractClientKey(page.Body)
	if err != nil {
		return mo.Err[Outcome](&ExtractionError{Strategy: m.Name(), What: "client key", Err: err})
	}

	getSourcesURL := fmt.Sprintf("https://%s/%s/v3/e-1/getSources?id=%s&_k=%s",
		domain, embedPrefix, url.QueryEscape(sourceID), url.QueryEscape(clientKey))
	var resp sourcesResponse
	if err := sess.JSON(ctx, httputil.Request{URL: getSourcesURL, Header: xhrHeader(c.Target)}, &resp); err != nil {
		return mo.Err[Outcome](fmt.Errorf("fetching sources: %w", err))
	}

	sources, err := m.sources(ctx, sess, resp, clientKey)
	if err != nil {
		return mo.Err[Outcome](err)
	}
	if len(sources) == 0 {
		return mo.Err[Outcome](missing(m.Name(), "no sources for %s", sourceID))
	}

	origin := fmt.Sprintf("https://%s/", domain)
	links := lo.FilterMap(sources, func(s source, _ int) (media.StreamLink, bool) {
		if s.File == "" {
			return media.StreamLink{}, false
		}
		link := media.NewLink(s.File, origin, c.Label())
		if strings.EqualFold(s.Type, "hls") {
			link.Kind = media.HLS
		}
		if q := media.ParseQuality(s.Label); q.Known() {
			link.Quality = q
		}
		return link, true
	})

	subtitles := lo.FilterMap(resp.Tracks, func(t track, _ int) (media.Subtitle, bool) {
		if t.Kind != "captions" || t.File == "" {
			return media.Subtitle{}, false
		}
		return media.Subtitle{Language: t.Label, Label: t.Label, URL: t.File}, true
	})

	return mo.Ok(Outcome{Links: links, Subtitles: subtitles})
}

func (m *MegaCloud) sources(ctx context.Context, sess *Session, resp sourcesResponse, clientKey string) ([]source, error) {
	var sources []source
	if !resp.Encrypted {
		if err := json.Unmarshal(resp.Sources, &sources); err != nil {
			return nil, fmt.Errorf("parsing plaintext sources: %w", err)
		}
		return sources, nil
	}

	var encryptedSrc string
	if err := json.Unmarshal(resp.Sources, &encryptedSrc); err != nil {
		return nil, fmt.Errorf("parsing encrypted sources: %w", err)
	}

	// The published key rotates, so a memoized key that no longer decrypts
	// is dropped and fetched again exactly once.
	var err error
	for range 2 {
		var megaKey string
		megaKey, err = sess.Ensure(ctx, megaKeyMemo, func(ctx context.Context) (string, error) {
			return m.fetchKey(ctx, sess)
		})
		if err != nil {
			return nil, fmt.Errorf("fetching megacloud key: %w", err)
		}
		if err = json.Unmarshal([]byte(decryptSrc2(encryptedSrc, clientKey, megaKey)), &sources); err == nil {
			return sources, nil
		}
		sess.Invalidate(megaKeyMemo)
	}
	return nil, &ExtractionError{Strategy: m.Name(), What: "decrypting sources", Err: err}
}

func (m *MegaCloud) fetchKey(ctx context.Context, sess *Session) (string, error) {
	var keys map[string]string
	if err := sess.JSON(ctx, httputil.Request{URL: m.keysURL}, &keys); err != nil {
		return "", err
	}
	key, ok := keys["mega"]
	if !ok || key == "" {
		return "", fmt.Errorf("mega key not found in keys response")
	}
	return key, nil
}

// parseEmbedURL extracts domain, embed prefix, and source ID from an embed URL.
// Example: https://streameeeeee.site/embed-1/v3/e-1/AbCdEf?z= -> ("streameeeeee.site", "embed-1", "AbCdEf")
func parseEmbedURL(embedURL string) (domain, embedPrefix, sourceID string, err error) {
	if err := httputil.ValidateURL(embedURL); err != nil {
		return "", "", "", err
	}
	u, err := url.Parse(embedURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parsing URL: %w", err)
	}
	domain = u.Host

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	embedPrefix = parts[0]
	if !embedPrefixPattern.MatchString(embedPrefix) {
		embedPrefix = "embed-2"
	}

	sourceID = parts[len(parts)-1]
	if sourceID == "" || embedPrefixPattern.MatchString(sourceID) {
		return "", "", "", fmt.Errorf("could not extract source ID from %q", embedURL)
	}
	return domain, embedPrefix, sourceID, nil
}
