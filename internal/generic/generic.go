// Package generic resolves embed URLs for hosts without a dedicated resolver
// by asking an extraction API.
package generic

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"linkchain/internal/httputil"
	"linkchain/internal/media"
)

// Fetcher is the part of *httputil.Fetcher the client uses.
type Fetcher interface {
	JSON(ctx context.Context, r httputil.Request, v any) error
}

// Client queries <endpoint>?url=<embed>&referer=<referer>.
type Client struct {
	fetcher  Fetcher
	endpoint string
	log      logrus.FieldLogger
}

// New creates a Client. An empty endpoint yields a client that rejects every URL.
func New(endpoint string, f Fetcher, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{fetcher: f, endpoint: strings.TrimSpace(endpoint), log: log}
}

// apiResponse represents the JSON response from the extraction API.
type apiResponse struct {
	Headers map[string]string `json:"headers"`
	Sources []struct {
		URL     string `json:"url"`
		Quality string `json:"quality"`
		IsM3U8  bool   `json:"isM3U8"`
		DRM     *struct {
			KeyID string `json:"kid"`
			Key   string `json:"key"`
		} `json:"drm"`
	} `json:"sources"`
	Subtitles []struct {
		URL      string `json:"url"`
		Language string `json:"lang"`
		Label    string `json:"label"`
	} `json:"subtitles"`
}

// ResolveGeneric reports whether the API returned at least one source.
func (c *Client) ResolveGeneric(ctx context.Context, rawURL, referer string, onSubtitle func(media.Subtitle), onStream func(media.StreamLink)) bool {
	if c.endpoint == "" {
		return false
	}
	log := c.log.WithField("embed", rawURL)

	apiURL, err := c.requestURL(rawURL, referer)
	if err != nil {
		log.WithError(err).Warn("building extraction API request")
		return false
	}

	var resp apiResponse
	if err := c.fetcher.JSON(ctx, httputil.Request{URL: apiURL}, &resp); err != nil {
		log.WithError(err).Debug("extraction API request failed")
		return false
	}
	if len(resp.Sources) == 0 {
		log.Debug("extraction API returned no sources")
		return false
	}

	linkReferer := referer
	headers := lo.OmitBy(resp.Headers, func(k, v string) bool {
		if strings.EqualFold(k, "Referer") {
			linkReferer = lo.CoalesceOrEmpty(v, referer)
			return true
		}
		return false
	})

	for _, sub := range resp.Subtitles {
		if sub.URL == "" || onSubtitle == nil {
			continue
		}
		onSubtitle(media.Subtitle{
			Language: lo.CoalesceOrEmpty(sub.Language, sub.Label),
			Label:    sub.Label,
			URL:      sub.URL,
		})
	}

	emitted := 0
	for _, s := range resp.Sources {
		if s.URL == "" {
			continue
		}
		link := media.NewLink(s.URL, linkReferer, "")
		if s.IsM3U8 {
			link.Kind = media.HLS
		}
		if q := media.ParseQuality(s.Quality); q.Known() {
			link.Quality = q
		}
		if len(headers) > 0 {
			link.Headers = headers
		}
		if s.DRM != nil && s.DRM.KeyID != "" && s.DRM.Key != "" {
			link.DRM = &media.DRMKey{KeyID: s.DRM.KeyID, Key: s.DRM.Key}
		}
		if onStream != nil {
			onStream(link)
		}
		emitted++
	}
	return emitted > 0
}

func (c *Client) requestURL(rawURL, referer string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q", c.endpoint)
	}
	q := u.Query()
	q.Set("url", rawURL)
	if referer != "" {
		q.Set("referer", referer)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
