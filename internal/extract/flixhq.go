package extract

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/mo"

	"linkchain/internal/httputil"
	"linkchain/internal/media"
)

// FlixHQSourcesResolver is the resolver name FlixHQ candidates are bound to.
const FlixHQSourcesResolver = "flixhq-sources"

// FlixHQ lists the servers of a FlixHQ watch page through the site's AJAX
// endpoints. Each server ID is finished by FlixHQSources.
type FlixHQ struct {
	base    string // e.g., "flixhq.to"
	fetcher Fetcher
}

// NewFlixHQ creates the FlixHQ strategy for base.
func NewFlixHQ(base string, f Fetcher) *FlixHQ {
	return &FlixHQ{base: strings.TrimSuffix(base, "/"), fetcher: f}
}

func (f *FlixHQ) baseURL() string {
	if strings.Contains(f.base, "://") {
		return f.base
	}
	return "https://" + f.base
}

func (f *FlixHQ) host() string {
	u, err := url.Parse(f.baseURL())
	if err != nil {
		return f.base
	}
	return u.Host
}

func (f *FlixHQ) Name() string { return "flixhq" }

func (f *FlixHQ) CanHandle(page *url.URL, _ string) bool {
	return page != nil && strings.EqualFold(strings.TrimPrefix(page.Host, "www."), strings.TrimPrefix(f.host(), "www."))
}

// Extract fetches the server list for the page's movie or episode.
func (f *FlixHQ) Extract(ctx context.Context, doc *Document) ([]media.Candidate, error) {
	serversURL, err := f.serversURL(doc)
	if err != nil {
		return nil, err
	}

	resp, err := f.fetcher.Do(ctx, httputil.Request{URL: serversURL, Header: xhrHeader(doc.URL.String())})
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}
	list, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing servers: %w", err)
	}

	servers := parseServers(list)
	out := make([]media.Candidate, 0, len(servers))
	for i, s := range servers {
		out = append(out, media.Candidate{
			Target:   s.ID,
			Host:     s.Name,
			Index:    i,
			Resolver: FlixHQSourcesResolver,
			Referer:  f.baseURL() + "/",
			Episode:  doc.Page.Episode,
		})
	}
	return out, nil
}

// serversURL picks the episode endpoint for TV pages and the movie endpoint otherwise.
// Episode IDs come from the page's content ID or the ".<id>" suffix of watch URLs.
func (f *FlixHQ) serversURL(doc *Document) (string, error) {
	path := strings.TrimPrefix(doc.URL.Path, "/")
	isTV := strings.HasPrefix(path, "tv/") || strings.HasPrefix(path, "watch-tv/")

	if isTV {
		episodeID := doc.Page.ContentID
		if episodeID == "" {
			if i := strings.LastIndex(path, "."); i >= 0 {
				episodeID = path[i+1:]
			}
		}
		if err := httputil.ValidateNumericID(episodeID); err != nil {
			return "", &ExtractionError{Strategy: f.Name(), What: "episode ID", Err: err}
		}
		return httputil.BuildURL(f.baseURL(), "ajax", "v2", "episode", "servers", episodeID), nil
	}

	id := path
	if i := strings.LastIndex(id, "."); i >= 0 {
		id = id[:i]
	}
	if err := httputil.ValidateID(id); err != nil {
		return "", &ExtractionError{Strategy: f.Name(), What: "content ID", Err: err}
	}
	numID := extractNumericID(id)
	if numID == "" {
		return "", missing(f.Name(), "cannot extract numeric ID from %q", id)
	}
	return httputil.BuildURL(f.baseURL(), "ajax", "movie", "episodes", numID), nil
}

type flixServer struct {
	Name string
	ID   string
}

// parseServers extracts server options from an AJAX server list.
// Movie endpoints use data-linkid, TV episode endpoints use data-id.
func parseServers(doc *goquery.Document) []flixServer {
	var servers []flixServer
	seen := make(map[string]bool)

	doc.Find(".link-item, .server-item a, [data-id]").Each(func(_ int, s *goquery.Selection) {
		dataID, exists := s.Attr("data-linkid")
		if !exists {
			dataID, exists = s.Attr("data-id")
		}
		if !exists || dataID == "" || seen[dataID] {
			return
		}
		seen[dataID] = true

		name := strings.Join(strings.Fields(s.Text()), " ")
		if name == "" {
			name = s.AttrOr("title", "Unknown")
		}
		name = strings.TrimPrefix(name, "Server ")

		servers = append(servers, flixServer{Name: name, ID: dataID})
	})
	return servers
}

// extractNumericID extracts the trailing numeric ID from a path.
// e.g., "movie/free-the-exorcist-hd-75043" -> "75043"
func extractNumericID(id string) string {
	parts := strings.Split(id, "-")
	last := parts[len(parts)-1]
	if _, err := strconv.Atoi(last); err == nil {
		return last
	}
	return ""
}

// FlixHQSources turns a FlixHQ server ID into the embed it links to.
type FlixHQSources struct {
	base string
}

// NewFlixHQSources creates the resolver for base.
func NewFlixHQSources(base string) *FlixHQSources {
	return &FlixHQSources{base: strings.TrimSuffix(base, "/")}
}

func (f *FlixHQSources) Name() string    { return FlixHQSourcesResolver }
func (f *FlixHQSources) Hosts() []string { return nil }

func (f *FlixHQSources) Resolve(ctx context.Context, sess *Session, c media.Candidate) mo.Result[Outcome] {
	if err := httputil.ValidateID(c.Target); err != nil {
		return mo.Err[Outcome](&ExtractionError{Strategy: f.Name(), What: "server ID", Err: err})
	}

	base := f.base
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	// {"type":"iframe","link":"https://...","sources":[],"tracks":[],"title":""}
	var result struct {
		Link string `json:"link"`
	}
	req := httputil.Request{
		URL:    httputil.BuildURL(base, "ajax", "episode", "sources", c.Target),
		Header: xhrHeader(c.Referer),
	}
	if err := sess.JSON(ctx, req, &result); err != nil {
		return mo.Err[Outcome](fmt.Errorf("getting embed URL: %w", err))
	}
	if result.Link == "" {
		return mo.Err[Outcome](missing(f.Name(), "no embed URL for server %s", c.Target))
	}

	next := c
	next.Target = result.Link
	next.Resolver = ""
	next.Referer = base + "/"
	return mo.Ok(Outcome{Follow: []media.Candidate{next}})
}
