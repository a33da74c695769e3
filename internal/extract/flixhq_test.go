package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"linkchain/internal/media"
)

func newFlixServer(t *testing.T) *httptest.Server {
	t.Helper()
	movie := loadFixture(t, "flixhq_movie_servers.html")
	episode := loadFixture(t, "flixhq_episode_servers.html")
	return httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ajax/movie/episodes/98765":
			fmt.Fprint(w, movie)
		case r.URL.Path == "/ajax/v2/episode/servers/4857451":
			fmt.Fprint(w, episode)
		case strings.HasPrefix(r.URL.Path, "/ajax/episode/sources/"):
			id := strings.TrimPrefix(r.URL.Path, "/ajax/episode/sources/")
			if id == "0" {
				fmt.Fprint(w, `{"type":"iframe","link":""}`)
				return
			}
			fmt.Fprintf(w, `{"type":"iframe","link":"https://megacloud.tv/embed-2/v3/e-1/%s?z=","sources":[]}`, id)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestFlixHQExtract(t *testing.T) {
	ts := newFlixServer(t)
	defer ts.Close()
	f := NewFlixHQ(ts.URL, newTestFetcher(ts))

	tests := []struct {
		name      string
		page      string
		opts      []media.PageOption
		wantIDs   []string
		wantNames []string
	}{
		{
			name:      "movie",
			page:      ts.URL + "/movie/watch-dune-part-two-hd-98765",
			wantIDs:   []string{"10325812", "10325813"},
			wantNames: []string{"UpCloud", "Vidcloud"},
		},
		{
			name:      "tv episode from URL",
			page:      ts.URL + "/watch-tv/watch-breaking-bad-39516.4857451",
			wantIDs:   []string{"11112222", "11112223"},
			wantNames: []string{"UpCloud", "MegaCloud"},
		},
		{
			name:      "tv episode from content ID",
			page:      ts.URL + "/tv/watch-breaking-bad-39516",
			opts:      []media.PageOption{media.WithContentID("4857451")},
			wantIDs:   []string{"11112222", "11112223"},
			wantNames: []string{"UpCloud", "MegaCloud"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDoc(t, tt.page, "", tt.opts...)
			if !f.CanHandle(doc.URL, doc.Page.HostLabel) {
				t.Fatal("CanHandle() = false for own host")
			}
			got, err := f.Extract(context.Background(), doc)
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Extract() = %d candidates, want %d", len(got), len(tt.wantIDs))
			}
			for i, c := range got {
				if c.Target != tt.wantIDs[i] || c.Host != tt.wantNames[i] {
					t.Errorf("candidate %d = {%q %q}, want {%q %q}", i, c.Target, c.Host, tt.wantIDs[i], tt.wantNames[i])
				}
				if c.Resolver != FlixHQSourcesResolver {
					t.Errorf("candidate %d resolver = %q", i, c.Resolver)
				}
			}
		})
	}
}

func TestFlixHQExtractBadPage(t *testing.T) {
	f := NewFlixHQ("flixhq.to", nil)
	tests := []string{
		"https://flixhq.to/watch-tv/no-episode-id",
		"https://flixhq.to/movie/no-number-here",
	}
	for _, page := range tests {
		t.Run(page, func(t *testing.T) {
			_, err := f.Extract(context.Background(), testDoc(t, page, ""))
			if err == nil {
				t.Error("Extract() succeeded without an ID")
			}
		})
	}

	other, _ := url.Parse("https://example.com/movie/x-1")
	if f.CanHandle(other, "") {
		t.Error("CanHandle() accepted a foreign host")
	}
}

func TestFlixHQSources(t *testing.T) {
	ts := newFlixServer(t)
	defer ts.Close()
	r := NewFlixHQSources(ts.URL)
	sess := newTestSession(ts)

	out, err := r.Resolve(context.Background(), sess, media.Candidate{Target: "10325812", Host: "UpCloud", Resolver: FlixHQSourcesResolver}).Get()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(out.Follow) != 1 {
		t.Fatalf("follow = %d, want 1", len(out.Follow))
	}
	next := out.Follow[0]
	if next.Target != "https://megacloud.tv/embed-2/v3/e-1/10325812?z=" || next.Resolver != "" || next.Host != "UpCloud" {
		t.Errorf("follow = %+v", next)
	}

	if res := r.Resolve(context.Background(), sess, media.Candidate{Target: "0"}); !res.IsError() {
		t.Error("Resolve() accepted an empty link")
	}
	if res := r.Resolve(context.Background(), sess, media.Candidate{Target: "../etc"}); !res.IsError() {
		t.Error("Resolve() accepted a traversal ID")
	}
}

func TestParseServers(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div class="server-item"><a data-id="1" title="Server X"></a></div><a data-id="">empty</a>`))
	if err != nil {
		t.Fatal(err)
	}
	got := parseServers(doc)
	if len(got) != 1 || got[0].ID != "1" || got[0].Name != "X" {
		t.Errorf("parseServers() = %+v", got)
	}
}

func TestExtractNumericID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"movie/free-the-exorcist-hd-75043", "75043"},
		{"tv/watch-breaking-bad-39516", "39516"},
		{"no-number-here", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := extractNumericID(tt.input); got != tt.expected {
				t.Errorf("extractNumericID(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
