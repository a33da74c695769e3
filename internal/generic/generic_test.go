package generic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"linkchain/internal/httputil"
	"linkchain/internal/media"
)

func newAPI(t *testing.T) (*httptest.Server, *httputil.Fetcher) {
	t.Helper()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("url") {
		case "https://vidhost.example/e/ok":
			if r.URL.Query().Get("referer") != "https://site.example/watch/1" {
				t.Errorf("referer param = %q", r.URL.Query().Get("referer"))
			}
			fmt.Fprint(w, `{
  "headers": {"Referer": "https://vidhost.example/", "Origin": "https://vidhost.example"},
  "sources": [
    {"url": "https://cdn.vidhost.example/master.m3u8", "quality": "auto", "isM3U8": true},
    {"url": "https://cdn.vidhost.example/720.mp4", "quality": "720p", "isM3U8": false},
    {"url": "https://cdn.vidhost.example/drm.mpd", "quality": "1080", "drm": {"kid": "k1", "key": "v1"}},
    {"url": ""}
  ],
  "subtitles": [
    {"url": "https://cdn.vidhost.example/en.vtt", "lang": "English", "label": "English"},
    {"url": "", "lang": "French"}
  ]
}`)
		case "https://vidhost.example/e/empty":
			fmt.Fprint(w, `{"sources": []}`)
		default:
			http.Error(w, "unsupported host", http.StatusBadRequest)
		}
	}))
	t.Cleanup(ts.Close)
	logger, _ := test.NewNullLogger()
	return ts, httputil.New(httputil.Options{Client: ts.Client(), Logger: logger})
}

func TestResolveGeneric(t *testing.T) {
	ts, f := newAPI(t)
	logger, _ := test.NewNullLogger()
	c := New(ts.URL+"/extract", f, logger)

	var links []media.StreamLink
	var subs []media.Subtitle
	ok := c.ResolveGeneric(context.Background(), "https://vidhost.example/e/ok", "https://site.example/watch/1",
		func(s media.Subtitle) { subs = append(subs, s) },
		func(l media.StreamLink) { links = append(links, l) },
	)
	if !ok {
		t.Fatal("ResolveGeneric() = false")
	}
	if len(links) != 3 {
		t.Fatalf("links = %d, want 3", len(links))
	}

	tests := []struct {
		i       int
		kind    media.Kind
		quality media.Quality
		drm     bool
	}{
		{0, media.HLS, media.QualityUnknown, false},
		{1, media.Progressive, 720, false},
		{2, media.DASH, 1080, true},
	}
	for _, tt := range tests {
		l := links[tt.i]
		if l.Kind != tt.kind || l.Quality != tt.quality || (l.DRM != nil) != tt.drm {
			t.Errorf("link %d = %+v", tt.i, l)
		}
		if l.Referer != "https://vidhost.example/" {
			t.Errorf("link %d referer = %q, want the API's", tt.i, l.Referer)
		}
		if l.Headers["Origin"] != "https://vidhost.example" {
			t.Errorf("link %d headers = %v", tt.i, l.Headers)
		}
		if _, dup := l.Headers["Referer"]; dup {
			t.Errorf("link %d keeps Referer in headers", tt.i)
		}
	}
	if links[2].DRM.KeyID != "k1" || links[2].DRM.Key != "v1" {
		t.Errorf("drm = %+v", links[2].DRM)
	}

	if len(subs) != 1 || subs[0].Language != "English" {
		t.Errorf("subtitles = %+v", subs)
	}
}

func TestResolveGenericRejects(t *testing.T) {
	ts, f := newAPI(t)

	tests := []struct {
		name     string
		endpoint string
		embed    string
	}{
		{"no endpoint", "", "https://vidhost.example/e/ok"},
		{"bad endpoint", "::not a url", "https://vidhost.example/e/ok"},
		{"no sources", ts.URL + "/extract", "https://vidhost.example/e/empty"},
		{"api error", ts.URL + "/extract", "https://other.example/e/1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			ok := New(tt.endpoint, f, nil).ResolveGeneric(context.Background(), tt.embed, "", nil,
				func(media.StreamLink) { called = true })
			if ok || called {
				t.Errorf("ResolveGeneric() = %v, emitted = %v; want a rejection", ok, called)
			}
		})
	}
}
