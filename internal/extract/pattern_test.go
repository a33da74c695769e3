package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"linkchain/internal/media"
)

func TestFindMediaURL(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{
			name:   "file key",
			body:   `jwplayer().setup({file:"https://cdn.a.com/hls/master.m3u8"});`,
			want:   "https://cdn.a.com/hls/master.m3u8",
			wantOK: true,
		},
		{
			name:   "single quotes and spacing",
			body:   `player.src({ source: 'https://cdn.a.com/v.mp4' })`,
			want:   "https://cdn.a.com/v.mp4",
			wantOK: true,
		},
		{
			name:   "json escaped slashes",
			body:   `{"file":"https:\/\/cdn.a.com\/x\/index.m3u8?t=1&e=2"}`,
			want:   "https://cdn.a.com/x/index.m3u8?t=1&e=2",
			wantOK: true,
		},
		{
			name:   "earlier pattern wins",
			body:   `source: "https://b.com/second.mp4"; file: "https://a.com/first.m3u8"`,
			want:   "https://a.com/first.m3u8",
			wantOK: true,
		},
		{
			name:   "skips values without media extension",
			body:   `file: "https://a.com/poster.jpg", file: "https://a.com/video.mp4"`,
			want:   "https://a.com/video.mp4",
			wantOK: true,
		},
		{
			name: "media word in host only",
			body: `file: "https://www.mp4upload.com/embed-abc123.html"`,
		},
		{
			name:   "playlist named in query",
			body:   `file:"https://cdn.example/stream.php?f=master.m3u8"`,
			want:   "https://cdn.example/stream.php?f=master.m3u8",
			wantOK: true,
		},
		{
			name:   "relative made absolute",
			body:   `file: "/streams/v.m3u8"`,
			want:   "https://embed.example/streams/v.m3u8",
			wantOK: true,
		},
		{
			name:   "no media extension",
			body:   `file: "https://a.com/embed/abc"`,
			wantOK: false,
		},
		{
			name:   "nothing",
			body:   `<html></html>`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindMediaURL(tt.body, "https://embed.example/e/1")
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("FindMediaURL() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPatternStrategy(t *testing.T) {
	s := NewPatternStrategy()
	doc := testDoc(t, "https://site.com/watch/1", `<script>var p = {file:"https://cdn.site.com/a/master.m3u8"};</script>`)

	got, err := s.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Extract() = %d candidates, want 1", len(got))
	}
	if got[0].Target != "https://cdn.site.com/a/master.m3u8" {
		t.Errorf("Target = %q", got[0].Target)
	}
	if got[0].Host != "site.com" {
		t.Errorf("Host = %q, want page host label", got[0].Host)
	}

	empty := testDoc(t, "https://site.com/watch/2", `<p>nothing</p>`)
	got, err = s.Extract(context.Background(), empty)
	if err != nil || len(got) != 0 {
		t.Errorf("Extract(empty) = %v, %v; want no candidates and no error", got, err)
	}
}

func TestPatternResolver(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/e/good":
			if r.Header.Get("Referer") != "https://site.com/watch/1" {
				t.Errorf("Referer = %q", r.Header.Get("Referer"))
			}
			w.Write([]byte(`<script>sources: [{file:"https://cdn.vid.com/720/index.m3u8"}]</script>`))
		default:
			w.Write([]byte(`<p>gone</p>`))
		}
	}))
	defer ts.Close()

	p := NewPatternResolver("vid.com")
	sess := newTestSession(ts)

	res := p.Resolve(context.Background(), sess, media.Candidate{
		Target:  ts.URL + "/e/good",
		Host:    "Vidmoly",
		Referer: "https://site.com/watch/1",
	})
	out, err := res.Get()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(out.Links) != 1 {
		t.Fatalf("links = %d, want 1", len(out.Links))
	}
	link := out.Links[0]
	if link.Kind != media.HLS || link.Quality != 720 || link.Source != "Vidmoly" {
		t.Errorf("link = %+v", link)
	}
	if link.Referer != ts.URL+"/" {
		t.Errorf("link Referer = %q, want embed origin", link.Referer)
	}

	res = p.Resolve(context.Background(), sess, media.Candidate{Target: ts.URL + "/e/gone"})
	var ee *ExtractionError
	if !res.IsError() || !errors.As(res.Error(), &ee) {
		t.Errorf("Resolve(gone) = %v, want *ExtractionError", res.Error())
	}
}
