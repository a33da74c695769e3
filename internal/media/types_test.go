package media

import (
	"testing"
)

func TestParseQuality(t *testing.T) {
	tests := []struct {
		in   string
		want Quality
	}{
		{"1080p", 1080},
		{"720", 720},
		{" 480P ", 480},
		{"HD", 720},
		{"fullhd", 1080},
		{"4K", 2160},
		{"auto", QualityUnknown},
		{"", QualityUnknown},
		{"https://cdn.example/hls/720/index.m3u8", 720},
		{"https://cdn.example/video_1080p.mp4", 1080},
		{"https://cdn.example/master.m3u8", QualityUnknown},
		{"https://cdn.example/id/17201/master.m3u8", QualityUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseQuality(tt.in); got != tt.want {
				t.Errorf("ParseQuality(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestKindFromURL(t *testing.T) {
	tests := []struct {
		url  string
		kind Kind
		hasM bool
	}{
		{"https://cdn.example/a/master.m3u8?token=1", HLS, true},
		{"https://cdn.example/a/manifest.mpd", DASH, false},
		{"https://cdn.example/a/video.MP4", Progressive, true},
		{"https://cdn.example/play?file=video.mp4", Progressive, true},
		{"https://host.example/e/abc", Progressive, false},
		{"https://www.mp4upload.com/embed-abc123.html", Progressive, false},
		{"https://m3u8.example/watch", Progressive, false},
		{"https://cdn.example/stream.php?f=master.m3u8", HLS, true},
		{"https://cdn.example/go?u=https%3A%2F%2Fcdn.example%2Fv.mp4%3Fe%3D1", Progressive, true},
		{"https://cdn.example/hls/index.m3u8/seg-1.ts", HLS, true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := KindFromURL(tt.url); got != tt.kind {
				t.Errorf("KindFromURL() = %v, want %v", got, tt.kind)
			}
			if got := HasMediaExtension(tt.url); got != tt.hasM {
				t.Errorf("HasMediaExtension() = %v, want %v", got, tt.hasM)
			}
		})
	}
	if !HLS.Segmented() || !DASH.Segmented() || Progressive.Segmented() {
		t.Error("only HLS and DASH are segmented")
	}
}

func TestStreamLinkValidate(t *testing.T) {
	tests := []struct {
		name    string
		link    StreamLink
		wantErr bool
	}{
		{"ok", StreamLink{URL: "https://cdn.example/a.mp4", Quality: 720}, false},
		{"unknown quality", StreamLink{URL: "https://cdn.example/a.mp4", Quality: QualityUnknown}, false},
		{"empty", StreamLink{}, true},
		{"relative", StreamLink{URL: "/a.mp4"}, true},
		{"negative quality", StreamLink{URL: "https://cdn.example/a.mp4", Quality: -5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.link.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSortLinks(t *testing.T) {
	links := []StreamLink{
		{URL: "a", Quality: 720, Order: 2},
		{URL: "b", Quality: QualityUnknown, Order: 0},
		{URL: "c", Quality: 1080, Order: 3},
		{URL: "d", Quality: 720, Order: 1},
	}
	SortLinks(links)
	want := []string{"c", "d", "a", "b"}
	for i, w := range want {
		if links[i].URL != w {
			t.Errorf("position %d = %q, want %q", i, links[i].URL, w)
		}
	}
}

func TestNewWatchPage(t *testing.T) {
	page, err := NewWatchPage(" https://www.site.example/watch/1 ",
		WithEpisode(2, 5), WithContentID("98765"), WithReferer("https://site.example/"))
	if err != nil {
		t.Fatalf("NewWatchPage() error: %v", err)
	}
	if page.URL != "https://www.site.example/watch/1" || page.HostLabel != "site.example" {
		t.Errorf("page = %+v", page)
	}
	if s, ok := page.Season.Get(); !ok || s != 2 {
		t.Errorf("season = %v", page.Season)
	}
	if e, ok := page.Episode.Get(); !ok || e != 5 {
		t.Errorf("episode = %v", page.Episode)
	}

	movie, err := NewWatchPage("https://site.example/movie/1", WithEpisode(0, 0), WithHostLabel("Site"))
	if err != nil {
		t.Fatal(err)
	}
	if movie.Season.IsPresent() || movie.Episode.IsPresent() || movie.HostLabel != "Site" {
		t.Errorf("movie page = %+v", movie)
	}

	for _, bad := range []string{"ftp://site.example/x", "/watch/1", "https://"} {
		if _, err := NewWatchPage(bad); err == nil {
			t.Errorf("NewWatchPage(%q) accepted", bad)
		}
	}
}

func TestCandidateLabel(t *testing.T) {
	tests := []struct {
		c    Candidate
		want string
	}{
		{Candidate{Host: "Vidcloud", Target: "https://x.example/e/1"}, "Vidcloud"},
		{Candidate{Target: "https://www.streamtape.com/e/1"}, "streamtape.com"},
		{Candidate{Target: "aGVsbG8="}, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.c.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}
