package resolve

import (
	"net/url"
	"sync"

	"linkchain/internal/media"
)

// emitter serializes callbacks and drops repeated URLs within one call.
type emitter struct {
	mu         sync.Mutex
	onStream   func(media.StreamLink)
	onSubtitle func(media.Subtitle)
	links      map[string]bool
	subs       map[string]bool
}

func newEmitter(onStream func(media.StreamLink), onSubtitle func(media.Subtitle)) *emitter {
	return &emitter{
		onStream:   onStream,
		onSubtitle: onSubtitle,
		links:      make(map[string]bool),
		subs:       make(map[string]bool),
	}
}

// link reports whether l was new and delivered.
func (e *emitter) link(l media.StreamLink) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.links[l.URL] {
		return false
	}
	e.links[l.URL] = true
	if e.onStream != nil {
		e.onStream(l)
	}
	return true
}

func (e *emitter) subtitle(s media.Subtitle) {
	if u, err := url.Parse(s.URL); err != nil || !u.IsAbs() || u.Host == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs[s.URL] {
		return
	}
	e.subs[s.URL] = true
	if e.onSubtitle != nil {
		e.onSubtitle(s)
	}
}

func (e *emitter) counts() (links, subtitles int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.links), len(e.subs)
}
