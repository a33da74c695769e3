package resolve

import (
	"context"
	"iter"
	"sync/atomic"

	"linkchain/internal/media"
)

// Events returns a pull sequence over everything Resolve would emit for
// ref. The sequence is lazy and single-use: resolution starts on the first
// range and a second range yields nothing. Stopping early cancels the
// remaining work.
func (p *Pipeline) Events(ctx context.Context, ref media.WatchPage) iter.Seq[media.Event] {
	var used atomic.Bool
	return func(yield func(media.Event) bool) {
		if used.Swap(true) {
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		ch := make(chan media.Event)
		send := func(ev media.Event) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}
		go func() {
			defer close(ch)
			p.Resolve(ctx, ref,
				func(l media.StreamLink) { send(media.Event{Link: &l}) },
				func(s media.Subtitle) { send(media.Event{Subtitle: &s}) },
			)
		}()

		for ev := range ch {
			if !yield(ev) {
				cancel()
				break
			}
		}
		// Let the producer finish so no goroutine outlives the range.
		for range ch {
		}
	}
}
