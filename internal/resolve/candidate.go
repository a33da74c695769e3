package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"github.com/samber/mo"
	"github.com/sirupsen/logrus"

	"linkchain/internal/extract"
	"linkchain/internal/media"
)

// runCandidate resolves one server candidate, following chained candidates
// up to maxHops, and returns how many links it emitted. A panic anywhere in
// the chain becomes an error for this candidate only.
func (p *Pipeline) runCandidate(ctx context.Context, sess *extract.Session, c media.Candidate, order int, em *emitter, log logrus.FieldLogger) (res mo.Result[int]) {
	sink := &candidateSink{em: em, pipeline: p, order: order}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Error("candidate panicked")
			res = mo.Err[int](fmt.Errorf("panic: %v", r))
		}
	}()

	var errs []error
	queue := []media.Candidate{c}
	for hop := 0; len(queue) > 0; hop++ {
		if hop > p.maxHops {
			errs = append(errs, &extract.ExtractionError{Strategy: "pipeline", What: fmt.Sprintf("gave up after %d follow-up hops", p.maxHops)})
			break
		}
		var next []media.Candidate
		for _, cur := range queue {
			if err := ctx.Err(); err != nil {
				return mo.Err[int](err)
			}
			out, err := p.step(ctx, sess, cur, sink, log).Get()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, l := range out.Links {
				sink.link(cur, l, false)
			}
			for _, s := range out.Subtitles {
				sink.subtitle(s)
			}
			next = append(next, out.Follow...)
		}
		queue = next
	}

	switch {
	case sink.emitted.Load() > 0:
		if len(errs) > 0 {
			log.WithError(errors.Join(errs...)).Debug("some follow-ups failed")
		}
		return mo.Ok(int(sink.emitted.Load()))
	case len(errs) == 1:
		return mo.Err[int](errs[0])
	case len(errs) > 1:
		return mo.Err[int](errors.Join(errs...))
	}
	return mo.Ok(0)
}

// step dispatches one candidate: a named resolver wins, otherwise the
// target host is normalized through the alias table and the candidate goes
// to a direct link, the host's resolver, or the generic extractor, in that order.
func (p *Pipeline) step(ctx context.Context, sess *extract.Session, c media.Candidate, sink *candidateSink, log logrus.FieldLogger) mo.Result[extract.Outcome] {
	if c.Resolver != "" {
		r, ok := p.table.ByName(c.Resolver)
		if !ok {
			return mo.Err[extract.Outcome](&extract.ExtractionError{Strategy: "pipeline", What: fmt.Sprintf("unknown resolver %q", c.Resolver)})
		}
		return r.Resolve(ctx, sess, c)
	}

	if rewritten, ok := p.aliases.Rewrite(c.Target); ok {
		log.WithFields(logrus.Fields{"from": c.Target, "to": rewritten}).Debug("rewrote alias host")
		c.Target = rewritten
	}
	u, err := url.Parse(c.Target)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return mo.Err[extract.Outcome](&extract.ExtractionError{Strategy: "pipeline", What: fmt.Sprintf("target %q is not an absolute URL", c.Target)})
	}

	if media.HasMediaExtension(c.Target) {
		link := media.NewLink(c.Target, c.Referer, c.Label())
		return mo.Ok(extract.Outcome{Links: []media.StreamLink{link}})
	}
	if r, ok := p.table.ForHost(u.Host); ok {
		return r.Resolve(ctx, sess, c)
	}
	return p.viaGeneric(ctx, c, sink)
}

// viaGeneric hands c to the generic extractor. Its results go straight to
// the caller, re-tagged with the candidate's label and language.
func (p *Pipeline) viaGeneric(ctx context.Context, c media.Candidate, sink *candidateSink) mo.Result[extract.Outcome] {
	host := strings.TrimPrefix(hostOf(c.Target), "www.")
	if p.generic == nil {
		return mo.Err[extract.Outcome](&UpstreamRejection{URL: c.Target, Host: host, Reason: "no generic extractor configured"})
	}

	before := sink.emitted.Load()
	ok := p.generic.ResolveGeneric(ctx, c.Target, c.Referer,
		func(s media.Subtitle) { sink.subtitle(s) },
		func(l media.StreamLink) { sink.link(c, l, true) },
	)
	if !ok && sink.emitted.Load() == before {
		return mo.Err[extract.Outcome](&UpstreamRejection{URL: c.Target, Host: host})
	}
	return mo.Ok(extract.Outcome{})
}

// candidateSink counts what one candidate delivered to the shared emitter.
type candidateSink struct {
	em       *emitter
	pipeline *Pipeline
	order    int
	emitted  atomic.Int32 // Generic extractors may call back from any goroutine
}

func (s *candidateSink) link(c media.Candidate, l media.StreamLink, relabel bool) {
	if relabel || l.Source == "" {
		l.Source = c.Label()
	}
	if lang, ok := c.Language.Get(); ok {
		l.Source = s.pipeline.displayName(l.Source, lang)
	}
	if l.Referer == "" {
		l.Referer = c.Referer
	}
	l.Order = s.order
	if l.Validate() != nil {
		return
	}
	if s.em.link(l) {
		s.emitted.Add(1)
	}
}

func (s *candidateSink) subtitle(sub media.Subtitle) {
	s.em.subtitle(sub)
}

// displayName composes "<label> [<language>]". The "1" and "0" codes map to
// the dub and sub labels; any other code passes through unchanged.
func (p *Pipeline) displayName(label, lang string) string {
	lang = strings.TrimSpace(lang)
	switch lang {
	case "":
		return label
	case "1":
		lang = p.dubLabel
	case "0":
		lang = p.subLabel
	}
	if label == "" {
		return lang
	}
	return label + " [" + lang + "]"
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
