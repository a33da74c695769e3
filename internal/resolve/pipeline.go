// Package resolve turns a watch page into stream links. It runs the page
// strategies, then resolves every server candidate concurrently through the
// resolver table, falling back to a generic extractor for unknown hosts.
package resolve

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/remeh/sizedwaitgroup"
	"github.com/sirupsen/logrus"

	"linkchain/internal/extract"
	"linkchain/internal/hostalias"
	"linkchain/internal/media"
)

const (
	DefaultWorkers  = 6
	DefaultMaxHops  = 4
	DefaultDubLabel = "Dub"
	DefaultSubLabel = "Sub"
)

// Recorder receives one report per resolve call.
type Recorder interface {
	Record(ctx context.Context, r media.Report) error
}

// Pipeline is safe for concurrent use; nothing is shared between calls
// except the read-only tables.
type Pipeline struct {
	fetcher    extract.Fetcher
	table      *extract.Table
	aliases    *hostalias.Table
	generic    GenericExtractor
	workers    int
	maxHops    int
	sessionTTL time.Duration
	dubLabel   string
	subLabel   string
	recorder   Recorder
	log        logrus.FieldLogger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTable replaces the default strategy and resolver table.
func WithTable(t *extract.Table) Option {
	return func(p *Pipeline) { p.table = t }
}

// WithAliases replaces the built-in host alias table.
func WithAliases(t *hostalias.Table) Option {
	return func(p *Pipeline) { p.aliases = t }
}

// WithGeneric sets the fallback extractor for hosts no resolver claims.
func WithGeneric(g GenericExtractor) Option {
	return func(p *Pipeline) { p.generic = g }
}

// WithWorkers bounds how many candidates resolve at once.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxHops bounds how many follow-up candidates one server may chain through.
func WithMaxHops(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxHops = n
		}
	}
}

// WithSessionTTL sets how long session memo values (e.g. decryption keys) stay fresh.
func WithSessionTTL(d time.Duration) Option {
	return func(p *Pipeline) { p.sessionTTL = d }
}

// WithLabels sets the display tags for the "1" (dub) and "0" (sub) language codes.
func WithLabels(dub, sub string) Option {
	return func(p *Pipeline) {
		if dub != "" {
			p.dubLabel = dub
		}
		if sub != "" {
			p.subLabel = sub
		}
	}
}

// WithRecorder journals every resolve call.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithLogger sets the logger. Candidate failures are logged here and never returned.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// New builds a pipeline around f. Without WithTable it scans pages with the
// pattern and server-list strategies only.
func New(f extract.Fetcher, opts ...Option) *Pipeline {
	aliases, _ := hostalias.New(hostalias.Defaults...)
	p := &Pipeline{
		fetcher:  f,
		aliases:  aliases,
		workers:  DefaultWorkers,
		maxHops:  DefaultMaxHops,
		dubLabel: DefaultDubLabel,
		subLabel: DefaultSubLabel,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.table == nil {
		p.table = extract.NewTable()
		p.table.AddStrategy(extract.NewPatternStrategy())
		p.table.AddStrategy(extract.NewServerListStrategy())
	}
	return p
}

// Resolve fetches the page, finds its server candidates and resolves them.
// onStream and onSubtitle are never called concurrently, and each link or
// subtitle URL is delivered at most once per call. Either callback may be
// nil. It reports whether at least one link was emitted; only a failure to
// fetch the page itself is fatal, every candidate failure is logged and skipped.
func (p *Pipeline) Resolve(ctx context.Context, ref media.WatchPage, onStream func(media.StreamLink), onSubtitle func(media.Subtitle)) bool {
	log := p.log.WithFields(logrus.Fields{"page": ref.URL, "site": ref.HostLabel})
	report := media.Report{PageURL: ref.URL, StartedAt: time.Now()}
	em := newEmitter(onStream, onSubtitle)
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		report.Links, report.Subtitles = em.counts()
		report.OK = report.Links > 0
		p.record(ctx, report, log)
	}()

	sess := extract.NewSession(p.fetcher, p.sessionTTL)
	doc, err := p.fetchPage(ctx, sess, ref)
	if err != nil {
		log.WithError(err).Warn("fetching watch page")
		report.Failures = 1
		return false
	}

	candidates := p.candidates(ctx, doc, log)
	report.Candidates = len(candidates)
	if len(candidates) == 0 {
		log.Info("no server candidates on page")
		return false
	}
	log.WithField("candidates", len(candidates)).Debug("resolving candidates")

	var failures atomic.Int32
	swg := sizedwaitgroup.New(p.workers)
	for i, c := range candidates {
		if err := swg.AddWithContext(ctx); err != nil {
			log.WithField("pending", len(candidates)-i).Debug("canceled before dispatch")
			break
		}
		go func(order int, c media.Candidate) {
			defer swg.Done()
			clog := log.WithFields(logrus.Fields{"server": c.Label(), "target": c.Target, "index": order})
			n, err := p.runCandidate(ctx, sess, c, order, em, clog).Get()
			if err != nil {
				failures.Add(1)
				logFailure(clog, err)
				return
			}
			clog.WithField("links", n).Debug("candidate resolved")
		}(i, c)
	}
	swg.Wait()

	report.Failures = int(failures.Load())
	links, subs := em.counts()
	log.WithFields(logrus.Fields{"links": links, "subtitles": subs, "failed": report.Failures}).Info("resolved page")
	return links > 0
}

func (p *Pipeline) fetchPage(ctx context.Context, sess *extract.Session, ref media.WatchPage) (*extract.Document, error) {
	resp, err := sess.Get(ctx, ref.URL, ref.Referer)
	if err != nil {
		return nil, err
	}
	return extract.NewDocument(ref, resp.URL, resp.Body), nil
}

// candidates runs every accepting strategy and merges the results, ordered
// by strategy then page index, without duplicate (target, resolver) pairs.
func (p *Pipeline) candidates(ctx context.Context, doc *extract.Document, log logrus.FieldLogger) []media.Candidate {
	var out []media.Candidate
	seen := make(map[string]bool)
	for _, s := range p.table.Strategies(doc.URL, doc.Page.HostLabel) {
		slog := log.WithField("strategy", s.Name())
		found, err := safeExtract(ctx, s, doc)
		if err != nil {
			// Partial results are still usable.
			logFailure(slog, err)
		}
		sort.SliceStable(found, func(i, j int) bool { return found[i].Index < found[j].Index })
		for _, c := range found {
			key := p.dedupKey(c)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, c)
		}
		slog.WithField("found", len(found)).Debug("strategy done")
	}
	return out
}

func (p *Pipeline) dedupKey(c media.Candidate) string {
	target := strings.TrimSpace(c.Target)
	if c.Resolver == "" {
		target, _ = p.aliases.Rewrite(target)
	}
	return target + "\x00" + strings.ToLower(c.Resolver)
}

func safeExtract(ctx context.Context, s extract.Strategy, doc *extract.Document) (found []media.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			found, err = nil, fmt.Errorf("strategy %s panicked: %v\n%s", s.Name(), r, debug.Stack())
		}
	}()
	return s.Extract(ctx, doc)
}

func (p *Pipeline) record(ctx context.Context, r media.Report, log logrus.FieldLogger) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(context.WithoutCancel(ctx), r); err != nil {
		log.WithError(err).Warn("recording resolve report")
	}
}
