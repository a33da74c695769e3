package cmd

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"linkchain/internal/config"
	"linkchain/internal/extract"
	"linkchain/internal/generic"
	"linkchain/internal/hostalias"
	"linkchain/internal/httputil"
	"linkchain/internal/resolve"
)

func newFetcher(c *config.Config, log logrus.FieldLogger) *httputil.Fetcher {
	return httputil.New(httputil.Options{
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
		UserAgent:         c.UserAgent,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		ImpersonateTLS:    c.ImpersonateTLS,
		AllowHTTP:         c.AllowHTTP,
		Logger:            log,
	})
}

// buildTable registers the site strategies and host resolvers from s.
// Page strategies run in registration order, so the catch-all pattern scan
// goes last.
func buildTable(s config.Sites, f extract.Fetcher) (*extract.Table, error) {
	t := extract.NewTable()

	t.AddStrategy(extract.NewFlixHQ(s.FlixHQBase, f))
	for _, sc := range s.Script {
		st, err := extract.NewScriptStrategy(sc)
		if err != nil {
			return nil, err
		}
		t.AddStrategy(st)
	}
	for _, tc := range s.Token {
		st, err := extract.NewTokenStrategy(tc)
		if err != nil {
			return nil, err
		}
		t.AddStrategy(st)
	}
	t.AddStrategy(extract.NewServerListStrategy())
	t.AddStrategy(extract.NewPatternStrategy())

	mega := extract.NewMegaCloud(s.MegaCloudHosts...)
	if s.MegaCloudKeysURL != "" {
		mega = mega.WithKeysURL(s.MegaCloudKeysURL)
	}
	resolvers := []extract.Resolver{
		mega,
		extract.NewFlixHQSources(s.FlixHQBase),
		extract.NewPatternResolver(s.PatternHosts...),
	}
	for _, fc := range s.FormChain {
		r, err := extract.NewFormChainResolver(fc)
		if err != nil {
			return nil, err
		}
		resolvers = append(resolvers, r)
	}
	for _, r := range resolvers {
		if err := t.AddResolver(r); err != nil {
			return nil, fmt.Errorf("registering %s: %w", r.Name(), err)
		}
	}
	return t, nil
}

// newPipeline wires everything a resolve call needs. rec may be nil.
func newPipeline(c *config.Config, log logrus.FieldLogger, rec resolve.Recorder) (*resolve.Pipeline, *httputil.Fetcher, error) {
	f := newFetcher(c, log)

	table, err := buildTable(c.Sites, f)
	if err != nil {
		return nil, nil, err
	}
	aliases, err := hostalias.New(c.AliasPairs()...)
	if err != nil {
		return nil, nil, err
	}

	opts := []resolve.Option{
		resolve.WithTable(table),
		resolve.WithAliases(aliases),
		resolve.WithWorkers(c.Workers),
		resolve.WithMaxHops(c.MaxHops),
		resolve.WithLabels(c.DubLabel, c.SubLabel),
		resolve.WithLogger(log),
	}
	if c.GenericEndpoint != "" {
		opts = append(opts, resolve.WithGeneric(generic.New(c.GenericEndpoint, f, log)))
	}
	if rec != nil {
		opts = append(opts, resolve.WithRecorder(rec))
	}
	return resolve.New(f, opts...), f, nil
}
