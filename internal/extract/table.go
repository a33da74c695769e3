package extract

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Table is the flat lookup of strategies and resolvers. Build it once at
// startup; it is read-only afterwards.
type Table struct {
	strategies []Strategy
	byName     map[string]Resolver
	byHost     map[string]Resolver
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		byName: make(map[string]Resolver),
		byHost: make(map[string]Resolver),
	}
}

// AddStrategy appends a page-scan strategy. Strategies run in insertion order.
func (t *Table) AddStrategy(s Strategy) {
	t.strategies = append(t.strategies, s)
}

// AddResolver registers r under its name and every host it claims.
func (t *Table) AddResolver(r Resolver) error {
	name := strings.ToLower(r.Name())
	if _, dup := t.byName[name]; dup {
		return fmt.Errorf("resolver %q registered twice", r.Name())
	}
	t.byName[name] = r
	for _, h := range r.Hosts() {
		h = normalizeHost(h)
		if h == "" {
			continue
		}
		if prev, dup := t.byHost[h]; dup {
			return fmt.Errorf("host %q claimed by both %q and %q", h, prev.Name(), r.Name())
		}
		t.byHost[h] = r
	}
	return nil
}

// Strategies returns the strategies that accept the page, in order.
func (t *Table) Strategies(page *url.URL, hostLabel string) []Strategy {
	return lo.Filter(t.strategies, func(s Strategy, _ int) bool {
		return s.CanHandle(page, hostLabel)
	})
}

// ByName looks up a resolver by name.
func (t *Table) ByName(name string) (Resolver, bool) {
	r, ok := t.byName[strings.ToLower(name)]
	return r, ok
}

// ForHost looks up a resolver by host, falling back to parent domains
// ("cdn.megacloud.tv" matches "megacloud.tv").
func (t *Table) ForHost(host string) (Resolver, bool) {
	h := normalizeHost(host)
	for h != "" {
		if r, ok := t.byHost[h]; ok {
			return r, true
		}
		_, parent, found := strings.Cut(h, ".")
		if !found || !strings.Contains(parent, ".") {
			return nil, false
		}
		h = parent
	}
	return nil, false
}

// Names lists strategy and resolver names, for diagnostics.
func (t *Table) Names() (strategies, resolvers []string) {
	strategies = lo.Map(t.strategies, func(s Strategy, _ int) string { return s.Name() })
	resolvers = lo.Map(lo.Values(t.byName), func(r Resolver, _ int) string { return r.Name() })
	sort.Strings(resolvers)
	return strategies, resolvers
}

func normalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if strings.Contains(h, "://") {
		if u, err := url.Parse(h); err == nil {
			h = u.Hostname()
		}
	} else if hh, _, ok := strings.Cut(h, ":"); ok {
		h = hh
	}
	return strings.TrimPrefix(h, "www.")
}
