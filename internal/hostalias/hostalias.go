// Package hostalias maps deprecated or mirror hostnames to their current canonical host.
package hostalias

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Pair is one (old, new) mapping.
type Pair struct {
	Old string `toml:"old"`
	New string `toml:"new"`
}

// Defaults are embed mirrors that commonly show up with stale domains.
var Defaults = []Pair{
	{Old: "rabbitstream.net", New: "megacloud.tv"},
	{Old: "dokicloud.one", New: "megacloud.tv"},
	{Old: "vidplay.site", New: "vidplay.online"},
	{Old: "streamtape.net", New: "streamtape.com"},
	{Old: "strtape.cloud", New: "streamtape.com"},
	{Old: "sbembed.com", New: "streamsb.net"},
	{Old: "mixdrop.co", New: "mixdrop.ag"},
	{Old: "dood.watch", New: "doodstream.com"},
	{Old: "dood.to", New: "doodstream.com"},
}

// Table is read-only after New and safe for concurrent use.
type Table struct {
	m map[string]string
}

// New builds a table from pairs. Later pairs override earlier ones with the same old host.
func New(pairs ...Pair) (*Table, error) {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		old, nw := normalize(p.Old), normalize(p.New)
		if old == "" || nw == "" {
			return nil, fmt.Errorf("alias %q -> %q: both hosts are required", p.Old, p.New)
		}
		if old == nw {
			continue
		}
		m[old] = nw
	}
	return &Table{m: m}, nil
}

// ParsePair parses "old=new".
func ParsePair(s string) (Pair, error) {
	old, nw, ok := strings.Cut(s, "=")
	if !ok {
		return Pair{}, fmt.Errorf("alias %q: expected old=new", s)
	}
	p := Pair{Old: strings.TrimSpace(old), New: strings.TrimSpace(nw)}
	if p.Old == "" || p.New == "" {
		return Pair{}, fmt.Errorf("alias %q: both hosts are required", s)
	}
	return p, nil
}

// Canonical follows alias chains from host and returns the final host.
// Unknown hosts come back normalized. Cycles stop at the last unseen host.
func (t *Table) Canonical(host string) string {
	h := normalize(host)
	if t == nil {
		return h
	}
	seen := map[string]bool{h: true}
	for {
		next, ok := t.m[h]
		if !ok || seen[next] {
			return h
		}
		seen[next] = true
		h = next
	}
}

// Rewrite replaces the host of rawURL with its canonical form, keeping
// scheme, port, path and query. It reports whether anything changed.
func (t *Table) Rewrite(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL, false
	}
	host := normalize(u.Hostname())
	canon := t.Canonical(host)
	if canon == host {
		return rawURL, false
	}
	if port := u.Port(); port != "" {
		u.Host = canon + ":" + port
	} else {
		u.Host = canon
	}
	return u.String(), true
}

// Pairs returns the table's mappings sorted by old host.
func (t *Table) Pairs() []Pair {
	if t == nil {
		return nil
	}
	out := make([]Pair, 0, len(t.m))
	for old, nw := range t.m {
		out = append(out, Pair{Old: old, New: nw})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Old < out[j].Old })
	return out
}

// Len returns the number of mappings.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.m)
}

func normalize(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimSuffix(h, ".")
	return strings.TrimPrefix(h, "www.")
}
