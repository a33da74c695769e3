package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// clientKeyPatterns are the places embed pages hide the client key. The
// page picks one per request; earlier entries take priority.
var clientKeyPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"meta", regexp.MustCompile(`<meta name="_gg_fb" content="([a-zA-Z0-9]+)">`)},
	{"comment", regexp.MustCompile(`<!--\s+_is_th:([0-9a-zA-Z]+)\s+-->`)},
	{"lk_db", regexp.MustCompile(`<script>window\._lk_db\s+=\s+\{([xyz]:\s+["'][a-zA-Z0-9]+["'],\s+[xyz]:\s+["'][a-zA-Z0-9]+["'],\s+[xyz]:\s+["'][a-zA-Z0-9]+["'])\};</script>`)},
	{"data-dpi", regexp.MustCompile(`<div\s+data-dpi="([0-9a-zA-Z]+)"\s+[^>]*></div>`)},
	{"nonce", regexp.MustCompile(`<script nonce="([0-9a-zA-Z]+)">`)},
	{"xy_ws", regexp.MustCompile(`<script>window\._xy_ws = ['"\x60]([0-9a-zA-Z]+)['"\x60];</script>`)},
}

var lkDbPart = regexp.MustCompile(`([xyz]):\s+["']([a-zA-Z0-9]+)["']`)

// extractClientKey returns the client key from embed page HTML.
func extractClientKey(html string) (string, error) {
	for _, p := range clientKeyPatterns {
		m := p.re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		if p.name != "lk_db" {
			return m[1], nil
		}

		// Three parts, joined in x, y, z order whatever order the page uses.
		parts := map[string]string{}
		for _, pm := range lkDbPart.FindAllStringSubmatch(m[1], -1) {
			parts[pm[1]] = pm[2]
		}
		if len(parts) != 3 {
			return "", fmt.Errorf("lk_db pattern has %d of 3 key parts", len(parts))
		}
		return strings.Join([]string{parts["x"], parts["y"], parts["z"]}, ""), nil
	}
	return "", fmt.Errorf("no obfuscation pattern matched")
}
