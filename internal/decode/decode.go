// Package decode holds the swappable payload decoders used by obfuscating
// embed hosts: base64, hex, byte-pair substitution tables and combinations.
package decode

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Scheme turns an obfuscated payload into plain text.
type Scheme interface {
	Name() string
	Decode(s string) (string, error)
}

// Error reports a malformed payload.
type Error struct {
	Scheme string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Scheme, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(scheme string, format string, args ...any) error {
	return &Error{Scheme: scheme, Err: fmt.Errorf(format, args...)}
}

// Base64 accepts standard and URL alphabets, padded or not.
type Base64 struct{}

func (Base64) Name() string { return "base64" }

func (Base64) Decode(s string) (string, error) {
	s = stripSpace(s)
	if s == "" {
		return "", fail("base64", "empty payload")
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return string(b), nil
		}
	}
	// Over-padded payloads still decode the way a browser atob would.
	if out := Atob(s); out != "" && utf8.ValidString(out) {
		return out, nil
	}
	return "", fail("base64", "invalid payload %q", truncate(s))
}

// Hex decodes byte pairs written in hexadecimal.
type Hex struct{}

func (Hex) Name() string { return "hex" }

func (Hex) Decode(s string) (string, error) {
	s = stripSpace(s)
	if s == "" {
		return "", fail("hex", "empty payload")
	}
	b, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return "", &Error{Scheme: "hex", Err: err}
	}
	return string(b), nil
}

// PairTable maps each two-character group through a substitution table.
// A trailing ":port" is kept verbatim.
type PairTable struct {
	Label string
	Table map[string]string
}

// XORPairTable builds the table where each printable character c is
// written as the hex of c^key.
func XORPairTable(key byte) PairTable {
	t := make(map[string]string, 95)
	for c := byte(32); c < 127; c++ {
		t[fmt.Sprintf("%02x", c^key)] = string(rune(c))
	}
	return PairTable{Label: fmt.Sprintf("pairs-xor%d", key), Table: t}
}

// DefaultPairTable is the XOR-56 table used by several anime embed APIs.
var DefaultPairTable = XORPairTable(56)

func (p PairTable) Name() string {
	if p.Label != "" {
		return p.Label
	}
	return "pairs"
}

func (p PairTable) Decode(s string) (string, error) {
	s = stripSpace(s)
	main, port, _ := strings.Cut(s, ":")
	if main == "" {
		return "", fail(p.Name(), "empty payload")
	}
	if len(main)%2 != 0 {
		return "", fail(p.Name(), "odd payload length %d", len(main))
	}

	var sb strings.Builder
	sb.Grow(len(main) / 2)
	for i := 0; i < len(main); i += 2 {
		pair := strings.ToLower(main[i : i+2])
		v, ok := p.Table[pair]
		if !ok {
			return "", fail(p.Name(), "unmapped pair %q at offset %d", pair, i)
		}
		sb.WriteString(v)
	}
	if port != "" {
		sb.WriteString(":" + port)
	}
	return sb.String(), nil
}

// Prefixed strips the first matching secret prefix, then delegates.
type Prefixed struct {
	Prefixes []string
	Next     Scheme
}

func (p Prefixed) Name() string { return "prefixed-" + p.Next.Name() }

func (p Prefixed) Decode(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, pre := range p.Prefixes {
		if rest, ok := strings.CutPrefix(s, pre); ok {
			return p.Next.Decode(rest)
		}
	}
	return "", fail(p.Name(), "no known prefix")
}

// Reverse reverses the payload before delegating.
type Reverse struct {
	Next Scheme
}

func (r Reverse) Name() string { return "reverse-" + r.Next.Name() }

func (r Reverse) Decode(s string) (string, error) {
	return r.Next.Decode(ReverseString(strings.TrimSpace(s)))
}

// Rotating tries each scheme in order and keeps the first output that
// Accept approves. Sites rotate encodings without notice, so the order
// is only a preference.
type Rotating struct {
	Schemes []Scheme
	Accept  func(string) bool // LooksLikeURL when nil
}

func (Rotating) Name() string { return "rotating" }

func (r Rotating) Decode(s string) (string, error) {
	accept := r.Accept
	if accept == nil {
		accept = LooksLikeURL
	}

	var errs []error
	for _, sc := range r.Schemes {
		out, err := sc.Decode(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if accept(out) {
			return out, nil
		}
		errs = append(errs, fail(sc.Name(), "output rejected"))
	}
	if len(errs) == 0 {
		return "", fail("rotating", "no schemes configured")
	}
	return "", &Error{Scheme: "rotating", Err: errors.Join(errs...)}
}

// DefaultRotation is tried when a site does not pin its scheme.
func DefaultRotation() Rotating {
	return Rotating{Schemes: []Scheme{
		Base64{},
		Reverse{Next: Base64{}},
		Hex{},
		DefaultPairTable,
	}}
}

// Named returns the scheme registered under name.
func Named(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "base64", "atob":
		return Base64{}, nil
	case "hex":
		return Hex{}, nil
	case "pairs":
		return DefaultPairTable, nil
	case "reverse-base64":
		return Reverse{Next: Base64{}}, nil
	case "rotating", "":
		return DefaultRotation(), nil
	default:
		return nil, fmt.Errorf("unknown decode scheme %q", name)
	}
}

// LooksLikeURL reports whether s is an absolute http(s) URL made of printable characters.
func LooksLikeURL(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) || r == ' ' {
			return false
		}
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

// Atob decodes base64 like JavaScript's atob: padding optional, unknown
// characters read as zero bits. It never fails.
func Atob(s string) string {
	const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

	var encoded []byte
	for _, c := range s {
		if c != '=' && c != '\n' && c != '\r' && c != ' ' {
			encoded = append(encoded, byte(c))
		}
	}
	for len(encoded)%4 != 0 {
		encoded = append(encoded, '=')
	}

	var lookup [256]int
	for i := range lookup {
		lookup[i] = -1
	}
	for i := 0; i < len(base64Chars); i++ {
		lookup[base64Chars[i]] = i
	}

	var result []byte
	for i := 0; i < len(encoded); i += 4 {
		var vals [4]int
		count := 0
		for j := 0; j < 4; j++ {
			c := encoded[i+j]
			if c == '=' {
				continue
			}
			if v := lookup[c]; v >= 0 {
				vals[j] = v
				count = j + 1
			}
		}

		if count >= 2 {
			result = append(result, byte((vals[0]<<2)|(vals[1]>>4)))
		}
		if count >= 3 {
			result = append(result, byte(((vals[1]&0xf)<<4)|(vals[2]>>2)))
		}
		if count >= 4 {
			result = append(result, byte(((vals[2]&0x3)<<6)|vals[3]))
		}
	}
	return string(result)
}

// ReverseString reverses s rune by rune.
func ReverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func truncate(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}
