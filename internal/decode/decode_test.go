package decode

import (
	"errors"
	"testing"
)

const masterURL = "https://cdn.example.com/v/master.m3u8"

func TestSchemes(t *testing.T) {
	tests := []struct {
		name    string
		scheme  Scheme
		input   string
		want    string
		wantErr bool
	}{
		{"base64 padded", Base64{}, "aHR0cHM6Ly9jZG4uZXhhbXBsZS5jb20vdi9tYXN0ZXIubTN1OA==", masterURL, false},
		{"base64 unpadded", Base64{}, "aHR0cHM6Ly9jZG4uZXhhbXBsZS5jb20vdi9tYXN0ZXIubTN1OA", masterURL, false},
		{"base64 with newlines", Base64{}, "aHR0cHM6Ly9jZG4uZXhhbXBs\nZS5jb20vdi9tYXN0ZXIubTN1OA==", masterURL, false},
		{"base64 url alphabet", Base64{}, "-_8_Pg==", "\xfb\xff?>", false},
		{"base64 over-padded", Base64{}, "aGk==", "hi", false},
		{"base64 garbage", Base64{}, "!!!not-base64!!!", "", true},
		{"base64 garbage inside", Base64{}, "aHR0cHM6Ly9h!LmNvbS92Lm1wNA==", "", true},
		{"base64 empty", Base64{}, "  ", "", true},
		{"hex lower", Hex{}, "68747470733a2f2f63646e2e6578616d706c652e636f6d2f762f6d61737465722e6d337538", masterURL, false},
		{"hex upper", Hex{}, "6869", "hi", false},
		{"hex odd length", Hex{}, "686", "", true},
		{"pairs url", DefaultPairTable, "504c4c484b0217175b5c56165d40595548545d165b5755174e1755594b4c5d4a16550b4d00", masterURL, false},
		{"pairs path", DefaultPairTable, "175948514e4c4f57175b54575b5307515c050f5c0a0c0f0b", "/apivtwo/clock?id=7d2473", false},
		{"pairs keeps port", DefaultPairTable, "5059:8443", "ha:8443", false},
		{"pairs odd length", DefaultPairTable, "175", "", true},
		{"pairs unmapped", DefaultPairTable, "ffff", "", true},
		{"reverse base64", Reverse{Next: Base64{}}, "==AO1NTbuIXZ0NXYt9idv02bj5SZsBXbhhXZu4GZj9yL6MHc0RHa", masterURL, false},
		{"prefixed", Prefixed{Prefixes: []string{"--", "##"}, Next: DefaultPairTable}, "--5059", "ha", false},
		{"prefixed missing", Prefixed{Prefixes: []string{"--"}, Next: Base64{}}, "aGk=", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.scheme.Decode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("%s.Decode(%q) error = %v, wantErr %v", tt.scheme.Name(), tt.input, err, tt.wantErr)
			}
			if err != nil {
				var de *Error
				if !errors.As(err, &de) {
					t.Errorf("error %v is not *decode.Error", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("%s.Decode(%q) = %q, want %q", tt.scheme.Name(), tt.input, got, tt.want)
			}
		})
	}
}

func TestRotatingPicksFirstURL(t *testing.T) {
	r := DefaultRotation()
	inputs := map[string]string{
		"base64":         "aHR0cHM6Ly9jZG4uZXhhbXBsZS5jb20vdi9tYXN0ZXIubTN1OA==",
		"reverse base64": "==AO1NTbuIXZ0NXYt9idv02bj5SZsBXbhhXZu4GZj9yL6MHc0RHa",
		"hex":            "68747470733a2f2f63646e2e6578616d706c652e636f6d2f762f6d61737465722e6d337538",
		"pairs":          "504c4c484b0217175b5c56165d40595548545d165b5755174e1755594b4c5d4a16550b4d00",
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := r.Decode(in)
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if got != masterURL {
				t.Errorf("Decode() = %q, want %q", got, masterURL)
			}
		})
	}
}

func TestRotatingRejectsAll(t *testing.T) {
	r := Rotating{Schemes: []Scheme{Hex{}}}
	_, err := r.Decode("6869") // "hi" is not a URL
	var de *Error
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *decode.Error", err)
	}
	if de.Scheme != "rotating" {
		t.Errorf("Scheme = %q, want rotating", de.Scheme)
	}

	if _, err := (Rotating{}).Decode("x"); err == nil {
		t.Error("empty rotation should fail")
	}
}

func TestRotatingCustomAccept(t *testing.T) {
	r := Rotating{
		Schemes: []Scheme{Hex{}},
		Accept:  func(s string) bool { return s == "hi" },
	}
	got, err := r.Decode("6869")
	if err != nil || got != "hi" {
		t.Errorf("Decode() = %q, %v", got, err)
	}
}

func TestNamed(t *testing.T) {
	for _, name := range []string{"base64", "hex", "pairs", "reverse-base64", "rotating", ""} {
		if _, err := Named(name); err != nil {
			t.Errorf("Named(%q) error: %v", name, err)
		}
	}
	if _, err := Named("rot13"); err == nil {
		t.Error("Named(rot13) should fail")
	}
}

func TestLooksLikeURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{masterURL, true},
		{"http://a.com/x.mp4", true},
		{"/relative/path", false},
		{"ftp://a.com/x", false},
		{"https://", false},
		{"https://a.com/\x01", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := LooksLikeURL(tt.in); got != tt.want {
			t.Errorf("LooksLikeURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAtob(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"aGk=", "hi"},
		{"aGk", "hi"},
		{"aHR0cHM6Ly9jZG4uZXhhbXBsZS5jb20vdi9tYXN0ZXIubTN1OA==", masterURL},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Atob(tt.in); got != tt.want {
			t.Errorf("Atob(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReverseString(t *testing.T) {
	if got := ReverseString("abc"); got != "cba" {
		t.Errorf("ReverseString(abc) = %q", got)
	}
	if got := ReverseString("héllo"); got != "olléh" {
		t.Errorf("ReverseString(héllo) = %q", got)
	}
}
