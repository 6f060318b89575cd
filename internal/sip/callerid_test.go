package sip

import "testing"

func TestParseCallerID(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"quoted display name", `"015901969502" <sip:015901969502@example.de>`, "015901969502"},
		{"bare sip uri", `<sip:+4915901969502@trunk.example.com>`, "+4915901969502"},
		{"no display name", `sip:4915901969502@trunk.example.com`, "4915901969502"},
		{"quoted preferred over uri digits", `"015901969502" <sip:999@example.de>`, "015901969502"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseCallerID(tc.raw)
			if got != tc.want {
				t.Fatalf("ParseCallerID(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}
