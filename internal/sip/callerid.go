package sip

import "regexp"

// callerIDDigits matches a run of digits, optionally preceded by a leading
// '+', inside a quoted display name or a sip: URI user part — the two
// shapes a From header's caller identity arrives in: `"015901969502"
// <sip:015901969502@example.de>` or a bare `sip:+4915901969502@trunk`.
var callerIDDigits = regexp.MustCompile(`\+?[0-9]{3,}`)

// ParseCallerID extracts the caller's number from a raw From-header-like
// string: the digits between quotes or inside sip:...@. It returns the
// first digit run found, preferring one inside quotes if present.
func ParseCallerID(raw string) string {
	if m := quotedDigits.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return callerIDDigits.FindString(raw)
}

var quotedDigits = regexp.MustCompile(`"(\+?[0-9]{3,})"`)
