package policy

import (
	"regexp"
	"strconv"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	// Decimal degrees with four or more fractional digits, i.e. better than ~11 m.
	coordPattern = regexp.MustCompile(`-?\b\d{1,3}\.\d{4,}\b`)
)

// CoarseDecimals is the precision coordinates keep after redaction (~1.1 km).
const CoarseDecimals = 2

// RedactPII masks email addresses and phone numbers. User identifiers are
// often one or the other.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// CoarsenCoordinates rounds every precise decimal-degree value in input to
// CoarseDecimals places. Remote error bodies sometimes echo the request.
func CoarsenCoordinates(input string) (redacted string, changed bool) {
	out := coordPattern.ReplaceAllStringFunc(input, func(m string) string {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return m
		}
		return strconv.FormatFloat(v, 'f', CoarseDecimals, 64) + "~"
	})
	return out, out != input
}

// ForLog applies every redaction a log line about a user's location needs.
func ForLog(input string) string {
	out, _ := RedactPII(input)
	out, _ = CoarsenCoordinates(out)
	return out
}
