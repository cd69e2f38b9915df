package security

import "strings"

// Decision is how an operator reply reads.
type Decision int

const (
	Unclear Decision = iota
	Approved
	Denied
)

var (
	approvalWords = []string{"y", "yes", "ok", "yeah", "sure", "okay", "yep", "yea"}
	denialWords   = []string{"n", "no", "nope", "nah"}
)

// Classify maps a reply to a Decision. Matching is case-insensitive on the
// whole trimmed reply; anything else is Unclear.
func Classify(reply string) Decision {
	r := strings.ToLower(strings.TrimSpace(reply))
	for _, w := range approvalWords {
		if r == w {
			return Approved
		}
	}
	for _, w := range denialWords {
		if r == w {
			return Denied
		}
	}
	return Unclear
}
