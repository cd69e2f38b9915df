package flow

import (
	"fmt"
	"strings"
)

// Variant selects the prompt, the built-in tools and the supervision mode of
// a flow.
type Variant int

const (
	Unsupervised Variant = iota
	Supervised
	Educational
	Explain
)

func (v Variant) String() string {
	switch v {
	case Unsupervised:
		return "unsupervised"
	case Supervised:
		return "supervised"
	case Educational:
		return "educational"
	case Explain:
		return "explain"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant is the inverse of Variant.String.
func ParseVariant(s string) (Variant, error) {
	for _, v := range []Variant{Unsupervised, Supervised, Educational, Explain} {
		if v.String() == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown flow variant %q", s)
}

// prefixes maps leading task words to variants. Longer phrases come first.
var prefixes = []struct {
	words   []string
	variant Variant
}{
	{[]string{"teach", "me"}, Educational},
	{[]string{"show", "me"}, Educational},
	{[]string{"help"}, Educational},
	{[]string{"carefully"}, Supervised},
	{[]string{"explain"}, Explain},
}

// Select picks the variant from the leading words of a task and returns the
// remaining task text. Tasks with no recognised prefix are unsupervised.
func Select(args []string) (Variant, string) {
	for _, p := range prefixes {
		if len(args) <= len(p.words) {
			continue
		}
		match := true
		for i, w := range p.words {
			if !strings.EqualFold(args[i], w) {
				match = false
				break
			}
		}
		if match {
			return p.variant, strings.Join(args[len(p.words):], " ")
		}
	}
	return Unsupervised, strings.Join(args, " ")
}

// supervised reports whether execute_command carries the dangerous flag.
func (v Variant) supervised() bool { return v == Supervised }

// userPrompt turns the task text into the first user message.
func (v Variant) userPrompt(task string) string {
	if v == Explain {
		return "Explain this command: " + task
	}
	return task
}
