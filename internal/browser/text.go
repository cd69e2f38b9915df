package browser

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the rune budget of one chunk of page text.
const DefaultChunkSize = 4000

// CleanText trims every line and collapses runs of blank lines.
func CleanText(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, l)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Chunk splits text into pieces of at most size runes, breaking at line
// boundaries where possible. Lines longer than size are cut.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var (
		chunks []string
		cur    strings.Builder
		n      int
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		n = 0
	}

	for _, line := range strings.Split(text, "\n") {
		for utf8.RuneCountInString(line) > size {
			flush()
			r := []rune(line)
			chunks = append(chunks, string(r[:size]))
			line = string(r[size:])
		}
		ln := utf8.RuneCountInString(line) + 1
		if n+ln > size {
			flush()
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		n += ln
	}
	flush()
	return chunks
}
