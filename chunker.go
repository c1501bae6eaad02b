package coursequiz

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Split cuts text into chunks of at most targetSize characters, never
// breaking inside a sentence. Sentences end at '.', '!' or '?' followed by
// whitespace. A sentence longer than targetSize becomes a chunk of its own.
//
// Joining the result with single spaces yields Normalize(text).
func Split(text string, targetSize int) []string {
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	for _, s := range sentences(text) {
		n := utf8.RuneCountInString(s)
		if curLen > 0 && curLen+1+n > targetSize {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(s)
		curLen += n
	}
	if curLen > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// Normalize returns the canonical form of text that Split preserves: line
// endings unified, outer whitespace trimmed, and the whitespace between
// sentences collapsed to one space.
func Normalize(text string) string {
	return strings.Join(sentences(text), " ")
}

func normalizeLineEndings(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

func sentences(text string) []string {
	runes := []rune(normalizeLineEndings(text))
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
		default:
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}
