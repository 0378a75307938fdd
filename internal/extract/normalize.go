package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	spaceBeforeP   = regexp.MustCompile(`\s+([.,!?;:])`)
)

// Normalize collapses whitespace inside each paragraph, removes stray spaces before
// punctuation and separates paragraphs with exactly one blank line.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	paragraphs := paragraphBreak.Split(text, -1)
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = collapseSpace(p)
		p = spaceBeforeP.ReplaceAllString(p, "$1")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}

func collapseSpace(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
