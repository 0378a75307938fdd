// Package chunker splits document text into bounded-size semantic units.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChunkSize is the chunk size, in characters, used when none is configured.
const DefaultMaxChunkSize = 500

// paragraphBreak matches a blank line: a newline, optional whitespace, and another newline.
var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Chunker splits text into paragraph- and sentence-aligned chunks of at most maxChunkSize
// characters. A single sentence longer than maxChunkSize is kept whole.
type Chunker struct {
	maxChunkSize int
}

// New creates a chunker. A non-positive size falls back to DefaultMaxChunkSize.
func New(maxChunkSize int) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	return &Chunker{maxChunkSize: maxChunkSize}
}

// MaxChunkSize returns the configured chunk size.
func (c *Chunker) MaxChunkSize() int {
	return c.maxChunkSize
}

// Chunk splits text with the chunker's size.
func (c *Chunker) Chunk(text string) []string {
	return Split(text, c.maxChunkSize)
}

// Split splits text on blank lines into paragraphs and packs them into chunks of at most
// maxChunkSize characters, joined by single spaces. Paragraphs longer than maxChunkSize are
// split into sentences first. Empty paragraphs are dropped; the result is nil when text has
// no content. Output is deterministic for a given input.
func Split(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	p := &packer{max: maxChunkSize}
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= maxChunkSize {
			p.add(para)
			continue
		}
		for _, sentence := range SplitSentences(para) {
			p.add(sentence)
		}
	}
	p.flush()
	return p.chunks
}

// packer accumulates pieces into a pending buffer and emits a chunk whenever the next piece
// would push the buffer past max. size includes the single spaces the pieces are joined with,
// so a packed chunk is at most max runes unless one piece alone is longer.
type packer struct {
	max     int
	chunks  []string
	pending []string
	size    int
}

func (p *packer) add(piece string) {
	n := utf8.RuneCountInString(piece)
	if len(p.pending) > 0 && p.size+1+n > p.max {
		p.flush()
	}
	if len(p.pending) > 0 {
		p.size++
	}
	p.pending = append(p.pending, piece)
	p.size += n
}

func (p *packer) flush() {
	if len(p.pending) == 0 {
		return
	}
	p.chunks = append(p.chunks, strings.Join(p.pending, " "))
	p.pending = p.pending[:0]
	p.size = 0
}

// SplitSentences splits text after '.', '!' or '?' when followed by whitespace.
// Punctuation stays with its sentence; the separating whitespace is dropped.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		if !isTerminal(runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
