package chunker

import (
	"reflect"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_ParagraphsJoined(t *testing.T) {
	text := "Paris is the capital of France.\n\nBerlin is the capital of Germany."
	chunks := Split(text, 500)
	want := []string{"Paris is the capital of France. Berlin is the capital of Germany."}
	if !reflect.DeepEqual(chunks, want) {
		t.Errorf("Split = %q, want %q", chunks, want)
	}
}

func TestSplit_Empty(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t\n  \n"} {
		if chunks := Split(text, 100); chunks != nil {
			t.Errorf("Split(%q) = %q, want nil", text, chunks)
		}
	}
}

func TestSplit_FlushesWhenBufferWouldOverflow(t *testing.T) {
	text := "aaaa aaaa\n\nbbbb bbbb\n\n  \n\ncccc cccc"
	chunks := Split(text, 20)
	want := []string{"aaaa aaaa bbbb bbbb", "cccc cccc"}
	if !reflect.DeepEqual(chunks, want) {
		t.Errorf("Split = %q, want %q", chunks, want)
	}
}

// The joining space counts toward the limit, so a packed chunk never exceeds it.
func TestSplit_JoiningSpaceCountsTowardLimit(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"fits with space", "aaaa\n\nbbbbb", []string{"aaaa bbbbb"}},
		{"space overflows", "aaaaa\n\nbbbbb", []string{"aaaaa", "bbbbb"}},
		{"three pieces", "aaa\n\nbbb\n\ncc", []string{"aaa bbb cc"}},
		{"third piece overflows", "aaa\n\nbbb\n\nccc", []string{"aaa bbb", "ccc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(tt.text, 10)
			if !reflect.DeepEqual(chunks, tt.want) {
				t.Errorf("Split = %q, want %q", chunks, tt.want)
			}
			for _, c := range chunks {
				if len(c) > 10 {
					t.Errorf("chunk %q exceeds limit", c)
				}
			}
		})
	}
}

func TestSplit_LongParagraphBySentence(t *testing.T) {
	text := "One two three. Four five six! Seven eight nine? Ten."
	chunks := Split(text, 30)
	want := []string{"One two three. Four five six!", "Seven eight nine? Ten."}
	if !reflect.DeepEqual(chunks, want) {
		t.Errorf("Split = %q, want %q", chunks, want)
	}
}

func TestSplit_OversizeSentenceKeptWhole(t *testing.T) {
	text := "This sentence is definitely far too long for the limit"
	chunks := Split(text, 10)
	if len(chunks) != 1 || chunks[0] != text {
		t.Errorf("Split = %q, want the sentence unchanged", chunks)
	}
}

func TestSplit_DefaultSize(t *testing.T) {
	para := strings.Repeat("word ", 90) // 450 chars
	text := para + "\n\n" + para
	chunks := Split(text, 0)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks with default size, got %d", len(chunks))
	}
	if New(-3).MaxChunkSize() != DefaultMaxChunkSize {
		t.Error("non-positive size should fall back to default")
	}
}

func TestSplit_CountsCharactersNotBytes(t *testing.T) {
	// Each paragraph is 5 runes but 10 bytes.
	text := "ééééé\n\nààààà"
	chunks := Split(text, 11)
	if len(chunks) != 1 {
		t.Errorf("expected paragraphs packed into one chunk, got %q", chunks)
	}
}

var blankLine = regexp.MustCompile(`\n\s*\n`)

func TestSplit_Properties(t *testing.T) {
	corpus := []string{
		"Paris is the capital of France.\n\nBerlin is the capital of Germany.",
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40),
		"Short.\n\n\n\nAnother short one!\n \n" + strings.Repeat("Is this a question? Yes it is. ", 30),
		"line one\nline two\n\nline three\r\n\r\nline four",
		"No terminal punctuation at all but a rather long paragraph " + strings.Repeat("and more words ", 20),
	}
	for _, size := range []int{20, 64, 200, 500} {
		for _, text := range corpus {
			chunks := Split(text, size)
			if len(chunks) == 0 {
				t.Fatalf("size %d: no chunks for %q", size, text)
			}
			for _, ch := range chunks {
				if strings.TrimSpace(ch) == "" {
					t.Errorf("size %d: empty chunk", size)
				}
				if blankLine.MatchString(ch) {
					t.Errorf("size %d: chunk contains blank line: %q", size, ch)
				}
				if utf8.RuneCountInString(ch) > size && len(SplitSentences(ch)) > 1 {
					t.Errorf("size %d: multi-sentence chunk exceeds limit: %q", size, ch)
				}
			}
			got := strings.Fields(strings.Join(chunks, " "))
			want := strings.Fields(text)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("size %d: content not preserved\n got %q\nwant %q", size, got, want)
			}
			if again := Split(text, size); !reflect.DeepEqual(again, chunks) {
				t.Errorf("size %d: Split is not deterministic", size)
			}
		}
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hi. How are you?  Fine!", []string{"Hi.", "How are you?", "Fine!"}},
		{"Version 1.2 is out", []string{"Version 1.2 is out"}},
		{"Wait...\nwhat?", []string{"Wait...", "what?"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := SplitSentences(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
