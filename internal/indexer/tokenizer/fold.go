package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/transform"
)

// Folded is raw text folded rune by rune into the same alphabet Normalize
// produces, with a mapping from every folded byte back to the raw rune that
// produced it. Whitespace runs fold to a single space but leading and
// trailing whitespace is kept so offsets stay aligned.
type Folded struct {
	Text   string
	starts []int
	ends   []int
	rawLen int
}

// Fold builds the folded form of raw.
func Fold(raw string) *Folded {
	var b strings.Builder
	b.Grow(len(raw))
	f := &Folded{
		starts: make([]int, 0, len(raw)),
		ends:   make([]int, 0, len(raw)),
		rawLen: len(raw),
	}
	t := stripMarks()
	inSpace := false
	for i := 0; i < len(raw); {
		r, w := utf8.DecodeRuneInString(raw[i:])
		if unicode.IsSpace(r) {
			if inSpace {
				f.ends[len(f.ends)-1] = i + w
			} else {
				b.WriteByte(' ')
				f.starts = append(f.starts, i)
				f.ends = append(f.ends, i+w)
				inSpace = true
			}
			i += w
			continue
		}
		inSpace = false
		folded := foldRune(t, r)
		b.WriteString(folded)
		for j := 0; j < len(folded); j++ {
			f.starts = append(f.starts, i)
			f.ends = append(f.ends, i+w)
		}
		i += w
	}
	f.Text = b.String()
	return f
}

func foldRune(t transform.Transformer, r rune) string {
	if r < utf8.RuneSelf {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		return string(r)
	}
	lowered := strings.ToLower(string(r))
	t.Reset()
	stripped, _, err := transform.String(t, lowered)
	if err != nil {
		stripped = lowered
	}
	return punctuation.Replace(stripped)
}

// Span maps the folded half-open range [start, end) to raw byte offsets.
// An empty range maps to an empty raw range at the corresponding position.
func (f *Folded) Span(start, end int) (int, int) {
	if start >= len(f.starts) {
		return f.rawLen, f.rawLen
	}
	rawStart := f.starts[start]
	if end <= start {
		return rawStart, rawStart
	}
	if end > len(f.ends) {
		end = len(f.ends)
	}
	return rawStart, f.ends[end-1]
}

// IsWordAt reports whether the folded byte at i is a word byte. Offsets
// outside the text are treated as boundaries.
func (f *Folded) IsWordAt(i int) bool {
	if i < 0 || i >= len(f.Text) {
		return false
	}
	return IsWordByte(f.Text[i])
}
