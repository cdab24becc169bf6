package correctness

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/pointread/pkg/types"
)

// missingWord is the placeholder the backend emits in matched_transcripts for
// an expected word it could not align with anything heard.
const missingWord = "-"

// WordMatch pairs an expected word with what the recogniser heard in its place.
type WordMatch struct {
	Expected string
	Heard    string

	// Similarity is the Jaro-Winkler similarity of the normalised words in
	// [0, 1]. It is 0 when nothing was heard.
	Similarity float64

	// SoundsAlike reports whether the words share a Double Metaphone code.
	SoundsAlike bool
}

// Missing reports whether nothing was heard for the expected word.
func (m WordMatch) Missing() bool { return m.Heard == "" }

// Misread reports whether something other than the expected word was heard.
func (m WordMatch) Misread() bool {
	return !m.Missing() && normalize(m.Heard) != normalize(m.Expected)
}

// MatchWords pairs real_transcripts with matched_transcripts word by word.
// The result has one entry per expected word; extra heard words are ignored.
func MatchWords(result *types.ScoreResult) []WordMatch {
	if result == nil {
		return nil
	}
	expected := strings.Fields(result.RealTranscripts)
	heard := strings.Fields(result.MatchedTranscripts)

	out := make([]WordMatch, len(expected))
	for i, e := range expected {
		m := WordMatch{Expected: e}
		if i < len(heard) && heard[i] != missingWord {
			m.Heard = heard[i]
			ne, nh := normalize(e), normalize(m.Heard)
			m.Similarity = matchr.JaroWinkler(ne, nh, false)
			m.SoundsAlike = soundsAlike(ne, nh)
		}
		out[i] = m
	}
	return out
}

// Hints returns a short "heard X" note for every misread word, keyed by
// expected word index.
func Hints(matches []WordMatch) map[int]string {
	hints := make(map[int]string)
	for i, m := range matches {
		switch {
		case m.Missing():
			hints[i] = "not heard"
		case m.Misread():
			hints[i] = fmt.Sprintf("heard %q", m.Heard)
		}
	}
	return hints
}

func soundsAlike(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

// normalize lower-cases w and strips everything except letters, digits and
// apostrophes.
func normalize(w string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case r == '\'':
			return r
		default:
			return -1
		}
	}, w)
}
