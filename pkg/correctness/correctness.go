// Package correctness decodes the per-letter correctness flags returned by the
// scoring endpoint and renders a practice sentence with each letter marked.
//
// The flag string for a word holds one '1' (correct) or '0' (incorrect) per
// letter. Decoding fails open: a word or letter with no flag is treated as
// correct, so a short or truncated response never paints the sentence red.
package correctness

import (
	"strings"

	"github.com/MrWong99/pointread/pkg/types"
)

// Mark is the correctness state of a single letter.
type Mark int

const (
	// Unscored means no score is available yet.
	Unscored Mark = iota
	// Correct means the letter was pronounced correctly.
	Correct
	// Incorrect means the letter was mispronounced.
	Incorrect
)

// String returns the lower-case name of the mark.
func (m Mark) String() string {
	switch m {
	case Unscored:
		return "unscored"
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	default:
		return "unknown"
	}
}

// Letter is one rune of a word together with its mark.
type Letter struct {
	Char rune
	Mark Mark
}

// Word is one whitespace-separated token of the sentence.
type Word struct {
	Text    string
	Letters []Letter
}

// Decorate splits sentence on whitespace and marks every letter using the
// flags in result. With a nil result every letter is Unscored.
func Decorate(sentence string, result *types.ScoreResult) []Word {
	tokens := strings.Fields(sentence)
	var flags []string
	if result != nil {
		flags = strings.Fields(result.IsLetterCorrectAllWords)
	}

	words := make([]Word, len(tokens))
	for i, tok := range tokens {
		var wordFlags []rune
		if i < len(flags) {
			wordFlags = []rune(flags[i])
		}
		runes := []rune(tok)
		letters := make([]Letter, len(runes))
		for j, r := range runes {
			letters[j] = Letter{Char: r, Mark: markFor(result != nil, wordFlags, j)}
		}
		words[i] = Word{Text: tok, Letters: letters}
	}
	return words
}

func markFor(scored bool, flags []rune, j int) Mark {
	if !scored {
		return Unscored
	}
	if j < len(flags) && flags[j] != '1' {
		return Incorrect
	}
	return Correct
}

// Correct reports whether every letter of w is marked Correct.
func (w Word) Correct() bool {
	for _, l := range w.Letters {
		if l.Mark != Correct {
			return false
		}
	}
	return true
}
