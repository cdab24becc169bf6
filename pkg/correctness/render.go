package correctness

import "strings"

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// Plain renders words separated by single spaces, wrapping each run of
// incorrect letters in square brackets: "l[i]ke".
func Plain(words []Word) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		open := false
		for _, l := range w.Letters {
			bad := l.Mark == Incorrect
			if bad && !open {
				b.WriteByte('[')
			} else if !bad && open {
				b.WriteByte(']')
			}
			open = bad
			b.WriteRune(l.Char)
		}
		if open {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// ANSI renders words for a terminal. Correct letters are green, incorrect
// letters red and unscored letters use the default colour.
func ANSI(words []Word) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		cur := Unscored
		for _, l := range w.Letters {
			if l.Mark != cur {
				if cur != Unscored {
					b.WriteString(ansiReset)
				}
				switch l.Mark {
				case Correct:
					b.WriteString(ansiGreen)
				case Incorrect:
					b.WriteString(ansiRed)
				}
				cur = l.Mark
			}
			b.WriteRune(l.Char)
		}
		if cur != Unscored {
			b.WriteString(ansiReset)
		}
	}
	return b.String()
}

// Stats counts letters by mark.
type Stats struct {
	Correct   int
	Incorrect int
	Unscored  int
}

// Total returns the number of letters counted.
func (s Stats) Total() int { return s.Correct + s.Incorrect + s.Unscored }

// Summary counts the letters of words by mark.
func Summary(words []Word) Stats {
	var s Stats
	for _, w := range words {
		for _, l := range w.Letters {
			switch l.Mark {
			case Correct:
				s.Correct++
			case Incorrect:
				s.Incorrect++
			default:
				s.Unscored++
			}
		}
	}
	return s
}
