package devserver

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/pointread/pkg/types"
)

//go:embed sentences.yaml
var builtinSentences string

// ErrNoSentence is returned by [Bank.Pick] when nothing matches.
var ErrNoSentence = errors.New("devserver: no sentence for language and category")

// Category limits by word count: 1 up to 8 words, 2 up to 20, 3 above.
const (
	shortMaxWords  = 8
	mediumMaxWords = 20
)

// Category returns the length category of text: 1 for up to 8 words, 2 for
// up to 20 and 3 above that. Empty text has category 0.
func Category(text string) int {
	switch n := len(strings.Fields(text)); {
	case n == 0:
		return 0
	case n <= shortMaxWords:
		return 1
	case n <= mediumMaxWords:
		return 2
	default:
		return 3
	}
}

type bankEntry struct {
	Text        string `yaml:"text"`
	IPA         string `yaml:"ipa"`
	Translation string `yaml:"translation"`
}

// Bank is an immutable set of practice sentences per language.
type Bank struct {
	byLang map[string][]types.SampleSentence
}

// DefaultBank returns the built-in sentence bank.
func DefaultBank() *Bank {
	b, err := LoadBank(strings.NewReader(builtinSentences))
	if err != nil {
		panic(fmt.Sprintf("devserver: built-in sentences: %v", err))
	}
	return b
}

// LoadBankFile reads a sentence bank from a YAML file.
func LoadBankFile(path string) (*Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("devserver: open sentences %q: %w", path, err)
	}
	defer f.Close()
	return LoadBank(f)
}

// LoadBank decodes a YAML mapping of language to sentence list.
func LoadBank(r io.Reader) (*Bank, error) {
	var raw map[string][]bankEntry
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("devserver: decode sentences: %w", err)
	}

	var errs []error
	b := &Bank{byLang: make(map[string][]types.SampleSentence, len(raw))}
	for lang, entries := range raw {
		for i, e := range entries {
			text := strings.Join(strings.Fields(e.Text), " ")
			if text == "" {
				errs = append(errs, fmt.Errorf("%s[%d].text is empty", lang, i))
				continue
			}
			b.byLang[lang] = append(b.byLang[lang], types.SampleSentence{
				Text:        text,
				IPA:         e.IPA,
				Translation: e.Translation,
			})
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("devserver: invalid sentences: %w", err)
	}
	return b, nil
}

// Len returns the number of sentences across all languages.
func (b *Bank) Len() int {
	n := 0
	for _, s := range b.byLang {
		n += len(s)
	}
	return n
}

// Languages returns the languages in the bank, sorted.
func (b *Bank) Languages() []string {
	langs := make([]string, 0, len(b.byLang))
	for l := range b.byLang {
		langs = append(langs, l)
	}
	slices.Sort(langs)
	return langs
}

// Pick returns a random sentence of the given category; category 0 accepts
// any length.
func (b *Bank) Pick(rng *rand.Rand, language string, category int) (types.SampleSentence, error) {
	var candidates []types.SampleSentence
	for _, s := range b.byLang[language] {
		if category == 0 || Category(s.Text) == category {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return types.SampleSentence{}, fmt.Errorf("%w: %q/%d", ErrNoSentence, language, category)
	}
	return candidates[rng.IntN(len(candidates))], nil
}

// Lookup returns the sentence whose text equals text, ignoring case and
// surrounding whitespace.
func (b *Bank) Lookup(language, text string) (types.SampleSentence, bool) {
	text = strings.Join(strings.Fields(text), " ")
	for _, s := range b.byLang[language] {
		if strings.EqualFold(s.Text, text) {
			return s, true
		}
	}
	return types.SampleSentence{}, false
}
