// Package types defines the shared types used across all pointread packages.
//
// These types form the lingua franca between the capture session, the scoring
// client, the correctness decoder, and the practice controller. Each package
// defines its own internal types; cross-cutting data lives here to avoid
// circular imports.
package types

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// SampleSentence is a practice sentence returned by the sample endpoint.
// It is immutable once fetched and replaced wholesale on "next".
type SampleSentence struct {
	// Text is the sentence the learner reads aloud.
	Text string

	// IPA is the phonetic transcription, when the backend provides one.
	IPA string

	// Translation is an optional translation of Text.
	Translation string
}

// RecordedAttempt is the result of a finished capture.
type RecordedAttempt struct {
	// Title is the target sentence text the recording belongs to.
	Title string

	// Audio holds the encoded container bytes (WAV for built-in devices).
	Audio []byte

	// MIMEType is the media type of Audio (e.g., "audio/wav").
	MIMEType string

	// DataURL is Audio encoded as "data:<mime>;base64,<payload>". This is the
	// exact value sent as base64Audio to the scoring endpoint.
	DataURL string

	// SampleRate of the captured PCM in Hz.
	SampleRate int

	// Duration of the captured audio.
	Duration time.Duration
}

// ScoreResult is the response of the scoring endpoint. All numeric fields
// arrive as strings on the wire and are kept verbatim; use the accessor
// methods for parsed values.
type ScoreResult struct {
	RealTranscript        string `json:"real_transcript"`
	IPATranscript         string `json:"ipa_transcript"`
	PronunciationAccuracy string `json:"pronunciation_accuracy"`
	RealTranscripts       string `json:"real_transcripts"`
	MatchedTranscripts    string `json:"matched_transcripts"`
	RealTranscriptsIPA    string `json:"real_transcripts_ipa"`
	MatchedTranscriptsIPA string `json:"matched_transcripts_ipa"`

	// PairAccuracyCategory holds one space-separated integer per word.
	PairAccuracyCategory string `json:"pair_accuracy_category"`

	// StartTime and EndTime hold space-separated per-word offsets in seconds.
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	// IsLetterCorrectAllWords is a space-separated list of flag strings, one
	// per word, with one '1' (correct) or '0' (incorrect) per letter.
	IsLetterCorrectAllWords string `json:"is_letter_correct_all_words"`
}

// Accuracy returns the overall pronunciation accuracy and whether it parsed as
// a finite integer. This is the single predicate used everywhere a response is
// judged to carry a real score.
func (r *ScoreResult) Accuracy() (int, bool) {
	if r == nil {
		return 0, false
	}
	return ParseAccuracy(r.PronunciationAccuracy)
}

// ParseAccuracy parses s the way a lenient integer parser would: optional
// surrounding whitespace, optional sign, then leading decimal digits. Trailing
// garbage after the digits is ignored ("82%" → 82). Values beyond the int64
// range saturate. It reports false when no digits are present or the digit
// run is too long to be a finite number.
func ParseAccuracy(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, false
	}
	if end-digitsStart > maxFiniteDigits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		if !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
		n = math.MaxInt64
		if s[0] == '-' {
			n = math.MinInt64
		}
	}
	return int(n), true
}

// maxFiniteDigits is the longest digit run that still parses to a finite
// float64.
const maxFiniteDigits = 309

// WordTiming is the spoken interval of a single word.
type WordTiming struct {
	Start time.Duration
	End   time.Duration
}

// WordTimings zips StartTime and EndTime. The result is as long as the shorter
// of the two lists; tokens that fail to parse yield a zero offset.
func (r *ScoreResult) WordTimings() []WordTiming {
	if r == nil {
		return nil
	}
	starts := strings.Fields(r.StartTime)
	ends := strings.Fields(r.EndTime)
	n := min(len(starts), len(ends))
	out := make([]WordTiming, 0, n)
	for i := range n {
		out = append(out, WordTiming{
			Start: secondsToDuration(starts[i]),
			End:   secondsToDuration(ends[i]),
		})
	}
	return out
}

// PairCategories parses PairAccuracyCategory. Unparsable tokens become -1.
func (r *ScoreResult) PairCategories() []int {
	if r == nil {
		return nil
	}
	fields := strings.Fields(r.PairAccuracyCategory)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			v = -1
		}
		out[i] = v
	}
	return out
}

func secondsToDuration(s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
