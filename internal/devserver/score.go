package devserver

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/MrWong99/pointread/pkg/audio"
	"github.com/MrWong99/pointread/pkg/types"
)

// silenceRMS is the RMS level below which a recording counts as silent.
const silenceRMS = 64

// letterAccuracy is the chance that a letter of a non-silent recording is
// scored correct.
const letterAccuracy = 0.85

type scoreRequest struct {
	Title       string `json:"title"`
	Base64Audio string `json:"base64Audio"`
	Language    string `json:"language"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := s.settings()
	if cfg.Latency > 0 {
		if err := s.sleep(r.Context(), cfg.Latency); err != nil {
			return
		}
	}

	s.mu.Lock()
	cold := s.coldServed < cfg.ColdStartRequests
	if cold {
		s.coldServed++
	}
	bank := s.bank
	s.mu.Unlock()

	log := requestLogger(r, s.log)
	if cold {
		log.Info("devserver: simulating cold start", "title", req.Title)
		writeEmptyScore(w)
		return
	}

	_, data, err := audio.ParseDataURL(req.Base64Audio)
	if err != nil {
		log.Warn("devserver: unreadable recording", "err", err)
		writeEmptyScore(w)
		return
	}
	info, err := audio.ParseWAV(data)
	if err != nil {
		log.Warn("devserver: recording is not WAV", "err", err)
		writeEmptyScore(w)
		return
	}

	var ipa string
	if sent, ok := bank.Lookup(req.Language, req.Title); ok {
		ipa = sent.IPA
	}
	res := simulateScore(req.Title, ipa, info, data)
	log.Debug("devserver: scored recording", "title", req.Title, "accuracy", res.PronunciationAccuracy)
	s.reply(w, res)
}

// writeEmptyScore answers the way a cold or failing backend does: 200 with an
// empty Lambda body.
func writeEmptyScore(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, envelope{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Access-Control-Allow-Headers": "*",
			"Access-Control-Allow-Origin":  "*",
		},
		Body: "",
	})
}

// simulateScore derives a deterministic score for title from the recording.
// Silent recordings score zero with nothing heard.
func simulateScore(title, ipa string, info audio.WAVInfo, wav []byte) *types.ScoreResult {
	words := strings.Fields(title)
	pcm := info.PCM(wav)
	silent := info.BitsPerSample != 16 || rms16(pcm) < silenceRMS

	h := fnv.New64a()
	_, _ = h.Write([]byte(title))
	_, _ = h.Write(pcm)
	rng := rand.New(rand.NewPCG(h.Sum64(), uint64(len(pcm))))

	var (
		flags, matched, cats []string
		correct, total       int
	)
	for _, word := range words {
		runes := []rune(word)
		f := make([]byte, len(runes))
		heard := make([]rune, len(runes))
		ok := 0
		for i, r := range runes {
			good := !silent && (!isLetter(r) || rng.Float64() < letterAccuracy)
			if good {
				f[i] = '1'
				heard[i] = r
				ok++
			} else {
				f[i] = '0'
				heard[i] = misheard(r)
			}
		}
		flags = append(flags, string(f))
		correct += ok
		total += len(runes)

		if silent {
			matched = append(matched, "-")
		} else {
			matched = append(matched, string(heard))
		}
		cats = append(cats, strconv.Itoa(pairCategory(ok, len(runes))))
	}

	accuracy := 0
	if total > 0 {
		accuracy = int(math.Round(100 * float64(correct) / float64(total)))
	}

	starts, ends := wordTimes(len(words), audioSeconds(info, len(pcm)))
	return &types.ScoreResult{
		RealTranscript:          title,
		IPATranscript:           ipa,
		PronunciationAccuracy:   strconv.Itoa(accuracy),
		RealTranscripts:         title,
		MatchedTranscripts:      strings.Join(matched, " "),
		RealTranscriptsIPA:      ipa,
		MatchedTranscriptsIPA:   ipa,
		PairAccuracyCategory:    strings.Join(cats, " "),
		StartTime:               strings.Join(starts, " "),
		EndTime:                 strings.Join(ends, " "),
		IsLetterCorrectAllWords: strings.Join(flags, " "),
	}
}

// pairCategory grades a word: 0 good, 1 fair, 2 poor.
func pairCategory(correct, total int) int {
	if total == 0 {
		return 0
	}
	switch ratio := float64(correct) / float64(total); {
	case ratio >= 0.8:
		return 0
	case ratio >= 0.5:
		return 1
	default:
		return 2
	}
}

func isLetter(r rune) bool { return unicode.IsLetter(r) }

// misheard returns a plausible wrong letter for r.
func misheard(r rune) rune {
	const vowels = "aeiou"
	lower := unicode.ToLower(r)
	if i := strings.IndexRune(vowels, lower); i >= 0 {
		return rune(vowels[(i+1)%len(vowels)])
	}
	switch {
	case lower == 'z':
		return 's'
	case lower >= 'a' && lower < 'z':
		return lower + 1
	}
	return r
}

func wordTimes(n int, seconds float64) (starts, ends []string) {
	if n == 0 {
		return nil, nil
	}
	step := seconds / float64(n)
	for i := range n {
		starts = append(starts, strconv.FormatFloat(float64(i)*step, 'f', 3, 64))
		ends = append(ends, strconv.FormatFloat(float64(i+1)*step, 'f', 3, 64))
	}
	return starts, ends
}

func audioSeconds(info audio.WAVInfo, pcmBytes int) float64 {
	f := audio.Format{SampleRate: info.SampleRate, Channels: info.Channels}
	return f.Duration(pcmBytes).Seconds()
}

func rms16(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
