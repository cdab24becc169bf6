package devserver

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"net/http"
	"strings"

	"github.com/MrWong99/pointread/pkg/audio"
)

// Synthesised speech is one tone per word.
const (
	ttsSampleRate = 16000
	ttsWordSec    = 0.25
	ttsGapSec     = 0.05
	ttsAmplitude  = 0.3 * math.MaxInt16
)

type ttsRequest struct {
	Value string `json:"value"`
}

type ttsResponse struct {
	WavBase64 string `json:"wavBase64"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Value) == "" {
		writeError(w, http.StatusBadRequest, "value is empty")
		return
	}
	wav := synthesize(req.Value)
	s.reply(w, ttsResponse{WavBase64: base64.StdEncoding.EncodeToString(wav)})
}

// synthesize renders text as a 16 kHz mono WAV with one tone per word, the
// pitch rising with word length.
func synthesize(text string) []byte {
	words := strings.Fields(text)
	wordSamples := int(ttsWordSec * ttsSampleRate)
	gapSamples := int(ttsGapSec * ttsSampleRate)
	pcm := make([]byte, 0, len(words)*(wordSamples+gapSamples)*2)

	var buf [2]byte
	for _, word := range words {
		freq := 220 + 40*float64(min(len([]rune(word)), 12))
		for i := range wordSamples {
			// Short linear fade at both ends avoids clicks.
			env := math.Min(1, math.Min(float64(i), float64(wordSamples-i))/160)
			v := ttsAmplitude * env * math.Sin(2*math.Pi*freq*float64(i)/ttsSampleRate)
			binary.LittleEndian.PutUint16(buf[:], uint16(int16(v)))
			pcm = append(pcm, buf[:]...)
		}
		pcm = append(pcm, make([]byte, gapSamples*2)...)
	}
	return audio.EncodePCM16WAV(pcm, ttsSampleRate, 1)
}
