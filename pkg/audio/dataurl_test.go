package audio_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/pointread/pkg/audio"
)

func TestSilentDataURL(t *testing.T) {
	u := audio.SilentDataURL(0.3, 48000)
	if !strings.HasPrefix(u, "data:audio/wav;base64,") {
		t.Fatalf("prefix = %q", u[:min(len(u), 30)])
	}
	mime, data, err := audio.ParseDataURL(u)
	if err != nil {
		t.Fatalf("ParseDataURL: %v", err)
	}
	if mime != audio.MIMETypeWAV {
		t.Errorf("mime = %q, want %q", mime, audio.MIMETypeWAV)
	}
	if !bytes.Equal(data, audio.EncodeSilentWAV(0.3, 48000)) {
		t.Error("decoded payload differs from EncodeSilentWAV output")
	}
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantMIME string
		wantData string
		wantErr  bool
	}{
		{name: "with codec params", in: "data:audio/webm;codecs=opus;base64,aGk=", wantMIME: "audio/webm;codecs=opus", wantData: "hi"},
		{name: "empty payload", in: "data:audio/wav;base64,", wantMIME: "audio/wav", wantData: ""},
		{name: "missing scheme", in: "audio/wav;base64,aGk=", wantErr: true},
		{name: "missing comma", in: "data:audio/wav;base64", wantErr: true},
		{name: "not base64 encoded", in: "data:text/plain,hi", wantErr: true},
		{name: "bad base64", in: "data:audio/wav;base64,!!!", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, data, err := audio.ParseDataURL(tt.in)
			if tt.wantErr {
				if !errors.Is(err, audio.ErrInvalidDataURL) {
					t.Errorf("err = %v, want ErrInvalidDataURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mime != tt.wantMIME || string(data) != tt.wantData {
				t.Errorf("got (%q, %q), want (%q, %q)", mime, data, tt.wantMIME, tt.wantData)
			}
		})
	}
}
