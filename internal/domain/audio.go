package domain

import "fmt"

// Speech audio is raw signed 16-bit little-endian PCM, mono, 24kHz.
const (
	SpeechSampleRate     = 24000
	SpeechChannels       = 1
	SpeechBytesPerSample = 2
	SpeechContentType    = "audio/L16; rate=24000; channels=1"
)

// PCM is a synthesized speech clip.
type PCM []byte

// Validate checks that the clip holds whole samples.
func (p PCM) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("empty audio clip")
	}
	if len(p)%(SpeechBytesPerSample*SpeechChannels) != 0 {
		return fmt.Errorf("audio clip has %d bytes, not a whole number of samples", len(p))
	}
	return nil
}

// Samples returns the number of frames in the clip.
func (p PCM) Samples() int {
	return len(p) / (SpeechBytesPerSample * SpeechChannels)
}
