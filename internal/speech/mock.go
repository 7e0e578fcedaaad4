package speech

import (
	"context"
	"strings"
)

// MockSynthesizer emits deterministic non-silent PCM sized by text length
// (10 characters per second of audio), for local runs and tests.
type MockSynthesizer struct {
	SampleRate int
}

func NewMockSynthesizer(sampleRate int) *MockSynthesizer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &MockSynthesizer{SampleRate: sampleRate}
}

func (m *MockSynthesizer) Synthesize(_ context.Context, text string, _ VoiceProfile) ([]byte, error) {
	seconds := (len(strings.TrimSpace(text)) + 9) / 10
	if seconds < 1 {
		seconds = 1
	}
	pcm := make([]byte, seconds*m.SampleRate*2)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i] = 0x10 // low-amplitude constant tone, distinguishable from silence
	}
	return pcm, nil
}
