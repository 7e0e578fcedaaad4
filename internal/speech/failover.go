package speech

import (
	"context"
	"fmt"
	"sync/atomic"
)

// NewFailoverSynthesizer builds a synthesizer that prefers primary and
// switches to fallback when a primary call fails. Once fallback succeeds it
// stays active until a fallback call fails; then primary is retried.
func NewFailoverSynthesizer(primary, fallback Synthesizer) Synthesizer {
	return &failoverSynthesizer{primary: primary, fallback: fallback}
}

type failoverSynthesizer struct {
	primary        Synthesizer
	fallback       Synthesizer
	fallbackActive atomic.Bool
}

func (s *failoverSynthesizer) Synthesize(ctx context.Context, text string, profile VoiceProfile) ([]byte, error) {
	if s.fallbackActive.Load() {
		audio, fbErr := s.fallback.Synthesize(ctx, text, profile)
		if fbErr == nil {
			return audio, nil
		}
		// Fallback failed after being active; try primary again.
		audio, prErr := s.primary.Synthesize(ctx, text, profile)
		if prErr == nil {
			s.fallbackActive.Store(false)
			return audio, nil
		}
		return nil, fmt.Errorf("tts fallback failed: %v; tts primary failed: %w", fbErr, prErr)
	}

	audio, prErr := s.primary.Synthesize(ctx, text, profile)
	if prErr == nil {
		return audio, nil
	}
	audio, fbErr := s.fallback.Synthesize(ctx, text, profile)
	if fbErr != nil {
		return nil, fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	s.fallbackActive.Store(true)
	return audio, nil
}
