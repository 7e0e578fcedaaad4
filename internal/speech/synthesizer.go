// Package speech converts script segments to audio through a hosted
// text-to-speech service.
package speech

import "context"

// VoiceProfile selects voice and delivery for one synthesis call. The
// generation pipeline derives it from the reflection flavor.
type VoiceProfile struct {
	VoiceID         string
	ModelID         string
	Speed           float64
	Stability       float64
	SimilarityBoost float64
}

// Synthesizer renders text as raw PCM16LE mono audio at the service sample
// rate. Each call is independent; failures are handled per segment by the
// caller.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, profile VoiceProfile) ([]byte, error)
}
