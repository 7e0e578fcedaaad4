// Package assemble merges per-segment audio buffers into one continuous
// track and transcodes it to a compressed format when possible.
package assemble

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/evahlis/sona/internal/audio"
)

// Track is the final playable artifact plus the metadata the artifact store
// needs to persist it.
type Track struct {
	Data        []byte
	ContentType string
	Extension   string
	Duration    time.Duration
}

// Transcoder converts a WAV byte stream into a compressed format.
type Transcoder interface {
	Transcode(ctx context.Context, wavData []byte) ([]byte, error)
}

type Assembler struct {
	transcoder   Transcoder
	fallbackHook func()
}

func New(transcoder Transcoder) *Assembler {
	return &Assembler{transcoder: transcoder}
}

// SetFallbackHook registers a callback fired whenever a transcode failure
// downgrades the track to WAV. Used to feed metrics.
func (a *Assembler) SetFallbackHook(hook func()) { a.fallbackHook = hook }

// Assemble concatenates segment buffers in order and attempts the compressed
// encoding. A transcode failure falls back to the WAV container unchanged;
// the pipeline never fails solely because of transcoding.
func (a *Assembler) Assemble(ctx context.Context, buffers []audio.Buffer) (Track, error) {
	if len(buffers) == 0 {
		return Track{}, fmt.Errorf("no segment buffers to assemble")
	}

	merged := audio.Concat(buffers...)
	wavData, err := merged.EncodeWAV()
	if err != nil {
		return Track{}, fmt.Errorf("encode wav: %w", err)
	}

	track := Track{
		Data:        wavData,
		ContentType: "audio/wav",
		Extension:   "wav",
		Duration:    merged.Duration(),
	}

	if a.transcoder == nil {
		return track, nil
	}
	compressed, err := a.transcoder.Transcode(ctx, wavData)
	if err != nil {
		log.Printf("assemble: transcode failed, keeping wav: %v", err)
		if a.fallbackHook != nil {
			a.fallbackHook()
		}
		return track, nil
	}
	track.Data = compressed
	track.ContentType = "audio/mpeg"
	track.Extension = "mp3"
	return track, nil
}
