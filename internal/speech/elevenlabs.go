package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/evahlis/sona/internal/reliability"
)

type ElevenLabsConfig struct {
	APIKey       string
	BaseURL      string
	OutputFormat string
	SampleRate   int
	Timeout      time.Duration
}

// ElevenLabsSynthesizer calls the one-shot ElevenLabs TTS REST endpoint and
// returns the decoded audio bytes. Output format defaults to raw PCM16LE at
// 16kHz so the assembler can concatenate without decoding.
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "pcm_16000"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &ElevenLabsSynthesizer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string, profile VoiceProfile) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is required")
	}
	if strings.TrimSpace(profile.VoiceID) == "" {
		return nil, fmt.Errorf("voice_id is required")
	}
	modelID := profile.ModelID
	if strings.TrimSpace(modelID) == "" {
		modelID = "eleven_multilingual_v2"
	}

	u, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(profile.VoiceID))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("output_format", s.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": modelID,
		"voice_settings": map[string]any{
			"stability":        clamp(profile.Stability, 0, 1, 0.42),
			"similarity_boost": clamp(profile.SimilarityBoost, 0, 1, 0.85),
			"speed":            clamp(profile.Speed, 0.7, 1.2, 1.0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	// One short retry on rate-limit or 5xx before the caller's silence
	// fallback kicks in.
	var audio []byte
	err = reliability.Retry(ctx, 2, 250*time.Millisecond, 2*time.Second, func() (bool, error) {
		var retryable bool
		audio, retryable, err = s.request(ctx, u.String(), payload)
		return retryable, err
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

func (s *ElevenLabsSynthesizer) request(ctx context.Context, url string, payload []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.cfg.APIKey)

	res, err := s.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("send tts request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, reliability.IsRetryableHTTPStatus(res.StatusCode),
			fmt.Errorf("tts status %d: %s", res.StatusCode, string(body))
	}

	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read tts audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, false, fmt.Errorf("tts returned empty audio")
	}
	return audio, false, nil
}

func clamp(v, lo, hi, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
