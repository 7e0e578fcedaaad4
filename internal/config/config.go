package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the meditation generation service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	TextGenBaseURL string
	TextGenAPIKey  string
	TextGenModel   string
	TextGenTimeout time.Duration

	TTSProvider     string
	TTSBaseURL      string
	TTSAPIKey       string
	TTSDayVoiceID   string
	TTSNightVoiceID string
	TTSModelID      string
	TTSTimeout      time.Duration
	TTSSampleRate   int

	TranscodeBinary  string
	TranscodeTimeout time.Duration

	StorageBaseURL string
	StorageAPIKey  string
	StorageBucket  string
	StorageTimeout time.Duration

	AudioAvailabilityWindow time.Duration
	SignedURLMaxTTL         time.Duration

	JobRateLimit      int
	JobRateWindow     time.Duration
	JobMaxRetries     int
	JobTriggerDelay   time.Duration
	GenerationTimeout time.Duration
	SynthesisParallel int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "sona"),
		AllowAnyOrigin:   false,
		DatabaseURL:      trimmedEnv("DATABASE_URL"),

		TextGenBaseURL: envOrDefault("TEXTGEN_BASE_URL", "https://api.openai.com"),
		TextGenAPIKey:  trimmedEnv("TEXTGEN_API_KEY"),
		TextGenModel:   envOrDefault("TEXTGEN_MODEL", "gpt-4o-mini"),
		TextGenTimeout: 60 * time.Second,

		TTSProvider: envOrDefault("TTS_PROVIDER", "auto"),
		TTSBaseURL:  envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		TTSAPIKey:   trimmedEnv("ELEVENLABS_API_KEY"),
		// Defaults chosen per reflection flavor: a brighter voice for morning
		// reflections, a slower warm voice for night ones.
		TTSDayVoiceID:   envOrDefault("TTS_DAY_VOICE_ID", "EXAVITQu4vr4xnSDxMaL"),
		TTSNightVoiceID: envOrDefault("TTS_NIGHT_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		TTSModelID:      envOrDefault("TTS_MODEL_ID", "eleven_multilingual_v2"),
		TTSTimeout:      45 * time.Second,
		TTSSampleRate:   16000,

		TranscodeBinary:  envOrDefault("TRANSCODE_BINARY", "ffmpeg"),
		TranscodeTimeout: 60 * time.Second,

		StorageBaseURL: trimmedEnv("STORAGE_BASE_URL"),
		StorageAPIKey:  trimmedEnv("STORAGE_API_KEY"),
		StorageBucket:  envOrDefault("STORAGE_BUCKET", "meditations"),
		StorageTimeout: 60 * time.Second,

		AudioAvailabilityWindow: 24 * time.Hour,
		SignedURLMaxTTL:         time.Hour,

		JobRateLimit:      5,
		JobRateWindow:     15 * time.Minute,
		JobMaxRetries:     3,
		JobTriggerDelay:   2 * time.Second,
		GenerationTimeout: 10 * time.Minute,
		SynthesisParallel: 4,

		ShutdownTimeout: 15 * time.Second,
	}

	var err error
	for _, f := range []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"TEXTGEN_TIMEOUT", &cfg.TextGenTimeout},
		{"TTS_TIMEOUT", &cfg.TTSTimeout},
		{"TRANSCODE_TIMEOUT", &cfg.TranscodeTimeout},
		{"STORAGE_TIMEOUT", &cfg.StorageTimeout},
		{"AUDIO_AVAILABILITY_WINDOW", &cfg.AudioAvailabilityWindow},
		{"SIGNED_URL_MAX_TTL", &cfg.SignedURLMaxTTL},
		{"JOB_RATE_WINDOW", &cfg.JobRateWindow},
		{"JOB_TRIGGER_DELAY", &cfg.JobTriggerDelay},
		{"GENERATION_TIMEOUT", &cfg.GenerationTimeout},
	} {
		*f.dst, err = durationFromEnv(f.key, *f.dst)
		if err != nil {
			return Config{}, err
		}
	}
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"JOB_RATE_LIMIT", &cfg.JobRateLimit},
		{"JOB_MAX_RETRIES", &cfg.JobMaxRetries},
		{"SYNTHESIS_PARALLEL", &cfg.SynthesisParallel},
		{"TTS_SAMPLE_RATE", &cfg.TTSSampleRate},
	} {
		*f.dst, err = intFromEnv(f.key, *f.dst)
		if err != nil {
			return Config{}, err
		}
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.JobRateLimit <= 0 {
		return Config{}, fmt.Errorf("JOB_RATE_LIMIT must be positive")
	}
	if cfg.JobRateWindow <= 0 {
		return Config{}, fmt.Errorf("JOB_RATE_WINDOW must be positive")
	}
	if cfg.JobMaxRetries < 0 {
		return Config{}, fmt.Errorf("JOB_MAX_RETRIES must be >= 0")
	}
	if cfg.SynthesisParallel <= 0 {
		return Config{}, fmt.Errorf("SYNTHESIS_PARALLEL must be positive")
	}
	if cfg.TTSSampleRate <= 0 {
		return Config{}, fmt.Errorf("TTS_SAMPLE_RATE must be positive")
	}
	if cfg.AudioAvailabilityWindow < time.Minute {
		return Config{}, fmt.Errorf("AUDIO_AVAILABILITY_WINDOW must be at least 1m")
	}
	if cfg.SignedURLMaxTTL > 24*time.Hour {
		return Config{}, fmt.Errorf("SIGNED_URL_MAX_TTL must not exceed 24h")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
