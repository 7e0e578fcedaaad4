package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.JobRateLimit != 5 {
		t.Fatalf("JobRateLimit = %d, want 5", cfg.JobRateLimit)
	}
	if cfg.JobRateWindow != 15*time.Minute {
		t.Fatalf("JobRateWindow = %v, want 15m", cfg.JobRateWindow)
	}
	if cfg.AudioAvailabilityWindow != 24*time.Hour {
		t.Fatalf("AudioAvailabilityWindow = %v, want 24h", cfg.AudioAvailabilityWindow)
	}
	if cfg.TTSSampleRate != 16000 {
		t.Fatalf("TTSSampleRate = %d, want 16000", cfg.TTSSampleRate)
	}
}

func TestLoadRejectsSignedURLTTLBeyondAvailability(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SIGNED_URL_MAX_TTL", "48h")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want SIGNED_URL_MAX_TTL rejection")
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("JOB_RATE_WINDOW", "five minutes")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want parse error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"DATABASE_URL",
		"TEXTGEN_BASE_URL",
		"TEXTGEN_API_KEY",
		"TEXTGEN_MODEL",
		"TEXTGEN_TIMEOUT",
		"TTS_PROVIDER",
		"ELEVENLABS_BASE_URL",
		"ELEVENLABS_API_KEY",
		"TTS_DAY_VOICE_ID",
		"TTS_NIGHT_VOICE_ID",
		"TTS_MODEL_ID",
		"TTS_TIMEOUT",
		"TTS_SAMPLE_RATE",
		"TRANSCODE_BINARY",
		"TRANSCODE_TIMEOUT",
		"STORAGE_BASE_URL",
		"STORAGE_API_KEY",
		"STORAGE_BUCKET",
		"STORAGE_TIMEOUT",
		"AUDIO_AVAILABILITY_WINDOW",
		"SIGNED_URL_MAX_TTL",
		"JOB_RATE_LIMIT",
		"JOB_RATE_WINDOW",
		"JOB_MAX_RETRIES",
		"JOB_TRIGGER_DELAY",
		"GENERATION_TIMEOUT",
		"SYNTHESIS_PARALLEL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
