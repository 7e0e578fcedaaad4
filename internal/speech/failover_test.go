package speech

import (
	"context"
	"errors"
	"testing"
)

type stubSynthesizer struct {
	synthesize func(context.Context, string, VoiceProfile) ([]byte, error)
	calls      int
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text string, profile VoiceProfile) ([]byte, error) {
	s.calls++
	return s.synthesize(ctx, text, profile)
}

func TestFailoverSwitchesToFallbackAndSticks(t *testing.T) {
	ctx := context.Background()
	primaryErr := errors.New("primary unavailable")

	primary := &stubSynthesizer{
		synthesize: func(context.Context, string, VoiceProfile) ([]byte, error) {
			return nil, primaryErr
		},
	}
	fallback := &stubSynthesizer{
		synthesize: func(context.Context, string, VoiceProfile) ([]byte, error) {
			return []byte{1, 2}, nil
		},
	}

	s := NewFailoverSynthesizer(primary, fallback)
	if _, err := s.Synthesize(ctx, "one", VoiceProfile{}); err != nil {
		t.Fatalf("Synthesize() unexpected error = %v", err)
	}
	if _, err := s.Synthesize(ctx, "two", VoiceProfile{}); err != nil {
		t.Fatalf("Synthesize() on fallback unexpected error = %v", err)
	}

	if primary.calls != 1 {
		t.Fatalf("primary calls = %d, want 1", primary.calls)
	}
	if fallback.calls != 2 {
		t.Fatalf("fallback calls = %d, want 2", fallback.calls)
	}
}

func TestFailoverRecoversToPrimary(t *testing.T) {
	ctx := context.Background()
	primaryFails := true
	primary := &stubSynthesizer{
		synthesize: func(context.Context, string, VoiceProfile) ([]byte, error) {
			if primaryFails {
				return nil, errors.New("primary down")
			}
			return []byte{9}, nil
		},
	}
	fallbackFails := false
	fallback := &stubSynthesizer{
		synthesize: func(context.Context, string, VoiceProfile) ([]byte, error) {
			if fallbackFails {
				return nil, errors.New("fallback down")
			}
			return []byte{1}, nil
		},
	}

	s := NewFailoverSynthesizer(primary, fallback)
	if _, err := s.Synthesize(ctx, "a", VoiceProfile{}); err != nil {
		t.Fatalf("initial failover error = %v", err)
	}

	primaryFails = false
	fallbackFails = true
	audio, err := s.Synthesize(ctx, "b", VoiceProfile{})
	if err != nil {
		t.Fatalf("recovery error = %v", err)
	}
	if len(audio) != 1 || audio[0] != 9 {
		t.Fatalf("audio = %v, want primary output", audio)
	}

	// Primary should stay active afterwards.
	if _, err := s.Synthesize(ctx, "c", VoiceProfile{}); err != nil {
		t.Fatalf("post-recovery error = %v", err)
	}
	if fallback.calls != 2 {
		t.Fatalf("fallback calls = %d, want 2", fallback.calls)
	}
}

func TestFailoverBothFailing(t *testing.T) {
	failing := func(context.Context, string, VoiceProfile) ([]byte, error) {
		return nil, errors.New("down")
	}
	s := NewFailoverSynthesizer(&stubSynthesizer{synthesize: failing}, &stubSynthesizer{synthesize: failing})
	if _, err := s.Synthesize(context.Background(), "x", VoiceProfile{}); err == nil {
		t.Fatalf("Synthesize() error = nil, want combined failure")
	}
}
