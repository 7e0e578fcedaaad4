package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evahlis/sona/internal/assemble"
	"github.com/evahlis/sona/internal/config"
	"github.com/evahlis/sona/internal/experience"
	"github.com/evahlis/sona/internal/generation"
	"github.com/evahlis/sona/internal/httpapi"
	"github.com/evahlis/sona/internal/jobs"
	"github.com/evahlis/sona/internal/meditation"
	"github.com/evahlis/sona/internal/observability"
	"github.com/evahlis/sona/internal/planner"
	"github.com/evahlis/sona/internal/progress"
	"github.com/evahlis/sona/internal/speech"
	"github.com/evahlis/sona/internal/storage"
	"github.com/evahlis/sona/internal/textgen"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	ctx := context.Background()

	var (
		pool        *pgxpool.Pool
		meditations meditation.Store
		jobStore    jobs.Store
		experiences experience.Source
		tracker     progress.Tracker
	)
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database pool init failed: %v", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.Fatalf("database unreachable: %v", err)
		}

		meditations, err = meditation.NewPostgresStore(ctx, pool)
		if err != nil {
			log.Fatalf("meditation store init failed: %v", err)
		}
		jobStore, err = jobs.NewPostgresStore(ctx, pool)
		if err != nil {
			log.Fatalf("job store init failed: %v", err)
		}
		tracker, err = progress.NewPostgresTracker(ctx, pool)
		if err != nil {
			log.Fatalf("progress tracker init failed: %v", err)
		}
		experiences = experience.NewPostgresSource(pool)
		log.Printf("persistence: postgres")
	} else {
		meditations = meditation.NewInMemoryStore()
		jobStore = jobs.NewInMemoryStore()
		tracker = progress.NoopTracker{}
		experiences = experience.NewInMemorySource()
		log.Printf("persistence: in-memory (DATABASE_URL not set)")
	}
	defer meditations.Close()
	defer jobStore.Close()

	var generator textgen.Generator
	if cfg.TextGenAPIKey != "" {
		generator, err = textgen.NewOpenAIGenerator(textgen.OpenAIConfig{
			BaseURL: cfg.TextGenBaseURL,
			APIKey:  cfg.TextGenAPIKey,
			Model:   cfg.TextGenModel,
			Timeout: cfg.TextGenTimeout,
		})
		if err != nil {
			log.Fatalf("text generator init failed: %v", err)
		}
		log.Printf("text generation: %s via %s", cfg.TextGenModel, cfg.TextGenBaseURL)
	} else {
		generator = textgen.NewMockGenerator()
		log.Printf("text generation: mock (TEXTGEN_API_KEY not set)")
	}

	var synthesizer speech.Synthesizer
	ttsMode := strings.ToLower(strings.TrimSpace(cfg.TTSProvider))
	if ttsMode == "" {
		ttsMode = "auto"
	}
	switch ttsMode {
	case "elevenlabs":
		if cfg.TTSAPIKey == "" {
			log.Fatalf("TTS_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
		}
		synthesizer = newElevenLabs(cfg)
		log.Printf("speech synthesis: elevenlabs")
	case "mock":
		synthesizer = speech.NewMockSynthesizer(cfg.TTSSampleRate)
		log.Printf("speech synthesis: mock")
	case "auto":
		if cfg.TTSAPIKey != "" {
			// Mock fallback keeps generation alive through a provider outage;
			// affected segments degrade to silence-equivalent audio.
			synthesizer = speech.NewFailoverSynthesizer(
				newElevenLabs(cfg),
				speech.NewMockSynthesizer(cfg.TTSSampleRate),
			)
			log.Printf("speech synthesis: elevenlabs with mock failover")
		} else {
			synthesizer = speech.NewMockSynthesizer(cfg.TTSSampleRate)
			log.Printf("speech synthesis: mock (ELEVENLABS_API_KEY not set)")
		}
	default:
		log.Fatalf("invalid TTS_PROVIDER: %q (expected auto|elevenlabs|mock)", cfg.TTSProvider)
	}

	var transcoder assemble.Transcoder
	if ff, err := assemble.NewFFmpegTranscoder(cfg.TranscodeBinary, cfg.TranscodeTimeout); err != nil {
		log.Printf("transcoder unavailable, serving wav: %v", err)
	} else {
		transcoder = ff
		log.Printf("transcoder: %s", cfg.TranscodeBinary)
	}
	assembler := assemble.New(transcoder)
	assembler.SetFallbackHook(func() {
		metrics.StageFallback(observability.StageTranscode)
	})

	var objects storage.ObjectStore
	if cfg.StorageBaseURL != "" {
		objects, err = storage.NewHTTPStore(storage.HTTPConfig{
			BaseURL: cfg.StorageBaseURL,
			APIKey:  cfg.StorageAPIKey,
			Bucket:  cfg.StorageBucket,
			Timeout: cfg.StorageTimeout,
		})
		if err != nil {
			log.Fatalf("object store init failed: %v", err)
		}
		log.Printf("object storage: %s bucket %s", cfg.StorageBaseURL, cfg.StorageBucket)
	} else {
		objects = storage.NewInMemoryStore()
		log.Printf("object storage: in-memory (STORAGE_BASE_URL not set)")
	}

	pipeline := generation.NewPipeline(
		experiences,
		planner.New(generator),
		synthesizer,
		assembler,
		objects,
		meditations,
		tracker,
		metrics,
		generation.Options{
			SampleRate:         cfg.TTSSampleRate,
			SynthesisParallel:  cfg.SynthesisParallel,
			AvailabilityWindow: cfg.AudioAvailabilityWindow,
			DayVoiceID:         cfg.TTSDayVoiceID,
			NightVoiceID:       cfg.TTSNightVoiceID,
			TTSModelID:         cfg.TTSModelID,
		},
	)

	availability := meditation.NewAvailability(meditations, objects, cfg.SignedURLMaxTTL)
	availability.SetPurgeHook(func() {
		metrics.ArtifactPurges.Inc()
	})

	runner := jobs.RunnerFunc(func(ctx context.Context, j jobs.Job) (string, error) {
		flavor, ok := planner.ParseFlavor(j.ReflectionType)
		if !ok {
			return "", errors.New("job carries unknown reflection type")
		}
		m, err := pipeline.Generate(ctx, generation.Request{
			UserID:          j.UserID,
			ExperienceIDs:   j.ExperienceIDs,
			DurationMinutes: j.DurationMinutes,
			Flavor:          flavor,
		})
		if err != nil {
			return "", err
		}
		return m.ID, nil
	})
	limiter := jobs.NewRateLimiter(cfg.JobRateLimit, cfg.JobRateWindow)
	jobManager := jobs.NewManager(jobStore, runner, limiter, metrics, jobs.ManagerOptions{
		MaxRetries:        cfg.JobMaxRetries,
		TriggerDelay:      cfg.JobTriggerDelay,
		GenerationTimeout: cfg.GenerationTimeout,
	})

	api := httpapi.New(cfg, pipeline, meditations, availability, objects, jobManager, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	// Drain any jobs left pending by a previous run.
	go func() {
		if err := jobManager.DrainPending(context.Background()); err != nil {
			log.Printf("startup job sweep: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

func newElevenLabs(cfg config.Config) *speech.ElevenLabsSynthesizer {
	return speech.NewElevenLabsSynthesizer(speech.ElevenLabsConfig{
		APIKey:     cfg.TTSAPIKey,
		BaseURL:    cfg.TTSBaseURL,
		SampleRate: cfg.TTSSampleRate,
		Timeout:    cfg.TTSTimeout,
	})
}
