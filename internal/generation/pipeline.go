// Package generation orchestrates the full meditation pipeline: script
// planning, segment synthesis, assembly, artifact upload, and the final
// database record. The same pipeline backs the synchronous endpoint and the
// job worker.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evahlis/sona/internal/assemble"
	"github.com/evahlis/sona/internal/audio"
	"github.com/evahlis/sona/internal/experience"
	"github.com/evahlis/sona/internal/meditation"
	"github.com/evahlis/sona/internal/observability"
	"github.com/evahlis/sona/internal/planner"
	"github.com/evahlis/sona/internal/progress"
	"github.com/evahlis/sona/internal/speech"
	"github.com/evahlis/sona/internal/storage"
)

var (
	ErrNoExperiences   = errors.New("no experiences found for the given ids")
	ErrInvalidDuration = errors.New("duration must be positive")
)

// failureSilence replaces a segment whose synthesis failed. Near-zero so a
// single bad segment barely dents the track.
const failureSilence = 100 * time.Millisecond

// Request describes one generation, shared by both execution paths.
type Request struct {
	UserID          string
	ExperienceIDs   []string
	DurationMinutes int
	Flavor          planner.Flavor
}

type Options struct {
	SampleRate         int
	SynthesisParallel  int
	AvailabilityWindow time.Duration
	DayVoiceID         string
	NightVoiceID       string
	TTSModelID         string
}

type Pipeline struct {
	experiences experience.Source
	planner     *planner.Planner
	synthesizer speech.Synthesizer
	assembler   *assemble.Assembler
	objects     storage.ObjectStore
	meditations meditation.Store
	tracker     progress.Tracker
	metrics     *observability.Metrics
	opts        Options
	now         func() time.Time
}

func NewPipeline(
	experiences experience.Source,
	plan *planner.Planner,
	synthesizer speech.Synthesizer,
	assembler *assemble.Assembler,
	objects storage.ObjectStore,
	meditations meditation.Store,
	tracker progress.Tracker,
	metrics *observability.Metrics,
	opts Options,
) *Pipeline {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.SynthesisParallel <= 0 {
		opts.SynthesisParallel = 4
	}
	if opts.AvailabilityWindow <= 0 {
		opts.AvailabilityWindow = 24 * time.Hour
	}
	if tracker == nil {
		tracker = progress.NoopTracker{}
	}
	return &Pipeline{
		experiences: experiences,
		planner:     plan,
		synthesizer: synthesizer,
		assembler:   assembler,
		objects:     objects,
		meditations: meditations,
		tracker:     tracker,
		metrics:     metrics,
		opts:        opts,
		now:         time.Now,
	}
}

// Generate runs the whole chain and persists the resulting meditation.
// Stage failures with a defined fallback (synthesis, transcode, upload)
// degrade the artifact; only script generation and the final database write
// can fail the request.
func (p *Pipeline) Generate(ctx context.Context, req Request) (meditation.Meditation, error) {
	started := p.now()

	if len(req.ExperienceIDs) == 0 {
		return meditation.Meditation{}, ErrNoExperiences
	}
	if req.DurationMinutes <= 0 {
		return meditation.Meditation{}, ErrInvalidDuration
	}

	records, err := p.experiences.ExperiencesByIDs(ctx, req.UserID, req.ExperienceIDs)
	if err != nil {
		return meditation.Meditation{}, fmt.Errorf("fetch experiences: %w", err)
	}
	if len(records) == 0 {
		return meditation.Meditation{}, ErrNoExperiences
	}

	profile, err := p.experiences.ProfileContext(ctx, req.UserID)
	if err != nil {
		// Profile context enriches the prompt but is not required.
		log.Printf("generation: profile fetch failed for %s, continuing without: %v", req.UserID, err)
		profile = nil
	}

	planStarted := p.now()
	plan, err := p.planner.PlanScript(ctx, planner.PromptInput{
		Experiences:     records,
		Profile:         profile,
		DurationMinutes: req.DurationMinutes,
		Flavor:          req.Flavor,
	})
	if err != nil {
		return meditation.Meditation{}, err
	}
	p.metrics.ObserveStage(observability.StagePlan, p.now().Sub(planStarted))

	synthStarted := p.now()
	buffers := p.synthesizeSegments(ctx, plan.Segments, p.voiceProfile(req.Flavor))
	p.metrics.ObserveStage(observability.StageSynthesize, p.now().Sub(synthStarted))

	assembleStarted := p.now()
	track, err := p.assembler.Assemble(ctx, buffers)
	if err != nil {
		return meditation.Meditation{}, fmt.Errorf("assemble track: %w", err)
	}
	p.metrics.ObserveStage(observability.StageAssemble, p.now().Sub(assembleStarted))

	meditationID := uuid.NewString()
	now := p.now().UTC()
	m := meditation.Meditation{
		ID:              meditationID,
		UserID:          req.UserID,
		Title:           plan.Title,
		Script:          plan.Script,
		Summary:         plan.Summary,
		ExperienceIDs:   req.ExperienceIDs,
		DurationSeconds: int(track.Duration.Seconds()),
		CreatedAt:       now,
	}
	if m.DurationSeconds <= 0 {
		m.DurationSeconds = planner.EstimateDurationSeconds(plan.Segments)
	}

	path := fmt.Sprintf("%s/%s/meditation.%s", req.UserID, meditationID, track.Extension)
	uploadStarted := p.now()
	if err := p.objects.Upload(ctx, path, track.Data, track.ContentType); err != nil {
		// Degrade to text only rather than discarding the script work.
		log.Printf("generation: upload failed for %s, keeping text-only record: %v", meditationID, err)
		p.metrics.StageFallback(observability.StageUpload)
	} else {
		expiresAt := now.Add(p.opts.AvailabilityWindow)
		m.AudioStoragePath = &path
		m.AudioExpiresAt = &expiresAt
		m.Playlist = []meditation.TrackRef{{Kind: meditation.TrackKindContinuous, StoragePath: path}}
	}
	p.metrics.ObserveStage(observability.StageUpload, p.now().Sub(uploadStarted))

	persistStarted := p.now()
	if err := p.meditations.Create(ctx, m); err != nil {
		// No fallback is defined for the record write; clean up the orphaned
		// object so partial artifacts never accumulate.
		if m.AudioStoragePath != nil {
			if rmErr := p.objects.Remove(ctx, []string{path}); rmErr != nil {
				log.Printf("generation: cleanup of %s after failed record write: %v", path, rmErr)
			}
		}
		return meditation.Meditation{}, fmt.Errorf("persist meditation: %w", err)
	}
	p.metrics.ObserveStage(observability.StagePersist, p.now().Sub(persistStarted))

	p.metrics.ObserveGeneration(p.now().Sub(started))
	return m, nil
}

// RecordCompletion stamps the meditation and feeds the progress tracker
// exactly once per successful completion.
func (p *Pipeline) RecordCompletion(ctx context.Context, userID, id string, percent int) (meditation.Meditation, error) {
	now := p.now().UTC()
	m, err := p.meditations.RecordCompletion(ctx, userID, id, percent, now)
	if err != nil {
		return meditation.Meditation{}, err
	}
	if _, err := p.tracker.IncrementMeditationProgress(ctx, userID, now); err != nil {
		// Progress bookkeeping is a collaborator concern; the completion
		// record already stands.
		log.Printf("generation: progress increment failed for %s: %v", userID, err)
	}
	return m, nil
}

// synthesizeSegments renders every segment to a buffer. Speech calls may run
// concurrently, but buffers are placed by original segment index so the
// merge order matches sequential processing exactly.
func (p *Pipeline) synthesizeSegments(ctx context.Context, segments []planner.Segment, voice speech.VoiceProfile) []audio.Buffer {
	buffers := make([]audio.Buffer, len(segments))
	sem := make(chan struct{}, p.opts.SynthesisParallel)
	var wg sync.WaitGroup

	for i, seg := range segments {
		if seg.Kind == planner.SegmentPause {
			buffers[i] = audio.Silence(time.Duration(seg.PauseSeconds)*time.Second, p.opts.SampleRate)
			continue
		}
		wg.Add(1)
		go func(idx int, text string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			pcm, err := p.synthesizer.Synthesize(ctx, text, voice)
			if err != nil {
				log.Printf("generation: synthesis failed for segment %d, using silence: %v", idx, err)
				if p.metrics != nil {
					p.metrics.SynthesisFailures.Inc()
				}
				p.metrics.StageFallback(observability.StageSynthesize)
				buffers[idx] = audio.Silence(failureSilence, p.opts.SampleRate)
				return
			}
			buffers[idx] = audio.FromPCM(pcm, p.opts.SampleRate)
		}(i, seg.Text)
	}
	wg.Wait()
	return buffers
}

func (p *Pipeline) voiceProfile(flavor planner.Flavor) speech.VoiceProfile {
	if flavor == planner.FlavorDay {
		return speech.VoiceProfile{
			VoiceID:   strings.TrimSpace(p.opts.DayVoiceID),
			ModelID:   p.opts.TTSModelID,
			Speed:     1.0,
			Stability: 0.42,
		}
	}
	return speech.VoiceProfile{
		VoiceID:   strings.TrimSpace(p.opts.NightVoiceID),
		ModelID:   p.opts.TTSModelID,
		Speed:     0.85,
		Stability: 0.6,
	}
}
