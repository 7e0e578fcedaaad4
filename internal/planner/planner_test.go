package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evahlis/sona/internal/experience"
)

type scriptedGenerator struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	i := g.calls
	g.calls++
	g.prompts = append(g.prompts, prompt)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	var out string
	if i < len(g.responses) {
		out = g.responses[i]
	}
	return out, err
}

func TestPlanScriptParsesAndSummarizes(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"Settle in. [PAUSE=5s] Let the day soften. [PAUSE=8s] Rest now.",
		"TITLE: Evening Ease\nSUMMARY: A settling close to the day.",
	}}
	p := New(gen)

	plan, err := p.PlanScript(context.Background(), PromptInput{
		Experiences:     []experience.Record{{ID: "n1", Body: "walked by the river", OccurredAt: time.Now()}},
		DurationMinutes: 5,
		Flavor:          FlavorNight,
	})
	require.NoError(t, err)
	assert.Equal(t, "Evening Ease", plan.Title)
	assert.Equal(t, "A settling close to the day.", plan.Summary)
	require.GreaterOrEqual(t, len(plan.Segments), 2)
	assert.Contains(t, plan.Script, "[PAUSE=")
}

func TestPlanScriptTitleFallbackIsDeterministic(t *testing.T) {
	gen := &scriptedGenerator{
		responses: []string{"Breathe. [PAUSE=5s] Rest.", ""},
		errs:      []error{nil, errors.New("model unavailable")},
	}
	p := New(gen)
	p.now = func() time.Time { return time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC) }

	plan, err := p.PlanScript(context.Background(), PromptInput{Flavor: FlavorNight, DurationMinutes: 5})
	require.NoError(t, err)
	assert.Equal(t, "Evening Reflection - March 14, 2026", plan.Title)
	assert.Contains(t, plan.Summary, "evening")
}

func TestPlanScriptPropagatesScriptFailure(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{errors.New("model down")}}
	p := New(gen)
	_, err := p.PlanScript(context.Background(), PromptInput{Flavor: FlavorDay, DurationMinutes: 5})
	require.Error(t, err)
}

func TestBuildScriptPromptFlavoredClose(t *testing.T) {
	in := PromptInput{
		Experiences:     []experience.Record{{Body: "dinner with Maya", OccurredAt: time.Now()}},
		DurationMinutes: 10,
	}

	in.Flavor = FlavorNight
	night := BuildScriptPrompt(in)
	assert.Contains(t, night, "loving-kindness")
	assert.Contains(t, night, "[PAUSE=Xs]")
	assert.Contains(t, night, "No markdown")

	in.Flavor = FlavorDay
	day := BuildScriptPrompt(in)
	assert.Contains(t, day, "intention")
	assert.NotContains(t, day, "loving-kindness")
}

func TestParseFlavor(t *testing.T) {
	for raw, want := range map[string]Flavor{
		"Night":   FlavorNight,
		"evening": FlavorNight,
		"day":     FlavorDay,
		"Morning": FlavorDay,
	} {
		got, ok := ParseFlavor(raw)
		require.True(t, ok, "flavor %q", raw)
		assert.Equal(t, want, got)
	}
	_, ok := ParseFlavor("afternoonish")
	assert.False(t, ok)
}
