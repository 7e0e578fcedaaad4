// Package planner turns journaled experiences into a typed meditation
// script: prompt construction, script generation, and segment parsing.
package planner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/evahlis/sona/internal/textgen"
)

// Plan is the parsed output of the script stage.
type Plan struct {
	Script   string
	Segments []Segment
	Title    string
	Summary  string
}

type Planner struct {
	generator textgen.Generator
	now       func() time.Time
}

func New(generator textgen.Generator) *Planner {
	return &Planner{generator: generator, now: time.Now}
}

// PlanScript generates and parses the meditation script. Script generation
// has no fallback: if the model call fails, the pipeline cannot proceed.
func (p *Planner) PlanScript(ctx context.Context, in PromptInput) (Plan, error) {
	script, err := p.generator.Generate(ctx, BuildScriptPrompt(in))
	if err != nil {
		return Plan{}, fmt.Errorf("generate script: %w", err)
	}
	script = strings.TrimSpace(script)

	segments := ParseSegments(script)
	if len(segments) == 0 {
		return Plan{}, fmt.Errorf("generate script: empty script")
	}

	plan := Plan{Script: script, Segments: segments}
	plan.Title, plan.Summary = p.titleAndSummary(ctx, script, in.Flavor)
	return plan, nil
}

// titleAndSummary runs the second, independent generation call. On any
// failure it falls back to a date-stamped title and a generic summary so the
// pipeline never aborts here.
func (p *Planner) titleAndSummary(ctx context.Context, script string, flavor Flavor) (string, string) {
	out, err := p.generator.Generate(ctx, BuildTitleSummaryPrompt(script))
	if err == nil {
		if title, summary, ok := parseTitleSummary(out); ok {
			return title, summary
		}
		err = fmt.Errorf("unexpected title/summary format")
	}
	log.Printf("planner: title/summary generation failed, using fallback: %v", err)
	return p.fallbackTitle(flavor), fallbackSummary(flavor)
}

func (p *Planner) fallbackTitle(flavor Flavor) string {
	kind := "Evening Reflection"
	if flavor == FlavorDay {
		kind = "Morning Reflection"
	}
	return fmt.Sprintf("%s - %s", kind, p.now().Format("January 2, 2006"))
}

func fallbackSummary(flavor Flavor) string {
	if flavor == FlavorDay {
		return "A guided morning meditation drawn from your recent experiences, closing with an intention for the day."
	}
	return "A guided evening meditation drawn from your recent experiences, closing with loving-kindness before rest."
}

func parseTitleSummary(out string) (string, string, bool) {
	var title, summary string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(strings.ToUpper(line), "TITLE:"):
			title = strings.TrimSpace(line[len("TITLE:"):])
		case strings.HasPrefix(strings.ToUpper(line), "SUMMARY:"):
			summary = strings.TrimSpace(line[len("SUMMARY:"):])
		}
	}
	if title == "" || summary == "" {
		return "", "", false
	}
	return title, summary, true
}
