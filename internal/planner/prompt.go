package planner

import (
	"fmt"
	"strings"

	"github.com/evahlis/sona/internal/experience"
)

// Flavor selects the reflection framing and the synthesis voice.
type Flavor string

const (
	FlavorDay   Flavor = "day"
	FlavorNight Flavor = "night"
)

// ParseFlavor normalizes caller input. Unknown values report false.
func ParseFlavor(raw string) (Flavor, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "day", "morning", "energizing":
		return FlavorDay, true
	case "night", "evening", "settling":
		return FlavorNight, true
	default:
		return "", false
	}
}

// PromptInput is everything the script prompt is built from.
type PromptInput struct {
	Experiences     []experience.Record
	Profile         *experience.Profile
	DurationMinutes int
	Flavor          Flavor
}

// BuildScriptPrompt constructs the generation prompt. The prompt forbids
// markdown and mandates [PAUSE=Xs] as the only structural marker; the
// closing guidance varies by flavor.
func BuildScriptPrompt(in PromptInput) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are writing a guided meditation script of roughly %d minutes, meant to be read aloud slowly.\n\n", in.DurationMinutes)
	sb.WriteString("Rules:\n")
	sb.WriteString("- Plain spoken prose only. No markdown, no headings, no lists, no stage directions.\n")
	sb.WriteString("- The only structural marker allowed is a pause directive of the exact form [PAUSE=Xs], where X is a whole number of seconds.\n")
	sb.WriteString("- Insert pauses generously between thoughts; meditation needs silence.\n")
	sb.WriteString("- Speak directly to the listener in the second person.\n\n")

	if p := in.Profile; p != nil {
		sb.WriteString("About the listener:\n")
		if p.Name != "" {
			fmt.Fprintf(&sb, "- Name: %s\n", p.Name)
		}
		if p.Values != "" {
			fmt.Fprintf(&sb, "- Values: %s\n", p.Values)
		}
		if p.Mission != "" {
			fmt.Fprintf(&sb, "- Mission: %s\n", p.Mission)
		}
		if p.CurrentFocus != "" {
			fmt.Fprintf(&sb, "- Current focus: %s\n", p.CurrentFocus)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("The listener journaled these experiences:\n")
	for _, rec := range in.Experiences {
		fmt.Fprintf(&sb, "- (%s) %s\n", rec.OccurredAt.Format("Jan 2"), strings.TrimSpace(rec.Body))
	}
	sb.WriteString("\n")
	sb.WriteString("Weave the experiences into the meditation naturally; do not read them back verbatim.\n")

	switch in.Flavor {
	case FlavorDay:
		sb.WriteString("Close with intention-setting for the day ahead: what the listener wants to carry forward and one concrete intention.\n")
	default:
		sb.WriteString("Close with a loving-kindness framing for the evening: wish well to the people and places that surfaced in the experiences, naming them where possible, and let the day be complete.\n")
	}

	return sb.String()
}

// BuildTitleSummaryPrompt asks for a short title and a summary of at most
// three sentences, in a fixed two-line format the parser can rely on.
func BuildTitleSummaryPrompt(script string) string {
	var sb strings.Builder
	sb.WriteString("Given the meditation script below, respond with exactly two lines:\n")
	sb.WriteString("TITLE: <a short evocative title, at most six words>\n")
	sb.WriteString("SUMMARY: <at most three sentences describing the meditation>\n")
	sb.WriteString("No markdown, no extra lines.\n\nScript:\n")
	sb.WriteString(script)
	return sb.String()
}
