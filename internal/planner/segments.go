package planner

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPauseSeconds replaces zero, negative, or malformed pause payloads.
const DefaultPauseSeconds = 3

// MaxPauseSeconds caps a single pause directive. The script comes from an
// external text generator, so the payload is untrusted; every pause second
// later becomes allocated silence samples.
const MaxPauseSeconds = 60

type SegmentKind string

const (
	SegmentSpeech SegmentKind = "speech"
	SegmentPause  SegmentKind = "pause"
)

// Segment is one parsed unit of a generation script: either spoken prose or
// a silence duration in seconds. Order is the join key for final assembly.
type Segment struct {
	Kind         SegmentKind
	Text         string
	PauseSeconds int
}

// pauseDirective matches [PAUSE=Xs] with any payload before the closing
// "s]", so malformed numbers are still consumed as directives rather than
// leaking into spoken text.
var pauseDirective = regexp.MustCompile(`\[PAUSE=([^\[\]]*?)s\]`)

// ParseSegments splits a script on pause directives. It is total: any input
// yields a valid ordered segment list and malformed pause payloads coerce to
// DefaultPauseSeconds. Empty speech tokens are discarded, so a script with
// zero directives becomes exactly one speech segment.
func ParseSegments(script string) []Segment {
	matches := pauseDirective.FindAllStringSubmatchIndex(script, -1)
	segments := make([]Segment, 0, 2*len(matches)+1)

	appendSpeech := func(raw string) {
		text := strings.TrimSpace(raw)
		if text == "" {
			return
		}
		segments = append(segments, Segment{Kind: SegmentSpeech, Text: text})
	}

	last := 0
	for _, m := range matches {
		appendSpeech(script[last:m[0]])
		segments = append(segments, Segment{
			Kind:         SegmentPause,
			PauseSeconds: coercePause(script[m[2]:m[3]]),
		})
		last = m[1]
	}
	appendSpeech(script[last:])
	return segments
}

// RenderScript reconstructs a script string from segments, in order.
func RenderScript(segments []Segment) string {
	var sb strings.Builder
	for i, seg := range segments {
		if i > 0 {
			sb.WriteString(" ")
		}
		switch seg.Kind {
		case SegmentPause:
			fmt.Fprintf(&sb, "[PAUSE=%ds]", seg.PauseSeconds)
		default:
			sb.WriteString(seg.Text)
		}
	}
	return sb.String()
}

// EstimateDurationSeconds approximates playback time: literal seconds for
// pauses and a 10-characters-per-second reading pace for speech. This is a
// heuristic, not measured audio length.
func EstimateDurationSeconds(segments []Segment) int {
	total := 0
	for _, seg := range segments {
		switch seg.Kind {
		case SegmentPause:
			total += seg.PauseSeconds
		case SegmentSpeech:
			total += (len(seg.Text) + 9) / 10
		}
	}
	return total
}

func coercePause(raw string) int {
	raw = strings.TrimSpace(raw)
	n, err := strconv.Atoi(raw)
	if err != nil {
		// Tolerate fractional payloads like "2.5" by truncating. The range
		// checks run on the float so the int conversion never overflows.
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || math.IsNaN(f) {
			return DefaultPauseSeconds
		}
		if f > MaxPauseSeconds {
			return MaxPauseSeconds
		}
		if f <= 0 {
			return DefaultPauseSeconds
		}
		n = int(f)
	}
	if n <= 0 {
		return DefaultPauseSeconds
	}
	if n > MaxPauseSeconds {
		return MaxPauseSeconds
	}
	return n
}
