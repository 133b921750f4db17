package transcript

import (
	"fmt"
	"strings"
)

// Mode selects which rendering the caller gets.
type Mode string

const (
	ModeHuman Mode = "human"
	ModeDebug Mode = "debug"
)

// KnownMode reports whether m is a valid rendering mode.
func KnownMode(m Mode) bool {
	return m == ModeHuman || m == ModeDebug
}

// Render produces the line rendering for the given mode. Rendering is a
// pure function of the event list plus the mode flag; callers holding the
// raw list can render locally.
func Render(events []Event, mode Mode) []string {
	if mode == ModeDebug {
		return RenderDebug(events)
	}
	return RenderHuman(events)
}

// RenderHuman renders the redacted conversation. Events from internal
// actors, parse warnings, canonical translator output, and raw tool calls
// are omitted entirely; evidence events show only the abstract topic.
func RenderHuman(events []Event) []string {
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		switch ev.Kind {
		case KindParseWarning, KindTranslatorCanonical, KindToolCall,
			KindStateTransition, KindResourceCap, KindError:
			continue
		}
		if internalActor(ev.Actor) {
			continue
		}
		if ev.Kind == KindReliability {
			lines = append(lines, fmt.Sprintf("Reliability: %d%% (%s)", ev.Score, bandLabel(ev.Band)))
			continue
		}
		if ev.Human == "" {
			continue
		}
		actor := humanActorLabel(ev.Actor)
		if ev.Kind == KindEvidence {
			lines = append(lines, fmt.Sprintf("[%s] Evidence from %s: %s", actor, ev.Topic, ev.Human))
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", actor, ev.Human))
	}
	return lines
}

// RenderDebug renders everything: timestamps, probe ids, evidence ids,
// durations, parse warnings, state transitions.
func RenderDebug(events []Event) []string {
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		var b strings.Builder
		fmt.Fprintf(&b, "%6dms [%s]", ev.ElapsedMS, ev.Kind)
		if ev.Actor != "" {
			fmt.Fprintf(&b, " actor=%s", ev.Actor)
		}
		if ev.ProbeID != "" {
			fmt.Fprintf(&b, " tool=%s", ev.ProbeID)
		}
		if ev.EvidenceID != "" {
			fmt.Fprintf(&b, " [%s]", ev.EvidenceID)
		}
		if ev.DurationMS > 0 {
			fmt.Fprintf(&b, " (%dms)", ev.DurationMS)
		}
		if ev.Decision != "" {
			fmt.Fprintf(&b, " decision=%s", ev.Decision)
		}
		if ev.Kind == KindReliability || ev.Kind == KindReviewGate {
			fmt.Fprintf(&b, " score=%d", ev.Score)
		}
		if ev.Kind == KindReviewGate {
			fmt.Fprintf(&b, " requires_llm_review=%t", ev.RequiresLLMReview)
		}
		text := ev.Debug
		if text == "" {
			text = ev.Human
		}
		if text != "" {
			fmt.Fprintf(&b, " %s", text)
		}
		lines = append(lines, b.String())
	}
	return lines
}

func humanActorLabel(a Actor) string {
	switch a {
	case ActorServiceDesk:
		return "service desk"
	case ActorSpecialist:
		return "specialist"
	case ActorUser:
		return "you"
	case ActorAnna, "":
		return "anna"
	default:
		// Department names pass through verbatim (network, storage, ...).
		return string(a)
	}
}

func bandLabel(band string) string {
	switch band {
	case "green":
		return "High"
	case "yellow":
		return "Medium"
	default:
		return "Low"
	}
}
