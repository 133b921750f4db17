package transcript

import (
	"fmt"
	"regexp"
	"strings"
)

// Forbidden substrings for human mode output. These catch leaked
// internals: evidence ids, tool-name fragments, raw commands, parser
// noise. Checked literally (fast path) before the regex sweep.
var forbiddenHumanLiterals = []string{
	"[E",
	"_snapshot",
	"_summary",
	"_probe",
	"journalctl",
	"systemctl ",
	"nmcli ",
	"pacman -",
	"Parse error",
	"parse error",
	"deterministic fallback",
	"CANONICAL",
	"tool=",
}

// Forbidden regex patterns for human mode output.
var forbiddenHumanPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[E\d+\]`),
	regexp.MustCompile(`\b[a-z]+\.[a-z]+:[a-z0-9_-]+\b`), // parameterized probe ids
	regexp.MustCompile(`\blscpu\b|\blsblk\b|\blspci\b|\bsmartctl\b`),
	regexp.MustCompile(`\bip\s+addr\b|\bip\s+route\b`),
	regexp.MustCompile(`evidence_id|parse_attempts|fallback_used`),
}

// ValidateHumanLines checks rendered human-mode lines against the
// forbidden set and returns one violation message per hit. An empty
// result means the rendering is clean.
func ValidateHumanLines(lines []string) []string {
	var violations []string
	content := strings.Join(lines, "\n")

	for _, literal := range forbiddenHumanLiterals {
		if strings.Contains(content, literal) {
			violations = append(violations,
				fmt.Sprintf("forbidden literal %q in human output", literal))
		}
	}
	for _, re := range forbiddenHumanPatterns {
		if m := re.FindString(content); m != "" {
			violations = append(violations,
				fmt.Sprintf("forbidden pattern %q matched %q in human output", re.String(), m))
		}
	}
	return violations
}

// HumanIsSubsetOfDebug verifies that every event surfaced in human mode is
// also present (by payload) in the debug rendering of the same stream. An
// event with its own Debug payload counts as present without a text check,
// since the debug rendering shows that payload in place of the human one.
func HumanIsSubsetOfDebug(events []Event) bool {
	debug := strings.Join(RenderDebug(events), "\n")
	for _, ev := range events {
		if ev.Human == "" || internalActor(ev.Actor) {
			continue
		}
		if !strings.Contains(debug, ev.Human) && ev.Debug == "" {
			return false
		}
	}
	return true
}
