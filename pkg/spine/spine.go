// Package spine computes the minimum probe set a ticket must run.
// Pattern rules are evaluated in order; the first match wins per probe
// kind, and several kinds may each add probes. Two transformations run
// after requirement gathering: reduce (per-intent cap + dedupe) and
// merge (translator requests keep their order, missing required probes
// are appended).
package spine

import (
	"strings"

	"github.com/jjgarcianorway/anna/pkg/models"
)

// Probe caps. System-health questions may carry one extra probe on top
// of their journal + failed-units minimum.
const (
	DefaultCap      = 3
	SystemHealthCap = 4
)

// Result is the spine's plan for one ticket. Enforced is true exactly
// when the spine added probes the translator did not request; that
// forcible grounding earns a small positive reliability adjustment.
type Result struct {
	Probes   []models.ProbeID
	Enforced bool
	Reason   string
	Kinds    []string
}

// Plan merges the pattern-required probes with the translator's
// requests and applies the cap.
func Plan(ticket models.Ticket, question string) Result {
	lower := strings.ToLower(question)
	required, kinds, systemHealth := requiredProbes(ticket, lower)

	limit := DefaultCap
	if systemHealth {
		limit = SystemHealthCap
	}

	// Merge: translator-requested probes keep their order; required
	// probes not already present are appended.
	merged := make([]models.ProbeID, 0, len(ticket.RequestedProbes)+len(required))
	seen := make(map[models.ProbeID]bool)
	for _, id := range ticket.RequestedProbes {
		if !seen[id] {
			merged = append(merged, id)
			seen[id] = true
		}
	}
	enforced := false
	var enforcedIDs []string
	for _, id := range required {
		if !seen[id] {
			merged = append(merged, id)
			seen[id] = true
			enforced = true
			enforcedIDs = append(enforcedIDs, string(id))
		}
	}

	merged = dedupeJournalLevels(merged, lower)
	merged = reduce(merged, limit)

	reason := "translator plan already covered the required evidence"
	if enforced {
		reason = "spine added required probes: " + strings.Join(enforcedIDs, ", ")
	}
	if len(merged) == 0 {
		reason = "no probes required for this intent"
	}

	return Result{Probes: merged, Enforced: enforced, Reason: reason, Kinds: kinds}
}

// requiredProbes gathers the pattern-directed minimum set.
func requiredProbes(ticket models.Ticket, lower string) (probes []models.ProbeID, kinds []string, systemHealth bool) {
	add := func(kind string, ids ...models.ProbeID) {
		probes = append(probes, ids...)
		kinds = append(kinds, kind)
	}

	// "do I have X" / "is X installed"
	if name := installTarget(ticket, lower); name != "" {
		add("packages",
			models.ProbeID("pkg.query").WithParam(name),
			models.ProbeID("path.lookup").WithParam(name))
	}

	if strings.Contains(lower, "sound card") || strings.Contains(lower, "audio device") {
		add("audio", "hw.audio")
	}
	if strings.Contains(lower, "temperature") || strings.Contains(lower, "how hot") {
		add("thermal", "sensors")
	}
	if strings.Contains(lower, "how many cores") || strings.Contains(lower, "cpu info") {
		add("cpu", "cpu.info")
	}
	if strings.Contains(lower, "how is my computer") || strings.Contains(lower, "system health") ||
		strings.Contains(lower, "how is my system") {
		add("journal", "journal.errors")
		add("services", "units.failed")
		systemHealth = true
	}

	// Domain-specific minimums.
	switch ticket.Domain {
	case models.DomainStorage:
		add("disk", "disk.blocks")
	case models.DomainPerformance:
		if strings.Contains(lower, "memory") || strings.Contains(lower, "ram") {
			add("memory", "mem.info")
		}
	case models.DomainGraphics:
		add("graphics", "hw.gpu")
	}

	return probes, kinds, systemHealth
}

// dedupeJournalLevels never keeps both the errors and the warnings
// probe unless the query explicitly mentions both levels.
func dedupeJournalLevels(ids []models.ProbeID, lower string) []models.ProbeID {
	wantsBoth := strings.Contains(lower, "error") && strings.Contains(lower, "warning")
	if wantsBoth {
		return ids
	}
	hasErrors := false
	for _, id := range ids {
		if id == "journal.errors" {
			hasErrors = true
		}
	}
	if !hasErrors {
		return ids
	}
	out := ids[:0]
	for _, id := range ids {
		if id == "journal.warnings" {
			continue
		}
		out = append(out, id)
	}
	return out
}

// reduce enforces the cap by keeping the first limit probes. Merge
// order puts translator requests first, so when the cap bites, the
// required probes the spine appended at the tail are dropped first;
// cost classes are not consulted.
func reduce(ids []models.ProbeID, limit int) []models.ProbeID {
	if len(ids) <= limit {
		return ids
	}
	return ids[:limit]
}

func installTarget(ticket models.Ticket, lower string) string {
	if !strings.Contains(lower, "installed") &&
		!strings.Contains(lower, "do i have") {
		return ""
	}
	if len(ticket.Entities) > 0 {
		return ticket.Entities[0]
	}
	return ""
}
