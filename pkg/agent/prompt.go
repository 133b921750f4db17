// Package agent implements the two LLM staff roles of the pipeline:
// the drafter (Junior), a bounded loop that proposes an answer or asks
// for more probes, and the auditor (Senior), a single-shot reviewer
// that approves, fixes, rejects, or demands more probes. Both hold
// strict JSON output contracts with deterministic fallbacks, so the
// pipeline always terminates inside its deadline.
package agent

import (
	"fmt"
	"strings"

	"github.com/jjgarcianorway/anna/pkg/models"
	"github.com/jjgarcianorway/anna/pkg/probe"
)

// EvidenceSnippetCap bounds how much of each probe's stdout reaches a
// prompt.
const EvidenceSnippetCap = 500

// PromptCap bounds the total prompt size in characters. Overflow is
// dropped from the evidence tail and surfaced as a PromptChars
// diagnostic by the caller.
const PromptCap = 8000

// personaFor returns the team preamble for a domain. The original
// support-desk staffing: each domain reviewed in its own voice.
func personaFor(domain models.Domain) string {
	switch domain {
	case models.DomainStorage:
		return "You are a storage engineer. Disk percentages, mount points and filesystem types must match the evidence exactly."
	case models.DomainNetwork:
		return "You are a network engineer. IP addresses, interface names and link states must match the evidence exactly."
	case models.DomainPerformance:
		return "You are a performance analyst. Memory values and load figures must come from actual measurements in the evidence."
	case models.DomainServices:
		return "You are a services administrator. Unit names and states must match the evidence exactly."
	case models.DomainSecurity:
		return "You are a security analyst. Be conservative; never recommend disabling protections."
	case models.DomainHardware, models.DomainGraphics, models.DomainAudio:
		return "You are a hardware technician. Device models and counts must match the evidence exactly."
	case models.DomainLogs:
		return "You are a logs analyst. Error counts and unit names must come from the journal evidence."
	default:
		return "You are a support engineer for this Linux machine."
	}
}

// buildEvidenceBlock renders each probe result as "[id]\n<stdout>" with
// the per-probe snippet cap applied. droppedChars reports how many
// characters the prompt cap cut.
func buildEvidenceBlock(results []models.ProbeResult, budget int) (block string, droppedChars int) {
	var b strings.Builder
	for _, res := range results {
		out := res.Stdout
		if res.Status != models.ProbeStatusOK && out == "" {
			out = fmt.Sprintf("(%s) %s", res.Status, strings.TrimSpace(res.Stderr))
		}
		if len(out) > EvidenceSnippetCap {
			out = out[:EvidenceSnippetCap]
		}
		entry := fmt.Sprintf("[%s]\n%s\n", res.ProbeID, strings.TrimRight(out, "\n"))
		if b.Len()+len(entry) > budget {
			droppedChars += len(entry)
			continue
		}
		b.WriteString(entry)
	}
	return b.String(), droppedChars
}

// probeIDList renders the available probe names, names only, no
// descriptions — the drafter asks by id.
func probeIDList(registry *probe.Registry) string {
	ids := registry.IDs()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return strings.Join(names, ", ")
}
