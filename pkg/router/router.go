// Package router is the cheap deterministic classifier that runs before
// the translator. When it matches, the translator is skipped entirely
// and the ticket carries confidence 1.0. Routing is read-only: the
// orchestrator answers a debug-toggle match with an explanation and
// changes no setting.
package router

import (
	"strings"

	"github.com/jjgarcianorway/anna/pkg/models"
)

// Result is the router's verdict on a raw question.
type Result struct {
	Matched     bool
	Reason      string
	Ticket      models.Ticket
	DebugToggle bool
}

// Route classifies the raw question. The input is lowercased and
// whitespace-normalised before matching; first match wins.
func Route(question string) Result {
	lower := strings.ToLower(strings.Join(strings.Fields(question), " "))
	words := strings.Fields(lower)

	switch {
	case isStatsQuery(lower):
		return matched("matched stats keywords", models.Ticket{
			Intent: models.IntentMeta, Domain: models.DomainGeneral, Confidence: 1.0,
		})

	case isDebugToggle(lower):
		r := matched("matched debug toggle pattern", models.Ticket{
			Intent: models.IntentMeta, Domain: models.DomainGeneral, Confidence: 1.0,
		})
		r.DebugToggle = true
		return r

	case isCapabilitiesQuery(lower):
		return matched("matched capabilities pattern", models.Ticket{
			Intent: models.IntentMeta, Domain: models.DomainGeneral, Confidence: 1.0,
		})

	case isUpdatesQuery(lower, words):
		return matched("matched updates keywords", models.Ticket{
			Intent: models.IntentQuestion, Domain: models.DomainPackages,
			RequestedProbes:  []models.ProbeID{"pkg.updates"},
			EvidenceRequired: true, Confidence: 1.0, Team: "software",
		})

	case isInstalledQuery(lower):
		name := extractInstallTarget(lower)
		t := models.Ticket{
			Intent: models.IntentQuestion, Domain: models.DomainPackages,
			EvidenceRequired: true, Confidence: 1.0, Team: "software",
		}
		if name != "" {
			t.Entities = []string{name}
			t.RequestedProbes = []models.ProbeID{
				models.ProbeID("pkg.query").WithParam(name),
				models.ProbeID("path.lookup").WithParam(name),
			}
		}
		return matched("matched installed-package pattern", t)

	case isMemoryQuery(lower, words):
		return matched("matched memory keywords", models.Ticket{
			Intent: models.IntentQuestion, Domain: models.DomainPerformance,
			RequestedProbes:  []models.ProbeID{"mem.info"},
			EvidenceRequired: true, Confidence: 1.0, Team: "performance",
		})

	case isDiskQuery(lower, words):
		return matched("matched disk keywords", models.Ticket{
			Intent: models.IntentQuestion, Domain: models.DomainStorage,
			RequestedProbes:  []models.ProbeID{"disk.usage", "disk.blocks"},
			EvidenceRequired: true, Confidence: 1.0, Team: "storage",
		})

	case isCPUQuery(lower, words):
		return matched("matched cpu keywords", models.Ticket{
			Intent: models.IntentQuestion, Domain: models.DomainHardware,
			RequestedProbes:  []models.ProbeID{"cpu.info"},
			EvidenceRequired: true, Confidence: 1.0, Team: "hardware",
		})

	case isKernelQuery(lower, words):
		return matched("matched kernel keywords", models.Ticket{
			Intent: models.IntentQuestion, Domain: models.DomainSystem,
			RequestedProbes:  []models.ProbeID{"kernel.info", "os.release"},
			EvidenceRequired: true, Confidence: 1.0, Team: "system",
		})

	case isNetworkQuery(lower, words):
		return matched("matched network keywords", models.Ticket{
			Intent: models.IntentQuestion, Domain: models.DomainNetwork,
			RequestedProbes:  []models.ProbeID{"net.links", "net.routes"},
			EvidenceRequired: true, Confidence: 1.0, Team: "network",
		})

	case isServiceQuery(lower, words):
		return matched("matched service keywords", models.Ticket{
			Intent: models.IntentQuestion, Domain: models.DomainServices,
			RequestedProbes:  []models.ProbeID{"units.failed"},
			EvidenceRequired: true, Confidence: 1.0, Team: "services",
		})
	}

	return Result{Reason: "no deterministic match"}
}

func matched(reason string, t models.Ticket) Result {
	return Result{Matched: true, Reason: reason, Ticket: t}
}

func isStatsQuery(lower string) bool {
	for _, kw := range []string{"your stats", "my stats", "experience points", "what level are you"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return containsAny(strings.Fields(strings.Map(stripPunct, lower)), "xp")
}

func isDebugToggle(lower string) bool {
	if !strings.Contains(lower, "debug") {
		return false
	}
	return strings.Contains(lower, "enable") || strings.Contains(lower, "disable") ||
		strings.Contains(lower, "toggle") || strings.Contains(lower, "turn on") ||
		strings.Contains(lower, "turn off")
}

func isCapabilitiesQuery(lower string) bool {
	return strings.Contains(lower, "what can you do") ||
		strings.Contains(lower, "what do you do") ||
		lower == "help" || strings.HasPrefix(lower, "help ")
}

func isUpdatesQuery(lower string, words []string) bool {
	if strings.Contains(lower, "update") || strings.Contains(lower, "upgrade") {
		return containsAny(words, "any", "pending", "check", "available", "updates", "upgrades")
	}
	return false
}

func isInstalledQuery(lower string) bool {
	return strings.Contains(lower, "installed") &&
		(strings.Contains(lower, "do i have") || strings.Contains(lower, "is ") ||
			strings.Contains(lower, "have i got"))
}

// extractInstallTarget pulls the package name out of "do I have X
// installed" / "is X installed" phrasings.
func extractInstallTarget(lower string) string {
	words := strings.Fields(strings.Map(stripPunct, lower))
	for i, w := range words {
		if w == "installed" && i > 0 {
			prev := words[i-1]
			if !isStopWord(prev) {
				return prev
			}
		}
		if (w == "have" || w == "is") && i+1 < len(words) {
			cand := words[i+1]
			if !isStopWord(cand) && cand != "installed" {
				return cand
			}
		}
	}
	return ""
}

func stripPunct(r rune) rune {
	switch r {
	case '?', '!', '.', ',', '"', '\'':
		return -1
	}
	return r
}

func isStopWord(w string) bool {
	switch w {
	case "i", "it", "a", "an", "the", "do", "does", "have", "got", "is", "package", "program":
		return true
	}
	return false
}

func isMemoryQuery(lower string, words []string) bool {
	return containsAny(words, "ram", "memory") && !strings.Contains(lower, "video memory")
}

func isDiskQuery(lower string, words []string) bool {
	return containsAny(words, "disk", "storage", "filesystem") ||
		strings.Contains(lower, "disk space") || strings.Contains(lower, "free space")
}

func isCPUQuery(lower string, words []string) bool {
	return containsAny(words, "cpu", "processor", "cores", "core", "threads") &&
		!strings.Contains(lower, "temperature") && !strings.Contains(lower, "hot")
}

func isKernelQuery(lower string, words []string) bool {
	return containsAny(words, "kernel") ||
		strings.Contains(lower, "what distro") || strings.Contains(lower, "which distro") ||
		strings.Contains(lower, "operating system")
}

func isNetworkQuery(lower string, words []string) bool {
	return containsAny(words, "network", "wifi", "ethernet", "internet") ||
		strings.Contains(lower, "ip address")
}

func isServiceQuery(lower string, words []string) bool {
	return containsAny(words, "service", "services", "daemon", "unit", "units") &&
		(strings.Contains(lower, "failed") || strings.Contains(lower, "running") ||
			strings.Contains(lower, "status"))
}

func containsAny(words []string, targets ...string) bool {
	for _, w := range words {
		for _, t := range targets {
			if w == t {
				return true
			}
		}
	}
	return false
}
