// Package transcript provides the per-request append-only event log and
// its two renderings.
//
// Human mode is the "fly on the wall" IT-department conversation: no tool
// names, no evidence ids, no raw commands, no parse warnings, no internal
// actor tags. Debug mode is full fidelity and a strict superset of human
// mode. Events carry both payloads in parallel so rendering is a pure
// function of the event list plus the mode flag.
package transcript

import "github.com/jjgarcianorway/anna/pkg/models"

// Kind identifies the event variant.
type Kind string

const (
	KindUserMessage         Kind = "user_message"
	KindStateTransition     Kind = "state_transition"
	KindTranslatorCanonical Kind = "translator_canonical"
	KindParseWarning        Kind = "parse_warning"
	KindToolCall            Kind = "tool_call"
	KindEvidence            Kind = "evidence"
	KindStaffMessage        Kind = "staff_message"
	KindResourceCap         Kind = "resource_cap"
	KindReviewGate          Kind = "review_gate"
	KindReliability         Kind = "reliability"
	KindFinalAnswer         Kind = "final_answer"
	KindError               Kind = "error"
)

// Actor tags who produced an event. Internal actors (translator, junior,
// senior) are debug-only; the human renderer maps everything else to the
// department voice.
type Actor string

const (
	ActorUser        Actor = "user"
	ActorAnna        Actor = "anna"
	ActorServiceDesk Actor = "service_desk"
	ActorSpecialist  Actor = "specialist"
	ActorTranslator  Actor = "translator"
	ActorJunior      Actor = "junior"
	ActorSenior      Actor = "senior"
)

// internalActor reports whether a is hidden from human mode.
func internalActor(a Actor) bool {
	switch a {
	case ActorTranslator, ActorJunior, ActorSenior:
		return true
	}
	return false
}

// Event is one timestamped transcript entry. Variant-specific fields are
// optional; the flat shape keeps events free of pointers to each other.
type Event struct {
	ElapsedMS int64 `json:"t_ms"`
	Kind      Kind  `json:"kind"`

	Actor Actor `json:"actor,omitempty"`
	Tone  string `json:"tone,omitempty"`

	// Human is the redacted payload; Debug is full fidelity. An event
	// with an empty Human payload is omitted from human mode entirely.
	Human string `json:"human,omitempty"`
	Debug string `json:"debug,omitempty"`

	// Evidence / tool-call fields. ProbeID, EvidenceID and DurationMS
	// are debug only; Topic is the abstract label human mode shows.
	ProbeID    models.ProbeID `json:"probe_id,omitempty"`
	EvidenceID string         `json:"evidence_id,omitempty"`
	Topic      string         `json:"topic,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`

	// Review gate / reliability fields.
	Decision          string `json:"decision,omitempty"`
	Score             int    `json:"score,omitempty"`
	Band              string `json:"band,omitempty"`
	RequiresLLMReview bool   `json:"requires_llm_review,omitempty"`
}

// TopicFor maps a probe id to the abstract evidence label used in human
// mode. Human mode never shows the probe id itself.
func TopicFor(id models.ProbeID) string {
	switch id.Base() {
	case "cpu.info", "mem.info", "hw.gpu", "hw.audio", "hw.usb":
		return "hardware inventory"
	case "disk.blocks", "disk.usage":
		return "storage status"
	case "net.links", "net.routes":
		return "network link and routing signals"
	case "pkg.query", "pkg.updates", "path.lookup":
		return "software inventory"
	case "journal.errors", "journal.warnings":
		return "system error journal summary"
	case "units.failed", "svc.status":
		return "service status"
	case "sensors":
		return "thermal signals"
	case "kernel.info", "os.release", "sys.uptime":
		return "system status"
	default:
		return "system signals"
	}
}

// DepartmentFor maps a domain to the department voice used in human mode.
func DepartmentFor(d models.Domain) string {
	switch d {
	case models.DomainNetwork:
		return "network"
	case models.DomainStorage:
		return "storage"
	case models.DomainPerformance:
		return "performance"
	case models.DomainAudio:
		return "audio"
	case models.DomainGraphics:
		return "graphics"
	case models.DomainSecurity:
		return "security"
	case models.DomainServices, models.DomainLogs, models.DomainSystem:
		return "boot"
	default:
		return "info desk"
	}
}
