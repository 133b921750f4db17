// Package orchestrator composes the question pipeline under a single
// per-request deadline: route, translate, plan probes, execute, draft,
// audit, score, review, render. Every state transition lands in the
// transcript; every suspension point checks the deadline; the caller
// always gets an answer with a score, an "insufficient evidence"
// verdict with a low score, or an error — never a partial.
package orchestrator

import (
	"errors"
	"time"

	"github.com/jjgarcianorway/anna/pkg/agent"
	"github.com/jjgarcianorway/anna/pkg/models"
	"github.com/jjgarcianorway/anna/pkg/probe"
	"github.com/jjgarcianorway/anna/pkg/router"
	"github.com/jjgarcianorway/anna/pkg/transcript"
	"github.com/jjgarcianorway/anna/pkg/translator"
)

// State is the orchestrator's explicit state machine position.
type State string

const (
	StateReceived      State = "received"
	StateRouted        State = "routed"
	StateTranslated    State = "translated"
	StateProbesPlanned State = "probes_planned"
	StateProbesRunning State = "probes_running"
	StateDrafting      State = "drafting"
	StateAuditing      State = "auditing"
	StateScoring       State = "scoring"
	StateReviewing     State = "reviewing"
	StateRendering     State = "rendering"
	StateEmitted       State = "emitted"
	StateFailed        State = "failed"
)

// Deadlines and input bounds.
const (
	DefaultDeadline = 30 * time.Second
	MaxDeadline     = 60 * time.Second

	// QuestionCap is the prompt budget for the question itself; longer
	// questions are truncated with a PromptChars diagnostic.
	QuestionCap = 8000

	// QuestionHardMax rejects pathological inputs outright (-32602).
	QuestionHardMax = 32000
)

// Input validation errors, mapped to RPC codes at the boundary.
var (
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrQuestionTooLarge = errors.New("question exceeds maximum size")
)

// Canonical user-visible texts.
const (
	InsufficientEvidenceText = "I have insufficient evidence to answer that reliably."
	OffTopicText             = "I can only answer about this system."
	ClarifyText              = "Could you rephrase that? The question admits more than one reading."
)

// FactSource is the optional read-mostly cache of stable probe output.
// A fresh entry seeds the evidence store without spawning the probe.
type FactSource interface {
	Lookup(id models.ProbeID) (models.ProbeResult, bool)
	Record(res models.ProbeResult)
}

// Request is one question entering the pipeline.
type Request struct {
	ID       string
	Question string
	Mode     transcript.Mode
	Deadline time.Duration // 0 means DefaultDeadline
}

// Answer is the final packet returned to the RPC layer.
type Answer struct {
	Answer      string
	Reliability models.ReliabilityPacket
	Review      models.ReviewOutcome
	Citations   []models.Citation
	Events      []transcript.Event
	Rendered    []string
	FinalState  State
}

// Orchestrator wires the pipeline components. All dependencies are
// injected so tests supply fakes; process-wide capabilities (registry,
// fact store, LLM pool) are created at startup and passed in.
type Orchestrator struct {
	registry   *probe.Registry
	runner     probe.Runner
	translator *translator.Translator
	drafter    *agent.Drafter
	auditor    *agent.Auditor
	facts      FactSource // may be nil
	now        func() time.Time
}

// New creates an orchestrator.
func New(registry *probe.Registry, runner probe.Runner, tr *translator.Translator,
	dr *agent.Drafter, au *agent.Auditor, facts FactSource) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		runner:     runner,
		translator: tr,
		drafter:    dr,
		auditor:    au,
		facts:      facts,
		now:        time.Now,
	}
}

// WithClock injects a clock for tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// route is split out so tests can cover the routed/translated branch
// boundary without running the full pipeline.
func (o *Orchestrator) route(question string) router.Result {
	return router.Route(question)
}
