package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jjgarcianorway/anna/pkg/agent"
	"github.com/jjgarcianorway/anna/pkg/models"
	"github.com/jjgarcianorway/anna/pkg/probe"
	"github.com/jjgarcianorway/anna/pkg/spine"
	"github.com/jjgarcianorway/anna/pkg/transcript"
	"github.com/jjgarcianorway/anna/pkg/translator"
)

// run is the per-request working state. Single-owned by the handling
// goroutine; nothing here outlives the request.
type run struct {
	o     *Orchestrator
	req   Request
	state State
	start time.Time

	stream *transcript.Stream
	store  *probe.Store

	ticket    models.Ticket
	trOutcome translator.Outcome
	trUsed    bool

	spinePlan spine.Result

	draft   models.Draft
	verdict models.AuditVerdict

	drafterReprobed bool
	auditorReprobed bool
	deadlineHit     bool
	probesPlanned   int

	extraDiagnostics []models.ResourceDiagnostic
}

// Handle runs one request through the pipeline. The returned error is
// non-nil only for input validation failures and internal invariant
// violations; everything else is encoded in the Answer.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Answer, error) {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, ErrEmptyQuestion
	}
	if len(req.Question) > QuestionHardMax {
		return nil, ErrQuestionTooLarge
	}
	if !transcript.KnownMode(req.Mode) {
		req.Mode = transcript.ModeHuman
	}
	if req.Deadline <= 0 {
		req.Deadline = DefaultDeadline
	}
	if req.Deadline > MaxDeadline {
		req.Deadline = MaxDeadline
	}

	start := o.now()
	ctx, cancel := context.WithDeadline(ctx, start.Add(req.Deadline))
	defer cancel()

	r := &run{
		o:      o,
		req:    req,
		state:  StateReceived,
		start:  start,
		stream: transcript.NewStreamWithClock(start, o.now),
		store:  probe.NewStore(),
	}

	if len(req.Question) > QuestionCap {
		r.addDiagnostic(models.ResourceDiagnostic{
			Kind:        models.ResourcePromptChars,
			Limit:       QuestionCap,
			Dropped:     len(req.Question) - QuestionCap,
			Consequence: "question truncated before classification, reliability penalty applies",
		})
		r.req.Question = req.Question[:QuestionCap]
	}

	r.stream.Append(transcript.Event{
		Kind:  transcript.KindUserMessage,
		Actor: transcript.ActorUser,
		Human: r.req.Question,
	})
	r.stream.Append(transcript.Event{
		Kind:  transcript.KindStaffMessage,
		Actor: transcript.ActorServiceDesk,
		Human: "Opening a case and reviewing the request.",
	})

	answer := r.execute(ctx)
	slog.Info("Request handled",
		"request_id", req.ID,
		"state", answer.FinalState,
		"score", answer.Reliability.Score,
		"band", answer.Reliability.Band)
	return answer, nil
}

// execute drives the state machine to EMITTED.
func (r *run) execute(ctx context.Context) *Answer {
	// RECEIVED -> ROUTED
	routed := r.o.route(r.req.Question)
	r.transition(StateRouted, routed.Reason)

	if routed.Matched {
		r.ticket = routed.Ticket
		if r.ticket.Intent == models.IntentMeta {
			return r.finalizeMeta(routed.DebugToggle)
		}
	} else {
		// ROUTED -> TRANSLATED
		if r.checkDeadline() {
			return r.finalize()
		}
		r.trOutcome = r.o.translator.Translate(ctx, r.req.Question)
		r.trUsed = true
		r.ticket = r.trOutcome.Ticket
		r.transition(StateTranslated, fmt.Sprintf("intent=%s domain=%s confidence=%.2f",
			r.ticket.Intent, r.ticket.Domain, r.ticket.Confidence))
		if r.trOutcome.Canonical != "" {
			r.stream.Append(transcript.Event{
				Kind:  transcript.KindTranslatorCanonical,
				Actor: transcript.ActorTranslator,
				Debug: r.trOutcome.Canonical,
			})
		}
		if r.trOutcome.ParseWarning != "" {
			r.stream.Append(transcript.Event{
				Kind:  transcript.KindParseWarning,
				Actor: transcript.ActorTranslator,
				Debug: r.trOutcome.ParseWarning,
			})
		}
	}

	if r.ticket.Intent == models.IntentUnsupported {
		r.draft = models.Draft{Refused: true, RefusalReason: "off topic"}
		r.verdict = models.AuditVerdict{Decision: models.AuditRefuse}
		return r.finalize()
	}

	// TRANSLATED/ROUTED -> PROBES_PLANNED -> PROBES_RUNNING
	r.planProbes()
	if r.checkDeadline() {
		return r.finalize()
	}
	r.runProbeRound(ctx, r.ticket.RequestedProbes)

	// DRAFTING (may loop into PROBES_PLANNED once)
	r.transition(StateDrafting, "")
	for iteration := 1; iteration <= agent.MaxDraftIterations; iteration++ {
		if r.checkDeadline() {
			return r.finalize()
		}
		out := r.o.drafter.Draft(ctx, agent.DraftInput{
			Question:  r.req.Question,
			Ticket:    r.ticket,
			Store:     r.store,
			Iteration: iteration,
		})
		r.recordDraftOutcome(out, iteration)
		r.draft = out.Draft

		if r.draft.NeedsMoreProbes && !r.drafterReprobed && len(r.draft.RequestedProbes) > 0 {
			r.drafterReprobed = true
			r.transition(StateProbesPlanned, "drafter requested more probes")
			r.runProbeRound(ctx, r.draft.RequestedProbes)
			r.transition(StateDrafting, "")
			continue
		}
		break
	}

	if r.draft.Refused {
		r.verdict = models.AuditVerdict{Decision: models.AuditRefuse}
		return r.finalize()
	}

	// DRAFTING -> AUDITING
	r.runAudit(ctx)

	// AUDITING -> PROBES_PLANNED once more, only if the drafter did not
	// already re-probe.
	if r.verdict.Decision == models.AuditNeedsMoreProbe &&
		!r.drafterReprobed && !r.auditorReprobed && len(r.verdict.RequestedProbes) > 0 {
		r.auditorReprobed = true
		if pending := r.pendingProbes(r.verdict.RequestedProbes); len(pending) > 0 {
			r.transition(StateProbesPlanned, "auditor requested more probes")
			r.runProbeRound(ctx, pending)

			r.transition(StateDrafting, "re-draft after auditor probes")
			if !r.checkDeadline() {
				out := r.o.drafter.Draft(ctx, agent.DraftInput{
					Question:  r.req.Question,
					Ticket:    r.ticket,
					Store:     r.store,
					Iteration: agent.MaxDraftIterations,
				})
				r.recordDraftOutcome(out, agent.MaxDraftIterations)
				r.draft = out.Draft
			}
			if !r.draft.Refused && !r.checkDeadline() {
				r.runAudit(ctx)
			}
		}
	}

	return r.finalize()
}

// planProbes merges the spine's required probes into the ticket.
func (r *run) planProbes() {
	r.spinePlan = spine.Plan(r.ticket, r.req.Question)
	r.ticket.RequestedProbes = r.spinePlan.Probes
	r.transition(StateProbesPlanned, r.spinePlan.Reason)
}

// runProbeRound executes the ids that are not yet in the store: at
// most one spawn per probe id per request. Cacheable probes may be
// served by the fact store instead of spawning.
func (r *run) runProbeRound(ctx context.Context, ids []models.ProbeID) {
	pending := r.pendingProbes(ids)
	if len(pending) == 0 {
		return
	}
	r.transition(StateProbesRunning, "")

	descs := make([]probe.Descriptor, 0, len(pending))
	for _, id := range pending {
		desc, err := r.o.registry.Get(id)
		if err != nil {
			slog.Debug("Skipping unknown probe", "probe_id", id)
			continue
		}
		if r.o.facts != nil && desc.Cacheable {
			if cached, ok := r.o.facts.Lookup(id); ok {
				r.store.Put(cached)
				r.appendEvidenceEvent(cached, true)
				continue
			}
		}
		descs = append(descs, desc)
		r.stream.Append(transcript.Event{
			Kind:    transcript.KindToolCall,
			ProbeID: id,
			Debug:   desc.CommandString(),
		})
	}
	r.probesPlanned += len(descs)

	deadline := r.deadlineTime(ctx)
	for _, res := range r.o.runner.RunMany(ctx, descs, deadline) {
		r.store.Put(res)
		r.appendEvidenceEvent(res, false)
		if r.o.facts != nil && res.Status == models.ProbeStatusOK {
			if desc, err := r.o.registry.Get(res.ProbeID); err == nil && desc.Cacheable {
				r.o.facts.Record(res)
			}
		}
	}
}

func (r *run) pendingProbes(ids []models.ProbeID) []models.ProbeID {
	var pending []models.ProbeID
	seen := make(map[models.ProbeID]bool)
	for _, id := range ids {
		if !seen[id] && !r.store.Has(id) {
			pending = append(pending, id)
			seen[id] = true
		}
	}
	return pending
}

func (r *run) appendEvidenceEvent(res models.ProbeResult, cached bool) {
	evidenceID := fmt.Sprintf("E%d", r.store.Len())
	human := "collected " + transcript.TopicFor(res.ProbeID)
	if res.Status != models.ProbeStatusOK {
		human = "could not collect " + transcript.TopicFor(res.ProbeID)
	}
	debug := fmt.Sprintf("status=%s exit=%d", res.Status, res.ExitCode)
	if cached {
		debug += " source=fact-store"
	}
	if res.TruncatedBytes > 0 {
		debug += fmt.Sprintf(" truncated_bytes=%d", res.TruncatedBytes)
	}
	r.stream.Append(transcript.Event{
		Kind:       transcript.KindEvidence,
		Actor:      transcript.Actor(transcript.DepartmentFor(r.ticket.Domain)),
		Topic:      transcript.TopicFor(res.ProbeID),
		Human:      human,
		Debug:      debug,
		ProbeID:    res.ProbeID,
		EvidenceID: evidenceID,
		DurationMS: res.DurationMS,
	})
}

func (r *run) recordDraftOutcome(out agent.DraftOutcome, iteration int) {
	if out.PromptDropped > 0 {
		r.addDiagnostic(models.ResourceDiagnostic{
			Kind:        models.ResourcePromptChars,
			Limit:       agent.PromptCap,
			Dropped:     out.PromptDropped,
			Consequence: "evidence tail dropped from drafter prompt, reliability penalty applies",
		})
	}
	if out.ParseWarning != "" {
		r.stream.Append(transcript.Event{
			Kind:  transcript.KindParseWarning,
			Actor: transcript.ActorJunior,
			Debug: out.ParseWarning,
		})
	}
	debug := fmt.Sprintf("iteration=%d needs_more_probes=%t refused=%t citations=%d",
		iteration, out.Draft.NeedsMoreProbes, out.Draft.Refused, len(out.Draft.Citations))
	r.stream.Append(transcript.Event{
		Kind:  transcript.KindStaffMessage,
		Actor: transcript.ActorJunior,
		Tone:  "working",
		Debug: debug,
	})
}

func (r *run) runAudit(ctx context.Context) {
	r.transition(StateAuditing, "")
	if r.checkDeadline() {
		return
	}
	out := r.o.auditor.Audit(ctx, agent.AuditInput{
		Question: r.req.Question,
		Ticket:   r.ticket,
		Draft:    r.draft,
		Store:    r.store,
	})
	if out.ParseWarning != "" {
		r.stream.Append(transcript.Event{
			Kind:  transcript.KindParseWarning,
			Actor: transcript.ActorSenior,
			Debug: out.ParseWarning,
		})
	}
	r.verdict = out.Verdict
	r.stream.Append(transcript.Event{
		Kind:     transcript.KindStaffMessage,
		Actor:    transcript.ActorSenior,
		Tone:     "ruling",
		Debug:    fmt.Sprintf("verdict=%s evidence=%.2f overall=%.2f", out.Verdict.Decision, out.Verdict.Scores.Evidence, out.Verdict.Scores.Overall),
	})
}

// transition moves the state machine and logs the move to the debug
// transcript.
func (r *run) transition(next State, detail string) {
	r.state = next
	r.stream.Append(transcript.Event{
		Kind:  transcript.KindStateTransition,
		Debug: strings.TrimSpace(string(next) + " " + detail),
	})
}

// checkDeadline is called at every suspension point. Once the deadline
// passes, the pipeline short-circuits to finalize, which preserves all
// collected evidence.
func (r *run) checkDeadline() bool {
	if r.deadlineHit {
		return true
	}
	if r.o.now().Sub(r.start) >= r.req.Deadline {
		r.deadlineHit = true
		r.stream.Append(transcript.Event{
			Kind:  transcript.KindError,
			Debug: "deadline exceeded",
		})
	}
	return r.deadlineHit
}

func (r *run) addDiagnostic(d models.ResourceDiagnostic) {
	r.extraDiagnostics = append(r.extraDiagnostics, d)
	r.stream.Append(transcript.Event{
		Kind:  transcript.KindResourceCap,
		Debug: fmt.Sprintf("%s limit=%d dropped=%d: %s", d.Kind, d.Limit, d.Dropped, d.Consequence),
	})
}

func (r *run) deadlineTime(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return r.o.now().Add(r.req.Deadline)
}
