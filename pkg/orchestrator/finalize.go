package orchestrator

import (
	"fmt"

	"github.com/jjgarcianorway/anna/pkg/agent"
	"github.com/jjgarcianorway/anna/pkg/models"
	"github.com/jjgarcianorway/anna/pkg/reliability"
	"github.com/jjgarcianorway/anna/pkg/transcript"
)

// finalize assembles the answer packet from whatever the pipeline
// produced: the audited draft on the happy path, the deterministic
// fallback on the deadline path, a canonical refusal otherwise.
func (r *run) finalize() *Answer {

	// Deadline path: preserve collected evidence via the fallback
	// draft. The auditor is not consulted; an approve verdict marked
	// FromFallback stands in for it and costs the auditor-fallback
	// penalty.
	if r.deadlineHit && !r.draft.Refused && r.draft.Text == "" {
		r.draft = agent.FallbackDraft(r.store)
		r.verdict = models.AuditVerdict{Decision: models.AuditApprove, FromFallback: true}
	}
	if r.deadlineHit && r.verdict.Decision == "" {
		r.verdict = models.AuditVerdict{Decision: models.AuditApprove, FromFallback: true}
	}

	// An auditor still demanding probes after its one extra round has
	// no way to get them; the draft stays uncertified.
	if r.verdict.Decision == models.AuditNeedsMoreProbe {
		r.verdict.Decision = models.AuditRefuse
		r.verdict.Problems = append(r.verdict.Problems, "requested evidence could not be gathered")
	}

	text, refused := r.answerText()
	citations := r.draft.Citations
	if refused {
		citations = nil
	}

	// SCORING
	r.transition(StateScoring, "")
	grounding := agent.AnalyzeGrounding(text, citations, r.store)
	input := r.buildReliabilityInput(grounding, refused)
	packet := reliability.Score(input)

	// REVIEWING
	r.transition(StateReviewing, "")
	review := reliability.Gate(packet, r.verdict.Decision, r.ticket.Ambiguous)
	r.stream.Append(transcript.Event{
		Kind:              transcript.KindReviewGate,
		Actor:             transcript.ActorServiceDesk,
		Decision:          string(review.Decision),
		Score:             packet.Score,
		RequiresLLMReview: review.RequiresLLMReview,
		Debug:             fmt.Sprintf("allow_publish=%t", review.AllowPublish),
	})

	// A gate that blocks publication downgrades the text to the
	// canonical outcome; the score and transcript still tell the truth.
	if !review.AllowPublish && !refused {
		switch review.Decision {
		case models.ReviewClarifyUser:
			text = ClarifyText
		case models.ReviewRevise, models.ReviewEscalateSenior:
			text = InsufficientEvidenceText
			citations = nil
		}
	}

	// RENDERING -> EMITTED
	r.transition(StateRendering, "")
	r.stream.Append(transcript.Event{
		Kind:  transcript.KindReliability,
		Score: packet.Score,
		Band:  string(packet.Band),
		Debug: fmt.Sprintf("penalties=%d grounding_ratio=%.2f", len(packet.Penalties), grounding.Ratio),
	})
	r.stream.Append(transcript.Event{
		Kind:  transcript.KindFinalAnswer,
		Actor: transcript.ActorAnna,
		Human: text,
	})
	r.transition(StateEmitted, "")
	events := r.stream.Events()
	return &Answer{
		Answer:      text,
		Reliability: packet,
		Review:      review,
		Citations:   citations,
		Events:      events,
		Rendered:    transcript.Render(events, r.req.Mode),
		FinalState:  r.state,
	}
}

// answerText picks the published text from the verdict.
func (r *run) answerText() (string, bool) {
	switch r.verdict.Decision {
	case models.AuditFixAndAccept:
		if r.verdict.FixedAnswer != r.draft.Text {
			r.stream.Append(transcript.Event{
				Kind:  transcript.KindStaffMessage,
				Actor: transcript.ActorSenior,
				Tone:  "revision",
				Debug: "published answer differs from draft (fix_and_accept)",
			})
		}
		return r.verdict.FixedAnswer, false
	case models.AuditApprove:
		if r.draft.Refused || r.draft.Text == "" {
			return r.refusalText(), true
		}
		return r.draft.Text, false
	default: // refuse
		return r.refusalText(), true
	}
}

func (r *run) refusalText() string {
	if r.draft.Refused && r.draft.RefusalReason == "off topic" {
		return OffTopicText
	}
	if r.ticket.Intent == models.IntentUnsupported {
		return OffTopicText
	}
	if r.draft.Refused && r.draft.RefusalReason != "" && r.draft.RefusalReason != "no evidence" {
		return OffTopicText
	}
	return InsufficientEvidenceText
}

func (r *run) buildReliabilityInput(grounding agent.GroundingReport, refused bool) models.ReliabilityInput {
	succeeded, failed, timedOut := 0, 0, 0
	for _, res := range r.store.All() {
		switch res.Status {
		case models.ProbeStatusOK:
			succeeded++
		case models.ProbeStatusTimeout:
			timedOut++
		case models.ProbeStatusError:
			failed++
		}
	}

	diags := append([]models.ResourceDiagnostic{}, r.store.Diagnostics()...)
	diags = append(diags, r.extraDiagnostics...)
	// Events dropped at the transcript cap cannot land in the stream
	// itself; they still count against the score.
	if d := r.stream.CapDiagnostic(); d != nil {
		diags = append(diags, *d)
	}

	return models.ReliabilityInput{
		ProbesPlanned:  r.probesPlanned,
		ProbesSucceed:  succeeded,
		ProbesFailed:   failed,
		ProbesTimedOut: timedOut,

		TranslatorUsed:       r.trUsed,
		TranslatorConfidence: r.ticket.Confidence,

		AnswerGrounded: grounding.AnswerGrounded,
		NoInvention:    grounding.NoInvention,
		GroundingRatio: grounding.Ratio,
		TotalClaims:    grounding.TotalClaims,

		EvidenceRequired: r.ticket.EvidenceRequired,
		SpineEnforced:    r.spinePlan.Enforced,

		Diagnostics: diags,

		UsedDeterministicFallback: r.draft.FromFallback || r.trOutcome.UsedFallback,
		AuditorFallback:           r.verdict.FromFallback,

		DeadlineExceeded: r.deadlineHit,
		AnswerRefused:    refused,
	}
}

// finalizeMeta answers meta-intent questions (capabilities, stats,
// debug toggle) deterministically: no probes, no LLM, full transcript
// and score all the same.
func (r *run) finalizeMeta(debugToggle bool) *Answer {
	text := r.metaText(debugToggle)
	r.draft = models.Draft{Text: text}
	r.verdict = models.AuditVerdict{
		Decision: models.AuditApprove,
		Scores:   models.AuditScores{Evidence: 1, Reasoning: 1, Coverage: 1, Overall: 1},
	}
	return r.finalize()
}

func (r *run) metaText(debugToggle bool) string {
	if debugToggle {
		return "Debug transcripts are selected per request; ask with mode set to debug to see the full trail."
	}
	return "I answer questions about this machine: hardware, storage, network, packages, services, performance and recent errors. Every answer is grounded in live system evidence and carries a reliability score."
}
