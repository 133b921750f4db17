package reliability

import "github.com/jjgarcianorway/anna/pkg/models"

// Gate is the deterministic review decision over the reliability
// packet. The source's "medium score needs LLM review" behavior is
// formalised here as a separate RequiresLLMReview flag: the decision
// itself is always deterministic.
func Gate(packet models.ReliabilityPacket, auditDecision models.AuditDecision, ambiguous bool) models.ReviewOutcome {
	in := packet.Inputs
	out := models.ReviewOutcome{}

	switch {
	case !in.NoInvention:
		out.Decision = models.ReviewEscalateSenior
		out.Issues = append(out.Issues, models.ReviewIssue{
			Severity: models.SeverityBlocker,
			Kind:     "invention",
			Message:  "answer contains values absent from the cited evidence",
		})

	case in.EvidenceRequired && in.GroundingRatio < 0.4:
		out.Decision = models.ReviewRevise
		out.Issues = append(out.Issues, models.ReviewIssue{
			Severity: models.SeverityBlocker,
			Kind:     "grounding",
			Message:  "too few claims are traceable to evidence",
		})

	case packet.Score >= 80 && in.NoInvention &&
		(!in.EvidenceRequired || in.GroundingRatio >= 0.6):
		out.Decision = models.ReviewAccept

	case packet.Score >= 50 && packet.Score < 80:
		// Mixed signals: deterministic decision stands, but an LLM
		// review pass is flagged for callers that run one.
		out.Decision = models.ReviewAccept
		if in.ProbesFailed+in.ProbesTimedOut > 0 ||
			(in.TranslatorUsed && in.TranslatorConfidence < 0.6) {
			out.RequiresLLMReview = true
			out.Issues = append(out.Issues, models.ReviewIssue{
				Severity: models.SeverityWarning,
				Kind:     "mixed_signals",
				Message:  "medium score with probe failures or low classification confidence",
			})
		}

	case ambiguous:
		out.Decision = models.ReviewClarifyUser
		out.Issues = append(out.Issues, models.ReviewIssue{
			Severity: models.SeverityWarning,
			Kind:     "ambiguity",
			Message:  "the question admitted more than one reading",
		})

	default:
		out.Decision = models.ReviewRevise
		out.Issues = append(out.Issues, models.ReviewIssue{
			Severity: models.SeverityWarning,
			Kind:     "low_score",
			Message:  "reliability too low to publish without revision",
		})
	}

	// Publication is allowed only for accepted outcomes backed by an
	// approving (or fixing) audit verdict.
	out.AllowPublish = out.Decision == models.ReviewAccept &&
		(auditDecision == models.AuditApprove || auditDecision == models.AuditFixAndAccept)
	return out
}
