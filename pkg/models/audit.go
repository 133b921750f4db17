package models

// AuditDecision is the auditor (Senior) verdict on a draft.
type AuditDecision string

const (
	AuditApprove        AuditDecision = "approve"
	AuditFixAndAccept   AuditDecision = "fix_and_accept"
	AuditNeedsMoreProbe AuditDecision = "needs_more_probes"
	AuditRefuse         AuditDecision = "refuse"
)

// KnownAuditDecision reports whether d is one of the closed verdict set.
func KnownAuditDecision(d AuditDecision) bool {
	switch d {
	case AuditApprove, AuditFixAndAccept, AuditNeedsMoreProbe, AuditRefuse:
		return true
	}
	return false
}

// AuditScores are the auditor's structured scores, each in [0,1].
type AuditScores struct {
	Evidence  float64 `json:"evidence"`
	Reasoning float64 `json:"reasoning"`
	Coverage  float64 `json:"coverage"`
	Overall   float64 `json:"overall"`
}

// Clamp forces every score into [0,1]. Missing fields decode as 0 and
// stay 0.
func (s *AuditScores) Clamp() {
	clamp := func(v *float64) {
		if *v < 0 {
			*v = 0
		}
		if *v > 1 {
			*v = 1
		}
	}
	clamp(&s.Evidence)
	clamp(&s.Reasoning)
	clamp(&s.Coverage)
	clamp(&s.Overall)
}

// AuditVerdict is the auditor's single-shot ruling on one draft.
type AuditVerdict struct {
	Decision        AuditDecision `json:"decision"`
	Scores          AuditScores   `json:"scores"`
	FixedAnswer     string        `json:"fixed_answer,omitempty"`
	Problems        []string      `json:"problems,omitempty"`
	RequestedProbes []ProbeID     `json:"requested_probes,omitempty"`

	// FromFallback marks a verdict produced by the deterministic fallback
	// rather than the LLM. Costs 5 reliability points.
	FromFallback bool `json:"-"`
}
