// Package reliability computes the deterministic 0-100 score, its
// band, and the review-gate decision. The scorer is the sole authority
// on the numeric score; neither drafter nor auditor may override it.
package reliability

import (
	"math"

	"github.com/jjgarcianorway/anna/pkg/models"
)

// Band thresholds.
const (
	GreenFloor  = 90
	YellowFloor = 70
)

// Penalty caps.
const (
	probeFailurePenaltyCap = 40
	budgetPenaltyCap       = 15
)

// Score is a pure function over the reliability input: same input,
// same packet. Composition order: probe outcomes, invention, grounding,
// budget breaches, auditor fallback, the spine-enforcement bonus, the
// translator-confidence multiplier, the red-band ceilings for deadline
// breaches and refusals, then clamp and round.
func Score(in models.ReliabilityInput) models.ReliabilityPacket {
	score := 100.0
	var penalties []models.Penalty

	apply := func(kind string, points float64) {
		if points <= 0 {
			return
		}
		score -= points
		penalties = append(penalties, models.Penalty{Kind: kind, Points: int(math.Round(points))})
	}

	// 1. Probe failures and timeouts, capped together.
	probePenalty := float64(in.ProbesFailed*10 + in.ProbesTimedOut*8)
	if probePenalty > probeFailurePenaltyCap {
		probePenalty = probeFailurePenaltyCap
	}
	apply("probe_outcomes", probePenalty)

	// 2. Invention detected.
	if !in.NoInvention {
		apply("invention", 40)
	}

	// 3. Low grounding ratio when evidence is required.
	if in.EvidenceRequired && in.GroundingRatio < 0.6 {
		apply("grounding", (0.6-in.GroundingRatio)*60)
	}

	// 4. Resource budget breaches, capped together.
	budgetPenalty := 0.0
	for _, d := range in.Diagnostics {
		switch d.Kind {
		case models.ResourcePromptChars:
			budgetPenalty += 10
		case models.ResourceTranscriptEvents:
			budgetPenalty += 5
		case models.ResourceProbeOutput:
			budgetPenalty += 3
		}
	}
	if budgetPenalty > budgetPenaltyCap {
		budgetPenalty = budgetPenaltyCap
	}
	apply("resource_budgets", budgetPenalty)

	// 5. Deterministic fallback in place of the auditor.
	if in.AuditorFallback {
		apply("auditor_fallback", 5)
	}

	// 6. Forcible grounding: the spine adding probes the translator
	// missed is a small positive signal.
	if in.SpineEnforced {
		score += 2
		penalties = append(penalties, models.Penalty{Kind: "spine_enforced", Points: -2})
	}

	// 7. Translator confidence scales the remainder.
	if in.TranslatorUsed {
		score *= 0.5 + 0.5*in.TranslatorConfidence
	}

	// 8. Red-band ceilings: deadline breaches and refusals are never
	// published above red, regardless of the arithmetic above.
	if in.DeadlineExceeded && score > 65 {
		apply("deadline_exceeded", score-65)
	}
	if in.AnswerRefused && score > 35 {
		apply("refusal", score-35)
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	rounded := int(math.Round(score))

	return models.ReliabilityPacket{
		Score:     rounded,
		Band:      BandFor(rounded),
		Inputs:    in,
		Penalties: penalties,
	}
}

// BandFor maps a score to its band.
func BandFor(score int) models.Band {
	switch {
	case score >= GreenFloor:
		return models.BandGreen
	case score >= YellowFloor:
		return models.BandYellow
	default:
		return models.BandRed
	}
}
