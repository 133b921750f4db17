package reliability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjgarcianorway/anna/pkg/models"
)

func cleanInput() models.ReliabilityInput {
	return models.ReliabilityInput{
		ProbesPlanned:  2,
		ProbesSucceed:  2,
		NoInvention:    true,
		AnswerGrounded: true,
		GroundingRatio: 1.0,
		TotalClaims:    2,
	}
}

func TestScorePerfectRun(t *testing.T) {
	packet := Score(cleanInput())
	assert.Equal(t, 100, packet.Score)
	assert.Equal(t, models.BandGreen, packet.Band)
	assert.Empty(t, packet.Penalties)
}

func TestScoreIsPure(t *testing.T) {
	in := cleanInput()
	in.ProbesFailed = 1
	in.TranslatorUsed = true
	in.TranslatorConfidence = 0.8

	first := Score(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Score(in), "same input must produce the same packet")
	}
}

func TestScoreProbeOutcomePenalties(t *testing.T) {
	in := cleanInput()
	in.ProbesFailed = 1
	in.ProbesTimedOut = 1
	packet := Score(in)
	assert.Equal(t, 82, packet.Score) // 100 - 10 - 8

	// The combined probe penalty is capped.
	in.ProbesFailed = 10
	in.ProbesTimedOut = 10
	packet = Score(in)
	assert.Equal(t, 60, packet.Score)
}

func TestScoreInventionPenalty(t *testing.T) {
	in := cleanInput()
	in.NoInvention = false
	packet := Score(in)
	assert.Equal(t, 60, packet.Score)
	require.Len(t, packet.Penalties, 1)
	assert.Equal(t, "invention", packet.Penalties[0].Kind)
}

func TestScoreGroundingShortfall(t *testing.T) {
	in := cleanInput()
	in.EvidenceRequired = true
	in.GroundingRatio = 0.3
	packet := Score(in)
	// (0.6 - 0.3) * 60 = 18
	assert.Equal(t, 82, packet.Score)

	// No penalty when evidence is not required.
	in.EvidenceRequired = false
	assert.Equal(t, 100, Score(in).Score)
}

func TestScoreBudgetPenaltiesCapped(t *testing.T) {
	in := cleanInput()
	in.Diagnostics = []models.ResourceDiagnostic{
		{Kind: models.ResourcePromptChars},
		{Kind: models.ResourceTranscriptEvents},
		{Kind: models.ResourceProbeOutput},
		{Kind: models.ResourceProbeOutput},
	}
	// 10 + 5 + 3 + 3 = 21, capped at 15.
	assert.Equal(t, 85, Score(in).Score)
}

func TestScoreAuditorFallbackPenalty(t *testing.T) {
	in := cleanInput()
	in.AuditorFallback = true
	assert.Equal(t, 95, Score(in).Score)
}

func TestScoreTranslatorConfidenceMultiplier(t *testing.T) {
	in := cleanInput()
	in.TranslatorUsed = true
	in.TranslatorConfidence = 0.5
	// 100 * (0.5 + 0.25) = 75
	packet := Score(in)
	assert.Equal(t, 75, packet.Score)
	assert.Equal(t, models.BandYellow, packet.Band)
}

func TestScoreDeadlineExceededIsRed(t *testing.T) {
	in := cleanInput()
	in.DeadlineExceeded = true
	packet := Score(in)
	assert.Equal(t, models.BandRed, packet.Band)
}

func TestScoreRefusalIsRed(t *testing.T) {
	in := cleanInput()
	in.AnswerRefused = true
	packet := Score(in)
	assert.Equal(t, models.BandRed, packet.Band)
}

func TestScoreNeverLeavesRange(t *testing.T) {
	in := models.ReliabilityInput{
		ProbesFailed:   50,
		ProbesTimedOut: 50,
		NoInvention:    false,
		GroundingRatio: 0,

		EvidenceRequired: true,
		TranslatorUsed:   true,
	}
	packet := Score(in)
	assert.GreaterOrEqual(t, packet.Score, 0)
	assert.LessOrEqual(t, packet.Score, 100)
	assert.Equal(t, models.BandRed, packet.Band)
}

func TestScoreSpineEnforcementBonus(t *testing.T) {
	in := cleanInput()
	in.SpineEnforced = true
	in.TranslatorUsed = true
	in.TranslatorConfidence = 0.9
	// (100 + 2) * 0.95 = 96.9 -> 97
	assert.Equal(t, 97, Score(in).Score)

	// The bonus never pushes past the ceiling.
	in.TranslatorUsed = false
	assert.Equal(t, 100, Score(in).Score)
}

func TestBandBoundaries(t *testing.T) {
	assert.Equal(t, models.BandGreen, BandFor(90))
	assert.Equal(t, models.BandYellow, BandFor(89))
	assert.Equal(t, models.BandYellow, BandFor(70))
	assert.Equal(t, models.BandRed, BandFor(69))
	assert.Equal(t, models.BandRed, BandFor(0))
}
