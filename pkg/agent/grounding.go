package agent

import (
	"regexp"
	"strings"

	"github.com/jjgarcianorway/anna/pkg/models"
	"github.com/jjgarcianorway/anna/pkg/probe"
)

// GroundingReport quantifies how much of an answer is traceable to
// cited evidence. Feeds the reliability input.
type GroundingReport struct {
	TotalClaims    int
	GroundedClaims int
	Ratio          float64
	NoInvention    bool
	AnswerGrounded bool
}

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// AnalyzeGrounding splits the answer into sentence-level claims and
// checks each against the cited evidence. A claim is grounded when the
// answer carries at least one citation and every number in the claim
// appears in the cited stdout; words and identifiers are not checked.
// Invention is any numeric value absent from every cited atom.
func AnalyzeGrounding(answer string, citations []models.Citation, store *probe.Store) GroundingReport {
	var evidence []string
	for _, c := range citations {
		if res, ok := store.Get(c.ProbeID); ok {
			evidence = append(evidence, res.Stdout)
		}
	}
	joined := strings.Join(evidence, "\n")

	claims := splitClaims(answer)
	report := GroundingReport{
		TotalClaims: len(claims),
		NoInvention: true,
	}
	for _, claim := range claims {
		// Numbers are checkable specifics: any value absent from the
		// cited evidence is invention. Prose-only claims ride on their
		// citations.
		numbersMissing := false
		for _, num := range numberPattern.FindAllString(claim, -1) {
			if !strings.Contains(joined, num) {
				numbersMissing = true
				report.NoInvention = false
			}
		}
		if len(citations) > 0 && !numbersMissing {
			report.GroundedClaims++
		}
	}
	if report.TotalClaims > 0 {
		report.Ratio = float64(report.GroundedClaims) / float64(report.TotalClaims)
	}
	report.AnswerGrounded = len(citations) > 0 && report.Ratio > 0
	return report
}

// numbersGrounded reports whether every numeric value in the answer is
// read directly from the cited evidence. An answer with no numbers
// passes only when at least one cited atom is present.
func numbersGrounded(answer string, citedStdout []string) bool {
	joined := strings.Join(citedStdout, "\n")
	nums := numberPattern.FindAllString(answer, -1)
	if len(nums) == 0 {
		return len(citedStdout) > 0
	}
	for _, n := range nums {
		if !strings.Contains(joined, n) {
			return false
		}
	}
	return true
}

// splitClaims breaks an answer into sentence-level claims.
func splitClaims(answer string) []string {
	var claims []string
	for _, part := range strings.FieldsFunc(answer, func(r rune) bool {
		return r == '.' || r == '\n' || r == ';'
	}) {
		part = strings.TrimSpace(part)
		if len(part) >= 3 {
			claims = append(claims, part)
		}
	}
	return claims
}

