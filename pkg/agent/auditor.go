package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jjgarcianorway/anna/pkg/llm"
	"github.com/jjgarcianorway/anna/pkg/models"
	"github.com/jjgarcianorway/anna/pkg/probe"
)

// AuditorTimeout is the per-call LLM budget for the auditor.
const AuditorTimeout = 30 * time.Second

// Auditor is the Senior role: one shot per draft, ruling approve /
// fix_and_accept / needs_more_probes / refuse with structured scores.
type Auditor struct {
	client   llm.Client
	registry *probe.Registry
}

// NewAuditor creates an auditor.
func NewAuditor(client llm.Client, registry *probe.Registry) *Auditor {
	return &Auditor{client: client, registry: registry}
}

// AuditInput is everything the auditor sees.
type AuditInput struct {
	Question string
	Ticket   models.Ticket
	Draft    models.Draft
	Store    *probe.Store
}

// AuditOutcome carries the verdict plus diagnostics for the transcript.
type AuditOutcome struct {
	Verdict      models.AuditVerdict
	ParseWarning string
}

const auditorContract = `Respond with ONLY a JSON object, no prose, no markdown fences:
{"verdict":"approve|fix_and_accept|needs_more_probes|refuse",
 "scores":{"evidence":0.0,"reasoning":0.0,"coverage":0.0,"overall":0.0},
 "probe_requests":["probe.id"],
 "problems":["..."],
 "fixed_answer":null}
Rules:
- Judge ONLY against the cited evidence, never external knowledge.
- An answer whose every numeric value is read directly from cited
  evidence gets evidence >= 0.95 and overall >= 0.95.
- fix_and_accept requires fixed_answer; keep the fix minimal.
- refuse when the evidence cannot support a reliable answer.`

// Audit rules on one draft. It never fails: transport and parse errors
// produce the deterministic fallback verdict (a fixed refuse).
func (a *Auditor) Audit(ctx context.Context, in AuditInput) AuditOutcome {
	callCtx, cancel := context.WithTimeout(ctx, AuditorTimeout)
	defer cancel()

	resp, err := a.client.Complete(callCtx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: personaFor(in.Ticket.Domain) + "\nYou are the senior reviewer.\n" + auditorContract},
			{Role: llm.RoleUser, Content: a.buildUserPrompt(in)},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		slog.Debug("Auditor LLM call failed, using fallback", "error", err)
		return AuditOutcome{
			Verdict:      fallbackVerdict(),
			ParseWarning: fmt.Sprintf("auditor unavailable: %v", err),
		}
	}

	verdict, warn := a.parse(resp.Text, in)
	if warn != "" {
		return AuditOutcome{Verdict: fallbackVerdict(), ParseWarning: warn}
	}
	return AuditOutcome{Verdict: verdict}
}

func (a *Auditor) buildUserPrompt(in AuditInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", in.Question)
	fmt.Fprintf(&b, "Draft answer:\n%s\n\n", in.Draft.Text)

	fmt.Fprintf(&b, "Cited evidence:\n")
	cited := make([]models.ProbeResult, 0, len(in.Draft.Citations))
	for _, c := range in.Draft.Citations {
		if res, ok := in.Store.Get(c.ProbeID); ok {
			cited = append(cited, res)
		}
	}
	block, _ := buildEvidenceBlock(cited, PromptCap-b.Len()-64)
	if block == "" {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(block)
	}

	// CPU questions get the derived topology block so cores and threads
	// cannot be confused.
	if summary, ok := CPUSummaryFrom(in.Store); ok && mentionsCPU(in.Question) {
		b.WriteString("\nDerived CPU topology (authoritative):\n")
		b.WriteString(summary.Block())
	}
	return b.String()
}

// rawVerdict is the wire shape of the auditor's reply.
type rawVerdict struct {
	Verdict       string `json:"verdict"`
	Scores        models.AuditScores `json:"scores"`
	ProbeRequests []string `json:"probe_requests"`
	Problems      []string `json:"problems"`
	FixedAnswer   string   `json:"fixed_answer"`
}

// parse validates the auditor reply: decision must be in the closed
// set, scores are clamped, unknown probe requests dropped, and the
// numeric-grounding floor is re-applied on receipt.
func (a *Auditor) parse(text string, in AuditInput) (models.AuditVerdict, string) {
	jsonText := extractJSON(text)
	if jsonText == "" {
		return models.AuditVerdict{}, "auditor output contained no JSON object"
	}
	var raw rawVerdict
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return models.AuditVerdict{}, fmt.Sprintf("auditor output failed JSON contract: %v", err)
	}

	decision := models.AuditDecision(raw.Verdict)
	if !models.KnownAuditDecision(decision) {
		return models.AuditVerdict{}, fmt.Sprintf("auditor returned unknown verdict %q", raw.Verdict)
	}

	verdict := models.AuditVerdict{
		Decision:    decision,
		Scores:      raw.Scores,
		FixedAnswer: strings.TrimSpace(raw.FixedAnswer),
		Problems:    raw.Problems,
	}
	verdict.Scores.Clamp()

	for _, p := range raw.ProbeRequests {
		id := models.ProbeID(p)
		if a.registry.Known(id) {
			verdict.RequestedProbes = append(verdict.RequestedProbes, id)
		}
	}

	// fix_and_accept without a fix degrades to approve of the draft.
	if verdict.Decision == models.AuditFixAndAccept && verdict.FixedAnswer == "" {
		verdict.Decision = models.AuditApprove
	}

	// Re-validate the numeric-grounding floor: if every number in the
	// answer is read from cited evidence, evidence and overall may not
	// sit below 0.95 regardless of what the model said.
	answer := verdict.FixedAnswer
	if answer == "" {
		answer = in.Draft.Text
	}
	if numbersGrounded(answer, citedStdout(in)) {
		if verdict.Scores.Evidence < 0.95 {
			verdict.Scores.Evidence = 0.95
		}
		if verdict.Scores.Overall < 0.95 {
			verdict.Scores.Overall = 0.95
		}
	}
	return verdict, ""
}

// fallbackVerdict is the deterministic auditor replacement: a fixed
// refuse. Costs 5 reliability points via AuditorFallback.
func fallbackVerdict() models.AuditVerdict {
	return models.AuditVerdict{
		Decision:     models.AuditRefuse,
		Problems:     []string{"audit unavailable; declining to certify the draft"},
		FromFallback: true,
	}
}

func citedStdout(in AuditInput) []string {
	var out []string
	for _, c := range in.Draft.Citations {
		if res, ok := in.Store.Get(c.ProbeID); ok {
			out = append(out, res.Stdout)
		}
	}
	return out
}

func mentionsCPU(question string) bool {
	lower := strings.ToLower(question)
	return strings.Contains(lower, "cpu") || strings.Contains(lower, "core") ||
		strings.Contains(lower, "processor") || strings.Contains(lower, "thread")
}
