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

// MaxDraftIterations bounds the drafter loop. The orchestrator drives
// the loop; the drafter produces one Draft per iteration.
const MaxDraftIterations = 3

// DrafterTimeout is the per-call LLM budget for the drafter.
const DrafterTimeout = 20 * time.Second

// Drafter is the Junior role: given the ticket and the evidence so
// far, either request more probes or emit a draft answer with
// citations.
type Drafter struct {
	client   llm.Client
	registry *probe.Registry
}

// NewDrafter creates a drafter.
func NewDrafter(client llm.Client, registry *probe.Registry) *Drafter {
	return &Drafter{client: client, registry: registry}
}

// DraftInput is one iteration's input.
type DraftInput struct {
	Question  string
	Ticket    models.Ticket
	Store     *probe.Store
	Iteration int // 1-based
}

// DraftOutcome carries the draft plus diagnostics for the transcript.
type DraftOutcome struct {
	Draft        models.Draft
	ParseWarning string
	PromptDropped int
}

const drafterContract = `Respond with ONLY a JSON object, no prose, no markdown fences:
{"needs_more_probes":false,
 "requested_probes":["probe.id"],
 "refused":false,
 "text":"the answer",
 "citations":[{"probe_id":"probe.id"}]}
Rules:
- Every factual claim must come from the evidence; cite the probe id.
- If the evidence is not enough, set needs_more_probes and list probes.
- If the question is not about this machine, set refused.
- Never invent probe ids or evidence.`

// Draft runs one drafter iteration. It never fails: parse and
// transport errors produce the deterministic fallback draft, which
// guarantees termination.
func (d *Drafter) Draft(ctx context.Context, in DraftInput) DraftOutcome {
	callCtx, cancel := context.WithTimeout(ctx, DrafterTimeout)
	defer cancel()

	system := personaFor(in.Ticket.Domain) + "\n" + drafterContract
	user, dropped := d.buildUserPrompt(in)

	resp, err := d.client.Complete(callCtx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		slog.Debug("Drafter LLM call failed, using fallback", "iteration", in.Iteration, "error", err)
		return DraftOutcome{
			Draft:         fallbackDraft(in.Store),
			ParseWarning:  fmt.Sprintf("drafter unavailable: %v", err),
			PromptDropped: dropped,
		}
	}

	draft, warn := d.parse(resp.Text, in.Store)
	out := DraftOutcome{Draft: draft, ParseWarning: warn, PromptDropped: dropped}
	if warn != "" {
		out.Draft = fallbackDraft(in.Store)
	}
	return out
}

func (d *Drafter) buildUserPrompt(in DraftInput) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "Available probes: %s\n\n", probeIDList(d.registry))
	fmt.Fprintf(&b, "Question: %s\n\n", in.Question)

	evidence, dropped := buildEvidenceBlock(in.Store.All(), PromptCap-b.Len()-64)
	if evidence == "" {
		b.WriteString("Evidence: (none collected yet)\n")
	} else {
		b.WriteString("Evidence:\n")
		b.WriteString(evidence)
	}
	if in.Iteration >= 2 {
		b.WriteString("\nANSWER NOW. Use only the evidence above; do not request more probes.")
	}
	return b.String(), dropped
}

// rawDraft is the wire shape of the drafter's reply.
type rawDraft struct {
	NeedsMoreProbes bool     `json:"needs_more_probes"`
	RequestedProbes []string `json:"requested_probes"`
	Refused         bool     `json:"refused"`
	Text            string   `json:"text"`
	Citations       []struct {
		ProbeID string `json:"probe_id"`
	} `json:"citations"`
}

// parse validates the LLM output. The drafter never invents probe ids:
// unknown requested probes are dropped; citations naming absent probes
// are removed, and a draft left with claims but no surviving citations
// is marked refused with reason "no evidence".
func (d *Drafter) parse(text string, store *probe.Store) (models.Draft, string) {
	jsonText := extractJSON(text)
	if jsonText == "" {
		return models.Draft{}, "drafter output contained no JSON object"
	}
	var raw rawDraft
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return models.Draft{}, fmt.Sprintf("drafter output failed JSON contract: %v", err)
	}

	draft := models.Draft{
		Text:            strings.TrimSpace(raw.Text),
		NeedsMoreProbes: raw.NeedsMoreProbes,
		Refused:         raw.Refused,
	}
	for _, p := range raw.RequestedProbes {
		id := models.ProbeID(p)
		if d.registry.Known(id) && !store.Has(id) {
			draft.RequestedProbes = append(draft.RequestedProbes, id)
		}
	}
	// A "needs more probes" reply whose every request is unknown or
	// already executed degenerates to an answer attempt.
	if draft.NeedsMoreProbes && len(draft.RequestedProbes) == 0 {
		draft.NeedsMoreProbes = false
	}

	removed := false
	for _, c := range raw.Citations {
		id := models.ProbeID(c.ProbeID)
		if store.Has(id) {
			draft.Citations = append(draft.Citations, models.Citation{ProbeID: id})
		} else {
			removed = true
		}
	}
	if removed && len(draft.Citations) == 0 && !draft.NeedsMoreProbes {
		draft.Refused = true
		draft.RefusalReason = "no evidence"
		draft.Text = ""
	}
	return draft, ""
}

// FallbackDraft exposes the deterministic draft for the orchestrator's
// deadline path: when time runs out, whatever evidence exists is quoted
// verbatim instead of being discarded.
func FallbackDraft(store *probe.Store) models.Draft {
	return fallbackDraft(store)
}

// fallbackDraft is the deterministic replacement when the LLM is
// unusable: quote the top-k evidence lines verbatim with literal
// citations. With no usable evidence it refuses.
func fallbackDraft(store *probe.Store) models.Draft {
	const maxAtoms = 3
	const maxLinesPerAtom = 2

	var lines []string
	var citations []models.Citation
	for _, res := range store.All() {
		if res.Status != models.ProbeStatusOK || strings.TrimSpace(res.Stdout) == "" {
			continue
		}
		count := 0
		for _, line := range strings.Split(res.Stdout, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			lines = append(lines, line)
			count++
			if count >= maxLinesPerAtom {
				break
			}
		}
		if count > 0 {
			citations = append(citations, models.Citation{ProbeID: res.ProbeID})
		}
		if len(citations) >= maxAtoms {
			break
		}
	}

	if len(citations) == 0 {
		return models.Draft{
			Refused:       true,
			RefusalReason: "no evidence",
			FromFallback:  true,
		}
	}
	return models.Draft{
		Text:         "Here is what the system reports:\n" + strings.Join(lines, "\n"),
		Citations:    citations,
		FromFallback: true,
	}
}

// extractJSON pulls the first balanced JSON object out of text.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
