// Package translator turns a free-form question into a validated
// Ticket via the LLM. This is the one place where LLM output becomes
// data: unknown fields are discarded, out-of-range values clamped,
// missing fields defaulted. Every downstream component consumes the
// validated record, never the raw text.
package translator

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

// Timeout is the translator's own LLM budget; the per-request deadline
// still bounds it from outside.
const Timeout = 10 * time.Second

// FallbackConfidence is the confidence of the deterministic fallback
// ticket used when the LLM times out or drifts off contract.
const FallbackConfidence = 0.3

const systemPrompt = `You classify questions about a Linux machine.
Respond with ONLY a JSON object, no prose, no markdown fences:
{"intent":"question|action|diagnose|meta|unsupported",
 "domain":"system|storage|network|packages|security|performance|audio|graphics|services|desktop|hardware|logs|general",
 "entities":["..."],
 "requested_probes":["probe.id"],
 "evidence_required":true,
 "confidence":0.0,
 "ambiguous":false}
Known probes: %s.
Questions unrelated to this machine are "unsupported" with evidence_required false.`

// Translator invokes the LLM and validates its output into a Ticket.
type Translator struct {
	client   llm.Client
	registry *probe.Registry
}

// New creates a translator.
func New(client llm.Client, registry *probe.Registry) *Translator {
	return &Translator{client: client, registry: registry}
}

// Outcome reports how the ticket was obtained, for the transcript and
// the reliability input.
type Outcome struct {
	Ticket       models.Ticket
	UsedFallback bool
	ParseWarning string
	Canonical    string
}

// Translate classifies the question. It never fails: on timeout,
// transport error, or contract drift it returns the deterministic
// fallback ticket with a parse warning for the debug transcript.
func (t *Translator) Translate(ctx context.Context, question string) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	ids := t.registry.IDs()
	idList := make([]string, len(ids))
	for i, id := range ids {
		idList[i] = string(id)
	}

	resp, err := t.client.Complete(callCtx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(systemPrompt, strings.Join(idList, ", "))},
			{Role: llm.RoleUser, Content: question},
		},
		MaxTokens: 512,
	})
	if err != nil {
		slog.Debug("Translator LLM call failed, using fallback", "error", err)
		return Outcome{
			Ticket:       fallbackTicket(),
			UsedFallback: true,
			ParseWarning: fmt.Sprintf("translator unavailable: %v", err),
		}
	}

	ticket, warn := t.parse(resp.Text)
	if warn != "" {
		return Outcome{
			Ticket:       fallbackTicket(),
			UsedFallback: true,
			ParseWarning: warn,
			Canonical:    resp.Text,
		}
	}
	return Outcome{Ticket: ticket, Canonical: resp.Text}
}

// rawTicket is the wire shape the LLM is asked for. Unknown fields are
// dropped by the decoder.
type rawTicket struct {
	Intent           string   `json:"intent"`
	Domain           string   `json:"domain"`
	Entities         []string `json:"entities"`
	RequestedProbes  []string `json:"requested_probes"`
	EvidenceRequired bool     `json:"evidence_required"`
	Confidence       float64  `json:"confidence"`
	Ambiguous        bool     `json:"ambiguous"`
}

// parse validates the raw LLM output into a Ticket. A non-empty warning
// means the output was unusable and the caller must fall back.
func (t *Translator) parse(text string) (models.Ticket, string) {
	jsonText := extractJSON(text)
	if jsonText == "" {
		return models.Ticket{}, "translator output contained no JSON object"
	}

	var raw rawTicket
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return models.Ticket{}, fmt.Sprintf("translator output failed JSON contract: %v", err)
	}

	ticket := models.Ticket{
		Intent:           validIntent(raw.Intent),
		Domain:           validDomain(raw.Domain),
		Entities:         raw.Entities,
		EvidenceRequired: raw.EvidenceRequired,
		Confidence:       raw.Confidence,
		Ambiguous:        raw.Ambiguous,
	}
	ticket.ClampConfidence()

	// Unknown probe ids are dropped, not errors: the spine supplies the
	// required minimum anyway.
	for _, p := range raw.RequestedProbes {
		id := models.ProbeID(p)
		if t.registry.Known(id) {
			ticket.RequestedProbes = append(ticket.RequestedProbes, id)
		} else {
			slog.Debug("Dropping unknown probe from translator", "probe_id", p)
		}
	}
	return ticket, ""
}

func fallbackTicket() models.Ticket {
	return models.Ticket{
		Intent:     models.IntentQuestion,
		Domain:     models.DomainGeneral,
		Confidence: FallbackConfidence,
	}
}

func validIntent(s string) models.Intent {
	switch models.Intent(s) {
	case models.IntentQuestion, models.IntentAction, models.IntentDiagnose,
		models.IntentMeta, models.IntentUnsupported:
		return models.Intent(s)
	}
	return models.IntentQuestion
}

func validDomain(s string) models.Domain {
	d := models.Domain(s)
	if models.KnownDomain(d) {
		return d
	}
	return models.DomainGeneral
}

// extractJSON pulls the first balanced JSON object out of the response,
// tolerating markdown fences and prose around it.
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
