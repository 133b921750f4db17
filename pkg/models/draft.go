package models

// Citation ties a claim in the answer text to an evidence atom.
type Citation struct {
	ProbeID ProbeID `json:"probe_id"`
}

// Draft is one drafter (Junior) iteration output. Either a candidate
// answer with citations, or a request for more probes.
type Draft struct {
	Text            string     `json:"text"`
	Citations       []Citation `json:"citations,omitempty"`
	NeedsMoreProbes bool       `json:"needs_more_probes"`
	Refused         bool       `json:"refused"`
	RefusalReason   string     `json:"refusal_reason,omitempty"`
	RequestedProbes []ProbeID  `json:"requested_probes,omitempty"`

	// FromFallback marks a draft produced by the deterministic fallback
	// rather than the LLM. Feeds the reliability input.
	FromFallback bool `json:"-"`
}

// CitedIDs returns the probe ids named by the draft's citations.
func (d *Draft) CitedIDs() []ProbeID {
	ids := make([]ProbeID, 0, len(d.Citations))
	for _, c := range d.Citations {
		ids = append(ids, c.ProbeID)
	}
	return ids
}
