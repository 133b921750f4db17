// Package models holds the shared data model for the question pipeline.
// These types cross package boundaries; behavior lives with the packages
// that own each pipeline step.
package models

import "strings"

// ProbeID identifies a probe as "domain.kind", optionally parameterized
// as "domain.kind:param" (e.g. "pkg.query:nano").
type ProbeID string

// Base returns the descriptor part of the id, without the parameter.
func (id ProbeID) Base() string {
	if i := strings.IndexByte(string(id), ':'); i >= 0 {
		return string(id)[:i]
	}
	return string(id)
}

// Param returns the parameter part of the id, or "" if unparameterized.
func (id ProbeID) Param() string {
	if i := strings.IndexByte(string(id), ':'); i >= 0 {
		return string(id)[i+1:]
	}
	return ""
}

// WithParam attaches a parameter to a base probe id.
func (id ProbeID) WithParam(param string) ProbeID {
	if param == "" {
		return id
	}
	return ProbeID(id.Base() + ":" + param)
}

// ProbeStatus is the terminal status of one probe execution.
type ProbeStatus string

const (
	ProbeStatusOK      ProbeStatus = "ok"
	ProbeStatusError   ProbeStatus = "error"
	ProbeStatusTimeout ProbeStatus = "timeout"
	ProbeStatusSkipped ProbeStatus = "skipped"
)

// ProbeResult is one evidence atom. Created once by the executor and
// immutable for the rest of the request.
type ProbeResult struct {
	ProbeID        ProbeID     `json:"probe_id"`
	Command        string      `json:"command_string"`
	ExitCode       int         `json:"exit_code"`
	Stdout         string      `json:"stdout"`
	Stderr         string      `json:"stderr"`
	DurationMS     int64       `json:"duration_ms"`
	Status         ProbeStatus `json:"status"`
	TruncatedBytes int         `json:"truncated_bytes"`
}

// ResourceKind names a budget that can be breached.
type ResourceKind string

const (
	ResourceTranscriptEvents ResourceKind = "TranscriptEvents"
	ResourcePromptChars      ResourceKind = "PromptChars"
	ResourceProbeOutput      ResourceKind = "ProbeOutput"
)

// ResourceDiagnostic records a cap that was hit, what was dropped,
// and what that costs downstream. Caps are never silent.
type ResourceDiagnostic struct {
	Kind        ResourceKind `json:"kind"`
	Limit       int          `json:"limit"`
	Dropped     int          `json:"dropped"`
	Consequence string       `json:"consequence"`
}
