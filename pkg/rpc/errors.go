package rpc

import (
	"context"
	"errors"

	"github.com/jjgarcianorway/anna/pkg/orchestrator"
)

// RPC error codes. Everything except internal errors is recovered
// inside the pipeline; these cover the cases where no answer packet
// exists at all.
const (
	CodeInvalidParams    = -32602
	CodeDeadlineExceeded = -32001
	CodeLLMUnavailable   = -32002
	CodeNoEvidence       = -32003
	CodeInternal         = -32004
)

// ErrorBody is the wire form of an RPC error.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func errorResponse(id string, code int, message string) Response {
	return Response{ID: id, Error: &ErrorBody{Code: code, Message: message}}
}

// codeFor maps pipeline errors to RPC codes.
func codeFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyQuestion),
		errors.Is(err, orchestrator.ErrQuestionTooLarge):
		return CodeInvalidParams
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDeadlineExceeded
	default:
		return CodeInternal
	}
}
