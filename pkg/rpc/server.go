// Package rpc serves the line-delimited JSON interface over a unix
// socket: one JSON object per line in, one per line out. This is the
// primary surface the CLI talks to.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jjgarcianorway/anna/pkg/orchestrator"
	"github.com/jjgarcianorway/anna/pkg/queue"
	"github.com/jjgarcianorway/anna/pkg/transcript"
	"github.com/jjgarcianorway/anna/pkg/version"
)

// MaxLineBytes bounds one request line; anything larger is an input
// error, not a crash.
const MaxLineBytes = 64 * 1024

// Request is the wire envelope.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// AskParams are the parameters of the ask method.
type AskParams struct {
	Question   string `json:"question"`
	Mode       string `json:"mode"`
	DeadlineMS int    `json:"deadline_ms"`
}

// Response is the wire envelope for replies.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// AskResult is the success payload of ask.
type AskResult struct {
	Answer      string             `json:"answer"`
	Reliability ReliabilitySummary `json:"reliability"`
	Transcript  []transcript.Event `json:"transcript"`
	Citations   []CitationOut      `json:"citations"`
	Rendered    []string           `json:"rendered,omitempty"`
}

// ReliabilitySummary is the wire form of the score.
type ReliabilitySummary struct {
	Score int    `json:"score"`
	Band  string `json:"band"`
}

// CitationOut is the wire form of a citation.
type CitationOut struct {
	ProbeID string `json:"probe_id"`
}

// StatusResult is the success payload of status.
type StatusResult struct {
	Version string       `json:"version"`
	UptimeS int64        `json:"uptime_s"`
	Pool    queue.Health `json:"pool"`
}

// Server accepts connections on the unix socket and dispatches to the
// worker pool.
type Server struct {
	socketPath      string
	pool            *queue.WorkerPool
	defaultDeadline time.Duration
	listener        net.Listener
	started         time.Time
	wg              sync.WaitGroup
}

// NewServer creates a server for the given socket path. A zero
// defaultDeadline leaves the orchestrator's own default in force.
func NewServer(socketPath string, pool *queue.WorkerPool, defaultDeadline time.Duration) *Server {
	return &Server{
		socketPath:      socketPath,
		pool:            pool,
		defaultDeadline: defaultDeadline,
		started:         time.Now(),
	}
}

// Listen binds the unix socket, replacing a stale one from a previous
// run.
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o660); err != nil {
		slog.Warn("Could not restrict socket permissions", "error", err)
	}
	s.listener = ln
	slog.Info("RPC server listening", "socket", s.socketPath)
	return nil
}

// Serve accepts connections until the context is cancelled or the
// listener closes.
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting, waits for in-flight connections, and removes
// the socket file.
func (s *Server) Close() error {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineBytes)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = encoder.Encode(errorResponse("", CodeInvalidParams, "request is not a JSON object"))
			continue
		}
		resp := s.dispatch(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			slog.Debug("Write to client failed", "error", err)
			return
		}
	}
	if errors.Is(scanner.Err(), bufio.ErrTooLong) {
		_ = encoder.Encode(errorResponse("", CodeInvalidParams, "request line exceeds maximum size"))
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case "ask":
		return s.handleAsk(ctx, req)
	case "status":
		return Response{ID: req.ID, Result: StatusResult{
			Version: version.Full(),
			UptimeS: int64(time.Since(s.started).Seconds()),
			Pool:    s.pool.Snapshot(),
		}}
	default:
		return errorResponse(req.ID, CodeInvalidParams, fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (s *Server) handleAsk(ctx context.Context, req Request) Response {
	var params AskParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
		}
	}

	oreq := orchestrator.Request{
		ID:       req.ID,
		Question: params.Question,
		Mode:     transcript.Mode(params.Mode),
	}
	if oreq.ID == "" {
		oreq.ID = uuid.NewString()
	}
	switch {
	case params.DeadlineMS > 0:
		oreq.Deadline = time.Duration(params.DeadlineMS) * time.Millisecond
	case s.defaultDeadline > 0:
		oreq.Deadline = s.defaultDeadline
	}

	reply, err := s.pool.Submit(ctx, oreq)
	if err != nil {
		return errorResponse(req.ID, CodeInternal, err.Error())
	}

	select {
	case res := <-reply:
		if res.Err != nil {
			return errorResponse(req.ID, codeFor(res.Err), res.Err.Error())
		}
		return Response{ID: req.ID, Result: toAskResult(res.Answer)}
	case <-ctx.Done():
		return errorResponse(req.ID, CodeDeadlineExceeded, "server shutting down")
	}
}

func toAskResult(a *orchestrator.Answer) AskResult {
	citations := make([]CitationOut, 0, len(a.Citations))
	for _, c := range a.Citations {
		citations = append(citations, CitationOut{ProbeID: string(c.ProbeID)})
	}
	return AskResult{
		Answer: a.Answer,
		Reliability: ReliabilitySummary{
			Score: a.Reliability.Score,
			Band:  string(a.Reliability.Band),
		},
		Transcript: a.Events,
		Citations:  citations,
		Rendered:   a.Rendered,
	}
}
