package probe

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jjgarcianorway/anna/pkg/models"
)

// OutputCap is the per-probe stdout/stderr cap in characters. Bytes
// beyond it are counted in TruncatedBytes and discarded.
const OutputCap = 2000

// DefaultParallelism is the process-wide bound on concurrent probe
// children (K).
const DefaultParallelism = 4

// Runner is the executor interface the orchestrator depends on.
// The production Executor spawns real processes; tests inject a fake.
type Runner interface {
	Run(ctx context.Context, desc Descriptor, deadline time.Time) models.ProbeResult
	RunMany(ctx context.Context, descs []Descriptor, deadline time.Time) []models.ProbeResult
}

// Executor runs probes as child processes or pseudo-file reads.
// All failures are encoded in the result; Run never returns an error.
type Executor struct {
	sem *semaphore.Weighted
}

// NewExecutor creates an executor with the given parallelism bound.
// parallelism <= 0 falls back to DefaultParallelism.
func NewExecutor(parallelism int64) *Executor {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Executor{sem: semaphore.NewWeighted(parallelism)}
}

// Run executes one descriptor with a hard per-probe timeout of
// min(cost budget, deadline - now). Stdin is not connected, no shell is
// involved, and output beyond OutputCap is dropped and counted.
func (e *Executor) Run(ctx context.Context, desc Descriptor, deadline time.Time) models.ProbeResult {
	res := models.ProbeResult{
		ProbeID: desc.ID,
		Command: desc.CommandString(),
	}

	if desc.Cost == CostExpensive && !desc.ExpensiveOptIn {
		res.Status = models.ProbeStatusSkipped
		res.Stderr = "expensive probe requires explicit opt-in"
		return res
	}

	budget := desc.Cost.Budget()
	if remaining := time.Until(deadline); remaining < budget {
		budget = remaining
	}
	if budget <= 0 {
		res.Status = models.ProbeStatusTimeout
		res.Stderr = "request deadline exhausted before probe start"
		return res
	}

	start := time.Now()
	if desc.File != "" {
		e.runFileProbe(&res, desc.File)
	} else {
		e.runCommandProbe(ctx, &res, desc, budget)
	}
	res.DurationMS = time.Since(start).Milliseconds()

	slog.Debug("Probe finished",
		"probe_id", desc.ID,
		"status", res.Status,
		"duration_ms", res.DurationMS,
		"truncated_bytes", res.TruncatedBytes)
	return res
}

// RunMany executes descriptors concurrently up to the parallelism bound
// and returns results in input order regardless of completion order, so
// downstream reasoning is deterministic.
func (e *Executor) RunMany(ctx context.Context, descs []Descriptor, deadline time.Time) []models.ProbeResult {
	results := make([]models.ProbeResult, len(descs))
	done := make(chan int, len(descs))

	for i, desc := range descs {
		go func(i int, desc Descriptor) {
			defer func() { done <- i }()
			if err := e.sem.Acquire(ctx, 1); err != nil {
				results[i] = models.ProbeResult{
					ProbeID: desc.ID,
					Command: desc.CommandString(),
					Status:  models.ProbeStatusTimeout,
					Stderr:  "cancelled before execution: " + err.Error(),
				}
				return
			}
			defer e.sem.Release(1)
			results[i] = e.Run(ctx, desc, deadline)
		}(i, desc)
	}
	for range descs {
		<-done
	}
	return results
}

func (e *Executor) runFileProbe(res *models.ProbeResult, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		res.Status = models.ProbeStatusError
		res.ExitCode = 1
		res.Stderr = truncateTo(err.Error(), OutputCap, nil)
		return
	}
	res.Status = models.ProbeStatusOK
	res.Stdout = truncateTo(string(data), OutputCap, &res.TruncatedBytes)
}

func (e *Executor) runCommandProbe(ctx context.Context, res *models.ProbeResult, desc Descriptor, budget time.Duration) {
	probeCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, desc.Command[0], desc.Command[1:]...)
	cmd.Stdin = nil
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res.Stdout = truncateTo(stdout.String(), OutputCap, &res.TruncatedBytes)
	res.Stderr = truncateTo(stderr.String(), OutputCap, &res.TruncatedBytes)

	switch {
	case probeCtx.Err() == context.DeadlineExceeded:
		res.Status = models.ProbeStatusTimeout
		res.ExitCode = -1
	case err != nil:
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.Status = models.ProbeStatusError
			res.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn failure: binary missing, permissions, ...
			res.Status = models.ProbeStatusError
			res.ExitCode = -1
			res.Stderr = truncateTo(err.Error(), OutputCap, nil)
		}
	default:
		res.Status = models.ProbeStatusOK
	}
}

// truncateTo caps s at limit characters; excess bytes are added to
// counted when non-nil. Output bytes inside the cap pass verbatim.
func truncateTo(s string, limit int, counted *int) string {
	if len(s) <= limit {
		return s
	}
	if counted != nil {
		*counted += len(s) - limit
	}
	return s[:limit]
}
