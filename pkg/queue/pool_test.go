package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjgarcianorway/anna/pkg/agent"
	"github.com/jjgarcianorway/anna/pkg/llm"
	"github.com/jjgarcianorway/anna/pkg/models"
	"github.com/jjgarcianorway/anna/pkg/orchestrator"
	"github.com/jjgarcianorway/anna/pkg/probe"
	"github.com/jjgarcianorway/anna/pkg/translator"
)

// nullRunner answers every probe with a canned success.
type nullRunner struct{}

func (nullRunner) Run(_ context.Context, desc probe.Descriptor, _ time.Time) models.ProbeResult {
	return models.ProbeResult{ProbeID: desc.ID, Status: models.ProbeStatusOK, Stdout: "CPU(s): 8"}
}

func (r nullRunner) RunMany(ctx context.Context, descs []probe.Descriptor, deadline time.Time) []models.ProbeResult {
	out := make([]models.ProbeResult, len(descs))
	for i, d := range descs {
		out[i] = r.Run(ctx, d, deadline)
	}
	return out
}

func testOrchestrator() *orchestrator.Orchestrator {
	registry := probe.NewRegistry()
	client := llm.NewFake(
		llm.FakeStep{Text: `{"text":"You have 8 logical CPUs.","citations":[{"probe_id":"cpu.info"}]}`},
		llm.FakeStep{Text: `{"verdict":"approve","scores":{"evidence":0.97,"reasoning":0.95,"coverage":0.95,"overall":0.96}}`},
	)
	return orchestrator.New(registry, nullRunner{}, translator.New(client, registry),
		agent.NewDrafter(client, registry), agent.NewAuditor(client, registry), nil)
}

func TestPoolRunsSubmittedRequest(t *testing.T) {
	pool := NewWorkerPool(testOrchestrator(), 1, 4)
	pool.Start(context.Background())
	defer pool.Stop()

	reply, err := pool.Submit(context.Background(), orchestrator.Request{
		ID: "req-1", Question: "how many cores do I have?",
	})
	require.NoError(t, err)

	select {
	case res := <-reply:
		require.NoError(t, res.Err)
		require.NotNil(t, res.Answer)
		assert.Contains(t, res.Answer.Answer, "8 logical CPUs")
	case <-time.After(5 * time.Second):
		t.Fatal("worker never replied")
	}
}

func TestPoolSurfacesPipelineErrors(t *testing.T) {
	pool := NewWorkerPool(testOrchestrator(), 1, 4)
	pool.Start(context.Background())
	defer pool.Stop()

	reply, err := pool.Submit(context.Background(), orchestrator.Request{ID: "req-2", Question: ""})
	require.NoError(t, err)

	res := <-reply
	assert.ErrorIs(t, res.Err, orchestrator.ErrEmptyQuestion)
	assert.Nil(t, res.Answer)
}

func TestPoolQueueFull(t *testing.T) {
	// Never started: jobs stay queued, so the depth-1 queue fills.
	pool := NewWorkerPool(testOrchestrator(), 1, 1)

	_, err := pool.Submit(context.Background(), orchestrator.Request{ID: "a", Question: "q"})
	require.NoError(t, err)
	_, err = pool.Submit(context.Background(), orchestrator.Request{ID: "b", Question: "q"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestPoolRejectsAfterStop(t *testing.T) {
	pool := NewWorkerPool(testOrchestrator(), 1, 4)
	pool.Start(context.Background())
	pool.Stop()

	_, err := pool.Submit(context.Background(), orchestrator.Request{ID: "c", Question: "q"})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestPoolSnapshot(t *testing.T) {
	pool := NewWorkerPool(testOrchestrator(), 3, 8)
	h := pool.Snapshot()
	assert.Equal(t, 3, h.Workers)
	assert.Zero(t, h.Active)
}
