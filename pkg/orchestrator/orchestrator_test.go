package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjgarcianorway/anna/pkg/agent"
	"github.com/jjgarcianorway/anna/pkg/llm"
	"github.com/jjgarcianorway/anna/pkg/models"
	"github.com/jjgarcianorway/anna/pkg/probe"
	"github.com/jjgarcianorway/anna/pkg/transcript"
	"github.com/jjgarcianorway/anna/pkg/translator"
)

// stubRunner serves canned probe results and counts spawns per id.
type stubRunner struct {
	mu      sync.Mutex
	results map[models.ProbeID]models.ProbeResult
	spawns  map[models.ProbeID]int
}

func newStubRunner(results map[models.ProbeID]models.ProbeResult) *stubRunner {
	return &stubRunner{results: results, spawns: make(map[models.ProbeID]int)}
}

func (s *stubRunner) Run(_ context.Context, desc probe.Descriptor, _ time.Time) models.ProbeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spawns[desc.ID]++
	if res, ok := s.results[desc.ID]; ok {
		res.ProbeID = desc.ID
		return res
	}
	return models.ProbeResult{
		ProbeID: desc.ID,
		Status:  models.ProbeStatusError,
		Stderr:  "no canned result",
	}
}

func (s *stubRunner) RunMany(ctx context.Context, descs []probe.Descriptor, deadline time.Time) []models.ProbeResult {
	out := make([]models.ProbeResult, len(descs))
	for i, d := range descs {
		out[i] = s.Run(ctx, d, deadline)
	}
	return out
}

func (s *stubRunner) spawnCount(id models.ProbeID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawns[id]
}

func newOrchestrator(runner *stubRunner, steps ...llm.FakeStep) *Orchestrator {
	registry := probe.NewRegistry()
	client := llm.NewFake(steps...)
	return New(
		registry,
		runner,
		translator.New(client, registry),
		agent.NewDrafter(client, registry),
		agent.NewAuditor(client, registry),
		nil,
	)
}

func ok(id models.ProbeID, stdout string) models.ProbeResult {
	return models.ProbeResult{ProbeID: id, Status: models.ProbeStatusOK, Stdout: stdout}
}

func approveStep() llm.FakeStep {
	return llm.FakeStep{Text: `{
		"verdict": "approve",
		"scores": {"evidence": 0.97, "reasoning": 0.95, "coverage": 0.96, "overall": 0.97}
	}`}
}

func draftStep(text string, probes ...string) llm.FakeStep {
	var cites []string
	for _, p := range probes {
		cites = append(cites, `{"probe_id":"`+p+`"}`)
	}
	return llm.FakeStep{Text: `{
		"needs_more_probes": false,
		"refused": false,
		"text": "` + text + `",
		"citations": [` + strings.Join(cites, ",") + `]
	}`}
}

func translatorStep(intent, domain string, confidence float64, probes ...string) llm.FakeStep {
	var ids []string
	for _, p := range probes {
		ids = append(ids, `"`+p+`"`)
	}
	conf := "0.9"
	switch confidence {
	case 0.92:
		conf = "0.92"
	case 0.3:
		conf = "0.3"
	}
	return llm.FakeStep{Text: `{
		"intent": "` + intent + `",
		"domain": "` + domain + `",
		"requested_probes": [` + strings.Join(ids, ",") + `],
		"evidence_required": true,
		"confidence": ` + conf + `
	}`}
}

const lscpuOut = "CPU(s): 32\nCore(s) per socket: 24\nSocket(s): 1\nThread(s) per core: 2"

func TestScenarioCoreCount(t *testing.T) {
	runner := newStubRunner(map[models.ProbeID]models.ProbeResult{
		"cpu.info": ok("cpu.info", lscpuOut),
	})
	o := newOrchestrator(runner,
		draftStep("You have 24 physical cores and 32 threads.", "cpu.info"),
		approveStep(),
	)

	answer, err := o.Handle(context.Background(), Request{ID: "r1", Question: "How many cores do I have?"})
	require.NoError(t, err)

	assert.Contains(t, answer.Answer, "24 physical cores and 32 threads")
	assert.Equal(t, models.BandGreen, answer.Reliability.Band)
	assert.Equal(t, StateEmitted, answer.FinalState)
	assert.Equal(t, 1, runner.spawnCount("cpu.info"))
	assertCitationsInStore(t, answer)
}

func TestScenarioPackageInstalled(t *testing.T) {
	runner := newStubRunner(map[models.ProbeID]models.ProbeResult{
		"pkg.query:nano":   ok("pkg.query:nano", "nano 7.2-1"),
		"path.lookup:nano": ok("path.lookup:nano", "/usr/bin/nano"),
	})
	o := newOrchestrator(runner,
		draftStep("Yes, nano 7.2-1 is installed at /usr/bin/nano.", "pkg.query:nano", "path.lookup:nano"),
		approveStep(),
	)

	answer, err := o.Handle(context.Background(), Request{ID: "r2", Question: "Do I have nano installed?"})
	require.NoError(t, err)

	assert.Contains(t, answer.Answer, "nano 7.2-1 is installed at /usr/bin/nano")
	assert.Equal(t, models.BandGreen, answer.Reliability.Band)
	assertCitationsInStore(t, answer)
}

func TestScenarioSoundCardViaTranslator(t *testing.T) {
	runner := newStubRunner(map[models.ProbeID]models.ProbeResult{
		"hw.audio": ok("hw.audio", "00:1f.3 Audio: Intel Corp. Alder Lake-P HDA"),
	})
	o := newOrchestrator(runner,
		translatorStep("question", "audio", 0.92),
		draftStep("Your sound card is an Intel Alder Lake-P HDA controller.", "hw.audio"),
		approveStep(),
	)

	answer, err := o.Handle(context.Background(), Request{ID: "r3", Question: "What's my sound card?"})
	require.NoError(t, err)

	assert.Contains(t, answer.Answer, "Intel Alder Lake-P HDA")
	assert.Equal(t, models.BandGreen, answer.Reliability.Band)
	assert.True(t, answer.Reliability.Inputs.SpineEnforced,
		"spine added hw.audio the translator did not request")
}

func TestScenarioSystemHealth(t *testing.T) {
	runner := newStubRunner(map[models.ProbeID]models.ProbeResult{
		"journal.errors": ok("journal.errors", ""),
		"units.failed":   ok("units.failed", "0 loaded units listed"),
	})
	o := newOrchestrator(runner,
		translatorStep("diagnose", "system", 0.9),
		draftStep("No failed services and no recent errors in the journal.", "journal.errors", "units.failed"),
		approveStep(),
	)

	answer, err := o.Handle(context.Background(), Request{ID: "r4", Question: "How is my computer doing?"})
	require.NoError(t, err)

	assert.Contains(t, answer.Answer, "No failed services and no recent errors")
	assert.Equal(t, models.BandGreen, answer.Reliability.Band)
}

func TestScenarioSensorTimeout(t *testing.T) {
	runner := newStubRunner(map[models.ProbeID]models.ProbeResult{
		"sensors": {ProbeID: "sensors", Status: models.ProbeStatusTimeout},
	})
	o := newOrchestrator(runner,
		translatorStep("question", "performance", 0.9, "sensors"),
		llm.FakeStep{Text: `{"refused": true, "text": ""}`},
	)

	answer, err := o.Handle(context.Background(), Request{ID: "r5", Question: "How hot is my CPU?"})
	require.NoError(t, err)

	assert.Contains(t, strings.ToLower(answer.Answer), "insufficient evidence")
	assert.Equal(t, models.BandRed, answer.Reliability.Band)
	assert.Equal(t, 1, answer.Reliability.Inputs.ProbesTimedOut)
	assert.Empty(t, answer.Citations)
}

func TestScenarioOffTopicRefusal(t *testing.T) {
	runner := newStubRunner(nil)
	o := newOrchestrator(runner,
		llm.FakeStep{Text: `{"intent":"unsupported","domain":"general","evidence_required":false,"confidence":0.95}`},
	)

	answer, err := o.Handle(context.Background(), Request{ID: "r6", Question: "Explain quantum chromodynamics."})
	require.NoError(t, err)

	assert.Contains(t, answer.Answer, "I can only answer about this system")
	assert.Equal(t, models.BandRed, answer.Reliability.Band)
	assert.Empty(t, runner.spawns, "no probes for off-topic questions")
}

func TestAuditorRequestForPresentProbesIsNoOp(t *testing.T) {
	runner := newStubRunner(map[models.ProbeID]models.ProbeResult{
		"cpu.info": ok("cpu.info", lscpuOut),
	})
	client := llm.NewFake(
		draftStep("You have 24 physical cores and 32 threads.", "cpu.info"),
		llm.FakeStep{Text: `{
			"verdict": "needs_more_probes",
			"scores": {"evidence": 0.5, "reasoning": 0.5, "coverage": 0.5, "overall": 0.5},
			"probe_requests": ["cpu.info"]
		}`},
	)
	registry := probe.NewRegistry()
	o := New(registry, runner, translator.New(client, registry),
		agent.NewDrafter(client, registry), agent.NewAuditor(client, registry), nil)

	answer, err := o.Handle(context.Background(), Request{ID: "r7", Question: "How many cores do I have?"})
	require.NoError(t, err)

	assert.Equal(t, 1, runner.spawnCount("cpu.info"),
		"a probe already in the store must not spawn again")
	assert.Len(t, client.Calls(), 2, "no extra LLM round for an already-present probe")
	assert.Contains(t, answer.Answer, "insufficient evidence",
		"an unsatisfiable audit demand ends in refusal")
}

func TestDrafterReprobeRoundRunsOnce(t *testing.T) {
	runner := newStubRunner(map[models.ProbeID]models.ProbeResult{
		"cpu.info": ok("cpu.info", lscpuOut),
		"mem.info": ok("mem.info", "MemTotal: 32000000 kB"),
	})
	o := newOrchestrator(runner,
		llm.FakeStep{Text: `{"needs_more_probes": true, "requested_probes": ["mem.info"], "text": ""}`},
		draftStep("You have 24 physical cores and 32 threads.", "cpu.info"),
		approveStep(),
	)

	answer, err := o.Handle(context.Background(), Request{ID: "r8", Question: "How many cores do I have?"})
	require.NoError(t, err)

	assert.Equal(t, models.BandGreen, answer.Reliability.Band)
	assert.Equal(t, 1, runner.spawnCount("mem.info"))
	assert.Equal(t, 1, runner.spawnCount("cpu.info"))
}

func TestIdenticalRunsProduceIdenticalScores(t *testing.T) {
	build := func() *Orchestrator {
		return newOrchestrator(
			newStubRunner(map[models.ProbeID]models.ProbeResult{
				"cpu.info": ok("cpu.info", lscpuOut),
			}),
			draftStep("You have 24 physical cores and 32 threads.", "cpu.info"),
			approveStep(),
		)
	}

	first, err := build().Handle(context.Background(), Request{ID: "a", Question: "How many cores do I have?"})
	require.NoError(t, err)
	second, err := build().Handle(context.Background(), Request{ID: "b", Question: "How many cores do I have?"})
	require.NoError(t, err)

	assert.Equal(t, first.Reliability.Score, second.Reliability.Score)
	assert.Equal(t, first.Reliability.Band, second.Reliability.Band)
	assert.Equal(t, first.Reliability.Penalties, second.Reliability.Penalties)
}

func TestEmptyQuestionIsInputError(t *testing.T) {
	o := newOrchestrator(newStubRunner(nil))
	_, err := o.Handle(context.Background(), Request{ID: "r", Question: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestOversizeQuestionIsRejected(t *testing.T) {
	o := newOrchestrator(newStubRunner(nil))
	_, err := o.Handle(context.Background(), Request{
		ID:       "r",
		Question: strings.Repeat("x", QuestionHardMax+1),
	})
	assert.ErrorIs(t, err, ErrQuestionTooLarge)
}

func TestLongQuestionGetsTruncationDiagnostic(t *testing.T) {
	runner := newStubRunner(map[models.ProbeID]models.ProbeResult{
		"cpu.info": ok("cpu.info", lscpuOut),
	})
	o := newOrchestrator(runner,
		draftStep("You have 24 physical cores and 32 threads.", "cpu.info"),
		approveStep(),
	)

	question := "How many cores do I have? " + strings.Repeat("x", QuestionCap)
	answer, err := o.Handle(context.Background(), Request{ID: "r", Question: question})
	require.NoError(t, err)

	var kinds []models.ResourceKind
	for _, d := range answer.Reliability.Inputs.Diagnostics {
		kinds = append(kinds, d.Kind)
	}
	assert.Contains(t, kinds, models.ResourcePromptChars)
}

func TestDeadlineExceededStillEmitsRedAnswer(t *testing.T) {
	runner := newStubRunner(map[models.ProbeID]models.ProbeResult{
		"cpu.info": ok("cpu.info", lscpuOut),
	})
	o := newOrchestrator(runner)

	answer, err := o.Handle(context.Background(), Request{
		ID:       "r",
		Question: "How many cores do I have?",
		Deadline: time.Nanosecond,
	})
	require.NoError(t, err, "deadline breaches emit, they do not error")

	assert.Equal(t, StateEmitted, answer.FinalState)
	assert.Equal(t, models.BandRed, answer.Reliability.Band)
	assert.True(t, answer.Reliability.Inputs.DeadlineExceeded)
}

func TestMetaQuestionAnswersWithoutProbesOrLLM(t *testing.T) {
	runner := newStubRunner(nil)
	o := newOrchestrator(runner)

	answer, err := o.Handle(context.Background(), Request{ID: "r", Question: "what can you do?"})
	require.NoError(t, err)

	assert.NotEmpty(t, answer.Answer)
	assert.Equal(t, models.BandGreen, answer.Reliability.Band)
	assert.Empty(t, runner.spawns)
}

func TestHumanTranscriptIsCleanAndDebugIsSuperset(t *testing.T) {
	runner := newStubRunner(map[models.ProbeID]models.ProbeResult{
		"hw.audio": ok("hw.audio", "00:1f.3 Audio: Intel Corp. Alder Lake-P HDA"),
	})
	o := newOrchestrator(runner,
		translatorStep("question", "audio", 0.92),
		draftStep("Your sound card is an Intel Alder Lake-P HDA controller.", "hw.audio"),
		approveStep(),
	)

	answer, err := o.Handle(context.Background(), Request{
		ID: "r", Question: "What's my sound card?", Mode: transcript.ModeDebug,
	})
	require.NoError(t, err)

	human := transcript.RenderHuman(answer.Events)
	violations := transcript.ValidateHumanLines(human)
	assert.Empty(t, violations, "human transcript leaked internals: %v", violations)

	debug := strings.Join(transcript.RenderDebug(answer.Events), "\n")
	assert.Contains(t, debug, "hw.audio")
	assert.True(t, transcript.HumanIsSubsetOfDebug(answer.Events))
}

// assertCitationsInStore checks that every published citation resolves
// to an evidence atom that was actually collected.
func assertCitationsInStore(t *testing.T, answer *Answer) {
	t.Helper()
	collected := make(map[models.ProbeID]bool)
	for _, ev := range answer.Events {
		if ev.Kind == transcript.KindEvidence {
			collected[ev.ProbeID] = true
		}
	}
	for _, c := range answer.Citations {
		assert.True(t, collected[c.ProbeID], "citation %s has no evidence atom", c.ProbeID)
	}
}
