package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjgarcianorway/anna/pkg/models"
)

func TestRouteDeterministicMatches(t *testing.T) {
	tests := []struct {
		question string
		domain   models.Domain
		probes   []models.ProbeID
	}{
		{"How many cores do I have?", models.DomainHardware, []models.ProbeID{"cpu.info"}},
		{"how much RAM do i have", models.DomainPerformance, []models.ProbeID{"mem.info"}},
		{"why is my disk full", models.DomainStorage, []models.ProbeID{"disk.usage", "disk.blocks"}},
		{"what kernel am I running", models.DomainSystem, []models.ProbeID{"kernel.info", "os.release"}},
		{"is my wifi working", models.DomainNetwork, []models.ProbeID{"net.links", "net.routes"}},
		{"any updates available?", models.DomainPackages, []models.ProbeID{"pkg.updates"}},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			res := Route(tt.question)
			require.True(t, res.Matched, "expected deterministic match")
			assert.Equal(t, tt.domain, res.Ticket.Domain)
			assert.Equal(t, tt.probes, res.Ticket.RequestedProbes)
			assert.Equal(t, 1.0, res.Ticket.Confidence)
			assert.True(t, res.Ticket.EvidenceRequired)
		})
	}
}

func TestRouteInstalledQueryExtractsPackage(t *testing.T) {
	res := Route("Do I have nano installed?")
	require.True(t, res.Matched)
	assert.Equal(t, models.DomainPackages, res.Ticket.Domain)
	assert.Equal(t, []string{"nano"}, res.Ticket.Entities)
	assert.Equal(t,
		[]models.ProbeID{"pkg.query:nano", "path.lookup:nano"},
		res.Ticket.RequestedProbes)
}

func TestRouteInstalledQueryAlternatePhrasing(t *testing.T) {
	res := Route("is htop installed")
	require.True(t, res.Matched)
	assert.Equal(t, []string{"htop"}, res.Ticket.Entities)
}

func TestRouteMetaIntents(t *testing.T) {
	for _, q := range []string{"what can you do?", "show me your stats"} {
		res := Route(q)
		require.True(t, res.Matched, q)
		assert.Equal(t, models.IntentMeta, res.Ticket.Intent)
		assert.False(t, res.DebugToggle)
	}
}

func TestRouteDebugToggle(t *testing.T) {
	res := Route("enable debug mode")
	require.True(t, res.Matched)
	assert.True(t, res.DebugToggle)
}

func TestRouteNoMatchFallsThrough(t *testing.T) {
	for _, q := range []string{
		"What's my sound card?",
		"Explain quantum chromodynamics.",
		"how hot is my cpu",
	} {
		res := Route(q)
		assert.False(t, res.Matched, q)
	}
}

func TestRouteCaseAndWhitespaceNormalisation(t *testing.T) {
	a := Route("HOW   MANY CORES do I have")
	b := Route("how many cores do i have")
	require.True(t, a.Matched)
	assert.Equal(t, b.Ticket.Domain, a.Ticket.Domain)
	assert.Equal(t, b.Ticket.RequestedProbes, a.Ticket.RequestedProbes)
}
