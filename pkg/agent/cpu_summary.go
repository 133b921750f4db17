package agent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jjgarcianorway/anna/pkg/probe"
)

// CPUSummary is the derived topology computed from the cpu.info probe.
// Injected into the auditor prompt so cores and threads cannot be
// confused.
type CPUSummary struct {
	LogicalCPUs    int
	CoresPerSocket int
	Sockets        int
	ThreadsPerCore int
	PhysicalCores  int
}

// CPUSummaryFrom derives the summary from the cpu.info evidence atom,
// when present and parseable.
func CPUSummaryFrom(store *probe.Store) (CPUSummary, bool) {
	res, ok := store.Get("cpu.info")
	if !ok || res.Stdout == "" {
		return CPUSummary{}, false
	}

	s := CPUSummary{}
	for _, line := range strings.Split(res.Stdout, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		switch strings.TrimSpace(key) {
		case "CPU(s)":
			s.LogicalCPUs = n
		case "Core(s) per socket":
			s.CoresPerSocket = n
		case "Socket(s)":
			s.Sockets = n
		case "Thread(s) per core":
			s.ThreadsPerCore = n
		}
	}
	if s.LogicalCPUs == 0 {
		return CPUSummary{}, false
	}
	if s.CoresPerSocket > 0 && s.Sockets > 0 {
		s.PhysicalCores = s.CoresPerSocket * s.Sockets
	}
	return s, true
}

// Block renders the summary for prompt injection.
func (s CPUSummary) Block() string {
	var b strings.Builder
	fmt.Fprintf(&b, "logical CPUs (threads): %d\n", s.LogicalCPUs)
	if s.PhysicalCores > 0 {
		fmt.Fprintf(&b, "physical cores: %d (%d per socket x %d sockets)\n",
			s.PhysicalCores, s.CoresPerSocket, s.Sockets)
	}
	if s.ThreadsPerCore > 0 {
		fmt.Fprintf(&b, "threads per core: %d\n", s.ThreadsPerCore)
	}
	return b.String()
}
