// Package probe runs read-only system probes and holds their results in
// the per-request evidence store. The descriptor set is closed at
// startup; downstream callers cannot register probes at runtime.
package probe

import (
	"fmt"
	"sort"
	"time"

	"github.com/jjgarcianorway/anna/pkg/models"
)

// CostClass buckets probes by how expensive they are to run. The
// executor refuses expensive probes unless the descriptor carries an
// explicit opt-in.
type CostClass string

const (
	CostCheap     CostClass = "cheap"
	CostMedium    CostClass = "medium"
	CostExpensive CostClass = "expensive"
)

// Budget returns the per-probe timeout for the cost class.
func (c CostClass) Budget() time.Duration {
	switch c {
	case CostCheap:
		return 2 * time.Second
	case CostMedium:
		return 8 * time.Second
	default:
		return 30 * time.Second
	}
}

// EvidenceKind names the kind of evidence a probe produces.
type EvidenceKind string

const (
	EvidenceCPU      EvidenceKind = "cpu"
	EvidenceMemory   EvidenceKind = "memory"
	EvidenceDisk     EvidenceKind = "disk"
	EvidencePackages EvidenceKind = "packages"
	EvidenceAudio    EvidenceKind = "audio"
	EvidenceGraphics EvidenceKind = "graphics"
	EvidenceNetwork  EvidenceKind = "network"
	EvidenceThermal  EvidenceKind = "thermal"
	EvidenceJournal  EvidenceKind = "journal"
	EvidenceServices EvidenceKind = "services"
	EvidenceSystem   EvidenceKind = "system"
)

// Descriptor describes one runnable probe. Command is an argv vector
// executed without shell interpretation; File is a pseudo-file read for
// sysfs/procfs probes. Exactly one of the two is set.
type Descriptor struct {
	ID    models.ProbeID
	Tag   string
	Cost  CostClass
	Kinds []EvidenceKind

	Command []string
	File    string

	// ExpensiveOptIn must be set by the caller for expensive probes;
	// the executor skips them otherwise.
	ExpensiveOptIn bool

	// Cacheable marks probes whose output is stable across requests
	// (hardware identity); the fact store may serve them.
	Cacheable bool
}

// CommandString renders the invocation for the probe result record.
func (d Descriptor) CommandString() string {
	if d.File != "" {
		return "read " + d.File
	}
	if len(d.Command) == 0 {
		return ""
	}
	s := d.Command[0]
	for _, a := range d.Command[1:] {
		s += " " + a
	}
	return s
}

// Registry is the closed set of known probe descriptors, built once at
// startup and immutable afterwards.
type Registry struct {
	static map[string]Descriptor
	parame map[string]func(param string) Descriptor
}

// NewRegistry builds the built-in descriptor table.
func NewRegistry() *Registry {
	r := &Registry{
		static: make(map[string]Descriptor),
		parame: make(map[string]func(string) Descriptor),
	}
	for _, d := range builtinDescriptors() {
		r.static[string(d.ID)] = d
	}
	r.parame["pkg.query"] = func(name string) Descriptor {
		return Descriptor{
			ID:      models.ProbeID("pkg.query").WithParam(name),
			Tag:     "package query",
			Cost:    CostCheap,
			Kinds:   []EvidenceKind{EvidencePackages},
			Command: []string{"pacman", "-Q", name},
		}
	}
	r.parame["path.lookup"] = func(name string) Descriptor {
		return Descriptor{
			ID:      models.ProbeID("path.lookup").WithParam(name),
			Tag:     "executable lookup",
			Cost:    CostCheap,
			Kinds:   []EvidenceKind{EvidencePackages},
			Command: []string{"which", name},
		}
	}
	r.parame["svc.status"] = func(name string) Descriptor {
		return Descriptor{
			ID:      models.ProbeID("svc.status").WithParam(name),
			Tag:     "service status",
			Cost:    CostCheap,
			Kinds:   []EvidenceKind{EvidenceServices},
			Command: []string{"systemctl", "status", "--no-pager", "--lines=0", name},
		}
	}
	return r
}

// Known reports whether the id resolves to a descriptor.
func (r *Registry) Known(id models.ProbeID) bool {
	_, err := r.Get(id)
	return err == nil
}

// Get resolves a probe id (parameterized or not) to its descriptor.
func (r *Registry) Get(id models.ProbeID) (Descriptor, error) {
	if d, ok := r.static[string(id)]; ok {
		return d, nil
	}
	if ctor, ok := r.parame[id.Base()]; ok {
		if id.Param() == "" {
			return Descriptor{}, fmt.Errorf("probe %q requires a parameter", id)
		}
		return ctor(id.Param()), nil
	}
	return Descriptor{}, fmt.Errorf("unknown probe %q", id)
}

// IDs returns every static probe id plus the base id of each
// parameterized probe (e.g. "pkg.query"), sorted, for prompt
// construction.
func (r *Registry) IDs() []models.ProbeID {
	ids := make([]models.ProbeID, 0, len(r.static)+len(r.parame))
	for id := range r.static {
		ids = append(ids, models.ProbeID(id))
	}
	for base := range r.parame {
		ids = append(ids, models.ProbeID(base))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func builtinDescriptors() []Descriptor {
	return []Descriptor{
		{
			ID:        "cpu.info",
			Tag:       "CPU topology and model",
			Cost:      CostCheap,
			Kinds:     []EvidenceKind{EvidenceCPU},
			Command:   []string{"lscpu"},
			Cacheable: true,
		},
		{
			ID:    "mem.info",
			Tag:   "memory totals and availability",
			Cost:  CostCheap,
			Kinds: []EvidenceKind{EvidenceMemory},
			File:  "/proc/meminfo",
		},
		{
			ID:      "disk.blocks",
			Tag:     "block devices and filesystems",
			Cost:    CostCheap,
			Kinds:   []EvidenceKind{EvidenceDisk},
			Command: []string{"lsblk", "-o", "NAME,SIZE,TYPE,FSTYPE,MOUNTPOINT"},
		},
		{
			ID:      "disk.usage",
			Tag:     "filesystem usage",
			Cost:    CostCheap,
			Kinds:   []EvidenceKind{EvidenceDisk},
			Command: []string{"df", "-h", "--output=source,size,used,avail,pcent,target"},
		},
		{
			ID:        "hw.audio",
			Tag:       "audio hardware",
			Cost:      CostCheap,
			Kinds:     []EvidenceKind{EvidenceAudio},
			Command:   []string{"lspci", "-nn", "-d", "::0403"},
			Cacheable: true,
		},
		{
			ID:        "hw.gpu",
			Tag:       "graphics hardware",
			Cost:      CostCheap,
			Kinds:     []EvidenceKind{EvidenceGraphics},
			Command:   []string{"lspci", "-nn", "-d", "::0300"},
			Cacheable: true,
		},
		{
			ID:      "sensors",
			Tag:     "thermal sensors",
			Cost:    CostMedium,
			Kinds:   []EvidenceKind{EvidenceThermal},
			Command: []string{"sensors"},
		},
		{
			ID:      "journal.errors",
			Tag:     "recent journal errors",
			Cost:    CostMedium,
			Kinds:   []EvidenceKind{EvidenceJournal},
			Command: []string{"journalctl", "-p", "err", "-b", "--no-pager", "-n", "50"},
		},
		{
			ID:      "journal.warnings",
			Tag:     "recent journal warnings",
			Cost:    CostMedium,
			Kinds:   []EvidenceKind{EvidenceJournal},
			Command: []string{"journalctl", "-p", "warning", "-b", "--no-pager", "-n", "50"},
		},
		{
			ID:      "units.failed",
			Tag:     "failed systemd units",
			Cost:    CostCheap,
			Kinds:   []EvidenceKind{EvidenceServices},
			Command: []string{"systemctl", "--failed", "--no-pager", "--no-legend"},
		},
		{
			ID:      "net.links",
			Tag:     "network interfaces",
			Cost:    CostCheap,
			Kinds:   []EvidenceKind{EvidenceNetwork},
			Command: []string{"ip", "-brief", "addr"},
		},
		{
			ID:      "net.routes",
			Tag:     "routing table",
			Cost:    CostCheap,
			Kinds:   []EvidenceKind{EvidenceNetwork},
			Command: []string{"ip", "route"},
		},
		{
			ID:      "pkg.updates",
			Tag:     "pending package updates",
			Cost:    CostMedium,
			Kinds:   []EvidenceKind{EvidencePackages},
			Command: []string{"checkupdates"},
		},
		{
			ID:        "kernel.info",
			Tag:       "kernel release",
			Cost:      CostCheap,
			Kinds:     []EvidenceKind{EvidenceSystem},
			Command:   []string{"uname", "-a"},
			Cacheable: true,
		},
		{
			ID:    "os.release",
			Tag:   "distribution identity",
			Cost:  CostCheap,
			Kinds: []EvidenceKind{EvidenceSystem},
			File:  "/etc/os-release",
		},
		{
			ID:    "sys.uptime",
			Tag:   "uptime and load",
			Cost:  CostCheap,
			Kinds: []EvidenceKind{EvidenceSystem},
			File:  "/proc/loadavg",
		},
	}
}
