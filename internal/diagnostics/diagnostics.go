// Package diagnostics assembles the access-diagnostics report: capability
// state, per-path access results, the SELinux environment and relevant
// AVC denials with advisory policy.
package diagnostics

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"codeberg.org/mutker/battmon/internal/access"
	"codeberg.org/mutker/battmon/internal/avc"
	"codeberg.org/mutker/battmon/internal/capability"
	"codeberg.org/mutker/battmon/internal/logger"
	"codeberg.org/mutker/battmon/internal/sysfs"
)

// Requests collects the paths for which the tracker requested
// diagnostics. It implements access.Hook.
type Requests struct {
	mu    sync.Mutex
	paths []string
	seen  map[string]struct{}
}

func NewRequests() *Requests {
	return &Requests{seen: make(map[string]struct{})}
}

func (r *Requests) OnEvent(ev access.Event) {
	if ev.Kind != access.EventDiagnosticRequested {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[ev.Path]; ok {
		return
	}
	r.seen[ev.Path] = struct{}{}
	r.paths = append(r.paths, ev.Path)
}

// Paths returns requested paths in the order they first failed.
func (r *Requests) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.paths...)
}

func (r *Requests) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.paths) > 0
}

// CapabilityState is satisfied by *capability.Probe.
type CapabilityState interface {
	State() capability.State
	Cause() error
}

// EnvironmentDetector is satisfied by avc.EnvironmentProbe.
type EnvironmentDetector interface {
	Detect(ctx context.Context) avc.Environment
}

type Builder struct {
	Capability  CapabilityState
	Store       access.Store
	Requests    *Requests
	Environment EnvironmentDetector
	Audit       avc.Source
	Analyzer    avc.Analyzer
	// Root is trimmed from paths in the report.
	Root string
	// Resolver and DiscoverFiles enable the scan for attribute files under
	// Root that no candidate list mentions.
	Resolver      *sysfs.Resolver
	DiscoverFiles []string
	Logger        logger.Logger
	Now           func() time.Time
}

// DiscoveryDirs are searched, relative to Root, for unlisted nodes.
var DiscoveryDirs = []string{"class/power_supply", "devices/platform"}

type Report struct {
	GeneratedAt      time.Time       `yaml:"generated_at" json:"generated_at"`
	Capability       string          `yaml:"capability" json:"capability"`
	CapabilityDetail string          `yaml:"capability_detail,omitempty" json:"capability_detail,omitempty"`
	SELinux          avc.Environment `yaml:"selinux" json:"selinux"`
	Requested        []string        `yaml:"diagnostics_requested,omitempty" json:"diagnostics_requested,omitempty"`
	Paths            []PathResult    `yaml:"paths" json:"paths"`
	Unlisted         []string        `yaml:"unlisted_nodes,omitempty" json:"unlisted_nodes,omitempty"`
	Denials          []DenialEntry   `yaml:"denials" json:"denials"`
	Policy           string          `yaml:"policy,omitempty" json:"policy,omitempty"`
	AuditError       string          `yaml:"audit_error,omitempty" json:"audit_error,omitempty"`
}

type PathResult struct {
	Path        string        `yaml:"path" json:"path"`
	Successes   int           `yaml:"successes" json:"successes"`
	Failures    int           `yaml:"failures" json:"failures"`
	LastOutcome string        `yaml:"last_outcome" json:"last_outcome"`
	Detail      string        `yaml:"detail,omitempty" json:"detail,omitempty"`
	MeanLatency time.Duration `yaml:"mean_latency" json:"mean_latency"`
}

func (p PathResult) OK() bool {
	return p.LastOutcome == sysfs.Success.String()
}

type DenialEntry struct {
	SourceContext string `yaml:"scontext" json:"scontext"`
	TargetContext string `yaml:"tcontext" json:"tcontext"`
	TargetClass   string `yaml:"tclass" json:"tclass"`
	Permission    string `yaml:"permission,omitempty" json:"permission,omitempty"`
	Summary       string `yaml:"summary" json:"summary"`
}

// Build never fails: unreadable audit sources are reported in AuditError.
func (b *Builder) Build(ctx context.Context) Report {
	log := b.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := b.Now
	if now == nil {
		now = time.Now
	}

	report := Report{
		GeneratedAt: now(),
		Capability:  capability.Unknown.String(),
	}

	if b.Capability != nil {
		report.Capability = b.Capability.State().String()
		if cause := b.Capability.Cause(); cause != nil {
			report.CapabilityDetail = cause.Error()
		}
	}

	if b.Environment != nil {
		report.SELinux = b.Environment.Detect(ctx)
	}

	if b.Requests != nil {
		for _, p := range b.Requests.Paths() {
			report.Requested = append(report.Requested, sysfs.Relative(b.Root, p))
		}
	}

	if b.Store != nil {
		for _, s := range b.Store.Snapshot() {
			report.Paths = append(report.Paths, PathResult{
				Path:        sysfs.Relative(b.Root, s.Path),
				Successes:   s.SuccessCount,
				Failures:    s.FailureCount,
				LastOutcome: s.LastOutcome.String(),
				Detail:      s.LastDetail,
				MeanLatency: s.MeanLatency(),
			})
		}
		sort.SliceStable(report.Paths, func(i, j int) bool {
			return report.Paths[i].Path < report.Paths[j].Path
		})
	}

	report.Unlisted = b.unlisted(log)

	if b.Audit != nil {
		denials, err := b.Audit.Denials(ctx)
		if err != nil {
			report.AuditError = err.Error()
			log.Warn().Err(err).Msg("Audit log unavailable")
		}

		relevant := b.Analyzer.Filter(denials)
		for _, d := range relevant {
			report.Denials = append(report.Denials, DenialEntry{
				SourceContext: d.SourceContext,
				TargetContext: d.TargetContext,
				TargetClass:   d.TargetClass,
				Permission:    d.Permission,
				Summary:       d.Summary(),
			})
		}
		if len(relevant) > 0 {
			report.Policy = avc.RenderPolicy(relevant)
		}
	}

	log.Debug().
		Str("capability", report.Capability).
		Int("paths", len(report.Paths)).
		Int("denials", len(report.Denials)).
		Int("unlisted", len(report.Unlisted)).
		Msg("Diagnostics report built")

	return report
}

// unlisted returns discovered attribute files that are not candidates of
// any metric, as hints for a device profile.
func (b *Builder) unlisted(log logger.Logger) []string {
	if b.Resolver == nil || len(b.DiscoverFiles) == 0 {
		return nil
	}

	var out []string
	for _, dir := range DiscoveryDirs {
		base := filepath.Join(b.Root, dir)
		for _, name := range b.DiscoverFiles {
			found, err := sysfs.Discover(base, name, sysfs.DefaultDiscoveryDepth)
			if err != nil {
				log.Debug().Err(err).Str("dir", base).Msg("Skipping discovery")
				break
			}
			for _, path := range found {
				if !b.Resolver.Known(path) {
					out = append(out, sysfs.Relative(b.Root, path))
				}
			}
		}
	}
	sort.Strings(out)

	return out
}
