package main

import (
	"context"
	"io"
	"os"
	"os/exec"

	"codeberg.org/mutker/battmon/internal/access"
	"codeberg.org/mutker/battmon/internal/avc"
	"codeberg.org/mutker/battmon/internal/capability"
	"codeberg.org/mutker/battmon/internal/charger"
	"codeberg.org/mutker/battmon/internal/command"
	"codeberg.org/mutker/battmon/internal/config"
	"codeberg.org/mutker/battmon/internal/diagnostics"
	"codeberg.org/mutker/battmon/internal/errors"
	"codeberg.org/mutker/battmon/internal/journal"
	"codeberg.org/mutker/battmon/internal/logger"
	"codeberg.org/mutker/battmon/internal/platform"
	"codeberg.org/mutker/battmon/internal/profile"
	"codeberg.org/mutker/battmon/internal/sysfs"
	"codeberg.org/mutker/battmon/internal/telemetry"
)

// discoverFiles are the attribute names diagnose searches for outside the
// candidate lists.
var discoverFiles = []string{"capacity", "voltage_now", "current_now", "temp", "online"}

type app struct {
	cfg       *config.Config
	log       logger.Logger
	out       io.Writer
	runner    command.Runner
	profile   *profile.Profile
	resolver  *sysfs.Resolver
	acquirer  *sysfs.Acquirer
	tracker   *access.Tracker
	requests  *diagnostics.Requests
	probe     *capability.Probe
	journal   journal.Journal
	collector *telemetry.Collector
	closers   []func() error
}

func newApp(cfg *config.Config, log logger.Logger, out io.Writer) (*app, error) {
	errFactory := errors.New()

	a := &app{cfg: cfg, log: log, out: out, runner: command.ExecRunner{}}

	prof, err := profile.Load(cfg.Profile)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err).WithMessage("Failed to load device profile")
	}
	a.profile = prof

	a.resolver, err = sysfs.NewResolver(cfg.SysfsRoot, sysfs.DefaultMetrics(), prof.Paths)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	a.journal, err = journal.New(journal.Config{
		DBPath:          cfg.JournalDB,
		Enabled:         cfg.Journal,
		BatchSize:       journal.DefaultConfig().BatchSize,
		FlushInterval:   journal.DefaultConfig().FlushInterval,
		BackupOnMigrate: true,
	}, log.With("journal"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.journal.Close)

	a.requests = diagnostics.NewRequests()
	a.tracker = access.NewTracker(access.NewMemoryStore(), log.With("access"), a.requests)
	a.tracker.AddSink(a.journal)

	normalizer := sysfs.Normalizer{
		MicroThreshold: prof.Normalization.MicroThreshold,
		MilliThreshold: prof.Normalization.MilliThreshold,
	}
	a.acquirer = sysfs.NewAcquirer(sysfs.NewFileReader(), normalizer, a.tracker, log.With("sysfs"))

	a.probe = a.newProbe()

	var fallback telemetry.Fallback
	if provider := a.newProvider(); provider != nil {
		fallback = platform.NewFallbackReader(provider, log.With("platform"))
	}

	a.collector, err = telemetry.NewCollector(telemetry.Options{
		Resolver:   a.resolver,
		Acquirer:   a.acquirer,
		Capability: a.probe,
		Fallback:   fallback,
		Estimator:  charger.NewEstimator(charger.FromProfile(prof.Charger)),
		Logger:     log.With("telemetry"),
	})
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	log.Debug().
		Str("profile", prof.Name).
		Str("capability", cfg.Capability).
		Str("platform_provider", cfg.PlatformProvider).
		Bool("journal", cfg.Journal).
		Msg("Application initialized")

	return a, nil
}

func (a *app) newProbe() *capability.Probe {
	switch config.CapabilityMode(a.cfg.Capability) {
	case config.CapabilityGranted:
		return capability.Resolved(capability.Granted)
	case config.CapabilityDenied:
		return capability.Resolved(capability.Denied)
	}

	checker := capability.AnyChecker{
		capability.EUIDChecker{},
		capability.DomainChecker{Domain: a.cfg.PrivilegedDomain},
		capability.ShellChecker{Runner: a.runner, Command: a.cfg.ProbeCommand},
	}

	return capability.NewProbe(checker, a.cfg.ProbeTimeout, a.log.With("capability"))
}

// newProvider returns nil when no platform service is configured or none
// is reachable in auto mode.
func (a *app) newProvider() platform.Provider {
	log := a.log.With("platform")

	upower := func() platform.Provider {
		p, err := platform.NewUPowerProvider()
		if err != nil {
			log.Debug().Err(err).Msg("UPower unavailable")
			return nil
		}
		a.closers = append(a.closers, p.Close)
		return p
	}

	switch config.PlatformProvider(a.cfg.PlatformProvider) {
	case config.ProviderNone:
		return nil
	case config.ProviderUPower:
		return upower()
	case config.ProviderTermux:
		return platform.NewTermuxProvider(a.runner)
	}

	if _, err := exec.LookPath(platform.TermuxCommand); err == nil {
		return platform.NewTermuxProvider(a.runner)
	}

	return upower()
}

// elevated starts the probe if needed and waits for it to settle.
func (a *app) elevated(ctx context.Context) bool {
	a.probe.Start(ctx, nil)

	state, err := a.probe.Wait(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("Capability probe interrupted")
		return false
	}

	return state == capability.Granted
}

func (a *app) auditSource() avc.Source {
	var src avc.Source

	switch a.cfg.AuditSource {
	case config.AuditFromCommand:
		name, args := command.Split(a.cfg.AuditCommand)
		src = avc.CommandSource{Runner: a.runner, Name: name, Args: args}
	case config.AuditFromStdin:
		src = avc.ReaderSource{R: os.Stdin}
	default:
		src = avc.FileSource{Path: a.cfg.AuditSource}
	}

	return journal.RecordingSource{Source: src, Journal: a.journal, Logger: a.log.With("journal")}
}

func (a *app) analyzer() avc.Analyzer {
	return avc.Analyzer{Domain: a.cfg.PrivilegedDomain, Package: a.cfg.PackageName}
}

func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}

	return first
}
