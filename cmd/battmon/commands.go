package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"codeberg.org/mutker/battmon/internal/avc"
	"codeberg.org/mutker/battmon/internal/capability"
	"codeberg.org/mutker/battmon/internal/config"
	"codeberg.org/mutker/battmon/internal/diagnostics"
	"codeberg.org/mutker/battmon/internal/errors"
	"codeberg.org/mutker/battmon/internal/sysfs"
	"codeberg.org/mutker/battmon/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// collect runs one telemetry pass. A fallback failure still yields a
// printable record.
func (a *app) collect(ctx context.Context) (telemetry.Record, error) {
	elevated := a.elevated(ctx)

	rec, err := a.collector.Collect(ctx)

	event := a.log.Info()
	if err != nil {
		event = a.log.Warn()
	}
	event.
		Str("source", rec.Source.String()).
		Bool("elevated", elevated).
		Int("attempts", len(rec.Attempts)).
		Err(err).
		Msg("Telemetry collected")

	return rec, err
}

func (a *app) read(ctx context.Context) error {
	rec, err := a.collect(ctx)

	if perr := a.printFields(rec.Fields()); perr != nil {
		return perr
	}

	if a.requests.Pending() {
		a.log.Info().
			Strs("paths", a.requests.Paths()).
			Msg("Some paths failed; run diagnose for details")
	}

	if err != nil {
		return errors.New().Wrap(errors.ErrCollect, err)
	}

	return nil
}

func (a *app) diagnose(ctx context.Context) error {
	if _, err := a.collect(ctx); err != nil {
		a.log.Debug().Err(err).Msg("Collect failed, reporting anyway")
	}

	builder := &diagnostics.Builder{
		Capability:    a.probe,
		Store:         a.tracker.Store(),
		Requests:      a.requests,
		Environment:   avc.EnvironmentProbe{Runner: a.runner},
		Audit:         a.auditSource(),
		Analyzer:      a.analyzer(),
		Root:          a.cfg.SysfsRoot,
		Resolver:      a.resolver,
		DiscoverFiles: discoverFiles,
		Logger:        a.log.With("diagnostics"),
	}
	report := builder.Build(ctx)

	switch config.Output(a.cfg.Output) {
	case config.OutputYAML:
		out, err := report.YAML()
		if err != nil {
			return err
		}
		_, err = a.out.Write(out)
		return err
	case config.OutputJSON:
		return a.printJSON(report)
	default:
		_, err := fmt.Fprint(a.out, report.String())
		return err
	}
}

func (a *app) suggest(ctx context.Context) error {
	denials, err := a.auditSource().Denials(ctx)
	if err != nil && len(denials) == 0 {
		return errors.New().Wrap(errors.ErrDiagnose, err)
	}

	relevant := a.analyzer().Filter(denials)
	a.log.Debug().
		Int("denials", len(denials)).
		Int("relevant", len(relevant)).
		Msg("Audit log analyzed")

	_, err = fmt.Fprint(a.out, avc.RenderPolicy(relevant))
	return err
}

func (a *app) write(ctx context.Context, metric, value string) error {
	errFactory := errors.New()

	spec, ok := a.resolver.Lookup(metric)
	if !ok {
		return errFactory.WithData(errors.ErrInvalidArgument, "unknown metric "+metric)
	}
	if spec.Privileged && !a.elevated(ctx) {
		return errFactory.WithData(capability.ErrNotPrivileged, metric)
	}

	for _, path := range spec.CandidatePaths {
		attempt := a.acquirer.Write(path, value)
		if attempt.Outcome == sysfs.Success {
			_, err := fmt.Fprintf(a.out, "%s=%s\n", sysfs.Relative(a.cfg.SysfsRoot, path), value)
			return err
		}
	}

	return errFactory.WithData(errors.ErrOperationFailed, "no writable candidate for "+metric)
}

func (a *app) printFields(fields map[string]string) error {
	switch config.Output(a.cfg.Output) {
	case config.OutputJSON:
		return a.printJSON(fields)
	case config.OutputYAML:
		out, err := yaml.Marshal(fields)
		if err != nil {
			return err
		}
		_, err = a.out.Write(out)
		return err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := fmt.Fprintf(a.out, "%s=%s\n", k, fields[k]); err != nil {
			return err
		}
	}

	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
