package sysfs

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"codeberg.org/mutker/battmon/internal/errors"
)

const DefaultRoot = "/sys"

// Metric names known to the resolver.
const (
	MetricCapacity        = "capacity"
	MetricStatus          = "status"
	MetricVoltage         = "voltage"
	MetricCurrent         = "current"
	MetricTemperature     = "temperature"
	MetricChargerVoltage  = "charger_voltage"
	MetricPluggedAC       = "plugged_ac"
	MetricPluggedUSB      = "plugged_usb"
	MetricPluggedWireless = "plugged_wireless"
)

// DefaultMetrics returns the built-in candidate lists, relative to the
// sysfs root.
func DefaultMetrics() []MetricSpec {
	return []MetricSpec{
		{
			Name: MetricCapacity,
			CandidatePaths: []string{
				"class/power_supply/battery/capacity",
				"class/power_supply/bms/capacity",
				"class/power_supply/BAT0/capacity",
			},
		},
		{
			Name: MetricStatus,
			CandidatePaths: []string{
				"class/power_supply/battery/status",
				"class/power_supply/bms/status",
				"class/power_supply/BAT0/status",
			},
		},
		{
			Name: MetricVoltage,
			CandidatePaths: []string{
				"devices/platform/charger/ADC_Charger_Voltage",
				"class/power_supply/battery/voltage_now",
				"class/power_supply/usb/voltage_now",
				"class/power_supply/battery/batt_vol",
				"class/power_supply/bms/voltage_now",
				"class/power_supply/BAT0/voltage_now",
			},
			Rule: RuleMicroToMilli,
		},
		{
			Name: MetricCurrent,
			CandidatePaths: []string{
				"class/power_supply/battery/current_now",
				"class/power_supply/bms/current_now",
				"class/power_supply/BAT0/current_now",
			},
		},
		{
			Name: MetricTemperature,
			CandidatePaths: []string{
				"class/power_supply/battery/temp",
				"class/power_supply/bms/temp",
				"class/thermal/thermal_zone0/temp",
			},
			Rule: RuleMilliToDeci,
		},
		{
			Name: MetricChargerVoltage,
			CandidatePaths: []string{
				"devices/platform/charger/ADC_Charger_Voltage",
				"class/power_supply/usb/voltage_now",
				"class/power_supply/charger/voltage_now",
				"class/power_supply/ac/voltage_now",
				"class/power_supply/qpnp-charger/voltage_now",
				"class/power_supply/max77705-charger/voltage_now",
				"class/power_supply/bq25890/voltage_now",
				"class/power_supply/bq2597x-master/voltage_now",
			},
			Rule:       RuleMicroToMilli,
			Privileged: true,
		},
		{
			Name:           MetricPluggedAC,
			CandidatePaths: []string{"class/power_supply/ac/online", "class/power_supply/AC/online"},
		},
		{
			Name:           MetricPluggedUSB,
			CandidatePaths: []string{"class/power_supply/usb/online"},
		},
		{
			Name:           MetricPluggedWireless,
			CandidatePaths: []string{"class/power_supply/wireless/online", "class/power_supply/wireless/present"},
		},
	}
}

// Resolver maps metric names to immutable MetricSpecs with absolute paths.
type Resolver struct {
	root  string
	specs map[string]MetricSpec
	known map[string]struct{}
}

// NewResolver joins every candidate to root and applies per-metric path
// overrides. Candidates that are already absolute are used verbatim.
func NewResolver(root string, metrics []MetricSpec, overrides map[string][]string) (*Resolver, error) {
	errFactory := errors.New()

	if root == "" {
		root = DefaultRoot
	}

	r := &Resolver{
		root:  root,
		specs: make(map[string]MetricSpec, len(metrics)),
		known: make(map[string]struct{}),
	}

	for _, m := range metrics {
		r.specs[m.Name] = m
	}

	for name, paths := range overrides {
		spec, ok := r.specs[name]
		if !ok {
			return nil, errFactory.WithData(ErrUnknownMetric, name)
		}
		spec.CandidatePaths = paths
		r.specs[name] = spec
	}

	for name, spec := range r.specs {
		abs := make([]string, len(spec.CandidatePaths))
		for i, p := range spec.CandidatePaths {
			abs[i] = r.join(p)
			r.known[abs[i]] = struct{}{}
		}
		spec.CandidatePaths = abs
		r.specs[name] = spec
	}

	return r, nil
}

func (r *Resolver) join(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}

	return filepath.Join(r.root, p)
}

// Root returns the sysfs root the resolver was built with.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns the spec for name. An unknown name is a programming
// error and panics.
func (r *Resolver) Resolve(name string) MetricSpec {
	spec, ok := r.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("sysfs: unknown metric %q", name))
	}

	return spec
}

// Lookup is Resolve without the panic.
func (r *Resolver) Lookup(name string) (MetricSpec, bool) {
	spec, ok := r.specs[name]
	if !ok {
		return MetricSpec{}, false
	}

	spec.CandidatePaths = append([]string(nil), spec.CandidatePaths...)

	return spec, true
}

// Metrics returns every spec sorted by name.
func (r *Resolver) Metrics() []MetricSpec {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]MetricSpec, 0, len(names))
	for _, name := range names {
		spec, _ := r.Lookup(name)
		out = append(out, spec)
	}

	return out
}

// Known reports whether path is one of the resolved candidates.
func (r *Resolver) Known(path string) bool {
	_, ok := r.known[r.join(strings.TrimSpace(path))]
	return ok
}
