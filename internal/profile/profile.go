// Package profile loads per-device calibration: unit-normalization
// thresholds, charger power bands and candidate path overrides.
package profile

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"codeberg.org/mutker/battmon/internal/errors"
	"github.com/BurntSushi/toml"
)

const (
	defaultMicroThreshold = 100_000
	defaultMilliThreshold = 10_000

	defaultHighPowerW       = 35
	defaultFastPowerW       = 15
	defaultStandardPowerW   = 8
	defaultSlowPowerW       = 3
	defaultEfficiency       = 0.85
	defaultReferencePowerMW = 45_000
)

type Profile struct {
	Name          string              `toml:"name"`
	Normalization Normalization       `toml:"normalization"`
	Charger       ChargerBands        `toml:"charger"`
	Paths         map[string][]string `toml:"paths"`
}

// Normalization holds the magnitude thresholds above which raw values are
// assumed to be one SI prefix finer than the target unit.
type Normalization struct {
	MicroThreshold int64 `toml:"micro_threshold"`
	MilliThreshold int64 `toml:"milli_threshold"`
}

// ChargerBands are the power thresholds (watts) used to classify a
// charging mode. They are calibrated against one reference device.
type ChargerBands struct {
	HighPowerW       float64    `toml:"high_power_w"`
	FastPowerW       float64    `toml:"fast_power_w"`
	StandardPowerW   float64    `toml:"standard_power_w"`
	SlowPowerW       float64    `toml:"slow_power_w"`
	Efficiency       float64    `toml:"efficiency"`
	ReferencePowerMW float64    `toml:"reference_power_mw"`
	Snaps            []SnapBand `toml:"snap"`
}

// SnapBand snaps an estimated voltage inside [MinMV, MaxMV] to TargetMV.
type SnapBand struct {
	MinMV    int `toml:"min_mv"`
	MaxMV    int `toml:"max_mv"`
	TargetMV int `toml:"target_mv"`
}

func DefaultProfile() *Profile {
	return &Profile{
		Name: "reference",
		Normalization: Normalization{
			MicroThreshold: defaultMicroThreshold,
			MilliThreshold: defaultMilliThreshold,
		},
		Charger: ChargerBands{
			HighPowerW:       defaultHighPowerW,
			FastPowerW:       defaultFastPowerW,
			StandardPowerW:   defaultStandardPowerW,
			SlowPowerW:       defaultSlowPowerW,
			Efficiency:       defaultEfficiency,
			ReferencePowerMW: defaultReferencePowerMW,
			Snaps: []SnapBand{
				{MinMV: 8000, MaxMV: 10000, TargetMV: 9000},
				{MinMV: 11000, MaxMV: 13000, TargetMV: 12000},
			},
		},
	}
}

// Load reads a TOML profile on top of DefaultProfile. An empty path
// returns the defaults.
func Load(path string) (*Profile, error) {
	errFactory := errors.New()

	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errFactory.Wrap(ErrReadProfile, err)
	}

	md, err := toml.Decode(string(data), p)
	if err != nil {
		return nil, errFactory.Wrap(ErrDecodeProfile, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, errFactory.WithData(ErrUnknownKeys, strings.Join(keys, ", "))
	}

	return NormalizeAndValidate(p)
}

func NormalizeAndValidate(p *Profile) (*Profile, error) {
	if p == nil {
		return nil, invalid("profile must not be nil")
	}

	sanitized := *p
	sanitized.Name = strings.TrimSpace(sanitized.Name)
	if sanitized.Name == "" {
		sanitized.Name = "custom"
	}

	if sanitized.Normalization.MicroThreshold <= 0 {
		return nil, invalid("normalization.micro_threshold must be positive, got %d", sanitized.Normalization.MicroThreshold)
	}
	if sanitized.Normalization.MilliThreshold <= 0 {
		return nil, invalid("normalization.milli_threshold must be positive, got %d", sanitized.Normalization.MilliThreshold)
	}

	c := sanitized.Charger
	if !(c.HighPowerW > c.FastPowerW && c.FastPowerW > c.StandardPowerW &&
		c.StandardPowerW > c.SlowPowerW && c.SlowPowerW > 0) {
		return nil, invalid("charger power bands must be strictly descending and positive: %v/%v/%v/%v",
			c.HighPowerW, c.FastPowerW, c.StandardPowerW, c.SlowPowerW)
	}
	if c.Efficiency <= 0 || c.Efficiency > 1 {
		return nil, invalid("charger.efficiency must be in (0, 1], got %v", c.Efficiency)
	}
	if c.ReferencePowerMW <= 0 {
		return nil, invalid("charger.reference_power_mw must be positive, got %v", c.ReferencePowerMW)
	}
	for i, s := range c.Snaps {
		if s.MinMV > s.MaxMV || s.TargetMV < s.MinMV || s.TargetMV > s.MaxMV {
			return nil, invalid("charger.snap[%d]: target %d outside [%d, %d]", i, s.TargetMV, s.MinMV, s.MaxMV)
		}
	}

	if len(sanitized.Paths) > 0 {
		paths := make(map[string][]string, len(sanitized.Paths))
		for metric, list := range sanitized.Paths {
			cleaned := make([]string, 0, len(list))
			for _, candidate := range list {
				candidate = strings.TrimSpace(candidate)
				if candidate == "" {
					continue
				}
				cleaned = append(cleaned, candidate)
			}
			if len(cleaned) == 0 {
				return nil, invalid("paths.%s must list at least one candidate", metric)
			}
			paths[metric] = cleaned
		}
		sanitized.Paths = paths
	}

	return &sanitized, nil
}

func invalid(format string, args ...any) error {
	return errors.New().WithData(ErrInvalidProfile, fmt.Sprintf(format, args...))
}
