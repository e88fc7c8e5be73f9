package sysfs

import (
	"strconv"

	"codeberg.org/mutker/battmon/internal/errors"
)

const (
	DefaultMicroThreshold = 100_000
	DefaultMilliThreshold = 10_000
)

// Normalizer rescales raw readings by magnitude. This is a heuristic: the
// kernel exposes no units header, so a value above the threshold is
// assumed to be one SI prefix finer than the target unit. Thresholds are
// per device profile.
type Normalizer struct {
	MicroThreshold int64
	MilliThreshold int64
}

func DefaultNormalizer() Normalizer {
	return Normalizer{
		MicroThreshold: DefaultMicroThreshold,
		MilliThreshold: DefaultMilliThreshold,
	}
}

// Apply returns the normalized value and whether it was rescaled. A
// non-numeric raw value is returned unchanged together with a parse error.
func (n Normalizer) Apply(rule NormalizationRule, raw string) (string, bool, error) {
	if rule == RuleNone {
		return raw, false, nil
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return raw, false, errors.New().Wrap(ErrParseValue, err)
	}

	var threshold, divisor int64
	switch rule {
	case RuleMicroToMilli:
		threshold, divisor = n.MicroThreshold, 1000
	case RuleMilliToDeci:
		threshold, divisor = n.MilliThreshold, 100
	default:
		return raw, false, nil
	}

	if abs64(v) <= threshold {
		return raw, false, nil
	}

	return strconv.FormatInt(v/divisor, 10), true, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}

	return v
}
