// Package charger infers charger voltage and charging mode from battery
// power draw when no direct reading exists. The result is a lossy point
// estimate; callers must surface Confidence with the value.
package charger

import (
	"math"

	"codeberg.org/mutker/battmon/internal/battery"
	"codeberg.org/mutker/battmon/internal/profile"
)

// Charging mode labels.
const (
	ModeFast9V      = "Fast Charge (9V)"
	ModeFast12V     = "Fast Charge (12V)"
	ModeHighPower   = "High Power"
	ModeFast        = "Fast Charge"
	ModeStandard    = "Standard Charge"
	ModeSlow        = "Slow Charge"
	ModeUSBTrickle  = "USB Trickle"
	ModeTrickle     = "Trickle"
	ModeNotCharging = "Not Charging"
)

const (
	fastVoltageMV     = 9000
	standardVoltageMV = 5000
)

type Confidence int

const (
	NotApplicable Confidence = iota
	Low
	Medium
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "Low"
	case Medium:
		return "Medium"
	case High:
		return "High"
	default:
		return "NotApplicable"
	}
}

type Snap struct {
	MinMV, MaxMV, TargetMV int
}

// Bands are the power thresholds (watts) separating charging modes.
type Bands struct {
	HighPowerW       float64
	FastPowerW       float64
	StandardPowerW   float64
	SlowPowerW       float64
	Efficiency       float64
	ReferencePowerMW float64
	Snaps            []Snap
}

// FromProfile converts validated profile bands.
func FromProfile(p profile.ChargerBands) Bands {
	b := Bands{
		HighPowerW:       p.HighPowerW,
		FastPowerW:       p.FastPowerW,
		StandardPowerW:   p.StandardPowerW,
		SlowPowerW:       p.SlowPowerW,
		Efficiency:       p.Efficiency,
		ReferencePowerMW: p.ReferencePowerMW,
	}
	for _, s := range p.Snaps {
		b.Snaps = append(b.Snaps, Snap{MinMV: s.MinMV, MaxMV: s.MaxMV, TargetMV: s.TargetMV})
	}

	return b
}

func DefaultBands() Bands {
	return FromProfile(profile.DefaultProfile().Charger)
}

type Estimation struct {
	PowerWatts                 float64
	EstimatedVoltageMillivolts int
	ChargingMode               string
	Confidence                 Confidence
}

type Estimator struct {
	bands Bands
}

func NewEstimator(bands Bands) *Estimator {
	return &Estimator{bands: bands}
}

// Power returns |I| * V in watts.
func Power(currentMicroamps, voltageMillivolts int) float64 {
	return math.Abs(float64(currentMicroamps)) / 1e6 * float64(voltageMillivolts) / 1e3
}

// Estimate classifies the charging mode. Anything other than
// StatusCharging yields NotApplicable with a zero voltage.
func (e *Estimator) Estimate(currentMicroamps, voltageMillivolts int, status battery.Status, plugged battery.Plugged) Estimation {
	power := Power(currentMicroamps, voltageMillivolts)

	if status != battery.StatusCharging {
		return Estimation{
			PowerWatts:   power,
			ChargingMode: ModeNotCharging,
			Confidence:   NotApplicable,
		}
	}

	est := Estimation{PowerWatts: power}
	b := e.bands

	switch {
	case power > b.HighPowerW:
		est.EstimatedVoltageMillivolts, est.ChargingMode, est.Confidence = e.reverseSolve(currentMicroamps)
	case power > b.FastPowerW:
		est.EstimatedVoltageMillivolts = fastVoltageMV
		est.ChargingMode = ModeFast
		est.Confidence = Medium
	case power > b.StandardPowerW:
		est.EstimatedVoltageMillivolts = standardVoltageMV
		est.ChargingMode = ModeStandard
		est.Confidence = High
	case power > b.SlowPowerW:
		est.EstimatedVoltageMillivolts = standardVoltageMV
		est.ChargingMode = ModeSlow
		est.Confidence = High
	default:
		est.EstimatedVoltageMillivolts = standardVoltageMV
		est.ChargingMode = ModeTrickle
		if plugged == battery.PluggedUSB {
			est.ChargingMode = ModeUSBTrickle
		}
		est.Confidence = Low
	}

	return est
}

// reverseSolve estimates the charger-side current assuming the configured
// conversion efficiency and derives voltage from the reference power.
func (e *Estimator) reverseSolve(currentMicroamps int) (int, string, Confidence) {
	estCurrentMA := math.Abs(float64(currentMicroamps)) / 1000 / e.bands.Efficiency
	if estCurrentMA == 0 {
		return 0, ModeHighPower, Low
	}

	mv := int(math.Round(e.bands.ReferencePowerMW / estCurrentMA * 1000))

	for _, s := range e.bands.Snaps {
		if mv >= s.MinMV && mv <= s.MaxMV {
			return s.TargetMV, snapLabel(s.TargetMV), High
		}
	}

	return mv, ModeHighPower, Medium
}

func snapLabel(targetMV int) string {
	switch targetMV {
	case 9000:
		return ModeFast9V
	case 12000:
		return ModeFast12V
	default:
		return ModeHighPower
	}
}
