package telemetry

import (
	"context"
	"strconv"
	"time"

	"codeberg.org/mutker/battmon/internal/battery"
	"codeberg.org/mutker/battmon/internal/charger"
	"codeberg.org/mutker/battmon/internal/platform"
	"codeberg.org/mutker/battmon/internal/sysfs"
)

// Capability reports whether elevated access is currently available.
type Capability interface {
	Elevated() bool
}

// Fallback is the platform battery-status reader used when sysfs has no
// usable capacity.
type Fallback interface {
	Read(ctx context.Context) (platform.Reading, error)
}

type Status = battery.Status

type Source int

const (
	SourceSysfs Source = iota
	SourceOSAPI
	SourceEstimated
)

func (s Source) String() string {
	switch s {
	case SourceSysfs:
		return "Sysfs"
	case SourceOSAPI:
		return "OSAPI"
	case SourceEstimated:
		return "Estimated"
	default:
		return "Unknown"
	}
}

// Record is one point-in-time telemetry snapshot. Integer fields hold zero
// when the metric was unavailable; Missing names those metrics so a zero
// reading is never mistaken for a real one.
type Record struct {
	CapacityPercent          int
	Status                   Status
	VoltageMillivolts        int
	CurrentMicroamps         int
	TemperatureDeciCelsius   int
	ChargerVoltageMillivolts *int
	Plugged                  battery.Plugged

	// Source is where the battery fields came from: Sysfs or OSAPI.
	Source Source
	// ChargerSource is Sysfs or Estimated; only meaningful when
	// ChargerVoltageMillivolts is set.
	ChargerSource Source
	Charger       *charger.Estimation

	Missing     map[string]bool
	Attempts    []sysfs.ReadAttempt
	CollectedAt time.Time
}

// Available reports whether metric produced a real value.
func (r Record) Available(metric string) bool {
	return !r.Missing[metric]
}

// Field keys of the flat mapping handed to presentation layers.
const (
	FieldCapacity          = "capacity"
	FieldStatus            = "status"
	FieldVoltage           = "voltage"
	FieldCurrent           = "current_now"
	FieldTemperature       = "temp"
	FieldChargerVoltage    = "charger_voltage"
	FieldSource            = "source"
	FieldChargerSource     = "charger_source"
	FieldChargingMode      = "charging_mode"
	FieldChargerConfidence = "charger_confidence"
	FieldPowerWatts        = "power_watts"
	FieldPlugged           = "plugged"
)

// Fields flattens the record. Unavailable metrics carry sysfs.NotAvailable.
func (r Record) Fields() map[string]string {
	f := map[string]string{
		FieldCapacity:       r.intField(sysfs.MetricCapacity, r.CapacityPercent),
		FieldStatus:         r.Status.String(),
		FieldVoltage:        r.intField(sysfs.MetricVoltage, r.VoltageMillivolts),
		FieldCurrent:        r.intField(sysfs.MetricCurrent, r.CurrentMicroamps),
		FieldTemperature:    r.intField(sysfs.MetricTemperature, r.TemperatureDeciCelsius),
		FieldChargerVoltage: sysfs.NotAvailable,
		FieldSource:         r.Source.String(),
		FieldPlugged:        r.Plugged.String(),
	}

	if r.ChargerVoltageMillivolts != nil {
		f[FieldChargerVoltage] = strconv.Itoa(*r.ChargerVoltageMillivolts)
		f[FieldChargerSource] = r.ChargerSource.String()
	}

	if r.Charger != nil {
		f[FieldChargingMode] = r.Charger.ChargingMode
		f[FieldChargerConfidence] = r.Charger.Confidence.String()
		f[FieldPowerWatts] = strconv.FormatFloat(r.Charger.PowerWatts, 'f', 2, 64)
	}

	return f
}

func (r Record) intField(metric string, v int) string {
	if r.Missing[metric] {
		return sysfs.NotAvailable
	}

	return strconv.Itoa(v)
}
