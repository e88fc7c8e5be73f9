package charger_test

import (
	"testing"

	"codeberg.org/mutker/battmon/internal/battery"
	"codeberg.org/mutker/battmon/internal/charger"
	"codeberg.org/mutker/battmon/internal/profile"
	"github.com/stretchr/testify/assert"
)

func TestEstimateNotChargingIgnoresPower(t *testing.T) {
	est := charger.NewEstimator(charger.DefaultBands())

	for _, status := range []battery.Status{
		battery.StatusNotCharging,
		battery.StatusDischarging,
		battery.StatusFull,
		battery.StatusUnknown,
	} {
		got := est.Estimate(4_000_000, 10_000, status, battery.PluggedAC)
		assert.Equal(t, charger.NotApplicable, got.Confidence, status.String())
		assert.Zero(t, got.EstimatedVoltageMillivolts, status.String())
		assert.Equal(t, charger.ModeNotCharging, got.ChargingMode)
		assert.InDelta(t, 40.0, got.PowerWatts, 0.001)
	}
}

func TestEstimateHighPowerSnaps(t *testing.T) {
	est := charger.NewEstimator(charger.DefaultBands())

	got := est.Estimate(4_000_000, 10_000, battery.StatusCharging, battery.PluggedAC)
	assert.InDelta(t, 40.0, got.PowerWatts, 0.001)
	assert.Equal(t, 9000, got.EstimatedVoltageMillivolts)
	assert.Equal(t, charger.High, got.Confidence)
	assert.Equal(t, charger.ModeFast9V, got.ChargingMode)

	got = est.Estimate(-3_187_500, 12_549, battery.StatusCharging, battery.PluggedAC)
	assert.Greater(t, got.PowerWatts, 35.0)
	assert.Equal(t, 12000, got.EstimatedVoltageMillivolts)
	assert.Equal(t, charger.High, got.Confidence)
	assert.Equal(t, charger.ModeFast12V, got.ChargingMode)
}

func TestEstimateHighPowerOutsideSnapIsMedium(t *testing.T) {
	est := charger.NewEstimator(charger.DefaultBands())

	got := est.Estimate(2_000_000, 20_000, battery.StatusCharging, battery.PluggedAC)
	assert.InDelta(t, 40.0, got.PowerWatts, 0.001)
	assert.InDelta(t, 19125, got.EstimatedVoltageMillivolts, 1)
	assert.Equal(t, charger.Medium, got.Confidence)
	assert.Equal(t, charger.ModeHighPower, got.ChargingMode)
}

func TestEstimateBands(t *testing.T) {
	est := charger.NewEstimator(charger.DefaultBands())

	cases := []struct {
		name       string
		current    int
		voltage    int
		plugged    battery.Plugged
		mv         int
		mode       string
		confidence charger.Confidence
	}{
		{"boundary 35W is fast", 7_000_000, 5000, battery.PluggedAC, 9000, charger.ModeFast, charger.Medium},
		{"20W", 2_000_000, 10_000, battery.PluggedAC, 9000, charger.ModeFast, charger.Medium},
		{"10W", 2_000_000, 5000, battery.PluggedAC, 5000, charger.ModeStandard, charger.High},
		{"5W", 1_000_000, 5000, battery.PluggedUSB, 5000, charger.ModeSlow, charger.High},
		{"2W usb", 500_000, 4000, battery.PluggedUSB, 5000, charger.ModeUSBTrickle, charger.Low},
		{"2W ac", 500_000, 4000, battery.PluggedAC, 5000, charger.ModeTrickle, charger.Low},
		{"zero draw", 0, 4000, battery.PluggedNone, 5000, charger.ModeTrickle, charger.Low},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := est.Estimate(tc.current, tc.voltage, battery.StatusCharging, tc.plugged)
			assert.Equal(t, tc.mv, got.EstimatedVoltageMillivolts)
			assert.Equal(t, tc.mode, got.ChargingMode)
			assert.Equal(t, tc.confidence, got.Confidence)
		})
	}
}

func TestEstimateUsesProfileBands(t *testing.T) {
	p := profile.DefaultProfile()
	p.Charger.HighPowerW = 60
	p.Charger.FastPowerW = 30

	est := charger.NewEstimator(charger.FromProfile(p.Charger))

	// 40W is below the raised high-power band.
	got := est.Estimate(4_000_000, 10_000, battery.StatusCharging, battery.PluggedAC)
	assert.Equal(t, charger.ModeFast, got.ChargingMode)
	assert.Equal(t, charger.Medium, got.Confidence)

	// 20W now falls into the standard band.
	got = est.Estimate(2_000_000, 10_000, battery.StatusCharging, battery.PluggedAC)
	assert.Equal(t, charger.ModeStandard, got.ChargingMode)
}

func TestConfidenceString(t *testing.T) {
	assert.Equal(t, "NotApplicable", charger.NotApplicable.String())
	assert.Equal(t, "High", charger.High.String())
}
