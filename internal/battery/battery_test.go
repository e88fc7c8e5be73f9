package battery_test

import (
	"testing"

	"codeberg.org/mutker/battmon/internal/battery"
	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]battery.Status{
		"Charging\n":   battery.StatusCharging,
		"Discharging":  battery.StatusDischarging,
		"Full":         battery.StatusFull,
		"Not charging": battery.StatusNotCharging,
		"":             battery.StatusUnknown,
		"0":            battery.StatusUnknown,
	}

	for raw, want := range cases {
		assert.Equal(t, want, battery.ParseStatus(raw), raw)
	}
}

func TestCodes(t *testing.T) {
	assert.Equal(t, battery.StatusCharging, battery.StatusFromCode(2))
	assert.Equal(t, battery.StatusNotCharging, battery.StatusFromCode(4))
	assert.Equal(t, battery.StatusUnknown, battery.StatusFromCode(1))

	assert.Equal(t, battery.PluggedUSB, battery.PluggedFromCode(2))
	assert.Equal(t, battery.PluggedWireless, battery.PluggedFromCode(4))
	assert.Equal(t, battery.PluggedNone, battery.PluggedFromCode(0))

	assert.Equal(t, battery.PluggedAC, battery.ParsePlugged("PLUGGED_AC"))
	assert.Equal(t, battery.PluggedNone, battery.ParsePlugged("UNPLUGGED"))
	assert.Equal(t, "Not charging", battery.StatusNotCharging.String())
}
