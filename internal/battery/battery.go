// Package battery holds the status and plug-type vocabulary shared by the
// sysfs, platform and estimation layers.
package battery

import "strings"

type Status int

const (
	StatusUnknown Status = iota
	StatusCharging
	StatusDischarging
	StatusFull
	StatusNotCharging
)

func (s Status) String() string {
	switch s {
	case StatusCharging:
		return "Charging"
	case StatusDischarging:
		return "Discharging"
	case StatusFull:
		return "Full"
	case StatusNotCharging:
		return "Not charging"
	default:
		return "Unknown"
	}
}

// ParseStatus maps the text of a power_supply status attribute.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "charging":
		return StatusCharging
	case "discharging":
		return StatusDischarging
	case "full":
		return StatusFull
	case "not charging", "not_charging", "notcharging":
		return StatusNotCharging
	default:
		return StatusUnknown
	}
}

// StatusFromCode maps Android BatteryManager status codes.
func StatusFromCode(code int) Status {
	switch code {
	case 2:
		return StatusCharging
	case 3:
		return StatusDischarging
	case 4:
		return StatusNotCharging
	case 5:
		return StatusFull
	default:
		return StatusUnknown
	}
}

type Plugged int

const (
	PluggedNone Plugged = iota
	PluggedAC
	PluggedUSB
	PluggedWireless
)

func (p Plugged) String() string {
	switch p {
	case PluggedAC:
		return "AC"
	case PluggedUSB:
		return "USB"
	case PluggedWireless:
		return "Wireless"
	default:
		return "None"
	}
}

// PluggedFromCode maps Android BatteryManager plugged codes.
func PluggedFromCode(code int) Plugged {
	switch code {
	case 1:
		return PluggedAC
	case 2:
		return PluggedUSB
	case 4:
		return PluggedWireless
	default:
		return PluggedNone
	}
}

// ParsePlugged accepts the names used by termux-battery-status
// (PLUGGED_AC, PLUGGED_USB, ...) as well as the bare type names.
func ParsePlugged(raw string) Plugged {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "PLUGGED_")

	switch s {
	case "AC":
		return PluggedAC
	case "USB":
		return PluggedUSB
	case "WIRELESS":
		return PluggedWireless
	default:
		return PluggedNone
	}
}
