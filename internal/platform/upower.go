package platform

import (
	"context"
	"math"

	"codeberg.org/mutker/battmon/internal/battery"
	"codeberg.org/mutker/battmon/internal/errors"
	"github.com/godbus/dbus/v5"
)

const (
	upowerName          = "org.freedesktop.UPower"
	upowerPath          = "/org/freedesktop/UPower"
	upowerDisplayDevice = "/org/freedesktop/UPower/devices/DisplayDevice"
	upowerIface         = "org.freedesktop.UPower"
	upowerDeviceIface   = "org.freedesktop.UPower.Device"
	propertiesGet       = "org.freedesktop.DBus.Properties.Get"
)

// UPower device states.
const (
	upowerCharging         = 1
	upowerDischarging      = 2
	upowerEmpty            = 3
	upowerFullyCharged     = 4
	upowerPendingCharge    = 5
	upowerPendingDischarge = 6
)

// PropertyReader reads one D-Bus property.
type PropertyReader interface {
	Property(ctx context.Context, iface, name string) (dbus.Variant, error)
}

type busProperties struct {
	obj dbus.BusObject
}

func (b busProperties) Property(ctx context.Context, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := b.obj.CallWithContext(ctx, propertiesGet, 0, iface, name).Store(&v)

	return v, err
}

// UPowerProvider reads the UPower DisplayDevice, the composite battery
// desktop Linux exposes on the system bus.
type UPowerProvider struct {
	conn   *dbus.Conn
	device PropertyReader
	daemon PropertyReader
}

func NewUPowerProvider() (*UPowerProvider, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.New().Wrap(ErrProviderFailed, err)
	}

	return &UPowerProvider{
		conn:   conn,
		device: busProperties{obj: conn.Object(upowerName, upowerDisplayDevice)},
		daemon: busProperties{obj: conn.Object(upowerName, upowerPath)},
	}, nil
}

// NewUPowerProviderWithProperties builds a provider over arbitrary
// property readers.
func NewUPowerProviderWithProperties(device, daemon PropertyReader) *UPowerProvider {
	return &UPowerProvider{device: device, daemon: daemon}
}

func (p *UPowerProvider) Name() string { return "upower" }

func (p *UPowerProvider) Capacity(ctx context.Context) (int, error) {
	pct, err := p.floatProp(ctx, "Percentage")
	if err != nil {
		return 0, err
	}

	return int(math.Round(pct)), nil
}

// CurrentNow derives current from EnergyRate (W) and Voltage (V); UPower
// publishes no current property.
func (p *UPowerProvider) CurrentNow(ctx context.Context) (int, error) {
	rate, err := p.floatProp(ctx, "EnergyRate")
	if err != nil {
		return 0, err
	}
	volts, err := p.floatProp(ctx, "Voltage")
	if err != nil {
		return 0, err
	}
	if volts <= 0 {
		return 0, errors.New().WithData(ErrProviderFailed, "voltage not reported")
	}

	current := int(math.Round(rate / volts * 1e6))

	state, err := p.uintProp(ctx, "State")
	if err == nil && state == upowerDischarging {
		current = -current
	}

	return current, nil
}

func (p *UPowerProvider) LastSnapshot(ctx context.Context) (*Snapshot, error) {
	present, err := p.device.Property(ctx, upowerDeviceIface, "IsPresent")
	if err != nil {
		return nil, errors.New().Wrap(ErrProviderFailed, err)
	}
	if ok, _ := present.Value().(bool); !ok {
		return nil, nil
	}

	snap := &Snapshot{}

	if pct, err := p.floatProp(ctx, "Percentage"); err == nil {
		snap.CapacityPercent = int(math.Round(pct))
	}
	if state, err := p.uintProp(ctx, "State"); err == nil {
		snap.Status = upowerStatus(state)
	}
	if volts, err := p.floatProp(ctx, "Voltage"); err == nil {
		snap.VoltageMillivolts = int(math.Round(volts * 1000))
	}
	// UPower reports 0 when the device has no temperature sensor.
	if temp, err := p.floatProp(ctx, "Temperature"); err == nil && temp != 0 {
		snap.TemperatureDeciCelsius = int(math.Round(temp * 10))
		snap.HasTemperature = true
	}
	if current, err := p.CurrentNow(ctx); err == nil {
		snap.CurrentMicroamps = current
		snap.HasCurrent = true
	}

	snap.Plugged = battery.PluggedNone
	if p.daemon != nil {
		if v, err := p.daemon.Property(ctx, upowerIface, "OnBattery"); err == nil {
			if onBattery, ok := v.Value().(bool); ok && !onBattery {
				snap.Plugged = battery.PluggedAC
			}
		}
	}

	return snap, nil
}

// Close releases the shared system bus connection reference.
func (p *UPowerProvider) Close() error {
	if p.conn == nil {
		return nil
	}

	return p.conn.Close()
}

func (p *UPowerProvider) floatProp(ctx context.Context, name string) (float64, error) {
	v, err := p.device.Property(ctx, upowerDeviceIface, name)
	if err != nil {
		return 0, errors.New().Wrap(ErrProviderFailed, err)
	}

	f, ok := v.Value().(float64)
	if !ok {
		return 0, errors.New().WithData(ErrDecodeStatus, name+": "+v.Signature().String())
	}

	return f, nil
}

func (p *UPowerProvider) uintProp(ctx context.Context, name string) (uint32, error) {
	v, err := p.device.Property(ctx, upowerDeviceIface, name)
	if err != nil {
		return 0, errors.New().Wrap(ErrProviderFailed, err)
	}

	u, ok := v.Value().(uint32)
	if !ok {
		return 0, errors.New().WithData(ErrDecodeStatus, name+": "+v.Signature().String())
	}

	return u, nil
}

func upowerStatus(state uint32) battery.Status {
	switch state {
	case upowerCharging:
		return battery.StatusCharging
	case upowerDischarging, upowerEmpty:
		return battery.StatusDischarging
	case upowerFullyCharged:
		return battery.StatusFull
	case upowerPendingCharge, upowerPendingDischarge:
		return battery.StatusNotCharging
	default:
		return battery.StatusUnknown
	}
}
