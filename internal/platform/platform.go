// Package platform reads battery state from the host's official
// battery-status service when sysfs yields nothing usable.
package platform

import (
	"context"

	"codeberg.org/mutker/battmon/internal/battery"
	"codeberg.org/mutker/battmon/internal/errors"
	"codeberg.org/mutker/battmon/internal/logger"
)

const (
	ErrStatusUnavailable = errors.ErrorCode("platform_status_unavailable")
	ErrProviderFailed    = errors.ErrorCode("platform_provider_failed")
	ErrDecodeStatus      = errors.ErrorCode("platform_decode_status_failed")
)

// Snapshot is the last battery-status event broadcast by the platform.
type Snapshot struct {
	CapacityPercent        int
	Status                 battery.Status
	VoltageMillivolts      int
	TemperatureDeciCelsius int
	Plugged                battery.Plugged
	CurrentMicroamps       int
	HasCurrent             bool
	HasTemperature         bool
}

// Provider is one host battery-status service.
type Provider interface {
	Name() string
	// Capacity and CurrentNow query the live battery-status service.
	Capacity(ctx context.Context) (int, error)
	CurrentNow(ctx context.Context) (int, error)
	// LastSnapshot returns nil without error when the platform has never
	// broadcast a status event.
	LastSnapshot(ctx context.Context) (*Snapshot, error)
}

// Reading is what the fallback contributes to a telemetry record.
type Reading struct {
	CapacityPercent        int
	Status                 battery.Status
	VoltageMillivolts      int
	TemperatureDeciCelsius int
	Plugged                battery.Plugged
	CurrentMicroamps       int
	HasCurrent             bool
	HasTemperature         bool
	Provider               string
}

type FallbackReader struct {
	provider Provider
	logger   logger.Logger
}

func NewFallbackReader(provider Provider, log logger.Logger) *FallbackReader {
	if log == nil {
		log = logger.Nop()
	}

	return &FallbackReader{provider: provider, logger: log}
}

// Read takes capacity and current from the live service and the remaining
// fields from the last snapshot. A missing snapshot is terminal and
// reported as ErrStatusUnavailable.
func (r *FallbackReader) Read(ctx context.Context) (Reading, error) {
	errFactory := errors.New()

	if r.provider == nil {
		return Reading{}, errFactory.WithData(ErrStatusUnavailable, "no platform provider configured")
	}

	snap, err := r.provider.LastSnapshot(ctx)
	if err != nil {
		return Reading{}, errFactory.Wrap(ErrStatusUnavailable, err)
	}
	if snap == nil {
		return Reading{}, errFactory.WithData(ErrStatusUnavailable, r.provider.Name())
	}

	reading := Reading{
		CapacityPercent:        snap.CapacityPercent,
		Status:                 snap.Status,
		VoltageMillivolts:      snap.VoltageMillivolts,
		TemperatureDeciCelsius: snap.TemperatureDeciCelsius,
		Plugged:                snap.Plugged,
		CurrentMicroamps:       snap.CurrentMicroamps,
		HasCurrent:             snap.HasCurrent,
		HasTemperature:         snap.HasTemperature,
		Provider:               r.provider.Name(),
	}

	if capacity, err := r.provider.Capacity(ctx); err == nil && capacity > 0 {
		reading.CapacityPercent = capacity
	} else if err != nil {
		r.logger.Debug().Err(err).Str("provider", reading.Provider).Msg("Capacity query failed, using snapshot")
	}

	if current, err := r.provider.CurrentNow(ctx); err == nil {
		reading.CurrentMicroamps = current
		reading.HasCurrent = true
	} else {
		r.logger.Debug().Err(err).Str("provider", reading.Provider).Msg("Current query failed, using snapshot")
	}

	return reading, nil
}

// StaticProvider serves a fixed snapshot, e.g. one handed over by a host
// process.
type StaticProvider struct {
	Snapshot *Snapshot
}

func (StaticProvider) Name() string { return "static" }

func (p StaticProvider) Capacity(context.Context) (int, error) {
	if p.Snapshot == nil {
		return 0, errors.New().New(ErrStatusUnavailable)
	}

	return p.Snapshot.CapacityPercent, nil
}

func (p StaticProvider) CurrentNow(context.Context) (int, error) {
	if p.Snapshot == nil || !p.Snapshot.HasCurrent {
		return 0, errors.New().New(ErrStatusUnavailable)
	}

	return p.Snapshot.CurrentMicroamps, nil
}

func (p StaticProvider) LastSnapshot(context.Context) (*Snapshot, error) {
	if p.Snapshot == nil {
		return nil, nil
	}
	s := *p.Snapshot

	return &s, nil
}
