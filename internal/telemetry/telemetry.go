// Package telemetry orchestrates sysfs acquisition, the platform fallback
// and charger estimation into one telemetry record.
package telemetry

import (
	"context"
	"strconv"
	"time"

	"codeberg.org/mutker/battmon/internal/battery"
	"codeberg.org/mutker/battmon/internal/charger"
	"codeberg.org/mutker/battmon/internal/errors"
	"codeberg.org/mutker/battmon/internal/logger"
	"codeberg.org/mutker/battmon/internal/platform"
	"codeberg.org/mutker/battmon/internal/sysfs"
)

type Options struct {
	Resolver   *sysfs.Resolver
	Acquirer   *sysfs.Acquirer
	Capability Capability
	Fallback   Fallback
	Estimator  *charger.Estimator
	Logger     logger.Logger
	Now        func() time.Time
}

type Collector struct {
	resolver   *sysfs.Resolver
	acquirer   *sysfs.Acquirer
	capability Capability
	fallback   Fallback
	estimator  *charger.Estimator
	logger     logger.Logger
	now        func() time.Time
}

type denied struct{}

func (denied) Elevated() bool { return false }

func NewCollector(opts Options) (*Collector, error) {
	errFactory := errors.New()

	if opts.Resolver == nil || opts.Acquirer == nil {
		return nil, errFactory.WithData(ErrInvalidCollector, "resolver and acquirer are required")
	}

	c := &Collector{
		resolver:   opts.Resolver,
		acquirer:   opts.Acquirer,
		capability: opts.Capability,
		fallback:   opts.Fallback,
		estimator:  opts.Estimator,
		logger:     opts.Logger,
		now:        opts.Now,
	}

	if c.capability == nil {
		c.capability = denied{}
	}
	if c.estimator == nil {
		c.estimator = charger.NewEstimator(charger.DefaultBands())
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}
	if c.now == nil {
		c.now = time.Now
	}

	return c, nil
}

// Collect always returns a structurally valid Record. The only error is a
// failed platform fallback, in which case every battery field is missing.
func (c *Collector) Collect(ctx context.Context) (Record, error) {
	rec := Record{
		Source:      SourceSysfs,
		Missing:     make(map[string]bool),
		CollectedAt: c.now(),
	}

	capacity, ok := c.acquireInt(&rec, sysfs.MetricCapacity)
	if !ok || capacity <= 0 {
		c.logger.Debug().
			Str("metric", sysfs.MetricCapacity).
			Msg("No usable sysfs capacity, using platform fallback")

		if err := c.collectFallback(ctx, &rec); err != nil {
			return rec, err
		}
	} else {
		rec.CapacityPercent = capacity
		c.collectSysfs(&rec)
	}

	c.collectCharger(&rec)

	c.logger.Debug().
		Str("source", rec.Source.String()).
		Int("capacity", rec.CapacityPercent).
		Str("status", rec.Status.String()).
		Int("attempts", len(rec.Attempts)).
		Msg("Telemetry collected")

	return rec, nil
}

func (c *Collector) collectSysfs(rec *Record) {
	if res, ok := c.acquire(rec, sysfs.MetricStatus); ok {
		rec.Status = battery.ParseStatus(res.Value)
	} else {
		rec.Missing[sysfs.MetricStatus] = true
	}

	rec.VoltageMillivolts, _ = c.acquireInt(rec, sysfs.MetricVoltage)
	rec.CurrentMicroamps, _ = c.acquireInt(rec, sysfs.MetricCurrent)
	rec.TemperatureDeciCelsius, _ = c.acquireInt(rec, sysfs.MetricTemperature)
	rec.Plugged = c.plugged(rec)
}

func (c *Collector) collectFallback(ctx context.Context, rec *Record) error {
	rec.Source = SourceOSAPI

	// Only capacity is known to be unusable; the fallback replaces all
	// battery fields.
	for _, m := range []string{sysfs.MetricCapacity, sysfs.MetricStatus, sysfs.MetricVoltage, sysfs.MetricCurrent, sysfs.MetricTemperature} {
		rec.Missing[m] = true
	}

	if c.fallback == nil {
		return errors.New().WithData(platform.ErrStatusUnavailable, "no platform fallback configured")
	}

	reading, err := c.fallback.Read(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Platform battery status unavailable")
		return err
	}

	rec.CapacityPercent = reading.CapacityPercent
	rec.Status = reading.Status
	rec.VoltageMillivolts = reading.VoltageMillivolts
	rec.TemperatureDeciCelsius = reading.TemperatureDeciCelsius
	rec.CurrentMicroamps = reading.CurrentMicroamps
	rec.Plugged = reading.Plugged

	rec.Missing[sysfs.MetricCapacity] = reading.CapacityPercent <= 0
	rec.Missing[sysfs.MetricStatus] = reading.Status == battery.StatusUnknown
	rec.Missing[sysfs.MetricVoltage] = reading.VoltageMillivolts == 0
	rec.Missing[sysfs.MetricCurrent] = !reading.HasCurrent
	rec.Missing[sysfs.MetricTemperature] = !reading.HasTemperature

	return nil
}

func (c *Collector) collectCharger(rec *Record) {
	if c.capability.Elevated() {
		if mv, ok := c.acquireInt(rec, sysfs.MetricChargerVoltage); ok && mv > 0 {
			rec.ChargerVoltageMillivolts = &mv
			rec.ChargerSource = SourceSysfs
			return
		}
	}

	if !rec.Available(sysfs.MetricVoltage) || !rec.Available(sysfs.MetricCurrent) {
		return
	}

	est := c.estimator.Estimate(rec.CurrentMicroamps, rec.VoltageMillivolts, rec.Status, rec.Plugged)
	rec.Charger = &est

	if rec.Status == battery.StatusCharging && est.EstimatedVoltageMillivolts > 0 {
		mv := est.EstimatedVoltageMillivolts
		rec.ChargerVoltageMillivolts = &mv
		rec.ChargerSource = SourceEstimated
	}
}

func (c *Collector) plugged(rec *Record) battery.Plugged {
	for _, p := range []struct {
		metric string
		kind   battery.Plugged
	}{
		{sysfs.MetricPluggedAC, battery.PluggedAC},
		{sysfs.MetricPluggedUSB, battery.PluggedUSB},
		{sysfs.MetricPluggedWireless, battery.PluggedWireless},
	} {
		if _, known := c.resolver.Lookup(p.metric); !known {
			continue
		}
		if res, ok := c.acquire(rec, p.metric); ok && res.Value == "1" {
			return p.kind
		}
	}

	return battery.PluggedNone
}

func (c *Collector) acquire(rec *Record, metric string) (sysfs.Result, bool) {
	res := c.acquirer.Acquire(c.resolver.Resolve(metric))
	rec.Attempts = append(rec.Attempts, res.Attempts...)

	return res, res.OK
}

// acquireInt marks metric missing unless it yields an integer.
func (c *Collector) acquireInt(rec *Record, metric string) (int, bool) {
	res, ok := c.acquire(rec, metric)
	if !ok {
		rec.Missing[metric] = true
		return 0, false
	}

	v, err := strconv.Atoi(res.Value)
	if err != nil {
		c.logger.Debug().
			Str("metric", metric).
			Str("path", res.Path).
			Str("value", res.Value).
			Err(errors.New().Wrap(ErrInvalidValue, err)).
			Msg("Non-numeric value treated as unavailable")
		rec.Missing[metric] = true
		return 0, false
	}

	return v, true
}
