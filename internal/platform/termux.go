package platform

import (
	"context"
	"encoding/json"
	"math"
	"sync"

	"codeberg.org/mutker/battmon/internal/battery"
	"codeberg.org/mutker/battmon/internal/command"
	"codeberg.org/mutker/battmon/internal/errors"
)

// TermuxCommand is the Termux:API helper that prints battery status JSON.
const TermuxCommand = "termux-battery-status"

// termuxStatus is the JSON printed by termux-battery-status.
type termuxStatus struct {
	Health      string   `json:"health"`
	Percentage  int      `json:"percentage"`
	Plugged     string   `json:"plugged"`
	Status      string   `json:"status"`
	Temperature *float64 `json:"temperature"`
	Current     *int     `json:"current"`
	Voltage     *float64 `json:"voltage"`
}

// TermuxProvider queries the Android BatteryManager through the Termux:API
// helper. One command run serves all three Provider calls of a Read.
type TermuxProvider struct {
	runner command.Runner

	mu     sync.Mutex
	cached *Snapshot
}

func NewTermuxProvider(runner command.Runner) *TermuxProvider {
	if runner == nil {
		runner = command.ExecRunner{}
	}

	return &TermuxProvider{runner: runner}
}

func (p *TermuxProvider) Name() string { return "termux" }

func (p *TermuxProvider) LastSnapshot(ctx context.Context) (*Snapshot, error) {
	snap, err := p.query(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cached = snap
	p.mu.Unlock()

	s := *snap

	return &s, nil
}

func (p *TermuxProvider) Capacity(ctx context.Context) (int, error) {
	snap, err := p.current(ctx)
	if err != nil {
		return 0, err
	}

	return snap.CapacityPercent, nil
}

func (p *TermuxProvider) CurrentNow(ctx context.Context) (int, error) {
	snap, err := p.current(ctx)
	if err != nil {
		return 0, err
	}
	if !snap.HasCurrent {
		return 0, errors.New().WithData(ErrProviderFailed, "termux reported no current")
	}

	return snap.CurrentMicroamps, nil
}

func (p *TermuxProvider) current(ctx context.Context) (*Snapshot, error) {
	p.mu.Lock()
	cached := p.cached
	p.mu.Unlock()

	if cached != nil {
		return cached, nil
	}

	return p.query(ctx)
}

func (p *TermuxProvider) query(ctx context.Context) (*Snapshot, error) {
	out, err := p.runner.Output(ctx, TermuxCommand)
	if err != nil {
		return nil, errors.New().Wrap(ErrProviderFailed, err)
	}

	return decodeTermux(out)
}

func decodeTermux(data []byte) (*Snapshot, error) {
	var st termuxStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.New().Wrap(ErrDecodeStatus, err)
	}

	snap := &Snapshot{
		CapacityPercent: st.Percentage,
		Status:          battery.ParseStatus(st.Status),
		Plugged:         battery.ParsePlugged(st.Plugged),
	}
	if st.Temperature != nil {
		snap.TemperatureDeciCelsius = int(math.Round(*st.Temperature * 10))
		snap.HasTemperature = true
	}
	if st.Current != nil {
		snap.CurrentMicroamps = *st.Current
		snap.HasCurrent = true
	}
	if st.Voltage != nil {
		snap.VoltageMillivolts = int(math.Round(*st.Voltage))
	}

	return snap, nil
}
