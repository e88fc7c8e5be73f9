package access_test

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/battmon/internal/access"
	"codeberg.org/mutker/battmon/internal/logger"
	"codeberg.org/mutker/battmon/internal/sysfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attempt(path string, outcome sysfs.Outcome) sysfs.ReadAttempt {
	return sysfs.ReadAttempt{
		Path:      path,
		Operation: sysfs.OpRead,
		Outcome:   outcome,
		Latency:   time.Millisecond,
	}
}

func TestTransitionFirstFailureEmitsOnce(t *testing.T) {
	var s access.Stats

	s, events := access.Transition(s, attempt("/sys/a", sysfs.PermissionDenied))
	require.Len(t, events, 1)
	assert.Equal(t, access.EventDiagnosticRequested, events[0].Kind)
	assert.Equal(t, "/sys/a", events[0].Path)
	assert.Equal(t, 1, s.FailureCount)

	s, events = access.Transition(s, attempt("/sys/a", sysfs.NotFound))
	assert.Empty(t, events)
	assert.Equal(t, 2, s.FailureCount)
}

func TestTransitionSuccessDoesNotEmit(t *testing.T) {
	s, events := access.Transition(access.Stats{}, attempt("/sys/a", sysfs.Success))
	assert.Empty(t, events)
	assert.Equal(t, 1, s.SuccessCount)
	assert.Equal(t, time.Millisecond, s.TotalLatency)

	// A path that succeeded before still requests diagnostics on its first failure.
	_, events = access.Transition(s, attempt("/sys/a", sysfs.IOError))
	assert.Len(t, events, 1)
}

func TestTransitionDoesNotMutateInput(t *testing.T) {
	before := access.Stats{Path: "/sys/a", FailureCount: 2}
	_, _ = access.Transition(before, attempt("/sys/a", sysfs.Empty))

	assert.Equal(t, 2, before.FailureCount)
}

func TestStatsMeanLatency(t *testing.T) {
	assert.Zero(t, access.Stats{}.MeanLatency())

	s := access.Stats{SuccessCount: 1, FailureCount: 3, TotalLatency: 8 * time.Millisecond}
	assert.Equal(t, 4, s.Attempts())
	assert.Equal(t, 2*time.Millisecond, s.MeanLatency())
}

func TestTrackerHookFiresOnceForThreeFailures(t *testing.T) {
	var fired []access.Event
	tracker := access.NewTracker(access.NewMemoryStore(), nil, access.HookFunc(func(e access.Event) {
		fired = append(fired, e)
	}))

	for i := 0; i < 3; i++ {
		tracker.Record(attempt("/sys/devices/platform/charger/ADC_Charger_Voltage", sysfs.PermissionDenied))
	}

	require.Len(t, fired, 1)
	assert.Equal(t, sysfs.PermissionDenied, fired[0].Attempt.Outcome)

	stats, ok := tracker.Store().Get("/sys/devices/platform/charger/ADC_Charger_Voltage")
	require.True(t, ok)
	assert.Equal(t, 3, stats.FailureCount)
	assert.Equal(t, 3*time.Millisecond, stats.TotalLatency)
}

func TestTrackerLogsRoutineFailuresAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "info", true)
	t.Cleanup(func() { logger.SetLogLevel(logger.WarnLevel) })

	tracker := access.NewTracker(nil, logger.Default())
	tracker.Record(attempt("/sys/missing", sysfs.NotFound))
	tracker.Record(attempt("/sys/blank", sysfs.Empty))
	tracker.Record(attempt("/sys/locked", sysfs.PermissionDenied))

	out := buf.String()
	assert.NotContains(t, out, "/sys/missing")
	assert.NotContains(t, out, "/sys/blank")
	assert.Contains(t, out, "/sys/locked")
}

type sliceSink struct {
	got []sysfs.ReadAttempt
}

func (s *sliceSink) Record(a sysfs.ReadAttempt) { s.got = append(s.got, a) }

func TestTrackerSinkSeesEveryAttempt(t *testing.T) {
	tracker := access.NewTracker(nil, nil)
	sink := &sliceSink{}
	tracker.AddSink(sink)

	tracker.Record(attempt("/sys/a", sysfs.Success))
	tracker.Record(attempt("/sys/b", sysfs.NotFound))

	assert.Len(t, sink.got, 2)
}

func TestMemoryStoreSnapshotSorted(t *testing.T) {
	store := access.NewMemoryStore()
	store.Apply(attempt("/sys/c", sysfs.Success))
	store.Apply(attempt("/sys/a", sysfs.NotFound))
	store.Apply(attempt("/sys/b", sysfs.Empty))

	snap := store.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "/sys/a", snap[0].Path)
	assert.Equal(t, "/sys/b", snap[1].Path)
	assert.Equal(t, "/sys/c", snap[2].Path)

	store.Reset()
	assert.Empty(t, store.Snapshot())

	_, ok := store.Get("/sys/a")
	assert.False(t, ok)
}

func TestMemoryStoreConcurrentUpdates(t *testing.T) {
	store := access.NewMemoryStore()

	var mu sync.Mutex
	events := 0

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, evs := store.Apply(attempt("/sys/shared", sysfs.PermissionDenied))
				_, _ = store.Apply(attempt(fmt.Sprintf("/sys/own/%d", w), sysfs.Success))

				mu.Lock()
				events += len(evs)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	stats, ok := store.Get("/sys/shared")
	require.True(t, ok)
	assert.Equal(t, 800, stats.FailureCount)
	assert.Equal(t, 1, events)
	assert.Len(t, store.Snapshot(), 9)
}
