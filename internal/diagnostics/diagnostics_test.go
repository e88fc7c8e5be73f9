package diagnostics_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/battmon/internal/access"
	"codeberg.org/mutker/battmon/internal/avc"
	"codeberg.org/mutker/battmon/internal/capability"
	"codeberg.org/mutker/battmon/internal/diagnostics"
	"codeberg.org/mutker/battmon/internal/errors"
	"codeberg.org/mutker/battmon/internal/sysfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const auditText = `avc: denied { read } for pid=1 comm="battmon" scontext=u:r:priv_app:s0 tcontext=u:object_r:sysfs_charger:s0 tclass=file
avc: denied { search } for pid=2 comm="vold" scontext=u:r:vold:s0 tcontext=u:object_r:sysfs:s0 tclass=dir
`

type fixedEnv avc.Environment

func (e fixedEnv) Detect(context.Context) avc.Environment { return avc.Environment(e) }

type deniedProbe struct{}

func (deniedProbe) State() capability.State { return capability.Denied }
func (deniedProbe) Cause() error            { return errors.New().New(capability.ErrNotPrivileged) }

type failingSource struct{}

func (failingSource) Denials(context.Context) ([]avc.Denial, error) {
	return nil, errors.New().New(avc.ErrReadSource)
}

func record(tracker *access.Tracker, path string, outcome sysfs.Outcome, detail string) {
	tracker.Record(sysfs.ReadAttempt{
		Path:      path,
		Operation: sysfs.OpRead,
		Outcome:   outcome,
		Detail:    detail,
		Latency:   2 * time.Microsecond,
	})
}

func newBuilder(t *testing.T) (*diagnostics.Builder, *access.Tracker) {
	t.Helper()

	requests := diagnostics.NewRequests()
	store := access.NewMemoryStore()
	tracker := access.NewTracker(store, nil, requests)

	return &diagnostics.Builder{
		Capability:  deniedProbe{},
		Store:       store,
		Requests:    requests,
		Environment: fixedEnv{Mode: avc.ModeEnforcing, Context: "u:r:priv_app:s0"},
		Audit:       avc.ReaderSource{R: strings.NewReader(auditText)},
		Analyzer:    avc.Analyzer{Domain: avc.DefaultDomain},
		Root:        "/sys",
		Now:         func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}, tracker
}

func TestRequestsDeduplicate(t *testing.T) {
	r := diagnostics.NewRequests()
	assert.False(t, r.Pending())

	r.OnEvent(access.Event{Kind: access.EventDiagnosticRequested, Path: "/sys/b"})
	r.OnEvent(access.Event{Kind: access.EventDiagnosticRequested, Path: "/sys/a"})
	r.OnEvent(access.Event{Kind: access.EventDiagnosticRequested, Path: "/sys/b"})

	assert.True(t, r.Pending())
	assert.Equal(t, []string{"/sys/b", "/sys/a"}, r.Paths())
}

func TestBuildReport(t *testing.T) {
	b, tracker := newBuilder(t)

	record(tracker, "/sys/class/power_supply/battery/capacity", sysfs.Success, "")
	record(tracker, "/sys/devices/platform/charger/ADC_Charger_Voltage", sysfs.PermissionDenied, "permission denied (access check)")
	record(tracker, "/sys/devices/platform/charger/ADC_Charger_Voltage", sysfs.PermissionDenied, "permission denied (access check)")

	report := b.Build(context.Background())

	assert.Equal(t, "Denied", report.Capability)
	assert.Contains(t, report.CapabilityDetail, "capability_not_privileged")
	assert.Equal(t, avc.ModeEnforcing, report.SELinux.Mode)
	assert.Equal(t, []string{"devices/platform/charger/ADC_Charger_Voltage"}, report.Requested)

	require.Len(t, report.Paths, 2)
	assert.Equal(t, "class/power_supply/battery/capacity", report.Paths[0].Path)
	assert.True(t, report.Paths[0].OK())
	assert.Equal(t, 2, report.Paths[1].Failures)
	assert.Equal(t, "PermissionDenied", report.Paths[1].LastOutcome)

	require.Len(t, report.Denials, 1)
	assert.Equal(t, "file", report.Denials[0].TargetClass)
	assert.Contains(t, report.Policy, "(allow priv_app sysfs_charger (file (read)))")
	assert.Empty(t, report.AuditError)

	text := report.String()
	assert.Contains(t, text, "Capability: Denied")
	assert.Contains(t, text, "SELinux mode: Enforcing")
	assert.Contains(t, text, "[FAIL] devices/platform/charger/ADC_Charger_Voltage")
	assert.Contains(t, text, "[OK  ] class/power_supply/battery/capacity")
	assert.Contains(t, text, "AVC denials: 1")
	assert.Contains(t, text, "Policy suggestion:")
}

func TestBuildReportAuditFailureIsAdvisory(t *testing.T) {
	b, _ := newBuilder(t)
	b.Audit = failingSource{}

	report := b.Build(context.Background())
	assert.Contains(t, report.AuditError, "avc_read_source_failed")
	assert.Empty(t, report.Denials)
	assert.Empty(t, report.Policy)
	assert.Contains(t, report.String(), "audit log unavailable")
}

func TestBuildReportMinimal(t *testing.T) {
	report := (&diagnostics.Builder{}).Build(context.Background())

	assert.Equal(t, "Unknown", report.Capability)
	assert.Contains(t, report.String(), "(no attempts recorded)")
}

func TestReportYAML(t *testing.T) {
	b, tracker := newBuilder(t)
	record(tracker, "/sys/class/power_supply/battery/temp", sysfs.NotFound, "no such file")

	out, err := b.Build(context.Background()).YAML()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, "Denied", decoded["capability"])

	selinux, ok := decoded["selinux"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Enforcing", selinux["mode"])

	paths, ok := decoded["paths"].([]any)
	require.True(t, ok)
	require.Len(t, paths, 1)
	first, ok := paths[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "class/power_supply/battery/temp", first["path"])
	assert.Equal(t, "NotFound", first["last_outcome"])
}

func TestBuildReportListsUnlistedNodes(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{
		"class/power_supply/battery/voltage_now",
		"class/power_supply/pm8150b-charger/voltage_now",
		"devices/platform/soc/charger/voltage_now",
	} {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("4200000\n"), 0o644))
	}

	resolver, err := sysfs.NewResolver(root, sysfs.DefaultMetrics(), nil)
	require.NoError(t, err)

	b := &diagnostics.Builder{Root: root, Resolver: resolver, DiscoverFiles: []string{"voltage_now"}}
	report := b.Build(context.Background())

	assert.Equal(t, []string{
		"class/power_supply/pm8150b-charger/voltage_now",
		"devices/platform/soc/charger/voltage_now",
	}, report.Unlisted)
	assert.Contains(t, report.String(), "Unlisted candidate nodes:")
}
