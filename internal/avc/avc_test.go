package avc_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/mutker/battmon/internal/avc"
	"codeberg.org/mutker/battmon/internal/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalLine = "avc: denied { read } for scontext=u:r:priv_app:s0 tcontext=u:object_r:sysfs:s0 tclass=file"

const kernelLog = `[  812.402113] type=1400 audit(1700000000.123:45): avc:  denied  { read } for  pid=4321 comm="battmon" name="ADC_Charger_Voltage" dev="sysfs" ino=31337 scontext=u:r:priv_app:s0:c512,c768 tcontext=u:object_r:sysfs_charger:s0 tclass=file permissive=0
[  812.402500] healthd: battery l=85 v=4123 t=31.2 h=2 st=2 c=-812000
[  812.402901] type=1400 audit(1700000000.124:46): avc:  denied  { open read } for  pid=4321 comm="battmon" path="/sys/devices/platform/charger/ADC_Charger_Voltage" scontext=u:r:priv_app:s0:c512,c768 tcontext=u:object_r:sysfs_charger:s0 tclass=file permissive=0
[  812.403000] type=1400 audit(1700000000.125:47): avc:  denied  { search } for  pid=99 comm="vold" scontext=u:r:vold:s0 tcontext=u:object_r:sysfs:s0 tclass=dir permissive=0
[  812.403100] avc: denied { getattr } for scontext=u:r:priv_app:s0 tclass=file
[  812.402113] type=1400 audit(1700000000.126:48): avc:  denied  { read } for  pid=4321 comm="battmon" name="ADC_Charger_Voltage" scontext=u:r:priv_app:s0:c512,c768 tcontext=u:object_r:sysfs_charger:s0 tclass=file permissive=0
`

func TestParseLineMinimal(t *testing.T) {
	d, ok := avc.ParseLine(minimalLine)
	require.True(t, ok)

	assert.Equal(t, "read", d.Permission)
	assert.Equal(t, "u:r:priv_app:s0", d.SourceContext)
	assert.Equal(t, "u:object_r:sysfs:s0", d.TargetContext)
	assert.Equal(t, "file", d.TargetClass)
	assert.Equal(t, minimalLine, d.RawLine)
}

func TestSuggestMinimal(t *testing.T) {
	d, ok := avc.ParseLine(minimalLine)
	require.True(t, ok)

	assert.Equal(t, "(allow priv_app sysfs (file (read)))", avc.Suggest([]avc.Denial{d}))
}

func TestParseLineKernelFormat(t *testing.T) {
	line := strings.Split(kernelLog, "\n")[2]

	d, ok := avc.ParseLine(line)
	require.True(t, ok)
	assert.Equal(t, "open read", d.Permission)
	assert.Equal(t, []string{"open", "read"}, d.Permissions())
	assert.Equal(t, "u:r:priv_app:s0:c512,c768", d.SourceContext)
	assert.Equal(t, "battmon", d.Fields["comm"])
	assert.Equal(t, "4321", d.Fields["pid"])
	assert.Equal(t, "/sys/devices/platform/charger/ADC_Charger_Voltage", d.Fields["path"])
	assert.Equal(t, "0", d.Fields["permissive"])
}

func TestParseLineFieldOrderIndependent(t *testing.T) {
	d, ok := avc.ParseLine("tclass=file tcontext=u:object_r:sysfs:s0 avc: denied { write } scontext=u:r:priv_app:s0")
	require.True(t, ok)
	assert.Equal(t, "write", d.Permission)
	assert.Equal(t, "file", d.TargetClass)
}

func TestParseLineRejects(t *testing.T) {
	for _, line := range []string{
		"",
		"healthd: battery l=85",
		"avc: granted { read } for scontext=u:r:a:s0 tcontext=u:r:b:s0 tclass=file",
		"avc: denied { read } for scontext=u:r:priv_app:s0 tclass=file",
		"avc: denied { read } for scontext= tcontext=u:object_r:sysfs:s0 tclass=file",
		"denied avc {",
	} {
		_, ok := avc.ParseLine(line)
		assert.False(t, ok, line)
	}
}

func TestParseLineWithoutPermission(t *testing.T) {
	d, ok := avc.ParseLine("avc: denied for scontext=u:r:priv_app:s0 tcontext=u:object_r:sysfs:s0 tclass=file")
	require.True(t, ok)
	assert.Empty(t, d.Permission)

	// Required field missing: no rule.
	assert.Empty(t, avc.Suggest([]avc.Denial{d}))
}

func TestParseDropsMalformedLines(t *testing.T) {
	denials := avc.Parse(kernelLog)
	require.Len(t, denials, 4)
	assert.Equal(t, "u:r:vold:s0", denials[2].SourceContext)
}

func TestParseSkipsOversizedLine(t *testing.T) {
	junk := "avc: denied { read } " + strings.Repeat("x", 70*1024)
	text := minimalLine + "\n" + junk + "\n" + minimalLine + "\n" + minimalLine

	denials, err := avc.ParseReader(strings.NewReader(text))
	require.NoError(t, err)
	assert.Len(t, denials, 3)
	assert.Len(t, avc.Parse(text), 3)
}

func TestAnalyzerRelevant(t *testing.T) {
	denials := avc.Parse(kernelLog)

	a := avc.Analyzer{Domain: avc.DefaultDomain}
	relevant := a.Filter(denials)
	assert.Len(t, relevant, 3)
	for _, d := range relevant {
		assert.Contains(t, d.SourceContext, "priv_app")
	}

	byPackage := avc.Analyzer{Package: "vold"}
	assert.Len(t, byPackage.Filter(denials), 1)

	assert.Len(t, avc.Analyzer{}.Filter(denials), 4)
	assert.Empty(t, avc.Analyzer{Domain: "system_app"}.Filter(denials))
}

func TestSuggestDeduplicatesInOrder(t *testing.T) {
	denials := avc.Analyzer{Domain: avc.DefaultDomain}.Filter(avc.Parse(kernelLog))

	got := avc.Suggest(denials)
	assert.Equal(t,
		"(allow priv_app sysfs_charger (file (read)))\n(allow priv_app sysfs_charger (file (open read)))",
		got)
}

func TestRenderPolicy(t *testing.T) {
	d, ok := avc.ParseLine(minimalLine)
	require.True(t, ok)

	policy := avc.RenderPolicy([]avc.Denial{d})
	assert.True(t, strings.HasPrefix(policy, ";; Generated policy suggestions\n"))
	assert.True(t, strings.HasSuffix(policy, "(allow priv_app sysfs (file (read)))\n"))

	assert.Equal(t, ";; No denials found\n", avc.RenderPolicy(nil))
}

func TestContextType(t *testing.T) {
	assert.Equal(t, "priv_app", avc.ContextType("u:r:priv_app:s0"))
	assert.Equal(t, "priv_app", avc.ContextType("u:r:priv_app:s0:c512,c768"))
	assert.Empty(t, avc.ContextType("unconfined"))
}

func TestDenialSummary(t *testing.T) {
	d, ok := avc.ParseLine(minimalLine)
	require.True(t, ok)

	assert.Equal(t, "denied { read } priv_app -> sysfs (class=file)", d.Summary())
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dmesg.txt")
	require.NoError(t, os.WriteFile(path, []byte(kernelLog), 0o644))

	denials, err := avc.FileSource{Path: path}.Denials(context.Background())
	require.NoError(t, err)
	assert.Len(t, denials, 4)

	_, err = avc.FileSource{Path: filepath.Join(t.TempDir(), "missing")}.Denials(context.Background())
	require.Error(t, err)
}

func TestCommandSource(t *testing.T) {
	var gotName string
	var gotArgs []string
	runner := command.FuncRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte(minimalLine + "\n"), nil
	})

	denials, err := avc.CommandSource{Runner: runner, Name: "dmesg"}.Denials(context.Background())
	require.NoError(t, err)
	assert.Len(t, denials, 1)
	assert.Equal(t, "dmesg", gotName)
	assert.Empty(t, gotArgs)
}

func TestCommandSourceFailure(t *testing.T) {
	failing := command.FuncRunner(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})

	_, err := avc.CommandSource{Runner: failing, Name: "dmesg"}.Denials(context.Background())
	require.Error(t, err)

	partial := command.FuncRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte(minimalLine), errors.New("exit status 1")
	})

	denials, err := avc.CommandSource{Runner: partial, Name: "dmesg"}.Denials(context.Background())
	require.NoError(t, err)
	assert.Len(t, denials, 1)
}

func TestReaderSource(t *testing.T) {
	denials, err := avc.ReaderSource{R: strings.NewReader(kernelLog)}.Denials(context.Background())
	require.NoError(t, err)
	assert.Len(t, denials, 4)
}

func TestEnvironmentProbe(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "proc/self/attr"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "proc/self/attr/current"), []byte("u:r:priv_app:s0\x00"), 0o644))

	getenforce := command.FuncRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Enforcing\n"), nil
	})

	env := avc.EnvironmentProbe{Runner: getenforce, Root: root}.Detect(context.Background())
	assert.Equal(t, avc.ModeEnforcing, env.Mode)
	assert.Equal(t, "u:r:priv_app:s0", env.Context)
	assert.Equal(t, "priv_app", env.Domain())
}

func TestEnvironmentProbeFallsBackToSelinuxfs(t *testing.T) {
	missing := command.FuncRunner(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("not found")
	})

	root := t.TempDir()
	env := avc.EnvironmentProbe{Runner: missing, Root: root}.Detect(context.Background())
	assert.Equal(t, avc.ModeDisabled, env.Mode)
	assert.Equal(t, avc.ModeUnknown, env.Context)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sys/fs/selinux"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sys/fs/selinux/enforce"), []byte("0"), 0o644))

	env = avc.EnvironmentProbe{Runner: missing, Root: root}.Detect(context.Background())
	assert.Equal(t, avc.ModePermissive, env.Mode)
}
