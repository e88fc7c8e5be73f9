package avc

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/mutker/battmon/internal/command"
)

// SELinux modes as reported by getenforce.
const (
	ModeEnforcing  = "Enforcing"
	ModePermissive = "Permissive"
	ModeDisabled   = "Disabled"
	ModeUnknown    = "Unknown"
)

// Environment describes the SELinux state this process runs under.
type Environment struct {
	Mode    string `yaml:"mode" json:"mode"`
	Context string `yaml:"context" json:"context"`
}

// Domain returns the type field of the process context.
func (e Environment) Domain() string {
	return ContextType(e.Context)
}

// EnvironmentProbe detects the Environment. Root prefixes the selinuxfs
// and procfs lookups so tests can use a temp tree.
type EnvironmentProbe struct {
	Runner command.Runner
	Root   string
}

func (p EnvironmentProbe) Detect(ctx context.Context) Environment {
	return Environment{
		Mode:    p.mode(ctx),
		Context: p.context(),
	}
}

func (p EnvironmentProbe) mode(ctx context.Context) string {
	runner := p.Runner
	if runner == nil {
		runner = command.ExecRunner{}
	}

	if out, err := runner.Output(ctx, "getenforce"); err == nil {
		switch mode := strings.TrimSpace(string(out)); mode {
		case ModeEnforcing, ModePermissive, ModeDisabled:
			return mode
		}
	}

	data, err := os.ReadFile(p.path("/sys/fs/selinux/enforce"))
	if err != nil {
		if os.IsNotExist(err) {
			if _, statErr := os.Stat(p.path("/sys/fs/selinux")); os.IsNotExist(statErr) {
				return ModeDisabled
			}
		}
		return ModeUnknown
	}

	switch strings.TrimSpace(string(data)) {
	case "1":
		return ModeEnforcing
	case "0":
		return ModePermissive
	default:
		return ModeUnknown
	}
}

func (p EnvironmentProbe) context() string {
	data, err := os.ReadFile(p.path("/proc/self/attr/current"))
	if err != nil {
		return ModeUnknown
	}

	ctx := strings.TrimSpace(strings.ReplaceAll(string(data), "\x00", ""))
	if ctx == "" {
		return ModeUnknown
	}

	return ctx
}

func (p EnvironmentProbe) path(abs string) string {
	if p.Root == "" {
		return abs
	}

	return filepath.Join(p.Root, abs)
}
