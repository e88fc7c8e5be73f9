package capability

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/battmon/internal/command"
	"codeberg.org/mutker/battmon/internal/errors"
	"golang.org/x/sys/unix"
)

const (
	ErrNotPrivileged = errors.ErrorCode("capability_not_privileged")
	ErrCheckFailed   = errors.ErrorCode("capability_check_failed")
)

// DefaultProbeCommand asks the su binary for an identity.
const DefaultProbeCommand = "su -c id"

// Checker decides whether elevated access is available. A nil error means
// granted.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// ShellChecker runs a privileged shell command and requires uid=0 in its
// output.
type ShellChecker struct {
	Runner  command.Runner
	Command string
}

func (c ShellChecker) Name() string { return "shell" }

func (c ShellChecker) Check(ctx context.Context) error {
	errFactory := errors.New()

	line := c.Command
	if line == "" {
		line = DefaultProbeCommand
	}
	runner := c.Runner
	if runner == nil {
		runner = command.ExecRunner{}
	}

	name, args := command.Split(line)
	out, err := runner.Output(ctx, name, args...)
	if err != nil {
		return errFactory.Wrap(ErrCheckFailed, err)
	}

	if !strings.Contains(string(out), "uid=0") {
		return errFactory.WithData(ErrNotPrivileged, strings.TrimSpace(string(out)))
	}

	return nil
}

// EUIDChecker grants when the process already runs as root.
type EUIDChecker struct {
	// Geteuid defaults to unix.Geteuid.
	Geteuid func() int
}

func (c EUIDChecker) Name() string { return "euid" }

func (c EUIDChecker) Check(context.Context) error {
	geteuid := c.Geteuid
	if geteuid == nil {
		geteuid = unix.Geteuid
	}

	if euid := geteuid(); euid != 0 {
		return errors.New().WithData(ErrNotPrivileged, "euid="+strconv.Itoa(euid))
	}

	return nil
}

// DomainChecker grants when the process SELinux context carries the
// privileged domain, e.g. a priv_app build.
type DomainChecker struct {
	Domain string
	Root   string
}

func (c DomainChecker) Name() string { return "domain" }

func (c DomainChecker) Check(context.Context) error {
	errFactory := errors.New()

	path := "/proc/self/attr/current"
	if c.Root != "" {
		path = filepath.Join(c.Root, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errFactory.Wrap(ErrCheckFailed, err)
	}

	current := strings.TrimSpace(strings.ReplaceAll(string(data), "\x00", ""))
	parts := strings.Split(current, ":")
	if c.Domain == "" || len(parts) < 3 || parts[2] != c.Domain {
		return errFactory.WithData(ErrNotPrivileged, current)
	}

	return nil
}

// AnyChecker grants as soon as one member grants. Members run in order.
type AnyChecker []Checker

func (a AnyChecker) Name() string {
	names := make([]string, len(a))
	for i, c := range a {
		names[i] = c.Name()
	}

	return "any(" + strings.Join(names, ",") + ")"
}

func (a AnyChecker) Check(ctx context.Context) error {
	var last error = errors.New().New(ErrNotPrivileged)

	for _, c := range a {
		if err := ctx.Err(); err != nil {
			return errors.New().Wrap(errors.ErrTimeout, err)
		}
		err := c.Check(ctx)
		if err == nil {
			return nil
		}
		last = err
	}

	return last
}
