// Package command runs external helpers (su, getenforce, dmesg,
// termux-battery-status) behind an interface so callers can be tested
// without spawning processes.
package command

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"codeberg.org/mutker/battmon/internal/errors"
)

// WaitDelay bounds how long Output waits for the output pipes after the
// context kills the process, e.g. when a grandchild of su holds stdout.
const WaitDelay = 500 * time.Millisecond

const (
	ErrEmptyCommand = errors.ErrorCode("command_empty")
	ErrRunFailed    = errors.ErrorCode("command_run_failed")
)

// Runner executes a command and returns its standard output.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	errFactory := errors.New()

	if name == "" {
		return nil, errFactory.New(ErrEmptyCommand)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = WaitDelay

	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, errFactory.Wrap(errors.ErrTimeout, ctxErr)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return out, errFactory.Wrap(ErrRunFailed, err).WithData(name + ": " + detail)
		}
		return out, errFactory.Wrap(ErrRunFailed, err).WithData(name)
	}

	return out, nil
}

// Split turns a configured command line into name and arguments. The
// remainder after "-c" is kept as one argument so shell snippets survive:
// "su -c dmesg | grep avc" yields ["su", "-c", "dmesg | grep avc"].
func Split(line string) (string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}

	for i, f := range fields {
		if f == "-c" && i+1 < len(fields) {
			args := append([]string{}, fields[1:i+1]...)
			return fields[0], append(args, strings.Join(fields[i+1:], " "))
		}
	}

	return fields[0], fields[1:]
}

// FuncRunner adapts a function to Runner.
type FuncRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f FuncRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}
