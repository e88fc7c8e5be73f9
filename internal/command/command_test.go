package command_test

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"codeberg.org/mutker/battmon/internal/command"
	"codeberg.org/mutker/battmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	name, args := command.Split("su -c id")
	assert.Equal(t, "su", name)
	assert.Equal(t, []string{"-c", "id"}, args)

	name, args = command.Split("su -c dmesg | grep avc")
	assert.Equal(t, "su", name)
	assert.Equal(t, []string{"-c", "dmesg | grep avc"}, args)

	name, args = command.Split("  dmesg  ")
	assert.Equal(t, "dmesg", name)
	assert.Empty(t, args)

	name, _ = command.Split("")
	assert.Empty(t, name)
}

func TestExecRunnerOutput(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}

	out, err := command.ExecRunner{}.Output(context.Background(), "echo", "uid=0(root)")
	require.NoError(t, err)
	assert.Equal(t, "uid=0(root)\n", string(out))
}

func TestExecRunnerEmptyCommand(t *testing.T) {
	_, err := command.ExecRunner{}.Output(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, command.ErrEmptyCommand, errors.CodeOf(err))
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := command.ExecRunner{}.Output(context.Background(), "battmon-no-such-helper")
	require.Error(t, err)
	assert.Equal(t, command.ErrRunFailed, errors.CodeOf(err))
}

func TestExecRunnerTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := command.ExecRunner{}.Output(ctx, "sleep", "5")
	require.Error(t, err)
	assert.Equal(t, errors.ErrTimeout, errors.CodeOf(err))
}

func TestExecRunnerTimeoutWithGrandchildHoldingOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	// the backgrounded sleep inherits stdout and outlives the killed shell
	_, err := command.ExecRunner{}.Output(ctx, "sh", "-c", "sleep 3 & wait")
	require.Error(t, err)
	assert.Equal(t, errors.ErrTimeout, errors.CodeOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}
