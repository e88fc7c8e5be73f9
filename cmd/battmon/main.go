package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/battmon/internal/config"
	"codeberg.org/mutker/battmon/internal/errors"
	"codeberg.org/mutker/battmon/internal/logger"
	"github.com/spf13/pflag"
)

const usage = `Usage: battmon [flags] <command>

Commands:
  read                    Collect battery telemetry
  diagnose                Collect, then report access results and AVC denials
  suggest                 Print SELinux policy suggestions from the audit log
  write <metric> <value>  Write value to the first writable candidate of metric
`

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go handleSignals(cancel)

	err := run(ctx, os.Args[1:], os.Stdout)
	cancel()

	if errors.Is(err, pflag.ErrHelp) {
		// flag defaults were already printed by the flag set
		fmt.Fprint(os.Stderr, usage)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "battmon: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	errFactory := errors.New()

	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().
		Str("file", cfg.File).
		Str("sysfs_root", cfg.SysfsRoot).
		Str("capability", cfg.Capability).
		Msg("Config loaded")

	if len(cfg.Args) == 0 {
		return errFactory.WithData(errors.ErrUnknownCommand, "missing command, see --help")
	}

	a, err := newApp(cfg, logger.Default(), stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to shut down cleanly")
		}
	}()

	switch name := cfg.Args[0]; name {
	case "read":
		return a.read(ctx)
	case "diagnose":
		return a.diagnose(ctx)
	case "suggest":
		return a.suggest(ctx)
	case "write":
		if len(cfg.Args) != 3 {
			return errFactory.WithData(errors.ErrInvalidArgument, "usage: write <metric> <value>")
		}
		return a.write(ctx, cfg.Args[1], cfg.Args[2])
	default:
		return errFactory.WithData(errors.ErrUnknownCommand, name)
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
