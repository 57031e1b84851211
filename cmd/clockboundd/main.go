// clockboundd is the writer daemon: it polls the synchronization
// daemon and, optionally, the VMClock surface, and periodically
// publishes a fresh error-bound snapshot into the shared segment
// (spec §4.5, §6).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/aws/clockbound/internal/boundloop"
	"github.com/aws/clockbound/internal/chronyclient"
	"github.com/aws/clockbound/internal/config"
	"github.com/aws/clockbound/internal/logging"
	"github.com/aws/clockbound/internal/opsignal"
	"github.com/aws/clockbound/internal/phc"
	"github.com/aws/clockbound/internal/segment"
	"github.com/aws/clockbound/internal/vmclock"
	"github.com/aws/clockbound/internal/writerlock"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("clockboundd", pflag.ContinueOnError)

	help := fs.Bool("help", false, "show usage and exit")
	configPath := fs.String("config", "", "path to an explicit JWCC config file")

	fs.String("segment-path", "", "path to the segment file to publish (default /var/run/clockbound/shm0)")
	fs.String("vmclock-path", "", "path to the VMClock device (default /dev/vmclock0)")
	fs.String("chrony-socket", "", "path to the synchronization daemon's unix datagram socket")
	fs.Uint32("max-drift-rate", 0, "maximum clock drift in parts-per-billion (spec default 1)")
	fs.Bool("disable-clock-disruption-support", false, "disable VMClock consumption; Disrupted becomes unreachable")
	fs.StringP("phc-ref-id", "r", "", "four-character PTP hardware clock reference identity")
	fs.StringP("phc-interface", "i", "", "network interface exposing a PHC error term")
	fs.String("log-level", "", "debug, info, warn, or error (default info)")
	fs.Bool("log-json", false, "emit structured JSON logs instead of text")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	if *help {
		fs.PrintDefaults()

		return 0
	}

	workDir, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	cfg, err := config.Load(workDir, *configPath, fs, os.Environ())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogJSON)

	if err := runDaemon(cfg, logger); err != nil {
		logger.Error("startup or fatal runtime error", "error", err)

		return 1
	}

	return 0
}

func runDaemon(cfg config.Config, logger *slog.Logger) error {
	lock, err := writerlock.Acquire(cfg.SegmentPath)
	if err != nil {
		return fmt.Errorf("acquiring writer lock: %w", err)
	}
	defer lock.Release()

	seg, err := segment.OpenReadWrite(cfg.SegmentPath, cfg.SegmentSizeBytes)
	if err != nil {
		return fmt.Errorf("opening segment: %w", err)
	}
	defer seg.Close()

	var vm *vmclock.Surface

	if !cfg.DisableClockDisruptionSupport {
		vm, err = vmclock.Open(cfg.VMClockPath)
		if err != nil {
			return fmt.Errorf("opening vmclock: %w", err)
		}

		defer vm.Close()
	}

	chrony := chronyclient.New(cfg.ChronySocketPath, cfg.ChronyTimeout)

	var phcReader phc.Reader
	if cfg.PHCInterface != "" {
		phcReader = phc.SysfsReader{}
	}

	opsig := opsignal.NewHandler(syscall.SIGUSR1, syscall.SIGUSR2)
	defer opsig.Stop()

	loopCfg := boundloop.Config{
		RefreshInterval:          cfg.RefreshInterval,
		MaxDriftPPB:              cfg.MaxDriftPPB,
		DisruptionSupportEnabled: !cfg.DisableClockDisruptionSupport,
		PHCInterface:             cfg.PHCInterface,
		PHCRefID:                 cfg.PHCRefID,
	}

	loop := boundloop.New(loopCfg, seg, vm, chrony, phcReader, opsig, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("clockboundd starting",
		"segment_path", cfg.SegmentPath,
		"refresh_interval", cfg.RefreshInterval,
		"disruption_support_enabled", !cfg.DisableClockDisruptionSupport,
	)

	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("clockboundd shutting down on signal")

		return nil
	}

	return err
}
