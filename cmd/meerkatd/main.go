package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jasonish/meerkat-desktop/internal/buildinfo"
	"github.com/jasonish/meerkat-desktop/pkg/config"
	"github.com/jasonish/meerkat-desktop/pkg/core"
	"github.com/jasonish/meerkat-desktop/pkg/daemon"
	"github.com/jasonish/meerkat-desktop/pkg/logging"
	execprov "github.com/jasonish/meerkat-desktop/pkg/providers/exec"
	"github.com/jasonish/meerkat-desktop/pkg/providers/proctable"
	"github.com/jasonish/meerkat-desktop/pkg/providers/systemd"
	"github.com/jasonish/meerkat-desktop/pkg/shutdown"
	"github.com/jasonish/meerkat-desktop/pkg/sink"
	"github.com/jasonish/meerkat-desktop/pkg/supervisor"
	"github.com/jasonish/meerkat-desktop/pkg/tailer"
	"github.com/jasonish/meerkat-desktop/pkg/transport/uds"
	"github.com/jasonish/meerkat-desktop/pkg/transport/ws"
)

const (
	pollInterval = time.Second
	reapTimeout  = 30 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:           "meerkatd",
		Short:         "Supervise Suricata and EveBox and stream their output",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err := run(ctx, configPath, logLevel)
			if err != nil {
				fmt.Fprintln(os.Stderr, "meerkatd:", err)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", filepath.Join(config.DefaultHome(), config.DefaultFile), "configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	return cmd
}

func run(ctx context.Context, configPath, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, "config:", e)
		}
		return fmt.Errorf("%s: %d validation error(s)", configPath, len(errs))
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Format, level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	srv := uds.NewServer(cfg.Socket, logger.With("component", "uds"))
	hub := ws.NewHub(logger.With("component", "ws"))
	sinks := sink.Multi{srv, hub, sink.Log{Logger: logger.With("component", "output"), Level: slog.LevelDebug}}
	if cfg.Journal {
		j, err := sink.NewJournal("meerkatd")
		if err != nil {
			logger.Warn("journal sink disabled", "err", err)
		} else {
			// journald writes from several streams must not interleave
			sinks = append(sinks, sink.Serialize(j))
		}
	}

	// Supervised processes outlive the signal context so they can be
	// terminated gracefully by the reaper.
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()

	table := proctable.New(logger.With("component", "proctable"))
	sup := supervisor.New(runCtx, table, sinks, logger.With("component", "supervisor"))
	names := make(map[string]core.Slot)
	for name, slot := range cfg.Slots {
		spec := slot.LaunchSpec()
		sup.Register(core.Slot(name), spec)
		names[spec.BinaryName()] = core.Slot(name)
	}

	tl := tailer.New(tailer.Options{
		Path:     cfg.Tail.Path,
		Interval: time.Duration(cfg.Tail.Interval),
		Watch:    cfg.Tail.Watch,
	}, sinks, logger.With("component", "tailer"))
	reaper := shutdown.New(sup, table, tl, logger.With("component", "shutdown"))

	d := daemon.New(runCtx, srv, sup, tl, reaper, logger)
	d.AddProvider(execprov.New(sup, logger))
	d.AddProvider(proctable.NewProvider(table, names, logger))
	if len(cfg.Units) > 0 {
		units := make(map[string]core.Slot, len(cfg.Units))
		for unit, slot := range cfg.Units {
			units[unit] = core.Slot(slot)
		}
		d.AddProvider(systemd.New(units, logger))
	}

	for _, name := range sup.Slots() {
		if !cfg.Slots[string(name)].Autostart {
			continue
		}
		if _, err := sup.StartRegistered(runCtx, name); err != nil {
			logger.Error("autostart failed", "slot", name, "err", err)
		}
	}

	logger.Info("starting meerkatd", "version", buildinfo.Version, "socket", cfg.Socket, "config", configPath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	g.Go(func() error {
		daemon.NewPollLoop(d, sinks, pollInterval, logger).Run(gctx)
		return nil
	})
	if cfg.HTTPAddr != "" {
		g.Go(func() error {
			return ws.Serve(gctx, cfg.HTTPAddr, ws.NewRouter(hub, d.Items), logger)
		})
	}
	for unit, slot := range cfg.Units {
		g.Go(func() error {
			if err := systemd.FollowJournal(gctx, unit, core.Slot(slot), sinks, logger); err != nil {
				logger.Warn("journal follow ended", "unit", unit, "err", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-d.Server().Ready():
			if _, err := sddaemon.SdNotify(false, sddaemon.SdNotifyReady); err != nil {
				logger.Debug("sd_notify", "err", err)
			}
		case <-gctx.Done():
		}
		return nil
	})

	err = g.Wait()

	logger.Info("shutting down")
	_, _ = sddaemon.SdNotify(false, sddaemon.SdNotifyStopping)
	sup.StopAll()
	reapCtx, cancel := context.WithTimeout(context.Background(), reapTimeout)
	defer cancel()
	report := reaper.Reap(reapCtx)
	for _, e := range report.Errors {
		logger.Warn("reap", "err", e)
	}
	hub.Close()
	d.Shutdown()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	_ = tl.Wait(waitCtx)

	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
