package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/dpfwatch/internal/boot"
	"github.com/srg/dpfwatch/internal/bridge"
	"github.com/srg/dpfwatch/internal/connwatch"
	"github.com/srg/dpfwatch/internal/eventbus"
	"github.com/srg/dpfwatch/internal/groutine"
	"github.com/srg/dpfwatch/internal/history"
	"github.com/srg/dpfwatch/internal/host"
	"github.com/srg/dpfwatch/internal/lifecycle"
	"github.com/srg/dpfwatch/internal/mqtt"
	"github.com/srg/dpfwatch/internal/transport/goble"
	"github.com/srg/dpfwatch/pkg/config"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring service",
		Long: `Run the monitoring service until interrupted.

On start the boot trigger resumes monitoring of the last adapter when
auto-start is enabled. With scan.enabled the BLE presence scanner starts
monitoring whenever a diagnostic adapter appears. MQTT relay and history
recording are enabled from the config file.`,
		Args: cobra.NoArgs,
		RunE: runService,
	}
	cmd.Flags().Bool("no-boot", false, "Skip the boot trigger")
	return cmd
}

func managerOptions(cfg *config.Config) lifecycle.Options {
	n := cfg.Notifications
	return lifecycle.Options{
		AcquireTimeout: cfg.Host.AcquireTimeout,
		EventBuffer:    cfg.Events.Buffer,
		Notifications: lifecycle.Notifications{
			MonitoringTitle:    n.MonitoringTitle,
			MonitoringBody:     n.MonitoringBody,
			DefaultDeviceLabel: n.DefaultDeviceLabel,
			AlertTitle:         n.AlertTitle,
			AlertBody:          n.AlertBody,
		},
	}
}

func scannerOptions(cfg *config.Config) goble.Options {
	return goble.Options{
		LostAfter:      cfg.Scan.LostAfter,
		SweepInterval:  cfg.Scan.SweepInterval,
		Buffer:         cfg.Events.Buffer,
		DiagnosticOnly: cfg.Scan.DiagnosticOnly,
	}
}

func runService(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pidFile, err := host.ClaimPIDFile(cfg.Host.PIDPath)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "pid file", pidFile.Release)

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "preferences", store.Close)

	manager := lifecycle.NewManager(store, host.NewStatusFileHost(cfg.Host.LockPath, cfg.Host.StatusPath, logger),
		managerOptions(cfg), logger)
	gateway := bridge.New(manager, store, bridge.Options{SubscriberBuffer: cfg.Events.Buffer}, logger)

	var wg sync.WaitGroup
	logSub := gateway.Subscribe(0)
	groutine.GoTracked(ctx, &wg, "event-log", func(ctx context.Context) {
		logEvents(ctx, logSub, logger)
	})

	if cfg.Scan.Enabled {
		startPresence(ctx, &wg, cfg, manager, logger)
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT, logger)
		if err != nil {
			logger.WithError(err).Warn("MQTT relay disabled")
		} else {
			defer closeLogged(logger, "mqtt", client.Close)
			relay := mqtt.NewRelay(client, gateway, mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}, byte(cfg.MQTT.QoS), logger)
			groutine.GoTracked(ctx, &wg, "mqtt-relay", func(ctx context.Context) {
				if err := relay.Run(ctx); err != nil {
					logger.WithError(err).Error("MQTT relay stopped")
				}
			})
		}
	}

	if cfg.History.Enabled {
		client, err := history.Connect(ctx, cfg.History, logger)
		if err != nil {
			logger.WithError(err).Warn("History recording disabled")
		} else {
			defer client.Close()
			recorder := history.NewRecorder(client.Writer(), logger)
			historySub := gateway.Subscribe(0)
			groutine.GoTracked(ctx, &wg, "history-recorder", func(ctx context.Context) {
				_ = recorder.Run(ctx, historySub.C())
			})
		}
	}

	if noBoot, _ := cmd.Flags().GetBool("no-boot"); !noBoot {
		if err := boot.NewTrigger(store, manager, logger).OnSystemBoot(ctx); err != nil {
			logger.WithError(err).Warn("Boot trigger could not start monitoring")
		}
	}

	logger.Info("dpfwatch running")
	<-ctx.Done()
	logger.Info("Shutting down")

	// Closing the gateway closes every downstream subscription, which ends
	// the consumers even if they missed the cancellation.
	gateway.Close()
	wg.Wait()
	if err := manager.Close(); err != nil {
		logger.WithError(err).Warn("Monitoring session did not stop cleanly")
	}
	return nil
}

func startPresence(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, manager *lifecycle.Manager, logger *logrus.Logger) {
	scanner := goble.NewPresenceScanner(scannerOptions(cfg), logger)
	source := connwatch.NewSource(manager, logger)

	groutine.GoTracked(ctx, wg, "ble-presence", func(ctx context.Context) {
		if err := scanner.Run(ctx); err != nil {
			logger.WithError(err).Error("BLE presence scanner stopped")
		}
	})
	groutine.GoTracked(ctx, wg, "connection-watch", func(ctx context.Context) {
		if err := source.Run(ctx, scanner.Events()); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Connection watcher stopped")
		}
	})
}

// logEvents writes every lifecycle event to the log until the subscription
// closes or ctx ends.
func logEvents(ctx context.Context, sub *eventbus.Subscription[lifecycle.Event], logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			entry := logger.WithFields(logrus.Fields{
				"event": ev.Kind.String(),
				"time":  ev.Time.Format(time.RFC3339),
			})
			if ev.Device != nil {
				entry = entry.WithField("device", ev.Device.String())
			}
			entry.Info("Lifecycle event")
		}
	}
}

func closeLogged(logger *logrus.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.WithError(err).WithField("component", what).Warn("Close failed")
	}
}
