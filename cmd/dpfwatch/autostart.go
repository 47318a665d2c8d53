package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/dpfwatch/internal/prefs"
	"github.com/srg/dpfwatch/pkg/config"
)

func newAutoStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "autostart [on|off]",
		Short:     "Show or set resume-at-boot",
		Long:      `Without an argument, print whether monitoring resumes at boot. With on or off, persist the new setting.`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE:      runAutoStart,
	}
}

func openStore(cfg *config.Config, logger *logrus.Logger) (*prefs.Store, error) {
	backend, err := prefs.Open(cfg.Preferences.Backend, cfg.Preferences.Path)
	if err != nil {
		return nil, fmt.Errorf("opening preferences: %w", err)
	}
	return prefs.NewStore(backend, logger), nil
}

func runAutoStart(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // read-mostly store

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 1 {
		enabled := args[0] == "on"
		if err := store.SetAutoStart(ctx, enabled); err != nil {
			return err
		}
	}

	enabled, err := store.AutoStartEnabled(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "autostart: %s\n", onOff(enabled))
	return nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
