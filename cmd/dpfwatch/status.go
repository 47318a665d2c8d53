package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"text/tabwriter"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/dpfwatch/internal/host"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show saved preferences and the running service",
		Long: `Print the persisted auto-start flag and last adapter, whether a
service is running, and the indicator of an active monitoring session.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
	cmd.Flags().StringP("format", "f", "text", "Output format (text, json)")
	return cmd
}

type statusReport struct {
	AutoStart   bool         `json:"autoStart"`
	LastDevice  string       `json:"lastDevice,omitempty"`
	Running     bool         `json:"running"`
	PID         int          `json:"pid,omitempty"`
	Monitoring  bool         `json:"monitoring"`
	Alert       bool         `json:"alert"`
	Indicator   *host.Status `json:"indicator,omitempty"`
	StatusError string       `json:"statusError,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("%w: format '%s': must be one of [text json]", ErrInvalidArgument, format)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // read-only use

	p, err := store.Load(cmd.Context())
	if err != nil {
		return err
	}
	report := statusReport{AutoStart: p.AutoStartEnabled, LastDevice: p.LastDeviceAddress}

	report.PID, report.Running = livePID(cfg.Host.PIDPath, logger)
	if _, report.Monitoring = livePID(cfg.Host.LockPath, logger); report.Monitoring {
		st, err := host.ReadStatus(cfg.Host.StatusPath)
		if err != nil {
			report.StatusError = err.Error()
		} else {
			report.Indicator = &st
			prio, err := host.ParsePriority(st.Priority)
			report.Alert = err == nil && prio == host.PriorityHigh
		}
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return writeStatus(cmd.OutOrStdout(), report)
}

// livePID reads the PID recorded at path and reports whether that process is
// alive. Files left behind by an unclean exit keep a dead PID.
func livePID(path string, logger *logrus.Logger) (int, bool) {
	pid, err := host.ReadHolderPID(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.WithError(err).WithField("path", path).Debug("PID file unreadable")
		}
		return 0, false
	}
	return pid, pidAlive(pid)
}

// pidAlive reports whether pid is a live process
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}

func writeStatus(w io.Writer, r statusReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "autostart:\t%s\n", onOff(r.AutoStart))
	last := r.LastDevice
	if last == "" {
		last = "-"
	}
	fmt.Fprintf(tw, "last device:\t%s\n", last)

	if r.Running {
		fmt.Fprintf(tw, "service:\trunning (pid %d)\n", r.PID)
	} else {
		fmt.Fprintln(tw, "service:\tnot running")
	}

	if !r.Monitoring {
		fmt.Fprintln(tw, "monitoring:\tinactive")
		return tw.Flush()
	}
	if r.Alert {
		fmt.Fprintln(tw, "monitoring:\tactive, regeneration alert")
	} else {
		fmt.Fprintln(tw, "monitoring:\tactive")
	}
	switch {
	case r.Indicator != nil:
		fmt.Fprintf(tw, "indicator:\t%s [%s]\n", r.Indicator.Title, r.Indicator.Priority)
		fmt.Fprintf(tw, "\t%s\n", r.Indicator.Body)
		fmt.Fprintf(tw, "since:\t%s\n", r.Indicator.Since.Format("2006-01-02 15:04:05"))
	case r.StatusError != "":
		fmt.Fprintf(tw, "indicator:\tunavailable (%s)\n", r.StatusError)
	}
	return tw.Flush()
}
