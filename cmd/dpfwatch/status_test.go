package main

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/srg/dpfwatch/internal/host"
	"github.com/srg/dpfwatch/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type StatusCommandSuite struct {
	CommandTestSuite
}

func TestStatusCommandSuite(t *testing.T) {
	suite.Run(t, new(StatusCommandSuite))
}

func (s *StatusCommandSuite) TestNotRunning() {
	out, err := s.ExecuteCommand("status")
	s.Require().NoError(err)
	s.Regexp(`autostart:\s+on`, out)
	s.Regexp(`last device:\s+-`, out)
	s.Regexp(`service:\s+not running`, out)
	s.Regexp(`monitoring:\s+inactive`, out)
}

func (s *StatusCommandSuite) TestIdleServiceIsRunning() {
	pf, err := host.ClaimPIDFile(s.StatePath("dpfwatch.pid"))
	s.Require().NoError(err)
	defer pf.Release() //nolint:errcheck

	out, err := s.ExecuteCommand("status")
	s.Require().NoError(err)
	s.Regexp(`service:\s+running \(pid \d+\)`, out)
	s.Regexp(`monitoring:\s+inactive`, out)
}

func (s *StatusCommandSuite) TestAlertIndicator() {
	h := host.NewStatusFileHost(s.StatePath("monitor.lock"), s.StatePath("status.yaml"), testutils.NewTestLogger(s.T()))
	handle, err := h.Acquire(context.Background(), host.Metadata{
		Title:    "DPF REGENERATION ACTIVE!",
		Body:     "Do not turn off the engine!",
		Priority: host.PriorityHigh,
	})
	s.Require().NoError(err)
	defer h.Release(handle) //nolint:errcheck

	out, err := s.ExecuteCommand("status", "--format", "json")
	s.Require().NoError(err)

	var report statusReport
	s.Require().NoError(json.Unmarshal([]byte(out), &report))
	s.True(report.Monitoring)
	s.True(report.Alert)
	s.Require().NotNil(report.Indicator)
	s.Equal("high", report.Indicator.Priority)
}

func (s *StatusCommandSuite) TestActiveMonitoringShowsIndicator() {
	h := host.NewStatusFileHost(s.StatePath("monitor.lock"), s.StatePath("status.yaml"), testutils.NewTestLogger(s.T()))
	handle, err := h.Acquire(context.Background(), host.Metadata{
		Title:    "DPF Alarm",
		Body:     "Monitoring DPF: ELM327",
		Priority: host.PriorityLow,
	})
	s.Require().NoError(err)
	defer h.Release(handle) //nolint:errcheck

	out, err := s.ExecuteCommand("status")
	s.Require().NoError(err)
	s.Regexp(`service:\s+not running`, out, "the execution-context lock alone is not a service")
	s.Regexp(`monitoring:\s+active\n`, out)
	s.Contains(out, "DPF Alarm [low]")
	s.Contains(out, "Monitoring DPF: ELM327")
}

func (s *StatusCommandSuite) TestStaleLockIsInactive() {
	// PIDs are positive; zero is never alive
	s.Require().NoError(os.WriteFile(s.StatePath("monitor.lock"), []byte("0\n"), 0o644))

	out, err := s.ExecuteCommand("status")
	s.Require().NoError(err)
	s.Regexp(`monitoring:\s+inactive`, out)
}

func (s *StatusCommandSuite) TestJSON() {
	_, err := s.ExecuteCommand("autostart", "off")
	s.Require().NoError(err)

	out, err := s.ExecuteCommand("status", "--format", "json")
	s.Require().NoError(err)

	var report statusReport
	s.Require().NoError(json.Unmarshal([]byte(out), &report))
	s.False(report.AutoStart)
	s.False(report.Running)
	s.False(report.Monitoring)
	s.Nil(report.Indicator)
}

func (s *StatusCommandSuite) TestRejectsUnknownFormat() {
	_, err := s.ExecuteCommand("status", "--format", "xml")
	s.ErrorIs(err, ErrInvalidArgument)
}
