package main

import (
	"context"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/srg/dpfwatch/internal/host"
	"github.com/srg/dpfwatch/internal/testutils"
	"github.com/stretchr/testify/suite"
)

var serviceRunning = regexp.MustCompile(`service:\s+running`)

type RunCommandSuite struct {
	CommandTestSuite
}

func TestRunCommandSuite(t *testing.T) {
	suite.Run(t, new(RunCommandSuite))
}

// startService runs the service in the background and returns a stop
// function that cancels it and waits for the command to return.
func (s *RunCommandSuite) startService(args ...string) func() (string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.ExecuteCommandContext(ctx, append([]string{"run"}, args...)...)
		done <- result{out, err}
	}()

	return func() (string, error) {
		cancel()
		select {
		case r := <-done:
			return r.out, r.err
		case <-time.After(5 * time.Second):
			s.FailNow("run did not stop after cancellation")
			return "", nil
		}
	}
}

func (s *RunCommandSuite) TestBootResumesMonitoringAndShutsDownCleanly() {
	stop := s.startService()

	s.Require().Eventually(func() bool {
		_, err := s.ExecuteCommand("status")
		return err == nil && fileExists(s.StatePath("status.yaml"))
	}, testutils.DefaultEventTimeout, 20*time.Millisecond, "boot trigger MUST acquire the execution context")

	out, err := stop()
	s.Require().NoError(err)
	s.Contains(out, "dpfwatch running")
	s.Contains(out, "Shutting down")
	s.NoFileExists(s.StatePath("monitor.lock"), "shutdown MUST release the execution context")
}

func (s *RunCommandSuite) TestCorruptPreferencesBootWithDefaults() {
	garbage := []byte("- a\n- b\n")
	s.Require().NoError(os.WriteFile(s.StatePath("prefs.yaml"), garbage, 0o600))

	stop := s.startService()

	s.Require().Eventually(func() bool {
		return fileExists(s.StatePath("status.yaml"))
	}, testutils.DefaultEventTimeout, 20*time.Millisecond, "unreadable preferences MUST fall back to auto-start")

	out, err := stop()
	s.Require().NoError(err)
	s.Contains(out, "using defaults")

	data, err := os.ReadFile(s.StatePath("prefs.yaml"))
	s.Require().NoError(err)
	s.Equal(garbage, data)
}

func (s *RunCommandSuite) TestIdleServiceReportsRunning() {
	stop := s.startService("--no-boot")

	s.Require().Eventually(func() bool {
		out, err := s.ExecuteCommand("status")
		return err == nil && serviceRunning.MatchString(out)
	}, testutils.DefaultEventTimeout, 20*time.Millisecond)

	out, err := s.ExecuteCommand("status")
	s.Require().NoError(err)
	s.Regexp(`monitoring:\s+inactive`, out)

	_, err = stop()
	s.Require().NoError(err)
	s.NoFileExists(s.StatePath("dpfwatch.pid"))
}

func (s *RunCommandSuite) TestSecondServiceIsRejected() {
	stop := s.startService("--no-boot")
	s.Require().Eventually(func() bool {
		return fileExists(s.StatePath("dpfwatch.pid"))
	}, testutils.DefaultEventTimeout, 20*time.Millisecond)

	_, err := s.ExecuteCommand("run", "--no-boot")
	s.ErrorIs(err, host.ErrServiceRunning)
	s.Contains(FormatUserError(err), "already running")

	_, err = stop()
	s.NoError(err)
}

func (s *RunCommandSuite) TestBootDisabled() {
	_, err := s.ExecuteCommand("autostart", "off")
	s.Require().NoError(err)

	stop := s.startService()
	s.Never(func() bool {
		return fileExists(s.StatePath("monitor.lock"))
	}, 200*time.Millisecond, 20*time.Millisecond)

	_, err = stop()
	s.NoError(err)
}

func (s *RunCommandSuite) TestNoBootFlag() {
	stop := s.startService("--no-boot")
	s.Never(func() bool {
		return fileExists(s.StatePath("monitor.lock"))
	}, 200*time.Millisecond, 20*time.Millisecond)

	_, err := stop()
	s.NoError(err)
}

func (s *RunCommandSuite) TestInvalidConfig() {
	s.T().Setenv("DPFWATCH_PREFS_BACKEND", "postgres")
	_, err := s.ExecuteCommand("run")
	s.Error(err)
	s.Contains(FormatUserError(err), "configuration is invalid")
}
