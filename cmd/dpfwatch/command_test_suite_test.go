package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/stretchr/testify/suite"
)

// CommandTestSuite points every command at a private state directory and
// runs a fresh command tree per invocation.
type CommandTestSuite struct {
	suite.Suite
	stateDir string
}

func (s *CommandTestSuite) SetupTest() {
	s.stateDir = s.T().TempDir()
	s.T().Setenv("DPFWATCH_STATE_DIR", s.stateDir)
	s.T().Setenv("DPFWATCH_PREFS_BACKEND", "file")
}

// StatePath returns name inside the test state directory.
func (s *CommandTestSuite) StatePath(name string) string {
	return filepath.Join(s.stateDir, name)
}

// ExecuteCommand runs the root command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	return s.ExecuteCommandContext(context.Background(), args...)
}

// ExecuteCommandContext is ExecuteCommand with a caller-controlled context.
func (s *CommandTestSuite) ExecuteCommandContext(ctx context.Context, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd := newRootCmd()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
