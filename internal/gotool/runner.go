package gotool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const errorCommandFormat = "running %s %s in %q: %w: %s"

// CommandRunner executes an external command and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, workingDirectory string, name string, arguments ...string) ([]byte, error)
}

// CommandRunnerFunc adapts a function into a CommandRunner.
type CommandRunnerFunc func(ctx context.Context, workingDirectory string, name string, arguments ...string) ([]byte, error)

// Run invokes the underlying function.
func (runner CommandRunnerFunc) Run(ctx context.Context, workingDirectory string, name string, arguments ...string) ([]byte, error) {
	return runner(ctx, workingDirectory, name, arguments...)
}

// ExecRunner runs commands as subprocesses.
type ExecRunner struct{}

// Run executes name with arguments in workingDirectory.
func (ExecRunner) Run(ctx context.Context, workingDirectory string, name string, arguments ...string) ([]byte, error) {
	// #nosec G204
	command := exec.CommandContext(ctx, name, arguments...)
	command.Dir = workingDirectory
	var standardError bytes.Buffer
	command.Stderr = &standardError
	output, runError := command.Output()
	if runError != nil {
		return nil, fmt.Errorf(errorCommandFormat, name, strings.Join(arguments, " "), workingDirectory, runError, strings.TrimSpace(standardError.String()))
	}
	return output, nil
}

var _ CommandRunner = ExecRunner{}
