package tests

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func repositoryRoot(testInstance *testing.T) string {
	testInstance.Helper()
	currentWorkingDirectory, workingDirectoryError := os.Getwd()
	if workingDirectoryError != nil {
		testInstance.Fatalf("unable to resolve working directory: %v", workingDirectoryError)
	}
	return filepath.Dir(currentWorkingDirectory)
}

func runIntegrationCommand(testInstance *testing.T, repositoryRootDirectory string, timeout time.Duration, arguments []string, environmentOverrides []string) (string, error) {
	testInstance.Helper()

	executionContext, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	commandArguments := append([]string{"run", "."}, arguments...)
	command := exec.CommandContext(executionContext, "go", commandArguments...)
	command.Dir = repositoryRootDirectory
	command.Env = append(append([]string{}, os.Environ()...), environmentOverrides...)

	outputBytes, runError := command.CombinedOutput()
	return string(outputBytes), runError
}
