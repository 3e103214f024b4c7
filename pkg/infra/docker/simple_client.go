package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const statsFormat = "{{json .}}"

// SimpleClient is a lightweight Docker client using CLI commands
type SimpleClient struct {
	binary string
}

// NewSimpleClient creates a new simple Docker client. An empty binary means "docker" on PATH.
func NewSimpleClient(binary string) *SimpleClient {
	if binary == "" {
		binary = "docker"
	}
	return &SimpleClient{binary: binary}
}

// Stats runs `docker stats --no-stream` for a single container.
func (c *SimpleClient) Stats(ctx context.Context, container string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binary, "stats", "--no-stream", "--format", statsFormat, container)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, classifyCommandError(err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Ping runs `docker version` and reports whether the daemon answered.
func (c *SimpleClient) Ping(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.binary, "version", "--format", "{{.Server.Version}}")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: docker version failed: %v\nOutput: %s", ErrRuntimeUnavailable, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func classifyCommandError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)

	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}

	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "no such container"):
		return fmt.Errorf("%w: %s", ErrContainerNotFound, stderr)
	case strings.Contains(lower, "cannot connect to the docker daemon"),
		strings.Contains(lower, "is the docker daemon running"):
		return fmt.Errorf("%w: %s", ErrRuntimeUnavailable, stderr)
	}

	return fmt.Errorf("docker stats failed: %w\nOutput: %s", err, stderr)
}
