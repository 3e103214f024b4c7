package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-units"
)

// SDKClient implements Client using the official Docker Go SDK.
type SDKClient struct {
	cli *dockerclient.Client
}

// NewSDKClient creates an SDKClient configured from environment variables
// (DOCKER_HOST, DOCKER_TLS_VERIFY, DOCKER_CERT_PATH, DOCKER_API_VERSION).
func NewSDKClient() (*SDKClient, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker sdk client: %w", err)
	}
	return &SDKClient{cli: cli}, nil
}

// Stats takes one stats sample through the API and renders it in the same
// line format the CLI produces, so both backends share one parser.
func (c *SDKClient) Stats(ctx context.Context, ctr string) ([]byte, error) {
	resp, err := c.cli.ContainerStats(ctx, ctr, false)
	if err != nil {
		return nil, classifySDKError(err)
	}
	defer resp.Body.Close()

	var v container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode container stats: %w", err)
	}

	line := renderStatsLine(ctr, &v)
	data, err := json.Marshal(line)
	if err != nil {
		return nil, fmt.Errorf("encode stats line: %w", err)
	}
	return append(data, '\n'), nil
}

// Ping checks that the daemon answers API requests.
func (c *SDKClient) Ping(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}
	return nil
}

// Close releases the underlying HTTP transport.
func (c *SDKClient) Close() error {
	return c.cli.Close()
}

func classifySDKError(err error) error {
	switch {
	case cerrdefs.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrContainerNotFound, err)
	case dockerclient.IsErrConnectionFailed(err):
		return fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	default:
		return fmt.Errorf("docker ContainerStats: %w", err)
	}
}

func renderStatsLine(ctr string, v *container.StatsResponse) StatsLine {
	used := memoryUsage(&v.MemoryStats)
	limit := float64(v.MemoryStats.Limit)

	var memPerc float64
	if limit > 0 {
		memPerc = used / limit * 100
	}

	id := v.ID
	if len(id) > 12 {
		id = id[:12]
	}

	return StatsLine{
		Container: ctr,
		ID:        id,
		Name:      strings.TrimPrefix(v.Name, "/"),
		CPUPerc:   fmt.Sprintf("%.2f%%", cpuPercent(v)),
		MemUsage:  units.BytesSize(used) + " / " + units.BytesSize(limit),
		MemPerc:   fmt.Sprintf("%.2f%%", memPerc),
		PIDs:      fmt.Sprintf("%d", v.PidsStats.Current),
	}
}

// cpuPercent follows the docker CLI calculation for Linux daemons.
func cpuPercent(v *container.StatsResponse) float64 {
	cpuDelta := float64(v.CPUStats.CPUUsage.TotalUsage) - float64(v.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(v.CPUStats.SystemUsage) - float64(v.PreCPUStats.SystemUsage)

	onlineCPUs := float64(v.CPUStats.OnlineCPUs)
	if onlineCPUs == 0 {
		onlineCPUs = float64(len(v.CPUStats.CPUUsage.PercpuUsage))
	}

	if systemDelta > 0 && cpuDelta > 0 {
		return cpuDelta / systemDelta * onlineCPUs * 100
	}
	return 0
}

// memoryUsage subtracts the page cache the same way `docker stats` does
// (cgroup v1 reports total_inactive_file, v2 reports inactive_file).
func memoryUsage(mem *container.MemoryStats) float64 {
	if v, ok := mem.Stats["total_inactive_file"]; ok && v < mem.Usage {
		return float64(mem.Usage - v)
	}
	if v, ok := mem.Stats["inactive_file"]; ok && v < mem.Usage {
		return float64(mem.Usage - v)
	}
	return float64(mem.Usage)
}
