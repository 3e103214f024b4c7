package docker

import (
	"context"
	"errors"
)

var (
	// ErrRuntimeUnavailable is returned when the docker binary or daemon cannot be reached.
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")
	// ErrContainerNotFound is returned when the runtime does not know the container.
	ErrContainerNotFound = errors.New("container not found")
)

// StatsLine mirrors one row of `docker stats --format '{{json .}}'`.
type StatsLine struct {
	BlockIO   string `json:"BlockIO"`
	CPUPerc   string `json:"CPUPerc"`
	Container string `json:"Container"`
	ID        string `json:"ID"`
	MemPerc   string `json:"MemPerc"`
	MemUsage  string `json:"MemUsage"`
	Name      string `json:"Name"`
	NetIO     string `json:"NetIO"`
	PIDs      string `json:"PIDs"`
}

// Client is the interface for the container runtime queries the monitor needs.
type Client interface {
	// Stats returns the raw output of a single non-streaming stats query
	// restricted to the named container, one JSON document per line.
	Stats(ctx context.Context, container string) ([]byte, error)

	// Ping reports whether the runtime is reachable.
	Ping(ctx context.Context) error
}

// Compile-time assertions.
var (
	_ Client = (*SimpleClient)(nil)
	_ Client = (*SDKClient)(nil)
	_ Client = (*MockClient)(nil)
)
