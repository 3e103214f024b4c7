package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockClient 用于测试的 Mock Docker 客户端
type MockClient struct {
	mu         sync.Mutex
	outputs    map[string][]byte
	errs       map[string]error
	PingErr    error
	statsCalls int
}

// NewMockClient 创建新的 Mock Docker 客户端
func NewMockClient() *MockClient {
	return &MockClient{
		outputs: make(map[string][]byte),
		errs:    make(map[string]error),
	}
}

// SetStats sets the stats line returned for container.
func (c *MockClient) SetStats(container string, line StatsLine) {
	data, _ := json.Marshal(line)
	c.SetRawStats(container, append(data, '\n'))
}

// SetRawStats sets the raw output returned for container.
func (c *MockClient) SetRawStats(container string, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[container] = raw
	delete(c.errs, container)
}

// SetError makes Stats fail for container.
func (c *MockClient) SetError(container string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[container] = err
}

// StatsCalls returns how many times Stats was invoked.
func (c *MockClient) StatsCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsCalls
}

// Stats implements Client.
func (c *MockClient) Stats(ctx context.Context, container string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.statsCalls++

	if err, ok := c.errs[container]; ok {
		return nil, err
	}
	out, ok := c.outputs[container]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, container)
	}
	return out, nil
}

// Ping implements Client.
func (c *MockClient) Ping(ctx context.Context) error {
	return c.PingErr
}
