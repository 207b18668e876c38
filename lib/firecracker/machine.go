package firecracker

import (
	"context"
	"net/http"
)

// PutMachineConfig replaces the machine configuration.
func (c *Client) PutMachineConfig(ctx context.Context, m MachineConfig) error {
	return c.send(ctx, "PutMachineConfig", http.MethodPut, "/machine-config", m)
}

// PatchMachineConfig changes only the fields that are set in m.
func (c *Client) PatchMachineConfig(ctx context.Context, m MachineConfig) error {
	return c.send(ctx, "PatchMachineConfig", http.MethodPatch, "/machine-config", m)
}

// GetMachineConfig returns the machine configuration the server holds.
func (c *Client) GetMachineConfig(ctx context.Context) (*MachineConfig, error) {
	var m MachineConfig
	if err := c.get(ctx, "GetMachineConfig", "/machine-config", "MachineConfiguration", &m); err != nil {
		return nil, err
	}
	return &m, nil
}
