package firecracker

import (
	"context"
	"net/http"
)

// CreateSnapshot writes the VM state and memory to the given files.
// The VM must be paused; the server rejects the call otherwise.
func (c *Client) CreateSnapshot(ctx context.Context, p SnapshotCreateParams) error {
	return c.send(ctx, "CreateSnapshot", http.MethodPut, "/snapshot/create", p)
}

// LoadSnapshot restores a VM into a freshly started hypervisor.
func (c *Client) LoadSnapshot(ctx context.Context, p SnapshotLoadParams) error {
	return c.send(ctx, "LoadSnapshot", http.MethodPut, "/snapshot/load", p)
}
