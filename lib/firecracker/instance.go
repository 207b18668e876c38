package firecracker

import (
	"context"
	"net/http"
)

// CreateInstanceAction issues a synchronous action. Actions are not
// idempotent: do not retry a failed InstanceStart blindly.
func (c *Client) CreateInstanceAction(ctx context.Context, a InstanceActionInfo) error {
	return c.send(ctx, "CreateInstanceAction", http.MethodPut, "/actions", a)
}

// Start boots the configured VM.
func (c *Client) Start(ctx context.Context) error {
	return c.CreateInstanceAction(ctx, InstanceActionInfo{ActionType: ActionInstanceStart})
}

// SendCtrlAltDel asks the guest to shut down.
func (c *Client) SendCtrlAltDel(ctx context.Context) error {
	return c.CreateInstanceAction(ctx, InstanceActionInfo{ActionType: ActionSendCtrlAltDel})
}

// FlushMetrics makes the hypervisor write its metrics now.
func (c *Client) FlushMetrics(ctx context.Context) error {
	return c.CreateInstanceAction(ctx, InstanceActionInfo{ActionType: ActionFlushMetrics})
}

// GetInstanceInfo returns the server's view of the instance.
func (c *Client) GetInstanceInfo(ctx context.Context) (*InstanceInfo, error) {
	var info InstanceInfo
	if err := c.get(ctx, "GetInstanceInfo", "/", "InstanceInfo", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetVersion returns the hypervisor version.
func (c *Client) GetVersion(ctx context.Context) (*Version, error) {
	var v Version
	if err := c.get(ctx, "GetVersion", "/version", "FirecrackerVersion", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// PatchVMState pauses or resumes a running VM.
func (c *Client) PatchVMState(ctx context.Context, u VMStateUpdate) error {
	return c.send(ctx, "PatchVMState", http.MethodPatch, "/vm", u)
}

// Pause suspends the vCPUs.
func (c *Client) Pause(ctx context.Context) error {
	return c.PatchVMState(ctx, VMStateUpdate{State: VMPaused})
}

// Resume continues a paused VM.
func (c *Client) Resume(ctx context.Context) error {
	return c.PatchVMState(ctx, VMStateUpdate{State: VMResumed})
}
