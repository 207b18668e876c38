package firecracker

import (
	"context"
	"net/http"
)

// PutNetworkInterface creates or replaces the interface addressed by n.IfaceID.
// The tap device named by HostDevName must already exist on the host.
func (c *Client) PutNetworkInterface(ctx context.Context, n NetworkInterface) error {
	return c.send(ctx, "PutNetworkInterface", http.MethodPut, resourcePath("network-interfaces", n.IfaceID), n)
}

// PatchNetworkInterface updates the rate limiters of an existing interface.
func (c *Client) PatchNetworkInterface(ctx context.Context, n PartialNetworkInterface) error {
	return c.send(ctx, "PatchNetworkInterface", http.MethodPatch, resourcePath("network-interfaces", n.IfaceID), n)
}
