package firecracker

import (
	"context"
	"net/http"
)

// PutVsock configures the vsock device.
func (c *Client) PutVsock(ctx context.Context, v Vsock) error {
	return c.send(ctx, "PutVsock", http.MethodPut, "/vsock", v)
}

// PutEntropy configures the virtio-rng device.
func (c *Client) PutEntropy(ctx context.Context, e EntropyDevice) error {
	return c.send(ctx, "PutEntropy", http.MethodPut, "/entropy", e)
}

// PutCPUConfig applies a custom CPU template.
func (c *Client) PutCPUConfig(ctx context.Context, cfg CPUConfig) error {
	return c.do(ctx, request{op: "PutCPUConfig", method: http.MethodPut, path: "/cpu-config", body: cfg})
}
