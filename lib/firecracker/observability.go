package firecracker

import (
	"context"
	"net/http"
)

// PutMetrics configures where the hypervisor writes its metrics.
func (c *Client) PutMetrics(ctx context.Context, m MetricsConfig) error {
	return c.send(ctx, "PutMetrics", http.MethodPut, "/metrics", m)
}

// PutLogger configures where and how verbosely the hypervisor logs.
func (c *Client) PutLogger(ctx context.Context, l LoggerConfig) error {
	return c.send(ctx, "PutLogger", http.MethodPut, "/logger", l)
}
