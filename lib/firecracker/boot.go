package firecracker

import (
	"context"
	"net/http"
)

// PutBootSource sets the kernel, initrd and boot arguments. Pre-boot only.
func (c *Client) PutBootSource(ctx context.Context, b BootSource) error {
	return c.send(ctx, "PutBootSource", http.MethodPut, "/boot-source", b)
}
