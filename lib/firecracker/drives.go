package firecracker

import (
	"context"
	"net/http"
)

// PutDrive creates or replaces the drive addressed by d.DriveID.
// Sending the same id again replaces the previous configuration.
func (c *Client) PutDrive(ctx context.Context, d Drive) error {
	return c.send(ctx, "PutDrive", http.MethodPut, resourcePath("drives", d.DriveID), d)
}

// PatchDrive updates the backing file or rate limiter of an attached drive.
func (c *Client) PatchDrive(ctx context.Context, d PartialDrive) error {
	return c.send(ctx, "PatchDrive", http.MethodPatch, resourcePath("drives", d.DriveID), d)
}
