package firecracker

import (
	"context"
	"net/http"
)

func (c *Client) PutBalloon(ctx context.Context, b Balloon) error {
	return c.send(ctx, "PutBalloon", http.MethodPut, "/balloon", b)
}

func (c *Client) PatchBalloon(ctx context.Context, u BalloonUpdate) error {
	return c.send(ctx, "PatchBalloon", http.MethodPatch, "/balloon", u)
}

func (c *Client) GetBalloon(ctx context.Context) (*Balloon, error) {
	var b Balloon
	if err := c.get(ctx, "GetBalloon", "/balloon", "Balloon", &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBalloonStats requires a non-zero statistics polling interval.
func (c *Client) GetBalloonStats(ctx context.Context) (*BalloonStats, error) {
	var s BalloonStats
	if err := c.get(ctx, "GetBalloonStats", "/balloon/statistics", "BalloonStats", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) PatchBalloonStats(ctx context.Context, u BalloonStatsUpdate) error {
	return c.send(ctx, "PatchBalloonStats", http.MethodPatch, "/balloon/statistics", u)
}
