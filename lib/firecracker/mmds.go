package firecracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// PutMMDSConfig enables the metadata service on the given interfaces.
func (c *Client) PutMMDSConfig(ctx context.Context, cfg MMDSConfig) error {
	return c.send(ctx, "PutMMDSConfig", http.MethodPut, "/mmds/config", cfg)
}

// PutMMDS replaces the metadata store with data, which must encode as a JSON object.
func (c *Client) PutMMDS(ctx context.Context, data any) error {
	body, err := mmdsObject(data)
	if err != nil {
		return err
	}
	return c.do(ctx, request{op: "PutMMDS", method: http.MethodPut, path: "/mmds", body: body})
}

// PatchMMDS merges data into the metadata store. Like PutMMDS, data must
// encode as a JSON object.
func (c *Client) PatchMMDS(ctx context.Context, data any) error {
	body, err := mmdsObject(data)
	if err != nil {
		return err
	}
	return c.do(ctx, request{op: "PatchMMDS", method: http.MethodPatch, path: "/mmds", body: body})
}

func mmdsObject(data any) (json.RawMessage, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, invalid("mmds", "data", fmt.Sprintf("must encode as JSON: %v", err))
	}
	if len(body) == 0 || body[0] != '{' {
		return nil, invalid("mmds", "data", "must be a JSON object")
	}
	return body, nil
}

// GetMMDS decodes the metadata store into out.
func (c *Client) GetMMDS(ctx context.Context, out any) error {
	return c.get(ctx, "GetMMDS", "/mmds", "MmdsContentsObject", out)
}
