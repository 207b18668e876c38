package oapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSwagger(t *testing.T) {
	doc, err := GetSwagger()
	require.NoError(t, err)

	for _, path := range []string{"/", "/actions", "/boot-source", "/drives/{drive_id}", "/machine-config", "/snapshot/create"} {
		assert.NotNil(t, doc.Paths.Find(path), "missing path %s", path)
	}
}

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		body    string
		wantErr bool
	}{
		{
			name:   "instance info",
			schema: "InstanceInfo",
			body:   `{"id":"vm-1","state":"Running","vmm_version":"1.10.0","app_name":"Firecracker"}`,
		},
		{
			name:   "instance info with unknown field",
			schema: "InstanceInfo",
			body:   `{"id":"vm-1","state":"Paused","vmm_version":"1.10.0","extra":{"x":1}}`,
		},
		{
			name:    "instance info missing state",
			schema:  "InstanceInfo",
			body:    `{"id":"vm-1","vmm_version":"1.10.0"}`,
			wantErr: true,
		},
		{
			name:    "instance info unknown state",
			schema:  "InstanceInfo",
			body:    `{"id":"vm-1","state":"Exploded","vmm_version":"1.10.0"}`,
			wantErr: true,
		},
		{
			name:    "machine config vcpu zero",
			schema:  "MachineConfiguration",
			body:    `{"vcpu_count":0}`,
			wantErr: true,
		},
		{
			name:    "not json",
			schema:  "Error",
			body:    `oops`,
			wantErr: true,
		},
		{
			name:    "unknown schema",
			schema:  "Nope",
			body:    `{}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSON(tt.schema, []byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
