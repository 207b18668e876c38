package firecracker

import (
	"encoding/json"
	"testing"

	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"
	"github.com/go-openapi/strfmt"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reencode marshals v and decodes the bytes into out.
func reencode(t *testing.T, v, out any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out), string(data))
}

// The request bodies must be accepted by the upstream SDK's generated models,
// which carry the hypervisor's own required-field and range rules.
func TestRequestBodiesMatchUpstreamModels(t *testing.T) {
	t.Run("machine config", func(t *testing.T) {
		var m models.MachineConfiguration
		reencode(t, NewMachineConfig(2, 1024), &m)
		require.NoError(t, m.Validate(strfmt.Default))
		assert.Equal(t, int64(2), *m.VcpuCount)
		assert.Equal(t, int64(1024), *m.MemSizeMib)
	})

	t.Run("boot source", func(t *testing.T) {
		var b models.BootSource
		reencode(t, NewBootSource("/vmlinux").WithBootArgs("console=ttyS0").WithInitrd("/initrd"), &b)
		require.NoError(t, b.Validate(strfmt.Default))
		assert.Equal(t, "/vmlinux", *b.KernelImagePath)
		assert.Equal(t, "console=ttyS0", b.BootArgs)
		assert.Equal(t, "/initrd", b.InitrdPath)
	})

	t.Run("drive", func(t *testing.T) {
		limiter := RateLimiter{
			Bandwidth: lo.ToPtr(NewTokenBucket(1<<20, 100).WithOneTimeBurst(1 << 22)),
			Ops:       lo.ToPtr(NewTokenBucket(1000, 1000)),
		}
		var d models.Drive
		reencode(t, NewDrive("rootfs", "/rootfs.ext4").AsRoot().WithCacheType(CacheWriteback).WithRateLimiter(limiter), &d)
		require.NoError(t, d.Validate(strfmt.Default))
		assert.Equal(t, "rootfs", *d.DriveID)
		assert.True(t, *d.IsRootDevice)
		assert.False(t, *d.IsReadOnly)
		assert.Equal(t, int64(1<<20), *d.RateLimiter.Bandwidth.Size)
		assert.Equal(t, int64(1<<22), *d.RateLimiter.Bandwidth.OneTimeBurst)
	})

	t.Run("network interface", func(t *testing.T) {
		var n models.NetworkInterface
		reencode(t, NewNetworkInterface("eth0", "tap0").WithGuestMAC("06:00:ac:10:00:02"), &n)
		require.NoError(t, n.Validate(strfmt.Default))
		assert.Equal(t, "eth0", *n.IfaceID)
		assert.Equal(t, "tap0", *n.HostDevName)
		assert.Equal(t, "06:00:ac:10:00:02", n.GuestMac)
	})
}

func TestResponsesFromUpstreamModels(t *testing.T) {
	src := models.InstanceInfo{
		AppName:    lo.ToPtr("Firecracker"),
		ID:         lo.ToPtr("vm-1"),
		State:      lo.ToPtr(string(StateRunning)),
		VmmVersion: lo.ToPtr("1.0.0"),
	}
	var info InstanceInfo
	reencode(t, src, &info)
	assert.Equal(t, InstanceInfo{ID: "vm-1", State: StateRunning, VMMVersion: "1.0.0", AppName: "Firecracker"}, info)
}
