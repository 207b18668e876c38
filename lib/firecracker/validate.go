package firecracker

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// Validator is implemented by every resource that is checked before it is sent.
type Validator interface {
	Validate() error
}

var (
	macRegex      = regexp.MustCompile(`^[0-9A-Fa-f]{2}(:[0-9A-Fa-f]{2}){5}$`)
	partUUIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// minGuestCID is the first context id available to guests; 0-2 are reserved.
const minGuestCID = 3

// checkHostPath validates a path the hypervisor opens on the host.
// It is a syntactic check only; the file is not touched.
func checkHostPath(resource, field, path string, absolute bool) error {
	if path == "" {
		return invalid(resource, field, "must not be empty")
	}
	if strings.ContainsRune(path, 0) {
		return invalid(resource, field, "must not contain NUL bytes")
	}
	if absolute && !strings.HasPrefix(path, "/") {
		return invalid(resource, field, "must be an absolute path")
	}
	if lo.Contains(strings.Split(path, "/"), "..") {
		return invalid(resource, field, "must not contain parent directory references")
	}
	return nil
}

func checkEnum[T comparable](resource, field string, v *T, allowed ...T) error {
	if v == nil || lo.Contains(allowed, *v) {
		return nil
	}
	return invalid(resource, field, fmt.Sprintf("must be one of %v, got %v", allowed, *v))
}

// Validate checks the machine configuration.
func (m MachineConfig) Validate() error {
	if m.VcpuCount != nil && *m.VcpuCount < 1 {
		return invalid("machine config", "vcpu_count", "must be at least 1")
	}
	if m.MemSizeMib != nil && *m.MemSizeMib < 1 {
		return invalid("machine config", "mem_size_mib", "must be at least 1")
	}
	if err := checkEnum("machine config", "cpu_template", m.CPUTemplate, cpuTemplates...); err != nil {
		return err
	}
	return checkEnum("machine config", "huge_pages", m.HugePages, HugePagesNone, HugePages2M)
}

// Validate checks the boot source.
func (b BootSource) Validate() error {
	if err := checkHostPath("boot source", "kernel_image_path", b.KernelImagePath, true); err != nil {
		return err
	}
	if b.InitrdPath != nil {
		return checkHostPath("boot source", "initrd_path", *b.InitrdPath, true)
	}
	return nil
}

func (t *TokenBucket) validate(resource, field string) error {
	if t == nil {
		return nil
	}
	if t.Size < 0 {
		return invalid(resource, field+".size", "must not be negative")
	}
	if t.RefillTime < 0 {
		return invalid(resource, field+".refill_time", "must not be negative")
	}
	if t.OneTimeBurst != nil && *t.OneTimeBurst < 0 {
		return invalid(resource, field+".one_time_burst", "must not be negative")
	}
	return nil
}

func (r *RateLimiter) validate(resource, field string) error {
	if r == nil {
		return nil
	}
	if err := r.Bandwidth.validate(resource, field+".bandwidth"); err != nil {
		return err
	}
	return r.Ops.validate(resource, field+".ops")
}

// Validate checks a single drive. Uniqueness and the root drive rule are
// checked by VMConfig.Validate, which sees every drive.
func (d Drive) Validate() error {
	if d.DriveID == "" {
		return invalid("drive", "drive_id", "must not be empty")
	}
	if err := checkHostPath("drive", "path_on_host", d.PathOnHost, true); err != nil {
		return err
	}
	if d.PartUUID != nil {
		if !d.IsRootDevice {
			return invalid("drive", "partuuid", "is only allowed on the root device")
		}
		if !partUUIDRegex.MatchString(*d.PartUUID) {
			return invalid("drive", "partuuid", "must be a partition UUID")
		}
	}
	if err := checkEnum("drive", "cache_type", d.CacheType, CacheUnsafe, CacheWriteback); err != nil {
		return err
	}
	if err := checkEnum("drive", "io_engine", d.IOEngine, IOEngineSync, IOEngineAsync); err != nil {
		return err
	}
	if d.Socket != nil && *d.Socket == "" {
		return invalid("drive", "socket", "must not be empty when set")
	}
	return d.RateLimiter.validate("drive", "rate_limiter")
}

// Validate checks a drive update.
func (d PartialDrive) Validate() error {
	if d.DriveID == "" {
		return invalid("drive update", "drive_id", "must not be empty")
	}
	if d.PathOnHost != nil {
		if err := checkHostPath("drive update", "path_on_host", *d.PathOnHost, true); err != nil {
			return err
		}
	}
	return d.RateLimiter.validate("drive update", "rate_limiter")
}

// Validate checks a network interface.
func (n NetworkInterface) Validate() error {
	if n.IfaceID == "" {
		return invalid("network interface", "iface_id", "must not be empty")
	}
	if n.HostDevName == "" {
		return invalid("network interface", "host_dev_name", "must not be empty")
	}
	if n.GuestMAC != nil && !macRegex.MatchString(*n.GuestMAC) {
		return invalid("network interface", "guest_mac", "must be six colon-separated hex octets")
	}
	if err := n.RxRateLimiter.validate("network interface", "rx_rate_limiter"); err != nil {
		return err
	}
	return n.TxRateLimiter.validate("network interface", "tx_rate_limiter")
}

// Validate checks a network interface update.
func (n PartialNetworkInterface) Validate() error {
	if n.IfaceID == "" {
		return invalid("network interface update", "iface_id", "must not be empty")
	}
	if err := n.RxRateLimiter.validate("network interface update", "rx_rate_limiter"); err != nil {
		return err
	}
	return n.TxRateLimiter.validate("network interface update", "tx_rate_limiter")
}

// Validate checks the snapshot request.
func (s SnapshotCreateParams) Validate() error {
	if err := checkHostPath("snapshot create", "snapshot_path", s.SnapshotPath, false); err != nil {
		return err
	}
	if err := checkHostPath("snapshot create", "mem_file_path", s.MemFilePath, false); err != nil {
		return err
	}
	if s.SnapshotPath == s.MemFilePath {
		return invalid("snapshot create", "mem_file_path", "must differ from snapshot_path")
	}
	if err := checkEnum("snapshot create", "snapshot_type", s.SnapshotType, SnapshotFull, SnapshotDiff); err != nil {
		return err
	}
	if s.Version != nil && *s.Version == "" {
		return invalid("snapshot create", "version", "must not be empty when set")
	}
	return nil
}

// Validate checks the snapshot restore request.
func (s SnapshotLoadParams) Validate() error {
	if err := checkHostPath("snapshot load", "snapshot_path", s.SnapshotPath, false); err != nil {
		return err
	}
	switch {
	case s.MemBackend != nil && s.MemFilePath != "":
		return invalid("snapshot load", "mem_backend", "is mutually exclusive with mem_file_path")
	case s.MemBackend != nil:
		if err := checkHostPath("snapshot load", "mem_backend.backend_path", s.MemBackend.BackendPath, false); err != nil {
			return err
		}
		return checkEnum("snapshot load", "mem_backend.backend_type", &s.MemBackend.BackendType, MemBackendFile, MemBackendUffd)
	default:
		return checkHostPath("snapshot load", "mem_file_path", s.MemFilePath, false)
	}
}

// Validate checks the action kind against the closed set.
func (a InstanceActionInfo) Validate() error {
	return checkEnum("action", "action_type", &a.ActionType, actionTypes...)
}

// Validate checks the requested VM state.
func (v VMStateUpdate) Validate() error {
	return checkEnum("vm state", "state", &v.State, VMPaused, VMResumed)
}

// Validate checks the metrics sink.
func (m MetricsConfig) Validate() error {
	return checkHostPath("metrics", "metrics_path", m.MetricsPath, false)
}

// Validate checks the logger sink.
func (l LoggerConfig) Validate() error {
	if err := checkHostPath("logger", "log_path", l.LogPath, false); err != nil {
		return err
	}
	if err := checkEnum("logger", "level", l.Level, logLevels...); err != nil {
		return err
	}
	if l.Module != nil && *l.Module == "" {
		return invalid("logger", "module", "must not be empty when set")
	}
	return nil
}

// Validate checks the balloon device.
func (b Balloon) Validate() error {
	if b.AmountMib < 0 {
		return invalid("balloon", "amount_mib", "must not be negative")
	}
	if b.StatsPollingIntervalS != nil && *b.StatsPollingIntervalS < 0 {
		return invalid("balloon", "stats_polling_interval_s", "must not be negative")
	}
	return nil
}

// Validate checks the balloon update.
func (b BalloonUpdate) Validate() error {
	if b.AmountMib < 0 {
		return invalid("balloon update", "amount_mib", "must not be negative")
	}
	return nil
}

// Validate checks the balloon statistics update.
func (b BalloonStatsUpdate) Validate() error {
	if b.StatsPollingIntervalS < 0 {
		return invalid("balloon statistics update", "stats_polling_interval_s", "must not be negative")
	}
	return nil
}

// Validate checks the vsock device.
func (v Vsock) Validate() error {
	if v.GuestCID < minGuestCID {
		return invalid("vsock", "guest_cid", fmt.Sprintf("must be at least %d", minGuestCID))
	}
	if v.VsockID != nil && *v.VsockID == "" {
		return invalid("vsock", "vsock_id", "must not be empty when set")
	}
	return checkHostPath("vsock", "uds_path", v.UDSPath, false)
}

// Validate checks the entropy device.
func (e EntropyDevice) Validate() error {
	return e.RateLimiter.validate("entropy", "rate_limiter")
}

// Validate checks the metadata service configuration.
func (m MMDSConfig) Validate() error {
	if len(m.NetworkInterfaces) == 0 {
		return invalid("mmds config", "network_interfaces", "must list at least one interface")
	}
	if lo.Contains(m.NetworkInterfaces, "") {
		return invalid("mmds config", "network_interfaces", "must not contain empty ids")
	}
	if err := checkEnum("mmds config", "version", m.Version, MMDSV1, MMDSV2); err != nil {
		return err
	}
	if m.IPv4Address != nil {
		addr, err := netip.ParseAddr(*m.IPv4Address)
		if err != nil || !addr.Is4() {
			return invalid("mmds config", "ipv4_address", "must be an IPv4 address")
		}
	}
	return nil
}
