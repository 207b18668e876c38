package firecracker

import "encoding/json"

// CPUTemplate selects a predefined guest CPU feature set.
type CPUTemplate string

const (
	CPUTemplateC3   CPUTemplate = "C3"
	CPUTemplateT2   CPUTemplate = "T2"
	CPUTemplateT2S  CPUTemplate = "T2S"
	CPUTemplateT2CL CPUTemplate = "T2CL"
	CPUTemplateT2A  CPUTemplate = "T2A"
	CPUTemplateV1N1 CPUTemplate = "V1N1"
	CPUTemplateNone CPUTemplate = "None"
)

var cpuTemplates = []CPUTemplate{
	CPUTemplateC3, CPUTemplateT2, CPUTemplateT2S, CPUTemplateT2CL,
	CPUTemplateT2A, CPUTemplateV1N1, CPUTemplateNone,
}

// HugePages selects the guest memory backing page size.
type HugePages string

const (
	HugePagesNone HugePages = "None"
	HugePages2M   HugePages = "2M"
)

// MachineConfig is the VM resource allocation. Every field is optional so the
// same type serves PUT (full) and PATCH (partial) updates.
type MachineConfig struct {
	VcpuCount       *int         `json:"vcpu_count,omitempty"`
	MemSizeMib      *int         `json:"mem_size_mib,omitempty"`
	Smt             *bool        `json:"smt,omitempty"`
	TrackDirtyPages *bool        `json:"track_dirty_pages,omitempty"`
	CPUTemplate     *CPUTemplate `json:"cpu_template,omitempty"`
	HugePages       *HugePages   `json:"huge_pages,omitempty"`
}

// BootSource is the kernel boot configuration.
type BootSource struct {
	KernelImagePath string  `json:"kernel_image_path"`
	InitrdPath      *string `json:"initrd_path,omitempty"`
	BootArgs        *string `json:"boot_args,omitempty"`
}

// TokenBucket bounds one I/O dimension of a guest device.
// RefillTime is in milliseconds.
type TokenBucket struct {
	Size         int64  `json:"size"`
	OneTimeBurst *int64 `json:"one_time_burst,omitempty"`
	RefillTime   int64  `json:"refill_time"`
}

// RateLimiter is a device-side I/O limit (bandwidth in bytes, ops in operations).
// It is enforced by the hypervisor, unlike the client-side request limiter.
type RateLimiter struct {
	Bandwidth *TokenBucket `json:"bandwidth,omitempty"`
	Ops       *TokenBucket `json:"ops,omitempty"`
}

// CacheType is the block device caching strategy.
type CacheType string

const (
	CacheUnsafe    CacheType = "Unsafe"
	CacheWriteback CacheType = "Writeback"
)

// IOEngine is the block device I/O engine.
type IOEngine string

const (
	IOEngineSync  IOEngine = "Sync"
	IOEngineAsync IOEngine = "Async"
)

// Drive is a block device attachment, addressed by DriveID.
type Drive struct {
	DriveID      string       `json:"drive_id"`
	PathOnHost   string       `json:"path_on_host"`
	IsRootDevice bool         `json:"is_root_device"`
	IsReadOnly   bool         `json:"is_read_only"`
	PartUUID     *string      `json:"partuuid,omitempty"`
	CacheType    *CacheType   `json:"cache_type,omitempty"`
	IOEngine     *IOEngine    `json:"io_engine,omitempty"`
	RateLimiter  *RateLimiter `json:"rate_limiter,omitempty"`
	Socket       *string      `json:"socket,omitempty"`
}

// PartialDrive updates a drive after boot (backing file swap or new limits).
type PartialDrive struct {
	DriveID     string       `json:"drive_id"`
	PathOnHost  *string      `json:"path_on_host,omitempty"`
	RateLimiter *RateLimiter `json:"rate_limiter,omitempty"`
}

// NetworkInterface maps a guest NIC onto a host tap device.
type NetworkInterface struct {
	IfaceID       string       `json:"iface_id"`
	HostDevName   string       `json:"host_dev_name"`
	GuestMAC      *string      `json:"guest_mac,omitempty"`
	RxRateLimiter *RateLimiter `json:"rx_rate_limiter,omitempty"`
	TxRateLimiter *RateLimiter `json:"tx_rate_limiter,omitempty"`
}

// PartialNetworkInterface updates the rate limiters of an existing interface.
type PartialNetworkInterface struct {
	IfaceID       string       `json:"iface_id"`
	RxRateLimiter *RateLimiter `json:"rx_rate_limiter,omitempty"`
	TxRateLimiter *RateLimiter `json:"tx_rate_limiter,omitempty"`
}

// SnapshotType selects full or diff snapshots.
type SnapshotType string

const (
	SnapshotFull SnapshotType = "Full"
	SnapshotDiff SnapshotType = "Diff"
)

// SnapshotCreateParams requests a snapshot of a paused VM.
type SnapshotCreateParams struct {
	SnapshotPath string        `json:"snapshot_path"`
	MemFilePath  string        `json:"mem_file_path"`
	SnapshotType *SnapshotType `json:"snapshot_type,omitempty"`
	Version      *string       `json:"version,omitempty"`
}

// MemBackendType is the guest memory source when loading a snapshot.
type MemBackendType string

const (
	MemBackendFile MemBackendType = "File"
	MemBackendUffd MemBackendType = "Uffd"
)

// MemBackend replaces MemFilePath when memory is served by a file or a userfaultfd handler.
type MemBackend struct {
	BackendPath string         `json:"backend_path"`
	BackendType MemBackendType `json:"backend_type"`
}

// SnapshotLoadParams restores a VM. Exactly one of MemFilePath and MemBackend is set.
type SnapshotLoadParams struct {
	SnapshotPath        string      `json:"snapshot_path"`
	MemFilePath         string      `json:"mem_file_path,omitempty"`
	MemBackend          *MemBackend `json:"mem_backend,omitempty"`
	EnableDiffSnapshots *bool       `json:"enable_diff_snapshots,omitempty"`
	ResumeVM            *bool       `json:"resume_vm,omitempty"`
}

// ActionType is a synchronous instance action.
type ActionType string

const (
	ActionInstanceStart  ActionType = "InstanceStart"
	ActionSendCtrlAltDel ActionType = "SendCtrlAltDel"
	ActionFlushMetrics   ActionType = "FlushMetrics"
)

var actionTypes = []ActionType{ActionInstanceStart, ActionSendCtrlAltDel, ActionFlushMetrics}

// InstanceActionInfo is the body of PUT /actions.
type InstanceActionInfo struct {
	ActionType ActionType `json:"action_type"`
}

// InstanceState is the server-reported lifecycle state.
type InstanceState string

const (
	StateNotStarted InstanceState = "Not started"
	StateRunning    InstanceState = "Running"
	StatePaused     InstanceState = "Paused"
)

// InstanceInfo is a read-only status snapshot produced by the server.
type InstanceInfo struct {
	ID         string        `json:"id"`
	State      InstanceState `json:"state"`
	VMMVersion string        `json:"vmm_version"`
	AppName    string        `json:"app_name,omitempty"`
}

// VMState is the target of PATCH /vm.
type VMState string

const (
	VMPaused  VMState = "Paused"
	VMResumed VMState = "Resumed"
)

// VMStateUpdate is the body of PATCH /vm.
type VMStateUpdate struct {
	State VMState `json:"state"`
}

// MetricsConfig points the hypervisor metrics sink at a file or named pipe.
type MetricsConfig struct {
	MetricsPath string `json:"metrics_path"`
}

// LogLevel is the hypervisor log verbosity.
type LogLevel string

const (
	LogLevelError   LogLevel = "Error"
	LogLevelWarning LogLevel = "Warning"
	LogLevelInfo    LogLevel = "Info"
	LogLevelDebug   LogLevel = "Debug"
)

var logLevels = []LogLevel{LogLevelError, LogLevelWarning, LogLevelInfo, LogLevelDebug}

// LoggerConfig points the hypervisor logger at a file or named pipe.
type LoggerConfig struct {
	LogPath       string    `json:"log_path"`
	Level         *LogLevel `json:"level,omitempty"`
	ShowLevel     *bool     `json:"show_level,omitempty"`
	ShowLogOrigin *bool     `json:"show_log_origin,omitempty"`
	Module        *string   `json:"module,omitempty"`
}

// Balloon is the memory balloon device.
type Balloon struct {
	AmountMib             int   `json:"amount_mib"`
	DeflateOnOOM          *bool `json:"deflate_on_oom,omitempty"`
	StatsPollingIntervalS *int  `json:"stats_polling_interval_s,omitempty"`
}

// BalloonUpdate changes the balloon target after boot.
type BalloonUpdate struct {
	AmountMib int `json:"amount_mib"`
}

// BalloonStatsUpdate changes the statistics polling interval after boot.
type BalloonStatsUpdate struct {
	StatsPollingIntervalS int `json:"stats_polling_interval_s"`
}

// BalloonStats are the guest memory statistics reported by the balloon device.
type BalloonStats struct {
	TargetPages        int    `json:"target_pages"`
	ActualPages        int    `json:"actual_pages"`
	TargetMib          int    `json:"target_mib"`
	ActualMib          int    `json:"actual_mib"`
	SwapIn             *int64 `json:"swap_in,omitempty"`
	SwapOut            *int64 `json:"swap_out,omitempty"`
	MajorFaults        *int64 `json:"major_faults,omitempty"`
	MinorFaults        *int64 `json:"minor_faults,omitempty"`
	FreeMemory         *int64 `json:"free_memory,omitempty"`
	TotalMemory        *int64 `json:"total_memory,omitempty"`
	AvailableMemory    *int64 `json:"available_memory,omitempty"`
	DiskCaches         *int64 `json:"disk_caches,omitempty"`
	HugetlbAllocations *int64 `json:"hugetlb_allocations,omitempty"`
	HugetlbFailures    *int64 `json:"hugetlb_failures,omitempty"`
}

// Vsock is the host/guest virtio-vsock device.
type Vsock struct {
	GuestCID uint32  `json:"guest_cid"`
	UDSPath  string  `json:"uds_path"`
	VsockID  *string `json:"vsock_id,omitempty"`
}

// EntropyDevice is the virtio-rng device.
type EntropyDevice struct {
	RateLimiter *RateLimiter `json:"rate_limiter,omitempty"`
}

// MMDSVersion selects the metadata service protocol.
type MMDSVersion string

const (
	MMDSV1 MMDSVersion = "V1"
	MMDSV2 MMDSVersion = "V2"
)

// MMDSConfig exposes the metadata service on the listed interfaces.
type MMDSConfig struct {
	NetworkInterfaces []string     `json:"network_interfaces"`
	Version           *MMDSVersion `json:"version,omitempty"`
	IPv4Address       *string      `json:"ipv4_address,omitempty"`
}

// CPUConfig is a custom CPU template. The modifier lists are passed through untouched.
type CPUConfig struct {
	CPUIDModifiers  json.RawMessage `json:"cpuid_modifiers,omitempty"`
	MSRModifiers    json.RawMessage `json:"msr_modifiers,omitempty"`
	RegModifiers    json.RawMessage `json:"reg_modifiers,omitempty"`
	VcpuFeatures    json.RawMessage `json:"vcpu_features,omitempty"`
	KVMCapabilities json.RawMessage `json:"kvm_capabilities,omitempty"`
}

// Version is the hypervisor build version.
type Version struct {
	FirecrackerVersion string `json:"firecracker_version"`
}

// apiFault is the error body returned by the control plane.
type apiFault struct {
	FaultMessage string `json:"fault_message"`
}
