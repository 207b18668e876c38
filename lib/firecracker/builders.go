package firecracker

import "github.com/samber/lo"

// The constructors below set only the required fields; the With* helpers
// return modified copies. Struct literals are equally valid: validation and
// encoding look only at the resulting value.

// NewMachineConfig returns a machine configuration with vCPU count and memory set.
func NewMachineConfig(vcpus, memMib int) MachineConfig {
	return MachineConfig{VcpuCount: lo.ToPtr(vcpus), MemSizeMib: lo.ToPtr(memMib)}
}

func (m MachineConfig) WithSMT(enabled bool) MachineConfig {
	m.Smt = lo.ToPtr(enabled)
	return m
}

func (m MachineConfig) WithDirtyPageTracking(enabled bool) MachineConfig {
	m.TrackDirtyPages = lo.ToPtr(enabled)
	return m
}

func (m MachineConfig) WithCPUTemplate(t CPUTemplate) MachineConfig {
	m.CPUTemplate = lo.ToPtr(t)
	return m
}

func (m MachineConfig) WithHugePages(h HugePages) MachineConfig {
	m.HugePages = lo.ToPtr(h)
	return m
}

// NewBootSource returns a boot source for the given kernel image.
func NewBootSource(kernelImagePath string) BootSource {
	return BootSource{KernelImagePath: kernelImagePath}
}

func (b BootSource) WithInitrd(path string) BootSource {
	b.InitrdPath = lo.ToPtr(path)
	return b
}

func (b BootSource) WithBootArgs(args string) BootSource {
	b.BootArgs = lo.ToPtr(args)
	return b
}

// NewDrive returns a writable, non-root drive.
func NewDrive(id, pathOnHost string) Drive {
	return Drive{DriveID: id, PathOnHost: pathOnHost}
}

func (d Drive) AsRoot() Drive {
	d.IsRootDevice = true
	return d
}

func (d Drive) ReadOnly() Drive {
	d.IsReadOnly = true
	return d
}

func (d Drive) WithPartUUID(uuid string) Drive {
	d.PartUUID = lo.ToPtr(uuid)
	return d
}

func (d Drive) WithCacheType(c CacheType) Drive {
	d.CacheType = lo.ToPtr(c)
	return d
}

func (d Drive) WithIOEngine(e IOEngine) Drive {
	d.IOEngine = lo.ToPtr(e)
	return d
}

func (d Drive) WithRateLimiter(r RateLimiter) Drive {
	d.RateLimiter = &r
	return d
}

// NewNetworkInterface maps iface id onto a host tap device.
func NewNetworkInterface(id, hostDevName string) NetworkInterface {
	return NetworkInterface{IfaceID: id, HostDevName: hostDevName}
}

func (n NetworkInterface) WithGuestMAC(mac string) NetworkInterface {
	n.GuestMAC = lo.ToPtr(mac)
	return n
}

func (n NetworkInterface) WithRxRateLimiter(r RateLimiter) NetworkInterface {
	n.RxRateLimiter = &r
	return n
}

func (n NetworkInterface) WithTxRateLimiter(r RateLimiter) NetworkInterface {
	n.TxRateLimiter = &r
	return n
}

// NewTokenBucket returns a bucket of size tokens refilled every refillMs milliseconds.
func NewTokenBucket(size, refillMs int64) TokenBucket {
	return TokenBucket{Size: size, RefillTime: refillMs}
}

func (t TokenBucket) WithOneTimeBurst(burst int64) TokenBucket {
	t.OneTimeBurst = lo.ToPtr(burst)
	return t
}

// NewSnapshotCreateParams returns a full snapshot request.
func NewSnapshotCreateParams(snapshotPath, memFilePath string) SnapshotCreateParams {
	return SnapshotCreateParams{SnapshotPath: snapshotPath, MemFilePath: memFilePath}
}

func (s SnapshotCreateParams) WithType(t SnapshotType) SnapshotCreateParams {
	s.SnapshotType = lo.ToPtr(t)
	return s
}

func (s SnapshotCreateParams) WithVersion(v string) SnapshotCreateParams {
	s.Version = lo.ToPtr(v)
	return s
}

// NewSnapshotLoadParams returns a restore request backed by a memory file.
func NewSnapshotLoadParams(snapshotPath, memFilePath string) SnapshotLoadParams {
	return SnapshotLoadParams{SnapshotPath: snapshotPath, MemFilePath: memFilePath}
}

func (s SnapshotLoadParams) WithMemBackend(b MemBackend) SnapshotLoadParams {
	s.MemFilePath = ""
	s.MemBackend = &b
	return s
}

func (s SnapshotLoadParams) WithDiffSnapshots(enabled bool) SnapshotLoadParams {
	s.EnableDiffSnapshots = lo.ToPtr(enabled)
	return s
}

func (s SnapshotLoadParams) WithResume(resume bool) SnapshotLoadParams {
	s.ResumeVM = lo.ToPtr(resume)
	return s
}

// NewLoggerConfig returns a logger sink at the given path.
func NewLoggerConfig(logPath string) LoggerConfig {
	return LoggerConfig{LogPath: logPath}
}

func (l LoggerConfig) WithLevel(level LogLevel) LoggerConfig {
	l.Level = lo.ToPtr(level)
	return l
}

func (l LoggerConfig) WithShowLevel(show bool) LoggerConfig {
	l.ShowLevel = lo.ToPtr(show)
	return l
}

func (l LoggerConfig) WithShowLogOrigin(show bool) LoggerConfig {
	l.ShowLogOrigin = lo.ToPtr(show)
	return l
}
