// Package vmfile reads YAML VM descriptions with human-friendly sizes and
// durations and turns them into a firecracker.VMConfig.
//
//	api_socket: /run/fc/vm1.sock
//	machine:
//	  vcpus: 2
//	  memory: 1GB
//	boot:
//	  kernel: /var/lib/fc/vmlinux
//	  args: console=ttyS0 reboot=k panic=1
//	drives:
//	  - id: rootfs
//	    path: /var/lib/fc/rootfs.ext4
//	    root: true
//	    bandwidth: {size: 50MB, refill: 1s}
package vmfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/ghodss/yaml"
	"github.com/onkernel/fcctl/lib/firecracker"
	"github.com/samber/lo"
)

// File is the on-disk VM description.
type File struct {
	// APISocket is the control plane address used when none is given on the command line.
	APISocket string     `json:"api_socket,omitempty"`
	Machine   *Machine   `json:"machine,omitempty"`
	Boot      *Boot      `json:"boot,omitempty"`
	Drives    []Drive    `json:"drives,omitempty"`
	Network   []NIC      `json:"network,omitempty"`
	Logger    *Logger    `json:"logger,omitempty"`
	Metrics   *Metrics   `json:"metrics,omitempty"`
	Balloon   *Balloon   `json:"balloon,omitempty"`
	Vsock     *Vsock     `json:"vsock,omitempty"`
	Entropy   *Limits    `json:"entropy,omitempty"`
	MMDS      *MMDS      `json:"mmds,omitempty"`
	CPUConfig *CPUConfig `json:"cpu_config,omitempty"`
}

type Machine struct {
	VCPUs           int     `json:"vcpus"`
	Memory          Size    `json:"memory"`
	SMT             *bool   `json:"smt,omitempty"`
	TrackDirtyPages *bool   `json:"track_dirty_pages,omitempty"`
	CPUTemplate     *string `json:"cpu_template,omitempty"`
	HugePages       *string `json:"huge_pages,omitempty"`
}

type Boot struct {
	Kernel string  `json:"kernel"`
	Initrd *string `json:"initrd,omitempty"`
	Args   *string `json:"args,omitempty"`
}

type Drive struct {
	ID       string  `json:"id"`
	Path     string  `json:"path"`
	Root     bool    `json:"root,omitempty"`
	ReadOnly bool    `json:"read_only,omitempty"`
	PartUUID *string `json:"partuuid,omitempty"`
	Cache    *string `json:"cache,omitempty"`
	IOEngine *string `json:"io_engine,omitempty"`
	Socket   *string `json:"socket,omitempty"`
	Limits
}

type NIC struct {
	ID  string  `json:"id"`
	Tap string  `json:"tap"`
	MAC *string `json:"mac,omitempty"`
	RX  *Limits `json:"rx,omitempty"`
	TX  *Limits `json:"tx,omitempty"`
}

// Limits are device-side I/O limits.
type Limits struct {
	Bandwidth *BandwidthBucket `json:"bandwidth,omitempty"`
	Ops       *OpsBucket       `json:"ops,omitempty"`
}

// BandwidthBucket allows Size bytes per Refill period.
type BandwidthBucket struct {
	Size   Size     `json:"size"`
	Burst  *Size    `json:"burst,omitempty"`
	Refill Duration `json:"refill"`
}

// OpsBucket allows Size operations per Refill period.
type OpsBucket struct {
	Size   int64    `json:"size"`
	Burst  *int64   `json:"burst,omitempty"`
	Refill Duration `json:"refill"`
}

type Logger struct {
	Path       string  `json:"path"`
	Level      *string `json:"level,omitempty"`
	ShowLevel  *bool   `json:"show_level,omitempty"`
	ShowOrigin *bool   `json:"show_origin,omitempty"`
	Module     *string `json:"module,omitempty"`
}

type Metrics struct {
	Path string `json:"path"`
}

type Balloon struct {
	Amount        Size      `json:"amount"`
	DeflateOnOOM  *bool     `json:"deflate_on_oom,omitempty"`
	StatsInterval *Duration `json:"stats_interval,omitempty"`
}

type Vsock struct {
	CID     uint32 `json:"cid"`
	UDSPath string `json:"uds_path"`
}

type MMDS struct {
	Interfaces []string       `json:"interfaces"`
	Version    *string        `json:"version,omitempty"`
	IPv4       *string        `json:"ipv4,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// CPUConfig is passed to the hypervisor untouched.
type CPUConfig struct {
	CPUIDModifiers  json.RawMessage `json:"cpuid_modifiers,omitempty"`
	MSRModifiers    json.RawMessage `json:"msr_modifiers,omitempty"`
	RegModifiers    json.RawMessage `json:"reg_modifiers,omitempty"`
	VcpuFeatures    json.RawMessage `json:"vcpu_features,omitempty"`
	KVMCapabilities json.RawMessage `json:"kvm_capabilities,omitempty"`
}

// Size is a byte count written as a number of bytes or a string such as "512MB".
// Units are binary: 1MB is 1 MiB.
type Size datasize.ByteSize

func (s *Size) UnmarshalJSON(b []byte) error {
	var n uint64
	if err := json.Unmarshal(b, &n); err == nil {
		*s = Size(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("size must be a number or a string like 512MB")
	}
	var ds datasize.ByteSize
	if err := ds.UnmarshalText([]byte(str)); err != nil {
		return fmt.Errorf("parse size %q: %w", str, err)
	}
	*s = Size(ds)
	return nil
}

func (s Size) String() string {
	return datasize.ByteSize(s).HR()
}

// Duration is written as a Go duration string such as "100ms".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("duration must be a string like 100ms")
	}
	v, err := time.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", str, err)
	}
	*d = Duration(v)
	return nil
}

// Parse decodes a YAML (or JSON) VM description. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.DisallowUnknownFields()
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode vm file: %w", err)
	}
	return &f, nil
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vm file: %w", err)
	}
	return Parse(data)
}

// VMConfig translates the file. The result is validated before it is returned.
func (f *File) VMConfig() (firecracker.VMConfig, error) {
	var v firecracker.VMConfig

	if m := f.Machine; m != nil {
		mem := uint64(m.Memory) / uint64(datasize.MB)
		if uint64(m.Memory)%uint64(datasize.MB) != 0 {
			return v, fmt.Errorf("machine.memory %s is not a whole number of MiB", m.Memory)
		}
		mc := firecracker.NewMachineConfig(m.VCPUs, int(mem))
		mc.Smt = m.SMT
		mc.TrackDirtyPages = m.TrackDirtyPages
		if m.CPUTemplate != nil {
			mc = mc.WithCPUTemplate(firecracker.CPUTemplate(*m.CPUTemplate))
		}
		if m.HugePages != nil {
			mc = mc.WithHugePages(firecracker.HugePages(*m.HugePages))
		}
		v.MachineConfig = &mc
	}

	if b := f.Boot; b != nil {
		v.BootSource = &firecracker.BootSource{KernelImagePath: b.Kernel, InitrdPath: b.Initrd, BootArgs: b.Args}
	}

	for _, d := range f.Drives {
		drive := firecracker.Drive{
			DriveID:      d.ID,
			PathOnHost:   d.Path,
			IsRootDevice: d.Root,
			IsReadOnly:   d.ReadOnly,
			PartUUID:     d.PartUUID,
			Socket:       d.Socket,
			RateLimiter:  d.Limits.rateLimiter(),
		}
		if d.Cache != nil {
			drive = drive.WithCacheType(firecracker.CacheType(*d.Cache))
		}
		if d.IOEngine != nil {
			drive = drive.WithIOEngine(firecracker.IOEngine(*d.IOEngine))
		}
		v.Drives = append(v.Drives, drive)
	}

	for _, n := range f.Network {
		nic := firecracker.NetworkInterface{IfaceID: n.ID, HostDevName: n.Tap, GuestMAC: n.MAC}
		if n.RX != nil {
			nic.RxRateLimiter = n.RX.rateLimiter()
		}
		if n.TX != nil {
			nic.TxRateLimiter = n.TX.rateLimiter()
		}
		v.NetworkInterfaces = append(v.NetworkInterfaces, nic)
	}

	if l := f.Logger; l != nil {
		lc := firecracker.LoggerConfig{LogPath: l.Path, ShowLevel: l.ShowLevel, ShowLogOrigin: l.ShowOrigin, Module: l.Module}
		if l.Level != nil {
			lc = lc.WithLevel(firecracker.LogLevel(*l.Level))
		}
		v.Logger = &lc
	}
	if f.Metrics != nil {
		v.Metrics = &firecracker.MetricsConfig{MetricsPath: f.Metrics.Path}
	}

	if b := f.Balloon; b != nil {
		balloon := firecracker.Balloon{
			AmountMib:    int(uint64(b.Amount) / uint64(datasize.MB)),
			DeflateOnOOM: b.DeflateOnOOM,
		}
		if b.StatsInterval != nil {
			balloon.StatsPollingIntervalS = lo.ToPtr(int(time.Duration(*b.StatsInterval) / time.Second))
		}
		v.Balloon = &balloon
	}

	if f.Vsock != nil {
		v.Vsock = &firecracker.Vsock{GuestCID: f.Vsock.CID, UDSPath: f.Vsock.UDSPath}
	}
	if f.Entropy != nil {
		v.Entropy = &firecracker.EntropyDevice{RateLimiter: f.Entropy.rateLimiter()}
	}

	if m := f.MMDS; m != nil {
		cfg := firecracker.MMDSConfig{NetworkInterfaces: m.Interfaces, IPv4Address: m.IPv4}
		if m.Version != nil {
			cfg.Version = lo.ToPtr(firecracker.MMDSVersion(*m.Version))
		}
		v.MMDSConfig = &cfg
		v.MMDSData = m.Data
	}

	if c := f.CPUConfig; c != nil {
		v.CPUConfig = &firecracker.CPUConfig{
			CPUIDModifiers:  c.CPUIDModifiers,
			MSRModifiers:    c.MSRModifiers,
			RegModifiers:    c.RegModifiers,
			VcpuFeatures:    c.VcpuFeatures,
			KVMCapabilities: c.KVMCapabilities,
		}
	}

	if err := v.Validate(); err != nil {
		return v, err
	}
	return v, nil
}

func (l Limits) rateLimiter() *firecracker.RateLimiter {
	if l.Bandwidth == nil && l.Ops == nil {
		return nil
	}
	var r firecracker.RateLimiter
	if b := l.Bandwidth; b != nil {
		tb := firecracker.NewTokenBucket(int64(b.Size), time.Duration(b.Refill).Milliseconds())
		if b.Burst != nil {
			tb = tb.WithOneTimeBurst(int64(*b.Burst))
		}
		r.Bandwidth = &tb
	}
	if o := l.Ops; o != nil {
		tb := firecracker.NewTokenBucket(o.Size, time.Duration(o.Refill).Milliseconds())
		tb.OneTimeBurst = o.Burst
		r.Ops = &tb
	}
	return &r
}
