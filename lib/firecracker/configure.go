package firecracker

import (
	"context"
	"fmt"

	"github.com/onkernel/fcctl/lib/logger"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// configureConcurrency bounds how many device PUTs Configure has in flight.
const configureConcurrency = 4

// VMConfig is the full pre-boot plan for one microVM. Nil members are skipped.
type VMConfig struct {
	Logger            *LoggerConfig      `json:"logger,omitempty"`
	Metrics           *MetricsConfig     `json:"metrics,omitempty"`
	MachineConfig     *MachineConfig     `json:"machine-config,omitempty"`
	CPUConfig         *CPUConfig         `json:"cpu-config,omitempty"`
	BootSource        *BootSource        `json:"boot-source,omitempty"`
	Drives            []Drive            `json:"drives,omitempty"`
	NetworkInterfaces []NetworkInterface `json:"network-interfaces,omitempty"`
	Balloon           *Balloon           `json:"balloon,omitempty"`
	Vsock             *Vsock             `json:"vsock,omitempty"`
	Entropy           *EntropyDevice     `json:"entropy,omitempty"`
	MMDSConfig        *MMDSConfig        `json:"mmds-config,omitempty"`
	// MMDSData must encode as a JSON object.
	MMDSData map[string]any `json:"mmds,omitempty"`
}

// Validate checks every member and the rules that span resources:
// unique drive and interface ids, at most one root drive, and MMDS
// interfaces that exist in the plan.
func (v VMConfig) Validate() error {
	members := []Validator{}
	if v.Logger != nil {
		members = append(members, *v.Logger)
	}
	if v.Metrics != nil {
		members = append(members, *v.Metrics)
	}
	if v.MachineConfig != nil {
		members = append(members, *v.MachineConfig)
	}
	if v.BootSource != nil {
		members = append(members, *v.BootSource)
	}
	for _, d := range v.Drives {
		members = append(members, d)
	}
	for _, n := range v.NetworkInterfaces {
		members = append(members, n)
	}
	if v.Balloon != nil {
		members = append(members, *v.Balloon)
	}
	if v.Vsock != nil {
		members = append(members, *v.Vsock)
	}
	if v.Entropy != nil {
		members = append(members, *v.Entropy)
	}
	if v.MMDSConfig != nil {
		members = append(members, *v.MMDSConfig)
	}
	for _, m := range members {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	if dups := lo.FindDuplicatesBy(v.Drives, func(d Drive) string { return d.DriveID }); len(dups) > 0 {
		return invalid("vm config", "drives", fmt.Sprintf("duplicate drive_id %q", dups[0].DriveID))
	}
	if roots := lo.CountBy(v.Drives, func(d Drive) bool { return d.IsRootDevice }); roots > 1 {
		return invalid("vm config", "drives", fmt.Sprintf("at most one root device allowed, got %d", roots))
	}
	if dups := lo.FindDuplicatesBy(v.NetworkInterfaces, func(n NetworkInterface) string { return n.IfaceID }); len(dups) > 0 {
		return invalid("vm config", "network-interfaces", fmt.Sprintf("duplicate iface_id %q", dups[0].IfaceID))
	}
	if v.MMDSConfig != nil {
		ids := lo.Map(v.NetworkInterfaces, func(n NetworkInterface, _ int) string { return n.IfaceID })
		if missing, _ := lo.Difference(v.MMDSConfig.NetworkInterfaces, ids); len(missing) > 0 {
			return invalid("vm config", "mmds-config.network_interfaces", fmt.Sprintf("unknown interface %q", missing[0]))
		}
	}
	return nil
}

// Configure validates the whole plan and then applies it in dependency order:
// logger, metrics, machine config, CPU config, boot source, drives and
// interfaces (concurrently), balloon, vsock, entropy, MMDS config, MMDS data.
//
// Nothing is sent if validation fails. There is no rollback: on failure the
// server keeps whatever was applied before the failing call, and the error
// names the resource that failed.
func (c *Client) Configure(ctx context.Context, v VMConfig) error {
	if err := v.Validate(); err != nil {
		return err
	}
	log := logger.FromContext(ctx)

	steps := []struct {
		name  string
		skip  bool
		apply func(context.Context) error
	}{
		{"logger", v.Logger == nil, func(ctx context.Context) error { return c.PutLogger(ctx, *v.Logger) }},
		{"metrics", v.Metrics == nil, func(ctx context.Context) error { return c.PutMetrics(ctx, *v.Metrics) }},
		{"machine config", v.MachineConfig == nil, func(ctx context.Context) error { return c.PutMachineConfig(ctx, *v.MachineConfig) }},
		{"cpu config", v.CPUConfig == nil, func(ctx context.Context) error { return c.PutCPUConfig(ctx, *v.CPUConfig) }},
		{"boot source", v.BootSource == nil, func(ctx context.Context) error { return c.PutBootSource(ctx, *v.BootSource) }},
		{"devices", len(v.Drives) == 0 && len(v.NetworkInterfaces) == 0, func(ctx context.Context) error { return c.configureDevices(ctx, v) }},
		{"balloon", v.Balloon == nil, func(ctx context.Context) error { return c.PutBalloon(ctx, *v.Balloon) }},
		{"vsock", v.Vsock == nil, func(ctx context.Context) error { return c.PutVsock(ctx, *v.Vsock) }},
		{"entropy", v.Entropy == nil, func(ctx context.Context) error { return c.PutEntropy(ctx, *v.Entropy) }},
		{"mmds config", v.MMDSConfig == nil, func(ctx context.Context) error { return c.PutMMDSConfig(ctx, *v.MMDSConfig) }},
		{"mmds data", v.MMDSData == nil, func(ctx context.Context) error { return c.PutMMDS(ctx, v.MMDSData) }},
	}

	for _, step := range steps {
		if step.skip {
			continue
		}
		if err := step.apply(ctx); err != nil {
			return fmt.Errorf("configure %s: %w", step.name, err)
		}
		log.DebugContext(ctx, "configured vm resource", "resource", step.name)
	}

	log.InfoContext(ctx, "vm configured",
		"drives", len(v.Drives), "network_interfaces", len(v.NetworkInterfaces))
	return nil
}

func (c *Client) configureDevices(ctx context.Context, v VMConfig) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(configureConcurrency)

	for _, d := range v.Drives {
		g.Go(func() error {
			if err := c.PutDrive(gctx, d); err != nil {
				return fmt.Errorf("drive %s: %w", d.DriveID, err)
			}
			return nil
		})
	}
	for _, n := range v.NetworkInterfaces {
		g.Go(func() error {
			if err := c.PutNetworkInterface(gctx, n); err != nil {
				return fmt.Errorf("network interface %s: %w", n.IfaceID, err)
			}
			return nil
		})
	}
	return g.Wait()
}
