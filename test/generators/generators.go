package generators

import (
	"github.com/yukinix/nixos-flake-up/pkg/configuration"
	"github.com/yukinix/nixos-flake-up/pkg/disk"
	"github.com/yukinix/nixos-flake-up/pkg/hardware"
	"pgregory.net/rapid"
)

func String(t *rapid.T, label string) string {
	return rapid.String().Draw(t, label).(string)
}

func Bool(t *rapid.T, label string) bool {
	return rapid.Bool().Draw(t, label).(bool)
}

func HostnameGen() *rapid.Generator {
	return rapid.StringMatching(`[A-Za-z0-9]([A-Za-z0-9-]{0,20}[A-Za-z0-9])?`)
}

func DiskGen() *rapid.Generator {
	return rapid.Custom(func(t *rapid.T) disk.Disk {
		return disk.Disk{
			Name:      rapid.StringMatching(`(sd[a-z]|nvme[0-9]n[0-9]|vd[a-z])`).Draw(t, "Disk_Name").(string),
			Vendor:    String(t, "Disk_Vendor"),
			Model:     String(t, "Disk_Model"),
			SizeBytes: rapid.Int64Range(0, 1<<44).Draw(t, "Disk_SizeBytes").(int64),
			Kind:      rapid.SampledFrom([]disk.Kind{disk.HDD, disk.NVMe}).Draw(t, "Disk_Kind").(disk.Kind),
		}
	})
}

func GPUVendorsGen() *rapid.Generator {
	return rapid.SliceOfN(
		rapid.SampledFrom([]hardware.GPUVendor{hardware.IntelGPU, hardware.AMDGPU, hardware.NvidiaGPU}),
		0, 3,
	)
}

func FactsGen() *rapid.Generator {
	return rapid.Custom(func(t *rapid.T) hardware.Facts {
		return hardware.Facts{
			CPUVendor:   rapid.SampledFrom([]hardware.CPUVendor{hardware.IntelCPU, hardware.AMDCPU, hardware.UnknownCPU}).Draw(t, "Facts_CPUVendor").(hardware.CPUVendor),
			GPUVendors:  GPUVendorsGen().Draw(t, "Facts_GPUVendors").([]hardware.GPUVendor),
			Disks:       rapid.SliceOfN(DiskGen(), 0, 4).Draw(t, "Facts_Disks").([]disk.Disk),
			BootModules: hardware.CoreBootModules,
		}
	})
}

func ProfileGen() *rapid.Generator {
	return rapid.Custom(func(t *rapid.T) configuration.HostProfile {
		hostname := HostnameGen().Draw(t, "Profile_Hostname").(string)
		return configuration.HostProfile{
			Hostname:  hostname,
			Kind:      configuration.KindFor(hostname),
			Reinstall: Bool(t, "Profile_Reinstall"),
			Disk:      DiskGen().Draw(t, "Profile_Disk").(disk.Disk),
		}
	})
}
