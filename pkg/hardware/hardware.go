package hardware

import (
	"bufio"
	"strings"

	"github.com/yukinix/nixos-flake-up/pkg/disk"
)

type CPUVendor string

var (
	IntelCPU   CPUVendor = "intel"
	AMDCPU     CPUVendor = "amd"
	UnknownCPU CPUVendor = "unknown"
)

type GPUVendor string

var (
	IntelGPU  GPUVendor = "intel"
	AMDGPU    GPUVendor = "amd"
	NvidiaGPU GPUVendor = "nvidia"
)

// Mount is a filesystem mount captured at probe time. Reinstall mode
// bakes the current root and boot mounts into the generated hardware
// config instead of re-deriving them later.
type Mount struct {
	Device string
	FSType string
	Point  string
}

// Facts is everything the generators need to know about the machine.
// Probed once per run and never mutated afterwards.
type Facts struct {
	CPUVendor   CPUVendor
	GPUVendors  []GPUVendor
	Disks       []disk.Disk
	BootModules []string
	RootMount   Mount
	BootMount   Mount
}

func (f Facts) HasGPU(v GPUVendor) bool {
	for _, g := range f.GPUVendors {
		if g == v {
			return true
		}
	}
	return false
}

// CPUVendorFromVendorID maps a raw vendor identifier (lscpu "Vendor ID"
// or /proc/cpuinfo vendor_id) to a vendor.
func CPUVendorFromVendorID(id string) CPUVendor {
	switch {
	case strings.Contains(id, "GenuineIntel"):
		return IntelCPU
	case strings.Contains(id, "AuthenticAMD"):
		return AMDCPU
	default:
		return UnknownCPU
	}
}

// CPUVendorFromLscpu picks the Vendor ID line out of lscpu output.
func CPUVendorFromLscpu(out string) CPUVendor {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "Vendor ID:") {
			return CPUVendorFromVendorID(line)
		}
	}
	return UnknownCPU
}

// CPUVendorFromCPUInfo picks the first vendor_id line out of
// /proc/cpuinfo contents.
func CPUVendorFromCPUInfo(out string) CPUVendor {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "vendor_id") {
			return CPUVendorFromVendorID(line)
		}
	}
	return UnknownCPU
}

// gpuClasses are the PCI class prefixes that mark display hardware.
var gpuClasses = []string{
	"VGA compatible controller",
	"3D controller",
	"Display controller",
}

func gpuVendorOfLine(line string) (GPUVendor, bool) {
	switch {
	case strings.Contains(line, "NVIDIA"):
		return NvidiaGPU, true
	case strings.Contains(line, "AMD"),
		strings.Contains(line, "ATI"),
		strings.Contains(line, "Advanced Micro Devices"):
		return AMDGPU, true
	case strings.Contains(line, "Intel"):
		return IntelGPU, true
	default:
		return "", false
	}
}

// GPUVendorsFromLspci extracts GPU vendors from lspci output in
// detection order, deduplicated.
func GPUVendorsFromLspci(out string) (vendors []GPUVendor) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()

		isGPU := false
		for _, class := range gpuClasses {
			if strings.Contains(line, class) {
				isGPU = true
				break
			}
		}
		if !isGPU {
			continue
		}

		if v, ok := gpuVendorOfLine(line); ok {
			vendors = appendVendor(vendors, v)
		}
	}
	return
}

// driverMarkers maps loaded kernel modules to the GPU vendor they serve.
var driverMarkers = []struct {
	module string
	vendor GPUVendor
}{
	{"nvidia", NvidiaGPU},
	{"nouveau", NvidiaGPU},
	{"amdgpu", AMDGPU},
	{"radeon", AMDGPU},
	{"i915", IntelGPU},
	{"xe", IntelGPU},
}

// GPUVendorsFromModules scans /proc/modules contents for loaded GPU
// drivers. Fallback when the PCI listing is unavailable.
func GPUVendorsFromModules(out string) (vendors []GPUVendor) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		for _, marker := range driverMarkers {
			if fields[0] == marker.module {
				vendors = appendVendor(vendors, marker.vendor)
			}
		}
	}
	return
}

// GPUVendorFromPCIID maps a sysfs vendor ID (e.g. "0x10de") to a vendor.
func GPUVendorFromPCIID(id string) (GPUVendor, bool) {
	switch strings.TrimSpace(id) {
	case "0x10de":
		return NvidiaGPU, true
	case "0x1002":
		return AMDGPU, true
	case "0x8086":
		return IntelGPU, true
	default:
		return "", false
	}
}

func appendVendor(vendors []GPUVendor, v GPUVendor) []GPUVendor {
	for _, existing := range vendors {
		if existing == v {
			return vendors
		}
	}
	return append(vendors, v)
}

// CoreBootModules is the initrd module set every generated hardware
// config carries.
var CoreBootModules = []string{
	"nvme", "sd_mod", "xhci_pci", "ahci", "usb_storage", "usbhid", "sr_mod",
}

var sataSignatures = []struct {
	signature string
	module    string
}{
	{"nvidia", "sata_nv"},
	{"via", "sata_via"},
	{"sis", "sata_sis"},
	{"uli", "sata_uli"},
}

// ExtraBootModules derives SATA and virtio initrd modules from PCI
// signatures in lspci output.
func ExtraBootModules(lspciOut string) (modules []string) {
	lower := strings.ToLower(lspciOut)

	scanner := bufio.NewScanner(strings.NewReader(lower))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "sata controller") {
			continue
		}
		for _, sig := range sataSignatures {
			if strings.Contains(line, sig.signature) {
				modules = appendModule(modules, sig.module)
			}
		}
	}

	if strings.Contains(lower, "virtio") {
		for _, m := range []string{"virtio_pci", "virtio_blk", "virtio_scsi", "virtio_net"} {
			modules = appendModule(modules, m)
		}
	}

	return
}

func appendModule(modules []string, m string) []string {
	for _, existing := range modules {
		if existing == m {
			return modules
		}
	}
	return append(modules, m)
}

// MountFrom finds the mount entry for a mount point in /proc/mounts
// contents.
func MountFrom(out, point string) (Mount, bool) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		if fields[1] == point {
			return Mount{Device: fields[0], FSType: fields[2], Point: point}, true
		}
	}
	return Mount{}, false
}
