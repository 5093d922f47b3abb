package hardware

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/yukinix/nixos-flake-up/pkg/disk"
	"github.com/yukinix/nixos-flake-up/pkg/util"
)

// Options control a probe run. The zero value probes everything with
// the default timeout.
type Options struct {
	SkipGPU   bool
	Reinstall bool
	Timeout   time.Duration
}

const defaultProbeTimeout = 5 * time.Second

// Probe collects hardware facts. Every step fails soft: a missing
// tool, a timeout or an unreadable file degrades to unknown/empty
// instead of aborting the run.
func Probe(opts Options) (facts Facts) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultProbeTimeout
	}

	facts.CPUVendor = probeCPU(timeout)

	lspciOut, lspciOK := runBounded(timeout, "lspci")

	if opts.SkipGPU {
		facts.GPUVendors = nil
	} else {
		facts.GPUVendors = probeGPU(lspciOut, lspciOK)
	}

	facts.BootModules = append(facts.BootModules, CoreBootModules...)
	if lspciOK {
		facts.BootModules = append(facts.BootModules, ExtraBootModules(lspciOut)...)
	}

	disks, err := disk.GetDisks()
	if err != nil {
		util.Warn("disk enumeration failed: %s", err)
	}
	facts.Disks = disks

	if opts.Reinstall {
		facts.RootMount, facts.BootMount = probeMounts()
	}

	return
}

func probeCPU(timeout time.Duration) CPUVendor {
	if out, ok := runBounded(timeout, "lscpu"); ok {
		if vendor := CPUVendorFromLscpu(out); vendor != UnknownCPU {
			return vendor
		}
	}

	if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
		return CPUVendorFromCPUInfo(string(data))
	}

	return UnknownCPU
}

// probeGPU tries detection methods in order of authority and stops at
// the first one that yields a result.
func probeGPU(lspciOut string, lspciOK bool) []GPUVendor {
	if lspciOK {
		if vendors := GPUVendorsFromLspci(lspciOut); len(vendors) > 0 {
			return vendors
		}
	}

	if data, err := os.ReadFile("/proc/modules"); err == nil {
		if vendors := GPUVendorsFromModules(string(data)); len(vendors) > 0 {
			return vendors
		}
	}

	return gpuVendorsFromSysfs("/sys/bus/pci/devices", 3)
}

// gpuVendorsFromSysfs scans the PCI device tree for display-class
// devices, bounded to limit matches.
func gpuVendorsFromSysfs(root string, limit int) (vendors []GPUVendor) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	matches := 0
	for _, entry := range entries {
		if matches >= limit {
			break
		}

		dev := filepath.Join(root, entry.Name())
		class := util.GetFirstLineOfFile(filepath.Join(dev, "class"))
		if len(class) < 4 || class[:4] != "0x03" {
			continue
		}
		matches++

		if v, ok := GPUVendorFromPCIID(util.GetFirstLineOfFile(filepath.Join(dev, "vendor"))); ok {
			vendors = appendVendor(vendors, v)
		}
	}

	return
}

func probeMounts() (root, boot Mount) {
	data, err := os.ReadFile("/proc/mounts")
	if err != nil {
		util.Warn("cannot read mount table: %s", err)
		return
	}

	out := string(data)
	if m, ok := MountFrom(out, "/"); ok {
		root = m
	}
	if m, ok := MountFrom(out, "/boot"); ok {
		boot = m
	}

	return
}

// runBounded runs a command under a wall-clock timeout. Reports false
// when the tool is missing, fails or times out.
func runBounded(timeout time.Duration, name string, args ...string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", false
	}

	return string(out), true
}
