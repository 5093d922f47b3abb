package generate

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/yukinix/nixos-flake-up/pkg/configuration"
	"github.com/yukinix/nixos-flake-up/pkg/hardware"
)

const diskConfigTemplate = `{ ... }:

{
  disko.devices = {
    disk = {
      main = {
        type = "disk";
        device = "{{ .Device }}";
        content = {
          type = "gpt";
          partitions = {
            ESP = {
              size = "1G";
              type = "EF00";
              content = {
                type = "filesystem";
                format = "vfat";
                mountpoint = "/boot";
                mountOptions = [ "umask=0077" ];
              };
            };
            root = {
              size = "100%";
              content = {
                type = "btrfs";
                extraArgs = [ "-f" ];
                subvolumes = {
                  "@root" = {
                    mountpoint = "/";
                    mountOptions = [ "compress=zstd" "noatime" ];
                  };
                  "@home" = {
                    mountpoint = "/home";
                    mountOptions = [ "compress=zstd" "noatime" ];
                  };
                  "@nix" = {
                    mountpoint = "/nix";
                    mountOptions = [ "compress=zstd" "noatime" ];
                  };
                };
              };
            };
          };
        };
      };
    };
  };
}
`

type diskReplacement struct {
	Device string
}

func renderDiskConfig(profile configuration.HostProfile) string {
	return mustRender("disk-config.nix", diskConfigTemplate, diskReplacement{
		Device: profile.Disk.Device(),
	})
}

const hardwareConfigTemplate = `{ config, lib, modulesPath, ... }:

{
  imports = [ (modulesPath + "/installer/scan/not-detected.nix") ];

  boot.initrd.availableKernelModules = [ {{ .BootModules }} ];
  boot.initrd.kernelModules = [ ];
  boot.kernelModules = [ {{ .KernelModules }} ];
  boot.kernelParams = [ {{ .KernelParams }} ];
  boot.extraModulePackages = [ ];

  {{ .Microcode }}
  hardware.enableRedistributableFirmware = lib.mkDefault true;

  nixpkgs.hostPlatform = lib.mkDefault "x86_64-linux";
{{ .FileSystems }}}
`

type hardwareReplacement struct {
	BootModules   string
	KernelModules string
	KernelParams  string
	Microcode     string
	FileSystems   string
}

func renderHardwareConfig(profile configuration.HostProfile, facts hardware.Facts) string {
	replacement := hardwareReplacement{
		BootModules: nixStringList(facts.BootModules),
	}

	switch facts.CPUVendor {
	case hardware.IntelCPU:
		replacement.KernelModules = nixStringList([]string{"kvm-intel"})
		replacement.KernelParams = nixStringList([]string{"intel_pstate=active"})
		replacement.Microcode = "hardware.cpu.intel.updateMicrocode = lib.mkDefault config.hardware.enableRedistributableFirmware;"
	case hardware.AMDCPU:
		replacement.KernelModules = nixStringList([]string{"kvm-amd"})
		replacement.KernelParams = nixStringList([]string{"amd_pstate=active"})
		replacement.Microcode = "hardware.cpu.amd.updateMicrocode = lib.mkDefault config.hardware.enableRedistributableFirmware;"
	default:
		replacement.Microcode = "# CPU vendor unknown, no microcode updates"
	}

	if profile.Reinstall {
		replacement.FileSystems = fileSystemsBlock(facts)
	}

	return mustRender("hardware-configuration.nix", hardwareConfigTemplate, replacement)
}

// fileSystemsBlock freezes the currently mounted root/boot devices
// into the config. Reinstall mode must describe the disk as it is, not
// as a fresh layout would make it.
func fileSystemsBlock(facts hardware.Facts) string {
	var b strings.Builder

	writeMount := func(m hardware.Mount) {
		if m.Device == "" {
			return
		}
		fmt.Fprintf(&b, "\n  fileSystems.%q = {\n    device = %q;\n    fsType = %q;\n  };\n", m.Point, m.Device, m.FSType)
	}

	writeMount(facts.RootMount)
	writeMount(facts.BootMount)

	return b.String()
}

const hostConfigTemplate = `{ config, lib, pkgs, ... }:

{
  imports = [
{{ .Imports }}  ];

  networking.hostName = "{{ .Hostname }}";
{{ .Extra }}}
`

type hostReplacement struct {
	Hostname string
	Imports  string
	Extra    string
}

// baselineModules are imported by every host, minimal included.
var baselineModules = []string{
	"../../modules/system",
	"../../modules/nix",
	"../../modules/security",
	"../../modules/services",
}

// fullModules are the desktop/service additions for full hosts.
var fullModules = []string{
	"../../modules/desktop",
	"../../modules/fonts",
	"../../modules/audio",
	"../../modules/networking",
}

func renderHostConfig(profile configuration.HostProfile, facts hardware.Facts) string {
	imports := []string{
		"./disk-config.nix",
		"./hardware-configuration.nix",
	}
	imports = append(imports, baselineModules...)

	if profile.Kind == configuration.Full {
		imports = append(imports, fullModules...)

		if facts.CPUVendor != hardware.UnknownCPU {
			imports = append(imports, "../../modules/hardware/cpu/"+string(facts.CPUVendor))
		}
		for _, gpu := range facts.GPUVendors {
			imports = append(imports, "../../modules/hardware/gpu/"+string(gpu))
		}
	}

	var extra strings.Builder

	if profile.Kind == configuration.Full && facts.HasGPU(hardware.NvidiaGPU) {
		extra.WriteString(nvidiaStanza)
	}

	if profile.Reinstall {
		extra.WriteString(bootloaderDisableStanza)
	}

	replacement := hostReplacement{
		Hostname: profile.Hostname,
		Imports:  nixImportList(imports),
		Extra:    extra.String(),
	}

	return mustRender("default.nix", hostConfigTemplate, replacement)
}

const nvidiaStanza = `
  services.xserver.videoDrivers = [ "nvidia" ];
  hardware.nvidia = {
    modesetting.enable = true;
    powerManagement.enable = false;
    open = false;
    nvidiaSettings = true;
  };
`

// bootloaderDisableStanza keeps a reinstall from clobbering the
// existing boot setup: every installer the modules could enable is
// forced off.
const bootloaderDisableStanza = `
  boot.loader.systemd-boot.enable = lib.mkForce false;
  boot.loader.grub.enable = lib.mkForce false;
  boot.loader.generic-extlinux-compatible.enable = lib.mkForce false;
`

func nixStringList(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, fmt.Sprintf("%q", item))
	}
	return strings.Join(quoted, " ")
}

func nixImportList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("    " + p + "\n")
	}
	return b.String()
}

func mustRender(name, tmpl string, data interface{}) string {
	t := template.Must(template.New(name).Parse(tmpl))

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		panic(fmt.Sprintf("rendering %s: %s", name, err))
	}

	return buf.String()
}
