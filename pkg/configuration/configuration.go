package configuration

import (
	"fmt"

	"github.com/yukinix/nixos-flake-up/pkg/disk"
)

type Kind string

var (
	Minimal Kind = "minimal"
	Full    Kind = "full"
)

// HostProfile describes the machine being provisioned. Built once from
// the CLI arguments and threaded through the generators.
type HostProfile struct {
	Hostname  string
	Kind      Kind
	Reinstall bool
	Disk      disk.Disk
}

// KindFor classifies a host by hostname alone: the host named
// "minimal" gets the minimal module set, everything else is full.
// Detected GPUs never demote a host.
func KindFor(hostname string) Kind {
	if hostname == "minimal" {
		return Minimal
	}
	return Full
}

func NewHostProfile(hostname string, reinstall bool) HostProfile {
	return HostProfile{
		Hostname:  hostname,
		Kind:      KindFor(hostname),
		Reinstall: reinstall,
	}
}

func (p HostProfile) String() string {
	mode := "fresh install"
	if p.Reinstall {
		mode = "reinstall"
	}

	return fmt.Sprintf(`
Hostname: %s
Kind:     %s
Mode:     %s
Disk:     %s (%d Gb)`,
		p.Hostname,
		p.Kind,
		mode,
		p.Disk.Name,
		p.Disk.SizeGB(),
	)
}
