package command

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yukinix/nixos-flake-up/pkg/configuration"
)

// Env is what the generators need to build the command sequence for
// one run.
type Env struct {
	Profile  configuration.HostProfile
	FlakeDir string
}

func (e Env) hostAttr() string {
	return e.FlakeDir + "#" + e.Profile.Hostname
}

func (e Env) diskConfigPath() string {
	return filepath.Join(e.FlakeDir, "hosts", e.Profile.Hostname, "disk-config.nix")
}

type CommandGenerator func(Env) []Command

// MakeCommandGenerators sequences a run: preflight, then disko
// partitioning and nixos-install for a fresh install, or a plain
// nixos-rebuild switch for a reinstall.
func MakeCommandGenerators(env Env) (generators []CommandGenerator) {
	generators = append(generators, Preflight)

	if env.Profile.Reinstall {
		generators = append(generators, NixosRebuild)
	} else {
		generators = append(generators,
			DiskoApply,
			WaitForPartitions,
			func(_ Env) []Command {
				return []Command{Sleep(2 * time.Second)}
			},
			NixosInstall,
		)
	}

	return
}

func GenerateCommands(env Env, generators []CommandGenerator) (cmds []Command) {
	for _, gen := range generators {
		cmds = append(cmds, gen(env)...)
	}
	return
}

func Preflight(env Env) (cmds []Command) {
	tools := []string{"nix"}
	if env.Profile.Reinstall {
		tools = append(tools, "nixos-rebuild")
	} else {
		tools = append(tools, "disko", "nixos-install")
	}

	cmds = append(cmds,
		RequireTools(tools...),
		CheckMemory(),
		CheckDiskSpace(env.FlakeDir),
	)

	// a reinstall keeps the existing boot setup, only a fresh layout
	// depends on the firmware
	if !env.Profile.Reinstall {
		cmds = append(cmds, CheckFirmware())
	}

	return
}

// minFreeBytes guards against running out of store space mid install.
const minFreeBytes = 2 * 1024 * 1024 * 1024

func CheckDiskSpace(dir string) Command {
	return FunctionCommand{
		Label: "Check free disk space at " + dir,
		Func: func() (string, error) {
			var stat syscall.Statfs_t
			if err := syscall.Statfs(dir, &stat); err != nil {
				return "", fmt.Errorf("statfs %s: %w", dir, err)
			}
			free := int64(stat.Bavail) * stat.Bsize
			if free < minFreeBytes {
				return "", fmt.Errorf("insufficient disk space: %d MB free at %s", free/1024/1024, dir)
			}
			return fmt.Sprintf("%d MB free", free/1024/1024), nil
		},
	}
}

// FlakeEval checks that the host attribute evaluates. Used by the
// recovery path before and after repairing the hosts file.
func FlakeEval(env Env) Command {
	return ShellCommand{
		Label: "Evaluate flake output for " + env.Profile.Hostname,
		// the flag is repeated because Execute splits on spaces
		Cmd: fmt.Sprintf(
			"nix --extra-experimental-features nix-command --extra-experimental-features flakes eval --raw %s#nixosConfigurations.%s.config.system.name",
			env.FlakeDir, env.Profile.Hostname,
		),
	}
}

func DiskoApply(env Env) (cmds []Command) {
	cmds = append(cmds, ShellCommand{
		Label: fmt.Sprintf("Partition and mount %s via disko", env.Profile.Disk.Device()),
		Cmd:   "disko --mode disko " + env.diskConfigPath(),
	})

	return
}

func WaitForPartitions(env Env) (cmds []Command) {
	cmds = append(cmds, RepeatedFunctionCommand{
		Label: "Wait until all partitions have appeared",
		Func: func() bool {
			partitionPath := "/dev/" + env.Profile.Disk.PartitionName(1)
			_, err := os.Stat(partitionPath)
			return err == nil
		},
		Limit: 10,
		Wait:  1 * time.Second,
	})

	return
}

func NixosInstall(env Env) (cmds []Command) {
	cmds = append(cmds, ShellCommand{
		Label: "Running nixos-install",
		Cmd:   "nixos-install --root /mnt --no-root-passwd --flake " + env.hostAttr(),
	})

	return
}

func NixosRebuild(env Env) (cmds []Command) {
	cmds = append(cmds, ShellCommand{
		Label: "Switching to the new configuration",
		Cmd:   "nixos-rebuild switch --flake " + env.hostAttr(),
	})

	return
}
