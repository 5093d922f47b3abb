package generate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/yukinix/nixos-flake-up/pkg/configuration"
	"github.com/yukinix/nixos-flake-up/pkg/hardware"
	"github.com/yukinix/nixos-flake-up/pkg/util"
)

type Kind string

var (
	DiskConfig     Kind = "disk-config"
	HardwareConfig Kind = "hardware-configuration"
	HostConfig     Kind = "host-config"
)

// Artifact is a rendered configuration fragment plus the path it
// belongs at. Rendering is pure; all failure surface lives in Write.
type Artifact struct {
	Kind Kind
	Path string
	Text string
}

type WriteResult string

var (
	Written WriteResult = "written"
	Skipped WriteResult = "skipped"
)

// Render produces one artifact for the host. flakeDir is the root of
// the flake repository; artifacts land under hosts/<hostname>/.
func Render(kind Kind, flakeDir string, profile configuration.HostProfile, facts hardware.Facts) (Artifact, error) {
	hostDir := filepath.Join(flakeDir, "hosts", profile.Hostname)

	switch kind {
	case DiskConfig:
		return Artifact{
			Kind: kind,
			Path: filepath.Join(hostDir, "disk-config.nix"),
			Text: renderDiskConfig(profile),
		}, nil
	case HardwareConfig:
		return Artifact{
			Kind: kind,
			Path: filepath.Join(hostDir, "hardware-configuration.nix"),
			Text: renderHardwareConfig(profile, facts),
		}, nil
	case HostConfig:
		return Artifact{
			Kind: kind,
			Path: filepath.Join(hostDir, "default.nix"),
			Text: renderHostConfig(profile, facts),
		}, nil
	default:
		return Artifact{}, fmt.Errorf("unknown artifact kind %q", kind)
	}
}

// RenderAll renders the three artifacts for a host in their generation
// order.
func RenderAll(flakeDir string, profile configuration.HostProfile, facts hardware.Facts) (artifacts []Artifact, err error) {
	for _, kind := range []Kind{DiskConfig, HardwareConfig, HostConfig} {
		a, err := Render(kind, flakeDir, profile, facts)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// Write persists the artifact. An existing file is left untouched
// unless force is set, so re-running never destroys a hand-edited
// config.
func (a Artifact) Write(force bool) (WriteResult, error) {
	if util.DoesFileExist(a.Path) && !force {
		return Skipped, nil
	}

	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(a.Path), err)
	}

	// Write through a temp file so an interrupted run leaves the
	// target either absent or complete, never truncated.
	tmp := a.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(a.Text), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, a.Path); err != nil {
		return "", fmt.Errorf("writing %s: %w", a.Path, err)
	}

	return Written, nil
}
