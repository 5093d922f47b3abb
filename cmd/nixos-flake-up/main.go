package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yukinix/nixos-flake-up/pkg/command"
	"github.com/yukinix/nixos-flake-up/pkg/configuration"
	"github.com/yukinix/nixos-flake-up/pkg/dialog"
	"github.com/yukinix/nixos-flake-up/pkg/disk"
	"github.com/yukinix/nixos-flake-up/pkg/flake"
	"github.com/yukinix/nixos-flake-up/pkg/generate"
	"github.com/yukinix/nixos-flake-up/pkg/hardware"
	"github.com/yukinix/nixos-flake-up/pkg/util"
)

var (
	dryRun    bool
	flakeDir  string
	force     bool
	reinstall bool
	assumeYes bool
)

// knownHosts are the entries a canonical reset may restore, filtered
// by which hosts/<name> directories actually exist.
var knownHosts = []string{"yuki", "minimal"}

func init() {
	flag.BoolVar(&dryRun, "dry-run", false, "print commands instead of running them")
	flag.StringVar(&flakeDir, "flake-dir", ".", "flake repository root")
	flag.BoolVar(&force, "force", false, "regenerate artifacts even if they exist")
	flag.BoolVar(&reinstall, "reinstall", false, "update an installed system instead of repartitioning")
	flag.BoolVar(&assumeYes, "yes", false, "skip confirmation prompts")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: nixos-flake-up [flags] hostname [disk]\n")
		flag.PrintDefaults()
	}

	flag.Parse()
}

func main() {
	os.Exit(run())
}

func run() (exitCode int) {
	// Cleanup must fire on every exit path: normal, fatal and
	// interrupted. Fatal paths return through here instead of
	// calling os.Exit directly.
	defer func() { cleanup(exitCode) }()

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupted
		fmt.Fprintln(os.Stderr, "interrupted")
		cleanup(1)
		os.Exit(1)
	}()

	// A .env next to the flake may carry the env switches.
	_ = godotenv.Load(filepath.Join(flakeDir, ".env"))

	if util.EnvBool("FORCE_GENERATE") {
		force = true
	}
	if util.EnvBool("SKIP_CONFIRMATION") {
		assumeYes = true
	}
	if util.EnvBool("REINSTALL") {
		reinstall = true
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return 1
	}

	hostname := args[0]
	if err := configuration.ValidateHostname(hostname); err != nil {
		return fatal(err)
	}

	if !dryRun && !util.WasRunAsRoot() {
		return fatal(fmt.Errorf("run as root"))
	}

	profile := configuration.NewHostProfile(hostname, reinstall)

	facts := hardware.Probe(hardware.Options{
		SkipGPU:   util.EnvBool("SKIP_DRM_DETECTION"),
		Reinstall: reinstall,
	})
	reportFacts(facts)

	diskArg := os.Getenv("TARGET_DISK")
	if len(args) > 1 {
		diskArg = args[1]
	}

	chosen, err := disk.Choose(facts.Disks, diskArg)
	if err != nil {
		return fatal(err)
	}
	if err := disk.Verify(chosen); err != nil {
		return fatal(err)
	}
	profile.Disk = chosen

	artifacts, err := generate.RenderAll(flakeDir, profile, facts)
	if err != nil {
		return fatal(err)
	}
	for _, a := range artifacts {
		res, err := a.Write(force)
		if err != nil {
			return fatal(err)
		}
		fmt.Printf("%s: %s\n", res, a.Path)
	}

	hostsFile := filepath.Join(flakeDir, "hosts", "default.nix")
	if util.DoesFileExist(hostsFile) {
		res, err := flake.EnsureHostEntry(hostsFile, hostname)
		if err != nil {
			return fatal(err)
		}
		fmt.Printf("%s: %s in %s\n", res, hostname, hostsFile)
	} else {
		util.Warn("%s not found, skipping flake patch", hostsFile)
	}

	env := command.Env{Profile: profile, FlakeDir: flakeDir}

	if !dryRun && util.DoesFileExist(hostsFile) {
		if err := ensureFlakeEvaluates(env, hostsFile); err != nil {
			return fatal(err)
		}
	}

	fmt.Printf("About to provision:%s\n\n", profile)

	if !dialog.Confirm("Are you sure you want to continue", assumeYes) {
		fmt.Println("Aborting...")
		return 0
	}

	gens := command.MakeCommandGenerators(env)
	cmds := command.GenerateCommands(env, gens)

	if dryRun {
		command.DryRun(cmds)
		return 0
	}

	if err := command.RunCmds(cmds); err != nil {
		return fatal(err)
	}

	return 0
}

func fatal(err error) int {
	fmt.Fprintln(os.Stderr, "error: "+err.Error())
	return 1
}

func reportFacts(facts hardware.Facts) {
	gpus := "none detected"
	if len(facts.GPUVendors) > 0 {
		gpus = ""
		for i, g := range facts.GPUVendors {
			if i > 0 {
				gpus += ", "
			}
			gpus += string(g)
		}
	}

	fmt.Printf("CPU vendor: %s\nGPUs:       %s\nDisks:\n", facts.CPUVendor, gpus)
	for _, line := range disk.DisplayDisks(facts.Disks) {
		fmt.Println("  " + line)
	}
}

// ensureFlakeEvaluates runs the recovery escalation: evaluate, then
// offer corruption repair, then a canonical reset, re-evaluating after
// each step. Only when everything fails does it become fatal.
func ensureFlakeEvaluates(env command.Env, hostsFile string) error {
	eval := command.FlakeEval(env)

	out, err := eval.Execute()
	if err == nil {
		return nil
	}
	util.Warn("flake evaluation failed:\n%s", out)

	corrupt, detectErr := flake.DetectCorruption(hostsFile)
	if detectErr != nil {
		return detectErr
	}

	if len(corrupt) > 0 {
		fmt.Printf("Corrupt host entries in %s at lines %v\n", hostsFile, corrupt)
		if dialog.Confirm("Repair by removing the corrupt entries", assumeYes) {
			backup, err := flake.Repair(hostsFile, corrupt)
			if err != nil {
				return err
			}
			fmt.Printf("%s: backup at %s\n", flake.Repaired, backup)

			if _, err := eval.Execute(); err == nil {
				return nil
			}
			util.Warn("flake evaluation still failing after repair")
		}
	}

	if dialog.Confirm("Reset nixosConfigurations to the known-good entries", assumeYes) {
		backup, err := flake.Reset(hostsFile, knownHosts)
		if err != nil {
			return err
		}
		fmt.Printf("%s: backup at %s\n", flake.WasReset, backup)

		// the reset dropped everything but the known hosts, so the
		// current host entry may need to go back in
		if _, err := flake.EnsureHostEntry(hostsFile, env.Profile.Hostname); err != nil {
			return err
		}

		if _, err := eval.Execute(); err == nil {
			return nil
		}
	}

	return fmt.Errorf("flake evaluation unrecoverable, restore a backup of %s and retry", hostsFile)
}

// cleanup removes stale artifact temp files and, on failure, reports
// available memory since nix evaluation failures are often OOM kills.
func cleanup(exitCode int) {
	stale, _ := filepath.Glob(filepath.Join(flakeDir, "hosts", "*", "*.nix.tmp"))
	for _, path := range stale {
		os.Remove(path)
	}

	if exitCode != 0 {
		fmt.Fprintf(os.Stderr, "available memory: %d MB\n", util.AvailableMemKB()/1024)
	}
}
