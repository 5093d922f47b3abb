package command

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/yukinix/nixos-flake-up/pkg/util"
)

type Command interface {
	Message() string
	Execute() (string, error)
	DryRun() string
}

func DryRun(cmds []Command) {
	for _, cmd := range cmds {
		fmt.Printf("--\n%s\n%s\n", cmd.Message(), cmd.DryRun())
	}
}

func RunCmds(cmds []Command) error {
	for _, cmd := range cmds {
		fmt.Printf("--\n%s\n", cmd.Message())
		out, err := cmd.Execute()
		if out != "" {
			fmt.Println(out)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Message(), err)
		}
	}
	return nil
}

type ShellCommand struct {
	Label string
	Cmd   string
}

func (c ShellCommand) Message() string {
	return c.Label
}

func (c ShellCommand) Execute() (string, error) {
	s := strings.Split(c.Cmd, " ")
	out, err := exec.Command(s[0], s[1:]...).CombinedOutput()
	return string(out), err
}

func (c ShellCommand) DryRun() string {
	return c.Cmd
}

type FunctionCommand struct {
	Label string
	Func  func() (string, error)
}

func (c FunctionCommand) Message() string {
	return c.Label
}

func (c FunctionCommand) Execute() (string, error) {
	return c.Func()
}

func (c FunctionCommand) DryRun() string {
	return "Ran a function"
}

type RepeatedFunctionCommand struct {
	Label string
	Func  func() (success bool)
	Limit int
	Wait  time.Duration
}

func (c RepeatedFunctionCommand) Message() string {
	return c.Label
}

func (c RepeatedFunctionCommand) Execute() (msg string, err error) {
	for i := 0; i < c.Limit; i++ {
		if c.Func() {
			return "Ran " + strconv.Itoa(i+1) + " times", nil
		}
		time.Sleep(c.Wait)
	}
	return "", fmt.Errorf("exceeded limit of %d attempts", c.Limit)
}

func (c RepeatedFunctionCommand) DryRun() string {
	return fmt.Sprintf("Ran a function at worst %d times", c.Limit)
}

func Sleep(t time.Duration) Command {
	return FunctionCommand{
		Label: fmt.Sprintf("Sleep for %.0f s", t.Seconds()),
		Func: func() (string, error) {
			time.Sleep(t)
			return "slept", nil
		},
	}
}

// RequireTools fails when any of the external collaborators is
// missing from PATH.
func RequireTools(tools ...string) Command {
	return FunctionCommand{
		Label: "Check required tools: " + strings.Join(tools, ", "),
		Func: func() (string, error) {
			for _, tool := range tools {
				if _, err := exec.LookPath(tool); err != nil {
					return "", fmt.Errorf("required tool %q not found in PATH", tool)
				}
			}
			return "all present", nil
		},
	}
}

// CheckFirmware warns on BIOS machines. The generated disk layout
// boots through an ESP, which needs UEFI firmware.
func CheckFirmware() Command {
	return FunctionCommand{
		Label: "Check firmware type",
		Func: func() (string, error) {
			if !util.IsUefiSystem() {
				util.Warn("BIOS firmware detected, the generated disk layout boots via UEFI")
				return "bios", nil
			}
			return "uefi", nil
		},
	}
}

// minAvailableMemKB is the point below which we warn. Nix evaluation
// of a full system config is memory hungry.
const minAvailableMemKB = 2 * 1024 * 1024

func CheckMemory() Command {
	return FunctionCommand{
		Label: "Check available memory",
		Func: func() (string, error) {
			kb := util.AvailableMemKB()
			if kb > 0 && kb < minAvailableMemKB {
				util.Warn("only %d MB memory available, nix evaluation may be slow", kb/1024)
			}
			return fmt.Sprintf("%d MB available", kb/1024), nil
		},
	}
}
