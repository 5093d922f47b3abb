package flake

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/yukinix/nixos-flake-up/pkg/util"
)

// corruptEntry matches an entry whose key is a verbatim KEY=VALUE
// token, the fingerprint of an environment-variable assignment passed
// as a positional hostname argument. A legitimately quoted key starts
// with '"' and can never match.
var corruptEntry = regexp.MustCompile(`^\s*[A-Za-z_][A-Za-z0-9_]*=[0-9]+\s*=\s*mkNixosSystem\s*\{`)

// DetectCorruption returns the 1-based line numbers of corrupt host
// entries in the file.
func DetectCorruption(path string) (lineNums []int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	for i, line := range strings.Split(string(data), "\n") {
		if corruptEntry.MatchString(line) {
			lineNums = append(lineNums, i+1)
		}
	}

	return
}

// Backup copies the file next to itself with a timestamp suffix and
// returns the backup path. Destructive mutations take one first so
// there is always a manual undo.
func Backup(path string) (string, error) {
	data, mode, err := readWithMode(path)
	if err != nil {
		return "", err
	}

	backup := fmt.Sprintf("%s.backup-%s", path, time.Now().Format("20060102-150405"))
	if err := os.WriteFile(backup, data, mode); err != nil {
		return "", fmt.Errorf("writing backup %s: %w", backup, err)
	}

	return backup, nil
}

// Repair removes the corrupt entries starting at the given 1-based
// line numbers. Each entry is taken to end at the first following line
// that is exactly "};" once trimmed. That is a heuristic, not a
// guarantee: an entry body nesting a bare "};" on its own line would
// end the removal early.
func Repair(path string, lineNums []int) (backup string, err error) {
	data, mode, err := readWithMode(path)
	if err != nil {
		return "", err
	}

	backup, err = Backup(path)
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(data), "\n")

	drop := make(map[int]bool)
	for _, num := range lineNums {
		start := num - 1
		if start < 0 || start >= len(lines) {
			return backup, fmt.Errorf("%s: corrupt entry line %d out of range", path, num)
		}
		// A whole entry on one line needs no scan for its closer.
		if braceDelta(lines[start]) == 0 && strings.HasSuffix(strings.TrimSpace(lines[start]), "};") {
			drop[start] = true
			continue
		}
		for i := start; i < len(lines); i++ {
			drop[i] = true
			if strings.TrimSpace(lines[i]) == "};" {
				break
			}
		}
	}

	kept := make([]string, 0, len(lines))
	for i, line := range lines {
		if !drop[i] {
			kept = append(kept, line)
		}
	}

	if err := os.WriteFile(path, []byte(strings.Join(kept, "\n")), mode); err != nil {
		return backup, fmt.Errorf("writing %s: %w", path, err)
	}

	return backup, nil
}

// Reset rewrites the contents of the nixosConfigurations block with
// canonical entries for the known hosts whose hosts/<name> directory
// exists, discarding everything else inside the block. Last-resort
// recovery; the caller must have confirmed it.
func Reset(path string, knownHosts []string) (backup string, err error) {
	data, mode, err := readWithMode(path)
	if err != nil {
		return "", err
	}

	backup, err = Backup(path)
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(data), "\n")

	blk, err := findBlock(lines)
	if err != nil {
		return backup, fmt.Errorf("%s: %w", path, err)
	}
	if blk.closing == blk.header {
		return backup, fmt.Errorf("%s: nixosConfigurations block is single-line, cannot reset", path)
	}

	hostsDir := filepath.Dir(path)
	indent := leadingWhitespace(lines[blk.closing]) + "  "

	rebuilt := make([]string, 0, len(lines))
	rebuilt = append(rebuilt, lines[:blk.header+1]...)
	for _, host := range knownHosts {
		if !util.DoesDirExist(filepath.Join(hostsDir, host)) {
			continue
		}
		rebuilt = append(rebuilt, strings.Split(EntryText(host, indent), "\n")...)
	}
	rebuilt = append(rebuilt, lines[blk.closing:]...)

	if err := os.WriteFile(path, []byte(strings.Join(rebuilt, "\n")), mode); err != nil {
		return backup, fmt.Errorf("writing %s: %w", path, err)
	}

	return backup, nil
}
