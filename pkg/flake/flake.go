// Package flake patches the hosts/default.nix file that declares all
// nixosConfigurations entries. Every mutation preserves the file
// outside the nixosConfigurations block byte-for-byte.
package flake

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

type Result string

var (
	AlreadyPresent Result = "already-present"
	Inserted       Result = "inserted"
	Repaired       Result = "repaired"
	WasReset       Result = "reset"
)

var blockHeader = regexp.MustCompile(`^\s*nixosConfigurations\s*=\s*\{`)

// block locates the nixosConfigurations attribute set inside lines.
// header is the line carrying the opening brace, closing the line on
// which brace depth returns to zero.
type block struct {
	header  int
	closing int
}

func findBlock(lines []string) (block, error) {
	header := -1
	depth := 0

	for i, line := range lines {
		if header < 0 {
			if blockHeader.MatchString(line) {
				header = i
				depth = braceDelta(line)
				if depth <= 0 {
					// single-line block
					return block{header: i, closing: i}, nil
				}
			}
			continue
		}

		depth += braceDelta(line)
		if depth <= 0 {
			return block{header: header, closing: i}, nil
		}
	}

	return block{}, fmt.Errorf("no nixosConfigurations block found")
}

// braceDelta counts the brace balance of a line, ignoring braces
// inside double-quoted strings and after a comment marker.
func braceDelta(line string) (delta int) {
	inString := false
	escaped := false

	for _, r := range line {
		if escaped {
			escaped = false
			continue
		}

		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '#':
			if !inString {
				return
			}
		case '{':
			if !inString {
				delta++
			}
		case '}':
			if !inString {
				delta--
			}
		}
	}

	return
}

// HasHostEntry reports whether content declares hostKey, in either the
// bare or the quoted spelling.
func HasHostEntry(content, hostKey string) bool {
	key := regexp.QuoteMeta(hostKey)
	re := regexp.MustCompile(`(?m)^\s*"?` + key + `"?\s*=\s*mkNixosSystem\b`)
	return re.MatchString(content)
}

// EntryText renders a canonical host entry at the given indentation.
func EntryText(hostKey, indent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%q = mkNixosSystem {\n", indent, hostKey)
	fmt.Fprintf(&b, "%s  hostname = %q;\n", indent, hostKey)
	fmt.Fprintf(&b, "%s  system = \"x86_64-linux\";\n", indent)
	fmt.Fprintf(&b, "%s  modules = [ ./%s ];\n", indent, hostKey)
	fmt.Fprintf(&b, "%s};", indent)
	return b.String()
}

// EnsureHostEntry makes sure the hosts file declares hostKey. A
// missing entry is spliced in immediately before the closing brace of
// the nixosConfigurations block; an existing one is left alone.
func EnsureHostEntry(path, hostKey string) (Result, error) {
	data, mode, err := readWithMode(path)
	if err != nil {
		return "", err
	}
	content := string(data)

	if HasHostEntry(content, hostKey) {
		return AlreadyPresent, nil
	}

	lines := strings.Split(content, "\n")

	blk, err := findBlock(lines)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	if blk.closing == blk.header {
		return "", fmt.Errorf("%s: nixosConfigurations block is single-line, cannot insert", path)
	}

	closing := lines[blk.closing]
	indent := leadingWhitespace(closing) + "  "
	entry := EntryText(hostKey, indent)

	patched := make([]string, 0, len(lines)+5)
	patched = append(patched, lines[:blk.closing]...)
	patched = append(patched, strings.Split(entry, "\n")...)
	patched = append(patched, lines[blk.closing:]...)

	if err := os.WriteFile(path, []byte(strings.Join(patched, "\n")), mode); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	return Inserted, nil
}

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

func readWithMode(path string) ([]byte, os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", path, err)
	}

	return data, info.Mode(), nil
}
