package flake_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukinix/nixos-flake-up/pkg/flake"
	"github.com/yukinix/nixos-flake-up/test/generators"
	"pgregory.net/rapid"
)

const hostsFile = `# Host registry. Generated entries live in nixosConfigurations.
{ inputs, ... }:

let
  mkNixosSystem = args: inputs.nixpkgs.lib.nixosSystem {
    system = args.system;
    modules = args.modules;
  };
in
{
  nixosConfigurations = {
    yuki = mkNixosSystem {
      hostname = "yuki";
      system = "x86_64-linux";
      modules = [ ./yuki ];
    };
    "minimal" = mkNixosSystem {
      hostname = "minimal";
      system = "x86_64-linux";
      modules = [ ./minimal ];
    };
  };

  otherAttrs = {
    unrelated = { nested = { deep = true; }; };
  };
}
`

func writeHostsFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "default.nix")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestHasHostEntry(t *testing.T) {
	assert.True(t, flake.HasHostEntry(hostsFile, "yuki"), "bare key")
	assert.True(t, flake.HasHostEntry(hostsFile, "minimal"), "quoted key")
	assert.False(t, flake.HasHostEntry(hostsFile, "newhost"))
	assert.False(t, flake.HasHostEntry(hostsFile, "yuk"), "prefix of a key is not a match")
}

func TestEnsureHostEntry_AlreadyPresent(t *testing.T) {
	path := writeHostsFile(t, hostsFile)

	res, err := flake.EnsureHostEntry(path, "yuki")

	require.NoError(t, err)
	assert.Equal(t, flake.AlreadyPresent, res)
	assert.Equal(t, hostsFile, readFile(t, path), "already-present must not touch the file")
}

func TestEnsureHostEntry_Insert(t *testing.T) {
	path := writeHostsFile(t, hostsFile)

	res, err := flake.EnsureHostEntry(path, "newhost")
	require.NoError(t, err)
	assert.Equal(t, flake.Inserted, res)

	content := readFile(t, path)
	assert.True(t, flake.HasHostEntry(content, "newhost"))
	assert.Contains(t, content, `"newhost" = mkNixosSystem {`)
	assert.Contains(t, content, `hostname = "newhost";`)
	assert.Contains(t, content, `modules = [ ./newhost ];`)

	// the new entry sits inside nixosConfigurations, before otherAttrs
	assert.Less(t,
		strings.Index(content, `"newhost"`),
		strings.Index(content, "otherAttrs"),
	)

	// everything outside the block is untouched
	assert.Contains(t, content, "# Host registry. Generated entries live in nixosConfigurations.")
	assert.Contains(t, content, "unrelated = { nested = { deep = true; }; };")
	before := strings.SplitN(hostsFile, "nixosConfigurations = {", 2)[0]
	assert.True(t, strings.HasPrefix(content, before), "bytes before the block must be preserved")
	after := strings.SplitN(hostsFile, "otherAttrs", 2)[1]
	assert.True(t, strings.HasSuffix(content, after), "bytes after the block must be preserved")
}

func TestEnsureHostEntry_RoundTrip(t *testing.T) {
	path := writeHostsFile(t, hostsFile)

	res, err := flake.EnsureHostEntry(path, "newhost")
	require.NoError(t, err)
	require.Equal(t, flake.Inserted, res)

	once := readFile(t, path)

	res, err = flake.EnsureHostEntry(path, "newhost")
	require.NoError(t, err)
	assert.Equal(t, flake.AlreadyPresent, res)
	assert.Equal(t, once, readFile(t, path), "second ensure must be a no-op")
}

func TestEnsureHostEntry_NoBlock(t *testing.T) {
	path := writeHostsFile(t, "{ foo = 1; }\n")

	_, err := flake.EnsureHostEntry(path, "newhost")

	assert.Error(t, err)
}

func TestEnsureHostEntry_IgnoresBracesInStrings(t *testing.T) {
	tricky := `{
  nixosConfigurations = {
    yuki = mkNixosSystem {
      hostname = "yuki";
      motd = "braces } in { strings do not count";
      modules = [ ./yuki ];
    };
  };
}
`
	path := writeHostsFile(t, tricky)

	res, err := flake.EnsureHostEntry(path, "newhost")
	require.NoError(t, err)
	assert.Equal(t, flake.Inserted, res)

	content := readFile(t, path)
	assert.Less(t,
		strings.Index(content, `"newhost"`),
		strings.LastIndex(content, "};"),
	)
	assert.True(t, strings.HasSuffix(content, "}\n"))
}

func TestEnsureHostEntry_InsertProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		host := generators.HostnameGen().Filter(func(s string) bool {
			return s != "yuki" && s != "minimal"
		}).Draw(t, "Hostname").(string)

		dir, err := os.MkdirTemp("", "flake-test")
		require.NoError(t, err)
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "default.nix")
		require.NoError(t, os.WriteFile(path, []byte(hostsFile), 0o644))

		res, err := flake.EnsureHostEntry(path, host)
		require.NoError(t, err)
		require.Equal(t, flake.Inserted, res)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.True(t, flake.HasHostEntry(string(data), host))

		res, err = flake.EnsureHostEntry(path, host)
		require.NoError(t, err)
		require.Equal(t, flake.AlreadyPresent, res)
	})
}

const corruptHostsFile = `{ inputs, ... }:
{
  nixosConfigurations = {
    yuki = mkNixosSystem {
      hostname = "yuki";
      system = "x86_64-linux";
      modules = [ ./yuki ];
    };
    SKIP_DRM_DETECTION=1 = mkNixosSystem {
      hostname = "SKIP_DRM_DETECTION=1";
      system = "x86_64-linux";
      modules = [ ./broken ];
    };
  };
}
`

func TestDetectCorruption(t *testing.T) {
	path := writeHostsFile(t, corruptHostsFile)

	lines, err := flake.DetectCorruption(path)

	require.NoError(t, err)
	assert.Equal(t, []int{9}, lines, "exactly the corrupt entry line")
}

func TestDetectCorruption_CleanFile(t *testing.T) {
	path := writeHostsFile(t, hostsFile)

	lines, err := flake.DetectCorruption(path)

	require.NoError(t, err)
	assert.Empty(t, lines, "quoted and bare keys must not false-positive")
}

func TestRepair(t *testing.T) {
	path := writeHostsFile(t, corruptHostsFile)

	lines, err := flake.DetectCorruption(path)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	backup, err := flake.Repair(path, lines)
	require.NoError(t, err)

	content := readFile(t, path)
	assert.NotContains(t, content, "SKIP_DRM_DETECTION")
	assert.Contains(t, content, "yuki = mkNixosSystem {", "sibling entries must survive")
	assert.Contains(t, content, `modules = [ ./yuki ];`)

	assert.Equal(t, corruptHostsFile, readFile(t, backup), "backup must hold the original")
	assert.True(t, strings.Contains(backup, ".backup-"))

	remaining, err := flake.DetectCorruption(path)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRepair_PreservesOutsideContent(t *testing.T) {
	path := writeHostsFile(t, corruptHostsFile)

	lines, err := flake.DetectCorruption(path)
	require.NoError(t, err)

	_, err = flake.Repair(path, lines)
	require.NoError(t, err)

	content := readFile(t, path)
	assert.True(t, strings.HasPrefix(content, "{ inputs, ... }:\n"))
	assert.True(t, strings.HasSuffix(content, "  };\n}\n"))
}

func TestReset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default.nix")
	require.NoError(t, os.WriteFile(path, []byte(corruptHostsFile), 0o644))

	// only yuki has a host directory, so only yuki survives the reset
	require.NoError(t, os.Mkdir(filepath.Join(dir, "yuki"), 0o755))

	backup, err := flake.Reset(path, []string{"yuki", "minimal"})
	require.NoError(t, err)
	assert.Equal(t, corruptHostsFile, readFile(t, backup))

	content := readFile(t, path)
	assert.Contains(t, content, `"yuki" = mkNixosSystem {`)
	assert.NotContains(t, content, "minimal")
	assert.NotContains(t, content, "SKIP_DRM_DETECTION")
	assert.True(t, strings.HasPrefix(content, "{ inputs, ... }:\n"), "header preserved")
	assert.True(t, strings.HasSuffix(content, "}\n"), "trailer preserved")
}

func TestEntryText(t *testing.T) {
	entry := flake.EntryText("newhost", "    ")

	lines := strings.Split(entry, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, `    "newhost" = mkNixosSystem {`, lines[0])
	assert.Equal(t, `    };`, lines[4])
}
