package hardware

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePCIDevice lays out a fake sysfs PCI device directory. Entries
// are scanned in lexical name order, so test names fix the order.
func writePCIDevice(t *testing.T, root, name, class, vendor string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "class"), []byte(class+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vendor"), []byte(vendor+"\n"), 0o644))
}

func TestGPUVendorsFromSysfs(t *testing.T) {
	root := t.TempDir()
	writePCIDevice(t, root, "0000:00:02.0", "0x030000", "0x8086")
	writePCIDevice(t, root, "0000:00:1f.6", "0x020000", "0x8086") // network, not display
	writePCIDevice(t, root, "0000:01:00.0", "0x030000", "0x10de")

	vendors := gpuVendorsFromSysfs(root, 3)

	assert.Equal(t, []GPUVendor{IntelGPU, NvidiaGPU}, vendors)
}

func TestGPUVendorsFromSysfs_LimitStopsScan(t *testing.T) {
	root := t.TempDir()
	writePCIDevice(t, root, "a0", "0x030000", "0x10de")
	writePCIDevice(t, root, "a1", "0x030200", "0x1234") // display class, unknown vendor
	writePCIDevice(t, root, "a2", "0x038000", "0x10de")
	writePCIDevice(t, root, "a3", "0x030000", "0x1002") // fourth display device, past the limit

	vendors := gpuVendorsFromSysfs(root, 3)

	assert.Equal(t, []GPUVendor{NvidiaGPU}, vendors,
		"unknown vendors count toward the limit and the fourth device is never read")
}

func TestGPUVendorsFromSysfs_SkipsNonDisplayClasses(t *testing.T) {
	root := t.TempDir()
	writePCIDevice(t, root, "b0", "0x020000", "0x10de")
	writePCIDevice(t, root, "b1", "0x010601", "0x8086")

	assert.Empty(t, gpuVendorsFromSysfs(root, 3))
}

func TestGPUVendorsFromSysfs_MissingRoot(t *testing.T) {
	assert.Empty(t, gpuVendorsFromSysfs(filepath.Join(t.TempDir(), "missing"), 3))
}
