package disk

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/yukinix/nixos-flake-up/pkg/util"
)

type Kind string

var (
	HDD  Kind = "disk"
	NVMe Kind = "nvme"
)

type Disk struct {
	Name      string
	Vendor    string
	Model     string
	SizeBytes int64
	Kind      Kind
}

func (d Disk) Device() string {
	return "/dev/" + d.Name
}

func (d Disk) SizeGB() int {
	return int(d.SizeBytes / 1024 / 1024 / 1024)
}

func (d Disk) WithSize() Disk {
	sectors := util.GetFirstLineOfFile("/sys/block/" + d.Name + "/size")
	if sectors == "" {
		return d
	}

	n, _ := strconv.ParseInt(sectors, 10, 64)
	d.SizeBytes = n * 512

	return d
}

// skipPrefixes are block devices that are never installation targets.
var skipPrefixes = []string{"loop", "ram", "sr", "dm-", "zram", "fd", "md"}

func kindOf(name string) (Kind, bool) {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(name, prefix) {
			return "", false
		}
	}
	if strings.HasPrefix(name, "nvme") {
		return NVMe, true
	}
	return HDD, true
}

// GetDisks enumerates /sys/block and returns candidate installation
// targets sorted by descending size.
func GetDisks() (disks []Disk, err error) {
	files, err := os.ReadDir("/sys/block")
	if err != nil {
		return nil, fmt.Errorf("listing block devices: %w", err)
	}

	base := "/sys/block/%s/device/%s"
	for _, file := range files {
		kind, ok := kindOf(file.Name())
		if !ok {
			continue
		}

		d := Disk{
			Name:   file.Name(),
			Kind:   kind,
			Vendor: util.GetFirstLineOfFile(fmt.Sprintf(base, file.Name(), "vendor")),
			Model:  util.GetFirstLineOfFile(fmt.Sprintf(base, file.Name(), "model")),
		}

		disks = append(disks, d.WithSize())
	}

	SortBySize(disks)

	return disks, nil
}

func SortBySize(disks []Disk) {
	sort.SliceStable(disks, func(i, j int) bool {
		return disks[i].SizeBytes > disks[j].SizeBytes
	})
}

// Choose picks the explicitly named disk, or the largest one when no
// name was given. The explicit name may carry a /dev/ prefix.
func Choose(disks []Disk, explicit string) (Disk, error) {
	if explicit == "" {
		if len(disks) == 0 {
			return Disk{}, fmt.Errorf("no disks found")
		}
		largest := disks[0]
		for _, d := range disks[1:] {
			if d.SizeBytes > largest.SizeBytes {
				largest = d
			}
		}
		return largest, nil
	}

	name := strings.TrimPrefix(explicit, "/dev/")
	for _, d := range disks {
		if d.Name == name {
			return d, nil
		}
	}

	return Disk{}, fmt.Errorf("disk %q not found among block devices", explicit)
}

// Verify ensures the chosen disk is backed by a real block device.
// Installing to a wrong or vanished disk is destructive, so this is
// the one probe failure that must abort the run.
func Verify(d Disk) error {
	if _, err := os.Stat(d.Device()); err != nil {
		return fmt.Errorf("target disk %s does not exist: %w", d.Device(), err)
	}
	if !util.DoesDirExist("/sys/block/" + d.Name) {
		return fmt.Errorf("target %s is not a block device", d.Device())
	}
	return nil
}

func (d Disk) PartitionName(partition int) string {
	switch {
	case strings.HasPrefix(d.Name, "nvme"):
		return d.Name + "p" + strconv.Itoa(partition)
	default:
		return d.Name + strconv.Itoa(partition)
	}
}

func DisplayDisks(disks []Disk) (display []string) {
	for _, disk := range disks {
		display = append(display, fmt.Sprintf(
			"%s\t%d Gb total",
			disk.Name,
			disk.SizeGB(),
		))
	}

	return
}
