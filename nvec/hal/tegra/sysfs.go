//go:build linux

package tegra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// sysfsRoot is SysfsUIOPath; tests point it at a fixture tree.
var sysfsRoot = SysfsUIOPath

// uioDevice describes a UIO device discovered via sysfs.
type uioDevice struct {
	name    string // sysfs entry, e.g. uio0
	devPath string // /dev/uio0
	label   string // contents of the name attribute
	mapSize int    // size of map0 in bytes
}

// findUIO resolves device to a UIO device. device may be a device node
// path (/dev/uio3), a sysfs entry name (uio3) or the label the kernel
// driver registered (the "name" attribute).
func findUIO(device string) (uioDevice, error) {
	if strings.HasPrefix(device, DevfsPrefix) {
		return parseUIO(filepath.Base(device))
	}
	if strings.HasPrefix(device, "uio") {
		if _, err := os.Stat(filepath.Join(sysfsRoot, device)); err == nil {
			return parseUIO(device)
		}
	}

	entries, err := os.ReadDir(sysfsRoot)
	if err != nil {
		return uioDevice{}, err
	}
	for _, entry := range entries {
		info, err := parseUIO(entry.Name())
		if err != nil {
			continue
		}
		if info.label == device {
			return info, nil
		}
	}
	return uioDevice{}, fmt.Errorf("uio device %q: %w", device, os.ErrNotExist)
}

// parseUIO reads the attributes of one sysfs UIO entry.
func parseUIO(name string) (uioDevice, error) {
	dir := filepath.Join(sysfsRoot, name)
	label, err := readAttr(filepath.Join(dir, "name"))
	if err != nil {
		return uioDevice{}, err
	}
	info := uioDevice{
		name:    name,
		devPath: DevfsPrefix + name,
		label:   label,
		mapSize: RegWindow,
	}

	if s, err := readAttr(filepath.Join(dir, "maps", "map0", "size")); err == nil {
		n, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return uioDevice{}, fmt.Errorf("%s map0 size %q: %w", name, s, err)
		}
		info.mapSize = int(n)
	}
	if info.mapSize < RegWindow {
		return uioDevice{}, fmt.Errorf("%s map0 size %#x smaller than register window", name, info.mapSize)
	}
	return info, nil
}

func readAttr(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
