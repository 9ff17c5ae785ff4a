//go:build linux

package usbbridge

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoerr"
)

const usbSysfsRoot = "/sys/bus/usb/devices"

// DeviceInfo names one enumerated USB device, as reported by sysfs.
type DeviceInfo struct {
	Bus       int
	Device    int
	VendorID  uint16
	ProductID uint16
}

// ListDevices walks /sys/bus/usb/devices and returns every device
// carrying both busnum and devnum attributes (i.e. actual devices, not
// interface or hub-port entries). Used by --list-usb and by
// FindDescriptor's vendor/product-ID resolution.
func ListDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(usbSysfsRoot)
	if err != nil {
		return nil, xoerr.Wrap(xoerr.UsbNotSupported, err, "reading usb sysfs tree")
	}

	var devices []DeviceInfo
	for _, entry := range entries {
		dir := filepath.Join(usbSysfsRoot, entry.Name())

		bus, ok := readSysfsInt(dir, "busnum")
		if !ok {
			continue
		}
		dev, ok := readSysfsInt(dir, "devnum")
		if !ok {
			continue
		}
		vendor, ok := readSysfsHex(dir, "idVendor")
		if !ok {
			continue
		}
		product, ok := readSysfsHex(dir, "idProduct")
		if !ok {
			continue
		}

		devices = append(devices, DeviceInfo{
			Bus:       bus,
			Device:    dev,
			VendorID:  vendor,
			ProductID: product,
		})
	}
	return devices, nil
}

// FindDescriptor resolves dev's vendor/product ID against the current
// USB topology and builds a USBDescriptor addressing it. Ambiguous
// matches (more than one attached device with the same IDs) resolve to
// the first one sysfs reports, in directory order.
func FindDescriptor(dev xoeconfig.USBDevice) (USBDescriptor, error) {
	devices, err := ListDevices()
	if err != nil {
		return USBDescriptor{}, err
	}
	for _, d := range devices {
		if d.VendorID == dev.VendorID && d.ProductID == dev.ProductID {
			return Descriptor(dev, d.Bus, d.Device), nil
		}
	}
	return USBDescriptor{}, xoerr.Newf(xoerr.UsbNoDevice, "no usb device matching vendor=0x%04x product=0x%04x", dev.VendorID, dev.ProductID)
}

func readSysfsInt(dir, name string) (int, bool) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, false
	}
	return n, true
}

func readSysfsHex(dir, name string) (uint16, bool) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}
