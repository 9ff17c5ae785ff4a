//go:build !linux

package usbbridge

import (
	"runtime"

	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoerr"
)

// DeviceInfo names one enumerated USB device, as reported by sysfs on
// Linux. Declared on every platform so callers can type-check without
// build tags of their own.
type DeviceInfo struct {
	Bus       int
	Device    int
	VendorID  uint16
	ProductID uint16
}

func ListDevices() ([]DeviceInfo, error) {
	return nil, xoerr.Newf(xoerr.UsbNotSupported, "usb device enumeration is not supported on %s", runtime.GOOS)
}

func FindDescriptor(dev xoeconfig.USBDevice) (USBDescriptor, error) {
	return USBDescriptor{}, xoerr.Newf(xoerr.UsbNotSupported, "usb device access is not supported on %s", runtime.GOOS)
}
