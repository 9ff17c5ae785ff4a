//go:build !linux

package usbbridge

import (
	"runtime"

	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoerr"
)

// USBDescriptor names the device/interface/endpoints a caller wants to
// bridge. Only the Linux build can resolve one into a live Endpoint.
type USBDescriptor struct {
	DevicePath   string
	Interface    int
	EndpointIn   byte
	EndpointOut  byte
	EndpointIntr byte
}

// OpenUSB is unsupported outside Linux: USBDEVFS ioctls are a Linux
// kernel interface with no portable equivalent.
func OpenUSB(desc USBDescriptor) (Endpoint, error) {
	return nil, xoerr.Newf(xoerr.UsbNotSupported, "usb device access is not supported on %s", runtime.GOOS)
}

// OpenUSBFromConfig mirrors OpenUSB's unsupported behavior.
func OpenUSBFromConfig(dev xoeconfig.USBDevice, desc USBDescriptor) (Endpoint, error) {
	return OpenUSB(desc)
}
