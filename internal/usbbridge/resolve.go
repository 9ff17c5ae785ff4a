package usbbridge

import (
	"fmt"

	"github.com/hcobbs/xoe/internal/xoeconfig"
)

// Descriptor builds a USBDescriptor from configuration plus a resolved
// bus/device address. Vendor/product-ID-to-bus/device resolution itself
// lives in list_linux.go/list_other.go as FindDescriptor, which calls
// this once it has a bus and device number in hand.
func Descriptor(dev xoeconfig.USBDevice, bus, device int) USBDescriptor {
	return USBDescriptor{
		DevicePath:   fmt.Sprintf("/dev/bus/usb/%03d/%03d", bus, device),
		Interface:    dev.Interface,
		EndpointIn:   byte(dev.EndpointIn),
		EndpointOut:  byte(dev.EndpointOut),
		EndpointIntr: byte(dev.EndpointInt),
	}
}
