//go:build linux

package usbbridge

import (
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoerr"
)

// USBDEVFS ioctl numbers, from linux/usbdevice_fs.h. go-ublk's uring
// package builds its own minimal syscall structures rather than
// depending on a cgo binding for kernel uapi it only needs a sliver
// of; usbdevfs gets the same treatment here.
const (
	usbdevfsClaimInterface   = 0x8004550f
	usbdevfsReleaseInterface = 0x80045510
	usbdevfsBulk             = 0xc0185502
	usbdevfsReset            = 0x5514
)

// usbdevfsBulktransfer mirrors struct usbdevfs_bulktransfer.
type usbdevfsBulktransfer struct {
	Endpoint uint32
	Length   uint32
	Timeout  uint32
	_        uint32
	Data     unsafe.Pointer
}

// usbEndpoint is a claimed USB interface on a device file opened under
// /dev/bus/usb/<bus>/<dev>, with resolved IN/OUT (and optional
// interrupt) endpoint addresses.
type usbEndpoint struct {
	mu      sync.Mutex
	file    *os.File
	iface   int
	epIn    byte
	epOut   byte
	epInt   byte
	claimed bool
}

// USBDescriptor names the device/interface/endpoints a caller wants to
// bridge, resolved ahead of time (by vendor/product ID lookup or
// explicit bus/device addressing) into a devfs path.
type USBDescriptor struct {
	DevicePath   string
	Interface    int
	EndpointIn   byte
	EndpointOut  byte
	EndpointIntr byte
}

// OpenUSB opens the device file named in desc, claims its interface,
// and returns an Endpoint ready for bulk transfers.
func OpenUSB(desc USBDescriptor) (Endpoint, error) {
	f, err := os.OpenFile(desc.DevicePath, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xoerr.Wrap(xoerr.UsbNoDevice, err, "opening usb device file")
		}
		if os.IsPermission(err) {
			return nil, xoerr.Wrap(xoerr.UsbAccessDenied, err, "opening usb device file")
		}
		return nil, xoerr.Wrap(xoerr.IoError, err, "opening usb device file")
	}

	ep := &usbEndpoint{
		file:  f,
		iface: desc.Interface,
		epIn:  desc.EndpointIn,
		epOut: desc.EndpointOut,
		epInt: desc.EndpointIntr,
	}

	ifaceNum := int32(desc.Interface)
	if err := ep.ioctl(usbdevfsClaimInterface, unsafe.Pointer(&ifaceNum)); err != nil {
		_ = f.Close()
		if err == unix.EBUSY {
			return nil, xoerr.Wrap(xoerr.UsbBusy, err, "claiming usb interface")
		}
		return nil, xoerr.Wrap(xoerr.IoError, err, "claiming usb interface")
	}
	ep.claimed = true

	return ep, nil
}

// OpenUSBFromConfig resolves a USB device from settings and opens it.
// Device resolution by vendor/product ID against sysfs is left to the
// mode-select caller; this takes an already-resolved descriptor.
func OpenUSBFromConfig(dev xoeconfig.USBDevice, desc USBDescriptor) (Endpoint, error) {
	if dev.VendorID == 0 || dev.ProductID == 0 {
		return nil, xoerr.Field("usb.vendor_id", "vendor and product id are required to open a usb device")
	}
	return OpenUSB(desc)
}

func (e *usbEndpoint) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, e.file.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (e *usbEndpoint) bulk(endpoint byte, p []byte, timeout time.Duration) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	xfer := usbdevfsBulktransfer{
		Endpoint: uint32(endpoint),
		Length:   uint32(len(p)),
		Timeout:  uint32(timeout.Milliseconds()),
		Data:     unsafe.Pointer(&p[0]),
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, _, errno := unix.Syscall(unix.SYS_IOCTL, e.file.Fd(), usbdevfsBulk, uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		switch errno {
		case unix.ETIMEDOUT:
			return 0, xoerr.Wrap(xoerr.UsbTimeout, errno, "usb bulk transfer timed out")
		case unix.ENODEV:
			return 0, xoerr.Wrap(xoerr.UsbNoDevice, errno, "usb device disconnected")
		case unix.EPIPE:
			return 0, xoerr.Wrap(xoerr.UsbPipeError, errno, "usb endpoint stalled")
		default:
			return 0, xoerr.Wrap(xoerr.IoError, errno, fmt.Sprintf("usb bulk transfer failed on endpoint 0x%02x", endpoint))
		}
	}
	return int(n), nil
}

// ReadBulk reads up to len(p) bytes from the IN endpoint.
func (e *usbEndpoint) ReadBulk(p []byte, timeout time.Duration) (int, error) {
	return e.bulk(e.epIn, p, timeout)
}

// WriteBulk writes p to the OUT endpoint.
func (e *usbEndpoint) WriteBulk(p []byte) (int, error) {
	return e.bulk(e.epOut, p, 2*time.Second)
}

// Close releases the claimed interface and closes the device file.
func (e *usbEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.claimed {
		ifaceNum := int32(e.iface)
		_ = e.ioctl(usbdevfsReleaseInterface, unsafe.Pointer(&ifaceNum))
		e.claimed = false
	}
	return e.file.Close()
}
