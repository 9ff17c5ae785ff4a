// Package xoeconfig defines the bridge's single Configuration value and
// the Manager that holds an active/pending pair of them, plus the
// validation rules both the boot-time parser and the management
// interface's "set"/"validate" commands rely on.
package xoeconfig

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hcobbs/xoe/internal/xoerr"
)

// Role selects which role state the Lifecycle FSM dispatches to.
type Role string

const (
	RoleHelp         Role = "help"
	RoleServer       Role = "server"
	RoleStdClient    Role = "stdclient"
	RoleSerialClient Role = "serialclient"
	RoleUsbClient    Role = "usbclient"
	RoleNbdServer    Role = "nbdserver"
)

func (r Role) isClient() bool {
	switch r {
	case RoleStdClient, RoleSerialClient, RoleUsbClient:
		return true
	default:
		return false
	}
}

// Parity is the serial parity setting.
type Parity string

const (
	ParityNone Parity = "none"
	ParityOdd  Parity = "odd"
	ParityEven Parity = "even"
)

// FlowControl is the serial flow-control setting.
type FlowControl string

const (
	FlowNone    FlowControl = "none"
	FlowXonXoff FlowControl = "xon-xoff"
	FlowRtsCts  FlowControl = "rts-cts"
)

// BackendKind selects how an NBD export's underlying storage is opened.
type BackendKind string

const (
	BackendAuto   BackendKind = "auto"
	BackendFile   BackendKind = "file"
	BackendZvol   BackendKind = "zvol"
	BackendDevice BackendKind = "device"
)

// EncryptionMode selects the TLS posture of listening sockets.
type EncryptionMode string

const (
	EncryptionNone  EncryptionMode = "none"
	EncryptionTLS12 EncryptionMode = "tls12"
	EncryptionTLS13 EncryptionMode = "tls13"
)

var validBauds = map[int]bool{9600: true, 19200: true, 38400: true, 57600: true, 115200: true, 230400: true}

// SerialSettings configures the UART side of a serial role.
type SerialSettings struct {
	Device      string      `mapstructure:"device" validate:"required_if=Active true"`
	Baud        int         `mapstructure:"baud" validate:"omitempty"`
	DataBits    int         `mapstructure:"databits" validate:"omitempty,oneof=7 8"`
	StopBits    int         `mapstructure:"stopbits" validate:"omitempty,oneof=1 2"`
	Parity      Parity      `mapstructure:"parity" validate:"omitempty,oneof=none odd even"`
	Flow        FlowControl `mapstructure:"flow" validate:"omitempty,oneof=none xon-xoff rts-cts"`
	ReadTimeout int         `mapstructure:"read_timeout_ms" validate:"omitempty,gte=0"`

	// Active is set by the builder when a role actually uses these
	// settings; it is not itself a validator tag name, only a
	// conditional-validation anchor for Device's required_if.
	Active bool `mapstructure:"-" validate:"-"`
}

// USBDevice identifies one USB device and endpoint triple the USB
// client role bridges to TCP.
type USBDevice struct {
	VendorID  uint16 `mapstructure:"vendor_id"`
	ProductID uint16 `mapstructure:"product_id"`
	Interface int    `mapstructure:"interface" validate:"gte=0"`
	EndpointIn  int  `mapstructure:"ep_in"`
	EndpointOut int  `mapstructure:"ep_out"`
	EndpointInt int  `mapstructure:"ep_int"`
}

// NBDSettings configures the NBD server role's single export.
type NBDSettings struct {
	ExportPath     string      `mapstructure:"export_path" validate:"required_if=Active true"`
	ExportName     string      `mapstructure:"export_name" validate:"omitempty,max=64"`
	BackendKind    BackendKind `mapstructure:"backend_kind" validate:"omitempty,oneof=auto file zvol device"`
	BlockSize      int         `mapstructure:"block_size" validate:"omitempty"`
	SizeOverride   int64       `mapstructure:"size_override" validate:"omitempty,gte=0"`
	MaxConnections int         `mapstructure:"max_connections" validate:"omitempty,gte=1,lte=32"`
	AllowFlush     bool        `mapstructure:"allow_flush"`
	AllowTrim      bool        `mapstructure:"allow_trim"`
	ReadOnly       bool        `mapstructure:"read_only"`

	// CowEnabled serves the export through an in-memory copy-on-write
	// overlay: writes never reach the underlying file, device, or zvol.
	// Useful for scratch exports and repeated test runs against a golden
	// image. Meaningless, and ignored, when ReadOnly is set.
	CowEnabled bool `mapstructure:"cow_enabled"`

	Active bool `mapstructure:"-" validate:"-"`
}

// Configuration is the single value capturing the bridge's entire
// desired runtime: which role to run, what it listens on or connects
// to, and the settings specific to that role.
type Configuration struct {
	Role Role `mapstructure:"role" validate:"required,oneof=help server stdclient serialclient usbclient nbdserver"`

	ListenAddr string `mapstructure:"listen_addr"`
	ListenPort int    `mapstructure:"listen_port" validate:"omitempty,gte=1,lte=65535"`

	ConnectAddr string `mapstructure:"connect_addr"`
	ConnectPort int    `mapstructure:"connect_port" validate:"omitempty,gte=1,lte=65535"`

	Serial     SerialSettings `mapstructure:"serial"`
	USBDevices []USBDevice    `mapstructure:"usb_devices"`
	NBD        NBDSettings    `mapstructure:"nbd"`

	Encryption EncryptionMode `mapstructure:"encryption" validate:"omitempty,oneof=none tls12 tls13"`
	CertPath   string         `mapstructure:"cert_path"`
	KeyPath    string         `mapstructure:"key_path"`

	MgmtPort     int    `mapstructure:"mgmt_port" validate:"omitempty,gte=0,lte=65535"`
	MgmtPassword string `mapstructure:"mgmt_password"`

	MetricsEnabled bool `mapstructure:"metrics_enabled"`
	MetricsPort    int  `mapstructure:"metrics_port" validate:"omitempty,gte=0,lte=65535"`
}

var structValidator = validator.New()

// Validate checks cross-field invariants that struct tags alone cannot
// express, after running the tag-based structural validation. It
// returns an *xoerr.Error naming the offending field, per the shared
// "field: message" rendering convention.
func (c *Configuration) Validate() error {
	c.Serial.Active = c.Role == RoleSerialClient
	c.NBD.Active = c.Role == RoleNbdServer

	if err := structValidator.Struct(c); err != nil {
		return translateValidatorError(err)
	}

	if c.Role.isClient() {
		if c.ConnectAddr == "" || c.ConnectPort == 0 {
			return xoerr.Field("connect_addr", "client role %q requires a connect target", c.Role)
		}
	}

	if c.Role == RoleSerialClient {
		if err := validateSerialDevicePath(c.Serial.Device); err != nil {
			return err
		}
		if c.Serial.Baud != 0 && !validBauds[c.Serial.Baud] {
			return xoerr.Field("serial.baud", "unsupported baud rate %d", c.Serial.Baud)
		}
	}

	if c.Role == RoleNbdServer {
		if err := validateBlockSize(c.NBD.BlockSize); err != nil {
			return err
		}
		if c.NBD.SizeOverride != 0 && c.NBD.BlockSize != 0 && c.NBD.SizeOverride%int64(c.NBD.BlockSize) != 0 {
			return xoerr.Field("nbd.size_override", "size override %d is not a multiple of block size %d", c.NBD.SizeOverride, c.NBD.BlockSize)
		}
	}

	if c.Encryption != "" && c.Encryption != EncryptionNone {
		if c.CertPath == "" || c.KeyPath == "" {
			return xoerr.Field("cert_path", "encryption mode %q requires both cert_path and key_path", c.Encryption)
		}
	}

	return nil
}

func validateSerialDevicePath(path string) error {
	if path == "" {
		return xoerr.Field("serial.device", "serial device path is required")
	}
	if !strings.HasPrefix(path, "/dev/") {
		return xoerr.Field("serial.device", "serial device path %q must be under /dev/", path)
	}
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return xoerr.Field("serial.device", "serial device path %q must not contain ..", path)
	}
	return nil
}

func validateBlockSize(size int) error {
	if size == 0 {
		return nil
	}
	if size < 512 || size > 65536 || size&(size-1) != 0 {
		return xoerr.Field("nbd.block_size", "block size %d must be a power of two between 512 and 65536", size)
	}
	return nil
}

func translateValidatorError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return xoerr.Wrap(xoerr.InvalidArgument, err, "configuration validation failed")
	}
	fe := verrs[0]
	return xoerr.Field(fieldPath(fe), "%s", describeTag(fe))
}

func fieldPath(fe validator.FieldError) string {
	return strings.ToLower(fe.Namespace()[strings.Index(fe.Namespace(), ".")+1:])
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed validation %q", fe.Field(), fe.Tag())
	}
}
