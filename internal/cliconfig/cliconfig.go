// Package cliconfig is the boot-time configuration builder: it parses
// argv through a cobra/pflag root command and produces the fsm.Boot
// value that drives the Lifecycle FSM's Init/ParseArgs states. It is
// the "external config builder producing the Configuration record"
// named in the specification's scope boundary — ParseArgs just calls
// this package rather than parsing argv itself.
package cliconfig

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hcobbs/xoe/internal/fsm"
	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoerr"
)

// flags collects every bound flag value. Kept as one struct rather than
// package globals so tests can build independent Builders.
type flags struct {
	listenAddr string
	listenPort int
	connect    string
	encryption string
	serialDev  string
	baud       int
	usbID      string
	help       bool

	certPath string
	keyPath  string
	parity   string
	databits int
	stopbits int
	flow     string

	usbInterface int
	epIn         string
	epOut        string
	epInt        string
	listUSB      bool

	mgmtPort       int
	mgmtPassword   string
	metricsEnabled bool
	metricsPort    int

	nbdExport         string
	nbdExportName     string
	nbdBackend        string
	nbdBlockSize      int
	nbdSizeOverride   int64
	nbdMaxConnections int
	nbdAllowFlush     bool
	nbdAllowTrim      bool
	nbdReadOnly       bool
	nbdCow            bool
}

// Builder owns the root cobra command used purely as a flag parser:
// RunE is never invoked through Execute in normal operation, since the
// Lifecycle FSM (not cobra) owns the parse/validate/exit-code flow.
// cmd/xoebridge calls Build with os.Args[1:] directly.
type Builder struct {
	cmd *cobra.Command
	f   flags
}

// NewBuilder constructs a Builder with every flag from the
// specification's CLI surface registered.
func NewBuilder() *Builder {
	b := &Builder{cmd: &cobra.Command{
		Use:           "xoebridge",
		Short:         "Tunnel serial, USB, and block-storage I/O over TCP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}}
	fl := b.cmd.Flags()

	fl.StringVarP(&b.f.listenAddr, "interface", "i", "", "listen address (server mode)")
	fl.IntVarP(&b.f.listenPort, "port", "p", 0, "listen port (server mode)")
	fl.StringVarP(&b.f.connect, "connect", "c", "", "connect target host:port (client roles)")
	fl.StringVarP(&b.f.encryption, "encryption", "e", "", "encryption mode: none|tls12|tls13")
	fl.StringVarP(&b.f.serialDev, "serial-device", "s", "", "serial device path (serial client role)")
	fl.IntVarP(&b.f.baud, "baud", "b", 0, "serial baud rate (serial client role)")
	fl.StringVarP(&b.f.usbID, "usb-device", "u", "", "usb device vendor:product in hex, e.g. 0403:6001 (usb client role)")
	fl.BoolVarP(&b.f.help, "help", "h", false, "show this help text")

	fl.StringVar(&b.f.certPath, "cert", "", "TLS certificate path")
	fl.StringVar(&b.f.keyPath, "key", "", "TLS key path")
	fl.StringVar(&b.f.parity, "parity", "", "serial parity: none|even|odd")
	fl.IntVar(&b.f.databits, "databits", 0, "serial data bits: 7|8")
	fl.IntVar(&b.f.stopbits, "stopbits", 0, "serial stop bits: 1|2")
	fl.StringVar(&b.f.flow, "flow", "", "serial flow control: none|xonxoff|rtscts")

	// --interface here is the USB interface NUMBER, deliberately long-only:
	// its natural shorthand -i is already spoken for by the listen address
	// flag above.
	fl.IntVar(&b.f.usbInterface, "usb-interface", 0, "usb interface number (usb client role)")
	fl.StringVar(&b.f.epIn, "ep-in", "", "usb bulk-in endpoint address, hex")
	fl.StringVar(&b.f.epOut, "ep-out", "", "usb bulk-out endpoint address, hex")
	fl.StringVar(&b.f.epInt, "ep-int", "", "usb interrupt endpoint address, hex")
	fl.BoolVar(&b.f.listUSB, "list-usb", false, "list attached usb devices and exit")

	fl.IntVar(&b.f.mgmtPort, "mgmt-port", 0, "management interface port, 0 disables it")
	fl.StringVar(&b.f.mgmtPassword, "mgmt-password", "", "management interface password (random if unset)")
	fl.BoolVar(&b.f.metricsEnabled, "metrics", false, "serve Prometheus metrics")
	fl.IntVar(&b.f.metricsPort, "metrics-port", 0, "Prometheus metrics port")

	// NBD has no reserved short flags in the specification's CLI surface;
	// --nbd-export is the role-selecting flag, the way -s and -u already
	// select the serial and usb client roles.
	fl.StringVar(&b.f.nbdExport, "nbd-export", "", "nbd export path, selects the nbd server role")
	fl.StringVar(&b.f.nbdExportName, "nbd-export-name", "", "nbd export name advertised to clients")
	fl.StringVar(&b.f.nbdBackend, "nbd-backend", "", "nbd backend kind: auto|file|zvol|device")
	fl.IntVar(&b.f.nbdBlockSize, "nbd-block-size", 0, "nbd block size, power of two in [512, 65536]")
	fl.Int64Var(&b.f.nbdSizeOverride, "nbd-size-override", 0, "override exported size, must be a multiple of block size")
	fl.IntVar(&b.f.nbdMaxConnections, "nbd-max-connections", 0, "max concurrent nbd sessions, 1..32")
	fl.BoolVar(&b.f.nbdAllowFlush, "nbd-allow-flush", false, "advertise and honor NBD_FLAG_SEND_FLUSH")
	fl.BoolVar(&b.f.nbdAllowTrim, "nbd-allow-trim", false, "advertise and honor NBD_FLAG_SEND_TRIM")
	fl.BoolVar(&b.f.nbdReadOnly, "nbd-read-only", false, "export read-only")
	fl.BoolVar(&b.f.nbdCow, "nbd-cow", false, "serve through an in-memory copy-on-write overlay")

	return b
}

// Build parses args and returns the fsm.Boot value ParseArgs hands off
// to ValidateConfig. Cross-field validation is not performed here, that
// is ValidateConfig's job; Build only decodes flag syntax (host:port
// pairs, hex endpoint addresses) into typed fields.
func (b *Builder) Build(args []string) fsm.Boot {
	if err := b.cmd.ParseFlags(args); err != nil {
		return fsm.Boot{ParseErr: err}
	}
	if b.f.help {
		return fsm.Boot{Help: true, HelpText: b.cmd.UsageString()}
	}
	if b.f.listUSB {
		return fsm.Boot{ListUSB: true}
	}

	cfg, err := b.configuration()
	if err != nil {
		return fsm.Boot{ParseErr: err}
	}
	return fsm.Boot{Configuration: cfg}
}

func (b *Builder) configuration() (xoeconfig.Configuration, error) {
	f := b.f
	var cfg xoeconfig.Configuration

	cfg.ListenAddr = f.listenAddr
	cfg.ListenPort = f.listenPort
	cfg.CertPath = f.certPath
	cfg.KeyPath = f.keyPath
	cfg.MgmtPort = f.mgmtPort
	cfg.MgmtPassword = f.mgmtPassword
	cfg.MetricsEnabled = f.metricsEnabled
	cfg.MetricsPort = f.metricsPort

	if f.encryption != "" {
		cfg.Encryption = xoeconfig.EncryptionMode(f.encryption)
	}

	if f.connect != "" {
		addr, port, err := splitHostPort(f.connect)
		if err != nil {
			return cfg, xoerr.Field("connect_addr", "invalid -c target %q: %s", f.connect, err)
		}
		cfg.ConnectAddr, cfg.ConnectPort = addr, port
	}

	cfg.Serial = xoeconfig.SerialSettings{
		Device:      f.serialDev,
		Baud:        f.baud,
		DataBits:    f.databits,
		StopBits:    f.stopbits,
		ReadTimeout: 0,
	}
	if f.parity != "" {
		cfg.Serial.Parity = xoeconfig.Parity(f.parity)
	}
	if f.flow != "" {
		cfg.Serial.Flow = normalizeFlow(f.flow)
	}

	if f.usbID != "" {
		dev, err := parseUSBDevice(f)
		if err != nil {
			return cfg, err
		}
		cfg.USBDevices = []xoeconfig.USBDevice{dev}
	}

	cfg.NBD = xoeconfig.NBDSettings{
		ExportPath:     f.nbdExport,
		ExportName:     f.nbdExportName,
		BlockSize:      f.nbdBlockSize,
		SizeOverride:   f.nbdSizeOverride,
		MaxConnections: f.nbdMaxConnections,
		AllowFlush:     f.nbdAllowFlush,
		AllowTrim:      f.nbdAllowTrim,
		ReadOnly:       f.nbdReadOnly,
		CowEnabled:     f.nbdCow,
	}
	if f.nbdBackend != "" {
		cfg.NBD.BackendKind = xoeconfig.BackendKind(f.nbdBackend)
	}

	cfg.Role = selectRole(f)
	return cfg, nil
}

// selectRole infers the operating role from which mutually-distinguishing
// flag was supplied, the way the specification's short-option set implies
// a role without ever naming one explicitly: -s picks the serial client,
// -u the usb client, --nbd-export the nbd server, -c alone the standard
// client, and anything else falls back to the generic accept server.
func selectRole(f flags) xoeconfig.Role {
	switch {
	case f.nbdExport != "":
		return xoeconfig.RoleNbdServer
	case f.serialDev != "":
		return xoeconfig.RoleSerialClient
	case f.usbID != "":
		return xoeconfig.RoleUsbClient
	case f.connect != "":
		return xoeconfig.RoleStdClient
	default:
		return xoeconfig.RoleServer
	}
}

func splitHostPort(hostport string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("port %q is not a number", portStr)
	}
	return host, port, nil
}

func normalizeFlow(flow string) xoeconfig.FlowControl {
	switch flow {
	case "xonxoff":
		return xoeconfig.FlowXonXoff
	case "rtscts":
		return xoeconfig.FlowRtsCts
	default:
		return xoeconfig.FlowControl(flow)
	}
}

func parseUSBDevice(f flags) (xoeconfig.USBDevice, error) {
	vid, pid, err := splitHex16(f.usbID)
	if err != nil {
		return xoeconfig.USBDevice{}, xoerr.Field("usb_devices", "invalid -u device %q: %s", f.usbID, err)
	}

	dev := xoeconfig.USBDevice{
		VendorID:  vid,
		ProductID: pid,
		Interface: f.usbInterface,
	}
	if f.epIn != "" {
		ep, err := strconv.ParseUint(f.epIn, 16, 8)
		if err != nil {
			return dev, xoerr.Field("usb_devices", "invalid --ep-in %q: %s", f.epIn, err)
		}
		dev.EndpointIn = int(ep)
	}
	if f.epOut != "" {
		ep, err := strconv.ParseUint(f.epOut, 16, 8)
		if err != nil {
			return dev, xoerr.Field("usb_devices", "invalid --ep-out %q: %s", f.epOut, err)
		}
		dev.EndpointOut = int(ep)
	}
	if f.epInt != "" {
		ep, err := strconv.ParseUint(f.epInt, 16, 8)
		if err != nil {
			return dev, xoerr.Field("usb_devices", "invalid --ep-int %q: %s", f.epInt, err)
		}
		dev.EndpointInt = int(ep)
	}
	return dev, nil
}

func splitHex16(id string) (uint16, uint16, error) {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected vendor:product")
	}
	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad vendor id: %w", err)
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad product id: %w", err)
	}
	return uint16(vid), uint16(pid), nil
}
