package cliconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcobbs/xoe/internal/xoeconfig"
)

func TestSelectRolePriorityOrder(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		f    flags
		want xoeconfig.Role
	}{
		{"nbd export wins over everything", flags{nbdExport: "/dev/zvol/tank/disk0", serialDev: "/dev/ttyUSB0", usbID: "0403:6001", connect: "h:1"}, xoeconfig.RoleNbdServer},
		{"serial wins over usb and connect", flags{serialDev: "/dev/ttyUSB0", usbID: "0403:6001", connect: "h:1"}, xoeconfig.RoleSerialClient},
		{"usb wins over connect", flags{usbID: "0403:6001", connect: "h:1"}, xoeconfig.RoleUsbClient},
		{"connect alone selects std client", flags{connect: "h:1"}, xoeconfig.RoleStdClient},
		{"nothing supplied selects server", flags{}, xoeconfig.RoleServer},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, selectRole(tc.f))
		})
	}
}

func TestSplitHostPort(t *testing.T) {
	t.Parallel()

	host, port, err := splitHostPort("192.168.1.10:9443")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.10", host)
	assert.Equal(t, 9443, port)

	_, _, err = splitHostPort("not-a-hostport")
	assert.Error(t, err)

	_, _, err = splitHostPort("host:notanumber")
	assert.Error(t, err)
}

func TestSplitHex16(t *testing.T) {
	t.Parallel()

	vid, pid, err := splitHex16("0403:6001")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0403), vid)
	assert.Equal(t, uint16(0x6001), pid)

	_, _, err = splitHex16("0403")
	assert.Error(t, err)

	_, _, err = splitHex16("zzzz:6001")
	assert.Error(t, err)

	_, _, err = splitHex16("0403:zzzz")
	assert.Error(t, err)
}

func TestParseUSBDeviceDecodesEndpoints(t *testing.T) {
	t.Parallel()

	f := flags{
		usbID:        "0403:6001",
		usbInterface: 2,
		epIn:         "81",
		epOut:        "02",
		epInt:        "83",
	}

	dev, err := parseUSBDevice(f)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0403), dev.VendorID)
	assert.Equal(t, uint16(0x6001), dev.ProductID)
	assert.Equal(t, 2, dev.Interface)
	assert.Equal(t, 0x81, dev.EndpointIn)
	assert.Equal(t, 0x02, dev.EndpointOut)
	assert.Equal(t, 0x83, dev.EndpointInt)
}

func TestParseUSBDeviceRejectsBadEndpoint(t *testing.T) {
	t.Parallel()

	f := flags{usbID: "0403:6001", epIn: "nothex"}
	_, err := parseUSBDevice(f)
	assert.Error(t, err)
}

func TestNormalizeFlow(t *testing.T) {
	t.Parallel()

	assert.Equal(t, xoeconfig.FlowXonXoff, normalizeFlow("xonxoff"))
	assert.Equal(t, xoeconfig.FlowRtsCts, normalizeFlow("rtscts"))
	assert.Equal(t, xoeconfig.FlowControl("none"), normalizeFlow("none"))
}

func TestBuildRoutesHelp(t *testing.T) {
	t.Parallel()

	boot := NewBuilder().Build([]string{"--help"})
	assert.True(t, boot.Help)
	assert.NotEmpty(t, boot.HelpText)
}

func TestBuildRoutesListUSB(t *testing.T) {
	t.Parallel()

	boot := NewBuilder().Build([]string{"--list-usb"})
	assert.True(t, boot.ListUSB)
}

func TestBuildRoutesParseErrOnUnknownFlag(t *testing.T) {
	t.Parallel()

	boot := NewBuilder().Build([]string{"--not-a-real-flag"})
	assert.Error(t, boot.ParseErr)
}

func TestBuildDerivesServerConfiguration(t *testing.T) {
	t.Parallel()

	boot := NewBuilder().Build([]string{"-i", "0.0.0.0", "-p", "9000"})
	require.NoError(t, boot.ParseErr)
	assert.Equal(t, xoeconfig.RoleServer, boot.Configuration.Role)
	assert.Equal(t, "0.0.0.0", boot.Configuration.ListenAddr)
	assert.Equal(t, 9000, boot.Configuration.ListenPort)
}

func TestBuildDerivesStdClientConfiguration(t *testing.T) {
	t.Parallel()

	boot := NewBuilder().Build([]string{"-c", "10.0.0.5:9000"})
	require.NoError(t, boot.ParseErr)
	assert.Equal(t, xoeconfig.RoleStdClient, boot.Configuration.Role)
	assert.Equal(t, "10.0.0.5", boot.Configuration.ConnectAddr)
	assert.Equal(t, 9000, boot.Configuration.ConnectPort)
}

func TestBuildDerivesNbdServerConfiguration(t *testing.T) {
	t.Parallel()

	boot := NewBuilder().Build([]string{
		"--nbd-export", "/tank/disk0",
		"--nbd-export-name", "disk0",
		"--nbd-backend", "zvol",
		"--nbd-cow",
		"--nbd-allow-flush",
	})
	require.NoError(t, boot.ParseErr)
	assert.Equal(t, xoeconfig.RoleNbdServer, boot.Configuration.Role)
	assert.Equal(t, "/tank/disk0", boot.Configuration.NBD.ExportPath)
	assert.Equal(t, "disk0", boot.Configuration.NBD.ExportName)
	assert.Equal(t, xoeconfig.BackendKind("zvol"), boot.Configuration.NBD.BackendKind)
	assert.True(t, boot.Configuration.NBD.CowEnabled)
	assert.True(t, boot.Configuration.NBD.AllowFlush)
}

func TestBuildPropagatesBadConnectTarget(t *testing.T) {
	t.Parallel()

	boot := NewBuilder().Build([]string{"-c", "not-a-hostport"})
	assert.Error(t, boot.ParseErr)
}

func TestBuildPropagatesBadUSBDevice(t *testing.T) {
	t.Parallel()

	boot := NewBuilder().Build([]string{"-u", "bogus"})
	assert.Error(t, boot.ParseErr)
}
