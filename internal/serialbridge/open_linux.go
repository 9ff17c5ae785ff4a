//go:build linux

package serialbridge

import (
	"time"

	serial "github.com/daedaluz/goserial"

	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoerr"
)

var baudFlags = map[int]serial.CFlag{
	9600:   serial.B9600,
	19200:  serial.B19200,
	38400:  serial.B38400,
	57600:  serial.B57600,
	115200: serial.B115200,
	230400: serial.B230400,
}

// OpenUART opens and configures the serial device named by settings,
// applying baud/data-bits/stop-bits/parity/flow-control via the
// termios attributes goserial exposes.
func OpenUART(settings xoeconfig.SerialSettings) (UART, error) {
	opts := serial.NewOptions().SetReadTimeout(time.Duration(settings.ReadTimeout) * time.Millisecond)
	port, err := serial.Open(settings.Device, opts)
	if err != nil {
		return nil, xoerr.Wrap(xoerr.FileNotFound, err, "opening serial device")
	}

	attrs, err := port.GetAttr()
	if err != nil {
		_ = port.Close()
		return nil, xoerr.Wrap(xoerr.IoError, err, "reading serial attributes")
	}
	attrs.MakeRaw()

	baud, ok := baudFlags[settings.Baud]
	if !ok {
		baud = serial.B115200
	}
	attrs.SetSpeed(baud)

	attrs.Cflag &^= serial.CSIZE
	if settings.DataBits == 7 {
		attrs.Cflag |= serial.CS7
	} else {
		attrs.Cflag |= serial.CS8
	}

	if settings.StopBits == 2 {
		attrs.Cflag |= serial.CSTOPB
	} else {
		attrs.Cflag &^= serial.CSTOPB
	}

	switch settings.Parity {
	case xoeconfig.ParityOdd:
		attrs.Cflag |= serial.PARENB | serial.PARODD
	case xoeconfig.ParityEven:
		attrs.Cflag |= serial.PARENB
		attrs.Cflag &^= serial.PARODD
	default:
		attrs.Cflag &^= serial.PARENB
	}

	switch settings.Flow {
	case xoeconfig.FlowXonXoff:
		attrs.Iflag |= serial.IXON | serial.IXOFF
		attrs.Cflag &^= serial.CRTSCTS
	case xoeconfig.FlowRtsCts:
		attrs.Iflag &^= serial.IXON | serial.IXOFF
		attrs.Cflag |= serial.CRTSCTS
	default:
		attrs.Iflag &^= serial.IXON | serial.IXOFF
		attrs.Cflag &^= serial.CRTSCTS
	}

	if err := port.SetAttr(serial.TCSANOW, attrs); err != nil {
		_ = port.Close()
		return nil, xoerr.Wrap(xoerr.IoError, err, "applying serial attributes")
	}

	return port, nil
}
