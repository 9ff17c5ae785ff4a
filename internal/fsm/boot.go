package fsm

import (
	"fmt"
	"os"

	"github.com/hcobbs/xoe/internal/mgmt"
	"github.com/hcobbs/xoe/internal/usbbridge"
	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoelog"
	"github.com/hcobbs/xoe/internal/xoerr"
)

// initState materializes the boot Configuration, applying defaults for
// anything the builder left zero-valued.
type initState struct{}

func (initState) Run(m *Machine) State {
	cfg := m.boot.Configuration
	if err := xoeconfig.ApplyDefaults(&cfg); err != nil {
		m.boot.ParseErr = err
	}
	m.boot.Configuration = cfg
	return parseArgsState{}
}

// parseArgsState consumes the already-built Boot value. Real argv
// parsing happens in the external config builder (cmd/xoebridge); this
// state only routes on what that builder reported.
type parseArgsState struct{}

func (parseArgsState) Run(m *Machine) State {
	if m.boot.Help {
		fmt.Print(m.boot.HelpText)
		return cleanupState{}
	}
	if m.boot.ListUSB {
		printUSBDevices()
		return cleanupState{}
	}
	if m.boot.ParseErr != nil {
		fmt.Fprintln(os.Stderr, xoerr.RenderFieldError(m.boot.ParseErr))
		m.fail(m.boot.ParseErr)
		return cleanupState{}
	}
	return validateConfigState{}
}

func printUSBDevices() {
	devices, err := usbbridge.ListDevices()
	if err != nil {
		fmt.Fprintln(os.Stderr, xoerr.RenderFieldError(err))
		return
	}
	if len(devices) == 0 {
		fmt.Println("no usb devices found")
		return
	}
	for _, d := range devices {
		fmt.Printf("bus=%03d device=%03d vendor=0x%04x product=0x%04x\n", d.Bus, d.Device, d.VendorID, d.ProductID)
	}
}

// validateConfigState runs the cross-field validation pass before
// anything else touches the Configuration.
type validateConfigState struct{}

func (validateConfigState) Run(m *Machine) State {
	if err := m.boot.Configuration.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, xoerr.RenderFieldError(err))
		m.fail(err)
		return cleanupState{}
	}
	return startMgmtState{}
}

// startMgmtState seeds the Configuration Manager and, unless
// mgmt_port is 0, starts the Management Interface in the background.
// Failure here is logged and does not stop the boot sequence.
type startMgmtState struct{}

func (startMgmtState) Run(m *Machine) State {
	m.cfg = xoeconfig.NewManager(m.boot.Configuration)
	m.active = m.boot.Configuration

	if m.active.MgmtPort != 0 {
		m.mgmtSrv = mgmt.NewServer(m.cfg, m.restart)
		go func() {
			if err := m.mgmtSrv.Serve(m.ctx, m.active.MgmtPort); err != nil {
				xoelog.Warn("management interface stopped", "error", err)
			}
		}()
		xoelog.Info("management interface starting", "port", m.active.MgmtPort)
	} else {
		xoelog.Info("management interface disabled, mgmt_port is 0")
	}

	return modeSelectState{}
}

// cleanupState releases every sub-allocation the FSM may have made:
// the management server, and whatever the active role state left
// behind via its own teardown (already performed before reaching here).
type cleanupState struct{}

func (cleanupState) Run(m *Machine) State {
	if m.mgmtSrv != nil {
		m.mgmtSrv.Stop()
	}
	m.cancel()
	return exitState{}
}

// exitState is the terminal state; Run is never actually called on it
// since Machine.Run stops as soon as a nil State is returned, but it
// documents the last node in the diagram.
type exitState struct{}

func (exitState) Run(*Machine) State { return nil }
