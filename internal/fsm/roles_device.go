package fsm

import (
	"context"

	"github.com/hcobbs/xoe/internal/serialbridge"
	"github.com/hcobbs/xoe/internal/usbbridge"
	"github.com/hcobbs/xoe/internal/xoerr"
)

// serialClientState opens the configured UART and bridges it to a
// single dial-out TCP connection.
type serialClientState struct{}

func (*serialClientState) run(ctx context.Context, m *Machine) (bool, error) {
	cfg := m.active

	uart, err := serialbridge.OpenUART(cfg.Serial)
	if err != nil {
		return true, err
	}

	conn, err := dialOut(cfg)
	if err != nil {
		_ = uart.Close()
		return true, err
	}

	bridge := serialbridge.New(uart, conn)

	restartCtx, cancel := withRestartWatch(ctx, m.restart)
	defer cancel()

	bridge.Run(restartCtx)
	bridge.Stop()
	bridge.Cleanup()

	return !isRestartExit(ctx, restartCtx, m.restart), nil
}

// usbClientState claims the configured USB device's endpoints and
// bridges them to a single dial-out TCP connection. Only the first
// configured device is used: the role bridges one USB peripheral per
// process, same as serialClientState bridges one UART.
type usbClientState struct{}

func (*usbClientState) run(ctx context.Context, m *Machine) (bool, error) {
	cfg := m.active

	if len(cfg.USBDevices) == 0 {
		return true, xoerr.Field("usb_devices", "usb client role requires at least one configured device")
	}
	dev := cfg.USBDevices[0]

	desc, err := usbbridge.FindDescriptor(dev)
	if err != nil {
		return true, err
	}

	ep, err := usbbridge.OpenUSBFromConfig(dev, desc)
	if err != nil {
		return true, err
	}

	conn, err := dialOut(cfg)
	if err != nil {
		_ = ep.Close()
		return true, err
	}

	bridge := usbbridge.New(ep, conn)

	restartCtx, cancel := withRestartWatch(ctx, m.restart)
	defer cancel()

	bridge.Run(restartCtx)
	bridge.Stop()
	bridge.Cleanup()

	return !isRestartExit(ctx, restartCtx, m.restart), nil
}
