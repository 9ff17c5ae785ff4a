// Package usbbridge mirrors internal/serialbridge exactly in shape: two
// cooperating tasks couple a device to a TCP socket through the same
// ring buffer and frame codec. Only the device-facing half differs —
// instead of a UART file descriptor, it holds a claimed USB bulk
// endpoint.
package usbbridge

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/hcobbs/xoe/internal/frame"
	"github.com/hcobbs/xoe/internal/ringbuffer"
	"github.com/hcobbs/xoe/internal/xoelog"
	"github.com/hcobbs/xoe/internal/xoerr"
)

// ChunkSize mirrors serialbridge.ChunkSize: the default bulk transfer
// size per USBDEVFS_BULK submission.
const ChunkSize = 256

// Endpoint is the narrow surface this package needs from a claimed USB
// device interface.
type Endpoint interface {
	ReadBulk(p []byte, timeout time.Duration) (int, error)
	WriteBulk(p []byte) (int, error)
	Close() error
}

// UsbClient is the USB peer of serialbridge.SerialClient: same
// shutdown latch, same ring buffer, same Frame Codec, different
// device-facing half.
type UsbClient struct {
	ep   Endpoint
	conn net.Conn
	rb   *ringbuffer.Buffer

	mu    sync.Mutex
	latch bool
	wg    sync.WaitGroup

	txSeq uint16
	rxSeq uint16
}

// New builds a UsbClient over a claimed endpoint and a connected TCP
// socket.
func New(ep Endpoint, conn net.Conn) *UsbClient {
	return &UsbClient{
		ep:   ep,
		conn: conn,
		rb:   ringbuffer.New(ringbuffer.DefaultCapacity),
	}
}

func (c *UsbClient) requestShutdown() {
	c.mu.Lock()
	c.latch = true
	c.mu.Unlock()
}

func (c *UsbClient) shouldShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latch
}

// Run starts both pipeline tasks and blocks until both exit.
func (c *UsbClient) Run(ctx context.Context) {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.taskDeviceToNetwork()
	}()
	go func() {
		defer c.wg.Done()
		c.taskNetworkToDevice()
	}()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	c.wg.Wait()
}

// Stop requests shutdown, closes the ring buffer, and waits for both
// tasks to exit.
func (c *UsbClient) Stop() {
	c.requestShutdown()
	c.rb.Close()
	_ = c.conn.SetDeadline(time.Now())
	c.wg.Wait()
}

// Cleanup releases the USB endpoint.
func (c *UsbClient) Cleanup() {
	_ = c.ep.Close()
}

func (c *UsbClient) taskDeviceToNetwork() {
	buf := make([]byte, ChunkSize)
	for !c.shouldShutdown() {
		n, err := c.ep.ReadBulk(buf, 250*time.Millisecond)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			xoelog.Error("usb bulk read failed, latching shutdown", "error", err)
			c.requestShutdown()
			return
		}
		if n == 0 {
			continue
		}

		f, err := frame.Encode(append([]byte(nil), buf[:n]...), c.txSeq, 0)
		c.txSeq++
		if err != nil {
			xoelog.Error("failed to encode outgoing frame", "error", err)
			continue
		}
		if err := frame.WriteTo(c.conn, f); err != nil {
			xoelog.Error("socket write failed, latching shutdown", "error", err)
			c.requestShutdown()
			return
		}
	}
}

func (c *UsbClient) taskNetworkToDevice() {
	payload := make([]byte, frame.MaxPayload)
	for !c.shouldShutdown() {
		f, err := frame.ReadFrom(c.conn)
		if err != nil {
			switch {
			case errors.Is(err, os.ErrDeadlineExceeded):
				continue
			case xoerr.CodeOf(err) == xoerr.InvalidArgument || xoerr.CodeOf(err) == xoerr.InvalidState:
				xoelog.Warn("discarding malformed frame", "error", err)
				continue
			default:
				xoelog.Debug("network read closed, latching shutdown", "error", err)
				c.requestShutdown()
				return
			}
		}

		pn, seq, flags, err := f.Decode(payload)
		if err != nil {
			xoelog.Warn("discarding undecodable frame", "error", err)
			continue
		}
		c.rxSeq = seq
		if flags != 0 {
			xoelog.Debug("frame carried error flags", "flags", flags, "sequence", seq)
		}

		if written := c.rb.Write(payload[:pn]); written < pn {
			xoelog.Warn("ring buffer closed while draining network frame")
			c.requestShutdown()
			return
		}

		c.drainRingBufferToDevice()
	}
}

func (c *UsbClient) drainRingBufferToDevice() {
	buf := make([]byte, ChunkSize)
	for !c.shouldShutdown() {
		n := c.rb.Read(buf)
		if n == 0 {
			return
		}
		if _, err := c.ep.WriteBulk(buf[:n]); err != nil {
			xoelog.Error("usb bulk write failed, latching shutdown", "error", err)
			c.requestShutdown()
			return
		}
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded) || xoerr.CodeOf(err) == xoerr.UsbTimeout
}
