// Package serialbridge implements the two-task pipeline that couples a
// UART to a TCP socket: one task shuttles bytes from the serial device
// to the network, encapsulating them as frames; the other shuttles
// frames from the network back to the serial device through a ring
// buffer.
package serialbridge

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hcobbs/xoe/internal/frame"
	"github.com/hcobbs/xoe/internal/ringbuffer"
	"github.com/hcobbs/xoe/internal/xoelog"
	"github.com/hcobbs/xoe/internal/xoerr"
)

// ChunkSize is the default number of bytes Task A asks the UART for on
// each read.
const ChunkSize = 256

// UART is the narrow surface this package needs from a serial port.
// github.com/daedaluz/goserial's *serial.Port satisfies it.
type UART interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// SerialClient holds everything the two pipeline tasks share: the
// validated UART handle, the connected TCP socket, the network→serial
// ring buffer, the shutdown latch, and the running tx/rx sequence
// counters.
type SerialClient struct {
	uart UART
	conn net.Conn
	rb   *ringbuffer.Buffer

	latch shutdownLatch
	wg    sync.WaitGroup

	txSeq uint16
	rxSeq uint16
}

// New builds a SerialClient over an already-opened, already-configured
// UART and a connected TCP socket. The ring buffer uses
// ringbuffer.DefaultCapacity.
func New(uart UART, conn net.Conn) *SerialClient {
	return &SerialClient{
		uart: uart,
		conn: conn,
		rb:   ringbuffer.New(ringbuffer.DefaultCapacity),
	}
}

// Run starts both pipeline tasks and blocks until both have exited,
// either because of a fatal I/O error or because ctx was cancelled.
func (c *SerialClient) Run(ctx context.Context) {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.taskUARTToNetwork()
	}()
	go func() {
		defer c.wg.Done()
		c.taskNetworkToUART()
	}()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	c.wg.Wait()
}

// RequestShutdown sets the latch without waiting for the tasks to
// notice it.
func (c *SerialClient) RequestShutdown() {
	c.latch.request()
}

// Stop requests shutdown, closes the ring buffer to unblock Task B, and
// waits for both tasks to exit.
func (c *SerialClient) Stop() {
	c.latch.request()
	c.rb.Close()
	_ = c.conn.SetDeadline(time.Now())
	c.wg.Wait()
}

// Cleanup releases the UART handle. Call after Stop/Run has returned.
func (c *SerialClient) Cleanup() {
	_ = c.uart.Close()
}

// taskUARTToNetwork is Task A: UART -> Network.
func (c *SerialClient) taskUARTToNetwork() {
	buf := make([]byte, ChunkSize)
	for !c.latch.should() {
		n, err := c.uart.Read(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			xoelog.Error("serial read failed, latching shutdown", "error", err)
			c.latch.request()
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
			c.latch.request()
			return
		}
	}
}

// taskNetworkToUART is Task B: Network -> UART.
func (c *SerialClient) taskNetworkToUART() {
	payload := make([]byte, frame.MaxPayload)
	for !c.latch.should() {
		f, err := frame.ReadFrom(c.conn)
		if err != nil {
			switch {
			case errors.Is(err, os.ErrDeadlineExceeded):
				continue
			case xoerr.CodeOf(err) == xoerr.InvalidArgument || xoerr.CodeOf(err) == xoerr.InvalidState:
				// Checksum or protocol-id failure: log and discard, per
				// the "never drop the connection over one bad frame" rule.
				xoelog.Warn("discarding malformed frame", "error", err)
				continue
			default:
				xoelog.Debug("network read closed, latching shutdown", "error", err)
				c.latch.request()
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

		written := c.rb.Write(payload[:pn])
		if written < pn {
			xoelog.Warn("ring buffer closed while draining network frame")
			c.latch.request()
			return
		}

		c.drainRingBufferToUART()
	}
}

func (c *SerialClient) drainRingBufferToUART() {
	buf := make([]byte, ChunkSize)
	for !c.latch.should() {
		n := c.rb.Read(buf)
		if n == 0 {
			return
		}
		if _, err := c.uart.Write(buf[:n]); err != nil {
			xoelog.Error("uart write failed, latching shutdown", "error", err)
			c.latch.request()
			return
		}
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EAGAIN)
}
