// Package serial uart ports access.
package serial

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Port a opened uart device, *os.File returned by Open satisfy it.
type Port interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Name() string
}

// Pump read port and deliver every received byte to fn, until ctx cancelled
// or port closed. fn is the producer of one channel, it must not block.
func Pump(ctx context.Context, port Port, fn func(b byte)) error {
	stop := context.AfterFunc(ctx, func() {
		port.SetReadDeadline(time.Now())
	})
	defer stop()

	var b = make([]byte, 64)
	for {
		n, err := port.Read(b)
		for _, e := range b[:n] {
			fn(e)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			} else if isClosed(err) {
				return nil
			}
			return errors.WithStack(err)
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed)
}

type pipe struct {
	net.Conn
	name string
}

func (p *pipe) Name() string { return p.name }

// Pipe in-memory full duplex port pair, dev side is used as a Port, host
// side play the remote uart peer.
func Pipe(name string) (dev, host Port) {
	a, b := net.Pipe()
	return &pipe{Conn: a, name: name}, &pipe{Conn: b, name: name + "-host"}
}
