package serial

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/lysShub/netkit/errorx"
	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"
)

// Ports output side of the uarts, route result to the port of channel id.
type Ports struct {
	mu  sync.RWMutex
	out map[uint8]*output

	closeErr errorx.CloseErr
}

type output struct {
	mu sync.Mutex // serialize writes from workers
	w  io.Writer
}

func NewPorts() *Ports {
	return &Ports{out: map[uint8]*output{}}
}

// Register set the writer of channel id, different ids can share one writer.
func (p *Ports) Register(id uint8, w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, o := range p.out {
		if o.w == w {
			p.out[id] = o
			return
		}
	}
	p.out[id] = &output{w: w}
}

// Send write pkt to port of id, ctx deadline bound the write.
func (p *Ports) Send(ctx context.Context, id uint8, pkt *packet.Packet) error {
	p.mu.RLock()
	o, ok := p.out[id]
	p.mu.RUnlock()
	if !ok {
		return errors.Errorf("channel %d not registered", id)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if d, ok := o.w.(interface{ SetWriteDeadline(time.Time) error }); ok {
		if dead, has := ctx.Deadline(); has {
			if err := d.SetWriteDeadline(dead); err != nil && !errors.Is(err, os.ErrNoDeadline) {
				return errors.WithStack(err)
			}
			defer d.SetWriteDeadline(time.Time{})
		}
	}

	_, err := o.w.Write(pkt.Bytes())
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return errorx.WrapTemp(err)
		}
		return errors.WithStack(err)
	}
	return nil
}

// Close close all registered writers that are io.Closer.
func (p *Ports) Close() error {
	return p.closeErr.Close(func() (errs []error) {
		p.mu.Lock()
		defer p.mu.Unlock()

		var closed = map[*output]bool{}
		for _, o := range p.out {
			if c, ok := o.w.(io.Closer); ok && !closed[o] {
				closed[o] = true
				errs = append(errs, c.Close())
			}
		}
		return errs
	})
}
