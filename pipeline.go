// Package uartcrypt confidentiality layer of uart channels: frames the received
// bytes, encrypt or decrypt them with AES-128 and send results to an output
// channel.
package uartcrypt

import (
	"context"
	"os"
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lysShub/uartcrypt/capture"
)

// Pipeline channel framers, dispatch queues and workers.
//
//	byte -> OnByte -> ChannelState -> queue -> Link.service -> Cipher -> Sender
type Pipeline struct {
	config  *Config
	links   map[ChannelID]*Link
	order   []*Link
	capture *capture.Capture

	serving  atomic.Bool
	closeErr atomic.Pointer[error]
}

func NewPipeline(config *Config, sender Sender) (*Pipeline, error) {
	if err := config.init(); err != nil {
		return nil, err
	}
	var p = &Pipeline{config: config, links: map[ChannelID]*Link{}}

	if config.PcapPath != "" {
		var err error
		if p.capture, err = capture.File(config.PcapPath); err != nil {
			return nil, err
		}
	}

	for _, ch := range config.Channels {
		l, err := newLink(ch, config, sender, p.capture)
		if err != nil {
			return nil, p.close(err)
		}
		p.links[ch.ID] = l
		p.order = append(p.order, l)
	}
	sort.Slice(p.order, func(i, j int) bool { return p.order[i].ID() < p.order[j].ID() })
	return p, nil
}

// OnByte deliver one byte received on channel id, unknown id is ignored.
// Concurrent calls for one id are serialized, bytes interleave in call order.
func (p *Pipeline) OnByte(id ChannelID, b byte) {
	if l, ok := p.links[id]; ok {
		l.produce(b)
	}
}

// Serve run channel workers until ctx cancelled or pipeline closed and all
// queued frames processed.
func (p *Pipeline) Serve(ctx context.Context) error {
	if !p.serving.CompareAndSwap(false, true) {
		return errors.New("pipeline already serving")
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, l := range p.order {
		eg.Go(func() error { return l.service(ctx) })
	}
	err := eg.Wait()

	// workers exited, nothing record any more
	if e := p.capture.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

func (p *Pipeline) Link(id ChannelID) (*Link, bool) {
	l, ok := p.links[id]
	return l, ok
}

// Links sorted by channel id
func (p *Pipeline) Links() []*Link { return p.order }

func (p *Pipeline) close(cause error) error {
	if p.closeErr.CompareAndSwap(nil, &os.ErrClosed) {
		for _, l := range p.order {
			l.queue.close()
		}
		if cause != nil || !p.serving.Load() {
			// no worker will record any more, Serve close it otherwise
			p.capture.Close()
		}
		if cause != nil {
			p.closeErr.Store(&cause)
		}
		return cause
	}
	return *p.closeErr.Load()
}

// Close stop accept bytes, the workers exit after queued frames processed.
func (p *Pipeline) Close() error { return p.close(nil) }
