package uartcrypt

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/lysShub/uartcrypt/capture"
	"github.com/lysShub/uartcrypt/crypto"
	"github.com/lysShub/uartcrypt/padding"
)

// Sender transmit a result to the channel id, ctx carry the send timeout.
type Sender interface {
	Send(ctx context.Context, id ChannelID, pkt *packet.Packet) error
}

type SenderFunc func(ctx context.Context, id ChannelID, pkt *packet.Packet) error

func (f SenderFunc) Send(ctx context.Context, id ChannelID, pkt *packet.Packet) error {
	return f(ctx, id, pkt)
}

var crlf = []byte("\r\n")

// Link worker pipeline of one channel
type Link struct {
	config  *Config
	channel ChannelConfig
	state   *ChannelState
	queue   *queue
	cipher  crypto.Cipher
	sender  Sender
	capture *capture.Capture
	log     *slog.Logger

	mu sync.Mutex // serialize producers

	limiter  *rate.Limiter
	reported uint64

	processed atomic.Uint64
	failures  atomic.Uint64
	resets    atomic.Uint64
}

func newLink(ch ChannelConfig, config *Config, sender Sender, capt *capture.Capture) (*Link, error) {
	c, err := config.Cipher(config.Key)
	if err != nil {
		return nil, err
	}

	q := newQueue(config.QueueDepth, config.QueueWait)
	return &Link{
		config:  config,
		channel: ch,
		state:   newChannelState(ch.Policy, config.ResyncTimeout, config.MaxLine, q),
		queue:   q,
		cipher:  c,
		sender:  sender,
		capture: capt,
		log: config.Logger.With(
			slog.Int("channel", int(ch.ID)),
			slog.String("role", ch.Role.String()),
		),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

func (l *Link) ID() ChannelID         { return l.channel.ID }
func (l *Link) Config() ChannelConfig { return l.channel }
func (l *Link) State() *ChannelState  { return l.state }
func (l *Link) Cipher() crypto.Cipher { return l.cipher }

// produce feed one byte received now, the serial pump and console injection
// may both produce on one channel.
func (l *Link) produce(b byte) {
	l.mu.Lock()
	l.state.receive(b, time.Now())
	l.mu.Unlock()
}

func (l *Link) service(ctx context.Context) error {
	var (
		frame Frame
		pkt   = packet.Make(0, maxFrame+len(crlf))
	)

	for {
		err := l.queue.get(ctx, &frame)
		l.reportDrops()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil // drained
			} else if isTimeout(err) {
				continue
			}
			return err
		}
		if err := l.capture.Inbound(l.channel.ID, frame.Bytes()); err != nil {
			l.log.Warn("capture inbound", slog.String("error", err.Error()))
		}

		if err := l.process(&frame, pkt.SetData(0)); err != nil {
			l.failed(err)
			continue
		}

		err = l.send(ctx, pkt)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.failures.Add(1)
			l.log.Error(err.Error(), slog.Int("output", int(l.channel.Output)))
			continue
		}
		l.processed.Add(1)
		if err := l.capture.Outbound(l.channel.Output, pkt.Bytes()); err != nil {
			l.log.Warn("capture outbound", slog.String("error", err.Error()))
		}
	}
}

func (l *Link) send(ctx context.Context, pkt *packet.Packet) error {
	ctx, cancel := context.WithTimeout(ctx, l.config.SendTimeout)
	defer cancel()
	return l.sender.Send(ctx, l.channel.Output, pkt)
}

// process transform frame and append result to out
func (l *Link) process(frame *Frame, out *packet.Packet) error {
	switch l.channel.Policy {
	case Line:
		if l.channel.Role == Encrypt {
			ct, err := padding.Seal(l.cipher, frame.Bytes())
			if err != nil {
				return err
			}
			out.Append([]byte(hex.EncodeToString(ct))).Append(crlf)
		} else {
			ct, err := hex.DecodeString(string(frame.Bytes()))
			if err != nil {
				return errors.WithStack(err)
			}
			pt, err := padding.Open(l.cipher, ct)
			if err != nil {
				return err
			}
			out.Append(pt).Append(crlf)
		}
	default:
		var b crypto.Block
		if frame.Len() != len(b) {
			return errors.Errorf("invalid block frame size %d", frame.Len())
		}
		copy(b[:], frame.Bytes())

		var err error
		if l.channel.Role == Encrypt {
			err = l.cipher.Encrypt(&b, &b)
		} else {
			err = l.cipher.Decrypt(&b, &b)
		}
		if err != nil {
			return err
		}
		out.Append(b[:])
	}
	return nil
}

// failed log and discard the frame, reinitialize faulted cipher.
func (l *Link) failed(err error) {
	l.failures.Add(1)

	switch {
	case crypto.IsFault(err):
		l.log.Warn("cipher fault, reinitialize", slog.String("error", err.Error()))
		if err := l.cipher.Reset(); err != nil {
			l.log.Error("reinitialize cipher", slog.String("error", err.Error()))
		} else {
			l.resets.Add(1)
		}
	case errors.Is(err, padding.ErrInvalidPadding),
		errors.Is(err, padding.ErrInvalidLength),
		errors.Is(err, hex.ErrLength):
		l.log.Warn("reject message", slog.String("error", err.Error()))
	case errors.Is(err, padding.ErrBufferOverflow):
		l.log.Warn("message dropped", slog.String("error", err.Error()))
	default:
		l.log.Error(err.Error())
	}
}

func (l *Link) reportDrops() {
	drops := l.state.drops.Load()
	if drops > l.reported && l.limiter.Allow() {
		l.log.Warn("frames dropped",
			slog.Uint64("count", drops-l.reported),
			slog.Uint64("total", drops),
		)
		l.reported = drops
	}
}

type Stats struct {
	Frames    uint64 // frames handed to dispatch queue
	Processed uint64 // results sent
	Dropped   uint64 // BufferOverflow
	Late      uint64 // completed after Close, not processed
	Resyncs   uint64 // partial frames discarded by resync timeout
	Failures  uint64
	Resets    uint64 // cipher reinitialized
	Queued    int
}

func (l *Link) Stats() Stats {
	return Stats{
		Frames:    l.state.frames.Load(),
		Processed: l.processed.Load(),
		Dropped:   l.state.drops.Load(),
		Late:      l.state.late.Load(),
		Resyncs:   l.state.resyncs.Load(),
		Failures:  l.failures.Load(),
		Resets:    l.resets.Load(),
		Queued:    l.queue.len(),
	}
}

func isTimeout(err error) bool {
	var e interface{ Timeout() bool }
	return errors.As(err, &e) && e.Timeout()
}
