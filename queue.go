package uartcrypt

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lysShub/netkit/debug"
	"github.com/lysShub/rawsock/test"
	"github.com/stretchr/testify/require"
)

// Frame one unit assembled by the framer, 16 bytes for Block policy.
type Frame struct {
	n    int
	data [maxFrame]byte
}

func (f *Frame) Bytes() []byte { return f.data[:f.n] }
func (f *Frame) Len() int      { return f.n }

func (f *Frame) set(b []byte) *Frame {
	f.n = copy(f.data[:], b)
	return f
}

// queue dispatch queue, hand off frames from the producer to the worker.
// fixed slots ring, with a counting signal, len(ready) <= size always.
type queue struct {
	mu     sync.Mutex
	slots  []Frame
	head   int
	size   int
	closed bool

	ready chan struct{}
	done  chan struct{}
	wait  time.Duration
}

func newQueue(depth int, wait time.Duration) *queue {
	return &queue{
		slots: make([]Frame, depth),
		ready: make(chan struct{}, depth),
		done:  make(chan struct{}),
		wait:  wait,
	}
}

// put copy f into a free slot, never block. called by producer.
func (q *queue) put(f *Frame) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return net.ErrClosed
	} else if q.size == len(q.slots) {
		return errQueueFull
	}

	s := &q.slots[(q.head+q.size)%len(q.slots)]
	s.n = copy(s.data[:], f.data[:f.n])
	q.size++
	q.ready <- struct{}{}

	if debug.Debug() {
		require.LessOrEqual(test.T(), len(q.ready), q.size)
	}
	return nil
}

// get copy out the oldest frame, after close, return net.ErrClosed when drained.
func (q *queue) get(ctx context.Context, dst *Frame) error {
	select {
	case <-q.ready:
	default:
		var timeout <-chan time.Time
		if q.wait > 0 {
			timer := time.NewTimer(q.wait)
			defer timer.Stop()
			timeout = timer.C
		}

		select {
		case <-q.ready:
		case <-q.done:
			select {
			case <-q.ready:
			default:
				return net.ErrClosed
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return errWaitTimeout
		}
	}

	q.mu.Lock()
	s := &q.slots[q.head]
	dst.n = copy(dst.data[:], s.data[:s.n])
	q.head = (q.head + 1) % len(q.slots)
	q.size--
	q.mu.Unlock()
	return nil
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// close stop accept new frame, queued frames still can be get.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}

// ErrBufferOverflow frame dropped, the channel keep working.
type ErrBufferOverflow struct {
	What string
}

func (e *ErrBufferOverflow) Error() string {
	return fmt.Sprintf("%s overflow, frame dropped", e.What)
}
func (*ErrBufferOverflow) Temporary() bool { return true }

var errQueueFull error = &ErrBufferOverflow{What: "dispatch queue"}

type errTimeout struct{}

func (errTimeout) Error() string   { return "dispatch queue wait timeout" }
func (errTimeout) Timeout() bool   { return true }
func (errTimeout) Temporary() bool { return true }

var errWaitTimeout error = errTimeout{}
