package uartcrypt

import (
	"sync/atomic"
	"time"

	"github.com/lysShub/netkit/debug"
	"github.com/lysShub/rawsock/test"
	"github.com/stretchr/testify/require"

	"github.com/lysShub/uartcrypt/crypto"
)

// ChannelState framer of one channel, runs in the producer context: receive
// never block, never allocate, and calls are serialized by the owning Link.
type ChannelState struct {
	policy Policy
	resync time.Duration
	limit  int
	q      *queue

	idx     int
	last    time.Time
	discard bool // Line policy, skip until next delimiter
	frame   Frame

	resyncs atomic.Uint64
	drops   atomic.Uint64
	frames  atomic.Uint64
	late    atomic.Uint64 // completed after queue closed
}

func newChannelState(policy Policy, resync time.Duration, limit int, q *queue) *ChannelState {
	if policy == Block {
		limit = crypto.BlockSize
	}
	return &ChannelState{policy: policy, resync: resync, limit: limit, q: q}
}

// receive handle one received byte, now is its arrival time.
func (s *ChannelState) receive(b byte, now time.Time) {
	if s.resync > 0 && (s.idx > 0 || s.discard) && now.Sub(s.last) > s.resync {
		// late byte start a fresh frame
		s.idx, s.discard = 0, false
		s.resyncs.Add(1)
	}
	s.last = now

	switch s.policy {
	case Line:
		if b == '\n' || b == '\r' {
			if s.idx > 0 && !s.discard {
				s.emit()
			}
			s.idx, s.discard = 0, false
			return
		} else if s.discard {
			return
		} else if s.idx >= s.limit {
			s.idx, s.discard = 0, true
			s.drops.Add(1)
			return
		}
		s.frame.data[s.idx] = b
		s.idx++
	default:
		s.frame.data[s.idx] = b
		if s.idx++; s.idx >= crypto.BlockSize {
			s.emit()
		}
	}

	if debug.Debug() {
		require.LessOrEqual(test.T(), s.idx, s.limit)
	}
}

func (s *ChannelState) emit() {
	s.frame.n = s.idx
	s.idx = 0
	switch err := s.q.put(&s.frame); err {
	case nil:
		s.frames.Add(1)
	case errQueueFull:
		s.drops.Add(1)
	default:
		s.late.Add(1)
	}
}

// Pending bytes of the partial frame
func (s *ChannelState) Pending() int { return s.idx }
