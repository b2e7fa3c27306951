package uartcrypt

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const resync = time.Millisecond * 10

func frames(t *testing.T, q *queue) (fs [][]byte) {
	var f Frame
	for q.len() > 0 {
		require.NoError(t, q.get(context.Background(), &f))
		fs = append(fs, bytes.Clone(f.Bytes()))
	}
	return fs
}

func Test_Framer_Realignment(t *testing.T) {
	var (
		q   = newQueue(8, 0)
		s   = newChannelState(Block, resync, 0, q)
		now = time.Unix(0, 0)
	)

	// bytes 1..16 back to back
	for i := 1; i <= 16; i++ {
		now = now.Add(time.Millisecond)
		s.receive(byte(i), now)
	}
	// byte 17 delayed, isolated
	now = now.Add(resync * 3)
	s.receive(17, now)

	// bytes 18..20 after another gap
	now = now.Add(resync * 3)
	for i := 18; i <= 20; i++ {
		now = now.Add(time.Millisecond)
		s.receive(byte(i), now)
	}

	fs := frames(t, q)
	require.Len(t, fs, 1)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, fs[0])
	require.Equal(t, 3, s.Pending())
	require.Equal(t, uint64(1), s.resyncs.Load())

	// 18..20 lead the next frame, the stale 17 not included
	for i := 21; i <= 33; i++ {
		now = now.Add(time.Millisecond)
		s.receive(byte(i), now)
	}
	fs = frames(t, q)
	require.Len(t, fs, 1)
	require.Equal(t, []byte{18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32, 33}, fs[0])
	require.Zero(t, s.Pending())
}

func Test_Framer_Discard_Partial(t *testing.T) {
	var (
		q   = newQueue(8, 0)
		s   = newChannelState(Block, resync, 0, q)
		now = time.Unix(0, 0)
	)

	for i := 0; i < 10; i++ {
		now = now.Add(time.Millisecond)
		s.receive(0xee, now)
	}
	now = now.Add(resync + time.Millisecond)
	for i := 0; i < 16; i++ {
		s.receive(byte(i), now)
	}

	fs := frames(t, q)
	require.Len(t, fs, 1)
	require.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, fs[0])
	require.Equal(t, uint64(1), s.resyncs.Load())

	t.Run("disabled", func(t *testing.T) {
		s := newChannelState(Block, -1, 0, q)
		s.receive(1, time.Unix(0, 0))
		s.receive(2, time.Unix(3600, 0))
		require.Equal(t, 2, s.Pending())
		require.Zero(t, s.resyncs.Load())
	})

	t.Run("gap-equal-threshold", func(t *testing.T) {
		s := newChannelState(Block, resync, 0, q)
		s.receive(1, time.Unix(0, 0))
		s.receive(2, time.Unix(0, 0).Add(resync))
		require.Equal(t, 2, s.Pending())
	})
}

func Test_Framer_Overflow(t *testing.T) {
	const depth = 4
	var (
		q   = newQueue(depth, 0)
		s   = newChannelState(Block, resync, 0, q)
		now = time.Unix(0, 0)
	)

	// producer never block when queue full
	for i := 0; i < 10*16; i++ {
		s.receive(byte(i/16), now)
	}
	require.Equal(t, uint64(depth), s.frames.Load())
	require.Equal(t, uint64(10-depth), s.drops.Load())
	require.Zero(t, s.Pending())

	fs := frames(t, q)
	require.Len(t, fs, depth)
	for i, f := range fs {
		require.Equal(t, bytes.Repeat([]byte{byte(i)}, 16), f)
	}

	t.Run("closed", func(t *testing.T) {
		q.close()
		for i := 0; i < 16; i++ {
			s.receive(byte(i), now)
		}
		require.Equal(t, uint64(10-depth), s.drops.Load())
		require.Equal(t, uint64(1), s.late.Load())
	})
}

func Test_Framer_Line(t *testing.T) {
	var (
		q   = newQueue(8, 0)
		s   = newChannelState(Line, resync, 8, q)
		now = time.Unix(0, 0)
	)
	var feed = func(str string) {
		for _, b := range []byte(str) {
			now = now.Add(time.Millisecond)
			s.receive(b, now)
		}
	}

	feed("hello\r\n\n\rworld\n")
	require.Equal(t, [][]byte{[]byte("hello"), []byte("world")}, frames(t, q))

	t.Run("overflow", func(t *testing.T) {
		feed("123456789abc\nok\n")
		require.Equal(t, [][]byte{[]byte("ok")}, frames(t, q))
		require.Equal(t, uint64(1), s.drops.Load())
	})

	t.Run("max-line", func(t *testing.T) {
		feed("12345678\n")
		require.Equal(t, [][]byte{[]byte("12345678")}, frames(t, q))
	})

	t.Run("resync", func(t *testing.T) {
		feed("stale")
		now = now.Add(resync * 2)
		feed("fresh\n")
		require.Equal(t, [][]byte{[]byte("fresh")}, frames(t, q))
	})
}
