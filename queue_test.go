package uartcrypt

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func Test_queue(t *testing.T) {
	const depth = 4

	var puts = func(q *queue, n int) {
		var f Frame
		i := 0
		for ; i < min(n, depth); i++ {
			err := q.put(f.set([]byte{byte(i)}))
			require.NoError(t, err)
		}

		for j := i; j < n; j++ {
			err := q.put(f.set([]byte{byte(j)}))
			var e *ErrBufferOverflow
			require.True(t, errors.As(err, &e), err)
		}
	}
	var gets = func(q *queue, n int) {
		var size atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < n+0xff; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
				defer cancel()

				var f Frame
				if q.get(ctx, &f) == nil {
					size.Add(1)

					require.Equal(t, 1, f.Len())
					require.Less(t, f.Bytes()[0], byte(n))
				}
			}()
		}

		wg.Wait()
		require.Equal(t, min(n, depth), int(size.Load()))
	}

	for n := 0; n < depth+8; n++ {
		q := newQueue(depth, 0)
		puts(q, n)
		gets(q, n)
	}
}

func Test_queue_Order(t *testing.T) {
	q := newQueue(3, 0)
	ctx := context.Background()

	var f Frame
	for i := 0; i < 16; i++ {
		require.NoError(t, q.put(f.set([]byte{byte(i), byte(i)})))
		if i >= 2 {
			require.NoError(t, q.get(ctx, &f))
			require.Equal(t, []byte{byte(i - 2), byte(i - 2)}, f.Bytes())
		}
	}
	require.NoError(t, q.put(f.set([]byte{0xff})))
	require.Equal(t, 3, q.len())

	for _, exp := range [][]byte{{14, 14}, {15, 15}, {0xff}} {
		require.NoError(t, q.get(ctx, &f))
		require.Equal(t, exp, f.Bytes())
	}
	require.Zero(t, q.len())
}

func Test_queue_Close_Drain(t *testing.T) {
	q := newQueue(4, 0)
	ctx := context.Background()

	var f Frame
	require.NoError(t, q.put(f.set([]byte("a"))))
	require.NoError(t, q.put(f.set([]byte("b"))))
	q.close()
	q.close()

	err := q.put(f.set([]byte("c")))
	require.True(t, errors.Is(err, net.ErrClosed), err)

	require.NoError(t, q.get(ctx, &f))
	require.Equal(t, "a", string(f.Bytes()))
	require.NoError(t, q.get(ctx, &f))
	require.Equal(t, "b", string(f.Bytes()))

	err = q.get(ctx, &f)
	require.True(t, errors.Is(err, net.ErrClosed), err)
}

func Test_queue_Wait(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		q := newQueue(1, time.Millisecond*20)

		s := time.Now()
		err := q.get(context.Background(), &Frame{})
		require.True(t, isTimeout(err), err)
		require.GreaterOrEqual(t, time.Since(s), time.Millisecond*20)
	})

	t.Run("cancel", func(t *testing.T) {
		q := newQueue(1, 0)
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(time.Millisecond*20, cancel)

		err := q.get(ctx, &Frame{})
		require.True(t, errors.Is(err, context.Canceled), err)
	})

	t.Run("wakeup", func(t *testing.T) {
		q := newQueue(1, 0)
		time.AfterFunc(time.Millisecond*20, func() { q.put((&Frame{}).set([]byte("x"))) })

		var f Frame
		require.NoError(t, q.get(context.Background(), &f))
		require.Equal(t, "x", string(f.Bytes()))
	})
}
