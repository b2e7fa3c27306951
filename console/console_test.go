package console

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lysShub/netkit/packet"
	"github.com/stretchr/testify/require"

	"github.com/lysShub/uartcrypt"
	"github.com/lysShub/uartcrypt/crypto"
	"github.com/lysShub/uartcrypt/crypto/aes"
)

var key = crypto.Key{0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6, 0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c}

type recorder struct {
	mu  sync.Mutex
	out map[uartcrypt.ChannelID][]byte
}

func (r *recorder) Send(ctx context.Context, id uartcrypt.ChannelID, pkt *packet.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out[id] = append(r.out[id], pkt.Bytes()...)
	return nil
}

func (r *recorder) get(id uartcrypt.ChannelID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.out[id])
}

func setup(t *testing.T) (*Console, *recorder, *bytes.Buffer) {
	var (
		rec = &recorder{out: map[uartcrypt.ChannelID][]byte{}}
		out = &bytes.Buffer{}
		cfg = &uartcrypt.Config{
			Key: key,
			Channels: []uartcrypt.ChannelConfig{
				{ID: 1, Role: uartcrypt.Encrypt, Policy: uartcrypt.Line, Output: 2},
				{ID: 2, Role: uartcrypt.Decrypt, Policy: uartcrypt.Block, Output: 1},
			},
			ResyncTimeout: -1,
		}
	)
	p, err := uartcrypt.NewPipeline(cfg, rec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var serveErr = make(chan error, 1)
	go func() { serveErr <- p.Serve(ctx) }()
	t.Cleanup(func() {
		require.NoError(t, p.Close())
		require.NoError(t, <-serveErr)
		cancel()
	})

	return New(p, aes.New(key), rec, out), rec, out
}

func Test_Console_Blocks(t *testing.T) {
	c, rec, out := setup(t)
	ctx := context.Background()

	require.NoError(t, c.Exec(ctx, "enc 6bc1bee22e409f96 e93d7e117393172a"))
	require.Equal(t, "3ad77bb40d7a3660a89ecaf32466ef97\n", out.String())

	out.Reset()
	require.NoError(t, c.Exec(ctx, "dec 3ad77bb40d7a3660a89ecaf32466ef97"))
	require.Equal(t, "6bc1bee22e409f96e93d7e117393172a\n", out.String())

	require.NoError(t, c.Exec(ctx, "enc -s 7 6bc1bee22e409f96e93d7e117393172a"))
	exp, _ := hex.DecodeString("3ad77bb40d7a3660a89ecaf32466ef97")
	require.Equal(t, string(exp), rec.get(7))

	for _, line := range []string{
		"enc",
		"enc 6bc1",
		"dec zz",
		"enc -s 256 6bc1bee22e409f96e93d7e117393172a",
	} {
		require.Error(t, c.Exec(ctx, line), line)
	}
}

func Test_Console_Seal_Open(t *testing.T) {
	c, _, out := setup(t)
	ctx := context.Background()

	require.NoError(t, c.Exec(ctx, "seal hello  world"))
	ct := strings.TrimSpace(out.String())
	require.Len(t, ct, 32)

	out.Reset()
	require.NoError(t, c.Exec(ctx, "open "+ct))
	require.Equal(t, "\"hello world\"\n", out.String())

	// pad byte zero
	var blk crypto.Block
	require.NoError(t, aes.New(key).Encrypt(&blk, &blk))
	require.Error(t, c.Exec(ctx, "open "+hex.EncodeToString(blk[:])))
	require.Error(t, c.Exec(ctx, "seal "+strings.Repeat("a", 200)))
}

func Test_Console_Send(t *testing.T) {
	c, rec, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, c.Exec(ctx, "send 1 hello"))
	require.Eventually(t, func() bool { return rec.get(2) != "" }, time.Second, time.Millisecond*5)

	line := rec.get(2)
	require.True(t, strings.HasSuffix(line, "\r\n"))
	ct, err := hex.DecodeString(strings.TrimSuffix(line, "\r\n"))
	require.NoError(t, err)
	require.Len(t, ct, 16)

	// block channel, no delimiter appended
	require.NoError(t, c.Exec(ctx, "send 2 0123456789abcdef"))
	require.Eventually(t, func() bool { return rec.get(1) != "" }, time.Second, time.Millisecond*5)
	require.Len(t, rec.get(1), 16)

	require.Error(t, c.Exec(ctx, "send 9 hello"))
	require.Error(t, c.Exec(ctx, "send"))
}

func Test_Console_Run(t *testing.T) {
	c, rec, out := setup(t)

	in := strings.NewReader("help\n\ntest\nstats\nbogus\n")
	require.NoError(t, c.Run(context.Background(), in))

	require.Contains(t, out.String(), "enc [-s ch]")
	require.Contains(t, out.String(), "send done")
	require.Contains(t, out.String(), "PROCESSED")
	require.Contains(t, out.String(), `error: unknown command "bogus"`)

	require.Equal(t, "Data from channel 1 (encrypt)\r\n", rec.get(2))
	require.Equal(t, "Data from channel 2 (decrypt)\r\n", rec.get(1))
}

func Test_Console_Send_While_Pumping(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()

	// channel 2 is block policy, pumped by serial concurrently
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 16*500; i++ {
			c.pipeline.OnByte(2, 'p')
		}
	}()
	for i := 0; i < 50; i++ {
		require.NoError(t, c.Exec(ctx, "send 2 cccccccccccccccc"))
	}
	wg.Wait()

	l, ok := c.pipeline.Link(2)
	require.True(t, ok)
	s := l.Stats()
	require.Equal(t, uint64(500+50), s.Frames+s.Dropped)
	require.Zero(t, l.State().Pending())
}
