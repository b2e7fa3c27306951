// Package console line command dispatcher over a running pipeline.
package console

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"

	"github.com/lysShub/uartcrypt"
	"github.com/lysShub/uartcrypt/crypto"
	"github.com/lysShub/uartcrypt/padding"
)

type Console struct {
	pipeline *uartcrypt.Pipeline
	cipher   crypto.Cipher
	sender   uartcrypt.Sender
	out      io.Writer

	// Timeout bound every retransmit, default uartcrypt.DefaultSendTimeout
	Timeout time.Duration

	cmds map[string]command
}

type command struct {
	usage string
	fn    func(ctx context.Context, args []string) error
}

func New(p *uartcrypt.Pipeline, cipher crypto.Cipher, sender uartcrypt.Sender, out io.Writer) *Console {
	var c = &Console{
		pipeline: p,
		cipher:   cipher,
		sender:   sender,
		out:      out,
		Timeout:  uartcrypt.DefaultSendTimeout,
	}
	c.cmds = map[string]command{
		"enc":   {"enc [-s ch] <hex..>   encrypt whole blocks", c.enc},
		"dec":   {"dec [-s ch] <hex..>   decrypt whole blocks", c.dec},
		"seal":  {"seal <text>           pad and encrypt a message", c.seal},
		"open":  {"open <hex>            decrypt and unpad a message", c.open},
		"send":  {"send <ch> <text>      inject text into channel", c.send},
		"test":  {"test                  send test message to every channel", c.test},
		"stats": {"stats                 channels counters", c.stats},
		"help":  {"help                  this message", c.help},
	}
	return c
}

// Run execute commands read from in, one per line, until EOF or ctx cancelled.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	var s = bufio.NewScanner(in)
	for s.Scan() {
		if err := c.Exec(ctx, s.Text()); err != nil {
			fmt.Fprintf(c.out, "error: %s\n", err.Error())
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return errors.WithStack(s.Err())
}

func (c *Console) Exec(ctx context.Context, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}

	cmd, ok := c.cmds[args[0]]
	if !ok {
		return errors.Errorf("unknown command %q, try help", args[0])
	}
	return cmd.fn(ctx, args[1:])
}

func (c *Console) enc(ctx context.Context, args []string) error {
	return c.blocks(ctx, args, c.cipher.Encrypt)
}

func (c *Console) dec(ctx context.Context, args []string) error {
	return c.blocks(ctx, args, c.cipher.Decrypt)
}

func (c *Console) blocks(ctx context.Context, args []string, fn func(dst, src *crypto.Block) error) error {
	to, args, err := target(args)
	if err != nil {
		return err
	}
	b, err := hex.DecodeString(strings.Join(args, ""))
	if err != nil {
		return errors.WithStack(err)
	} else if len(b) == 0 || len(b)%crypto.BlockSize != 0 {
		return errors.Errorf("require multiple of %d bytes, got %d", crypto.BlockSize, len(b))
	}

	for i := 0; i < len(b); i += crypto.BlockSize {
		blk := (*crypto.Block)(b[i : i+crypto.BlockSize])
		if err := fn(blk, blk); err != nil {
			return err
		}
	}
	return c.output(ctx, to, b)
}

// target parse optional "-s ch" prefix, -1 means print.
func target(args []string) (int, []string, error) {
	if len(args) < 2 || args[0] != "-s" {
		return -1, args, nil
	}
	id, err := channel(args[1])
	return int(id), args[2:], err
}

func channel(s string) (uartcrypt.ChannelID, error) {
	id, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, errors.Errorf("invalid channel %q", s)
	}
	return uartcrypt.ChannelID(id), nil
}

func (c *Console) output(ctx context.Context, to int, b []byte) error {
	if to < 0 {
		_, err := fmt.Fprintln(c.out, hex.EncodeToString(b))
		return errors.WithStack(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	return c.sender.Send(ctx, uartcrypt.ChannelID(to), packet.Make().Append(b))
}

func (c *Console) seal(ctx context.Context, args []string) error {
	ct, err := padding.Seal(c.cipher, []byte(strings.Join(args, " ")))
	if err != nil {
		return err
	}
	return c.output(ctx, -1, ct)
}

func (c *Console) open(ctx context.Context, args []string) error {
	ct, err := hex.DecodeString(strings.Join(args, ""))
	if err != nil {
		return errors.WithStack(err)
	}
	pt, err := padding.Open(c.cipher, ct)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "%q\n", pt)
	return errors.WithStack(err)
}

func (c *Console) send(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: send <ch> <text>")
	}
	id, err := channel(args[0])
	if err != nil {
		return err
	}
	l, ok := c.pipeline.Link(id)
	if !ok {
		return errors.Errorf("channel %d not exist", id)
	}

	text := strings.Join(args[1:], " ")
	if l.Config().Policy == uartcrypt.Line {
		text += "\r\n"
	}
	for _, b := range []byte(text) {
		c.pipeline.OnByte(id, b)
	}
	return nil
}

func (c *Console) test(ctx context.Context, args []string) error {
	fmt.Fprintln(c.out, "testing channels...")
	for _, l := range c.pipeline.Links() {
		msg := fmt.Sprintf("Data from channel %d (%s)\r\n", l.ID(), l.Config().Role)
		if err := c.output(ctx, int(l.Config().Output), []byte(msg)); err != nil {
			return errors.WithMessagef(err, "channel %d", l.ID())
		}
	}
	fmt.Fprintln(c.out, "send done")
	return nil
}

func (c *Console) stats(ctx context.Context, args []string) error {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CH\tROLE\tPOLICY\tOUT\tFRAMES\tPROCESSED\tDROPPED\tLATE\tRESYNCS\tFAILURES\tRESETS\tQUEUED")
	for _, l := range c.pipeline.Links() {
		cfg, s := l.Config(), l.Stats()
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			cfg.ID, cfg.Role, cfg.Policy, cfg.Output,
			s.Frames, s.Processed, s.Dropped, s.Late, s.Resyncs, s.Failures, s.Resets, s.Queued,
		)
	}
	return errors.WithStack(w.Flush())
}

func (c *Console) help(ctx context.Context, args []string) error {
	var names []string
	for name := range c.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(c.out, c.cmds[name].usage)
	}
	return nil
}
