// uartcrypt encrypt or decrypt data stream of uarts.
//
//	uartcrypt -config uartcrypt.yaml
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lysShub/uartcrypt"
	"github.com/lysShub/uartcrypt/console"
	"github.com/lysShub/uartcrypt/serial"
)

func main() {
	var path = flag.String("config", "uartcrypt.yaml", "config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *path); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// stdout never closed by Ports
type stdout struct{ io.Writer }

func run(ctx context.Context, path string) error {
	file, err := LoadFile(path)
	if err != nil {
		return err
	}
	cfg, err := file.Config(os.Stderr)
	if err != nil {
		return err
	}

	var ports = serial.NewPorts()
	defer ports.Close()
	if file.Console != nil {
		ports.Register(*file.Console, stdout{os.Stdout})
	}

	var opened = map[uartcrypt.ChannelID]serial.Port{}
	for _, ch := range file.Channels {
		port, err := serial.Open(ch.Device, ch.Baud)
		if err != nil {
			return err
		}
		ports.Register(ch.ID, port)
		opened[ch.ID] = port
		cfg.Logger.Info("open port", slog.Int("channel", int(ch.ID)), slog.String("device", port.Name()), slog.Int("baud", ch.Baud))
	}

	p, err := uartcrypt.NewPipeline(cfg, ports)
	if err != nil {
		return err
	}
	cipher, err := cfg.Cipher(cfg.Key)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return p.Serve(ctx) })
	for id, port := range opened {
		eg.Go(func() error {
			return serial.Pump(ctx, port, func(b byte) { p.OnByte(id, b) })
		})
	}

	// stdin not cancelable, console not joined
	go func() {
		c := console.New(p, cipher, ports, os.Stdout)
		if err := c.Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
			cfg.Logger.Warn("console exit", slog.String("error", err.Error()))
		}
	}()

	cfg.Logger.Info("serving", slog.Int("channels", len(opened)))
	err = eg.Wait()
	p.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
