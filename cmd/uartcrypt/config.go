package main

import (
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/lysShub/uartcrypt"
	"github.com/lysShub/uartcrypt/crypto"
)

type File struct {
	Key           string        `yaml:"key"`
	Backend       string        `yaml:"backend"`
	ResyncTimeout time.Duration `yaml:"resync_timeout"`
	QueueDepth    int           `yaml:"queue_depth"`
	QueueWait     time.Duration `yaml:"queue_wait"`
	SendTimeout   time.Duration `yaml:"send_timeout"`
	MaxLine       int           `yaml:"max_line"`
	Pcap          string        `yaml:"pcap"`
	LogLevel      slog.Level    `yaml:"log_level"`

	// Console channel id of stdout, results routed to it are printed
	Console  *uartcrypt.ChannelID `yaml:"console"`
	Channels []Channel            `yaml:"channels"`
}

type Channel struct {
	uartcrypt.ChannelConfig `yaml:",inline"`

	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

func Load(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.WithStack(err)
	}

	for _, ch := range f.Channels {
		if ch.Device == "" {
			return nil, errors.Errorf("channel %d require device", ch.ID)
		} else if ch.Baud <= 0 {
			return nil, errors.Errorf("channel %d invalid baud %d", ch.ID, ch.Baud)
		}
		if f.Console != nil && ch.ID == *f.Console {
			return nil, errors.Errorf("channel %d conflict with console", ch.ID)
		}
	}
	return &f, nil
}

func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer fh.Close()
	return Load(fh)
}

// Config build pipeline config, logger write to w.
func (f *File) Config(w io.Writer) (*uartcrypt.Config, error) {
	var key crypto.Key
	if b, err := hex.DecodeString(f.Key); err != nil {
		return nil, errors.WithStack(err)
	} else if len(b) != len(key) {
		return nil, errors.Errorf("require %d bytes key, got %d", len(key), len(b))
	} else {
		copy(key[:], b)
	}

	var cipher uartcrypt.CipherFactory
	switch strings.ToLower(f.Backend) {
	case "", "software":
		cipher = uartcrypt.Software
	case "accelerated":
		cipher = uartcrypt.Accelerated(nil)
	default:
		return nil, errors.Errorf("unknown backend %q", f.Backend)
	}

	var cfg = &uartcrypt.Config{
		Key:           key,
		Cipher:        cipher,
		ResyncTimeout: f.ResyncTimeout,
		QueueDepth:    f.QueueDepth,
		QueueWait:     f.QueueWait,
		SendTimeout:   f.SendTimeout,
		MaxLine:       f.MaxLine,
		PcapPath:      f.Pcap,
		Logger:        slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: f.LogLevel})),
	}
	for _, ch := range f.Channels {
		cfg.Channels = append(cfg.Channels, ch.ChannelConfig)
	}
	return cfg, nil
}
