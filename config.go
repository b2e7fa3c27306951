package uartcrypt

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lysShub/uartcrypt/crypto"
	"github.com/lysShub/uartcrypt/crypto/accel"
	"github.com/lysShub/uartcrypt/crypto/aes"
	"github.com/lysShub/uartcrypt/padding"
)

type Config struct {
	Key crypto.Key

	// Cipher create cipher instance for every channel, default Software
	Cipher CipherFactory

	Channels []ChannelConfig

	// ResyncTimeout max gap between two bytes of one frame, exceeded discard
	// the partial frame and restart framing. negative disable it.
	ResyncTimeout time.Duration

	QueueDepth int

	// QueueWait bound the worker wait on dispatch queue, zero wait forever.
	QueueWait time.Duration

	SendTimeout time.Duration

	// MaxLine max bytes of Line policy frame, default enough for hex of
	// the longest ciphertext.
	MaxLine int

	// PcapPath record inbound frames and outbound results, for debug
	PcapPath string

	Logger *slog.Logger
}

type ChannelConfig struct {
	ID     ChannelID
	Role   Role
	Policy Policy

	// Output channel the result send to, maybe ID itself
	Output ChannelID
}

type ChannelID = uint8

type CipherFactory func(key crypto.Key) (crypto.Cipher, error)

func Software(key crypto.Key) (crypto.Cipher, error) { return aes.New(key), nil }

func Accelerated(dev func() accel.Device) CipherFactory {
	return func(key crypto.Key) (crypto.Cipher, error) {
		var d accel.Device
		if dev != nil {
			d = dev()
		}
		return accel.New(key, d)
	}
}

const (
	DefaultResyncTimeout = time.Millisecond * 10
	DefaultQueueDepth    = 4
	DefaultSendTimeout   = time.Millisecond * 100
	maxFrame             = 2 * padding.MaxBuffer
)

func (c *Config) init() error {
	if c == nil {
		panic("nil config")
	}

	if c.Cipher == nil {
		c.Cipher = Software
	}
	if c.ResyncTimeout == 0 {
		c.ResyncTimeout = DefaultResyncTimeout
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.MaxLine <= 0 || c.MaxLine > maxFrame {
		c.MaxLine = maxFrame
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	if len(c.Channels) == 0 {
		return errors.New("require at least one channel")
	}
	var ids = map[ChannelID]bool{}
	for _, e := range c.Channels {
		if ids[e.ID] {
			return errors.Errorf("duplicate channel %d", e.ID)
		}
		ids[e.ID] = true

		if e.Role != Encrypt && e.Role != Decrypt {
			return errors.Errorf("channel %d invalid role %d", e.ID, e.Role)
		}
		if e.Policy != Block && e.Policy != Line {
			return errors.Errorf("channel %d invalid policy %d", e.ID, e.Policy)
		}
	}
	return nil
}

type Role uint8

const (
	_ Role = iota
	Encrypt
	Decrypt
)

func (r Role) String() string {
	switch r {
	case Encrypt:
		return "encrypt"
	case Decrypt:
		return "decrypt"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func (r *Role) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "encrypt", "enc":
		*r = Encrypt
	case "decrypt", "dec":
		*r = Decrypt
	default:
		return errors.Errorf("unknown role %q", text)
	}
	return nil
}

// Policy framing trigger
type Policy uint8

const (
	_ Policy = iota

	// Block emit frame every 16 bytes
	Block

	// Line emit frame on '\r' or '\n'
	Line
)

func (p Policy) String() string {
	switch p {
	case Block:
		return "block"
	case Line:
		return "line"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

func (p *Policy) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "block":
		*p = Block
	case "line":
		*p = Line
	default:
		return errors.Errorf("unknown policy %q", text)
	}
	return nil
}
