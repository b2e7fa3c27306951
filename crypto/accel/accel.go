// Package accel crypto.Cipher backed by an AES peripheral.
package accel

import (
	"sync"

	"github.com/lysShub/uartcrypt/crypto"
	"github.com/pkg/errors"
)

type Cipher struct {
	mu      sync.Mutex
	key     crypto.Key
	dev     Device
	faulted bool
}

var _ crypto.Cipher = (*Cipher)(nil)

func New(key crypto.Key, dev Device) (*Cipher, error) {
	if dev == nil {
		dev = CPU()
	}
	var c = &Cipher{key: key, dev: dev}

	if err := c.init(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cipher) init() error {
	if err := selfTest(c.dev); err != nil {
		return c.fault(err)
	}
	if err := c.dev.Init(&c.key); err != nil {
		return c.fault(err)
	}
	c.faulted = false
	return nil
}

func (c *Cipher) fault(err error) error {
	c.faulted = true
	return errors.WithStack(&crypto.FaultError{Engine: c.dev.String(), Err: err})
}

func (c *Cipher) Encrypt(dst, src *crypto.Block) error { return c.process(dst, src, false) }
func (c *Cipher) Decrypt(dst, src *crypto.Block) error { return c.process(dst, src, true) }

func (c *Cipher) process(dst, src *crypto.Block, decrypt bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.faulted {
		return errors.WithStack(&crypto.FaultError{Engine: c.dev.String(), Err: errors.New("require reset")})
	}

	var tmp crypto.Block
	if err := c.dev.Process(tmp[:], src[:], decrypt); err != nil {
		return c.fault(err)
	}
	*dst = tmp
	return nil
}

// Reset tear down the device and initialize it again with the key.
func (c *Cipher) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dev.Close(); err != nil {
		return c.fault(err)
	}
	return c.init()
}

func (c *Cipher) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faulted = true
	return c.dev.Close()
}

func (c *Cipher) String() string { return "accelerated(" + c.dev.String() + ")" }

// FIPS-197 Appendix C.1
var (
	katKey    = crypto.Key{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}
	katPlain  = crypto.Block{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	katCipher = crypto.Block{0x69, 0xc4, 0xe0, 0xd8, 0x6a, 0x7b, 0x04, 0x30, 0xd8, 0xcd, 0xb7, 0x80, 0x70, 0xb4, 0xc5, 0x5a}
)

// selfTest known answer test, leaves the scratch key installed.
func selfTest(dev Device) error {
	if err := dev.Init(&katKey); err != nil {
		return err
	}

	var b crypto.Block
	if err := dev.Process(b[:], katPlain[:], false); err != nil {
		return err
	} else if b != katCipher {
		return errors.New("self test encrypt mismatch")
	}
	if err := dev.Process(b[:], b[:], true); err != nil {
		return err
	} else if b != katPlain {
		return errors.New("self test decrypt mismatch")
	}
	return nil
}
