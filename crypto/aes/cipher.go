package aes

import (
	"github.com/lysShub/uartcrypt/crypto"
)

// Cipher software crypto.Cipher, never fails. Encrypt and Decrypt are safe
// for concurrent use, Reset is not.
type Cipher struct {
	key      crypto.Key
	schedule *Schedule
}

var _ crypto.Cipher = (*Cipher)(nil)

func New(key crypto.Key) *Cipher {
	return &Cipher{key: key, schedule: ExpandKey(&key)}
}

func (c *Cipher) Encrypt(dst, src *crypto.Block) error {
	EncryptBlock(dst, src, c.schedule)
	return nil
}

func (c *Cipher) Decrypt(dst, src *crypto.Block) error {
	DecryptBlock(dst, src, c.schedule)
	return nil
}

// Reset recompute the schedule
func (c *Cipher) Reset() error {
	c.schedule = ExpandKey(&c.key)
	return nil
}

func (c *Cipher) String() string { return "software" }
