// Package padding PKCS#7 framing of variable length messages into whole
// cipher blocks.
package padding

import (
	"github.com/lysShub/uartcrypt/crypto"
	"github.com/lysShub/uartcrypt/crypto/aes"
	"github.com/pkg/errors"
)

// MaxBuffer ciphertext buffer size, the longest message is MaxBuffer-1 bytes.
const MaxBuffer = 128

var (
	ErrInvalidPadding = errors.New("invalid padding")
	ErrInvalidLength  = errors.New("invalid ciphertext length")
	ErrBufferOverflow = errors.New("message overflow buffer")
)

// Padded length of n bytes message after padding, always greater than n.
func Padded(n int) int {
	return (n/crypto.BlockSize + 1) * crypto.BlockSize
}

// Seal pad msg and encrypt it block by block.
func Seal(c crypto.Cipher, msg []byte) ([]byte, error) {
	n := Padded(len(msg))
	if n > MaxBuffer {
		return nil, errors.WithStack(ErrBufferOverflow)
	}

	var dst = make([]byte, n)
	copy(dst, msg)
	pad := byte(n - len(msg))
	for i := len(msg); i < n; i++ {
		dst[i] = pad
	}

	for i := 0; i < n; i += crypto.BlockSize {
		b := (*crypto.Block)(dst[i : i+crypto.BlockSize])
		if err := c.Encrypt(b, b); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// Open decrypt ct and strip its padding.
func Open(c crypto.Cipher, ct []byte) ([]byte, error) {
	n := len(ct)
	if n == 0 || n%crypto.BlockSize != 0 || n > MaxBuffer {
		return nil, errors.WithStack(ErrInvalidLength)
	}

	var pt = make([]byte, n)
	for i := 0; i < n; i += crypto.BlockSize {
		err := c.Decrypt(
			(*crypto.Block)(pt[i:i+crypto.BlockSize]),
			(*crypto.Block)(ct[i:i+crypto.BlockSize]),
		)
		if err != nil {
			return nil, err
		}
	}

	pad := int(pt[n-1])
	if pad == 0 || pad > crypto.BlockSize {
		return nil, errors.WithStack(ErrInvalidPadding)
	}
	for _, b := range pt[n-pad:] {
		if int(b) != pad {
			return nil, errors.WithStack(ErrInvalidPadding)
		}
	}
	return pt[:n-pad], nil
}

// PadAndEncrypt as Seal, expand key on every call.
func PadAndEncrypt(msg []byte, key crypto.Key) ([]byte, error) {
	return Seal(aes.New(key), msg)
}

// DecryptAndUnpad as Open, expand key on every call.
func DecryptAndUnpad(ct []byte, key crypto.Key) ([]byte, error) {
	return Open(aes.New(key), ct)
}
