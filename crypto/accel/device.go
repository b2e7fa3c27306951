package accel

import (
	"crypto/aes"
	"crypto/cipher"
	"runtime"

	"github.com/lysShub/uartcrypt/crypto"
	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
)

// Device AES-128 peripheral holding one key slot.
type Device interface {
	Init(key *crypto.Key) error

	// Process transform exactly one block
	Process(dst, src []byte, decrypt bool) error

	Close() error
	String() string
}

// Supported report whether the processor has AES instructions.
func Supported() bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	case "s390x":
		return cpu.S390X.HasAES
	default:
		return false
	}
}

// CPU device backed by processor AES instructions.
func CPU() Device { return &cpuDevice{} }

type cpuDevice struct {
	block cipher.Block
}

func (d *cpuDevice) Init(key *crypto.Key) (err error) {
	if !Supported() {
		return errors.Errorf("%s cpu without aes instructions", runtime.GOARCH)
	}
	d.block, err = aes.NewCipher(key[:])
	return errors.WithStack(err)
}

func (d *cpuDevice) Process(dst, src []byte, decrypt bool) error {
	if d.block == nil {
		return errors.New("device not initialized")
	} else if len(src) != crypto.BlockSize || len(dst) != crypto.BlockSize {
		return errors.Errorf("invalid block size %d", len(src))
	}

	if decrypt {
		d.block.Decrypt(dst, src)
	} else {
		d.block.Encrypt(dst, src)
	}
	return nil
}

func (d *cpuDevice) Close() error {
	d.block = nil
	return nil
}

func (d *cpuDevice) String() string { return "cpu-" + runtime.GOARCH }
