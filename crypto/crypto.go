package crypto

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	Bytes     = 16
	BlockSize = Bytes
)

type Key = [Bytes]byte

// Block one cipher block, column-major 4x4 state
type Block = [BlockSize]byte

// Cipher independent-block transform, implemented by software and
// hardware-backed engines. dst and src may alias.
type Cipher interface {
	Encrypt(dst, src *Block) error
	Decrypt(dst, src *Block) error

	// Reset tears down and reinitializes the engine, required after a FaultError.
	Reset() error
}

// FaultError hardware engine internal failure, the engine must be Reset
// before further use.
type FaultError struct {
	Engine string
	Err    error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s accelerator fault: %s", e.Engine, e.Err.Error())
}

func (e *FaultError) Unwrap() error { return e.Err }

func IsFault(err error) bool {
	var fe *FaultError
	return errors.As(err, &fe)
}
