//go:build !linux

package serial

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
)

func Open(path string, baud int) (*os.File, error) {
	return nil, errors.Errorf("serial port not support %s", runtime.GOOS)
}
