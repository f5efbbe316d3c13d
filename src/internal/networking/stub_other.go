//go:build !linux

package networking

import (
	"runtime"

	"github.com/maksimkurb/tunroute/src/internal/errors"
)

// NewSystem is only supported on Linux.
func NewSystem() (System, error) {
	return nil, errors.New(errors.ErrCodeInternal, "route management is not supported on "+runtime.GOOS)
}
