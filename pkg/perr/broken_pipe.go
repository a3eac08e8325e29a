package perr

import (
	"errors"
	"syscall"
)

// isBrokenPipe reports whether err ultimately wraps EPIPE, the signal that
// a child's stdin pipe or the connection's writer has gone away.
func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}
