package resp

import (
	"errors"
	"fmt"
)

// ErrEndOfInput is returned when zero bytes were available at the start
// of a Read call. It is the only error after which the same stream may be
// read from again; every other error leaves the stream position
// undefined and the caller must close the connection.
var ErrEndOfInput = errors.New("resp: end of input")

// InvalidError reports that the byte stream could not be parsed as a
// legal RESP value. Data holds the offending bytes, when available, for
// diagnostics.
type InvalidError struct {
	Message string
	Data    []byte
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("resp: invalid value: %s", e.Message)
}

func invalid(format string, args ...interface{}) error {
	return &InvalidError{Message: fmt.Sprintf(format, args...)}
}

// IsInvalid reports whether err is an *InvalidError.
func IsInvalid(err error) bool {
	var e *InvalidError
	return errors.As(err, &e)
}
