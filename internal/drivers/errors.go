// internal/drivers/errors.go
package drivers

import "errors"

var (
	ErrDriverNotFound = errors.New("no driver registered with this name")
	ErrClosed         = errors.New("connection closed")
)
