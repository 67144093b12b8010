package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: asset body not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid does not match asset body")
	ErrImmutable   = errors.New("storage: stored asset body differs")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
