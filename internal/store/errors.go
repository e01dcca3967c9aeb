package store

import "errors"

var (
	ErrDeviceNotFound    = errors.New("device sync state not found")
	ErrOperationNotFound = errors.New("sync operation not found")
)
