// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across flow/repository/compositor layers.
var (
	// ErrNotFound indicates the referenced preset does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDecode indicates supplied media could not be decoded as an image.
	// The only error kind that abandons a whole job.
	ErrDecode = errors.New("decode failed")

	// ErrStorage indicates a preset document or font cache I/O failure.
	ErrStorage = errors.New("storage failure")

	// ErrBroadcast indicates the secondary (group) delivery failed after
	// the primary delivery succeeded.
	ErrBroadcast = errors.New("broadcast failed")
)
