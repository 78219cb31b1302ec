// Package common defines constants and sentinel errors shared across the
// offline data layer. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	ErrInvalidTrip   = errors.New("invalid trip id")
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrSessionInvalid is logged when an offline session can no longer be
	// decrypted and has been dropped.
	ErrSessionInvalid = errors.New("offline session invalid")

	ErrInvalidToken = errors.New("invalid token")

	ErrUnknownCategory = errors.New("unknown storage category")
)
