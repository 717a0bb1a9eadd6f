package store

import "errors"

// Store errors
var (
	ErrUnknownTable   = errors.New("unknown store table")
	ErrUnknownColumn  = errors.New("unknown store column")
	ErrLengthMismatch = errors.New("row count mismatch")
	ErrBadIdentifier  = errors.New("invalid sql identifier")
)
