package models

import "errors"

// Wallet errors. Recoverable: the user may connect again.
var (
	ErrConnectionRejected  = errors.New("wallet connection rejected")
	ErrNoProviderAvailable = errors.New("no wallet provider available")
)

// Configuration errors. Fatal at startup.
var (
	ErrInvalidAddress    = errors.New("invalid contract address")
	ErrInterfaceMismatch = errors.New("contract interface mismatch")
	ErrChainMismatch     = errors.New("rpc endpoint serves a different chain")
)

// Operation errors.
var (
	ErrInvalidArgument             = errors.New("invalid argument")
	ErrRejectedConcurrentOperation = errors.New("another operation is in flight")
	ErrNoBinding                   = errors.New("no contract binding: wallet not connected")
	ErrStaleBinding                = errors.New("contract binding replaced while operation was in flight")
	ErrCallReverted                = errors.New("contract call reverted")
	ErrNetwork                     = errors.New("network error")
	ErrConfirmationTimeout         = errors.New("confirmation timed out")
	ErrMalformedCandidate          = errors.New("malformed candidate entry")
)
