// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import "fmt"

// ErrorCode identifies a kind of wallet error.
type ErrorCode int

// These constants are used to identify a specific WalletError.
const (
	// ErrNotInitialized indicates the operation requires an initialized
	// or loaded wallet.
	ErrNotInitialized ErrorCode = iota

	// ErrAlreadyInitialized indicates Initialize was called on a wallet
	// that already holds key material.
	ErrAlreadyInitialized

	// ErrWrongState indicates the operation is not valid in the wallet's
	// current state.
	ErrWrongState

	// ErrWrongPassword indicates the supplied password does not unseal
	// the wallet file.
	ErrWrongPassword

	// ErrBadAddress indicates an address string failed to parse for this
	// network, or an address is not part of this wallet.
	ErrBadAddress

	// ErrZeroDestination indicates a transfer names no destinations or a
	// destination with a zero amount.
	ErrZeroDestination

	// ErrSumOverflow indicates the destination amounts overflow when
	// summed together with the fee.
	ErrSumOverflow

	// ErrWrongAmount indicates the selected wallets do not hold enough
	// spendable funds for the requested amount plus fee.
	ErrWrongAmount

	// ErrMixinCountTooBig indicates the node could not provide enough
	// decoy outputs for the requested mixin.
	ErrMixinCountTooBig

	// ErrTransactionSizeTooBig indicates the built transaction exceeds
	// the network relay limit.
	ErrTransactionSizeTooBig

	// ErrInternalWalletError indicates a low-level failure while
	// building, serializing, or reparsing a transaction.
	ErrInternalWalletError

	// ErrOperationCancelled indicates the wallet was stopped while the
	// operation was waiting.
	ErrOperationCancelled

	// ErrInvalidArgument indicates an out-of-range index or otherwise
	// malformed argument.
	ErrInvalidArgument

	// ErrNodeFailure wraps an error reported by the chain node.
	ErrNodeFailure
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrNotInitialized:        "ErrNotInitialized",
	ErrAlreadyInitialized:    "ErrAlreadyInitialized",
	ErrWrongState:            "ErrWrongState",
	ErrWrongPassword:         "ErrWrongPassword",
	ErrBadAddress:            "ErrBadAddress",
	ErrZeroDestination:       "ErrZeroDestination",
	ErrSumOverflow:           "ErrSumOverflow",
	ErrWrongAmount:           "ErrWrongAmount",
	ErrMixinCountTooBig:      "ErrMixinCountTooBig",
	ErrTransactionSizeTooBig: "ErrTransactionSizeTooBig",
	ErrInternalWalletError:   "ErrInternalWalletError",
	ErrOperationCancelled:    "ErrOperationCancelled",
	ErrInvalidArgument:       "ErrInvalidArgument",
	ErrNodeFailure:           "ErrNodeFailure",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// WalletError provides a single type for errors that can occur in the
// wallet.  The ErrorCode field identifies the specific error condition,
// while the Err field exposes the underlying error when one exists, such
// as a node RPC failure.
type WalletError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e WalletError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e WalletError) Unwrap() error {
	return e.Err
}

// walletError creates a WalletError given a set of arguments.
func walletError(c ErrorCode, desc string, err error) WalletError {
	return WalletError{ErrorCode: c, Description: desc, Err: err}
}

// IsError returns whether the error is a WalletError with a matching
// error code.
func IsError(err error, code ErrorCode) bool {
	e, ok := err.(WalletError)
	return ok && e.ErrorCode == code
}
