// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"encoding/binary"
	"errors"
)

// CurrentTransactionVersion is the transaction version produced by the
// builder and accepted for relay.
const CurrentTransactionVersion = 1

// ErrUnsupportedTxVersion describes a serialized transaction whose
// version prefix is not understood by this wallet.
var ErrUnsupportedTxVersion = errors.New("unsupported transaction version")

// ErrShortTxBytes describes a serialized transaction too short to carry
// even its version prefix.
var ErrShortTxBytes = errors.New("serialized transaction is truncated")

// Transaction is a parsed transaction ready for relay.  The wallet does
// not interpret the body; it only validates the version prefix and keeps
// the raw serialization for the node.
type Transaction struct {
	// Version is the uvarint version prefix of the serialization.
	Version uint64

	// Raw is the complete serialized transaction, version included.
	Raw []byte
}

// NewTransactionFromBytes parses a serialized transaction, validating
// the version prefix.  The input slice is retained by the returned
// Transaction.
func NewTransactionFromBytes(b []byte) (*Transaction, error) {
	version, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, ErrShortTxBytes
	}
	if version != CurrentTransactionVersion {
		return nil, ErrUnsupportedTxVersion
	}
	return &Transaction{Version: version, Raw: b}, nil
}

// Bytes returns the serialized transaction.
func (tx *Transaction) Bytes() []byte {
	return tx.Raw
}
