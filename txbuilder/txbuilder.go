// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txbuilder defines the boundary to the low-level transaction
// builder: the cryptographic construction of ring-signature transactions.
// The wallet drives a Transaction through output, extra, input, and
// signing phases; the implementation owns all primitives and the wire
// serialization.
package txbuilder

import (
	"github.com/cnsuite/cnwallet/cnutil"
)

// AccountKeys is the full key material of one sending address: the
// address itself plus the spend and view secret keys.
type AccountKeys struct {
	Address        cnutil.AccountAddress
	SpendSecretKey cnutil.SecretKey
	ViewSecretKey  cnutil.SecretKey
}

// GlobalOutput references an output by its global per-amount index along
// with its one-time target key.  Ring members are expressed as a list of
// these, kept sorted by OutputIndex.
type GlobalOutput struct {
	OutputIndex uint32
	TargetKey   cnutil.PublicKey
}

// RealOutput locates the spender's own output within an InputKeyInfo ring:
// the public key of the transaction that created it, its position within
// the assembled Outputs list, and its index inside the source transaction.
type RealOutput struct {
	TransactionPublicKey cnutil.PublicKey
	TransactionIndex     int
	OutputInTransaction  uint32
}

// InputKeyInfo describes one input to be signed: the amount, the ordered
// ring of global outputs (decoys plus the real one), and the position of
// the real output within that ring.
type InputKeyInfo struct {
	Amount     uint64
	Outputs    []GlobalOutput
	RealOutput RealOutput
}

// EphemeralKeys is the one-time key pair the builder derives for an input
// when it is added; the same pair must be handed back for signing.
type EphemeralKeys struct {
	PublicKey cnutil.PublicKey
	SecretKey cnutil.SecretKey
}

// ReceiverAmounts pairs a receiving address with the decomposed
// denominations it is owed.
type ReceiverAmounts struct {
	Receiver cnutil.AccountAddress
	Amounts  []uint64
}

// Transaction is a transaction under construction.  Outputs, unlock time,
// and extra bytes are set first; inputs are then added in their final
// order and signed by the same index.
type Transaction interface {
	// AddOutput appends a one-time output paying amount to receiver.
	AddOutput(amount uint64, receiver cnutil.AccountAddress) error

	// AddInput appends an input spendable by senderKeys and returns the
	// ephemeral key pair derived for it.
	AddInput(senderKeys AccountKeys, info InputKeyInfo) (EphemeralKeys, error)

	// SetUnlockTime sets the absolute unlock height or timestamp.
	SetUnlockTime(unlockTime uint64)

	// AppendExtra appends raw bytes to the transaction extra field.
	AppendExtra(extra []byte) error

	// SignInputKey produces the ring signature for the input at index.
	SignInputKey(index int, info InputKeyInfo, eph EphemeralKeys) error

	// Hash returns the transaction hash.  Valid once all outputs and
	// inputs are in place.
	Hash() cnutil.Hash

	// Bytes returns the serialized transaction.
	Bytes() ([]byte, error)

	// Extra returns the accumulated extra field bytes.
	Extra() []byte
}

// Factory constructs fresh empty transactions.  The wallet is handed one
// of these so tests and alternate builders can be swapped in.
type Factory func() Transaction
