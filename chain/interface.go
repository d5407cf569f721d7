// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain defines the interfaces the wallet consumes from its chain
// backend: the blockchain synchronizer with its per-address transfers
// containers, and the node used to relay transactions and fetch ring
// decoys.  Concrete backends live outside the wallet core; this package
// additionally ships an offline backend for cold-wallet manipulation.
package chain

import (
	"github.com/cnsuite/cnwallet/cnutil"
)

// OutputFlags selects which outputs a transfers container reports.
type OutputFlags uint32

// BalanceFlags selects which balance a transfers container reports.
type BalanceFlags uint32

const (
	// IncludeKeyUnlocked reports spendable key outputs.
	IncludeKeyUnlocked OutputFlags = 1 << iota
)

const (
	// IncludeAllUnlocked reports the spendable balance.
	IncludeAllUnlocked BalanceFlags = 1 << iota

	// IncludeAllLocked reports the balance still maturing.
	IncludeAllLocked
)

// TransactionOutput describes one output owned by an address, as tracked
// by its transfers container.
type TransactionOutput struct {
	Amount               uint64
	GlobalOutputIndex    uint32
	OutputInTransaction  uint32
	TransactionHash      cnutil.Hash
	TransactionPublicKey cnutil.PublicKey
	OutputKey            cnutil.PublicKey
}

// TransactionInformation is the container's view of one transaction
// touching its address.
type TransactionInformation struct {
	TransactionHash cnutil.Hash
	BlockHeight     uint32
	Timestamp       uint64
	UnlockTime      uint64
	TotalAmountIn   uint64
	TotalAmountOut  uint64
	Extra           []byte
}

// TransfersContainer is the authoritative per-address ledger of outputs
// and balances, maintained by the synchronizer.
type TransfersContainer interface {
	// Outputs returns the outputs matching flags.
	Outputs(flags OutputFlags) []TransactionOutput

	// Balance returns the aggregate amount matching flags.
	Balance(flags BalanceFlags) uint64

	// TransactionInformation returns the container's record of the given
	// transaction along with the net balance change it caused for this
	// address.  The boolean reports whether the transaction is known.
	TransactionInformation(hash cnutil.Hash) (TransactionInformation, int64, bool)
}

// SubscriptionObserver receives per-subscription transaction events.
// Implementations must not mutate wallet state inline; the wallet
// re-dispatches the work onto its own serialization point.
type SubscriptionObserver interface {
	OnTransactionUpdated(sub Subscription, hash cnutil.Hash)
	OnTransactionDeleted(sub Subscription, hash cnutil.Hash)
	OnError(sub Subscription, height uint32, err error)
}

// Subscription represents one address registered with the synchronizer.
type Subscription interface {
	// Container returns the transfers container for the subscribed
	// address.
	Container() TransfersContainer

	// AddObserver registers for transaction events on this subscription.
	AddObserver(observer SubscriptionObserver)
}

// SyncStart tells the synchronizer where to begin scanning for a new
// subscription.
type SyncStart struct {
	Height    uint32
	Timestamp uint64
}

// AccountSubscription carries the key material and scan policy for one
// address.
type AccountSubscription struct {
	Address                 cnutil.AccountAddress
	ViewSecretKey           cnutil.SecretKey
	SpendSecretKey          cnutil.SecretKey
	SyncStart               SyncStart
	TransactionSpendableAge uint32
}

// SynchronizerObserver receives chain-level progress events.
type SynchronizerObserver interface {
	SynchronizationProgressUpdated(current, total uint32)
}

// Synchronizer drives per-address transfers containers from chain data.
type Synchronizer interface {
	// AddSubscription registers an address and returns its subscription.
	AddSubscription(sub AccountSubscription) (Subscription, error)

	// RemoveSubscription drops the subscription for the given address.
	RemoveSubscription(address cnutil.AccountAddress) error

	// Subscriptions returns the currently subscribed addresses.
	Subscriptions() []cnutil.AccountAddress

	// AddObserver and RemoveObserver manage progress observers.
	AddObserver(observer SynchronizerObserver)
	RemoveObserver(observer SynchronizerObserver)

	// Start and Stop control chain scanning.  Both are idempotent.
	Start()
	Stop()
}

// RandomOut is one decoy candidate for a given amount.
type RandomOut struct {
	GlobalIndex uint64
	OutKey      cnutil.PublicKey
}

// RandomAmountOuts is the node's decoy response for a single amount.
type RandomAmountOuts struct {
	Amount uint64
	Outs   []RandomOut
}

// Node is the RPC surface the wallet needs from a full node.  Both calls
// are asynchronous; the done callback may fire on any goroutine.
type Node interface {
	// RelayTransaction submits a parsed transaction to the network.
	RelayTransaction(tx *Transaction, done func(err error))

	// RandomOutputsByAmounts requests up to count decoy outputs for each
	// of the given amounts.
	RandomOutputsByAmounts(amounts []uint64, count uint64,
		done func(outs []RandomAmountOuts, err error))
}
