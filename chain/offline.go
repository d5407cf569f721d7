// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"sync"

	"github.com/cnsuite/cnwallet/cnutil"
)

// ErrOffline is returned by the offline node for any operation that
// would require network access.
var ErrOffline = errors.New("wallet is not connected to a node")

// offlineContainer is a transfers container that never sees chain data.
type offlineContainer struct{}

func (offlineContainer) Outputs(flags OutputFlags) []TransactionOutput { return nil }

func (offlineContainer) Balance(flags BalanceFlags) uint64 { return 0 }

func (offlineContainer) TransactionInformation(hash cnutil.Hash) (TransactionInformation, int64, bool) {
	return TransactionInformation{}, 0, false
}

// offlineSubscription is a subscription whose container stays empty and
// whose observers never fire.
type offlineSubscription struct {
	container offlineContainer
}

func (s *offlineSubscription) Container() TransfersContainer { return s.container }

func (s *offlineSubscription) AddObserver(observer SubscriptionObserver) {}

// OfflineSynchronizer is a synchronizer backend that performs no chain
// scanning.  It accepts subscriptions and hands out empty containers,
// which is enough for cold-wallet key management: creating addresses,
// changing the passphrase, and dumping keys all work without a node.
type OfflineSynchronizer struct {
	mtx  sync.Mutex
	subs map[cnutil.AccountAddress]*offlineSubscription
}

// NewOfflineSynchronizer returns an offline synchronizer backend.
func NewOfflineSynchronizer() *OfflineSynchronizer {
	return &OfflineSynchronizer{
		subs: make(map[cnutil.AccountAddress]*offlineSubscription),
	}
}

// AddSubscription registers an address and returns its empty
// subscription.
func (s *OfflineSynchronizer) AddSubscription(sub AccountSubscription) (Subscription, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existing, ok := s.subs[sub.Address]
	if ok {
		return existing, nil
	}
	osub := &offlineSubscription{}
	s.subs[sub.Address] = osub
	return osub, nil
}

// RemoveSubscription drops the subscription for the given address.
func (s *OfflineSynchronizer) RemoveSubscription(address cnutil.AccountAddress) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	delete(s.subs, address)
	return nil
}

// Subscriptions returns the currently subscribed addresses.
func (s *OfflineSynchronizer) Subscriptions() []cnutil.AccountAddress {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	addrs := make([]cnutil.AccountAddress, 0, len(s.subs))
	for addr := range s.subs {
		addrs = append(addrs, addr)
	}
	return addrs
}

// AddObserver is a no-op; the offline backend reports no progress.
func (s *OfflineSynchronizer) AddObserver(observer SynchronizerObserver) {}

// RemoveObserver is a no-op.
func (s *OfflineSynchronizer) RemoveObserver(observer SynchronizerObserver) {}

// Start is a no-op; there is nothing to scan.
func (s *OfflineSynchronizer) Start() {}

// Stop is a no-op.
func (s *OfflineSynchronizer) Stop() {}

// OfflineNode is a node backend that fails every network operation with
// ErrOffline.
type OfflineNode struct{}

// NewOfflineNode returns a node backend for offline operation.
func NewOfflineNode() *OfflineNode {
	return &OfflineNode{}
}

// RelayTransaction reports ErrOffline through the done callback.
func (n *OfflineNode) RelayTransaction(tx *Transaction, done func(err error)) {
	go done(ErrOffline)
}

// RandomOutputsByAmounts reports ErrOffline through the done callback.
func (n *OfflineNode) RandomOutputsByAmounts(amounts []uint64, count uint64,
	done func(outs []RandomAmountOuts, err error)) {

	go done(nil, ErrOffline)
}
