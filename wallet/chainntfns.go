// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/davecgh/go-spew/spew"

	"github.com/cnsuite/cnwallet/chain"
	"github.com/cnsuite/cnwallet/cnutil"
)

// SynchronizationProgressUpdated implements chain.SynchronizerObserver.
// The work is re-dispatched onto a wallet goroutine; synchronizer
// callbacks must not mutate wallet state inline.
func (w *Wallet) SynchronizationProgressUpdated(current, total uint32) {
	w.spawn(func() {
		w.handleSynchronizationProgress(current)
	})
}

// OnTransactionUpdated implements chain.SubscriptionObserver.
func (w *Wallet) OnTransactionUpdated(sub chain.Subscription, hash cnutil.Hash) {
	w.spawn(func() {
		w.handleTransactionUpdated(sub, hash)
	})
}

// OnTransactionDeleted implements chain.SubscriptionObserver.
func (w *Wallet) OnTransactionDeleted(sub chain.Subscription, hash cnutil.Hash) {
	w.spawn(func() {
		w.handleTransactionDeleted(sub, hash)
	})
}

// OnError implements chain.SubscriptionObserver.  Scan errors are left
// to the synchronizer's own retry; the wallet state is untouched.
func (w *Wallet) OnError(sub chain.Subscription, height uint32, err error) {
	log.Debugf("Synchronizer reported error at height %d: %v", height, err)
}

// handleSynchronizationProgress walks the unlock schedule up to the
// current height.
func (w *Wallet) handleSynchronizationProgress(current uint32) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.state != stateInitialized {
		return
	}

	w.unlockBalances(current)
}

// unlockBalances refreshes every wallet with an unlock job due at or
// below height and announces that balances may have moved.  The
// announcement goes out even when no job was due; progress alone can
// mature container-tracked outputs the schedule never saw.
func (w *Wallet) unlockBalances(height uint32) {
	for _, spendKey := range w.unlockJobs.popDue(height) {
		if rec, ok := w.wallets.lookup(spendKey); ok {
			w.updateBalance(rec)
		}
	}

	w.events.push(Event{Type: BalanceUnlocked, TransactionIndex: -1})
}

// handleTransactionUpdated records a transaction the subscription's
// container reported: an incoming payment, a confirmation of an earlier
// entry, or the return of a previously dropped one.
func (w *Wallet) handleTransactionUpdated(sub chain.Subscription, hash cnutil.Hash) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.state != stateInitialized {
		return
	}

	container := sub.Container()

	// If this is one of our own transactions, observed by the
	// synchronizer (confirmed or not), its input reservations are no
	// longer needed; the container now counts those outputs as spent
	// itself.
	w.spent.releaseBySpendingHash(hash)

	info, txBalance, found := container.TransactionInformation(hash)
	if !found {
		log.Errorf("Transfers container has no record of updated "+
			"transaction %v", hash)
		return
	}

	log.Tracef("Transaction update: %v", spew.Sdump(info))

	rec, haveRec := w.wallets.lookupByContainer(container)

	var event Event
	if txIndex, ok := w.ledger.indexOf(info.TransactionHash); ok {
		entry, _ := w.ledger.at(txIndex)
		entry.BlockHeight = info.BlockHeight
		// The transaction may have been dropped and mined again.
		entry.State = TxSucceeded

		event = Event{Type: TransactionUpdated, TransactionIndex: txIndex}
	} else {
		if !haveRec {
			log.Errorf("No wallet record for container reporting "+
				"transaction %v", hash)
			return
		}

		txIndex := w.ledger.append(Transaction{
			State:        TxSucceeded,
			Hash:         info.TransactionHash,
			TotalAmount:  txBalance,
			Fee:          info.TotalAmountIn - info.TotalAmountOut,
			CreationTime: info.Timestamp,
			Timestamp:    info.Timestamp,
			BlockHeight:  info.BlockHeight,
			UnlockTime:   info.UnlockTime,
			Extra:        info.Extra,
		})
		w.ledger.appendTransfers(txIndex, []Transfer{{
			Address: w.recordAddress(rec),
			Amount:  txBalance,
		}})

		event = Event{Type: TransactionCreated, TransactionIndex: txIndex}
	}

	if info.BlockHeight != UnconfirmedHeight {
		// TODO: unlock times above the block height domain are unix
		// timestamps and need their own schedule.
		unlockHeight := info.BlockHeight + uint32(info.UnlockTime) +
			softLockBlocks + 1

		delete(w.change, hash)
		if haveRec {
			w.unlockJobs.insert(hash, rec.spendKeys.PublicKey, unlockHeight)
		}
	}

	if haveRec {
		w.updateBalance(rec)
	}
	w.events.push(event)
}

// handleTransactionDeleted reacts to the chain dropping a transaction
// the wallet had recorded.  An unknown hash is a no-op.
func (w *Wallet) handleTransactionDeleted(sub chain.Subscription, hash cnutil.Hash) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.state != stateInitialized {
		return
	}

	txIndex, ok := w.ledger.indexOf(hash)
	if !ok {
		return
	}

	w.unlockJobs.removeByHash(hash)
	delete(w.change, hash)
	w.spent.releaseBySpendingHash(hash)

	entry, _ := w.ledger.at(txIndex)
	entry.State = TxCancelled
	entry.BlockHeight = UnconfirmedHeight

	if rec, haveRec := w.wallets.lookupByContainer(sub.Container()); haveRec {
		w.updateBalance(rec)
	}
	w.events.push(Event{Type: TransactionUpdated, TransactionIndex: txIndex})

	log.Debugf("Transaction %v dropped from the chain, entry %d cancelled",
		hash, txIndex)
}
