// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/cnsuite/cnwallet/chain"
	"github.com/cnsuite/cnwallet/cnutil"
)

// updateBalance recomputes one wallet's cached balances from its
// transfers container and folds the delta into the wallet-wide totals.
//
// The spendable balance is the container's unlocked amount minus the
// outputs currently reserved by pending outgoing transactions.  The
// pending balance is the container's still-locked amount; the change
// recipient additionally counts the change of every pending transaction,
// which the container cannot see until the transaction confirms.
func (w *Wallet) updateBalance(rec *walletRecord) {
	if rec == nil || rec.container == nil {
		return
	}

	// Reserved outputs stay in the container's unlocked set until their
	// spending transaction confirms, so the subtraction cannot underflow.
	actual := rec.container.Balance(chain.IncludeAllUnlocked)
	actual -= w.spent.sumForWallet(rec.spendKeys.PublicKey)

	pending := rec.container.Balance(chain.IncludeAllLocked)
	if changeRec, ok := w.wallets.at(0); ok && changeRec == rec {
		for _, amount := range w.change {
			pending += amount
		}
	}

	if actual > rec.actualBalance {
		w.actualBalance += actual - rec.actualBalance
	} else {
		w.actualBalance -= rec.actualBalance - actual
	}
	rec.actualBalance = actual

	if pending > rec.pendingBalance {
		w.pendingBalance += pending - rec.pendingBalance
	} else {
		w.pendingBalance -= rec.pendingBalance - pending
	}
	rec.pendingBalance = pending

	log.Tracef("Balance updated for %s: actual %d, pending %d",
		rec.spendKeys.PublicKey, actual, pending)
}

// refreshBalances runs updateBalance for every wallet in the affected
// set.  Spend keys without a record are skipped; their wallet was
// deleted between the event and the refresh.
func (w *Wallet) refreshBalances(affected fn.Set[cnutil.PublicKey]) {
	for spendKey := range affected {
		if rec, ok := w.wallets.lookup(spendKey); ok {
			w.updateBalance(rec)
		}
	}
}

// dropBalance subtracts a wallet's cached balances from the wallet-wide
// totals before its record is erased.
func (w *Wallet) dropBalance(rec *walletRecord) {
	w.actualBalance -= rec.actualBalance
	w.pendingBalance -= rec.pendingBalance
	rec.actualBalance = 0
	rec.pendingBalance = 0
}
