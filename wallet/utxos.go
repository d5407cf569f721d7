// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"math/rand"

	"github.com/cnsuite/cnwallet/chain"
)

// walletOuts pairs a wallet record with the spendable outputs its
// container currently reports.
type walletOuts struct {
	wallet *walletRecord
	outs   []chain.TransactionOutput
}

// outputToSpend is one selected input candidate together with the wallet
// that owns it.
type outputToSpend struct {
	out    chain.TransactionOutput
	wallet *walletRecord
}

// pickWalletsWithMoney gathers the spendable outputs of every wallet
// with a non-zero cached spendable balance.
func (w *Wallet) pickWalletsWithMoney() []walletOuts {
	var wallets []walletOuts
	for _, rec := range w.wallets.records {
		if rec.actualBalance == 0 {
			continue
		}
		wallets = append(wallets, walletOuts{
			wallet: rec,
			outs:   rec.container.Outputs(chain.IncludeKeyUnlocked),
		})
	}
	return wallets
}

// pickWallet gathers the spendable outputs of a single wallet.
func (w *Wallet) pickWallet(rec *walletRecord) walletOuts {
	return walletOuts{
		wallet: rec,
		outs:   rec.container.Outputs(chain.IncludeKeyUnlocked),
	}
}

// selectOutputs picks outputs at random across the given wallets until
// neededMoney is gathered, and returns the selection with the total
// amount it carries.
//
// Outputs already reserved by a pending transaction are never selected.
// A considered output is removed from its pool whether or not it is
// accepted, so the loop terminates once every candidate has been looked
// at.  Dust outputs, those at or below dustThreshold, are only eligible
// when allowDust is set, and at most one is taken: a ring signature over
// a dust denomination finds no decoys, so dust can only move in
// unmixed transactions and is swept a coin at a time.  If the random
// walk picked no dust, one final scan appends the first unreserved dust
// output left over.
func (w *Wallet) selectOutputs(neededMoney uint64, allowDust bool, dustThreshold uint64,
	wallets []walletOuts, rng *rand.Rand) ([]outputToSpend, uint64) {

	var selected []outputToSpend
	var foundMoney uint64
	dust := allowDust

	for foundMoney < neededMoney && len(wallets) != 0 {
		walletIndex := rng.Intn(len(wallets))
		addressOuts := wallets[walletIndex].outs

		outIndex := rng.Intn(len(addressOuts))
		out := addressOuts[outIndex]

		if !w.spent.isReserved(out.TransactionHash, out.OutputInTransaction) &&
			(out.Amount > dustThreshold || dust) {

			if out.Amount <= dustThreshold {
				dust = false
			}

			foundMoney += out.Amount
			selected = append(selected, outputToSpend{
				out:    out,
				wallet: wallets[walletIndex].wallet,
			})
		}

		addressOuts = append(addressOuts[:outIndex], addressOuts[outIndex+1:]...)
		wallets[walletIndex].outs = addressOuts
		if len(addressOuts) == 0 {
			wallets = append(wallets[:walletIndex], wallets[walletIndex+1:]...)
		}
	}

	if !dust {
		return selected, foundMoney
	}

	for _, addressOuts := range wallets {
		for _, out := range addressOuts.outs {
			if out.Amount <= dustThreshold &&
				!w.spent.isReserved(out.TransactionHash, out.OutputInTransaction) {

				foundMoney += out.Amount
				selected = append(selected, outputToSpend{
					out:    out,
					wallet: addressOuts.wallet,
				})
				return selected, foundMoney
			}
		}
	}

	return selected, foundMoney
}
