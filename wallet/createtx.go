// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"sort"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/cnsuite/cnwallet/chain"
	"github.com/cnsuite/cnwallet/cnutil"
	"github.com/cnsuite/cnwallet/txbuilder"
)

// inputInfo couples one input's ring description with the wallet that
// owns the real output and the ephemeral keys derived when the input was
// added to the transaction.
type inputInfo struct {
	keyInfo txbuilder.InputKeyInfo
	wallet  *walletRecord
	ephKeys txbuilder.EphemeralKeys
}

// Transfer builds, signs, and relays a transaction paying the given
// destinations, funding it from every address of the wallet.  It returns
// the ledger index of the new transaction.
//
// The fee is paid on top of the destination amounts.  mixin is the
// number of decoy outputs mixed into each input ring; zero sends an
// unmixed transaction.  extra is appended verbatim to the transaction's
// extra field and unlockTimestamp sets the absolute unlock height or
// timestamp of the created outputs.
func (w *Wallet) Transfer(destinations []Transfer, fee, mixin uint64,
	extra []byte, unlockTimestamp uint64) (int, error) {

	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return 0, err
	}
	if err := w.checkStopped(); err != nil {
		return 0, err
	}

	return w.doTransfer(w.pickWalletsWithMoney(), destinations, fee,
		mixin, extra, unlockTimestamp)
}

// TransferFrom is Transfer funded exclusively from the given source
// address.
func (w *Wallet) TransferFrom(sourceAddress string, destinations []Transfer,
	fee, mixin uint64, extra []byte, unlockTimestamp uint64) (int, error) {

	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return 0, err
	}
	if err := w.checkStopped(); err != nil {
		return 0, err
	}

	rec, err := w.walletRecordByAddress(sourceAddress)
	if err != nil {
		return 0, err
	}

	source := w.pickWallet(rec)
	var wallets []walletOuts
	if len(source.outs) != 0 {
		wallets = append(wallets, source)
	}

	return w.doTransfer(wallets, destinations, fee, mixin, extra,
		unlockTimestamp)
}

// doTransfer runs the whole outgoing pipeline over the given funding
// pools: validation, selection, decoy fetching, construction, ledger
// insertion, and relay.  Called with the wallet mutex held.
func (w *Wallet) doTransfer(wallets []walletOuts, destinations []Transfer,
	fee, mixin uint64, extra []byte, unlockTimestamp uint64) (int, error) {

	if len(destinations) == 0 {
		return 0, walletError(ErrZeroDestination, "no destinations", nil)
	}

	if err := w.validateDestinations(destinations); err != nil {
		return 0, err
	}

	neededMoney, err := countNeededMoney(destinations, fee)
	if err != nil {
		return 0, err
	}

	dustThreshold := w.cfg.Currency.DustThreshold()
	selected, foundMoney := w.selectOutputs(neededMoney, mixin == 0,
		dustThreshold, wallets, newSelectionRand())
	if foundMoney < neededMoney {
		return 0, walletError(ErrWrongAmount, "not enough money", nil)
	}

	var mixinResult []chain.RandomAmountOuts
	if mixin != 0 {
		mixinResult, err = w.requestMixinOuts(selected, mixin)
		if err != nil {
			return 0, err
		}
	}

	keysInfo := prepareInputs(selected, mixinResult, mixin)

	changeRec, _ := w.wallets.at(0)
	change := Transfer{
		Address: w.recordAddress(changeRec),
		Amount:  int64(foundMoney - neededMoney),
	}

	decomposed, err := w.splitDestinations(destinations, change, dustThreshold)
	if err != nil {
		return 0, err
	}

	tx, err := w.makeTransaction(decomposed, keysInfo, extra, unlockTimestamp)
	if err != nil {
		return 0, err
	}

	txIndex := w.insertOutgoingTransaction(tx.Hash(), -int64(neededMoney),
		fee, tx.Extra(), unlockTimestamp)
	w.appendOutgoingTransfers(txIndex, destinations)

	if err := w.sendTransaction(tx); err != nil {
		// The entry stays in the ledger as failed; its inputs were
		// never reserved so the funds remain spendable.
		w.events.push(Event{Type: TransactionCreated, TransactionIndex: txIndex})
		return 0, err
	}

	entry, _ := w.ledger.at(txIndex)
	entry.State = TxSucceeded

	w.markOutputsSpent(tx.Hash(), selected)
	w.change[tx.Hash()] = uint64(change.Amount)
	w.updateUsedWalletsBalances(selected)

	w.events.push(Event{Type: TransactionCreated, TransactionIndex: txIndex})

	log.Debugf("Created transaction %v paying %d destinations, fee %d, "+
		"mixin %d", tx.Hash(), len(destinations), fee, mixin)

	return txIndex, nil
}

// validateDestinations checks every destination address parses for this
// network.
func (w *Wallet) validateDestinations(destinations []Transfer) error {
	for _, destination := range destinations {
		if _, ok := w.cfg.Currency.ParseAccountAddressString(destination.Address); !ok {
			return walletError(ErrBadAddress,
				"invalid destination address "+destination.Address, nil)
		}
	}
	return nil
}

// countNeededMoney totals the destination amounts plus the fee, guarding
// against non-positive amounts and overflow.
func countNeededMoney(destinations []Transfer, fee uint64) (uint64, error) {
	var neededMoney uint64
	for _, transfer := range destinations {
		if transfer.Amount == 0 {
			return 0, walletError(ErrZeroDestination,
				"destination amount is zero", nil)
		}
		if transfer.Amount < 0 {
			return 0, walletError(ErrInvalidArgument,
				"destination amount is negative", nil)
		}

		amount := uint64(transfer.Amount)
		neededMoney += amount
		if neededMoney < amount {
			return 0, walletError(ErrSumOverflow,
				"destination amounts overflow", nil)
		}
	}

	neededMoney += fee
	if neededMoney < fee {
		return 0, walletError(ErrSumOverflow,
			"destination amounts plus fee overflow", nil)
	}

	return neededMoney, nil
}

// requestMixinOuts asks the node for decoy outputs covering every
// selected input amount.  The mixin shortfall check runs before a node
// error is propagated.
func (w *Wallet) requestMixinOuts(selected []outputToSpend, mixin uint64) ([]chain.RandomAmountOuts, error) {
	amounts := make([]uint64, 0, len(selected))
	for _, input := range selected {
		amounts = append(amounts, input.out.Amount)
	}

	if err := w.checkStopped(); err != nil {
		return nil, err
	}

	type reply struct {
		outs []chain.RandomAmountOuts
		err  error
	}
	replyC := make(chan reply, 1)
	w.cfg.Node.RandomOutputsByAmounts(amounts, mixin,
		func(outs []chain.RandomAmountOuts, err error) {
			replyC <- reply{outs: outs, err: err}
		})
	result := <-replyC

	if err := checkIfEnoughMixins(result.outs, mixin); err != nil {
		return nil, err
	}
	if result.err != nil {
		return nil, walletError(ErrNodeFailure, "decoy request failed",
			result.err)
	}

	return result.outs, nil
}

// checkIfEnoughMixins verifies the node returned at least mixin decoys
// for every requested amount.
func checkIfEnoughMixins(mixinResult []chain.RandomAmountOuts, mixin uint64) error {
	if mixin == 0 && len(mixinResult) == 0 {
		return walletError(ErrMixinCountTooBig, "no decoys available", nil)
	}

	for _, outs := range mixinResult {
		if uint64(len(outs.Outs)) < mixin {
			return walletError(ErrMixinCountTooBig,
				"not enough decoys for requested mixin", nil)
		}
	}

	return nil
}

// prepareInputs assembles the ring for each selected output: the decoys
// sorted ascending by global index with the real output's own index
// skipped, capped at mixin entries, and the real output spliced in at
// its ordered position.
func prepareInputs(selected []outputToSpend, mixinResult []chain.RandomAmountOuts,
	mixin uint64) []inputInfo {

	keysInfo := make([]inputInfo, 0, len(selected))

	for i, input := range selected {
		keyInfo := txbuilder.InputKeyInfo{Amount: input.out.Amount}

		if len(mixinResult) != 0 {
			decoys := mixinResult[i].Outs
			sort.Slice(decoys, func(a, b int) bool {
				return decoys[a].GlobalIndex < decoys[b].GlobalIndex
			})
			for _, decoy := range decoys {
				if uint64(input.out.GlobalOutputIndex) == decoy.GlobalIndex {
					continue
				}

				keyInfo.Outputs = append(keyInfo.Outputs, txbuilder.GlobalOutput{
					OutputIndex: uint32(decoy.GlobalIndex),
					TargetKey:   decoy.OutKey,
				})
				if uint64(len(keyInfo.Outputs)) >= mixin {
					break
				}
			}
		}

		insertAt := sort.Search(len(keyInfo.Outputs), func(j int) bool {
			return keyInfo.Outputs[j].OutputIndex >= input.out.GlobalOutputIndex
		})
		keyInfo.Outputs = append(keyInfo.Outputs, txbuilder.GlobalOutput{})
		copy(keyInfo.Outputs[insertAt+1:], keyInfo.Outputs[insertAt:])
		keyInfo.Outputs[insertAt] = txbuilder.GlobalOutput{
			OutputIndex: input.out.GlobalOutputIndex,
			TargetKey:   input.out.OutputKey,
		}

		keyInfo.RealOutput = txbuilder.RealOutput{
			TransactionPublicKey: input.out.TransactionPublicKey,
			TransactionIndex:     insertAt,
			OutputInTransaction:  input.out.OutputInTransaction,
		}

		keysInfo = append(keysInfo, inputInfo{
			keyInfo: keyInfo,
			wallet:  input.wallet,
		})
	}

	return keysInfo
}

// splitDestinations decomposes every destination amount, change last,
// into canonical denominations paired with their parsed receiver.
func (w *Wallet) splitDestinations(destinations []Transfer, change Transfer,
	dustThreshold uint64) ([]txbuilder.ReceiverAmounts, error) {

	decomposed := make([]txbuilder.ReceiverAmounts, 0, len(destinations)+1)
	for _, destination := range destinations {
		receiverAmounts, err := w.decomposeDestination(destination, dustThreshold)
		if err != nil {
			return nil, err
		}
		decomposed = append(decomposed, receiverAmounts)
	}

	changeAmounts, err := w.decomposeDestination(change, dustThreshold)
	if err != nil {
		return nil, err
	}
	return append(decomposed, changeAmounts), nil
}

func (w *Wallet) decomposeDestination(destination Transfer, dustThreshold uint64) (txbuilder.ReceiverAmounts, error) {
	receiver, ok := w.cfg.Currency.ParseAccountAddressString(destination.Address)
	if !ok {
		return txbuilder.ReceiverAmounts{}, walletError(ErrBadAddress,
			"invalid destination address "+destination.Address, nil)
	}

	return txbuilder.ReceiverAmounts{
		Receiver: receiver,
		Amounts: w.cfg.Currency.DecomposeAmount(
			uint64(destination.Amount), dustThreshold),
	}, nil
}

// makeTransaction drives the builder through its phases: outputs first,
// then unlock time and extra, then inputs, then one signature per input
// by the same index.
func (w *Wallet) makeTransaction(decomposed []txbuilder.ReceiverAmounts,
	keysInfo []inputInfo, extra []byte, unlockTimestamp uint64) (txbuilder.Transaction, error) {

	tx := w.cfg.NewTransaction()

	for _, output := range decomposed {
		for _, amount := range output.Amounts {
			if err := tx.AddOutput(amount, output.Receiver); err != nil {
				return nil, walletError(ErrInternalWalletError,
					"failed to add transaction output", err)
			}
		}
	}

	tx.SetUnlockTime(unlockTimestamp)
	if err := tx.AppendExtra(extra); err != nil {
		return nil, walletError(ErrInternalWalletError,
			"failed to append transaction extra", err)
	}

	for i := range keysInfo {
		ephKeys, err := tx.AddInput(w.makeAccountKeys(keysInfo[i].wallet),
			keysInfo[i].keyInfo)
		if err != nil {
			return nil, walletError(ErrInternalWalletError,
				"failed to add transaction input", err)
		}
		keysInfo[i].ephKeys = ephKeys
	}

	for i := range keysInfo {
		err := tx.SignInputKey(i, keysInfo[i].keyInfo, keysInfo[i].ephKeys)
		if err != nil {
			return nil, walletError(ErrInternalWalletError,
				"failed to sign transaction input", err)
		}
	}

	return tx, nil
}

// sendTransaction checks the built transaction against the network's
// relay rules and submits it through the node, waiting for the relay to
// complete.
func (w *Wallet) sendTransaction(tx txbuilder.Transaction) error {
	raw, err := tx.Bytes()
	if err != nil {
		return walletError(ErrInternalWalletError,
			"transaction serialization failed", err)
	}

	if uint64(len(raw)) > w.cfg.Currency.MaxTransactionSizeLimit() {
		return walletError(ErrTransactionSizeTooBig,
			"transaction exceeds network size limit", nil)
	}

	parsed, err := chain.NewTransactionFromBytes(raw)
	if err != nil {
		return walletError(ErrInternalWalletError,
			"built transaction failed to reparse", err)
	}

	if err := w.checkStopped(); err != nil {
		return err
	}

	errC := make(chan error, 1)
	w.cfg.Node.RelayTransaction(parsed, func(err error) {
		errC <- err
	})
	if err := <-errC; err != nil {
		return walletError(ErrNodeFailure, "transaction relay failed", err)
	}

	return nil
}

// makeAccountKeys assembles the sending key material for one wallet: its
// spend keys together with the wallet-wide view keys.
func (w *Wallet) makeAccountKeys(rec *walletRecord) txbuilder.AccountKeys {
	return txbuilder.AccountKeys{
		Address: cnutil.AccountAddress{
			SpendPublicKey: rec.spendKeys.PublicKey,
			ViewPublicKey:  w.viewKeys.PublicKey,
		},
		SpendSecretKey: rec.spendKeys.SecretKey,
		ViewSecretKey:  w.viewKeys.SecretKey,
	}
}

// insertOutgoingTransaction appends the ledger entry for a freshly built
// transaction.  It enters the ledger as failed and is flipped to
// succeeded once the relay goes through.
func (w *Wallet) insertOutgoingTransaction(hash cnutil.Hash, totalAmount int64,
	fee uint64, extra []byte, unlockTimestamp uint64) int {

	return w.ledger.append(Transaction{
		State:        TxFailed,
		Hash:         hash,
		TotalAmount:  totalAmount,
		Fee:          fee,
		CreationTime: uint64(w.cfg.Clock.Now().Unix()),
		Timestamp:    0,
		BlockHeight:  UnconfirmedHeight,
		UnlockTime:   unlockTimestamp,
		Extra:        extra,
	})
}

// appendOutgoingTransfers records the destination rows of an outgoing
// transaction with negated amounts.
func (w *Wallet) appendOutgoingTransfers(txIndex int, destinations []Transfer) {
	transfers := make([]Transfer, 0, len(destinations))
	for _, destination := range destinations {
		transfers = append(transfers, Transfer{
			Address: destination.Address,
			Amount:  -destination.Amount,
		})
	}
	w.ledger.appendTransfers(txIndex, transfers)
}

// markOutputsSpent reserves every selected output against the spending
// transaction.
func (w *Wallet) markOutputsSpent(spendingHash cnutil.Hash, selected []outputToSpend) {
	for _, input := range selected {
		w.spent.reserve(spentOutput{
			amount:              input.out.Amount,
			transactionHash:     input.out.TransactionHash,
			outputInTransaction: input.out.OutputInTransaction,
			spendPublicKey:      input.wallet.spendKeys.PublicKey,
			spendingHash:        spendingHash,
		})
	}
}

// updateUsedWalletsBalances refreshes the balances of every wallet that
// contributed an input.  The change recipient is always included since
// the new change entry raises its pending balance.
func (w *Wallet) updateUsedWalletsBalances(selected []outputToSpend) {
	affected := fn.NewSet[cnutil.PublicKey]()

	if changeRec, ok := w.wallets.at(0); ok {
		affected.Add(changeRec.spendKeys.PublicKey)
	}
	for _, input := range selected {
		affected.Add(input.wallet.spendKeys.PublicKey)
	}

	w.refreshBalances(affected)
}
