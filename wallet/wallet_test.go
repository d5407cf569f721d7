// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cnsuite/cnwallet/cnutil"
)

func TestInitializeTwiceFails(t *testing.T) {
	h := newTestHarness(t)

	err := h.w.Initialize("other")
	require.True(t, IsError(err, ErrAlreadyInitialized))
}

func TestOperationsRequireInitialization(t *testing.T) {
	h := newTestHarness(t)
	require.NoError(t, h.w.Shutdown())

	_, err := h.w.AddressCount()
	require.True(t, IsError(err, ErrNotInitialized))

	_, err = h.w.CreateAddress()
	require.True(t, IsError(err, ErrNotInitialized))

	_, err = h.w.ActualBalance()
	require.True(t, IsError(err, ErrNotInitialized))

	_, err = h.w.GetEvent()
	require.True(t, IsError(err, ErrNotInitialized))
}

func TestCreateAddress(t *testing.T) {
	h := newTestHarness(t)

	address, err := h.w.CreateAddress()
	require.NoError(t, err)

	count, err := h.w.AddressCount()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err := h.w.Address(0)
	require.NoError(t, err)
	require.Equal(t, address, got)

	// The address must round-trip through the codec.
	pubAddr, ok := h.w.cfg.Currency.ParseAccountAddressString(address)
	require.True(t, ok)
	require.Equal(t, h.w.viewKeys.PublicKey, pubAddr.ViewPublicKey)

	// The first address subscribes without pausing the synchronizer;
	// later ones pause and resume around the subscription.
	require.Equal(t, 0, h.sync.stopCount)
	require.Equal(t, 1, h.sync.startCount)

	_, err = h.w.CreateAddress()
	require.NoError(t, err)
	require.Equal(t, 1, h.sync.stopCount)
	require.Equal(t, 2, h.sync.startCount)
}

func TestCreateAddressFromImportedKey(t *testing.T) {
	h := newTestHarness(t)

	spendKeys, err := cnutil.GenerateKeyPair()
	require.NoError(t, err)

	address, err := h.w.CreateAddressFromKey(spendKeys)
	require.NoError(t, err)

	pubAddr, ok := h.w.cfg.Currency.ParseAccountAddressString(address)
	require.True(t, ok)
	require.Equal(t, spendKeys.PublicKey, pubAddr.SpendPublicKey)
}

func TestAddressIndexOutOfRange(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.w.Address(0)
	require.True(t, IsError(err, ErrInvalidArgument))

	_, err = h.w.Address(-1)
	require.True(t, IsError(err, ErrInvalidArgument))
}

func TestDeleteAddress(t *testing.T) {
	h := newTestHarness(t)

	rec, container := h.createAddress(t)
	_, _ = h.createAddress(t)
	h.fundAddress(rec, container, output(50000, 1, 0))

	actual, err := h.w.ActualBalance()
	require.NoError(t, err)
	require.Equal(t, uint64(50000), actual)

	address := h.w.recordAddress(rec)

	startsBefore := h.sync.startCount
	require.NoError(t, h.w.DeleteAddress(address))

	// The deleted address's cached balance leaves the totals and its
	// subscription is removed.  Scanning resumes for the remaining
	// address.
	actual, err = h.w.ActualBalance()
	require.NoError(t, err)
	require.Zero(t, actual)

	count, err := h.w.AddressCount()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.Len(t, h.sync.Subscriptions(), 1)
	require.Equal(t, startsBefore+1, h.sync.startCount)
}

func TestDeleteLastAddressLeavesSyncStopped(t *testing.T) {
	h := newTestHarness(t)

	rec, _ := h.createAddress(t)
	address := h.w.recordAddress(rec)

	startsBefore := h.sync.startCount
	require.NoError(t, h.w.DeleteAddress(address))
	require.Equal(t, startsBefore, h.sync.startCount)
}

func TestDeleteAddressUnknown(t *testing.T) {
	h := newTestHarness(t)

	err := h.w.DeleteAddress("not an address")
	require.True(t, IsError(err, ErrBadAddress))

	// A valid address of a foreign wallet is rejected too.
	spendKeys, err := cnutil.GenerateKeyPair()
	require.NoError(t, err)
	foreign := h.w.cfg.Currency.AccountAddressAsString(cnutil.AccountAddress{
		SpendPublicKey: spendKeys.PublicKey,
		ViewPublicKey:  h.w.viewKeys.PublicKey,
	})
	err = h.w.DeleteAddress(foreign)
	require.True(t, IsError(err, ErrBadAddress))
}

func TestShutdownClearsState(t *testing.T) {
	h := newTestHarness(t)

	rec, container := h.createAddress(t)
	h.fundAddress(rec, container, output(50000, 1, 0))
	h.w.events.push(Event{Type: BalanceUnlocked, TransactionIndex: -1})

	require.NoError(t, h.w.Shutdown())

	require.Zero(t, h.w.wallets.count())
	require.Zero(t, h.w.ledger.count())
	require.Zero(t, h.w.actualBalance)
	require.Zero(t, h.w.pendingBalance)
	require.Empty(t, h.sync.Subscriptions())
	require.Equal(t, stateNotInitialized, h.w.state)

	// A fresh Initialize works after a shutdown.
	require.NoError(t, h.w.Initialize("again"))
}

func TestStopCancelsGetEvent(t *testing.T) {
	h := newTestHarness(t)

	done := make(chan error, 1)
	go func() {
		_, err := h.w.GetEvent()
		done <- err
	}()

	h.w.Stop()
	err := <-done
	require.True(t, IsError(err, ErrOperationCancelled))

	// Operations fail while stopped.
	_, err = h.w.AddressCount()
	require.True(t, IsError(err, ErrOperationCancelled))
}

func TestEventsSurviveStop(t *testing.T) {
	h := newTestHarness(t)

	h.w.events.push(Event{Type: BalanceUnlocked, TransactionIndex: -1})
	h.w.Stop()

	_, err := h.w.GetEvent()
	require.True(t, IsError(err, ErrOperationCancelled))

	// After a restart the queued event is still there.
	h.w.Start()
	ev, err := h.w.GetEvent()
	require.NoError(t, err)
	require.Equal(t, BalanceUnlocked, ev.Type)
	require.Equal(t, -1, ev.TransactionIndex)
}

func TestChangePassword(t *testing.T) {
	h := newTestHarness(t)

	err := h.w.ChangePassword("wrong", "new")
	require.True(t, IsError(err, ErrWrongPassword))

	require.NoError(t, h.w.ChangePassword("passphrase", "new"))
	require.NoError(t, h.w.ChangePassword("new", "newer"))
}

func TestTransactionAccessors(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.w.Transaction(0)
	require.True(t, IsError(err, ErrInvalidArgument))

	_, err = h.w.TransactionTransferCount(0)
	require.True(t, IsError(err, ErrInvalidArgument))

	h.w.mtx.Lock()
	txIndex := h.w.ledger.append(Transaction{
		State: TxSucceeded,
		Hash:  testHash(9),
	})
	h.w.ledger.appendTransfers(txIndex, []Transfer{
		{Address: "a", Amount: -10},
		{Address: "b", Amount: -20},
	})
	h.w.mtx.Unlock()

	tx, err := h.w.Transaction(txIndex)
	require.NoError(t, err)
	require.Equal(t, testHash(9), tx.Hash)

	n, err := h.w.TransactionTransferCount(txIndex)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	tr, err := h.w.TransactionTransfer(txIndex, 1)
	require.NoError(t, err)
	require.Equal(t, Transfer{Address: "b", Amount: -20}, tr)

	_, err = h.w.TransactionTransfer(txIndex, 2)
	require.True(t, IsError(err, ErrInvalidArgument))
}
