// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cnsuite/cnwallet/chain"
	"github.com/cnsuite/cnwallet/cnutil"
)

// foreignAddress returns a valid address belonging to some other wallet.
func (h *testHarness) foreignAddress(t *testing.T) string {
	t.Helper()

	spendKeys, err := cnutil.GenerateKeyPair()
	require.NoError(t, err)
	viewKeys, err := cnutil.GenerateKeyPair()
	require.NoError(t, err)

	return h.w.cfg.Currency.AccountAddressAsString(cnutil.AccountAddress{
		SpendPublicKey: spendKeys.PublicKey,
		ViewPublicKey:  viewKeys.PublicKey,
	})
}

func TestTransfer(t *testing.T) {
	h := newTestHarness(t)

	rec, container := h.createAddress(t)
	h.fundAddress(rec, container, output(30000, 1, 0), output(40000, 2, 0))

	dest := h.foreignAddress(t)
	txIndex, err := h.w.Transfer([]Transfer{{Address: dest, Amount: 50000}},
		500, 3, []byte{0xde, 0xad}, 0)
	require.NoError(t, err)

	tx, err := h.w.Transaction(txIndex)
	require.NoError(t, err)
	require.Equal(t, TxSucceeded, tx.State)
	require.Equal(t, int64(-50500), tx.TotalAmount)
	require.Equal(t, uint64(500), tx.Fee)
	require.Equal(t, uint64(testStartTime.Unix()), tx.CreationTime)
	require.Equal(t, UnconfirmedHeight, tx.BlockHeight)
	require.Equal(t, []byte{0xde, 0xad}, tx.Extra)

	n, err := h.w.TransactionTransferCount(txIndex)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	tr, err := h.w.TransactionTransfer(txIndex, 0)
	require.NoError(t, err)
	require.Equal(t, Transfer{Address: dest, Amount: -50000}, tr)

	// Both inputs are reserved and the change is tracked against the
	// transaction until it confirms.
	require.True(t, h.w.spent.isReserved(testHash(1), 0))
	require.True(t, h.w.spent.isReserved(testHash(2), 0))
	require.Equal(t, uint64(19500), h.w.change[tx.Hash])

	actual, err := h.w.ActualBalance()
	require.NoError(t, err)
	require.Zero(t, actual)
	pending, err := h.w.PendingBalance()
	require.NoError(t, err)
	require.Equal(t, uint64(19500), pending)

	// The relayed transaction carries decomposed outputs totalling the
	// destination plus change, one ring per input with the real output
	// spliced in, and a signature per input.
	require.Len(t, h.node.relayed, 1)
	var outSum uint64
	for _, amount := range h.lastTx.outputs {
		outSum += amount
	}
	require.Equal(t, uint64(69500), outSum)
	require.Len(t, h.lastTx.inputs, 2)
	for _, input := range h.lastTx.inputs {
		require.Len(t, input.Outputs, 4)
		real := input.Outputs[input.RealOutput.TransactionIndex]
		require.True(t, real.OutputIndex == 10 || real.OutputIndex == 20)
		for i := 1; i < len(input.Outputs); i++ {
			require.Less(t, input.Outputs[i-1].OutputIndex,
				input.Outputs[i].OutputIndex)
		}
	}
	require.Equal(t, 2, h.lastTx.signed)
	require.Equal(t, []byte{0xde, 0xad}, h.lastTx.extra)

	ev := h.nextEvent(t)
	require.Equal(t, TransactionCreated, ev.Type)
	require.Equal(t, txIndex, ev.TransactionIndex)
}

func TestTransferRelayFailure(t *testing.T) {
	h := newTestHarness(t)

	rec, container := h.createAddress(t)
	h.fundAddress(rec, container, output(70000, 1, 0))
	h.node.relayErr = errMock

	dest := h.foreignAddress(t)
	_, err := h.w.Transfer([]Transfer{{Address: dest, Amount: 50000}},
		500, 0, nil, 0)
	require.True(t, IsError(err, ErrNodeFailure))

	// The failed attempt stays in the ledger but nothing is reserved, so
	// the funds remain spendable.
	count, err := h.w.TransactionCount()
	require.NoError(t, err)
	require.Equal(t, 1, count)
	tx, err := h.w.Transaction(0)
	require.NoError(t, err)
	require.Equal(t, TxFailed, tx.State)

	require.False(t, h.w.spent.isReserved(testHash(1), 0))
	require.Empty(t, h.w.change)

	actual, err := h.w.ActualBalance()
	require.NoError(t, err)
	require.Equal(t, uint64(70000), actual)

	ev := h.nextEvent(t)
	require.Equal(t, TransactionCreated, ev.Type)
	require.Equal(t, 0, ev.TransactionIndex)
}

func TestTransferValidation(t *testing.T) {
	h := newTestHarness(t)

	rec, container := h.createAddress(t)
	h.fundAddress(rec, container, output(70000, 1, 0))

	dest := h.foreignAddress(t)

	_, err := h.w.Transfer(nil, 500, 0, nil, 0)
	require.True(t, IsError(err, ErrZeroDestination))

	_, err = h.w.Transfer([]Transfer{{Address: "garbage", Amount: 100}},
		500, 0, nil, 0)
	require.True(t, IsError(err, ErrBadAddress))

	_, err = h.w.Transfer([]Transfer{{Address: dest, Amount: 0}},
		500, 0, nil, 0)
	require.True(t, IsError(err, ErrZeroDestination))

	_, err = h.w.Transfer([]Transfer{{Address: dest, Amount: -5}},
		500, 0, nil, 0)
	require.True(t, IsError(err, ErrInvalidArgument))

	_, err = h.w.Transfer([]Transfer{
		{Address: dest, Amount: math.MaxInt64},
		{Address: dest, Amount: math.MaxInt64},
	}, 10, 0, nil, 0)
	require.True(t, IsError(err, ErrSumOverflow))

	_, err = h.w.Transfer([]Transfer{{Address: dest, Amount: 80000}},
		500, 0, nil, 0)
	require.True(t, IsError(err, ErrWrongAmount))

	// Nothing reached the ledger or the node.
	count, err := h.w.TransactionCount()
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, h.node.relayed)
}

func TestTransferMixinShortfall(t *testing.T) {
	h := newTestHarness(t)

	rec, container := h.createAddress(t)
	h.fundAddress(rec, container, output(70000, 1, 0))

	h.node.randomOuts = func(amounts []uint64, count uint64) []chain.RandomAmountOuts {
		return fullDecoys(amounts, count-1)
	}

	dest := h.foreignAddress(t)
	_, err := h.w.Transfer([]Transfer{{Address: dest, Amount: 50000}},
		500, 3, nil, 0)
	require.True(t, IsError(err, ErrMixinCountTooBig))
}

func TestTransferDecoyRequestFailure(t *testing.T) {
	h := newTestHarness(t)

	rec, container := h.createAddress(t)
	h.fundAddress(rec, container, output(70000, 1, 0))
	h.node.randomErr = errMock

	dest := h.foreignAddress(t)
	_, err := h.w.Transfer([]Transfer{{Address: dest, Amount: 50000}},
		500, 3, nil, 0)
	require.True(t, IsError(err, ErrNodeFailure))
}

func TestTransferSizeLimit(t *testing.T) {
	h := newTestHarness(t)

	rec, container := h.createAddress(t)
	h.fundAddress(rec, container, output(70000, 1, 0))
	h.txPadding = int(h.w.cfg.Currency.MaxTransactionSizeLimit())

	dest := h.foreignAddress(t)
	_, err := h.w.Transfer([]Transfer{{Address: dest, Amount: 50000}},
		500, 0, nil, 0)
	require.True(t, IsError(err, ErrTransactionSizeTooBig))

	// The oversized transaction never reached the node.
	require.Empty(t, h.node.relayed)
}

func TestTransferUnmixedSpendsDust(t *testing.T) {
	h := newTestHarness(t)

	rec, container := h.createAddress(t)
	h.fundAddress(rec, container, output(5000, 1, 0), output(50000, 2, 0))

	dest := h.foreignAddress(t)
	txIndex, err := h.w.Transfer([]Transfer{{Address: dest, Amount: 52000}},
		0, 0, nil, 0)
	require.NoError(t, err)

	// Unmixed transactions skip the decoy request entirely and may spend
	// dust denominations.
	require.Zero(t, h.node.randomCalls)

	tx, err := h.w.Transaction(txIndex)
	require.NoError(t, err)
	require.Equal(t, TxSucceeded, tx.State)
	require.Equal(t, uint64(3000), h.w.change[tx.Hash])

	require.Len(t, h.lastTx.inputs, 2)
	for _, input := range h.lastTx.inputs {
		require.Len(t, input.Outputs, 1)
		require.Equal(t, 0, input.RealOutput.TransactionIndex)
	}
}

func TestTransferMixedSkipsDust(t *testing.T) {
	h := newTestHarness(t)

	rec, container := h.createAddress(t)
	h.fundAddress(rec, container, output(5000, 1, 0), output(50000, 2, 0))

	// With a mixin the dust output cannot be ring-signed, so the needed
	// money cannot be gathered from the remaining outputs alone.
	dest := h.foreignAddress(t)
	_, err := h.w.Transfer([]Transfer{{Address: dest, Amount: 52000}},
		0, 3, nil, 0)
	require.True(t, IsError(err, ErrWrongAmount))
}

func TestTransferFrom(t *testing.T) {
	h := newTestHarness(t)

	_, _ = h.createAddress(t)
	recB, containerB := h.createAddress(t)
	h.fundAddress(recB, containerB, output(60000, 1, 0))

	addressB := h.w.recordAddress(recB)
	dest := h.foreignAddress(t)

	txIndex, err := h.w.TransferFrom(addressB,
		[]Transfer{{Address: dest, Amount: 50000}}, 500, 0, nil, 0)
	require.NoError(t, err)

	tx, err := h.w.Transaction(txIndex)
	require.NoError(t, err)
	require.Equal(t, TxSucceeded, tx.State)

	// The source address is fully committed while the change accrues to
	// the wallet's first address.
	actualB, err := h.w.AddressActualBalance(addressB)
	require.NoError(t, err)
	require.Zero(t, actualB)

	addressA, err := h.w.Address(0)
	require.NoError(t, err)
	pendingA, err := h.w.AddressPendingBalance(addressA)
	require.NoError(t, err)
	require.Equal(t, uint64(9500), pendingA)
}

func TestTransferFromEmptyAddress(t *testing.T) {
	h := newTestHarness(t)

	recA, containerA := h.createAddress(t)
	recB, _ := h.createAddress(t)
	h.fundAddress(recA, containerA, output(60000, 1, 0))

	dest := h.foreignAddress(t)

	// Money on other addresses does not fund a TransferFrom.
	_, err := h.w.TransferFrom(h.w.recordAddress(recB),
		[]Transfer{{Address: dest, Amount: 10000}}, 500, 0, nil, 0)
	require.True(t, IsError(err, ErrWrongAmount))

	_, err = h.w.TransferFrom("garbage",
		[]Transfer{{Address: dest, Amount: 10000}}, 500, 0, nil, 0)
	require.True(t, IsError(err, ErrBadAddress))
}

func TestTransferSkipsReservedOutputs(t *testing.T) {
	h := newTestHarness(t)

	rec, container := h.createAddress(t)
	h.fundAddress(rec, container, output(30000, 1, 0), output(40000, 2, 0))

	dest := h.foreignAddress(t)
	_, err := h.w.Transfer([]Transfer{{Address: dest, Amount: 60000}},
		0, 0, nil, 0)
	require.NoError(t, err)

	// Everything is committed to the pending transaction, so a second
	// spend cannot gather any money even though the container still
	// reports the outputs.
	_, err = h.w.Transfer([]Transfer{{Address: dest, Amount: 1000}},
		0, 0, nil, 0)
	require.True(t, IsError(err, ErrWrongAmount))
}
