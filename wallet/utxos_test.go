// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cnsuite/cnwallet/chain"
)

const testDustThreshold = 10000

// selectionPool builds a single-wallet funding pool from the given
// outputs.
func selectionPool(rec *walletRecord, outs ...chain.TransactionOutput) []walletOuts {
	return []walletOuts{{wallet: rec, outs: outs}}
}

func TestSelectOutputsGathersEnough(t *testing.T) {
	h := newTestHarness(t)
	rec, _ := h.createAddress(t)

	pool := selectionPool(rec, output(30000, 1, 0), output(40000, 2, 0))
	selected, found := h.w.selectOutputs(50000, false, testDustThreshold,
		pool, rand.New(rand.NewSource(1)))

	require.Equal(t, uint64(70000), found)
	require.Len(t, selected, 2)
	for _, input := range selected {
		require.Same(t, rec, input.wallet)
	}
}

func TestSelectOutputsSkipsReserved(t *testing.T) {
	h := newTestHarness(t)
	rec, _ := h.createAddress(t)

	reserved := output(30000, 1, 0)
	h.w.spent.reserve(spentOutput{
		amount:              reserved.Amount,
		transactionHash:     reserved.TransactionHash,
		outputInTransaction: reserved.OutputInTransaction,
		spendPublicKey:      rec.spendKeys.PublicKey,
		spendingHash:        testHash(9),
	})

	pool := selectionPool(rec, reserved, output(40000, 2, 0))
	selected, found := h.w.selectOutputs(40000, false, testDustThreshold,
		pool, rand.New(rand.NewSource(1)))

	require.Equal(t, uint64(40000), found)
	require.Len(t, selected, 1)
	require.Equal(t, uint64(40000), selected[0].out.Amount)

	// With the reservation in place the pool cannot cover a larger
	// spend.
	pool = selectionPool(rec, reserved, output(40000, 2, 0))
	_, found = h.w.selectOutputs(60000, false, testDustThreshold,
		pool, rand.New(rand.NewSource(1)))
	require.Equal(t, uint64(40000), found)
}

func TestSelectOutputsDustOnlyOnce(t *testing.T) {
	h := newTestHarness(t)
	rec, _ := h.createAddress(t)

	// Two dust coins are available but at most one may be taken; the
	// target is unreachable either way.
	pool := selectionPool(rec, output(5000, 1, 0), output(6000, 2, 0),
		output(50000, 3, 0))
	selected, found := h.w.selectOutputs(60000, true, testDustThreshold,
		pool, rand.New(rand.NewSource(1)))

	require.Less(t, found, uint64(60000))
	var dustCount int
	for _, input := range selected {
		if input.out.Amount <= testDustThreshold {
			dustCount++
		}
	}
	require.Equal(t, 1, dustCount)
}

func TestSelectOutputsDustIneligibleWhenMixed(t *testing.T) {
	h := newTestHarness(t)
	rec, _ := h.createAddress(t)

	pool := selectionPool(rec, output(5000, 1, 0), output(50000, 2, 0))
	selected, found := h.w.selectOutputs(52000, false, testDustThreshold,
		pool, rand.New(rand.NewSource(1)))

	require.Equal(t, uint64(50000), found)
	require.Len(t, selected, 1)
}

func TestSelectOutputsSweepsOneDustCoin(t *testing.T) {
	h := newTestHarness(t)
	rec, _ := h.createAddress(t)

	// Whether the dust is hit during the random walk or by the final
	// sweep, exactly one dust coin rides along with the spend.
	pool := selectionPool(rec, output(60000, 1, 0))
	pool = append(pool, walletOuts{
		wallet: rec,
		outs:   []chain.TransactionOutput{output(5000, 2, 0)},
	})
	selected, found := h.w.selectOutputs(60000, true, testDustThreshold,
		pool, rand.New(rand.NewSource(1)))

	require.Equal(t, uint64(65000), found)
	require.Len(t, selected, 2)
}

func TestSelectOutputsExhaustsPool(t *testing.T) {
	h := newTestHarness(t)
	rec, _ := h.createAddress(t)

	pool := selectionPool(rec, output(15000, 1, 0), output(15000, 2, 0))
	selected, found := h.w.selectOutputs(50000, false, testDustThreshold,
		pool, rand.New(rand.NewSource(1)))

	require.Equal(t, uint64(30000), found)
	require.Len(t, selected, 2)
}
