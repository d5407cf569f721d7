// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/cnsuite/cnwallet/chain"
	"github.com/cnsuite/cnwallet/cnutil"
	"github.com/cnsuite/cnwallet/currency"
	"github.com/cnsuite/cnwallet/txbuilder"
)

// errMock stands in for any backend failure.
var errMock = errors.New("mock failure")

// mockContainer is a transfers container whose outputs and balances are
// set directly by the test.
type mockContainer struct {
	outputs  []chain.TransactionOutput
	unlocked uint64
	locked   uint64

	txInfo    map[cnutil.Hash]chain.TransactionInformation
	txBalance map[cnutil.Hash]int64
}

func newMockContainer() *mockContainer {
	return &mockContainer{
		txInfo:    make(map[cnutil.Hash]chain.TransactionInformation),
		txBalance: make(map[cnutil.Hash]int64),
	}
}

func (c *mockContainer) Outputs(flags chain.OutputFlags) []chain.TransactionOutput {
	outs := make([]chain.TransactionOutput, len(c.outputs))
	copy(outs, c.outputs)
	return outs
}

func (c *mockContainer) Balance(flags chain.BalanceFlags) uint64 {
	switch {
	case flags&chain.IncludeAllUnlocked != 0:
		return c.unlocked
	case flags&chain.IncludeAllLocked != 0:
		return c.locked
	}
	return 0
}

func (c *mockContainer) TransactionInformation(hash cnutil.Hash) (chain.TransactionInformation, int64, bool) {
	info, ok := c.txInfo[hash]
	if !ok {
		return chain.TransactionInformation{}, 0, false
	}
	return info, c.txBalance[hash], true
}

// setTransaction records a transaction the container should report.
func (c *mockContainer) setTransaction(info chain.TransactionInformation, balance int64) {
	c.txInfo[info.TransactionHash] = info
	c.txBalance[info.TransactionHash] = balance
}

// mockSubscription pairs a mock container with its registered observers.
type mockSubscription struct {
	container *mockContainer
	observers []chain.SubscriptionObserver
}

func (s *mockSubscription) Container() chain.TransfersContainer {
	return s.container
}

func (s *mockSubscription) AddObserver(observer chain.SubscriptionObserver) {
	s.observers = append(s.observers, observer)
}

// mockSynchronizer tracks subscriptions and start/stop calls.
type mockSynchronizer struct {
	mtx sync.Mutex

	subs      map[cnutil.AccountAddress]*mockSubscription
	order     []cnutil.AccountAddress
	observers []chain.SynchronizerObserver

	startCount int
	stopCount  int

	addErr error
}

func newMockSynchronizer() *mockSynchronizer {
	return &mockSynchronizer{
		subs: make(map[cnutil.AccountAddress]*mockSubscription),
	}
}

func (s *mockSynchronizer) AddSubscription(sub chain.AccountSubscription) (chain.Subscription, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.addErr != nil {
		return nil, s.addErr
	}

	if existing, ok := s.subs[sub.Address]; ok {
		return existing, nil
	}

	msub := &mockSubscription{container: newMockContainer()}
	s.subs[sub.Address] = msub
	s.order = append(s.order, sub.Address)
	return msub, nil
}

func (s *mockSynchronizer) RemoveSubscription(address cnutil.AccountAddress) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	delete(s.subs, address)
	for i, addr := range s.order {
		if addr == address {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *mockSynchronizer) Subscriptions() []cnutil.AccountAddress {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	addrs := make([]cnutil.AccountAddress, len(s.order))
	copy(addrs, s.order)
	return addrs
}

func (s *mockSynchronizer) AddObserver(observer chain.SynchronizerObserver) {
	s.observers = append(s.observers, observer)
}

func (s *mockSynchronizer) RemoveObserver(observer chain.SynchronizerObserver) {
	for i, o := range s.observers {
		if o == observer {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			break
		}
	}
}

func (s *mockSynchronizer) Start() {
	s.mtx.Lock()
	s.startCount++
	s.mtx.Unlock()
}

func (s *mockSynchronizer) Stop() {
	s.mtx.Lock()
	s.stopCount++
	s.mtx.Unlock()
}

// subscriptionFor returns the mock subscription created for the given
// spend key.
func (s *mockSynchronizer) subscriptionFor(t *testing.T, w *Wallet,
	spendKey cnutil.PublicKey) *mockSubscription {

	t.Helper()

	s.mtx.Lock()
	defer s.mtx.Unlock()

	for addr, sub := range s.subs {
		if addr.SpendPublicKey == spendKey {
			return sub
		}
	}
	t.Fatalf("no subscription for spend key %v", spendKey)
	return nil
}

// mockNode serves canned decoy responses and records relayed
// transactions.
type mockNode struct {
	mtx sync.Mutex

	relayed  []*chain.Transaction
	relayErr error

	randomCalls int
	randomOuts  func(amounts []uint64, count uint64) []chain.RandomAmountOuts
	randomErr   error
}

func newMockNode() *mockNode {
	return &mockNode{}
}

func (n *mockNode) RelayTransaction(tx *chain.Transaction, done func(err error)) {
	n.mtx.Lock()
	n.relayed = append(n.relayed, tx)
	err := n.relayErr
	n.mtx.Unlock()

	done(err)
}

func (n *mockNode) RandomOutputsByAmounts(amounts []uint64, count uint64,
	done func(outs []chain.RandomAmountOuts, err error)) {

	n.mtx.Lock()
	n.randomCalls++
	n.mtx.Unlock()

	if n.randomErr != nil {
		done(nil, n.randomErr)
		return
	}

	gen := n.randomOuts
	if gen == nil {
		gen = fullDecoys
	}
	done(gen(amounts, count), nil)
}

// fullDecoys returns count decoys for every amount with distinct global
// indexes.
func fullDecoys(amounts []uint64, count uint64) []chain.RandomAmountOuts {
	result := make([]chain.RandomAmountOuts, 0, len(amounts))
	for _, amount := range amounts {
		outs := make([]chain.RandomOut, 0, count)
		for i := uint64(0); i < count; i++ {
			outs = append(outs, chain.RandomOut{
				// Global indexes far from any real output used in
				// the tests.
				GlobalIndex: 1000 + i,
				OutKey:      testKey(byte(i + 1)),
			})
		}
		result = append(result, chain.RandomAmountOuts{
			Amount: amount,
			Outs:   outs,
		})
	}
	return result
}

// fakeTransaction is a txbuilder.Transaction that records the builder
// calls and serializes to a parseable stub.
type fakeTransaction struct {
	outputs    []uint64
	receivers  []cnutil.AccountAddress
	inputs     []txbuilder.InputKeyInfo
	signed     int
	unlockTime uint64
	extra      []byte

	padding int
	addErr  error
}

func (tx *fakeTransaction) AddOutput(amount uint64, receiver cnutil.AccountAddress) error {
	if tx.addErr != nil {
		return tx.addErr
	}
	tx.outputs = append(tx.outputs, amount)
	tx.receivers = append(tx.receivers, receiver)
	return nil
}

func (tx *fakeTransaction) AddInput(senderKeys txbuilder.AccountKeys,
	info txbuilder.InputKeyInfo) (txbuilder.EphemeralKeys, error) {

	tx.inputs = append(tx.inputs, info)
	return txbuilder.EphemeralKeys{}, nil
}

func (tx *fakeTransaction) SetUnlockTime(unlockTime uint64) {
	tx.unlockTime = unlockTime
}

func (tx *fakeTransaction) AppendExtra(extra []byte) error {
	tx.extra = append(tx.extra, extra...)
	return nil
}

func (tx *fakeTransaction) SignInputKey(index int, info txbuilder.InputKeyInfo,
	eph txbuilder.EphemeralKeys) error {

	tx.signed++
	return nil
}

func (tx *fakeTransaction) Hash() cnutil.Hash {
	digest := sha256.New()
	for _, amount := range tx.outputs {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], amount)
		digest.Write(b[:])
	}
	for _, input := range tx.inputs {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], input.Amount)
		digest.Write(b[:])
	}
	digest.Write(tx.extra)

	var hash cnutil.Hash
	copy(hash[:], digest.Sum(nil))
	return hash
}

func (tx *fakeTransaction) Bytes() ([]byte, error) {
	raw := []byte{0x01}
	hash := tx.Hash()
	raw = append(raw, hash[:]...)
	raw = append(raw, make([]byte, tx.padding)...)
	return raw, nil
}

func (tx *fakeTransaction) Extra() []byte {
	return tx.extra
}

// testKey returns a public key filled with the given byte.
func testKey(b byte) cnutil.PublicKey {
	var key cnutil.PublicKey
	for i := range key {
		key[i] = b
	}
	return key
}

func testHash(b byte) cnutil.Hash {
	var hash cnutil.Hash
	for i := range hash {
		hash[i] = b
	}
	return hash
}

// testHarness bundles a wallet with its mock collaborators.
type testHarness struct {
	w     *Wallet
	sync  *mockSynchronizer
	node  *mockNode
	clock *clock.TestClock

	// lastTx is the transaction most recently produced by the factory;
	// txPadding inflates the size of every transaction it builds.
	lastTx    *fakeTransaction
	txPadding int
}

var testStartTime = time.Unix(1700000000, 0)

// newTestHarness returns an initialized wallet against mock backends.
func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{
		sync:  newMockSynchronizer(),
		node:  newMockNode(),
		clock: clock.NewTestClock(testStartTime),
	}
	h.w = New(Config{
		Currency:     currency.MainNet(),
		Synchronizer: h.sync,
		Node:         h.node,
		NewTransaction: func() txbuilder.Transaction {
			h.lastTx = &fakeTransaction{padding: h.txPadding}
			return h.lastTx
		},
		Clock: h.clock,
	})

	require.NoError(t, h.w.Initialize("passphrase"))
	return h
}

// createAddress adds a fresh address and returns its record together
// with the backing mock container.
func (h *testHarness) createAddress(t *testing.T) (*walletRecord, *mockContainer) {
	t.Helper()

	address, err := h.w.CreateAddress()
	require.NoError(t, err)

	pubAddr, ok := h.w.cfg.Currency.ParseAccountAddressString(address)
	require.True(t, ok)

	rec, ok := h.w.wallets.lookup(pubAddr.SpendPublicKey)
	require.True(t, ok)

	sub := h.sync.subscriptionFor(t, h.w, rec.spendKeys.PublicKey)
	return rec, sub.container
}

// fundAddress gives the record's container the given unlocked outputs
// and refreshes the cached balances.
func (h *testHarness) fundAddress(rec *walletRecord, container *mockContainer,
	outs ...chain.TransactionOutput) {

	var total uint64
	for _, out := range outs {
		total += out.Amount
	}
	container.outputs = append(container.outputs, outs...)
	container.unlocked += total

	h.w.mtx.Lock()
	h.w.updateBalance(rec)
	h.w.mtx.Unlock()
}

// nextEvent pops one queued event, blocking until one is available.
func (h *testHarness) nextEvent(t *testing.T) Event {
	t.Helper()

	ev, ok := h.w.events.wait()
	require.True(t, ok)
	return ev
}

// output builds a spendable test output.
func output(amount uint64, txByte byte, index uint32) chain.TransactionOutput {
	return chain.TransactionOutput{
		Amount:               amount,
		GlobalOutputIndex:    uint32(txByte)*10 + index,
		OutputInTransaction:  index,
		TransactionHash:      testHash(txByte),
		TransactionPublicKey: testKey(txByte),
		OutputKey:            testKey(txByte + 1),
	}
}
