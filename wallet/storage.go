// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"math"
	"sort"

	"github.com/cnsuite/cnwallet/chain"
	"github.com/cnsuite/cnwallet/cnutil"
)

// UnconfirmedHeight is the block height recorded for a ledger entry that
// is not yet in a block.
const UnconfirmedHeight uint32 = math.MaxUint32

// TransactionState describes the lifecycle stage of a ledger entry.
type TransactionState int

const (
	// TxSucceeded marks a transaction that was relayed or seen on the
	// chain.
	TxSucceeded TransactionState = iota

	// TxFailed marks an outgoing transaction whose relay failed.  The
	// entry stays in the ledger but its inputs are not reserved.
	TxFailed

	// TxCancelled marks a transaction the chain dropped after the wallet
	// had recorded it.
	TxCancelled
)

// String returns the transaction state as a human-readable name.
func (s TransactionState) String() string {
	switch s {
	case TxSucceeded:
		return "Succeeded"
	case TxFailed:
		return "Failed"
	case TxCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

// Transaction is one entry of the wallet's transaction ledger.
type Transaction struct {
	State        TransactionState
	Hash         cnutil.Hash
	TotalAmount  int64
	Fee          uint64
	CreationTime uint64
	Timestamp    uint64
	BlockHeight  uint32
	UnlockTime   uint64
	Extra        []byte
}

// Transfer is one destination row of a ledger entry.  Outgoing transfers
// carry negative amounts; incoming transfers positive ones.
type Transfer struct {
	Address string
	Amount  int64
}

// walletRecord holds the per-address state: the spend key pair, the
// transfers container maintained by the synchronizer, and the cached
// balances derived from it.
type walletRecord struct {
	spendKeys         cnutil.KeyPair
	creationTimestamp uint64
	container         chain.TransfersContainer
	subscription      chain.Subscription
	actualBalance     uint64
	pendingBalance    uint64
}

// walletStore keeps wallet records in creation order with a spend-key
// index.  The record at index 0 receives all transaction change.
type walletStore struct {
	records []*walletRecord
	byKey   map[cnutil.PublicKey]*walletRecord
}

func newWalletStore() *walletStore {
	return &walletStore{
		byKey: make(map[cnutil.PublicKey]*walletRecord),
	}
}

func (s *walletStore) add(rec *walletRecord) {
	s.records = append(s.records, rec)
	s.byKey[rec.spendKeys.PublicKey] = rec
}

func (s *walletStore) lookup(spendKey cnutil.PublicKey) (*walletRecord, bool) {
	rec, ok := s.byKey[spendKey]
	return rec, ok
}

// lookupByContainer finds the record owning the given transfers
// container.
func (s *walletStore) lookupByContainer(container chain.TransfersContainer) (*walletRecord, bool) {
	for _, rec := range s.records {
		if rec.container == container {
			return rec, true
		}
	}
	return nil, false
}

func (s *walletStore) at(index int) (*walletRecord, bool) {
	if index < 0 || index >= len(s.records) {
		return nil, false
	}
	return s.records[index], true
}

func (s *walletStore) count() int {
	return len(s.records)
}

// remove erases the record with the given spend key, preserving the
// order of the remaining records.
func (s *walletStore) remove(spendKey cnutil.PublicKey) bool {
	rec, ok := s.byKey[spendKey]
	if !ok {
		return false
	}
	delete(s.byKey, spendKey)
	for i, r := range s.records {
		if r == rec {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	return true
}

// clear drops every record.
func (s *walletStore) clear() {
	s.records = nil
	s.byKey = make(map[cnutil.PublicKey]*walletRecord)
}

// transferEntry pins a transfer row to its ledger index.  Entries are
// kept sorted by transaction index; since rows are only appended when
// their entry enters the ledger, append order preserves the sort.
type transferEntry struct {
	txIndex  int
	transfer Transfer
}

// ledgerStore is the transaction ledger with its flattened transfer rows
// and a hash index.
type ledgerStore struct {
	txs       []Transaction
	byHash    map[cnutil.Hash]int
	transfers []transferEntry
}

func newLedgerStore() *ledgerStore {
	return &ledgerStore{
		byHash: make(map[cnutil.Hash]int),
	}
}

// append adds a transaction to the ledger and returns its index.
func (l *ledgerStore) append(tx Transaction) int {
	index := len(l.txs)
	l.txs = append(l.txs, tx)
	l.byHash[tx.Hash] = index
	return index
}

// indexOf returns the ledger index of the given hash.
func (l *ledgerStore) indexOf(hash cnutil.Hash) (int, bool) {
	index, ok := l.byHash[hash]
	return index, ok
}

// at returns a pointer into the ledger so handlers can update entries in
// place.
func (l *ledgerStore) at(index int) (*Transaction, bool) {
	if index < 0 || index >= len(l.txs) {
		return nil, false
	}
	return &l.txs[index], true
}

func (l *ledgerStore) count() int {
	return len(l.txs)
}

// appendTransfers adds the destination rows for the given ledger index.
func (l *ledgerStore) appendTransfers(txIndex int, transfers []Transfer) {
	for _, tr := range transfers {
		l.transfers = append(l.transfers, transferEntry{txIndex: txIndex, transfer: tr})
	}
}

// transferRange returns the positions of the first row belonging to
// txIndex and of the first row past it.
func (l *ledgerStore) transferRange(txIndex int) (int, int) {
	lo := sort.Search(len(l.transfers), func(i int) bool {
		return l.transfers[i].txIndex >= txIndex
	})
	hi := sort.Search(len(l.transfers), func(i int) bool {
		return l.transfers[i].txIndex > txIndex
	})
	return lo, hi
}

// transferCount returns the number of rows attached to txIndex.
func (l *ledgerStore) transferCount(txIndex int) int {
	lo, hi := l.transferRange(txIndex)
	return hi - lo
}

// transferAt returns the row at position transferIndex within txIndex.
func (l *ledgerStore) transferAt(txIndex, transferIndex int) (Transfer, bool) {
	lo, hi := l.transferRange(txIndex)
	if transferIndex < 0 || lo+transferIndex >= hi {
		return Transfer{}, false
	}
	return l.transfers[lo+transferIndex].transfer, true
}

// clear drops the ledger and its transfer rows.
func (l *ledgerStore) clear() {
	l.txs = nil
	l.transfers = nil
	l.byHash = make(map[cnutil.Hash]int)
}

// outputID identifies an output by the transaction that created it and
// its position inside that transaction.
type outputID struct {
	txHash cnutil.Hash
	index  uint32
}

// spentOutput is one reservation: an owned output committed to a pending
// outgoing transaction.  Reserved outputs are excluded from selection
// and subtracted from the owner's spendable balance until the synchronizer
// reports an update for the spending transaction.
type spentOutput struct {
	amount              uint64
	transactionHash     cnutil.Hash
	outputInTransaction uint32
	spendPublicKey      cnutil.PublicKey
	spendingHash        cnutil.Hash
}

// spentOutputSet keeps at most one reservation per output.
type spentOutputSet struct {
	outs map[outputID]spentOutput
}

func newSpentOutputSet() *spentOutputSet {
	return &spentOutputSet{outs: make(map[outputID]spentOutput)}
}

// reserve records an output as committed.  An existing reservation for
// the same output is left untouched.
func (s *spentOutputSet) reserve(out spentOutput) {
	id := outputID{txHash: out.transactionHash, index: out.outputInTransaction}
	if _, ok := s.outs[id]; ok {
		return
	}
	s.outs[id] = out
}

// sumForWallet returns the total reserved amount owned by the wallet
// with the given spend key.
func (s *spentOutputSet) sumForWallet(spendKey cnutil.PublicKey) uint64 {
	var sum uint64
	for _, out := range s.outs {
		if out.spendPublicKey == spendKey {
			sum += out.amount
		}
	}
	return sum
}

// isReserved reports whether the given output is committed to a pending
// transaction.
func (s *spentOutputSet) isReserved(txHash cnutil.Hash, index uint32) bool {
	_, ok := s.outs[outputID{txHash: txHash, index: index}]
	return ok
}

// releaseBySpendingHash drops every reservation committed to the given
// spending transaction and returns the owning spend keys.
func (s *spentOutputSet) releaseBySpendingHash(hash cnutil.Hash) []cnutil.PublicKey {
	var owners []cnutil.PublicKey
	for id, out := range s.outs {
		if out.spendingHash == hash {
			owners = append(owners, out.spendPublicKey)
			delete(s.outs, id)
		}
	}
	return owners
}

// purgeByWallet drops every reservation owned by the given spend key.
func (s *spentOutputSet) purgeByWallet(spendKey cnutil.PublicKey) {
	for id, out := range s.outs {
		if out.spendPublicKey == spendKey {
			delete(s.outs, id)
		}
	}
}

// clear drops all reservations.
func (s *spentOutputSet) clear() {
	s.outs = make(map[outputID]spentOutput)
}

// unlockJobKey identifies an unlock job: one wallet waiting on one
// transaction to mature.
type unlockJobKey struct {
	txHash   cnutil.Hash
	spendKey cnutil.PublicKey
}

// unlockSchedule tracks the heights at which recorded transactions
// unlock for their wallets.
type unlockSchedule struct {
	jobs map[unlockJobKey]uint32
}

func newUnlockSchedule() *unlockSchedule {
	return &unlockSchedule{jobs: make(map[unlockJobKey]uint32)}
}

// insert schedules an unlock, keeping an existing job for the same
// transaction and wallet untouched.
func (u *unlockSchedule) insert(txHash cnutil.Hash, spendKey cnutil.PublicKey, height uint32) {
	key := unlockJobKey{txHash: txHash, spendKey: spendKey}
	if _, ok := u.jobs[key]; ok {
		return
	}
	u.jobs[key] = height
}

// removeByHash drops every job waiting on the given transaction.
func (u *unlockSchedule) removeByHash(txHash cnutil.Hash) {
	for key := range u.jobs {
		if key.txHash == txHash {
			delete(u.jobs, key)
		}
	}
}

// popDue removes and returns the spend keys of every job whose height is
// at or below the given height.
func (u *unlockSchedule) popDue(height uint32) []cnutil.PublicKey {
	var due []cnutil.PublicKey
	for key, jobHeight := range u.jobs {
		if jobHeight <= height {
			due = append(due, key.spendKey)
			delete(u.jobs, key)
		}
	}
	return due
}

// clear drops every job.
func (u *unlockSchedule) clear() {
	u.jobs = make(map[unlockJobKey]uint32)
}
