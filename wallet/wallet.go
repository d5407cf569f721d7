// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet implements a multi-address CryptoNote wallet on top of
// a chain synchronizer and node backend.  The wallet holds one view key
// pair shared by every address and one spend key pair per address,
// tracks a transaction ledger with per-destination transfer rows, and
// builds ring-signature transactions through a pluggable low-level
// builder.
//
// Every public operation and every chain event handler runs under a
// single serialization mutex; chain observers re-dispatch their work
// onto wallet goroutines.  Progress of the event stream is consumed
// through GetEvent, which blocks until an event arrives or the wallet is
// stopped.
package wallet

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/cnsuite/cnwallet/chain"
	"github.com/cnsuite/cnwallet/cnutil"
	"github.com/cnsuite/cnwallet/currency"
	"github.com/cnsuite/cnwallet/txbuilder"
)

const (
	// softLockBlocks is the number of blocks the network holds every
	// output beyond its unlock time.
	softLockBlocks = 1

	// defaultSpendableAge is the confirmation depth requested for newly
	// subscribed addresses.
	defaultSpendableAge = 10

	// syncBackdate is how far before an address's creation time chain
	// scanning starts, covering clock skew between the wallet and the
	// network.
	syncBackdate = 24 * time.Hour
)

// walletState tracks whether the wallet holds key material.
type walletState int

const (
	stateNotInitialized walletState = iota
	stateInitialized
)

// Config supplies the wallet's collaborators.
type Config struct {
	// Currency provides the network parameters and address codec.
	Currency *currency.Currency

	// Synchronizer drives the per-address transfers containers.
	Synchronizer chain.Synchronizer

	// Node relays transactions and serves decoy outputs.
	Node chain.Node

	// NewTransaction constructs empty transactions for the builder
	// pipeline.
	NewTransaction txbuilder.Factory

	// Clock is the wallet's time source.  Nil means the system clock.
	Clock clock.Clock
}

// Wallet is a multi-address wallet.  All methods are safe for concurrent
// access.
type Wallet struct {
	cfg Config

	// mtx serializes every public operation and every dispatched chain
	// event handler.
	mtx sync.Mutex

	state    walletState
	password string

	viewKeys cnutil.KeyPair
	wallets  *walletStore

	ledger     *ledgerStore
	spent      *spentOutputSet
	unlockJobs *unlockSchedule
	change     map[cnutil.Hash]uint64

	actualBalance  uint64
	pendingBalance uint64

	events *eventQueue
	wg     sync.WaitGroup
}

// New returns a wallet in the not-initialized state.  Initialize or Load
// must be called before any other operation.
func New(cfg Config) *Wallet {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Wallet{
		cfg:        cfg,
		state:      stateNotInitialized,
		wallets:    newWalletStore(),
		ledger:     newLedgerStore(),
		spent:      newSpentOutputSet(),
		unlockJobs: newUnlockSchedule(),
		change:     make(map[cnutil.Hash]uint64),
		events:     newEventQueue(),
	}
}

// spawn runs f on its own goroutine, tracked so Shutdown can wait for
// in-flight handlers.
func (w *Wallet) spawn(f func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		f()
	}()
}

// checkInitialized returns an error unless the wallet holds key
// material.  Called with the wallet mutex held.
func (w *Wallet) checkInitialized() error {
	if w.state != stateInitialized {
		return walletError(ErrNotInitialized, "wallet is not initialized", nil)
	}
	return nil
}

// checkStopped returns an error if the wallet has been stopped.
func (w *Wallet) checkStopped() error {
	if w.events.isStopped() {
		return walletError(ErrOperationCancelled, "wallet is stopped", nil)
	}
	return nil
}

// Initialize creates a brand new wallet: a fresh view key pair sealed
// under the given password.  The wallet starts with no addresses.
func (w *Wallet) Initialize(password string) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.state != stateNotInitialized {
		return walletError(ErrAlreadyInitialized,
			"wallet is already initialized", nil)
	}
	if err := w.checkStopped(); err != nil {
		return err
	}

	viewKeys, err := cnutil.GenerateKeyPair()
	if err != nil {
		return walletError(ErrInternalWalletError,
			"view key generation failed", err)
	}

	w.viewKeys = viewKeys
	w.password = password

	w.cfg.Synchronizer.AddObserver(w)

	w.state = stateInitialized

	log.Infof("Initialized new wallet, view key %s", viewKeys.PublicKey)
	return nil
}

// Shutdown tears the wallet down to the not-initialized state: chain
// scanning stops, every table is cleared, and queued events are dropped.
// It waits for in-flight event handlers to drain before returning.
func (w *Wallet) Shutdown() error {
	w.mtx.Lock()
	if err := w.checkInitialized(); err != nil {
		w.mtx.Unlock()
		return err
	}
	w.doShutdown()
	w.mtx.Unlock()

	// Handlers dispatched before the observer was removed observe the
	// state change and no-op.
	w.wg.Wait()
	return nil
}

// doShutdown performs the teardown.  Called with the wallet mutex held.
func (w *Wallet) doShutdown() {
	w.cfg.Synchronizer.Stop()
	w.cfg.Synchronizer.RemoveObserver(w)

	w.clearCaches()
	w.events.clear()

	w.password = ""
	w.state = stateNotInitialized

	log.Info("Wallet shut down")
}

// clearCaches removes every subscription and empties all wallet tables.
func (w *Wallet) clearCaches() {
	for _, address := range w.cfg.Synchronizer.Subscriptions() {
		if err := w.cfg.Synchronizer.RemoveSubscription(address); err != nil {
			log.Warnf("Failed to remove subscription: %v", err)
		}
	}

	w.wallets.clear()
	w.spent.clear()
	w.unlockJobs.clear()
	w.ledger.clear()
	w.change = make(map[cnutil.Hash]uint64)
	w.actualBalance = 0
	w.pendingBalance = 0
}

// Start lifts a previous Stop, letting operations and GetEvent proceed
// again.  Events queued while stopped are retained.
func (w *Wallet) Start() {
	w.events.start()
}

// Stop cancels blocked GetEvent calls and makes subsequent operations
// fail until Start is called.  Stop is safe to call from any goroutine.
func (w *Wallet) Stop() {
	w.events.stop()
}

// GetEvent returns the next wallet event, blocking until one is
// available.  It fails with ErrOperationCancelled when the wallet is
// stopped while waiting.
func (w *Wallet) GetEvent() (Event, error) {
	w.mtx.Lock()
	if err := w.checkInitialized(); err != nil {
		w.mtx.Unlock()
		return Event{}, err
	}
	w.mtx.Unlock()

	if err := w.checkStopped(); err != nil {
		return Event{}, err
	}

	ev, ok := w.events.wait()
	if !ok {
		return Event{}, walletError(ErrOperationCancelled,
			"wallet stopped while waiting for events", nil)
	}
	return ev, nil
}

// CreateAddress adds a new address with a freshly generated spend key
// pair and returns its encoded form.
func (w *Wallet) CreateAddress() (string, error) {
	spendKeys, err := cnutil.GenerateKeyPair()
	if err != nil {
		return "", walletError(ErrInternalWalletError,
			"spend key generation failed", err)
	}

	return w.CreateAddressFromKey(spendKeys)
}

// CreateAddressFromKey adds a new address with the given spend key pair,
// subscribing it to chain scanning from height 0 and a timestamp
// syncBackdate before the address's creation time.
func (w *Wallet) CreateAddressFromKey(spendKeys cnutil.KeyPair) (string, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return "", err
	}
	if err := w.checkStopped(); err != nil {
		return "", err
	}

	if w.wallets.count() != 0 {
		w.cfg.Synchronizer.Stop()
	}

	rec, err := w.addWallet(spendKeys)
	if err != nil {
		return "", err
	}
	address := w.recordAddress(rec)

	w.cfg.Synchronizer.Start()

	log.Infof("Created address %s", address)
	return address, nil
}

// addWallet subscribes the spend key pair to the synchronizer and
// records it.  Called with the wallet mutex held.
func (w *Wallet) addWallet(spendKeys cnutil.KeyPair) (*walletRecord, error) {
	creationTime := w.cfg.Clock.Now()

	sub := chain.AccountSubscription{
		Address: cnutil.AccountAddress{
			SpendPublicKey: spendKeys.PublicKey,
			ViewPublicKey:  w.viewKeys.PublicKey,
		},
		ViewSecretKey:  w.viewKeys.SecretKey,
		SpendSecretKey: spendKeys.SecretKey,
		SyncStart: chain.SyncStart{
			Height:    0,
			Timestamp: uint64(creationTime.Add(-syncBackdate).Unix()),
		},
		TransactionSpendableAge: defaultSpendableAge,
	}

	subscription, err := w.cfg.Synchronizer.AddSubscription(sub)
	if err != nil {
		return nil, walletError(ErrInternalWalletError,
			"address subscription failed", err)
	}

	rec := &walletRecord{
		spendKeys:         spendKeys,
		creationTimestamp: uint64(creationTime.Unix()),
		container:         subscription.Container(),
		subscription:      subscription,
	}
	subscription.AddObserver(w)

	w.wallets.add(rec)
	return rec, nil
}

// DeleteAddress removes an address from the wallet: its cached balances
// leave the totals, its subscription is dropped, and its pending input
// reservations are purged.  The ledger keeps the address's transaction
// history.
func (w *Wallet) DeleteAddress(address string) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return err
	}
	if err := w.checkStopped(); err != nil {
		return err
	}

	pubAddr, ok := w.cfg.Currency.ParseAccountAddressString(address)
	if !ok {
		return walletError(ErrBadAddress, "invalid address "+address, nil)
	}

	rec, ok := w.wallets.lookup(pubAddr.SpendPublicKey)
	if !ok {
		return walletError(ErrBadAddress,
			"address does not belong to this wallet", nil)
	}

	w.cfg.Synchronizer.Stop()

	w.dropBalance(rec)

	if err := w.cfg.Synchronizer.RemoveSubscription(pubAddr); err != nil {
		log.Warnf("Failed to remove subscription for %s: %v", address, err)
	}

	w.spent.purgeByWallet(pubAddr.SpendPublicKey)
	w.wallets.remove(pubAddr.SpendPublicKey)

	if w.wallets.count() != 0 {
		w.cfg.Synchronizer.Start()
	}

	log.Infof("Deleted address %s", address)
	return nil
}

// AddressCount returns the number of addresses in the wallet.
func (w *Wallet) AddressCount() (int, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return 0, err
	}
	if err := w.checkStopped(); err != nil {
		return 0, err
	}

	return w.wallets.count(), nil
}

// Address returns the encoded address at the given creation-order index.
func (w *Wallet) Address(index int) (string, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return "", err
	}
	if err := w.checkStopped(); err != nil {
		return "", err
	}

	rec, ok := w.wallets.at(index)
	if !ok {
		return "", walletError(ErrInvalidArgument,
			"address index out of range", nil)
	}

	return w.recordAddress(rec), nil
}

// ViewPublicKey returns the wallet-wide view public key.
func (w *Wallet) ViewPublicKey() (cnutil.PublicKey, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return cnutil.PublicKey{}, err
	}

	return w.viewKeys.PublicKey, nil
}

// ActualBalance returns the spendable balance across every address.
func (w *Wallet) ActualBalance() (uint64, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return 0, err
	}
	if err := w.checkStopped(); err != nil {
		return 0, err
	}

	return w.actualBalance, nil
}

// PendingBalance returns the still-maturing balance across every
// address.
func (w *Wallet) PendingBalance() (uint64, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return 0, err
	}
	if err := w.checkStopped(); err != nil {
		return 0, err
	}

	return w.pendingBalance, nil
}

// AddressActualBalance returns one address's spendable balance.
func (w *Wallet) AddressActualBalance(address string) (uint64, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return 0, err
	}
	if err := w.checkStopped(); err != nil {
		return 0, err
	}

	rec, err := w.walletRecordByAddress(address)
	if err != nil {
		return 0, err
	}
	return rec.actualBalance, nil
}

// AddressPendingBalance returns one address's still-maturing balance.
func (w *Wallet) AddressPendingBalance(address string) (uint64, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return 0, err
	}
	if err := w.checkStopped(); err != nil {
		return 0, err
	}

	rec, err := w.walletRecordByAddress(address)
	if err != nil {
		return 0, err
	}
	return rec.pendingBalance, nil
}

// TransactionCount returns the number of ledger entries.
func (w *Wallet) TransactionCount() (int, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return 0, err
	}
	if err := w.checkStopped(); err != nil {
		return 0, err
	}

	return w.ledger.count(), nil
}

// Transaction returns the ledger entry at the given index.
func (w *Wallet) Transaction(index int) (Transaction, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return Transaction{}, err
	}
	if err := w.checkStopped(); err != nil {
		return Transaction{}, err
	}

	entry, ok := w.ledger.at(index)
	if !ok {
		return Transaction{}, walletError(ErrInvalidArgument,
			"transaction index out of range", nil)
	}
	return *entry, nil
}

// TransactionTransferCount returns the number of transfer rows attached
// to the ledger entry at the given index.
func (w *Wallet) TransactionTransferCount(index int) (int, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return 0, err
	}
	if err := w.checkStopped(); err != nil {
		return 0, err
	}

	if _, ok := w.ledger.at(index); !ok {
		return 0, walletError(ErrInvalidArgument,
			"transaction index out of range", nil)
	}
	return w.ledger.transferCount(index), nil
}

// TransactionTransfer returns one transfer row of a ledger entry.
func (w *Wallet) TransactionTransfer(txIndex, transferIndex int) (Transfer, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return Transfer{}, err
	}
	if err := w.checkStopped(); err != nil {
		return Transfer{}, err
	}

	transfer, ok := w.ledger.transferAt(txIndex, transferIndex)
	if !ok {
		return Transfer{}, walletError(ErrInvalidArgument,
			"transfer index out of range", nil)
	}
	return transfer, nil
}

// recordAddress encodes the account address of one wallet record.
func (w *Wallet) recordAddress(rec *walletRecord) string {
	return w.cfg.Currency.AccountAddressAsString(cnutil.AccountAddress{
		SpendPublicKey: rec.spendKeys.PublicKey,
		ViewPublicKey:  w.viewKeys.PublicKey,
	})
}

// walletRecordByAddress parses an address and finds its record.  Called
// with the wallet mutex held.
func (w *Wallet) walletRecordByAddress(address string) (*walletRecord, error) {
	pubAddr, ok := w.cfg.Currency.ParseAccountAddressString(address)
	if !ok {
		return nil, walletError(ErrBadAddress, "invalid address "+address, nil)
	}

	rec, ok := w.wallets.lookup(pubAddr.SpendPublicKey)
	if !ok {
		return nil, walletError(ErrBadAddress,
			"address does not belong to this wallet", nil)
	}
	return rec, nil
}
