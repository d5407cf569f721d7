// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/cnsuite/cnwallet/chain"
	"github.com/cnsuite/cnwallet/cnutil"
	"github.com/cnsuite/cnwallet/internal/zero"
	"github.com/cnsuite/cnwallet/snacl"
)

// walletFileMagic tags serialized wallet files.
var walletFileMagic = [4]byte{'c', 'n', 'w', 't'}

// walletFileVersion is the current serialization version.
const walletFileVersion uint32 = 1

// Section flags stored in the payload header.
const (
	sectionDetails byte = 1 << iota
	sectionCache
)

var errCorruptPayload = errors.New("corrupt wallet payload")

// Save writes the wallet to destination, sealed under the wallet's
// password.  The key material is always written.  saveDetails adds the
// transaction ledger with its transfer rows; saveCache adds the cached
// balances, input reservations, unlock schedule, and pending change.
// Sections left out are rebuilt by re-syncing after the next Load.
//
// Chain scanning pauses for the duration of the write.
func (w *Wallet) Save(destination io.Writer, saveDetails, saveCache bool) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return err
	}
	if err := w.checkStopped(); err != nil {
		return err
	}

	if w.wallets.count() != 0 {
		w.cfg.Synchronizer.Stop()
	}

	err := w.unsafeSave(destination, saveDetails, saveCache)

	if w.wallets.count() != 0 {
		w.cfg.Synchronizer.Start()
	}

	return err
}

func (w *Wallet) unsafeSave(destination io.Writer, saveDetails, saveCache bool) error {
	payload := w.serializePayload(saveDetails, saveCache)
	defer zero.Bytes(payload)

	password := []byte(w.password)
	key, err := snacl.NewSecretKey(&password, snacl.DefaultN,
		snacl.DefaultR, snacl.DefaultP)
	if err != nil {
		return walletError(ErrInternalWalletError,
			"wallet file key derivation failed", err)
	}
	defer key.Zero()

	sealed, err := key.Encrypt(payload)
	if err != nil {
		return walletError(ErrInternalWalletError,
			"wallet file sealing failed", err)
	}

	var header bytes.Buffer
	header.Write(walletFileMagic[:])
	var version [4]byte
	binary.LittleEndian.PutUint32(version[:], walletFileVersion)
	header.Write(version[:])
	header.Write(key.Marshal())

	if _, err := destination.Write(header.Bytes()); err != nil {
		return walletError(ErrInternalWalletError,
			"wallet file write failed", err)
	}
	if _, err := destination.Write(sealed); err != nil {
		return walletError(ErrInternalWalletError,
			"wallet file write failed", err)
	}

	log.Debugf("Saved wallet: %d addresses, details=%v, cache=%v",
		w.wallets.count(), saveDetails, saveCache)
	return nil
}

// Load reads a wallet previously written by Save, unsealing it with
// password, and subscribes every stored address to chain scanning.
func (w *Wallet) Load(source io.Reader, password string) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.state != stateNotInitialized {
		return walletError(ErrWrongState,
			"wallet is already initialized", nil)
	}
	if err := w.checkStopped(); err != nil {
		return err
	}

	if err := w.unsafeLoad(source, password); err != nil {
		return err
	}

	w.password = password
	w.cfg.Synchronizer.AddObserver(w)

	if w.wallets.count() != 0 {
		w.cfg.Synchronizer.Start()
	}

	w.state = stateInitialized

	log.Infof("Loaded wallet with %d addresses", w.wallets.count())
	return nil
}

func (w *Wallet) unsafeLoad(source io.Reader, password string) error {
	raw, err := io.ReadAll(source)
	if err != nil {
		return walletError(ErrInternalWalletError,
			"wallet file read failed", err)
	}

	headerLen := len(walletFileMagic) + 4
	paramsLen := snacl.KeySize + 32 + 24
	if len(raw) < headerLen+paramsLen {
		return walletError(ErrInternalWalletError,
			"wallet file is truncated", errCorruptPayload)
	}
	if !bytes.Equal(raw[:len(walletFileMagic)], walletFileMagic[:]) {
		return walletError(ErrInternalWalletError,
			"not a wallet file", errCorruptPayload)
	}
	version := binary.LittleEndian.Uint32(raw[len(walletFileMagic):headerLen])
	if version != walletFileVersion {
		return walletError(ErrInternalWalletError,
			"unsupported wallet file version", errCorruptPayload)
	}

	var key snacl.SecretKey
	if err := key.Unmarshal(raw[headerLen : headerLen+paramsLen]); err != nil {
		return walletError(ErrInternalWalletError,
			"corrupt wallet file parameters", err)
	}
	passwordBytes := []byte(password)
	if err := key.DeriveKey(&passwordBytes); err != nil {
		if err == snacl.ErrInvalidPassword {
			return walletError(ErrWrongPassword, "wrong wallet password", err)
		}
		return walletError(ErrInternalWalletError,
			"wallet file key derivation failed", err)
	}
	defer key.Zero()

	payload, err := key.Decrypt(raw[headerLen+paramsLen:])
	if err != nil {
		return walletError(ErrInternalWalletError,
			"wallet file unsealing failed", err)
	}
	defer zero.Bytes(payload)

	return w.deserializePayload(payload)
}

// ChangePassword reseals the wallet under a new password.  The change
// takes effect on the next Save.
func (w *Wallet) ChangePassword(oldPassword, newPassword string) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.checkInitialized(); err != nil {
		return err
	}
	if err := w.checkStopped(); err != nil {
		return err
	}

	if w.password != oldPassword {
		return walletError(ErrWrongPassword, "wrong wallet password", nil)
	}

	w.password = newPassword
	return nil
}

// serializePayload encodes the wallet state into the plaintext payload.
func (w *Wallet) serializePayload(saveDetails, saveCache bool) []byte {
	var buf bytes.Buffer

	var flags byte
	if saveDetails {
		flags |= sectionDetails
	}
	if saveCache {
		flags |= sectionCache
	}
	buf.WriteByte(flags)

	buf.Write(w.viewKeys.PublicKey[:])
	buf.Write(w.viewKeys.SecretKey[:])

	putUint64(&buf, uint64(w.wallets.count()))
	for _, rec := range w.wallets.records {
		buf.Write(rec.spendKeys.PublicKey[:])
		buf.Write(rec.spendKeys.SecretKey[:])
		putUint64(&buf, rec.creationTimestamp)
	}

	if saveDetails {
		putUint64(&buf, uint64(w.ledger.count()))
		for _, tx := range w.ledger.txs {
			buf.WriteByte(byte(tx.State))
			buf.Write(tx.Hash[:])
			putUint64(&buf, uint64(tx.TotalAmount))
			putUint64(&buf, tx.Fee)
			putUint64(&buf, tx.CreationTime)
			putUint64(&buf, tx.Timestamp)
			putUint32(&buf, tx.BlockHeight)
			putUint64(&buf, tx.UnlockTime)
			putBytes(&buf, tx.Extra)
		}

		putUint64(&buf, uint64(len(w.ledger.transfers)))
		for _, entry := range w.ledger.transfers {
			putUint64(&buf, uint64(entry.txIndex))
			putBytes(&buf, []byte(entry.transfer.Address))
			putUint64(&buf, uint64(entry.transfer.Amount))
		}
	}

	if saveCache {
		putUint64(&buf, w.actualBalance)
		putUint64(&buf, w.pendingBalance)
		for _, rec := range w.wallets.records {
			putUint64(&buf, rec.actualBalance)
			putUint64(&buf, rec.pendingBalance)
		}

		putUint64(&buf, uint64(len(w.spent.outs)))
		for _, out := range w.spent.outs {
			putUint64(&buf, out.amount)
			buf.Write(out.transactionHash[:])
			putUint32(&buf, out.outputInTransaction)
			buf.Write(out.spendPublicKey[:])
			buf.Write(out.spendingHash[:])
		}

		putUint64(&buf, uint64(len(w.unlockJobs.jobs)))
		for key, height := range w.unlockJobs.jobs {
			buf.Write(key.txHash[:])
			buf.Write(key.spendKey[:])
			putUint32(&buf, height)
		}

		putUint64(&buf, uint64(len(w.change)))
		for hash, amount := range w.change {
			buf.Write(hash[:])
			putUint64(&buf, amount)
		}
	}

	return buf.Bytes()
}

// deserializePayload decodes a payload and rebuilds the wallet state,
// re-subscribing every address.  Called with the wallet mutex held and
// the wallet in the not-initialized state.
func (w *Wallet) deserializePayload(payload []byte) error {
	r := &payloadReader{buf: payload}

	flags, err := r.byte()
	if err != nil {
		return corrupt(err)
	}

	var viewKeys cnutil.KeyPair
	if err := r.key(&viewKeys.PublicKey); err != nil {
		return corrupt(err)
	}
	if err := r.secret(&viewKeys.SecretKey); err != nil {
		return corrupt(err)
	}
	w.viewKeys = viewKeys

	walletCount, err := r.uint64()
	if err != nil {
		return corrupt(err)
	}
	type storedWallet struct {
		keys              cnutil.KeyPair
		creationTimestamp uint64
	}
	stored := make([]storedWallet, 0, walletCount)
	for i := uint64(0); i < walletCount; i++ {
		var sw storedWallet
		if err := r.key(&sw.keys.PublicKey); err != nil {
			return corrupt(err)
		}
		if err := r.secret(&sw.keys.SecretKey); err != nil {
			return corrupt(err)
		}
		if sw.creationTimestamp, err = r.uint64(); err != nil {
			return corrupt(err)
		}
		stored = append(stored, sw)
	}

	if flags&sectionDetails != 0 {
		txCount, err := r.uint64()
		if err != nil {
			return corrupt(err)
		}
		for i := uint64(0); i < txCount; i++ {
			var tx Transaction
			state, err := r.byte()
			if err != nil {
				return corrupt(err)
			}
			tx.State = TransactionState(state)
			if err := r.hash(&tx.Hash); err != nil {
				return corrupt(err)
			}
			totalAmount, err := r.uint64()
			if err != nil {
				return corrupt(err)
			}
			tx.TotalAmount = int64(totalAmount)
			if tx.Fee, err = r.uint64(); err != nil {
				return corrupt(err)
			}
			if tx.CreationTime, err = r.uint64(); err != nil {
				return corrupt(err)
			}
			if tx.Timestamp, err = r.uint64(); err != nil {
				return corrupt(err)
			}
			if tx.BlockHeight, err = r.uint32(); err != nil {
				return corrupt(err)
			}
			if tx.UnlockTime, err = r.uint64(); err != nil {
				return corrupt(err)
			}
			if tx.Extra, err = r.bytes(); err != nil {
				return corrupt(err)
			}
			w.ledger.append(tx)
		}

		transferCount, err := r.uint64()
		if err != nil {
			return corrupt(err)
		}
		for i := uint64(0); i < transferCount; i++ {
			txIndex, err := r.uint64()
			if err != nil {
				return corrupt(err)
			}
			address, err := r.bytes()
			if err != nil {
				return corrupt(err)
			}
			amount, err := r.uint64()
			if err != nil {
				return corrupt(err)
			}
			w.ledger.transfers = append(w.ledger.transfers, transferEntry{
				txIndex: int(txIndex),
				transfer: Transfer{
					Address: string(address),
					Amount:  int64(amount),
				},
			})
		}
	}

	// Subscriptions come back before the cache so cached balances land
	// on live records.
	for _, sw := range stored {
		if _, err := w.resubscribeWallet(sw.keys, sw.creationTimestamp); err != nil {
			return err
		}
	}

	if flags&sectionCache != 0 {
		if w.actualBalance, err = r.uint64(); err != nil {
			return corrupt(err)
		}
		if w.pendingBalance, err = r.uint64(); err != nil {
			return corrupt(err)
		}
		for _, rec := range w.wallets.records {
			if rec.actualBalance, err = r.uint64(); err != nil {
				return corrupt(err)
			}
			if rec.pendingBalance, err = r.uint64(); err != nil {
				return corrupt(err)
			}
		}

		spentCount, err := r.uint64()
		if err != nil {
			return corrupt(err)
		}
		for i := uint64(0); i < spentCount; i++ {
			var out spentOutput
			if out.amount, err = r.uint64(); err != nil {
				return corrupt(err)
			}
			if err := r.hash(&out.transactionHash); err != nil {
				return corrupt(err)
			}
			if out.outputInTransaction, err = r.uint32(); err != nil {
				return corrupt(err)
			}
			if err := r.key(&out.spendPublicKey); err != nil {
				return corrupt(err)
			}
			if err := r.hash(&out.spendingHash); err != nil {
				return corrupt(err)
			}
			w.spent.reserve(out)
		}

		jobCount, err := r.uint64()
		if err != nil {
			return corrupt(err)
		}
		for i := uint64(0); i < jobCount; i++ {
			var txHash cnutil.Hash
			var spendKey cnutil.PublicKey
			if err := r.hash(&txHash); err != nil {
				return corrupt(err)
			}
			if err := r.key(&spendKey); err != nil {
				return corrupt(err)
			}
			height, err := r.uint32()
			if err != nil {
				return corrupt(err)
			}
			w.unlockJobs.insert(txHash, spendKey, height)
		}

		changeCount, err := r.uint64()
		if err != nil {
			return corrupt(err)
		}
		for i := uint64(0); i < changeCount; i++ {
			var hash cnutil.Hash
			if err := r.hash(&hash); err != nil {
				return corrupt(err)
			}
			amount, err := r.uint64()
			if err != nil {
				return corrupt(err)
			}
			w.change[hash] = amount
		}
	}

	return nil
}

// resubscribeWallet restores one stored wallet record, subscribing its
// address to the synchronizer with its original scan start.
func (w *Wallet) resubscribeWallet(spendKeys cnutil.KeyPair, creationTimestamp uint64) (*walletRecord, error) {
	sub := chain.AccountSubscription{
		Address: cnutil.AccountAddress{
			SpendPublicKey: spendKeys.PublicKey,
			ViewPublicKey:  w.viewKeys.PublicKey,
		},
		ViewSecretKey:  w.viewKeys.SecretKey,
		SpendSecretKey: spendKeys.SecretKey,
		SyncStart: chain.SyncStart{
			Height:    0,
			Timestamp: creationTimestamp - uint64(syncBackdate.Seconds()),
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
		creationTimestamp: creationTimestamp,
		container:         subscription.Container(),
		subscription:      subscription,
	}
	subscription.AddObserver(w)

	w.wallets.add(rec)
	return rec, nil
}

func corrupt(err error) error {
	return walletError(ErrInternalWalletError, "corrupt wallet file", err)
}

func putUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func putBytes(buf *bytes.Buffer, b []byte) {
	putUint64(buf, uint64(len(b)))
	buf.Write(b)
}

// payloadReader walks a payload, failing on truncation.
type payloadReader struct {
	buf []byte
	off int
}

func (r *payloadReader) take(n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, errCorruptPayload
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *payloadReader) byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *payloadReader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *payloadReader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *payloadReader) bytes() ([]byte, error) {
	n, err := r.uint64()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(r.buf)-r.off) {
		return nil, errCorruptPayload
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (r *payloadReader) hash(h *cnutil.Hash) error {
	b, err := r.take(len(h))
	if err != nil {
		return err
	}
	copy(h[:], b)
	return nil
}

func (r *payloadReader) key(k *cnutil.PublicKey) error {
	b, err := r.take(len(k))
	if err != nil {
		return err
	}
	copy(k[:], b)
	return nil
}

func (r *payloadReader) secret(k *cnutil.SecretKey) error {
	b, err := r.take(len(k))
	if err != nil {
		return err
	}
	copy(k[:], b)
	return nil
}
