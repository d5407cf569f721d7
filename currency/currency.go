// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package currency defines the chain parameters the wallet consumes:
// address encoding, canonical amount decomposition, and network-wide
// limits such as the maximum transaction size.
package currency

import (
	"bytes"
	"encoding/binary"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"

	"github.com/cnsuite/cnwallet/cnutil"
)

const (
	// addressChecksumSize is the number of Keccak digest bytes appended
	// to the address payload before base58 encoding.
	addressChecksumSize = 4

	// mainNetAddressPrefix tags mainnet account addresses.
	mainNetAddressPrefix = 0x3d

	// mainNetMaxTxSize is the upper serialized size accepted for a relayed
	// transaction on mainnet.
	mainNetMaxTxSize = 1000000

	// defaultDustThreshold is the amount at or below which an output is
	// considered dust by the wallet.
	defaultDustThreshold = 10000
)

// Params describes the tunable values of a CryptoNote-family network.
type Params struct {
	// AddressPrefix is the varint tag prepended to account addresses.
	AddressPrefix uint64

	// GenesisBlockHash identifies the chain.
	GenesisBlockHash cnutil.Hash

	// MaxTransactionSizeLimit is the largest serialized transaction the
	// network relays.
	MaxTransactionSizeLimit uint64

	// DustThreshold is the default dust cutoff for output selection and
	// amount decomposition.
	DustThreshold uint64
}

// Currency provides address parsing and formatting plus the network
// constants consumed by the wallet.
type Currency struct {
	params Params
}

// New returns a Currency for the given network parameters.
func New(params Params) *Currency {
	return &Currency{params: params}
}

// MainNet returns the mainnet currency definition.
func MainNet() *Currency {
	genesis, _ := cnutil.NewHashFromStr(
		"8a8cc32f9a4ab0f64dc6ee27544ee2e7b66c1f5b9b0b5e2cbfdc316c9dd8d797")
	return New(Params{
		AddressPrefix:           mainNetAddressPrefix,
		GenesisBlockHash:        *genesis,
		MaxTransactionSizeLimit: mainNetMaxTxSize,
		DustThreshold:           defaultDustThreshold,
	})
}

// GenesisBlockHash returns the hash of the chain's genesis block.
func (c *Currency) GenesisBlockHash() cnutil.Hash {
	return c.params.GenesisBlockHash
}

// MaxTransactionSizeLimit returns the largest serialized transaction size
// the network accepts for relay.
func (c *Currency) MaxTransactionSizeLimit() uint64 {
	return c.params.MaxTransactionSizeLimit
}

// DustThreshold returns the default dust cutoff.
func (c *Currency) DustThreshold() uint64 {
	return c.params.DustThreshold
}

// AccountAddressAsString encodes an account address as
// base58(prefix || spend key || view key || checksum).
func (c *Currency) AccountAddressAsString(addr cnutil.AccountAddress) string {
	var buf bytes.Buffer
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], c.params.AddressPrefix)
	buf.Write(prefix[:n])
	buf.Write(addr.SpendPublicKey[:])
	buf.Write(addr.ViewPublicKey[:])

	checksum := addressChecksum(buf.Bytes())
	buf.Write(checksum)

	return base58.Encode(buf.Bytes())
}

// ParseAccountAddressString decodes a base58 account address, verifying the
// network prefix and checksum.  The boolean result reports whether the
// string was a valid address for this network.
func (c *Currency) ParseAccountAddressString(address string) (cnutil.AccountAddress, bool) {
	var addr cnutil.AccountAddress

	raw, err := base58.Decode(address)
	if err != nil {
		return addr, false
	}

	prefix, n := binary.Uvarint(raw)
	if n <= 0 || prefix != c.params.AddressPrefix {
		return addr, false
	}

	payloadLen := n + 2*cnutil.KeySize
	if len(raw) != payloadLen+addressChecksumSize {
		return addr, false
	}

	checksum := addressChecksum(raw[:payloadLen])
	if !bytes.Equal(checksum, raw[payloadLen:]) {
		return addr, false
	}

	copy(addr.SpendPublicKey[:], raw[n:n+cnutil.KeySize])
	copy(addr.ViewPublicKey[:], raw[n+cnutil.KeySize:payloadLen])
	return addr, true
}

func addressChecksum(payload []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(payload)
	return h.Sum(nil)[:addressChecksumSize]
}
