// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cnutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
)

// KeySize is the size in bytes of public and secret keys.
const KeySize = 32

// PublicKey is a 32-byte ed25519 public key.
type PublicKey [KeySize]byte

// String returns the hexadecimal encoding of the public key.
func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// SecretKey is a 32-byte ed25519 private key seed.
type SecretKey [KeySize]byte

// KeyPair couples a public key with its secret key.  The wallet holds one
// view key pair shared by every address and one spend key pair per address.
type KeyPair struct {
	PublicKey PublicKey
	SecretKey SecretKey
}

// GenerateKeyPair creates a fresh key pair from the operating system's
// entropy source.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}

	var kp KeyPair
	copy(kp.PublicKey[:], pub)
	copy(kp.SecretKey[:], priv.Seed())
	return kp, nil
}

// KeyPairFromSecret derives the key pair of an existing secret key, for
// example one imported from another wallet.
func KeyPairFromSecret(secret SecretKey) KeyPair {
	priv := ed25519.NewKeyFromSeed(secret[:])

	var kp KeyPair
	copy(kp.PublicKey[:], priv.Public().(ed25519.PublicKey))
	kp.SecretKey = secret
	return kp
}

// AccountAddress is the public half of an account: the per-address spend
// public key together with the wallet-wide view public key.
type AccountAddress struct {
	SpendPublicKey PublicKey
	ViewPublicKey  PublicKey
}
