// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cnutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashStringRoundTrip(t *testing.T) {
	str := "8a8cc32f9a4ab0f64dc6ee27544ee2e7b66c1f5b9b0b5e2cbfdc316c9dd8d797"

	hash, err := NewHashFromStr(str)
	require.NoError(t, err)
	require.Equal(t, str, hash.String())
}

func TestNewHash(t *testing.T) {
	raw := make([]byte, HashSize)
	raw[0] = 0xab

	hash, err := NewHash(raw)
	require.NoError(t, err)
	require.Equal(t, raw, hash.CloneBytes())

	_, err = NewHash(raw[:HashSize-1])
	require.Error(t, err)
}

func TestNewHashFromStrErrors(t *testing.T) {
	// Too long.
	long := make([]byte, MaxHashStringSize+2)
	for i := range long {
		long[i] = 'a'
	}
	_, err := NewHashFromStr(string(long))
	require.ErrorIs(t, err, ErrHashStrSize)

	// Not hexadecimal.
	_, err = NewHashFromStr("zz")
	require.Error(t, err)
}

func TestHashIsEqual(t *testing.T) {
	a, err := NewHashFromStr("ab")
	require.NoError(t, err)
	b, err := NewHashFromStr("ab")
	require.NoError(t, err)
	c, err := NewHashFromStr("cd")
	require.NoError(t, err)

	require.True(t, a.IsEqual(b))
	require.False(t, a.IsEqual(c))
	require.False(t, a.IsEqual(nil))
	require.True(t, (*Hash)(nil).IsEqual(nil))
}
