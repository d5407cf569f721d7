// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package currency

// DecomposeAmount splits an amount into its canonical decimal denominations.
// Digits whose accumulated value stays at or below dustThreshold are folded
// into a single dust term, emitted before the first larger denomination.
// A zero amount decomposes to nothing.
func (c *Currency) DecomposeAmount(amount, dustThreshold uint64) []uint64 {
	if amount == 0 {
		return nil
	}

	var decomposed []uint64
	var dust uint64
	dustHandled := false
	order := uint64(1)

	for amount != 0 {
		chunk := (amount % 10) * order
		amount /= 10
		order *= 10

		if !dustHandled && dust+chunk <= dustThreshold {
			dust += chunk
			continue
		}

		if !dustHandled && dust != 0 {
			decomposed = append(decomposed, dust)
			dustHandled = true
		}
		if chunk != 0 {
			decomposed = append(decomposed, chunk)
		}
	}

	if !dustHandled && dust != 0 {
		decomposed = append(decomposed, dust)
	}

	return decomposed
}
