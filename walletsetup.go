// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/cnsuite/cnwallet/chain"
	"github.com/cnsuite/cnwallet/cnutil"
	"github.com/cnsuite/cnwallet/currency"
	"github.com/cnsuite/cnwallet/internal/prompt"
	"github.com/cnsuite/cnwallet/wallet"
)

// newOfflineWallet returns a wallet backed by the offline synchronizer
// and node.  Key management works against it; anything needing chain data
// does not.
func newOfflineWallet() *wallet.Wallet {
	return wallet.New(wallet.Config{
		Currency:     currency.MainNet(),
		Synchronizer: chain.NewOfflineSynchronizer(),
		Node:         chain.NewOfflineNode(),
	})
}

// createWallet prompts the user for a passphrase and an optional spend
// key to import, generates the wallet with the requested number of
// addresses, and writes it to the configured wallet file.
func createWallet(cfg *config) error {
	reader := bufio.NewReader(os.Stdin)

	pass, err := prompt.Passphrase(true)
	if err != nil {
		return err
	}

	importedKey, err := prompt.ImportSpendKey(reader)
	if err != nil {
		return err
	}

	fmt.Println("Creating the wallet...")

	w := newOfflineWallet()
	if err := w.Initialize(string(pass)); err != nil {
		return err
	}

	if importedKey != nil {
		spendKeys := cnutil.KeyPairFromSecret(*importedKey)
		if _, err := w.CreateAddressFromKey(spendKeys); err != nil {
			return err
		}
	} else {
		if _, err := w.CreateAddress(); err != nil {
			return err
		}
	}

	for i := uint(1); i < cfg.NumAddresses; i++ {
		if _, err := w.CreateAddress(); err != nil {
			return err
		}
	}

	walletFile, err := os.OpenFile(cfg.walletFilePath(),
		os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	defer walletFile.Close()

	if err := w.Save(walletFile, true, true); err != nil {
		return err
	}

	fmt.Println("The wallet has been created successfully.")

	return nil
}

// openWallet loads the configured wallet file after prompting for its
// passphrase.  The returned wallet runs against the offline backend; the
// caller is responsible for shutting it down.
func openWallet(cfg *config) (*wallet.Wallet, error) {
	pass, err := prompt.Passphrase(false)
	if err != nil {
		return nil, err
	}

	walletFile, err := os.Open(cfg.walletFilePath())
	if err != nil {
		return nil, err
	}
	defer walletFile.Close()

	w := newOfflineWallet()
	if err := w.Load(walletFile, string(pass)); err != nil {
		return nil, err
	}
	return w, nil
}

// listAddresses prints every address of the wallet in creation order.
func listAddresses(w *wallet.Wallet) error {
	count, err := w.AddressCount()
	if err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		address, err := w.Address(i)
		if err != nil {
			return err
		}
		fmt.Println(address)
	}
	return nil
}

// dumpKeys prints the wallet's view public key.
func dumpKeys(w *wallet.Wallet) error {
	viewKey, err := w.ViewPublicKey()
	if err != nil {
		return err
	}

	fmt.Println("View public key:", viewKey)
	return nil
}

// checkCreateDir checks that the path exists and is a directory.
// If path does not exist, it is created.
func checkCreateDir(path string) error {
	if fi, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			// Attempt data directory creation
			if err = os.MkdirAll(path, 0700); err != nil {
				return fmt.Errorf("cannot create directory: %s", err)
			}
		} else {
			return fmt.Errorf("error checking directory: %s", err)
		}
	} else {
		if !fi.IsDir() {
			return fmt.Errorf("path '%s' is not a directory", path)
		}
	}

	return nil
}
