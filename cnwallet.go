// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
)

var cfg *config

func main() {
	// Work around defer not working after os.Exit.
	if err := walletMain(); err != nil {
		os.Exit(1)
	}
}

// walletMain is a work-around main function that is required since
// deferred functions (such as log flushing) are not called with calls to
// os.Exit.  Instead, main runs this function and checks for a non-nil
// error, at which point any defers have already run, and if the error is
// non-nil, the program can be exited with an error exit status.
func walletMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	if !cfg.ListAddresses && !cfg.DumpKeys {
		fmt.Println("Nothing to do.  Use --addresses or --dumpkeys to " +
			"inspect the wallet, or --create to make a new one.")
		return nil
	}

	w, err := openWallet(cfg)
	if err != nil {
		log.Errorf("Cannot load wallet file: %v", err)
		return err
	}
	defer func() {
		if err := w.Shutdown(); err != nil {
			log.Errorf("Wallet shutdown failed: %v", err)
		}
	}()

	if cfg.ListAddresses {
		if err := listAddresses(w); err != nil {
			log.Errorf("Cannot list addresses: %v", err)
			return err
		}
	}

	if cfg.DumpKeys {
		if err := dumpKeys(w); err != nil {
			log.Errorf("Cannot dump keys: %v", err)
			return err
		}
	}

	return nil
}
