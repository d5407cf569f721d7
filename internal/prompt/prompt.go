// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2024 The cnsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package prompt provides the interactive terminal prompts the setup
// tool uses to collect passphrases and key material.
package prompt

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/cnsuite/cnwallet/cnutil"
)

// promptList prompts the user with the given prefix, list of valid
// responses, and default list entry to use.  The function will repeat the
// prompt to the user until they enter a valid response.
func promptList(reader *bufio.Reader, prefix string, validResponses []string, defaultEntry string) (string, error) {
	// Setup the prompt according to the parameter details.
	validStrings := strings.Join(validResponses, "/")
	var prompt string
	if defaultEntry != "" {
		prompt = fmt.Sprintf("%s (%s) [%s]: ", prefix, validStrings,
			defaultEntry)
	} else {
		prompt = fmt.Sprintf("%s (%s): ", prefix, validStrings)
	}

	// Prompt the user until one of the valid responses is given.
	for {
		fmt.Print(prompt)
		reply, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		reply = strings.TrimSpace(strings.ToLower(reply))
		if reply == "" {
			reply = defaultEntry
		}

		for _, validResponse := range validResponses {
			if reply == validResponse {
				return reply, nil
			}
		}
	}
}

// promptListBool prompts the user for the given prefix and returns the
// boolean response.
func promptListBool(reader *bufio.Reader, prefix string, defaultEntry string) (bool, error) {
	valid := []string{"n", "no", "y", "yes"}
	response, err := promptList(reader, prefix, valid, defaultEntry)
	if err != nil {
		return false, err
	}
	return response == "yes" || response == "y", nil
}

// promptPass prompts the user for a passphrase with the given prefix.  The
// function will ask the user to confirm the passphrase and will repeat the
// prompts until they enter a matching response.
func promptPass(prefix string, confirm bool) ([]byte, error) {
	// Prompt the user until they enter a passphrase.
	prompt := fmt.Sprintf("%s: ", prefix)
	for {
		fmt.Print(prompt)
		pass, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return nil, err
		}
		fmt.Print("\n")
		pass = bytes.TrimSpace(pass)
		if len(pass) == 0 {
			continue
		}

		if !confirm {
			return pass, nil
		}

		fmt.Print("Confirm passphrase: ")
		confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return nil, err
		}
		fmt.Print("\n")
		confirm = bytes.TrimSpace(confirm)
		if !bytes.Equal(pass, confirm) {
			fmt.Println("The entered passphrases do not match")
			continue
		}

		return pass, nil
	}
}

// Passphrase prompts the user for the passphrase that seals the wallet
// file.  When confirm is true the user is prompted twice, which should be
// done for a new wallet so a mistyped passphrase does not lock the user
// out.
func Passphrase(confirm bool) ([]byte, error) {
	return promptPass("Enter the passphrase for your wallet", confirm)
}

// ImportSpendKey asks the user whether an existing spend secret key
// should be imported into the new wallet and, if so, prompts for it as a
// 64-character hex string.  It returns nil without error when the user
// declines.
func ImportSpendKey(reader *bufio.Reader) (*cnutil.SecretKey, error) {
	wantImport, err := promptListBool(reader,
		"Do you have an existing spend key you want to import?", "no")
	if err != nil {
		return nil, err
	}
	if !wantImport {
		return nil, nil
	}

	for {
		fmt.Print("Enter existing spend secret key (hex): ")
		keyStr, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		keyStr = strings.TrimSpace(strings.ToLower(keyStr))

		raw, err := hex.DecodeString(keyStr)
		if err != nil || len(raw) != cnutil.KeySize {
			fmt.Printf("Invalid key specified.  Must be a "+
				"hexadecimal value of %d bytes\n", cnutil.KeySize)
			continue
		}

		var key cnutil.SecretKey
		copy(key[:], raw)
		return &key, nil
	}
}
