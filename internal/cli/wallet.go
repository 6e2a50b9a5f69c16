package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"splitcoord/internal/walletkey"
)

// WalletCreate generates a new signing key and stores it in the OS keyring.
func WalletCreate() error {
	w, err := walletkey.Open()
	if err != nil {
		return err
	}
	if w.Exists() {
		return fmt.Errorf("a signing key is already stored for this keyring (%s); delete it via your OS keyring manager before creating a new one", w.Address.Hex())
	}
	if err := w.Create(); err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}

	fmt.Println(titleStyle.Render("Signing key created"))
	fmt.Println(infoStyle.Render("address: "), w.Address.Hex())
	return nil
}

// WalletImport stores privateKeyHex, read from stdin if piped or an
// interactive masked prompt otherwise, following the teacher's
// read-private-key precedence chain.
func WalletImport() error {
	key, err := readPrivateKey()
	if err != nil {
		return err
	}

	w, err := walletkey.Open()
	if err != nil {
		return err
	}
	if err := w.Import(key); err != nil {
		return fmt.Errorf("import wallet: %w", err)
	}

	fmt.Println(successStyle.Render("✓"), "imported", w.Address.Hex())
	return nil
}

// WalletAddress prints the currently stored signing key's address.
func WalletAddress() error {
	w, err := walletkey.Open()
	if err != nil {
		return err
	}
	if !w.Exists() {
		return fmt.Errorf("no signing key stored, run 'splitctl wallet create' first")
	}
	fmt.Println(w.Address.Hex())
	return nil
}

// readPrivateKey reads a hex private key from stdin (if piped) or an
// interactive, echo-free terminal prompt otherwise.
func readPrivateKey() (string, error) {
	stdinInfo, _ := os.Stdin.Stat()
	if (stdinInfo.Mode() & os.ModeCharDevice) == 0 {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read private key from stdin: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Enter private key (hex): ")
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read private key: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	return "", fmt.Errorf("no private key provided; pipe it via stdin or run interactively")
}
