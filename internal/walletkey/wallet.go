// Package walletkey stores a participant's EIP-712 signing key in the OS
// keyring for splitctl, following the teacher's keyring-open/create/import
// skeleton generalized from a per-user wallet to a single operator key.
package walletkey

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/99designs/keyring"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"splitcoord/internal/eip712"
)

const keyID = "splitctl-signing-key"

// Wallet holds the keyring handle and, once loaded, the signer's address.
type Wallet struct {
	Address common.Address
	ring    keyring.Keyring
}

// Open opens the OS keyring and loads an existing key if one is stored.
// A Wallet with a zero Address means no key has been created yet.
func Open() (*Wallet, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, fmt.Errorf("walletkey: open keyring: %w", err)
	}

	w := &Wallet{ring: ring}
	_ = w.load()
	return w, nil
}

func openKeyring() (keyring.Keyring, error) {
	if runtime.GOOS == "linux" {
		return openLinuxKeyring()
	}

	return keyring.Open(keyring.Config{
		ServiceName:              "splitctl",
		KeychainName:             "splitctl",
		KeychainTrustApplication: true,
	})
}

func openLinuxKeyring() (keyring.Keyring, error) {
	var errs []string

	if hasSecretService() {
		ring, err := keyring.Open(keyring.Config{
			ServiceName:     "splitctl",
			KeychainName:    "splitctl",
			AllowedBackends: []keyring.BackendType{keyring.SecretServiceBackend},
		})
		if err == nil {
			return ring, nil
		}
		errs = append(errs, fmt.Sprintf("Secret Service: %v", err))
	} else {
		errs = append(errs, "Secret Service: DBUS_SESSION_BUS_ADDRESS not set")
	}

	if hasPass() {
		ring, err := keyring.Open(keyring.Config{
			ServiceName:     "splitctl",
			KeychainName:    "splitctl",
			AllowedBackends: []keyring.BackendType{keyring.PassBackend},
		})
		if err == nil {
			return ring, nil
		}
		errs = append(errs, fmt.Sprintf("pass: %v", err))
	} else {
		errs = append(errs, "pass: 'pass' command not found in PATH")
	}

	return nil, fmt.Errorf("no secure keyring available:\n  - %s\n\nrun 'splitctl doctor' for setup help", strings.Join(errs, "\n  - "))
}

// Create generates a fresh key pair and stores it in the keyring.
func (w *Wallet) Create() error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("walletkey: generate key: %w", err)
	}
	return w.store(key)
}

// Import stores privateKeyHex (with or without a 0x prefix) in the keyring.
func (w *Wallet) Import(privateKeyHex string) error {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return fmt.Errorf("walletkey: invalid private key: %w", err)
	}
	return w.store(key)
}

func (w *Wallet) store(key *ecdsa.PrivateKey) error {
	w.Address = crypto.PubkeyToAddress(key.PublicKey)
	return w.ring.Set(keyring.Item{
		Key:  keyID,
		Data: []byte(hex.EncodeToString(crypto.FromECDSA(key))),
	})
}

func (w *Wallet) load() error {
	item, err := w.ring.Get(keyID)
	if err != nil {
		return err
	}
	key, err := crypto.HexToECDSA(string(item.Data))
	if err != nil {
		return fmt.Errorf("walletkey: parse stored key: %w", err)
	}
	w.Address = crypto.PubkeyToAddress(key.PublicKey)
	return nil
}

// Exists reports whether a key has already been stored.
func (w *Wallet) Exists() bool {
	_, err := w.ring.Get(keyID)
	return err == nil
}

// SignApproveSplit signs an ApproveSplit EIP-712 message with the stored key.
func (w *Wallet) SignApproveSplit(domain eip712.DomainConfig, msg eip712.Message) ([]byte, error) {
	item, err := w.ring.Get(keyID)
	if err != nil {
		return nil, fmt.Errorf("walletkey: no signing key stored, run 'splitctl wallet create' first: %w", err)
	}
	key, err := crypto.HexToECDSA(string(item.Data))
	if err != nil {
		return nil, fmt.Errorf("walletkey: parse stored key: %w", err)
	}
	defer zero(key)

	digest, err := eip712.EncodeMessage(eip712.BuildDomain(domain), msg)
	if err != nil {
		return nil, fmt.Errorf("walletkey: encode typed data: %w", err)
	}
	return crypto.Sign(digest[:], key)
}

func zero(key *ecdsa.PrivateKey) {
	if key != nil && key.D != nil {
		key.D.SetUint64(0)
	}
}

// CheckAvailability reports whether a secure keyring backend is usable,
// mirroring the teacher's doctor-command diagnostic.
func CheckAvailability() (available bool, backend string, err error) {
	ring, err := openKeyring()
	if err != nil {
		return false, "", err
	}

	test := keyring.Item{Key: "__splitctl_test__", Data: []byte("test")}
	if err := ring.Set(test); err != nil {
		return false, "", fmt.Errorf("keyring write test failed: %w", err)
	}
	if _, err := ring.Get("__splitctl_test__"); err != nil {
		return false, "", fmt.Errorf("keyring read test failed: %w", err)
	}
	_ = ring.Remove("__splitctl_test__")

	switch runtime.GOOS {
	case "darwin":
		backend = "keychain"
	case "windows":
		backend = "wincred"
	default:
		if hasSecretService() {
			backend = "secret-service"
		} else {
			backend = "pass"
		}
	}
	return true, backend, nil
}

func hasSecretService() bool {
	return os.Getenv("DBUS_SESSION_BUS_ADDRESS") != ""
}

func hasPass() bool {
	paths := strings.Split(os.Getenv("PATH"), string(filepath.ListSeparator))
	for _, dir := range paths {
		if info, err := os.Stat(filepath.Join(dir, "pass")); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}
