package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// keystoreVersion is the on-disk format version.
const keystoreVersion = 1

// Keystore errors.
var (
	ErrWalletExists   = errors.New("wallet already exists")
	ErrWalletNotFound = errors.New("wallet not found")
	ErrWalletName     = errors.New("wallet name must be 1-64 characters of [A-Za-z0-9_-]")
)

var walletNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// keystoreFile is the on-disk JSON format for an encrypted seed phrase.
type keystoreFile struct {
	Version           int            `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
	EncryptedMnemonic []byte         `json:"encrypted_mnemonic"`
	Accounts          []AccountEntry `json:"accounts"`
}

// AccountEntry records a derived address so it can be listed without the password.
type AccountEntry struct {
	Index   uint32 `json:"index"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// Keystore manages encrypted seed phrases on disk, one file per wallet.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

// Dir returns the keystore directory.
func (ks *Keystore) Dir() string { return ks.path }

func (ks *Keystore) walletPath(name string) (string, error) {
	if !walletNameRE.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrWalletName, name)
	}
	return filepath.Join(ks.path, name+".wallet"), nil
}

// Create encrypts mnemonic under password and writes it as a new wallet.
// The index-0 address is recorded so the wallet can be identified later.
func (ks *Keystore) Create(name, mnemonic string, password []byte, params EncryptionParams) (*AccountEntry, error) {
	path, err := ks.walletPath(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrWalletExists, name)
	}

	mnemonic = NormalizeMnemonic(mnemonic)
	kp, err := Keyring{}.Derive(mnemonic, 0)
	if err != nil {
		return nil, err
	}
	kp.Zero()

	encrypted, err := Encrypt([]byte(mnemonic), password, params)
	if err != nil {
		return nil, fmt.Errorf("encrypt mnemonic: %w", err)
	}

	first := AccountEntry{Index: 0, Name: "default", Address: kp.Address.String()}
	kf := keystoreFile{
		Version:           keystoreVersion,
		CreatedAt:         time.Now().UTC(),
		EncryptedMnemonic: encrypted,
		Accounts:          []AccountEntry{first},
	}
	if err := ks.writeFile(path, &kf); err != nil {
		return nil, err
	}
	return &first, nil
}

// Load decrypts a wallet and returns its seed phrase.
func (ks *Keystore) Load(name string, password []byte) (string, error) {
	kf, _, err := ks.open(name)
	if err != nil {
		return "", err
	}
	plain, err := Decrypt(kf.EncryptedMnemonic, password)
	if err != nil {
		return "", fmt.Errorf("decrypt wallet %q: %w", name, err)
	}
	defer wipe(plain)
	return string(plain), nil
}

// AddAccount records a derived account in the wallet metadata. Adding the
// same index with the same address twice is a no-op.
func (ks *Keystore) AddAccount(name string, acct AccountEntry) error {
	kf, path, err := ks.open(name)
	if err != nil {
		return err
	}
	for _, existing := range kf.Accounts {
		if existing.Index != acct.Index {
			continue
		}
		if existing.Address == acct.Address {
			return nil
		}
		return fmt.Errorf("account index %d already recorded with address %s", acct.Index, existing.Address)
	}
	kf.Accounts = append(kf.Accounts, acct)
	sort.Slice(kf.Accounts, func(i, j int) bool { return kf.Accounts[i].Index < kf.Accounts[j].Index })
	return ks.writeFile(path, kf)
}

// ListAccounts returns the recorded accounts of a wallet, ordered by index.
func (ks *Keystore) ListAccounts(name string) ([]AccountEntry, error) {
	kf, _, err := ks.open(name)
	if err != nil {
		return nil, err
	}
	return kf.Accounts, nil
}

// List returns the names of all wallets in the keystore, sorted.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path, err := ks.walletPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %q", ErrWalletNotFound, name)
		}
		return fmt.Errorf("delete wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) open(name string) (*keystoreFile, string, error) {
	path, err := ks.walletPath(name)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: %q", ErrWalletNotFound, name)
		}
		return nil, "", fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, "", fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, "", fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, path, nil
}

// writeFile replaces the wallet atomically via a temp file and rename.
func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}
