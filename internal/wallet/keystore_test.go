package wallet

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testKeystore(t *testing.T) *Keystore {
	t.Helper()
	ks, err := NewKeystore(t.TempDir())
	if err != nil {
		t.Fatalf("NewKeystore() error: %v", err)
	}
	return ks
}

func TestKeystore_CreateAndLoad(t *testing.T) {
	ks := testKeystore(t)
	password := []byte("test-password")

	first, err := ks.Create("mywallet", abandonAbout, password, fastParams())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if first.Address != "vite_74bec955630f7c11fd9d2c24c91b5c37c0cf58a3c4ee2931fa" {
		t.Errorf("first address = %s", first.Address)
	}

	loaded, err := ks.Load("mywallet", password)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded != abandonAbout {
		t.Errorf("Load() = %q, want original mnemonic", loaded)
	}
}

func TestKeystore_CreateNormalizes(t *testing.T) {
	ks := testKeystore(t)
	if _, err := ks.Create("w", "  ABANDON "+abandonAbout[8:]+"\n", []byte("p"), fastParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	loaded, _ := ks.Load("w", []byte("p"))
	if loaded != abandonAbout {
		t.Errorf("Load() = %q, want normalized mnemonic", loaded)
	}
}

func TestKeystore_CreateInvalidMnemonic(t *testing.T) {
	ks := testKeystore(t)
	if _, err := ks.Create("w", "not a mnemonic", []byte("p"), fastParams()); !errors.Is(err, ErrInvalidSeed) {
		t.Errorf("err = %v, want ErrInvalidSeed", err)
	}
	if names, _ := ks.List(); len(names) != 0 {
		t.Errorf("invalid mnemonic left a wallet file: %v", names)
	}
}

func TestKeystore_CreateDuplicate(t *testing.T) {
	ks := testKeystore(t)
	if _, err := ks.Create("dup", abandonAbout, []byte("p"), fastParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := ks.Create("dup", abandonAbout, []byte("p"), fastParams()); !errors.Is(err, ErrWalletExists) {
		t.Errorf("err = %v, want ErrWalletExists", err)
	}
}

func TestKeystore_BadName(t *testing.T) {
	ks := testKeystore(t)
	for _, name := range []string{"", "../escape", "a/b", "has space"} {
		if _, err := ks.Create(name, abandonAbout, []byte("p"), fastParams()); !errors.Is(err, ErrWalletName) {
			t.Errorf("Create(%q) err = %v, want ErrWalletName", name, err)
		}
	}
}

func TestKeystore_LoadWrongPassword(t *testing.T) {
	ks := testKeystore(t)
	ks.Create("w", abandonAbout, []byte("right"), fastParams())
	if _, err := ks.Load("w", []byte("wrong")); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("err = %v, want ErrWrongPassword", err)
	}
}

func TestKeystore_LoadNonexistent(t *testing.T) {
	ks := testKeystore(t)
	if _, err := ks.Load("missing", []byte("p")); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("err = %v, want ErrWalletNotFound", err)
	}
}

func TestKeystore_List(t *testing.T) {
	ks := testKeystore(t)
	for _, name := range []string{"beta", "alpha"} {
		if _, err := ks.Create(name, abandonAbout, []byte("p"), fastParams()); err != nil {
			t.Fatalf("Create(%s) error: %v", name, err)
		}
	}
	os.WriteFile(filepath.Join(ks.Dir(), "notes.txt"), []byte("x"), 0600)

	names, err := ks.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List() = %v, want [alpha beta]", names)
	}
}

func TestKeystore_Delete(t *testing.T) {
	ks := testKeystore(t)
	ks.Create("gone", abandonAbout, []byte("p"), fastParams())
	if err := ks.Delete("gone"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := ks.Delete("gone"); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("second Delete() err = %v, want ErrWalletNotFound", err)
	}
}

func TestKeystore_AddAccount(t *testing.T) {
	ks := testKeystore(t)
	ks.Create("w", abandonAbout, []byte("p"), fastParams())

	kp, _ := Keyring{}.Derive(abandonAbout, 2)
	entry := AccountEntry{Index: 2, Name: "savings", Address: kp.Address.String()}
	if err := ks.AddAccount("w", entry); err != nil {
		t.Fatalf("AddAccount() error: %v", err)
	}
	// Idempotent.
	if err := ks.AddAccount("w", entry); err != nil {
		t.Fatalf("repeat AddAccount() error: %v", err)
	}
	if err := ks.AddAccount("w", AccountEntry{Index: 2, Address: "vite_other"}); err == nil {
		t.Error("expected conflict for index 2 with a different address")
	}

	accounts, err := ks.ListAccounts("w")
	if err != nil {
		t.Fatalf("ListAccounts() error: %v", err)
	}
	if len(accounts) != 2 || accounts[0].Index != 0 || accounts[1].Address != entry.Address {
		t.Errorf("ListAccounts() = %+v", accounts)
	}
}

func TestKeystore_FilePermissions(t *testing.T) {
	ks := testKeystore(t)
	ks.Create("perm", abandonAbout, []byte("p"), fastParams())
	info, err := os.Stat(filepath.Join(ks.Dir(), "perm.wallet"))
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
