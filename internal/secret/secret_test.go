package secret

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func TestSealOpenRoundtrip(t *testing.T) {
	v, err := NewWithKey([]byte("test key material"))
	if err != nil {
		t.Fatalf("NewWithKey() error = %v", err)
	}

	sealed, err := v.Seal("gsk_live_credential")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if sealed == "gsk_live_credential" {
		t.Fatal("Seal() returned the plaintext")
	}

	got, err := v.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got != "gsk_live_credential" {
		t.Errorf("Open() = %q, want the original plaintext", got)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	v, err := NewWithKey([]byte("test key material"))
	if err != nil {
		t.Fatalf("NewWithKey() error = %v", err)
	}
	sealed, err := v.Seal("secret")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := v.Open(tampered); err == nil {
		t.Error("Open() accepted tampered ciphertext")
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	a, _ := NewWithKey([]byte("key a"))
	b, _ := NewWithKey([]byte("key b"))

	sealed, err := a.Seal("secret")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if _, err := b.Open(sealed); err == nil {
		t.Error("Open() accepted ciphertext sealed under a different key")
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	v, _ := NewWithKey([]byte("k"))
	for _, input := range []string{"not base64 !!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		if _, err := v.Open(input); err == nil {
			t.Errorf("Open(%q) accepted invalid ciphertext", input)
		}
	}
}

func TestOpenCreatesKeyFile(t *testing.T) {
	dir := t.TempDir()

	v1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	path := filepath.Join(dir, keyFileName)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("key file not created: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("key file mode = %o, want 0600", got)
	}

	sealed, err := v1.Seal("persisted")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	// A second vault from the same directory reuses the key.
	v2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	got, err := v2.Open(sealed)
	if err != nil {
		t.Fatalf("Open() after reopen error = %v", err)
	}
	if got != "persisted" {
		t.Errorf("Open() = %q, want persisted", got)
	}
}

func TestKeySource(t *testing.T) {
	v, _ := NewWithKey([]byte("k"))
	sealed, err := v.Seal("gsk_test")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	key, err := v.KeySource(sealed)()
	if err != nil {
		t.Fatalf("KeySource() error = %v", err)
	}
	if key != "gsk_test" {
		t.Errorf("KeySource() = %q, want gsk_test", key)
	}

	// No configured credential resolves to an empty key without error.
	key, err = v.KeySource("")()
	if err != nil {
		t.Fatalf("KeySource(\"\") error = %v", err)
	}
	if key != "" {
		t.Errorf("KeySource(\"\") = %q, want empty", key)
	}
}
