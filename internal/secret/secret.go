// Package secret stores cloud provider API keys encrypted at rest.
//
// Credentials are sealed with ChaCha20-Poly1305 under a machine-local key
// file and decrypted just-in-time, immediately before a provider call. The
// cipher performs well on CPUs without AES hardware acceleration, which
// matters for the small ARM boxes this daemon often runs on.
//
// Ciphertext format: base64(nonce || chacha20poly1305 sealed bytes), the same
// layout on disk and in the config file.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/voicekey/voicekey/pkg/provider/llm"
)

// keyFileName is the machine-local key material file inside the data
// directory. Created with 0600 on first use.
const keyFileName = "secret.key"

// Vault seals and opens credential strings. Safe for concurrent use after
// construction.
type Vault struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// Open loads (or on first run creates) the key file under dataDir and
// constructs the vault. The raw key material is hashed with SHA-256 to the
// 32 bytes the cipher needs, so any key file length works.
func Open(dataDir string) (*Vault, error) {
	keyMaterial, err := loadOrCreateKey(filepath.Join(dataDir, keyFileName))
	if err != nil {
		return nil, err
	}
	return NewWithKey(keyMaterial)
}

// NewWithKey constructs a vault directly from key material. Used by Open and
// by tests.
func NewWithKey(keyMaterial []byte) (*Vault, error) {
	sum := sha256.Sum256(keyMaterial)
	aead, err := chacha20poly1305.New(sum[:])
	if err != nil {
		return nil, fmt.Errorf("secret: init cipher: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Seal encrypts plaintext and returns the base64 ciphertext stored in config.
func (v *Vault) Seal(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secret: generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a base64 ciphertext produced by Seal. Tampered or
// wrongly-keyed ciphertext fails authentication and returns an error.
func (v *Vault) Open(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", fmt.Errorf("secret: decode ciphertext: %w", err)
	}
	nonceSize := v.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("secret: ciphertext too short")
	}
	plaintext, err := v.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("secret: open ciphertext: %w", err)
	}
	return string(plaintext), nil
}

// KeySource adapts a sealed credential into an [llm.KeySource] that decrypts
// on every call. An empty ciphertext yields an empty key, which providers
// treat as "no credential configured".
func (v *Vault) KeySource(ciphertext string) llm.KeySource {
	return func() (string, error) {
		if ciphertext == "" {
			return "", nil
		}
		return v.Open(ciphertext)
	}
}

func loadOrCreateKey(path string) ([]byte, error) {
	keyMaterial, err := os.ReadFile(path)
	if err == nil {
		if len(keyMaterial) == 0 {
			return nil, fmt.Errorf("secret: key file %s is empty", path)
		}
		return keyMaterial, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("secret: read key file: %w", err)
	}

	keyMaterial = make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, keyMaterial); err != nil {
		return nil, fmt.Errorf("secret: generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("secret: create data dir: %w", err)
	}
	if err := os.WriteFile(path, keyMaterial, 0o600); err != nil {
		return nil, fmt.Errorf("secret: write key file: %w", err)
	}
	return keyMaterial, nil
}
