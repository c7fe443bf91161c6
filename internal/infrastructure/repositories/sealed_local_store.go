package repositories

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/avatarctic/resilient-client/go/internal/core/ports"
)

var (
	ErrSealedPayload    = errors.New("local entry failed authentication")
	ErrKeysNotSupported = errors.New("local store cannot list keys")
)

// SealedLocalStore encrypts payloads with XChaCha20-Poly1305 before handing
// them to the wrapped store. The storage key is bound as additional data, so
// a payload copied under another key does not open.
type SealedLocalStore struct {
	inner ports.LocalStore
	aead  cipher.AEAD
}

func NewSealedLocalStore(inner ports.LocalStore, key []byte) (*SealedLocalStore, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("invalid local store key: %w", err)
	}
	return &SealedLocalStore{inner: inner, aead: aead}, nil
}

// ParseKey decodes a hex encoded 32-byte key.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("local store key is not hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("local store key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

var (
	_ ports.LocalStore     = (*SealedLocalStore)(nil)
	_ ports.LocalKeyLister = (*SealedLocalStore)(nil)
)

func (s *SealedLocalStore) Save(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.inner.Save(ctx, key, s.aead.Seal(nonce, nonce, value, []byte(key)))
}

func (s *SealedLocalStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	sealed, ok, err := s.inner.Load(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(sealed) < s.aead.NonceSize()+s.aead.Overhead() {
		return nil, false, ErrSealedPayload
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, false, ErrSealedPayload
	}
	return plain, true, nil
}

func (s *SealedLocalStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// Keys lists the wrapped store's keys; keys are stored in the clear.
func (s *SealedLocalStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	lister, ok := s.inner.(ports.LocalKeyLister)
	if !ok {
		return nil, ErrKeysNotSupported
	}
	return lister.Keys(ctx, prefix)
}
