package securestore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
)

var ErrTampered = errors.New("securestore: value failed authentication")

// FileStore keeps one AES-GCM sealed file per key. The item key is bound
// as additional data so a file copied under another name fails to open.
type FileStore struct {
	dir  string
	mu   sync.Mutex
	aead cipher.AEAD
}

func DeriveKey(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

func NewFileStore(dir string, secret, salt []byte) (*FileStore, error) {
	if len(secret) == 0 {
		return nil, errors.New("securestore: empty secret")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("securestore: create dir: %w", err)
	}

	block, err := aes.NewCipher(DeriveKey(secret, salt))
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &FileStore{dir: dir, aead: aead}, nil
}

func (f *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:]))
}

func (f *FileStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("securestore: read %s: %w", key, err)
	}

	ns := f.aead.NonceSize()
	if len(raw) < ns {
		return "", false, ErrTampered
	}
	plain, err := f.aead.Open(nil, raw[:ns], raw[ns:], []byte(key))
	if err != nil {
		return "", false, ErrTampered
	}
	return string(plain), true, nil
}

func (f *FileStore) SetItem(ctx context.Context, key, value string) error {
	nonce := make([]byte, f.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sealed := f.aead.Seal(nonce, nonce, []byte(value), []byte(key))

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, ".item-*")
	if err != nil {
		return fmt.Errorf("securestore: write %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("securestore: write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("securestore: sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return fmt.Errorf("securestore: commit %s: %w", key, err)
	}
	return nil
}

func (f *FileStore) DeleteItem(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("securestore: delete %s: %w", key, err)
	}
	return nil
}
