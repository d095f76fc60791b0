package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	saltSize  = 16
	nonceSize = 24
)

// blobCodec encodes structured column values. Encoding is JSON with
// snake_case keys and fixed field order; when a key is present the encoded
// bytes are additionally sealed with secretbox so free-form content is
// unreadable at rest.
type blobCodec struct {
	key *[32]byte
}

func deriveKey(passphrase string, salt []byte) *[32]byte {
	raw := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
	var key [32]byte
	copy(key[:], raw)
	return &key
}

var errSealedBlob = errors.New("sealed blob is corrupt or the passphrase is wrong")

// seal encodes v. The caller passes nil for absent values so the column
// stays NULL.
func (c *blobCodec) seal(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if c.key == nil {
		return plain, nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plain, &nonce, c.key), nil
}

// open decodes a blob column into v. A NULL or empty blob leaves v untouched.
func (c *blobCodec) open(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if c.key == nil {
		return json.Unmarshal(data, v)
	}
	if len(data) < nonceSize+secretbox.Overhead {
		return errSealedBlob
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, c.key)
	if !ok {
		return errSealedBlob
	}
	return json.Unmarshal(plain, v)
}

// loadOrCreateSalt fetches the per-store key-derivation salt, generating and
// persisting one on first open.
func (s *Store) loadOrCreateSalt() ([]byte, error) {
	var salt []byte
	err := s.db.QueryRow(`SELECT value FROM store_meta WHERE key = 'blob_salt'`).Scan(&salt)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	salt = make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`INSERT INTO store_meta(key, value) VALUES ('blob_salt', ?)`, salt); err != nil {
		return nil, err
	}
	return salt, nil
}
