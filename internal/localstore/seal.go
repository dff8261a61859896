package localstore

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

var errSealTooShort = errors.New("sealed payload shorter than nonce")
var errSealOpen = errors.New("sealed payload does not open with current key")

// sealer wraps secretbox with a key derived once per process.
type sealer struct {
	key [keySize]byte
}

func newSealer(secret string, salt []byte) (*sealer, error) {
	derived, err := scrypt.Key([]byte(secret), salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	s := &sealer{}
	copy(s.key[:], derived)
	return s, nil
}

func (s *sealer) seal(plain []byte) []byte {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key)
}

func (s *sealer) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, errSealTooShort
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, errSealOpen
	}
	return plain, nil
}

// loadOrCreateSalt keeps the scrypt salt alongside the data it protects so
// the same secret derives the same key across restarts.
func loadOrCreateSalt(db *sql.DB) ([]byte, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("initialize meta table: %w", err)
	}

	var salt []byte
	err := db.QueryRow(`SELECT value FROM meta WHERE key = 'seal_salt'`).Scan(&salt)
	if err == nil {
		return salt, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("read seal salt: %w", err)
	}

	salt = make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate seal salt: %w", err)
	}
	if _, err := db.Exec(
		`INSERT INTO meta (key, value) VALUES ('seal_salt', ?)`, salt); err != nil {
		return nil, fmt.Errorf("store seal salt: %w", err)
	}
	return salt, nil
}
