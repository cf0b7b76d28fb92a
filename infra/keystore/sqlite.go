// Package keystore stores signing key material in SQLite: the private
// keys of locally hosted participants and the public blobs of their
// counterparts. It implements sign.KeyStore.
package keystore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/sign"
)

// SQLiteStore resolves key material per (role, domain) pair.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS local_keys (
        role TEXT,
        domain TEXT,
        private_key TEXT,
        public_blob TEXT,
        PRIMARY KEY (role, domain)
    );
    CREATE TABLE IF NOT EXISTS counterpart_keys (
        role TEXT,
        domain TEXT,
        public_blob TEXT,
        PRIMARY KEY (role, domain)
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// StoreLocal generates a key pair from seed and stores it for the local
// participant. The cs1. public blob is returned for distribution.
func (s *SQLiteStore) StoreLocal(p model.Participant, seed []byte) (string, error) {
	priv, blob, err := sign.GenerateKeyPair(seed)
	if err != nil {
		return "", err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO local_keys (role, domain, private_key, public_blob) VALUES (?, ?, ?, ?)`,
		p.Role.String(), p.Domain, priv, blob)
	if err != nil {
		return "", err
	}
	return blob, nil
}

// StoreCounterpart records the public blob of a remote participant.
func (s *SQLiteStore) StoreCounterpart(p model.Participant, publicBlob string) error {
	if _, err := sign.DecodePublicBlob(publicBlob); err != nil {
		return fmt.Errorf("public blob of %s: %w", p, err)
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO counterpart_keys (role, domain, public_blob) VALUES (?, ?, ?)`,
		p.Role.String(), p.Domain, publicBlob)
	return err
}

// PrivateKey returns the Base64 private key of a local participant.
func (s *SQLiteStore) PrivateKey(p model.Participant) (string, error) {
	var key string
	err := s.db.QueryRow(
		`SELECT private_key FROM local_keys WHERE role = ? AND domain = ?`,
		p.Role.String(), p.Domain).Scan(&key)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no private key for %s", p)
	}
	if err != nil {
		return "", err
	}
	return key, nil
}

// PublicBlob returns the cs1. blob of a participant. Local participants
// resolve too, so a node can verify its own traffic in loopback setups.
func (s *SQLiteStore) PublicBlob(p model.Participant) (string, error) {
	var blob string
	err := s.db.QueryRow(
		`SELECT public_blob FROM counterpart_keys WHERE role = ? AND domain = ?`,
		p.Role.String(), p.Domain).Scan(&blob)
	if err == sql.ErrNoRows {
		err = s.db.QueryRow(
			`SELECT public_blob FROM local_keys WHERE role = ? AND domain = ?`,
			p.Role.String(), p.Domain).Scan(&blob)
	}
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no public key for %s", p)
	}
	if err != nil {
		return "", err
	}
	return blob, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
