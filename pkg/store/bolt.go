// Package store persists issued credentials in a local bbolt database.
// It holds the transport JSON of each credential keyed by credential id; the
// stored bytes are never used for signing or verification.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/microcred/microcred-core/pkg/credential"
	bolt "go.etcd.io/bbolt"
)

const (
	// DBFile is the default database file name.
	DBFile = "wallet.db"

	credentialsBucket = "credentials"
)

// ErrNotFound is returned when no credential has the requested id.
var ErrNotFound = errors.New("credential not found")

// BoltStore is a credential store backed by bbolt.
type BoltStore struct {
	db *bolt.DB
}

// DefaultPath returns the default database path.
func DefaultPath() string {
	if envPath := os.Getenv("MICROCRED_DB"); envPath != "" {
		return envPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".microcred", DBFile)
	}
	return filepath.Join(home, ".microcred", DBFile)
}

// Open opens or creates the database at path.
func Open(path string) (*BoltStore, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(credentialsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Put stores c under its id, replacing any previous entry.
func (s *BoltStore) Put(c *credential.Microcredential) error {
	if c == nil || c.ID == "" {
		return errors.New("credential id is required")
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal credential %s: %w", c.ID, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(credentialsBucket)).Put([]byte(c.ID), data)
	})
}

// Get loads the credential with the given id.
func (s *BoltStore) Get(id string) (*credential.Microcredential, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(credentialsBucket)).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid for the life of the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var c credential.Microcredential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode credential %s: %w", id, err)
	}
	return &c, nil
}

// List returns all stored credentials ordered by issuance time, then id.
func (s *BoltStore) List() ([]*credential.Microcredential, error) {
	var creds []*credential.Microcredential
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(credentialsBucket)).ForEach(func(k, v []byte) error {
			var c credential.Microcredential
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("failed to decode credential %s: %w", k, err)
			}
			creds = append(creds, &c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(creds, func(i, j int) bool {
		if !creds[i].IssuedAt.Equal(creds[j].IssuedAt) {
			return creds[i].IssuedAt.Before(creds[j].IssuedAt)
		}
		return creds[i].ID < creds[j].ID
	})
	return creds, nil
}

// Delete removes the credential with the given id.
func (s *BoltStore) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(credentialsBucket))
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}
