// Package trust provides a local, file-backed store of trusted issuer
// identities. A verifier's trust set is loaded from it with LoadInto.
package trust

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-jose/go-jose/v4"
	"github.com/microcred/microcred-core/pkg/credential"
	"github.com/microcred/microcred-core/pkg/crypto"
	"github.com/microcred/microcred-core/pkg/did"
)

// Common errors returned by this package.
var (
	ErrIssuerNotFound  = errors.New("issuer not found in trust store")
	ErrInvalidIdentity = errors.New("invalid issuer identity")
	ErrDuplicateIssuer = errors.New("issuer trusted under more than one key")
)

// Store is the interface for a trust store.
type Store interface {
	// Add trusts an issuer identity, replacing any entry for the same key.
	Add(identity credential.IssuerIdentity) error

	// Get retrieves an identity by the did:key of its public key.
	Get(keyID string) (*credential.IssuerIdentity, error)

	// List returns all trusted identities.
	List() ([]credential.IssuerIdentity, error)

	// Remove removes an identity by the did:key of its public key.
	Remove(keyID string) error
}

// identityFile is the on-disk format of a trusted identity.
type identityFile struct {
	Name string          `json:"name"`
	URL  string          `json:"url"`
	Key  jose.JSONWebKey `json:"key"`
}

// FileStore implements Store with one JSON file per identity.
// Default location: ~/.microcred/trust/
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// DefaultTrustDir returns the default trust store directory.
func DefaultTrustDir() string {
	if envPath := os.Getenv("MICROCRED_TRUST_DIR"); envPath != "" {
		return envPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".microcred/trust"
	}
	return filepath.Join(home, ".microcred", "trust")
}

// NewFileStore creates a new file-based trust store.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = DefaultTrustDir()
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create trust directory: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

// identityPath returns the path for an identity file.
func (s *FileStore) identityPath(keyID string) string {
	return filepath.Join(s.dir, sanitizeFilename(keyID)+".json")
}

// Add adds an identity to the trust store. An existing entry with the same
// name and URL is replaced, so the store never holds two keys for one issuer.
func (s *FileStore) Add(identity credential.IssuerIdentity) error {
	if identity.Name == "" || identity.URL == "" {
		return fmt.Errorf("%w: name and url are required", ErrInvalidIdentity)
	}

	kid := identity.KeyID()
	jwk, err := crypto.PublicJWK(identity.PublicKey, kid)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}

	data, err := json.MarshalIndent(identityFile{Name: identity.Name, URL: identity.URL, Key: jwk}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.identityPath(kid)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write identity: %w", err)
	}

	entries, err := s.entries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.path == path || e.identity.Name != identity.Name || e.identity.URL != identity.URL {
			continue
		}
		if err := os.Remove(e.path); err != nil {
			return fmt.Errorf("failed to remove replaced identity: %w", err)
		}
	}

	return nil
}

// Get retrieves an identity by key id.
func (s *FileStore) Get(keyID string) (*credential.IssuerIdentity, error) {
	pub, err := did.PublicKeyFromKeyDID(keyID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, err := readIdentity(s.identityPath(keyID))
	if os.IsNotExist(err) {
		return nil, ErrIssuerNotFound
	}
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(identity.PublicKey, pub) {
		return nil, fmt.Errorf("%w: file for %s holds key %s", ErrInvalidIdentity, keyID, identity.KeyID())
	}
	return identity, nil
}

// List returns all identities in the store, sorted by name then URL.
// Unreadable or invalid files are skipped.
func (s *FileStore) List() ([]credential.IssuerIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.entries()
	if err != nil {
		return nil, err
	}

	identities := make([]credential.IssuerIdentity, 0, len(entries))
	for _, e := range entries {
		identities = append(identities, e.identity)
	}

	sort.Slice(identities, func(i, j int) bool {
		if identities[i].Name != identities[j].Name {
			return identities[i].Name < identities[j].Name
		}
		return identities[i].URL < identities[j].URL
	})

	return identities, nil
}

type storedIdentity struct {
	path     string
	identity credential.IssuerIdentity
}

// entries reads every valid identity file. Callers hold s.mu.
func (s *FileStore) entries() ([]storedIdentity, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust directory: %w", err)
	}

	var out []storedIdentity
	for _, entry := range dirEntries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		identity, err := readIdentity(path)
		if err != nil {
			continue
		}
		out = append(out, storedIdentity{path: path, identity: *identity})
	}
	return out, nil
}

// Remove removes an identity by key id.
func (s *FileStore) Remove(keyID string) error {
	if _, err := did.PublicKeyFromKeyDID(keyID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.identityPath(keyID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ErrIssuerNotFound
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove identity: %w", err)
	}

	return nil
}

// LoadInto adds every stored identity to the verifier's trust set and
// returns how many were loaded. The verifier holds one key per name and URL,
// so a store listing two keys for the same issuer is rejected before any
// identity is added.
func LoadInto(s Store, v *credential.Verifier) (int, error) {
	identities, err := s.List()
	if err != nil {
		return 0, err
	}

	type issuer struct{ name, url string }
	seen := make(map[issuer]string, len(identities))
	for _, identity := range identities {
		k := issuer{identity.Name, identity.URL}
		if other, ok := seen[k]; ok {
			return 0, fmt.Errorf("%w: %q (%s) has keys %s and %s", ErrDuplicateIssuer, identity.Name, identity.URL, other, identity.KeyID())
		}
		seen[k] = identity.KeyID()
	}

	for _, identity := range identities {
		v.AddTrustedIssuer(identity)
	}
	return len(identities), nil
}

func readIdentity(path string) (*credential.IssuerIdentity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file identityFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidIdentity, filepath.Base(path), err)
	}

	pub, err := crypto.PublicKeyFromJWK(file.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}

	return &credential.IssuerIdentity{
		Name:      file.Name,
		URL:       file.URL,
		PublicKey: pub,
	}, nil
}

// sanitizeFilename converts a key id to a safe filename.
func sanitizeFilename(kid string) string {
	safe := make([]byte, 0, len(kid))
	for _, c := range []byte(kid) {
		switch c {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			safe = append(safe, '_')
		default:
			safe = append(safe, c)
		}
	}
	return string(safe)
}
