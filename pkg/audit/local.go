// Package audit records verification outcomes in an append-only local log.
// The log is an explicit collaborator passed to callers that want an audit
// trail; verification itself keeps no state.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/microcred/microcred-core/pkg/credential"
)

// OutcomeValid is the outcome of a credential that passed verification.
const OutcomeValid = "VALID"

// Entry is one audited verification.
type Entry struct {
	// Time is when verification ran.
	Time time.Time `json:"time"`

	// CredentialID is the id of the verified credential, if known.
	CredentialID string `json:"credentialId,omitempty"`

	// IssuerName and IssuerKeyID identify the issuer the credential claims.
	IssuerName  string `json:"issuerName,omitempty"`
	IssuerKeyID string `json:"issuerKeyId,omitempty"`

	// SubjectID is the credential holder.
	SubjectID string `json:"subjectId,omitempty"`

	// Outcome is OutcomeValid or one of the credential.ErrCode* codes.
	Outcome string `json:"outcome"`

	// Message is the error text for failed verifications.
	Message string `json:"message,omitempty"`
}

// NewEntry builds an audit entry from a credential and the result of verifying it.
func NewEntry(c *credential.Microcredential, verifyErr error, now time.Time) Entry {
	entry := Entry{
		Time:    now.UTC(),
		Outcome: OutcomeValid,
	}
	if c != nil {
		entry.CredentialID = c.ID
		entry.IssuerName = c.Issuer.Name
		entry.IssuerKeyID = c.Issuer.KeyID()
		entry.SubjectID = c.Subject.ID
	}
	if verifyErr != nil {
		entry.Outcome = credential.GetErrorCode(verifyErr)
		if entry.Outcome == "" {
			entry.Outcome = "ERROR"
		}
		entry.Message = verifyErr.Error()
	}
	return entry
}

// Recorder stores audit entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// LocalStore writes entries to daily JSONL files (YYYY-MM-DD.jsonl).
type LocalStore struct {
	dir       string
	clock     clock.Clock
	mu        sync.Mutex
	file      *os.File
	currentFn string
}

// DefaultAuditDir returns the default audit directory.
func DefaultAuditDir() string {
	if envPath := os.Getenv("MICROCRED_AUDIT_DIR"); envPath != "" {
		return envPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".microcred/audit"
	}
	return filepath.Join(home, ".microcred", "audit")
}

// NewLocalStore creates a local audit store in dir.
// A nil clock means the wall clock.
func NewLocalStore(dir string, clk clock.Clock) (*LocalStore, error) {
	if dir == "" {
		dir = DefaultAuditDir()
	}
	if clk == nil {
		clk = clock.New()
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	return &LocalStore{dir: dir, clock: clk}, nil
}

func (s *LocalStore) dayFile(day time.Time) string {
	return filepath.Join(s.dir, day.UTC().Format("2006-01-02")+".jsonl")
}

// Record appends entry to the current day's file.
func (s *LocalStore) Record(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn := s.dayFile(s.clock.Now())

	// Rotate file if date changed
	if s.currentFn != fn {
		if s.file != nil {
			_ = s.file.Close()
		}

		file, err := os.OpenFile(fn, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("failed to open audit file: %w", err)
		}
		s.file = file
		s.currentFn = fn
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	return nil
}

// Read returns the entries recorded on the given UTC day.
func (s *LocalStore) Read(day time.Time) ([]Entry, error) {
	f, err := os.Open(s.dayFile(day))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("failed to parse audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit file: %w", err)
	}
	return entries, nil
}

// Close closes the current audit file.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		s.currentFn = ""
		return err
	}
	return nil
}
