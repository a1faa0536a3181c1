package credential

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/microcred/microcred-core/pkg/crypto"
)

// Issuer holds an issuing authority's signing key and public identity.
//
// The private key is never exposed. An Issuer is immutable after construction
// and safe for concurrent use.
type Issuer struct {
	identity IssuerIdentity
	key      *crypto.PrivateKey
	clock    clock.Clock
	rand     io.Reader
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerClock sets the time source used for IssuedAt.
func WithIssuerClock(c clock.Clock) IssuerOption {
	return func(i *Issuer) {
		i.clock = c
	}
}

// WithRandom sets the random source used for key generation and credential ids.
// Defaults to crypto/rand.Reader.
func WithRandom(r io.Reader) IssuerOption {
	if r == nil {
		r = rand.Reader
	}
	return func(i *Issuer) {
		i.rand = r
	}
}

// NewIssuer creates an issuer with a freshly generated key pair.
func NewIssuer(name, url string, opts ...IssuerOption) (*Issuer, error) {
	iss := newIssuer(opts)

	key, _, err := crypto.GenerateKeyPair(iss.rand)
	if err != nil {
		return nil, WrapError(ErrCodeRandomnessUnavailable, "failed to generate issuer key", err)
	}

	if err := iss.init(name, url, key); err != nil {
		return nil, err
	}
	return iss, nil
}

// NewIssuerFromKey creates an issuer around an existing private key, for
// example one loaded with crypto.ParsePrivateJWK.
func NewIssuerFromKey(name, url string, key *crypto.PrivateKey, opts ...IssuerOption) (*Issuer, error) {
	iss := newIssuer(opts)
	if err := iss.init(name, url, key); err != nil {
		return nil, err
	}
	return iss, nil
}

func newIssuer(opts []IssuerOption) *Issuer {
	iss := &Issuer{
		clock: clock.New(),
		rand:  rand.Reader,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss
}

func (i *Issuer) init(name, url string, key *crypto.PrivateKey) error {
	if name == "" {
		return NewError(ErrCodeInvalidInput, "issuer name is required")
	}
	if url == "" {
		return NewError(ErrCodeInvalidInput, "issuer url is required")
	}
	if !utf8.ValidString(name) || !utf8.ValidString(url) {
		return NewError(ErrCodeInvalidInput, "issuer name and url must be valid UTF-8")
	}

	pub := key.Public()
	if len(pub) != crypto.PublicKeySize {
		return NewError(ErrCodeMalformed, "issuer private key is not initialized")
	}

	i.key = key
	i.identity = IssuerIdentity{
		Name:      name,
		URL:       url,
		PublicKey: pub,
	}
	return nil
}

// IssuerInfo returns a copy of the issuer's public identity.
func (i *Issuer) IssuerInfo() IssuerIdentity {
	return i.identity.Clone()
}

// IssueOption configures a single issuance.
type IssueOption func(*issueConfig)

type issueConfig struct {
	metadata map[string]string
}

// WithMetadata adds key/value metadata to the credential before it is signed.
// Later calls override earlier keys.
func WithMetadata(metadata map[string]string) IssueOption {
	return func(cfg *issueConfig) {
		for k, v := range metadata {
			cfg.metadata[k] = v
		}
	}
}

// IssueCredential builds, signs and returns a new credential.
//
// expiresAt, when set, must be strictly after the issuance time; otherwise the
// request is rejected with ErrCodeInvalidInput rather than producing a
// credential that is already expired.
func (i *Issuer) IssueCredential(subject Subject, skill Skill, evidence []Evidence, expiresAt *time.Time, opts ...IssueOption) (*Microcredential, error) {
	cfg := &issueConfig{metadata: make(map[string]string)}
	for _, opt := range opts {
		opt(cfg)
	}

	// 1. Validate input
	if !skill.Level.Valid() {
		return nil, NewError(ErrCodeInvalidInput, fmt.Sprintf("invalid skill level %d", int(skill.Level)))
	}
	for idx, ev := range evidence {
		if err := ev.Type.Validate(); err != nil {
			return nil, WrapError(ErrCodeInvalidInput, fmt.Sprintf("invalid evidence at index %d", idx), err)
		}
	}

	issuedAt := i.clock.Now().UTC()

	var expiry *time.Time
	if expiresAt != nil {
		exp := expiresAt.UTC()
		if !exp.After(issuedAt) {
			return nil, NewError(ErrCodeInvalidInput, fmt.Sprintf("expiry %s is not after issuance time %s", exp.Format(time.RFC3339), issuedAt.Format(time.RFC3339)))
		}
		expiry = &exp
	}

	// 2. Assign id
	id, err := uuid.NewRandomFromReader(i.rand)
	if err != nil {
		return nil, WrapError(ErrCodeRandomnessUnavailable, "failed to generate credential id", err)
	}

	// 3. Assemble
	cred := &Microcredential{
		ID:        id.String(),
		Issuer:    i.identity.Clone(),
		Subject:   subject,
		Skill:     skill,
		Evidence:  append([]Evidence(nil), evidence...),
		IssuedAt:  issuedAt,
		ExpiresAt: expiry,
	}
	if len(cfg.metadata) > 0 {
		cred.Metadata = cfg.metadata
	}
	if field, bad := invalidUTF8Field(cred); bad {
		return nil, NewError(ErrCodeInvalidInput, fmt.Sprintf("%s is not valid UTF-8", field))
	}

	// 4. Sign canonical bytes
	payload, err := CanonicalBytes(cred)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(i.key, payload)
	if err != nil {
		return nil, WrapError(ErrCodeMalformed, "failed to sign credential", err)
	}

	cred.Signature = sig
	return cred, nil
}
