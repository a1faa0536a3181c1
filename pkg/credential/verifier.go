package credential

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/microcred/microcred-core/pkg/crypto"
)

// trustKey identifies an issuer in the trust set.
type trustKey struct {
	name string
	url  string
}

// Verifier checks credentials against a set of trusted issuer identities.
//
// Verifier does no internal locking. VerifyCredential and TrustedIssuers may run
// concurrently with each other, but calls that modify the trust set
// (AddTrustedIssuer, RemoveTrustedIssuer) must be synchronized by the caller,
// for example with a sync.RWMutex.
type Verifier struct {
	trusted map[trustKey]IssuerIdentity
	clock   clock.Clock
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierClock sets the time source used for expiry checks.
func WithVerifierClock(c clock.Clock) VerifierOption {
	return func(v *Verifier) {
		v.clock = c
	}
}

// NewVerifier creates a Verifier with an empty trust set.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		trusted: make(map[trustKey]IssuerIdentity),
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// AddTrustedIssuer trusts identity, replacing any entry with the same name and URL.
func (v *Verifier) AddTrustedIssuer(identity IssuerIdentity) {
	v.trusted[trustKey{name: identity.Name, url: identity.URL}] = identity.Clone()
}

// RemoveTrustedIssuer drops the issuer with the given name and URL.
// It reports whether an entry was removed.
func (v *Verifier) RemoveTrustedIssuer(name, url string) bool {
	key := trustKey{name: name, url: url}
	if _, ok := v.trusted[key]; !ok {
		return false
	}
	delete(v.trusted, key)
	return true
}

// TrustedIssuers returns copies of the trusted identities, sorted by name then URL.
func (v *Verifier) TrustedIssuers() []IssuerIdentity {
	out := make([]IssuerIdentity, 0, len(v.trusted))
	for _, id := range v.trusted {
		out = append(out, id.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// VerifyCredential checks c and returns nil if it is valid.
//
// Checks run in order and stop at the first failure:
//  1. the issuer (name, URL) is trusted, else ErrCodeUntrustedIssuer;
//  2. the embedded issuer key equals the trusted key, else ErrCodeIssuerMismatch;
//  3. the signature verifies over CanonicalBytes with the trusted key, else
//     ErrCodeSignatureInvalid (ErrCodeMalformed for bad key or signature lengths);
//  4. the credential is not expired, else ErrCodeExpired.
//
// Verification never modifies c or the trust set.
func (v *Verifier) VerifyCredential(c *Microcredential) error {
	if c == nil {
		return NewError(ErrCodeMalformed, "credential is nil")
	}

	// Step 1: Look up the claimed issuer
	trusted, ok := v.trusted[trustKey{name: c.Issuer.Name, url: c.Issuer.URL}]
	if !ok {
		return NewError(ErrCodeUntrustedIssuer, fmt.Sprintf("issuer %q (%s) is not trusted", c.Issuer.Name, c.Issuer.URL))
	}

	// Step 2: The credential must carry the key we trust for that issuer
	if !bytes.Equal(trusted.PublicKey, c.Issuer.PublicKey) {
		return NewError(ErrCodeIssuerMismatch, fmt.Sprintf("credential key for issuer %q does not match trusted key %s", c.Issuer.Name, trusted.KeyID()))
	}

	// Step 3: Verify against the trusted key, never the embedded one
	payload, err := CanonicalBytes(c)
	if err != nil {
		return err
	}

	valid, err := crypto.Verify(trusted.PublicKey, payload, c.Signature)
	if err != nil {
		if errors.Is(err, crypto.ErrMalformedKey) || errors.Is(err, crypto.ErrMalformedSignature) {
			return WrapError(ErrCodeMalformed, "cannot verify signature", err)
		}
		return WrapError(ErrCodeSignatureInvalid, "signature verification failed", err)
	}
	if !valid {
		return NewError(ErrCodeSignatureInvalid, fmt.Sprintf("signature on credential %s is invalid", c.ID))
	}

	// Step 4: Expiry
	now := v.clock.Now()
	if c.IsExpired(now) {
		return NewError(ErrCodeExpired, fmt.Sprintf("credential expired at %s", c.ExpiresAt.UTC().Format(time.RFC3339)))
	}

	return nil
}

// VerifyCredentials verifies each credential independently and returns one
// result per input, in order.
func (v *Verifier) VerifyCredentials(creds []*Microcredential) []error {
	results := make([]error, len(creds))
	for i, c := range creds {
		results[i] = v.VerifyCredential(c)
	}
	return results
}
