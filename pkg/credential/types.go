// Package credential implements microcredentials: signed statements that a
// subject holds a skill at a given level, backed by evidence, issued by a named
// issuer and optionally expiring.
//
// An Issuer signs the canonical bytes of a credential (see CanonicalBytes) with
// its Ed25519 key. A Verifier checks the signature against the key it holds for
// the claimed issuer and enforces expiry.
package credential

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/microcred/microcred-core/pkg/did"
)

// IssuerIdentity is the public record of an issuing authority.
// It is embedded in every credential the issuer signs.
type IssuerIdentity struct {
	// Name is the display name of the issuer (e.g., "Acme University").
	Name string `json:"name"`

	// URL identifies the issuer. It is metadata only and never fetched.
	URL string `json:"url"`

	// PublicKey is the issuer's Ed25519 public key (32 bytes).
	PublicKey []byte `json:"publicKey"`
}

// KeyID returns the did:key identifier of the issuer's public key.
func (i IssuerIdentity) KeyID() string {
	return did.NewKeyDID(i.PublicKey)
}

// Clone returns a deep copy of the identity.
func (i IssuerIdentity) Clone() IssuerIdentity {
	i.PublicKey = append([]byte(nil), i.PublicKey...)
	return i
}

// Equal reports whether two identities have the same name, URL and key.
func (i IssuerIdentity) Equal(other IssuerIdentity) bool {
	return i.Name == other.Name && i.URL == other.URL && bytes.Equal(i.PublicKey, other.PublicKey)
}

// Subject is the holder of a credential.
type Subject struct {
	// ID is an opaque identifier (e.g., a learner number).
	ID string `json:"id"`

	// Name is the display name of the subject.
	Name string `json:"name"`
}

// SkillLevel is the proficiency asserted by a credential.
// Levels are ordered: Beginner < Intermediate < Advanced < Expert.
type SkillLevel int

// The zero SkillLevel is invalid so that an unset level is never signed.
const (
	Beginner SkillLevel = iota + 1
	Intermediate
	Advanced
	Expert
)

var skillLevelNames = map[SkillLevel]string{
	Beginner:     "beginner",
	Intermediate: "intermediate",
	Advanced:     "advanced",
	Expert:       "expert",
}

// String returns the lowercase level name.
func (l SkillLevel) String() string {
	if name, ok := skillLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("SkillLevel(%d)", int(l))
}

// Valid reports whether l is one of the defined levels.
func (l SkillLevel) Valid() bool {
	_, ok := skillLevelNames[l]
	return ok
}

// ParseSkillLevel parses a level name, case-insensitively.
func ParseSkillLevel(s string) (SkillLevel, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for level, name := range skillLevelNames {
		if name == want {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unknown skill level %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l SkillLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid skill level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *SkillLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseSkillLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Skill is the competency a credential attests to.
type Skill struct {
	Name  string     `json:"name"`
	Level SkillLevel `json:"level"`
}

// Microcredential is a signed record asserting a subject's skill.
//
// Every field except Signature is covered by the signature. Changing any of
// them after issuance invalidates the credential; there is no re-signing.
type Microcredential struct {
	// ID is a random UUID assigned at issuance.
	ID string `json:"id"`

	// Issuer is a full copy of the issuing identity, including its public key.
	Issuer IssuerIdentity `json:"issuer"`

	Subject  Subject    `json:"subject"`
	Skill    Skill      `json:"skill"`
	Evidence []Evidence `json:"evidence"`

	// IssuedAt is the UTC issuance time.
	IssuedAt time.Time `json:"issuedAt"`

	// ExpiresAt is the optional UTC expiry. Nil means the credential never expires.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	// Metadata holds free-form key/value pairs set before signing.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Signature is the Ed25519 signature over CanonicalBytes.
	Signature []byte `json:"signature"`
}

// IsExpired reports whether the credential has an expiry at or before now.
func (c *Microcredential) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// CanonicalBytes returns the bytes covered by the credential's signature.
func (c *Microcredential) CanonicalBytes() ([]byte, error) {
	return CanonicalBytes(c)
}
