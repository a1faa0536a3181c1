package credential

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/gowebpki/jcs"
)

// DocumentType tags the field layout of the signable document. It is part of
// the signed bytes, so a credential signed under one layout never verifies
// under another.
const DocumentType = "microcredential/v1"

// signableDocument is the fixed layout covered by the signature. It is kept
// separate from the transport JSON of Microcredential so that display or
// storage formats can change without breaking signatures.
type signableDocument struct {
	Type      string             `json:"type"`
	ID        string             `json:"id"`
	Issuer    signableIssuer     `json:"issuer"`
	Subject   signableSubject    `json:"subject"`
	Skill     signableSkill      `json:"skill"`
	Evidence  []signableEvidence `json:"evidence"`
	IssuedAt  string             `json:"issuedAt"`
	ExpiresAt *string            `json:"expiresAt"` // null when absent
	Metadata  map[string]string  `json:"metadata"`
}

type signableIssuer struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	PublicKey string `json:"publicKey"`
}

type signableSubject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type signableSkill struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

type signableEvidence struct {
	Kind        string `json:"kind"`
	Label       string `json:"label"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// CanonicalBytes returns the deterministic encoding of every field of c except
// Signature. The document is marshaled to JSON and canonicalized per RFC 8785
// (JCS): object keys sorted, fixed number and string encoding, no whitespace.
//
// Timestamps are encoded in UTC with nanosecond precision. A nil Metadata map
// and an empty one encode identically, as do nil and empty Evidence.
func CanonicalBytes(c *Microcredential) ([]byte, error) {
	if c == nil {
		return nil, NewError(ErrCodeMalformed, "credential is nil")
	}

	doc, err := newSignableDocument(c)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, WrapError(ErrCodeMalformed, "failed to marshal signable document", err)
	}

	canonical, err := jcs.Transform(data)
	if err != nil {
		return nil, WrapError(ErrCodeMalformed, "failed to canonicalize signable document", err)
	}

	return canonical, nil
}

func newSignableDocument(c *Microcredential) (*signableDocument, error) {
	if field, ok := invalidUTF8Field(c); ok {
		return nil, NewError(ErrCodeMalformed, fmt.Sprintf("%s is not valid UTF-8", field))
	}
	if !c.Skill.Level.Valid() {
		return nil, NewError(ErrCodeMalformed, fmt.Sprintf("invalid skill level %d", int(c.Skill.Level)))
	}

	evidence := make([]signableEvidence, 0, len(c.Evidence))
	for i, ev := range c.Evidence {
		if err := ev.Type.Validate(); err != nil {
			return nil, WrapError(ErrCodeMalformed, fmt.Sprintf("invalid evidence type at index %d", i), err)
		}
		evidence = append(evidence, signableEvidence{
			Kind:        ev.Type.Kind.String(),
			Label:       ev.Type.Label,
			Description: ev.Description,
			URL:         ev.URL,
		})
	}

	metadata := make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		metadata[k] = v
	}

	doc := &signableDocument{
		Type: DocumentType,
		ID:   c.ID,
		Issuer: signableIssuer{
			Name:      c.Issuer.Name,
			URL:       c.Issuer.URL,
			PublicKey: base64.RawURLEncoding.EncodeToString(c.Issuer.PublicKey),
		},
		Subject: signableSubject{
			ID:   c.Subject.ID,
			Name: c.Subject.Name,
		},
		Skill: signableSkill{
			Name:  c.Skill.Name,
			Level: c.Skill.Level.String(),
		},
		Evidence: evidence,
		IssuedAt: formatTimestamp(c.IssuedAt),
		Metadata: metadata,
	}

	if c.ExpiresAt != nil {
		exp := formatTimestamp(*c.ExpiresAt)
		doc.ExpiresAt = &exp
	}

	return doc, nil
}

// formatTimestamp renders t in UTC as RFC 3339 with nanoseconds.
// The fixed-width fraction keeps equal instants byte-identical.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

// invalidUTF8Field names the first signed string of c that is not valid UTF-8.
// JSON encoding would replace such bytes with U+FFFD, letting distinct
// credentials share canonical bytes.
func invalidUTF8Field(c *Microcredential) (string, bool) {
	fields := []struct {
		name, value string
	}{
		{"id", c.ID},
		{"issuer name", c.Issuer.Name},
		{"issuer url", c.Issuer.URL},
		{"subject id", c.Subject.ID},
		{"subject name", c.Subject.Name},
		{"skill name", c.Skill.Name},
	}
	for _, f := range fields {
		if !utf8.ValidString(f.value) {
			return f.name, true
		}
	}

	for i, ev := range c.Evidence {
		switch {
		case !utf8.ValidString(ev.Type.Label):
			return fmt.Sprintf("evidence %d label", i), true
		case !utf8.ValidString(ev.Description):
			return fmt.Sprintf("evidence %d description", i), true
		case !utf8.ValidString(ev.URL):
			return fmt.Sprintf("evidence %d url", i), true
		}
	}

	for k, v := range c.Metadata {
		if !utf8.ValidString(k) {
			return "metadata key", true
		}
		if !utf8.ValidString(v) {
			return fmt.Sprintf("metadata %q", k), true
		}
	}
	return "", false
}
