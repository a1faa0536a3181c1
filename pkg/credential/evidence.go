package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EvidenceKind tags the variant of an EvidenceType.
type EvidenceKind int

// The zero EvidenceKind is invalid.
const (
	EvidenceKindProject EvidenceKind = iota + 1
	EvidenceKindAssessment
	EvidenceKindPortfolio
	EvidenceKindCertification
	EvidenceKindOther
)

var evidenceKindNames = map[EvidenceKind]string{
	EvidenceKindProject:       "project",
	EvidenceKindAssessment:    "assessment",
	EvidenceKindPortfolio:     "portfolio",
	EvidenceKindCertification: "certification",
	EvidenceKindOther:         "other",
}

// String returns the lowercase kind name.
func (k EvidenceKind) String() string {
	if name, ok := evidenceKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EvidenceKind(%d)", int(k))
}

// ParseEvidenceKind parses a kind name, case-insensitively.
func ParseEvidenceKind(s string) (EvidenceKind, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for kind, name := range evidenceKindNames {
		if name == want {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown evidence kind %q", s)
}

// EvidenceType is a tagged variant. Only the Other kind carries a Label.
type EvidenceType struct {
	Kind  EvidenceKind
	Label string
}

// ProjectEvidence returns the Project evidence type.
func ProjectEvidence() EvidenceType { return EvidenceType{Kind: EvidenceKindProject} }

// AssessmentEvidence returns the Assessment evidence type.
func AssessmentEvidence() EvidenceType { return EvidenceType{Kind: EvidenceKindAssessment} }

// PortfolioEvidence returns the Portfolio evidence type.
func PortfolioEvidence() EvidenceType { return EvidenceType{Kind: EvidenceKindPortfolio} }

// CertificationEvidence returns the Certification evidence type.
func CertificationEvidence() EvidenceType { return EvidenceType{Kind: EvidenceKindCertification} }

// OtherEvidence returns an Other evidence type carrying a free-text label.
func OtherEvidence(label string) EvidenceType {
	return EvidenceType{Kind: EvidenceKindOther, Label: label}
}

// Validate checks that the variant is well formed.
func (t EvidenceType) Validate() error {
	switch t.Kind {
	case EvidenceKindProject, EvidenceKindAssessment, EvidenceKindPortfolio, EvidenceKindCertification:
		if t.Label != "" {
			return fmt.Errorf("evidence kind %s does not take a label", t.Kind)
		}
		return nil
	case EvidenceKindOther:
		if t.Label == "" {
			return errors.New("evidence kind other requires a label")
		}
		return nil
	default:
		return fmt.Errorf("invalid evidence kind %d", int(t.Kind))
	}
}

// String returns the kind name, with the label for Other (e.g. "other(hackathon)").
func (t EvidenceType) String() string {
	if t.Kind == EvidenceKindOther {
		return fmt.Sprintf("other(%s)", t.Label)
	}
	return t.Kind.String()
}

type evidenceTypeJSON struct {
	Kind  string `json:"kind"`
	Label string `json:"label,omitempty"`
}

// MarshalJSON encodes the variant as {"kind": "...", "label": "..."}.
func (t EvidenceType) MarshalJSON() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(evidenceTypeJSON{Kind: t.Kind.String(), Label: t.Label})
}

// UnmarshalJSON decodes and validates the variant.
func (t *EvidenceType) UnmarshalJSON(data []byte) error {
	var raw evidenceTypeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := ParseEvidenceKind(raw.Kind)
	if err != nil {
		return err
	}
	decoded := EvidenceType{Kind: kind, Label: raw.Label}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*t = decoded
	return nil
}

// Evidence backs the skill claim of a credential.
type Evidence struct {
	Type        EvidenceType `json:"type"`
	Description string       `json:"description"`

	// URL is an optional reference. Empty means absent.
	URL string `json:"url,omitempty"`
}
