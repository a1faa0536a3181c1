package credential_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/microcred/microcred-core/pkg/credential"
	"github.com/microcred/microcred-core/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cloneCredential deep-copies a credential through its transport JSON.
func cloneCredential(t *testing.T, c *credential.Microcredential) *credential.Microcredential {
	t.Helper()
	data, err := json.Marshal(c)
	require.NoError(t, err)
	var out credential.Microcredential
	require.NoError(t, json.Unmarshal(data, &out))
	return &out
}

func TestVerifyCredentialRoundTrip(t *testing.T) {
	mock := newMockClock()
	iss, err := credential.NewIssuer("Acme University", "https://acme.example", credential.WithIssuerClock(mock))
	require.NoError(t, err)

	verifier := credential.NewVerifier(credential.WithVerifierClock(mock))
	verifier.AddTrustedIssuer(iss.IssuerInfo())

	future := testEpoch.Add(30 * 24 * time.Hour)
	cases := []struct {
		name     string
		skill    credential.Skill
		evidence []credential.Evidence
		expires  *time.Time
		opts     []credential.IssueOption
	}{
		{name: "no expiry", skill: sampleSkill(), evidence: sampleEvidence()},
		{name: "future expiry", skill: sampleSkill(), evidence: sampleEvidence(), expires: &future},
		{name: "no evidence", skill: credential.Skill{Name: "SQL", Level: credential.Beginner}},
		{
			name:     "other evidence",
			skill:    credential.Skill{Name: "Public Speaking", Level: credential.Expert},
			evidence: []credential.Evidence{{Type: credential.OtherEvidence("conference talk"), Description: "Keynote"}},
		},
		{
			name:  "metadata",
			skill: credential.Skill{Name: "Go", Level: credential.Intermediate},
			opts:  []credential.IssueOption{credential.WithMetadata(map[string]string{"course": "GO-101", "grade": "A"})},
		},
		{
			name:  "unicode and html characters",
			skill: credential.Skill{Name: "Kryptografie <Ü&ß>", Level: credential.Advanced},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cred, err := iss.IssueCredential(sampleSubject(), tc.skill, tc.evidence, tc.expires, tc.opts...)
			require.NoError(t, err)
			assert.NoError(t, verifier.VerifyCredential(cred))

			// Transport JSON is not what gets signed, but it must carry every signed field.
			assert.NoError(t, verifier.VerifyCredential(cloneCredential(t, cred)))
		})
	}
}

func TestVerifyCredentialTampering(t *testing.T) {
	mock := newMockClock()
	iss, err := credential.NewIssuer("Acme University", "https://acme.example", credential.WithIssuerClock(mock))
	require.NoError(t, err)

	verifier := credential.NewVerifier(credential.WithVerifierClock(mock))
	verifier.AddTrustedIssuer(iss.IssuerInfo())

	expiry := testEpoch.Add(24 * time.Hour)
	original, err := iss.IssueCredential(sampleSubject(), sampleSkill(), sampleEvidence(), &expiry,
		credential.WithMetadata(map[string]string{"cohort": "2025"}))
	require.NoError(t, err)
	require.NoError(t, verifier.VerifyCredential(original))

	tests := []struct {
		name   string
		mutate func(c *credential.Microcredential)
	}{
		{"id", func(c *credential.Microcredential) { c.ID = "00000000-0000-4000-8000-000000000000" }},
		{"subject id", func(c *credential.Microcredential) { c.Subject.ID = "S2" }},
		{"subject name", func(c *credential.Microcredential) { c.Subject.Name = "Mallory" }},
		{"skill name", func(c *credential.Microcredential) { c.Skill.Name = "Haskell" }},
		{"skill level", func(c *credential.Microcredential) { c.Skill.Level = credential.Expert }},
		{"evidence description", func(c *credential.Microcredential) { c.Evidence[0].Description = "Forged" }},
		{"evidence url", func(c *credential.Microcredential) { c.Evidence[1].URL = "https://evil.example" }},
		{"evidence type", func(c *credential.Microcredential) { c.Evidence[0].Type = credential.PortfolioEvidence() }},
		{"evidence appended", func(c *credential.Microcredential) {
			c.Evidence = append(c.Evidence, credential.Evidence{Type: credential.ProjectEvidence(), Description: "extra"})
		}},
		{"evidence removed", func(c *credential.Microcredential) { c.Evidence = c.Evidence[:1] }},
		{"evidence reordered", func(c *credential.Microcredential) { c.Evidence[0], c.Evidence[1] = c.Evidence[1], c.Evidence[0] }},
		{"issued at", func(c *credential.Microcredential) { c.IssuedAt = c.IssuedAt.Add(time.Nanosecond) }},
		{"expiry extended", func(c *credential.Microcredential) {
			later := c.ExpiresAt.Add(365 * 24 * time.Hour)
			c.ExpiresAt = &later
		}},
		{"expiry removed", func(c *credential.Microcredential) { c.ExpiresAt = nil }},
		{"metadata changed", func(c *credential.Microcredential) { c.Metadata["cohort"] = "2024" }},
		{"metadata added", func(c *credential.Microcredential) { c.Metadata["honors"] = "true" }},
		{"metadata cleared", func(c *credential.Microcredential) { c.Metadata = nil }},
		{"signature bit flip", func(c *credential.Microcredential) { c.Signature[0] ^= 0x01 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tampered := cloneCredential(t, original)
			tc.mutate(tampered)

			err := verifier.VerifyCredential(tampered)
			require.Error(t, err)
			assert.ErrorIs(t, err, credential.ErrInvalidSignature)
			assert.Equal(t, credential.ErrCodeSignatureInvalid, credential.GetErrorCode(err))
		})
	}

	// The original is untouched by verification of its copies.
	assert.NoError(t, verifier.VerifyCredential(original))
}

func TestVerifyCredentialUntrustedIssuer(t *testing.T) {
	iss, err := credential.NewIssuer("Acme University", "https://acme.example")
	require.NoError(t, err)

	cred, err := iss.IssueCredential(sampleSubject(), sampleSkill(), sampleEvidence(), nil)
	require.NoError(t, err)

	t.Run("empty trust set", func(t *testing.T) {
		err := credential.NewVerifier().VerifyCredential(cred)
		assert.ErrorIs(t, err, credential.ErrUntrustedIssuer)
	})

	t.Run("other issuer trusted", func(t *testing.T) {
		other, err := credential.NewIssuer("Globex Institute", "https://globex.example")
		require.NoError(t, err)

		v := credential.NewVerifier()
		v.AddTrustedIssuer(other.IssuerInfo())
		assert.ErrorIs(t, v.VerifyCredential(cred), credential.ErrUntrustedIssuer)
	})

	t.Run("renamed issuer", func(t *testing.T) {
		v := credential.NewVerifier()
		v.AddTrustedIssuer(iss.IssuerInfo())

		renamed := cloneCredential(t, cred)
		renamed.Issuer.Name = "Acme Univ."
		assert.ErrorIs(t, v.VerifyCredential(renamed), credential.ErrUntrustedIssuer)
	})
}

func TestVerifyCredentialIdentitySpoofing(t *testing.T) {
	genuine, err := credential.NewIssuer("Acme University", "https://acme.example")
	require.NoError(t, err)

	// The attacker copies Acme's name and URL but signs with their own key.
	impostor, err := credential.NewIssuer("Acme University", "https://acme.example")
	require.NoError(t, err)

	verifier := credential.NewVerifier()
	verifier.AddTrustedIssuer(genuine.IssuerInfo())

	forged, err := impostor.IssueCredential(sampleSubject(), sampleSkill(), sampleEvidence(), nil)
	require.NoError(t, err)

	err = verifier.VerifyCredential(forged)
	require.Error(t, err)
	assert.ErrorIs(t, err, credential.ErrIssuerIdentityMismatch)
	assert.NotErrorIs(t, err, credential.ErrInvalidSignature)

	t.Run("genuine key with impostor signature", func(t *testing.T) {
		// Swapping in the trusted key makes the lookup pass; the signature
		// is then checked against the trusted key and fails.
		swapped := cloneCredential(t, forged)
		swapped.Issuer.PublicKey = genuine.IssuerInfo().PublicKey
		assert.ErrorIs(t, verifier.VerifyCredential(swapped), credential.ErrInvalidSignature)
	})
}

func TestVerifyCredentialExpiry(t *testing.T) {
	mock := newMockClock()
	iss, err := credential.NewIssuer("Acme University", "https://acme.example", credential.WithIssuerClock(mock))
	require.NoError(t, err)

	verifier := credential.NewVerifier(credential.WithVerifierClock(mock))
	verifier.AddTrustedIssuer(iss.IssuerInfo())

	expiry := testEpoch.Add(time.Hour)
	expiring, err := iss.IssueCredential(sampleSubject(), sampleSkill(), nil, &expiry)
	require.NoError(t, err)
	forever, err := iss.IssueCredential(sampleSubject(), sampleSkill(), nil, nil)
	require.NoError(t, err)

	t.Run("before expiry", func(t *testing.T) {
		mock.Set(expiry.Add(-time.Nanosecond))
		assert.NoError(t, verifier.VerifyCredential(expiring))
		assert.False(t, expiring.IsExpired(mock.Now()))
	})

	t.Run("at expiry", func(t *testing.T) {
		mock.Set(expiry)
		err := verifier.VerifyCredential(expiring)
		assert.ErrorIs(t, err, credential.ErrExpired)
		assert.True(t, expiring.IsExpired(mock.Now()))
	})

	t.Run("after expiry", func(t *testing.T) {
		mock.Set(expiry.Add(24 * time.Hour))
		assert.ErrorIs(t, verifier.VerifyCredential(expiring), credential.ErrExpired)
	})

	t.Run("no expiry never expires", func(t *testing.T) {
		mock.Set(testEpoch.Add(100 * 365 * 24 * time.Hour))
		assert.NoError(t, verifier.VerifyCredential(forever))
		assert.False(t, forever.IsExpired(mock.Now()))
	})

	t.Run("signature checked before expiry", func(t *testing.T) {
		mock.Set(expiry.Add(time.Hour))
		tampered := cloneCredential(t, expiring)
		tampered.Subject.Name = "Mallory"
		assert.ErrorIs(t, verifier.VerifyCredential(tampered), credential.ErrInvalidSignature)
	})
}

func TestVerifyCredentialMalformed(t *testing.T) {
	iss, err := credential.NewIssuer("Acme University", "https://acme.example")
	require.NoError(t, err)

	verifier := credential.NewVerifier()
	verifier.AddTrustedIssuer(iss.IssuerInfo())

	cred, err := iss.IssueCredential(sampleSubject(), sampleSkill(), sampleEvidence(), nil)
	require.NoError(t, err)

	t.Run("truncated signature", func(t *testing.T) {
		c := cloneCredential(t, cred)
		c.Signature = c.Signature[:crypto.SignatureSize-1]
		err := verifier.VerifyCredential(c)
		assert.ErrorIs(t, err, credential.ErrMalformed)
		assert.ErrorIs(t, err, crypto.ErrMalformedSignature)
	})

	t.Run("missing signature", func(t *testing.T) {
		c := cloneCredential(t, cred)
		c.Signature = nil
		assert.ErrorIs(t, verifier.VerifyCredential(c), credential.ErrMalformed)
	})

	t.Run("trusted key has wrong length", func(t *testing.T) {
		v := credential.NewVerifier()
		bad := iss.IssuerInfo()
		bad.PublicKey = bad.PublicKey[:16]
		v.AddTrustedIssuer(bad)

		c := cloneCredential(t, cred)
		c.Issuer.PublicKey = bad.PublicKey
		err := v.VerifyCredential(c)
		assert.ErrorIs(t, err, credential.ErrMalformed)
		assert.ErrorIs(t, err, crypto.ErrMalformedKey)
	})

	t.Run("nil credential", func(t *testing.T) {
		assert.ErrorIs(t, verifier.VerifyCredential(nil), credential.ErrMalformed)
	})
}

func TestTrustSetManagement(t *testing.T) {
	acme, err := credential.NewIssuer("Acme University", "https://acme.example")
	require.NoError(t, err)
	globex, err := credential.NewIssuer("Globex Institute", "https://globex.example")
	require.NoError(t, err)

	v := credential.NewVerifier()
	v.AddTrustedIssuer(globex.IssuerInfo())
	v.AddTrustedIssuer(acme.IssuerInfo())

	trusted := v.TrustedIssuers()
	require.Len(t, trusted, 2)
	assert.Equal(t, "Acme University", trusted[0].Name)
	assert.Equal(t, "Globex Institute", trusted[1].Name)

	t.Run("re-adding replaces", func(t *testing.T) {
		rotated, err := credential.NewIssuer("Acme University", "https://acme.example")
		require.NoError(t, err)

		v.AddTrustedIssuer(rotated.IssuerInfo())
		trusted := v.TrustedIssuers()
		require.Len(t, trusted, 2)
		assert.True(t, trusted[0].Equal(rotated.IssuerInfo()))

		old, err := acme.IssueCredential(sampleSubject(), sampleSkill(), nil, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, v.VerifyCredential(old), credential.ErrIssuerIdentityMismatch)
	})

	t.Run("stored identity is a copy", func(t *testing.T) {
		info := globex.IssuerInfo()
		v.AddTrustedIssuer(info)
		info.PublicKey[0] ^= 0xff

		cred, err := globex.IssueCredential(sampleSubject(), sampleSkill(), nil, nil)
		require.NoError(t, err)
		assert.NoError(t, v.VerifyCredential(cred))
	})

	t.Run("remove", func(t *testing.T) {
		assert.True(t, v.RemoveTrustedIssuer("Globex Institute", "https://globex.example"))
		assert.False(t, v.RemoveTrustedIssuer("Globex Institute", "https://globex.example"))
		assert.Len(t, v.TrustedIssuers(), 1)
	})
}

func TestVerifyCredentials(t *testing.T) {
	mock := newMockClock()
	acme, err := credential.NewIssuer("Acme University", "https://acme.example", credential.WithIssuerClock(mock))
	require.NoError(t, err)
	globex, err := credential.NewIssuer("Globex Institute", "https://globex.example", credential.WithIssuerClock(mock))
	require.NoError(t, err)

	v := credential.NewVerifier(credential.WithVerifierClock(mock))
	v.AddTrustedIssuer(acme.IssuerInfo())

	good, err := acme.IssueCredential(sampleSubject(), sampleSkill(), nil, nil)
	require.NoError(t, err)
	untrusted, err := globex.IssueCredential(sampleSubject(), sampleSkill(), nil, nil)
	require.NoError(t, err)

	results := v.VerifyCredentials([]*credential.Microcredential{good, untrusted, nil})
	require.Len(t, results, 3)
	assert.NoError(t, results[0])
	assert.ErrorIs(t, results[1], credential.ErrUntrustedIssuer)
	assert.ErrorIs(t, results[2], credential.ErrMalformed)
}

func TestAcmeUniversityScenario(t *testing.T) {
	acme, err := credential.NewIssuer("Acme University", "https://acme.example.edu")
	require.NoError(t, err)

	cred, err := acme.IssueCredential(
		credential.Subject{ID: "S1", Name: "Sam Student"},
		credential.Skill{Name: "Rust Programming", Level: credential.Advanced},
		[]credential.Evidence{{Type: credential.CertificationEvidence(), Description: "Rust certification exam"}},
		nil,
	)
	require.NoError(t, err)

	trusting := credential.NewVerifier()
	trusting.AddTrustedIssuer(acme.IssuerInfo())
	assert.NoError(t, trusting.VerifyCredential(cred))

	fresh := credential.NewVerifier()
	assert.ErrorIs(t, fresh.VerifyCredential(cred), credential.ErrUntrustedIssuer)
}

func TestVerifyCredentialInvalidUTF8(t *testing.T) {
	iss, err := credential.NewIssuer("Acme University", "https://acme.example")
	require.NoError(t, err)

	verifier := credential.NewVerifier()
	verifier.AddTrustedIssuer(iss.IssuerInfo())

	original, err := iss.IssueCredential(
		credential.Subject{ID: "S1", Name: "Sam"},
		sampleSkill(), sampleEvidence(), nil,
		credential.WithMetadata(map[string]string{"cohort": "2025"}),
	)
	require.NoError(t, err)

	// Bytes that JSON would fold into U+FFFD must not share canonical bytes.
	malformed := []struct {
		name   string
		mutate func(*credential.Microcredential)
	}{
		{"subject name 0xff", func(c *credential.Microcredential) { c.Subject.Name = "Sam\xff" }},
		{"subject name 0xfe", func(c *credential.Microcredential) { c.Subject.Name = "Sam\xfe" }},
		{"id", func(c *credential.Microcredential) { c.ID += "\xff" }},
		{"skill name", func(c *credential.Microcredential) { c.Skill.Name += "\xc3" }},
		{"evidence description", func(c *credential.Microcredential) { c.Evidence[0].Description += "\xff" }},
		{"metadata value", func(c *credential.Microcredential) { c.Metadata["cohort"] = "2025\xff" }},
	}

	for _, tc := range malformed {
		t.Run(tc.name, func(t *testing.T) {
			tampered := cloneCredential(t, original)
			tc.mutate(tampered)

			_, err := tampered.CanonicalBytes()
			assert.ErrorIs(t, err, credential.ErrMalformed)

			err = verifier.VerifyCredential(tampered)
			require.Error(t, err)
			assert.ErrorIs(t, err, credential.ErrMalformed)
		})
	}

	t.Run("replacement character is ordinary content", func(t *testing.T) {
		tampered := cloneCredential(t, original)
		tampered.Subject.Name = "Sam\uFFFD"
		assert.ErrorIs(t, verifier.VerifyCredential(tampered), credential.ErrInvalidSignature)
	})

	assert.NoError(t, verifier.VerifyCredential(original))
}
