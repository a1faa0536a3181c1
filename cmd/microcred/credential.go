package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/microcred/microcred-core/pkg/audit"
	"github.com/microcred/microcred-core/pkg/credential"
	"github.com/microcred/microcred-core/pkg/trust"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	issueSubjectID   string
	issueSubjectName string
	issueSkill       string
	issueLevel       string
	issueEvidence    []string
	issueExpiresIn   time.Duration
	issueMetadata    []string
	issueSave        bool

	verifyID string
)

var credentialCmd = &cobra.Command{
	Use:     "credential",
	Aliases: []string{"cred"},
	Short:   "Issue, verify and inspect microcredentials",
}

var credentialIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a signed microcredential",
	Long: `Issue a microcredential signed with the issuer's private key and print
it as JSON.

Evidence is given as kind:description[:url]. Kinds are project,
assessment, portfolio, certification and other=<label>.`,
	Example: `  microcred credential issue --key acme.key.jwk --name "Acme University" --url https://acme.example \
    --subject-id S1 --subject-name "Sam Student" --skill "Go Programming" --level advanced \
    --evidence "project:Built a CLI:https://github.com/sam/cli" \
    --evidence "other=peer review:Reviewed 40 pull requests" \
    --expires-in 8760h --metadata cohort=2025 --save`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		iss, err := loadIssuer(issuerKeyFile, issuerName, issuerURL)
		if err != nil {
			return err
		}

		level, err := credential.ParseSkillLevel(issueLevel)
		if err != nil {
			return err
		}

		evidence := make([]credential.Evidence, 0, len(issueEvidence))
		for _, raw := range issueEvidence {
			e, err := parseEvidence(raw)
			if err != nil {
				return err
			}
			evidence = append(evidence, e)
		}

		metadata, err := parseMetadata(issueMetadata)
		if err != nil {
			return err
		}

		var expiresAt *time.Time
		if issueExpiresIn != 0 {
			t := time.Now().Add(issueExpiresIn)
			expiresAt = &t
		}

		cred, err := iss.IssueCredential(
			credential.Subject{ID: issueSubjectID, Name: issueSubjectName},
			credential.Skill{Name: issueSkill, Level: level},
			evidence,
			expiresAt,
			credential.WithMetadata(metadata),
		)
		if err != nil {
			return err
		}
		logrus.WithField("id", cred.ID).WithField("subject", cred.Subject.ID).Info("issued credential")

		if issueSave {
			wallet, err := openWallet()
			if err != nil {
				return err
			}
			defer wallet.Close()
			if err := wallet.Put(cred); err != nil {
				return err
			}
			logrus.WithField("id", cred.ID).Info("saved credential to wallet")
		}

		return writeJSON(cmd.OutOrStdout(), cred)
	},
}

var credentialVerifyCmd = &cobra.Command{
	Use:   "verify [file|-]",
	Short: "Verify a microcredential against the trust store",
	Long: `Verify a microcredential read from a file, stdin ("-") or the wallet
(--id). Every verification is appended to the audit log.

Exits non-zero when the credential is not valid.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := loadCredentialArg(args)
		if err != nil {
			return err
		}

		trustStore, err := openTrustStore()
		if err != nil {
			return err
		}
		verifier := credential.NewVerifier()
		n, err := trust.LoadInto(trustStore, verifier)
		if err != nil {
			return err
		}
		logrus.WithField("issuers", n).Debug("loaded trust set")

		auditLog, err := openAuditLog()
		if err != nil {
			return err
		}
		defer auditLog.Close()

		verifyErr := verifyAndRecord(cmd.Context(), verifier, auditLog, cred, time.Now())
		if verifyErr != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "INVALID: %v\n", verifyErr)
			return verifyErr
		}
		fmt.Fprintf(cmd.OutOrStdout(), "VALID: %s (%s, %s) issued by %s\n",
			cred.ID, cred.Skill.Name, cred.Skill.Level, cred.Issuer.Name)
		return nil
	},
}

var credentialShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a credential from the wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wallet, err := openWallet()
		if err != nil {
			return err
		}
		defer wallet.Close()

		cred, err := wallet.Get(args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), cred)
	},
}

var credentialListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials in the wallet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		wallet, err := openWallet()
		if err != nil {
			return err
		}
		defer wallet.Close()

		creds, err := wallet.List()
		if err != nil {
			return err
		}
		if len(creds) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Wallet is empty")
			return nil
		}
		for _, c := range creds {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s (%s)  %s\n",
				c.ID, c.Subject.ID, c.Skill.Name, c.Skill.Level, c.Issuer.Name)
		}
		return nil
	},
}

// verifyAndRecord verifies c and appends the outcome to rec.
// A failure to record is logged but does not change the result.
func verifyAndRecord(ctx context.Context, v *credential.Verifier, rec audit.Recorder, c *credential.Microcredential, now time.Time) error {
	verifyErr := v.VerifyCredential(c)

	entry := audit.NewEntry(c, verifyErr, now)
	if err := rec.Record(ctx, entry); err != nil {
		logrus.WithError(err).Warn("failed to record audit entry")
	}

	logger := logrus.WithField("id", entry.CredentialID).WithField("outcome", entry.Outcome)
	if verifyErr != nil {
		logger.Info("credential rejected")
	} else {
		logger.Info("credential verified")
	}
	return verifyErr
}

func loadCredentialArg(args []string) (*credential.Microcredential, error) {
	if verifyID != "" {
		if len(args) > 0 {
			return nil, errors.New("provide either a file or --id, not both")
		}
		wallet, err := openWallet()
		if err != nil {
			return nil, err
		}
		defer wallet.Close()
		return wallet.Get(verifyID)
	}

	if len(args) == 0 {
		return nil, errors.New("provide a credential file, - for stdin, or --id")
	}
	if args[0] == "-" {
		return readCredential(os.Stdin)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open credential: %w", err)
	}
	defer f.Close()
	return readCredential(f)
}

func readCredential(r io.Reader) (*credential.Microcredential, error) {
	var c credential.Microcredential
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse credential: %w", err)
	}
	return &c, nil
}

var evidenceURL = regexp.MustCompile(`:([A-Za-z][A-Za-z0-9+.-]*://\S+)$`)

// parseEvidence parses kind:description[:url].
// The kind "other=<label>" selects the Other kind with a label.
func parseEvidence(raw string) (credential.Evidence, error) {
	kindPart, rest, ok := strings.Cut(raw, ":")
	if !ok || rest == "" {
		return credential.Evidence{}, fmt.Errorf("invalid evidence %q: expected kind:description[:url]", raw)
	}

	var e credential.Evidence
	if loc := evidenceURL.FindStringSubmatchIndex(rest); loc != nil {
		e.URL = rest[loc[2]:loc[3]]
		rest = rest[:loc[0]]
	}
	e.Description = rest

	if name, label, isOther := strings.Cut(kindPart, "="); isOther {
		if !strings.EqualFold(name, credential.EvidenceKindOther.String()) {
			return credential.Evidence{}, fmt.Errorf("invalid evidence %q: only other takes a label", raw)
		}
		e.Type = credential.OtherEvidence(label)
	} else {
		kind, err := credential.ParseEvidenceKind(kindPart)
		if err != nil {
			return credential.Evidence{}, err
		}
		e.Type = credential.EvidenceType{Kind: kind}
	}

	if err := e.Type.Validate(); err != nil {
		return credential.Evidence{}, fmt.Errorf("invalid evidence %q: %w", raw, err)
	}
	return e, nil
}

// parseMetadata parses key=value pairs.
func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected key=value", pair)
		}
		metadata[k] = v
	}
	return metadata, nil
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func init() {
	rootCmd.AddCommand(credentialCmd)
	credentialCmd.AddCommand(credentialIssueCmd, credentialVerifyCmd, credentialShowCmd, credentialListCmd)

	addIssuerFlags(credentialIssueCmd)
	credentialIssueCmd.Flags().StringVar(&issueSubjectID, "subject-id", "", "Subject identifier")
	credentialIssueCmd.Flags().StringVar(&issueSubjectName, "subject-name", "", "Subject display name")
	credentialIssueCmd.Flags().StringVar(&issueSkill, "skill", "", "Skill name")
	credentialIssueCmd.Flags().StringVar(&issueLevel, "level", "beginner", "Skill level (beginner, intermediate, advanced, expert)")
	credentialIssueCmd.Flags().StringArrayVar(&issueEvidence, "evidence", nil, "Evidence as kind:description[:url] (repeatable)")
	credentialIssueCmd.Flags().DurationVar(&issueExpiresIn, "expires-in", 0, "Validity period (e.g. 8760h); no expiry if unset")
	credentialIssueCmd.Flags().StringArrayVar(&issueMetadata, "metadata", nil, "Metadata as key=value (repeatable)")
	credentialIssueCmd.Flags().BoolVar(&issueSave, "save", false, "Store the issued credential in the wallet")

	credentialVerifyCmd.Flags().StringVar(&verifyID, "id", "", "Verify a credential stored in the wallet")
}
