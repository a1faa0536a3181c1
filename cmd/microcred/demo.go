package main

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/microcred/microcred-core/pkg/credential"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Issue and verify a sample credential in memory",
	Long: `Run a self-contained issuance and verification round trip.

Nothing is read from or written to disk.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDemo(cmd.OutOrStdout())
	},
}

func runDemo(w io.Writer) error {
	fmt.Fprintln(w, "=== Microcredential Demo ===")
	fmt.Fprintln(w)

	iss, err := credential.NewIssuer("Gopher University", "https://gopher-university.example")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Created issuer: %s\n", iss.IssuerInfo().Name)
	fmt.Fprintf(w, "Issuer key: %s\n", iss.IssuerInfo().KeyID())

	cred, err := iss.IssueCredential(
		credential.Subject{ID: uuid.NewString(), Name: "Alice Developer"},
		credential.Skill{Name: "Go Programming", Level: credential.Advanced},
		[]credential.Evidence{
			{
				Type:        credential.ProjectEvidence(),
				Description: "Built a high-throughput HTTP service",
				URL:         "https://github.com/alice/go-webserver",
			},
			{
				Type:        credential.AssessmentEvidence(),
				Description: "Passed the advanced Go programming assessment",
				URL:         "https://assessments.gopher-university.example/alice/cert-123",
			},
		},
		nil,
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Issued credential for: %s\n", cred.Subject.Name)
	fmt.Fprintf(w, "Skill: %s (Level: %s)\n", cred.Skill.Name, cred.Skill.Level)
	fmt.Fprintf(w, "Evidence count: %d\n", len(cred.Evidence))
	fmt.Fprintf(w, "Credential ID: %s\n", cred.ID)

	verifier := credential.NewVerifier()
	verifier.AddTrustedIssuer(iss.IssuerInfo())

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Verification Result ===")
	if err := verifier.VerifyCredential(cred); err != nil {
		fmt.Fprintf(w, "Verification failed: %v\n", err)
		return err
	}
	fmt.Fprintln(w, "Credential verification: VALID")

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Credential JSON ===")
	return writeJSON(w, cred)
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
