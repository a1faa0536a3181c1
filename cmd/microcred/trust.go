package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/microcred/microcred-core/pkg/credential"
	"github.com/microcred/microcred-core/pkg/did"
	"github.com/microcred/microcred-core/pkg/trust"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Manage trusted issuers",
	Long: `Manage the local trust store used by "credential verify".

Each entry is an issuer identity (name, url, public key) as printed by
"microcred issuer identity". A credential is trusted only when its issuer
name and url match an entry and its embedded key equals the entry's key.

Location: ~/.microcred/trust/ (or --trust-dir, $MICROCRED_TRUST_DIR)`,
}

var trustAddCmd = &cobra.Command{
	Use:     "add <identity.json>",
	Short:   "Trust an issuer identity",
	Example: `  microcred trust add acme.json`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openTrustStore()
		if err != nil {
			return err
		}

		identity, err := readIdentityFile(args[0])
		if err != nil {
			return err
		}

		if err := store.Add(identity); err != nil {
			return fmt.Errorf("failed to add issuer: %w", err)
		}
		logrus.WithField("issuer", identity.Name).WithField("kid", identity.KeyID()).Info("trusted issuer")

		fmt.Fprintf(cmd.OutOrStdout(), "Added issuer: %s (%s)\n", identity.Name, identity.URL)
		fmt.Fprintf(cmd.OutOrStdout(), "   Key: %s\n", identity.KeyID())
		return nil
	},
}

var trustListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trusted issuers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openTrustStore()
		if err != nil {
			return err
		}

		identities, err := store.List()
		if err != nil {
			return err
		}
		if len(identities) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No trusted issuers")
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Trusted issuers (%d):\n", len(identities))
		for _, identity := range identities {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s)\n", identity.Name, identity.URL)
			fmt.Fprintf(cmd.OutOrStdout(), "     %s\n", identity.KeyID())
		}
		return nil
	},
}

var trustRemoveCmd = &cobra.Command{
	Use:   "remove <did:key>",
	Short: "Stop trusting an issuer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := did.PublicKeyFromKeyDID(args[0]); err != nil {
			return fmt.Errorf("invalid issuer key %q (expected did:key:z6Mk...): %w", args[0], err)
		}

		store, err := openTrustStore()
		if err != nil {
			return err
		}

		if err := store.Remove(args[0]); err != nil {
			if errors.Is(err, trust.ErrIssuerNotFound) {
				return fmt.Errorf("issuer not found: %s", args[0])
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed issuer: %s\n", args[0])
		return nil
	},
}

func readIdentityFile(path string) (credential.IssuerIdentity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return credential.IssuerIdentity{}, fmt.Errorf("failed to read file: %w", err)
	}

	var identity credential.IssuerIdentity
	if err := json.Unmarshal(data, &identity); err != nil {
		return credential.IssuerIdentity{}, fmt.Errorf("failed to parse identity: %w", err)
	}
	return identity, nil
}

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.AddCommand(trustAddCmd, trustListCmd, trustRemoveCmd)
}
