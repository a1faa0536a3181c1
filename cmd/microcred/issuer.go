package main

import (
	"encoding/json"
	"fmt"

	"github.com/microcred/microcred-core/pkg/credential"
	"github.com/spf13/cobra"
)

var (
	issuerKeyFile string
	issuerName    string
	issuerURL     string
)

var issuerCmd = &cobra.Command{
	Use:   "issuer",
	Short: "Inspect issuer identities",
}

var issuerIdentityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Print the public identity of an issuer",
	Long: `Print the public identity (name, url, public key) of the issuer that
signs with the given key. Verifiers add this file to their trust store
with "microcred trust add".`,
	Example: `  microcred issuer identity --key acme.key.jwk --name "Acme University" --url https://acme.example > acme.json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		iss, err := loadIssuer(issuerKeyFile, issuerName, issuerURL)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(iss.IssuerInfo(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

// loadIssuer builds an issuer from a private JWK file.
func loadIssuer(keyFile, name, url string) (*credential.Issuer, error) {
	if keyFile == "" {
		return nil, fmt.Errorf("--key is required")
	}
	priv, err := loadPrivateKey(keyFile)
	if err != nil {
		return nil, err
	}
	return credential.NewIssuerFromKey(name, url, priv)
}

func addIssuerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&issuerKeyFile, "key", "", "Path to the issuer private key (JWK)")
	cmd.Flags().StringVar(&issuerName, "name", "", "Issuer display name")
	cmd.Flags().StringVar(&issuerURL, "url", "", "Issuer URL")
}

func init() {
	rootCmd.AddCommand(issuerCmd)
	issuerCmd.AddCommand(issuerIdentityCmd)
	addIssuerFlags(issuerIdentityCmd)
}
