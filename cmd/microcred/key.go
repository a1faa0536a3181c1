package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/microcred/microcred-core/pkg/crypto"
	"github.com/microcred/microcred-core/pkg/did"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	keyOutPrivate string
	keyOutPublic  string
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage issuer signing keys",
}

var keyGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a new Ed25519 key pair",
	Long: `Generate a new Ed25519 key pair for signing credentials.

Both keys are written as JWK files whose key ID is the did:key of the
public key. The private key file is created with mode 0600.`,
	Example: `  # Generate keys with default names
  microcred key gen

  # Generate keys with custom names
  microcred key gen --out-priv acme.key.jwk --out-pub acme.pub.jwk`,
	RunE: func(_ *cobra.Command, _ []string) error {
		kid, thumbprint, err := generateKeyFiles(keyOutPrivate, keyOutPublic)
		if err != nil {
			return err
		}
		fmt.Printf("Private key saved to %s\n", keyOutPrivate)
		fmt.Printf("Public key saved to %s\n", keyOutPublic)
		fmt.Printf("did:key: %s\n", kid)
		fmt.Printf("JWK thumbprint: %s\n", thumbprint)
		return nil
	},
}

// generateKeyFiles writes a fresh key pair and returns its did:key and
// RFC 7638 thumbprint.
func generateKeyFiles(privPath, pubPath string) (string, string, error) {
	priv, pub, err := crypto.GenerateKeyPair(nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}
	kid := did.NewKeyDID(pub)

	privBytes, err := crypto.MarshalPrivateJWK(priv, kid)
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(privPath, privBytes, 0600); err != nil {
		return "", "", fmt.Errorf("failed to write private key: %w", err)
	}

	pubJwk, err := crypto.PublicJWK(pub, kid)
	if err != nil {
		return "", "", err
	}
	pubBytes, err := json.MarshalIndent(pubJwk, "", "  ")
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(pubPath, pubBytes, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write public key: %w", err)
	}

	thumbprint, err := crypto.Thumbprint(pub)
	if err != nil {
		return "", "", err
	}

	logrus.WithField("kid", kid).WithField("thumbprint", thumbprint).Info("generated key pair")
	return kid, thumbprint, nil
}

// loadPrivateKey reads a private JWK file written by key gen.
func loadPrivateKey(path string) (*crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	priv, err := crypto.ParsePrivateJWK(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %s: %w", path, err)
	}
	return priv, nil
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyGenCmd)

	keyGenCmd.Flags().StringVar(&keyOutPrivate, "out-priv", "private.jwk", "Output path for private key (JWK format)")
	keyGenCmd.Flags().StringVar(&keyOutPublic, "out-pub", "public.jwk", "Output path for public key (JWK format)")
}
