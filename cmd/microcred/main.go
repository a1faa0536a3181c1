// Package main is the entry point for the microcred CLI.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/microcred/microcred-core/pkg/audit"
	"github.com/microcred/microcred-core/pkg/store"
	"github.com/microcred/microcred-core/pkg/trust"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	keyLogLevel = "log-level"
	keyTrustDir = "trust-dir"
	keyDB       = "db"
	keyAuditDir = "audit-dir"
)

var (
	cfgFile string
	config  = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "microcred",
	Short: "Microcredential issuance and verification",
	Long: `Issue and verify Ed25519-signed skill microcredentials.

Issuers sign credentials with their private key; verifiers check them
offline against a local trust store of issuer identities.

Files live under ~/.microcred/ unless overridden by flags, a config file
or MICROCRED_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return setupLogging(config.GetString(keyLogLevel))
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (YAML)")
	flags.String(keyLogLevel, "warn", "log level (debug, info, warn, error)")
	flags.String(keyTrustDir, trust.DefaultTrustDir(), "trust store directory")
	flags.String(keyDB, store.DefaultPath(), "credential wallet database")
	flags.String(keyAuditDir, audit.DefaultAuditDir(), "verification audit log directory")

	if err := config.BindPFlags(flags); err != nil {
		logrus.WithError(err).Fatal("failed to bind flags")
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetEnvPrefix("MICROCRED")
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()

	if cfgFile == "" {
		return
	}
	config.SetConfigFile(cfgFile)
	if err := config.ReadInConfig(); err != nil {
		logrus.WithError(err).WithField("file", cfgFile).Fatal("failed to read config")
	}
}

func setupLogging(levelName string) error {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		logrus.WithError(err).Errorf("could not parse log level<%s>, setting to warn", levelName)
		logrus.SetLevel(logrus.WarnLevel)
		return nil
	}
	logrus.SetLevel(level)
	return nil
}

func openTrustStore() (*trust.FileStore, error) {
	dir := config.GetString(keyTrustDir)
	logrus.WithField("dir", dir).Debug("opening trust store")
	s, err := trust.NewFileStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open trust store: %w", err)
	}
	return s, nil
}

func openWallet() (*store.BoltStore, error) {
	path := config.GetString(keyDB)
	logrus.WithField("path", path).Debug("opening wallet")
	return store.Open(path)
}

func openAuditLog() (*audit.LocalStore, error) {
	dir := config.GetString(keyAuditDir)
	logrus.WithField("dir", dir).Debug("opening audit log")
	return audit.NewLocalStore(dir, nil)
}
