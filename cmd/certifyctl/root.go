package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"certify/internal/platform/config"
	"certify/internal/registry/client"
	"certify/pkg/digest"
)

// Config keys. Each can be set by flag, CERTIFY_<KEY> or the config file.
const (
	keyServer     = "server"
	keyNetwork    = "network"
	keyToken      = "token"
	keyAlgorithm  = "algorithm"
	keyTimeout    = "timeout"
	keySigningKey = "signing_key"
	keyIssuer     = "issuer"
	keyAudience   = "audience"
	keyBrokers    = "brokers"
	keyTopic      = "topic"
)

// cli carries state shared by every subcommand.
type cli struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
	cfg    string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "certifyctl",
		Short: "Issue, invalidate and verify academic credentials",
		Long: `certifyctl talks to a certify registry server.

State changes (add, invalidate) need an issuer token; reads do not.

Examples:
  # Mint a development issuer token
  export CERTIFY_TOKEN=$(certifyctl token --subject registrar@campus)

  # Register a diploma by hashing the document locally
  certifyctl add --key 123456789 --owner "John Doe" \
    --program "Teknik Informatika" --period 2024 --file ijazah.pdf

  # Verify a document against the registry
  certifyctl verify 123456789 --file ijazah.pdf`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.initConfig()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&c.cfg, "config", "c", "", "config file (default: ~/.config/certify/certifyctl.yaml)")
	flags.String(keyServer, "http://localhost:8080", "registry server base URL")
	flags.String(keyNetwork, "", "expected registry network; state changes are refused on any other")
	flags.String(keyToken, "", "issuer bearer token for state changes")
	flags.String(keyAlgorithm, string(digest.Default), "digest algorithm for local document hashing")
	flags.Duration(keyTimeout, 30*time.Second, "overall timeout for one command")
	for _, name := range []string{keyServer, keyNetwork, keyToken, keyAlgorithm, keyTimeout} {
		_ = c.v.BindPFlag(name, flags.Lookup(name))
	}

	c.v.SetDefault(keySigningKey, config.DevSigningKey)
	c.v.SetDefault(keyIssuer, "certify")
	c.v.SetDefault(keyAudience, "certify-registry")
	c.v.SetDefault(keyTopic, config.DefaultTopic)

	root.AddCommand(
		c.addCmd(),
		c.invalidateCmd(),
		c.getCmd(),
		c.verifyCmd(),
		c.registeredCmd(),
		c.hashCmd(),
		c.tokenCmd(),
		c.watchCmd(),
	)
	return root
}

func (c *cli) initConfig() error {
	c.v.SetEnvPrefix("CERTIFY")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	if c.cfg != "" {
		c.v.SetConfigFile(c.cfg)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		c.v.AddConfigPath(filepath.Join(home, ".config", "certify"))
		c.v.SetConfigName("certifyctl")
		c.v.SetConfigType("yaml")
	}

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && c.cfg == "" {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func (c *cli) algorithm() (digest.Algorithm, error) {
	return digest.ParseAlgorithm(c.v.GetString(keyAlgorithm))
}

func (c *cli) registry() *client.Registry {
	return client.NewRegistry(client.NewHTTP(client.HTTPConfig{
		BaseURL:   c.v.GetString(keyServer),
		NetworkID: c.v.GetString(keyNetwork),
		Token:     c.v.GetString(keyToken),
		Timeout:   c.v.GetDuration(keyTimeout),
		UserAgent: "certifyctl/" + version,
	}))
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
