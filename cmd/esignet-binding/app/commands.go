// Package app provides the entry point for the esignet-binding command-line
// application.
package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mosip/esignet-binding/pkg/api"
	"github.com/mosip/esignet-binding/pkg/binding"
	"github.com/mosip/esignet-binding/pkg/cache"
	"github.com/mosip/esignet-binding/pkg/config"
	"github.com/mosip/esignet-binding/pkg/dpop"
	"github.com/mosip/esignet-binding/pkg/logger"
	registrysqlite "github.com/mosip/esignet-binding/pkg/registry/sqlite"
)

var rootCmd = &cobra.Command{
	Use:               "esignet-binding",
	DisableAutoGenTag: true,
	Short:             "Proof-of-possession key binding and validation service",
	Long: `esignet-binding runs the proof-of-possession engine of an OIDC identity
provider: it binds wallet keys to verified individuals, validates wallet
local authentication tokens against bound keys, and enforces DPoP proofs
on protected endpoints.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the esignet-binding CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the service configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the binding API server",
		Long: `Start the binding API server with the configuration file given by --config.
The server exposes the binding ceremony endpoints, binding validation, and
DPoP-protected resource endpoints.`,
		RunE: runServe,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("esignet-binding version: %s", getVersion())
		},
	}
}

// getVersion returns the version string (will be set at build time)
func getVersion() string {
	// This will be replaced with actual version info using ldflags
	return "dev"
}

// runServe implements the serve command logic
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return err
	}

	store, err := registrysqlite.Open(ctx, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("failed to open key registry: %w", err)
	}
	defer closeQuietly(store)

	cacheClient, err := newCacheClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly(cacheClient)

	authenticator := binding.NewRemoteAuthenticator(cfg.Authenticator.BaseURL, cfg.Authenticator.Timeout, nil)
	transactions := binding.NewTransactionStore(cacheClient, cfg.Binding.TransactionTTL)
	service := binding.NewService(authenticator, store, transactions, binding.ServiceOptions{
		EncryptBindingID:   cfg.Binding.EncryptBindingID,
		SaltLength:         cfg.Binding.SaltLength,
		CertExpiryOverride: cfg.Binding.CertExpiryOverride,
		AuthFactorTypes:    cfg.Binding.AuthFactorTypes,
	})
	validator := binding.NewValidator(store, cfg.Binding.AudienceID)

	replay := dpop.NewReplayCache(cacheClient, cfg.Dpop.ReplayTTL, cfg.Dpop.ClockSkew)
	dpopValidator := dpop.NewValidator(replay, cfg.Dpop.ClockSkew, cfg.Dpop.Algs)

	return api.Serve(ctx, cfg, service, validator, dpopValidator, store)
}

func newCacheClient(ctx context.Context, cfg *config.Config) (cache.Client, error) {
	switch cfg.Cache.Backend {
	case "redis":
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddr,
			Username:  cfg.Cache.RedisUsername,
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.RedisKeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return client, nil
	default:
		return cache.NewMemoryClient(), nil
	}
}

func closeQuietly(c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		logger.Warnf("Error during shutdown: %v", err)
	}
}
