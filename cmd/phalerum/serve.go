package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Daemonophobic/phalerum-api/internal/api"
	"github.com/Daemonophobic/phalerum-api/internal/auth"
	"github.com/Daemonophobic/phalerum-api/internal/compiler"
	"github.com/Daemonophobic/phalerum-api/internal/database"
	"github.com/Daemonophobic/phalerum-api/internal/engine"
	"github.com/Daemonophobic/phalerum-api/internal/seed"
	"github.com/Daemonophobic/phalerum-api/pkg/crypto"
)

const permissionCacheSize = 128

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Phalerum API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log.Info().Msg("Starting Phalerum API service")

		db, err := database.New(cfg.Database.DSN, database.WithDebug(cfg.Database.Debug))
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close database connection")
			}
		}()

		encryptor, err := crypto.NewEncryptor(cfg.Auth.EncryptionKey)
		if err != nil {
			return err
		}

		signer, err := auth.NewTokenSigner(cfg.Auth.PrivateKeyFile, cfg.Auth.PublicKeyFile, cfg.Auth.SessionTTL)
		if err != nil {
			return err
		}

		authority := auth.NewCredentialAuthority(db.Users, encryptor, signer, cfg.Auth.FailureDelay, cfg.Auth.TOTPIssuer)
		resolver, err := auth.NewPermissionResolver(db.Roles, permissionCacheSize)
		if err != nil {
			return err
		}

		registry := engine.NewRegistry(db.Agents, db.Jobs)
		catalog := engine.NewCatalog(db.Jobs)
		subnets := engine.NewSubnetManager(db.Settings, db.Jobs)
		ingestor := engine.NewIngestor(registry, db.Jobs, db.Outputs, subnets)
		checkin := engine.NewCheckInHandler(registry, catalog)
		pipeline := compiler.New(cfg.Compiler)

		seeder := seed.New(db, encryptor)
		if err := seeder.Run(cmd.Context()); err != nil {
			return err
		}

		server := api.NewServer(cfg, db, signer, authority, resolver, registry, catalog, checkin, ingestor, subnets, pipeline, seeder)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			log.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
		}

		log.Info().Msg("Server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
