package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Daemonophobic/phalerum-api/internal/database"
	"github.com/Daemonophobic/phalerum-api/internal/seed"
	"github.com/Daemonophobic/phalerum-api/pkg/crypto"
)

var (
	adminUsername  string
	adminEmail     string
	adminFirstName string
	adminLastName  string
	keyBits        int
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Generate signing keys and seed the database for first use",
	Long: `Prepare generates the RSA session signing key pair if it does not
exist yet, seeds the built-in roles and permissions, and optionally
creates the initial admin account. The printed initialization token is
shown exactly once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if err := seed.GenerateKeyPair(cfg.Auth.PrivateKeyFile, cfg.Auth.PublicKeyFile, keyBits); err != nil {
			return err
		}

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

		seeder := seed.New(db, encryptor)
		if err := seeder.Run(cmd.Context()); err != nil {
			return err
		}
		log.Info().Msg("Roles and permissions seeded")

		if adminUsername == "" {
			return nil
		}

		token, err := seeder.CreateInitialUser(cmd.Context(), adminFirstName, adminLastName, adminUsername, adminEmail)
		if err != nil {
			return err
		}

		fmt.Printf("Initial admin created. Initialization token (shown once):\n%s\n", token)
		return nil
	},
}

func init() {
	prepareCmd.Flags().StringVar(&adminUsername, "admin-username", "", "create the initial admin with this username")
	prepareCmd.Flags().StringVar(&adminEmail, "admin-email", "", "email address for the initial admin")
	prepareCmd.Flags().StringVar(&adminFirstName, "admin-first-name", "", "first name for the initial admin")
	prepareCmd.Flags().StringVar(&adminLastName, "admin-last-name", "", "last name for the initial admin")
	prepareCmd.Flags().IntVar(&keyBits, "key-bits", 4096, "RSA key size for the session signing key pair")

	rootCmd.AddCommand(prepareCmd)
}
