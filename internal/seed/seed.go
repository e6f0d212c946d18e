// Package seed provisions the baseline authorization data and the signing
// keypair a fresh deployment needs before it can serve requests.
package seed

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Daemonophobic/phalerum-api/internal/database"
	"github.com/Daemonophobic/phalerum-api/internal/operr"
	"github.com/Daemonophobic/phalerum-api/pkg/crypto"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

// permissionCatalog is every permission action known to the system.
var permissionCatalog = map[string]string{
	"user.read":          "Read user accounts",
	"user.write":         "Create, update and delete user accounts",
	"role.read":          "Read roles and permissions",
	"role.write":         "Create, update and delete roles",
	"job.read":           "Read the job catalog",
	"job.write":          "Create, update and toggle jobs",
	"agent.read":         "Read registered agents",
	"agent.write":        "Register and delete agents",
	"admin.user.read":    "Read extended user details",
	"admin.user.write":   "Administer user accounts",
	"campaign.write":     "Manage campaign settings such as scan subnets",
	"master.config.read": "Download master node configuration",
}

// roleMatrix maps the built-in roles to their permission actions.
var roleMatrix = map[string][]string{
	"Admin": {
		"user.read", "user.write", "role.read", "role.write",
		"job.read", "job.write", "agent.read", "agent.write",
		"admin.user.read", "admin.user.write", "campaign.write",
		"master.config.read",
	},
	// Master is assumed by recruiter nodes via the downloaded config
	// token, not by human operators.
	"Master": {
		"agent.read", "agent.write", "job.read",
	},
	"Moderator": {
		"user.read", "job.read", "job.write", "agent.read",
		"agent.write", "role.read",
	},
	"User": {
		"user.read", "job.read", "job.write", "agent.read", "role.read",
	},
	"Guest": {
		"user.read", "job.read", "agent.read", "role.read",
	},
}

// Seeder provisions baseline data idempotently.
type Seeder struct {
	db        *database.BunDB
	encryptor *crypto.Encryptor
}

// New creates a seeder.
func New(db *database.BunDB, encryptor *crypto.Encryptor) *Seeder {
	return &Seeder{db: db, encryptor: encryptor}
}

// Run seeds the permission catalog and the built-in roles. Existing
// entries are left untouched.
func (s *Seeder) Run(ctx context.Context) error {
	if err := s.seedPermissions(ctx); err != nil {
		return err
	}
	return s.seedRoles(ctx)
}

func (s *Seeder) seedPermissions(ctx context.Context) error {
	for action, description := range permissionCatalog {
		_, err := s.db.Permissions.GetByAction(ctx, action)
		if err == nil {
			continue
		}
		if !errors.Is(err, operr.ErrNotFound) {
			return err
		}

		err = s.db.Permissions.Create(ctx, &models.Permission{
			ID:          uuid.New().String(),
			Action:      action,
			Description: description,
		})
		if err != nil {
			return err
		}
		log.Info().Str("action", action).Msg("Permission seeded")
	}
	return nil
}

func (s *Seeder) seedRoles(ctx context.Context) error {
	for name, permissions := range roleMatrix {
		_, err := s.db.Roles.GetByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, operr.ErrNotFound) {
			return err
		}

		err = s.db.Roles.Create(ctx, &models.Role{
			ID:          uuid.New().String(),
			Name:        name,
			Permissions: permissions,
		})
		if err != nil {
			return err
		}
		log.Info().Str("role", name).Msg("Role seeded")
	}
	return nil
}

// CreateInitialUser bootstraps the first admin account. It only works
// while the user table is empty; afterwards it is forbidden. Returns the
// plaintext initialization token, disclosed exactly once.
func (s *Seeder) CreateInitialUser(ctx context.Context, firstName, lastName, username, email string) (string, error) {
	if username == "" || email == "" {
		return "", operr.MissingParameters("username", "emailAddress")
	}

	count, err := s.db.Users.Count(ctx)
	if err != nil {
		return "", err
	}
	if count > 0 {
		return "", operr.ErrForbidden
	}

	token, _, err := crypto.GenerateToken()
	if err != nil {
		return "", err
	}
	encToken, err := s.encryptor.Encrypt(token)
	if err != nil {
		return "", err
	}

	user := &models.User{
		ID:                  uuid.New().String(),
		FirstName:           firstName,
		LastName:            lastName,
		Username:            username,
		EmailAddress:        email,
		InitializationToken: encToken,
		Locked:              true,
		Roles:               []string{"Admin"},
		CreatedAt:           time.Now(),
	}
	if err := s.db.Users.Create(ctx, user); err != nil {
		return "", err
	}

	log.Info().Str("username", username).Msg("Initial admin account created")
	return token, nil
}

// GenerateKeyPair writes a fresh RSA signing keypair to the given PEM
// files unless the private key already exists.
func GenerateKeyPair(privateKeyFile, publicKeyFile string, bits int) error {
	if _, err := os.Stat(privateKeyFile); err == nil {
		log.Info().Str("file", privateKeyFile).Msg("Signing key already exists, keeping it")
		return nil
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("failed to generate keypair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(privateKeyFile), 0o700); err != nil {
		return err
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(privateKeyFile, privPEM, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})
	if err := os.WriteFile(publicKeyFile, pubPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	log.Info().Str("file", privateKeyFile).Int("bits", bits).Msg("Signing keypair generated")
	return nil
}
