package auth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Daemonophobic/phalerum-api/internal/operr"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

// sessionClaims is the signed token payload.
type sessionClaims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenSigner signs and verifies RS256 session tokens.
type TokenSigner struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	ttl        time.Duration
}

// NewTokenSigner loads the RSA keypair from the given PEM files.
func NewTokenSigner(privateKeyFile, publicKeyFile string, ttl time.Duration) (*TokenSigner, error) {
	privPEM, err := os.ReadFile(privateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	pubPEM, err := os.ReadFile(publicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return &TokenSigner{
		privateKey: privateKey,
		publicKey:  publicKey,
		ttl:        ttl,
	}, nil
}

// NewTokenSignerFromKey constructs a signer from an in-memory keypair.
func NewTokenSignerFromKey(key *rsa.PrivateKey, ttl time.Duration) *TokenSigner {
	return &TokenSigner{
		privateKey: key,
		publicKey:  &key.PublicKey,
		ttl:        ttl,
	}
}

// TTL returns the configured session lifetime.
func (s *TokenSigner) TTL() time.Duration {
	return s.ttl
}

// Sign issues a session token for the given principal.
func (s *TokenSigner) Sign(subject, username string, roles []string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a session token and returns its claims. Expired,
// malformed or wrongly signed tokens all map to the unauthenticated error.
func (s *TokenSigner) Verify(tokenString string) (*models.SessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, operr.ErrUnauthenticated
	}

	return &models.SessionClaims{
		Subject:  claims.Subject,
		Username: claims.Username,
		Roles:    claims.Roles,
	}, nil
}
