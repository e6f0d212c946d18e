package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/Daemonophobic/phalerum-api/internal/database"
	"github.com/Daemonophobic/phalerum-api/internal/operr"
	"github.com/Daemonophobic/phalerum-api/pkg/crypto"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

// Enrollment is the result of a successful credential initialization.
type Enrollment struct {
	// ProvisioningURL is the otpauth:// URL for the new TOTP secret.
	ProvisioningURL string
	// QRImage is the provisioning URL rendered as a PNG.
	QRImage []byte
}

// CredentialAuthority owns the operator authentication lifecycle:
// credential initialization, 2FA enrollment and login.
type CredentialAuthority struct {
	users        database.UserRepository
	encryptor    *crypto.Encryptor
	signer       *TokenSigner
	failureDelay time.Duration
	totpIssuer   string
}

// NewCredentialAuthority creates a new credential authority.
func NewCredentialAuthority(
	users database.UserRepository,
	encryptor *crypto.Encryptor,
	signer *TokenSigner,
	failureDelay time.Duration,
	totpIssuer string,
) *CredentialAuthority {
	return &CredentialAuthority{
		users:        users,
		encryptor:    encryptor,
		signer:       signer,
		failureDelay: failureDelay,
		totpIssuer:   totpIssuer,
	}
}

// Encryptor exposes the at-rest encryptor for callers minting their own
// initialization tokens.
func (a *CredentialAuthority) Encryptor() *crypto.Encryptor {
	return a.encryptor
}

// InitializeCredentials sets the account password and provisions a TOTP
// secret, both gated by the one-time initialization token. The password
// hash and the encrypted secret are stored together; the account stays
// locked until the first valid OTP confirms enrollment.
func (a *CredentialAuthority) InitializeCredentials(ctx context.Context, email, initToken, password, verifyPassword string) (*Enrollment, error) {
	if password != verifyPassword {
		return nil, operr.InvalidParameters("password", "verifyPassword")
	}

	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.InitializationToken.Empty() {
		return nil, operr.ErrInvalidResult
	}

	stored, err := a.encryptor.Decrypt(user.InitializationToken)
	if err != nil {
		return nil, err
	}
	if stored != initToken {
		return nil, operr.ErrForbidden
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      a.totpIssuer,
		AccountName: email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	secret, err := a.encryptor.Encrypt(key.Secret())
	if err != nil {
		return nil, err
	}

	if err := a.users.SetCredentials(ctx, user.ID, string(hash), secret); err != nil {
		return nil, err
	}

	img, err := key.Image(200, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to render provisioning QR: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode provisioning QR: %w", err)
	}

	log.Info().Str("email", email).Msg("Credentials initialized")
	return &Enrollment{
		ProvisioningURL: key.URL(),
		QRImage:         buf.Bytes(),
	}, nil
}

// InitializeTwoFactor confirms TOTP enrollment and unlocks the account.
// An account that already burned its initialization token cannot re-enroll.
func (a *CredentialAuthority) InitializeTwoFactor(ctx context.Context, email, code string) error {
	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, operr.ErrNotFound) {
			return operr.ErrInvalidResult
		}
		return err
	}
	if user.InitializationToken.Empty() {
		return operr.ErrInvalidResult
	}

	secret, err := a.encryptor.Decrypt(user.OTPSecret)
	if err != nil {
		return err
	}
	if !totp.Validate(code, secret) {
		return operr.ErrForbidden
	}

	if err := a.users.Unlock(ctx, user.ID); err != nil {
		return err
	}

	log.Info().Str("email", email).Msg("Two-factor enrollment confirmed")
	return nil
}

// Authenticate verifies email, password and OTP code and issues a session
// token. All failure modes except a locked account collapse into a single
// unauthenticated error after a fixed delay, so a caller cannot tell which
// factor was wrong.
func (a *CredentialAuthority) Authenticate(ctx context.Context, email, password, code string) (*models.User, string, error) {
	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, operr.ErrNotFound) {
			return nil, "", a.fail(ctx)
		}
		return nil, "", err
	}

	if user.Locked {
		return nil, "", operr.ErrForbidden
	}

	secret, err := a.encryptor.Decrypt(user.OTPSecret)
	if err != nil {
		return nil, "", a.fail(ctx)
	}
	if !totp.Validate(code, secret) {
		return nil, "", a.fail(ctx)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", a.fail(ctx)
	}

	token, err := a.signer.Sign(user.ID, user.Username, user.Roles)
	if err != nil {
		return nil, "", err
	}

	log.Info().Str("username", user.Username).Msg("User authenticated")
	return user, token, nil
}

// fail waits out the fixed failure delay before returning, keeping the
// response time of a failed login independent of which check rejected it.
func (a *CredentialAuthority) fail(ctx context.Context) error {
	timer := time.NewTimer(a.failureDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return operr.ErrUnauthenticated
}
