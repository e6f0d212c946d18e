package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Daemonophobic/phalerum-api/internal/database"
	"github.com/Daemonophobic/phalerum-api/internal/operr"
	"github.com/Daemonophobic/phalerum-api/pkg/crypto"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

const testEncKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestSigner(t *testing.T, ttl time.Duration) *TokenSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return NewTokenSignerFromKey(key, ttl)
}

func TestTokenSigner_RoundTrip(t *testing.T) {
	signer := newTestSigner(t, time.Hour)

	token, err := signer.Sign("user-1", "operator", []string{"Admin"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "operator", claims.Username)
	assert.Equal(t, []string{"Admin"}, claims.Roles)
}

func TestTokenSigner_Expired(t *testing.T) {
	signer := newTestSigner(t, -time.Minute)

	token, err := signer.Sign("user-1", "operator", nil)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, operr.ErrUnauthenticated)
}

func TestTokenSigner_WrongKey(t *testing.T) {
	signer := newTestSigner(t, time.Hour)
	other := newTestSigner(t, time.Hour)

	token, err := signer.Sign("user-1", "operator", nil)
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, operr.ErrUnauthenticated)

	_, err = signer.Verify("not-a-token")
	assert.ErrorIs(t, err, operr.ErrUnauthenticated)
}

type authFixture struct {
	db        *database.BunDB
	encryptor *crypto.Encryptor
	authority *CredentialAuthority
	user      *models.User
	initToken string
}

func setupAuthority(t *testing.T) *authFixture {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	encryptor, err := crypto.NewEncryptor(testEncKey)
	require.NoError(t, err)

	initToken, _, err := crypto.GenerateToken()
	require.NoError(t, err)
	encToken, err := encryptor.Encrypt(initToken)
	require.NoError(t, err)

	user := &models.User{
		ID:                  uuid.New().String(),
		Username:            "operator",
		EmailAddress:        "operator@example.com",
		InitializationToken: encToken,
		Locked:              true,
		Roles:               []string{"Admin"},
		CreatedAt:           time.Now(),
	}
	require.NoError(t, db.Users.Create(context.Background(), user))

	authority := NewCredentialAuthority(
		db.Users,
		encryptor,
		newTestSigner(t, time.Hour),
		10*time.Millisecond,
		"phalerum",
	)

	return &authFixture{
		db:        db,
		encryptor: encryptor,
		authority: authority,
		user:      user,
		initToken: initToken,
	}
}

// enroll walks the fixture user through credential and 2FA initialization
// and returns the plaintext TOTP secret.
func (f *authFixture) enroll(t *testing.T, password string) string {
	t.Helper()
	ctx := context.Background()

	_, err := f.authority.InitializeCredentials(ctx, f.user.EmailAddress, f.initToken, password, password)
	require.NoError(t, err)

	stored, err := f.db.Users.Get(ctx, f.user.ID)
	require.NoError(t, err)
	secret, err := f.encryptor.Decrypt(stored.OTPSecret)
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.authority.InitializeTwoFactor(ctx, f.user.EmailAddress, code))

	return secret
}

func TestInitializeCredentials(t *testing.T) {
	f := setupAuthority(t)
	ctx := context.Background()

	_, err := f.authority.InitializeCredentials(ctx, f.user.EmailAddress, f.initToken, "hunter2!", "different")
	var paramErr *operr.ParameterError
	require.ErrorAs(t, err, &paramErr)
	assert.False(t, paramErr.Missing)

	_, err = f.authority.InitializeCredentials(ctx, f.user.EmailAddress, "wrong-token", "hunter2!", "hunter2!")
	assert.ErrorIs(t, err, operr.ErrForbidden)

	_, err = f.authority.InitializeCredentials(ctx, "ghost@example.com", f.initToken, "hunter2!", "hunter2!")
	assert.ErrorIs(t, err, operr.ErrNotFound)

	enrollment, err := f.authority.InitializeCredentials(ctx, f.user.EmailAddress, f.initToken, "hunter2!", "hunter2!")
	require.NoError(t, err)
	assert.Contains(t, enrollment.ProvisioningURL, "otpauth://")
	assert.NotEmpty(t, enrollment.QRImage)

	stored, err := f.db.Users.Get(ctx, f.user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.PasswordHash)
	assert.False(t, stored.OTPSecret.Empty())
	assert.True(t, stored.Locked)
}

func TestInitializeTwoFactor(t *testing.T) {
	f := setupAuthority(t)
	ctx := context.Background()

	_, err := f.authority.InitializeCredentials(ctx, f.user.EmailAddress, f.initToken, "hunter2!", "hunter2!")
	require.NoError(t, err)

	err = f.authority.InitializeTwoFactor(ctx, f.user.EmailAddress, "000000")
	assert.ErrorIs(t, err, operr.ErrForbidden)

	stored, err := f.db.Users.Get(ctx, f.user.ID)
	require.NoError(t, err)
	secret, err := f.encryptor.Decrypt(stored.OTPSecret)
	require.NoError(t, err)
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	require.NoError(t, f.authority.InitializeTwoFactor(ctx, f.user.EmailAddress, code))

	stored, err = f.db.Users.Get(ctx, f.user.ID)
	require.NoError(t, err)
	assert.False(t, stored.Locked)
	assert.True(t, stored.InitializationToken.Empty())

	// The burned token blocks re-enrollment.
	code, err = totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	err = f.authority.InitializeTwoFactor(ctx, f.user.EmailAddress, code)
	assert.ErrorIs(t, err, operr.ErrInvalidResult)
}

func TestAuthenticate(t *testing.T) {
	f := setupAuthority(t)
	ctx := context.Background()

	secret := f.enroll(t, "hunter2!")

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	user, token, err := f.authority.Authenticate(ctx, f.user.EmailAddress, "hunter2!", code)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, user.ID)
	require.NotEmpty(t, token)

	claims, err := f.authority.signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, claims.Subject)
	assert.Equal(t, []string{"Admin"}, claims.Roles)
}

func TestAuthenticate_FailuresAreUniformAndDelayed(t *testing.T) {
	f := setupAuthority(t)
	ctx := context.Background()

	secret := f.enroll(t, "hunter2!")
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	cases := []struct {
		name     string
		email    string
		password string
		code     string
	}{
		{"unknown user", "ghost@example.com", "hunter2!", code},
		{"wrong password", f.user.EmailAddress, "wrong", code},
		{"wrong otp", f.user.EmailAddress, "hunter2!", "000000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := time.Now()
			_, _, err := f.authority.Authenticate(ctx, tc.email, tc.password, tc.code)
			assert.ErrorIs(t, err, operr.ErrUnauthenticated)
			assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
		})
	}
}

func TestAuthenticate_LockedAccount(t *testing.T) {
	f := setupAuthority(t)
	ctx := context.Background()

	_, _, err := f.authority.Authenticate(ctx, f.user.EmailAddress, "hunter2!", "000000")
	assert.ErrorIs(t, err, operr.ErrForbidden)
}

func TestPermissionResolver(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	ctx := context.Background()

	require.NoError(t, db.Roles.Create(ctx, &models.Role{
		ID:          uuid.New().String(),
		Name:        "Guest",
		Permissions: []string{"job.read", "agent.read"},
	}))
	require.NoError(t, db.Roles.Create(ctx, &models.Role{
		ID:          uuid.New().String(),
		Name:        "Writer",
		Permissions: []string{"job.write"},
	}))

	resolver, err := NewPermissionResolver(db.Roles, 16)
	require.NoError(t, err)

	allowed, err := resolver.Allowed(ctx, []string{"Guest"}, "job.read")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = resolver.Allowed(ctx, []string{"Guest"}, "job.write")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Any single granting role is enough.
	allowed, err = resolver.Allowed(ctx, []string{"Guest", "Writer"}, "job.write")
	require.NoError(t, err)
	assert.True(t, allowed)

	// Unknown roles are skipped, not errors.
	allowed, err = resolver.Allowed(ctx, []string{"Nobody", "Guest"}, "agent.read")
	require.NoError(t, err)
	assert.True(t, allowed)

	claims := &models.SessionClaims{Subject: "u", Roles: []string{"Guest"}}
	assert.NoError(t, resolver.Require(ctx, claims, "job.read"))
	assert.ErrorIs(t, resolver.Require(ctx, claims, "user.write"), operr.ErrForbidden)
	assert.ErrorIs(t, resolver.Require(ctx, nil, "job.read"), operr.ErrUnauthenticated)
}
