package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Daemonophobic/phalerum-api/internal/auth"
	"github.com/Daemonophobic/phalerum-api/internal/compiler"
	"github.com/Daemonophobic/phalerum-api/internal/config"
	"github.com/Daemonophobic/phalerum-api/internal/database"
	"github.com/Daemonophobic/phalerum-api/internal/engine"
	"github.com/Daemonophobic/phalerum-api/internal/seed"
	"github.com/Daemonophobic/phalerum-api/pkg/crypto"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

const testEncKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type apiFixture struct {
	server    *Server
	db        *database.BunDB
	signer    *auth.TokenSigner
	encryptor *crypto.Encryptor
	registry  *engine.Registry
	catalog   *engine.Catalog
	seeder    *seed.Seeder
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	encryptor, err := crypto.NewEncryptor(testEncKey)
	require.NoError(t, err)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer := auth.NewTokenSignerFromKey(key, 2*time.Hour)

	cfg := &config.Config{}
	cfg.Server.BaseURL = "https://c2.example.com"
	cfg.Compiler.Workers = 1
	cfg.Compiler.Timeout = 10 * time.Second
	cfg.Compiler.SourceDir = t.TempDir()
	cfg.Compiler.OutputDir = t.TempDir()

	authority := auth.NewCredentialAuthority(db.Users, encryptor, signer, time.Millisecond, "phalerum")
	resolver, err := auth.NewPermissionResolver(db.Roles, 32)
	require.NoError(t, err)

	registry := engine.NewRegistry(db.Agents, db.Jobs)
	catalog := engine.NewCatalog(db.Jobs)
	subnets := engine.NewSubnetManager(db.Settings, db.Jobs)
	ingestor := engine.NewIngestor(registry, db.Jobs, db.Outputs, subnets)
	checkin := engine.NewCheckInHandler(registry, catalog)
	pipeline := compiler.New(cfg.Compiler)
	seeder := seed.New(db, encryptor)
	require.NoError(t, seeder.Run(context.Background()))

	server := NewServer(cfg, db, signer, authority, resolver, registry, catalog, checkin, ingestor, subnets, pipeline, seeder)

	return &apiFixture{
		server:    server,
		db:        db,
		signer:    signer,
		encryptor: encryptor,
		registry:  registry,
		catalog:   catalog,
		seeder:    seeder,
	}
}

func (f *apiFixture) sessionCookie(t *testing.T, roles ...string) *http.Cookie {
	t.Helper()
	token, err := f.signer.Sign("user-1", "operator", roles)
	require.NoError(t, err)
	return &http.Cookie{Name: SessionCookieName, Value: token}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.9:41000"
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestHealth(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionRequired(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodGet, "/api/v1/jobs", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/jobs", nil, &http.Cookie{Name: SessionCookieName, Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPermissionGating(t *testing.T) {
	f := setupAPI(t)

	guest := f.sessionCookie(t, "Guest")
	admin := f.sessionCookie(t, "Admin")

	rec := f.do(t, http.MethodGet, "/api/v1/jobs", nil, guest)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/jobs", map[string]string{"jobName": "x"}, guest)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"jobName": "x", "os": "linux", "available": true,
	}, admin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckInEndpoint(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/api/v1/agents/hello", map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error      string   `json:"error"`
		Parameters []string `json:"parameters"`
	}
	decodeResponse(t, rec, &body)
	assert.Equal(t, "Missing (some) required parameter(s)", body.Error)
	assert.Equal(t, []string{"communicationToken"}, body.Parameters)

	rec = f.do(t, http.MethodPost, "/api/v1/agents/hello", map[string]interface{}{"communicationToken": 42}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	decodeResponse(t, rec, &body)
	assert.Equal(t, "Invalid parameter(s)", body.Error)

	rec = f.do(t, http.MethodPost, "/api/v1/agents/hello", map[string]interface{}{"communicationToken": "unknown"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	agent, err := f.registry.AddAgent(ctx, false, models.OSLinux, models.AddedByUser, "user-1", "test-agent")
	require.NoError(t, err)
	_, err = f.catalog.CreateJob(ctx, &models.Job{JobName: "run", OS: models.OSLinux, Available: true})
	require.NoError(t, err)

	rec = f.do(t, http.MethodPost, "/api/v1/agents/hello", map[string]interface{}{"communicationToken": agent.CommunicationToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var checkin struct {
		Jobs []*models.Job `json:"jobs"`
	}
	decodeResponse(t, rec, &checkin)
	require.Len(t, checkin.Jobs, 1)
	assert.Equal(t, "run", checkin.Jobs[0].JobName)

	stored, err := f.registry.GetAgent(ctx, agent.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", stored.IPAddress)
}

func enrolledUser(t *testing.T, f *apiFixture) (email, password, secret string) {
	t.Helper()
	ctx := context.Background()

	token, err := f.seeder.CreateInitialUser(ctx, "Ada", "Admin", "ada", "ada@example.com")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/initialize/credentials", map[string]string{
		"initializationToken": token,
		"email":               "ada@example.com",
		"password":            "hunter2!",
		"verifyPassword":      "hunter2!",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	user, err := f.db.Users.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	secret, err = f.encryptor.Decrypt(user.OTPSecret)
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/api/v1/auth/initialize/2fa", map[string]string{
		"email": "ada@example.com",
		"OTP":   code,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	return "ada@example.com", "hunter2!", secret
}

func TestLoginFlow(t *testing.T) {
	f := setupAPI(t)

	email, password, secret := enrolledUser(t, f)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]interface{}{
		"email": email, "password": "wrong", "OTP": "000000",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body errorBody
	decodeResponse(t, rec, &body)
	assert.Equal(t, "Invalid OTP, credentials, or user does not exist", body.Error)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]interface{}{
		"email": email, "password": password, "OTP": code, "keepSession": true,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	session := cookies[0]
	assert.Equal(t, SessionCookieName, session.Name)
	assert.Equal(t, "/api", session.Path)
	assert.True(t, session.HttpOnly)
	assert.True(t, session.Secure)
	assert.Equal(t, http.SameSiteStrictMode, session.SameSite)
	assert.Equal(t, 7200, session.MaxAge)

	claims, err := f.signer.Verify(session.Value)
	require.NoError(t, err)
	assert.Equal(t, "ada", claims.Username)
	assert.Equal(t, []string{"Admin"}, claims.Roles)

	// The fresh session opens gated endpoints.
	rec = f.do(t, http.MethodGet, "/api/v1/agents", nil, session)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginLockedAccount(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()

	_, err := f.seeder.CreateInitialUser(ctx, "Ada", "Admin", "ada", "ada@example.com")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]interface{}{
		"email": "ada@example.com", "password": "x", "OTP": "000000",
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body errorBody
	decodeResponse(t, rec, &body)
	assert.Equal(t, "This account is locked", body.Error)
}

func TestInitialUserBootstrapOnlyOnce(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodPost, "/api/v1/admin/user/initialize", map[string]string{
		"username": "ada", "email": "ada@example.com",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decodeResponse(t, rec, &body)
	assert.Len(t, body["initializationToken"], 64)

	rec = f.do(t, http.MethodPost, "/api/v1/admin/user/initialize", map[string]string{
		"username": "eve", "email": "eve@example.com",
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOutputSubmission(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()

	agent, err := f.registry.AddAgent(ctx, false, models.OSLinux, models.AddedByUser, "user-1", "a1")
	require.NoError(t, err)
	job, err := f.catalog.CreateJob(ctx, &models.Job{JobName: "run", OS: models.OSLinux, Available: true})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/v1/outputs", map[string]interface{}{
		"jobId": job.ID, "communicationToken": agent.CommunicationToken, "output": "not base64!!",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	payload := base64.StdEncoding.EncodeToString([]byte("result line"))
	rec = f.do(t, http.MethodPost, "/api/v1/outputs", map[string]interface{}{
		"jobId": job.ID, "communicationToken": agent.CommunicationToken, "output": payload, "success": true,
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	admin := f.sessionCookie(t, "Admin")
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/outputs", job.ID), nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var outputs []*models.Output
	decodeResponse(t, rec, &outputs)
	require.Len(t, outputs, 1)
	assert.Equal(t, "result line", outputs[0].Output)
	assert.True(t, outputs[0].Success)
}

func TestMasterConfigDownload(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()

	agent, err := f.registry.AddAgent(ctx, true, models.OSLinux, models.AddedByUser, "user-1", "master-1")
	require.NoError(t, err)

	guest := f.sessionCookie(t, "Guest")
	rec := f.do(t, http.MethodGet, "/api/v1/agents/"+agent.Agent.ID+"/config", nil, guest)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := f.sessionCookie(t, "Admin")
	rec = f.do(t, http.MethodGet, "/api/v1/agents/"+agent.Agent.ID+"/config", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "config.json")

	var cfg models.MasterConfig
	decodeResponse(t, rec, &cfg)
	assert.Equal(t, "https://c2.example.com", cfg.APIURL)

	claims, err := f.signer.Verify(cfg.Token)
	require.NoError(t, err)
	assert.Equal(t, agent.Agent.ID, claims.Subject)
	assert.Equal(t, []string{"Master"}, claims.Roles)
}

func TestCompileRequiresMasterSession(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()

	agent, err := f.registry.AddAgent(ctx, false, models.OSLinux, models.AddedByUser, "user-1", "a1")
	require.NoError(t, err)

	admin := f.sessionCookie(t, "Admin")
	rec := f.do(t, http.MethodPost, "/api/v1/agents/"+agent.Agent.ID+"/compile", map[string]string{"comToken": "abc123"}, admin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRecruiterRegistersAgent(t *testing.T) {
	f := setupAPI(t)

	master := f.sessionCookie(t, "Master")

	rec := f.do(t, http.MethodPost, "/api/v1/agents", map[string]string{"os": "linux"}, master)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/agents", map[string]string{
		"os": "linux", "ipAddress": "10.0.1.20",
	}, master)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Agent              *models.Agent `json:"agent"`
		CommunicationToken string        `json:"communicationToken"`
	}
	decodeResponse(t, rec, &body)
	assert.Len(t, body.CommunicationToken, 64)
	assert.Equal(t, models.AddedByAgent, body.Agent.AddedBy)
	assert.Equal(t, "10.0.1.20", body.Agent.IPAddress)
	assert.False(t, body.Agent.Master)
}

func TestSubnetSettings(t *testing.T) {
	f := setupAPI(t)

	admin := f.sessionCookie(t, "Admin")
	guest := f.sessionCookie(t, "Guest")

	rec := f.do(t, http.MethodPut, "/api/v1/settings/campaign/subnets", map[string][]string{"subnets": {"10.0.0.0/24"}}, guest)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/settings/campaign/subnets", map[string][]string{"subnets": {"bad"}}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/settings/campaign/subnets", map[string][]string{"subnets": {"10.0.0.0/24"}}, admin)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/settings/campaign/subnets", nil, guest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "10.0.0.0/24"))
}

func TestUpdateJobEmptyPatch(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()

	job, err := f.catalog.CreateJob(ctx, &models.Job{JobName: "patchable", OS: models.OSLinux})
	require.NoError(t, err)

	admin := f.sessionCookie(t, "Admin")
	rec := f.do(t, http.MethodPut, "/api/v1/jobs/"+job.ID, map[string]interface{}{}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	decodeResponse(t, rec, &body)
	assert.Equal(t, "Missing (some) required parameter(s)", body.Error)
	assert.NotEmpty(t, body.Parameters)
}
