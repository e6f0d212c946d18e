package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/Daemonophobic/phalerum-api/internal/operr"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

// translate maps driver errors onto the operation error taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return operr.ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return operr.ErrDuplicateKey
	}
	return err
}

// AgentRepository manages agent records.
type AgentRepository interface {
	Create(ctx context.Context, agent *models.Agent) error
	Get(ctx context.Context, id string) (*models.Agent, error)
	GetByName(ctx context.Context, name string) (*models.Agent, error)
	GetByTokenHash(ctx context.Context, hash string) (*models.Agent, error)
	List(ctx context.Context) ([]*models.Agent, error)
	Update(ctx context.Context, agent *models.Agent) error
	RecordCheckIn(ctx context.Context, id string, at time.Time, ip string) error
	Promote(ctx context.Context, agent *models.Agent, jobs ...*models.Job) error
	Delete(ctx context.Context, id string) error
}

type agentRepository struct {
	db *bun.DB
}

// NewAgentRepository creates a new agent repository.
func NewAgentRepository(db *bun.DB) AgentRepository {
	return &agentRepository{db: db}
}

func (r *agentRepository) Create(ctx context.Context, agent *models.Agent) error {
	dbAgent := &Agent{}
	dbAgent.FromModel(agent)
	_, err := r.db.NewInsert().Model(dbAgent).Exec(ctx)
	return translate(err)
}

func (r *agentRepository) Get(ctx context.Context, id string) (*models.Agent, error) {
	dbAgent := &Agent{}
	err := r.db.NewSelect().
		Model(dbAgent).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return dbAgent.ToModel(), nil
}

func (r *agentRepository) GetByName(ctx context.Context, name string) (*models.Agent, error) {
	dbAgent := &Agent{}
	err := r.db.NewSelect().
		Model(dbAgent).
		Where("agent_name = ?", name).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return dbAgent.ToModel(), nil
}

func (r *agentRepository) GetByTokenHash(ctx context.Context, hash string) (*models.Agent, error) {
	dbAgent := &Agent{}
	err := r.db.NewSelect().
		Model(dbAgent).
		Where("token_hash = ?", hash).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return dbAgent.ToModel(), nil
}

func (r *agentRepository) List(ctx context.Context) ([]*models.Agent, error) {
	var dbAgents []*Agent
	err := r.db.NewSelect().
		Model(&dbAgents).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}

	agents := make([]*models.Agent, len(dbAgents))
	for i, dbAgent := range dbAgents {
		agents[i] = dbAgent.ToModel()
	}
	return agents, nil
}

func (r *agentRepository) Update(ctx context.Context, agent *models.Agent) error {
	dbAgent := &Agent{}
	dbAgent.FromModel(agent)
	res, err := r.db.NewUpdate().
		Model(dbAgent).
		WherePK().
		Exec(ctx)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return operr.ErrNotFound
	}
	return nil
}

func (r *agentRepository) RecordCheckIn(ctx context.Context, id string, at time.Time, ip string) error {
	res, err := r.db.NewUpdate().
		Model((*Agent)(nil)).
		Set("last_check_in = ?", at).
		Set("ip_address = ?", ip).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return operr.ErrNotFound
	}
	return nil
}

// Promote flips the agent's promotion flags and inserts the follow-up jobs
// in one transaction so a concurrent check-in never sees a half-promoted state.
func (r *agentRepository) Promote(ctx context.Context, agent *models.Agent, jobs ...*models.Job) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*Agent)(nil)).
			Set("upgraded = ?", agent.Upgraded).
			Set("partial_master = ?", agent.PartialMaster).
			Set("master = ?", agent.Master).
			Where("id = ?", agent.ID).
			Exec(ctx)
		if err != nil {
			return translate(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return operr.ErrNotFound
		}

		for _, job := range jobs {
			dbJob := &Job{}
			dbJob.FromModel(job)
			if _, err := tx.NewInsert().Model(dbJob).Exec(ctx); err != nil {
				return translate(err)
			}
		}
		return nil
	})
}

func (r *agentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*Agent)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return operr.ErrNotFound
	}
	return nil
}

// JobRepository manages job records and the check-in pool queries.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, includeHidden bool) ([]*models.Job, error)
	ListGeneric(ctx context.Context, os models.OS) ([]*models.Job, error)
	ListTargeted(ctx context.Context, agentID string) ([]*models.Job, error)
	ListRecruiterPool(ctx context.Context) ([]*models.Job, error)
	ListRecruiterTargeted(ctx context.Context, agentID string) ([]*models.Job, error)
	CountByAgent(ctx context.Context, agentID string) (int, error)
	Update(ctx context.Context, job *models.Job) error
	MarkCompleted(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type jobRepository struct {
	db *bun.DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *bun.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(ctx context.Context, job *models.Job) error {
	dbJob := &Job{}
	dbJob.FromModel(job)
	_, err := r.db.NewInsert().Model(dbJob).Exec(ctx)
	return translate(err)
}

func (r *jobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	dbJob := &Job{}
	err := r.db.NewSelect().
		Model(dbJob).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return dbJob.ToModel(), nil
}

func (r *jobRepository) List(ctx context.Context, includeHidden bool) ([]*models.Job, error) {
	var dbJobs []*Job
	q := r.db.NewSelect().
		Model(&dbJobs).
		Order("created_at DESC")
	if !includeHidden {
		q = q.Where("hide = ?", false)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, translate(err)
	}
	return toJobModels(dbJobs), nil
}

// ListGeneric returns the unassigned worker pool for the given OS.
func (r *jobRepository) ListGeneric(ctx context.Context, os models.OS) ([]*models.Job, error) {
	var dbJobs []*Job
	err := r.db.NewSelect().
		Model(&dbJobs).
		Where("(os = ? OR cross_compatible = ?)", string(os), true).
		Where("master_job = ?", false).
		Where("available = ?", true).
		Where("disabled = ?", false).
		Where("(agent_id IS NULL OR agent_id = '')").
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return toJobModels(dbJobs), nil
}

// ListTargeted returns enabled available jobs assigned to a specific agent.
func (r *jobRepository) ListTargeted(ctx context.Context, agentID string) ([]*models.Job, error) {
	var dbJobs []*Job
	err := r.db.NewSelect().
		Model(&dbJobs).
		Where("agent_id = ?", agentID).
		Where("available = ?", true).
		Where("disabled = ?", false).
		Where("completed = ?", false).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return toJobModels(dbJobs), nil
}

// ListRecruiterPool returns unassigned, uncompleted recruiter jobs.
func (r *jobRepository) ListRecruiterPool(ctx context.Context) ([]*models.Job, error) {
	var dbJobs []*Job
	err := r.db.NewSelect().
		Model(&dbJobs).
		Where("master_job = ?", true).
		Where("available = ?", true).
		Where("disabled = ?", false).
		Where("completed = ?", false).
		Where("(agent_id IS NULL OR agent_id = '')").
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return toJobModels(dbJobs), nil
}

// ListRecruiterTargeted returns recruiter jobs assigned to a specific agent.
func (r *jobRepository) ListRecruiterTargeted(ctx context.Context, agentID string) ([]*models.Job, error) {
	var dbJobs []*Job
	err := r.db.NewSelect().
		Model(&dbJobs).
		Where("master_job = ?", true).
		Where("agent_id = ?", agentID).
		Where("available = ?", true).
		Where("disabled = ?", false).
		Where("completed = ?", false).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return toJobModels(dbJobs), nil
}

func (r *jobRepository) CountByAgent(ctx context.Context, agentID string) (int, error) {
	count, err := r.db.NewSelect().
		Model((*Job)(nil)).
		Where("agent_id = ?", agentID).
		Count(ctx)
	return count, translate(err)
}

func (r *jobRepository) Update(ctx context.Context, job *models.Job) error {
	dbJob := &Job{}
	dbJob.FromModel(job)
	res, err := r.db.NewUpdate().
		Model(dbJob).
		WherePK().
		Exec(ctx)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return operr.ErrNotFound
	}
	return nil
}

func (r *jobRepository) MarkCompleted(ctx context.Context, id string) error {
	res, err := r.db.NewUpdate().
		Model((*Job)(nil)).
		Set("completed = ?", true).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return operr.ErrNotFound
	}
	return nil
}

func (r *jobRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*Job)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return operr.ErrNotFound
	}
	return nil
}

func toJobModels(dbJobs []*Job) []*models.Job {
	jobs := make([]*models.Job, len(dbJobs))
	for i, dbJob := range dbJobs {
		jobs[i] = dbJob.ToModel()
	}
	return jobs
}

// OutputRepository manages job output records.
type OutputRepository interface {
	Create(ctx context.Context, output *models.Output) error
	Get(ctx context.Context, id string) (*models.Output, error)
	ListByJob(ctx context.Context, jobID string, limit, offset int) ([]*models.Output, error)
	SoftDelete(ctx context.Context, id string) error
}

type outputRepository struct {
	db *bun.DB
}

// NewOutputRepository creates a new output repository.
func NewOutputRepository(db *bun.DB) OutputRepository {
	return &outputRepository{db: db}
}

func (r *outputRepository) Create(ctx context.Context, output *models.Output) error {
	dbOutput := &Output{}
	dbOutput.FromModel(output)
	_, err := r.db.NewInsert().Model(dbOutput).Exec(ctx)
	return translate(err)
}

func (r *outputRepository) Get(ctx context.Context, id string) (*models.Output, error) {
	dbOutput := &Output{}
	err := r.db.NewSelect().
		Model(dbOutput).
		Where("id = ?", id).
		Where("deleted = ?", false).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return dbOutput.ToModel(), nil
}

func (r *outputRepository) ListByJob(ctx context.Context, jobID string, limit, offset int) ([]*models.Output, error) {
	var dbOutputs []*Output
	err := r.db.NewSelect().
		Model(&dbOutputs).
		Where("job_id = ?", jobID).
		Where("deleted = ?", false).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}

	outputs := make([]*models.Output, len(dbOutputs))
	for i, dbOutput := range dbOutputs {
		outputs[i] = dbOutput.ToModel()
	}
	return outputs, nil
}

func (r *outputRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.NewUpdate().
		Model((*Output)(nil)).
		Set("deleted = ?", true).
		Where("id = ?", id).
		Where("deleted = ?", false).
		Exec(ctx)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return operr.ErrNotFound
	}
	return nil
}

// UserRepository manages operator accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Count(ctx context.Context) (int, error)
	SetCredentials(ctx context.Context, id, passwordHash string, secret models.Encrypted) error
	Unlock(ctx context.Context, id string) error
	SetLocked(ctx context.Context, id string, locked bool) error
	Delete(ctx context.Context, id string) error
}

type userRepository struct {
	db *bun.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *bun.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	dbUser := &User{}
	dbUser.FromModel(user)
	_, err := r.db.NewInsert().Model(dbUser).Exec(ctx)
	return translate(err)
}

func (r *userRepository) Get(ctx context.Context, id string) (*models.User, error) {
	dbUser := &User{}
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return dbUser.ToModel(), nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	dbUser := &User{}
	err := r.db.NewSelect().
		Model(dbUser).
		Where("email_address = ?", email).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return dbUser.ToModel(), nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	dbUser := &User{}
	err := r.db.NewSelect().
		Model(dbUser).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return dbUser.ToModel(), nil
}

func (r *userRepository) List(ctx context.Context) ([]*models.User, error) {
	var dbUsers []*User
	err := r.db.NewSelect().
		Model(&dbUsers).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}

	users := make([]*models.User, len(dbUsers))
	for i, dbUser := range dbUsers {
		users[i] = dbUser.ToModel()
	}
	return users, nil
}

func (r *userRepository) Count(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*User)(nil)).
		Count(ctx)
	return count, translate(err)
}

// SetCredentials stores the password hash and the encrypted OTP secret in a
// single transaction so a crashed initialization never leaves one without
// the other.
func (r *userRepository) SetCredentials(ctx context.Context, id, passwordHash string, secret models.Encrypted) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*User)(nil)).
			Set("password_hash = ?", passwordHash).
			Set("otp_secret_cipher = ?", secret.Cipher).
			Set("otp_secret_nonce = ?", secret.Nonce).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return translate(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return operr.ErrNotFound
		}
		return nil
	})
}

// Unlock clears the locked flag and burns the one-time initialization token.
func (r *userRepository) Unlock(ctx context.Context, id string) error {
	res, err := r.db.NewUpdate().
		Model((*User)(nil)).
		Set("locked = ?", false).
		Set("init_token_cipher = ?", "").
		Set("init_token_nonce = ?", "").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return operr.ErrNotFound
	}
	return nil
}

func (r *userRepository) SetLocked(ctx context.Context, id string, locked bool) error {
	res, err := r.db.NewUpdate().
		Model((*User)(nil)).
		Set("locked = ?", locked).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return operr.ErrNotFound
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return operr.ErrNotFound
	}
	return nil
}

// RoleRepository manages roles.
type RoleRepository interface {
	Create(ctx context.Context, role *models.Role) error
	GetByName(ctx context.Context, name string) (*models.Role, error)
	List(ctx context.Context) ([]*models.Role, error)
}

type roleRepository struct {
	db *bun.DB
}

// NewRoleRepository creates a new role repository.
func NewRoleRepository(db *bun.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Create(ctx context.Context, role *models.Role) error {
	dbRole := &Role{}
	dbRole.FromModel(role)
	_, err := r.db.NewInsert().Model(dbRole).Exec(ctx)
	return translate(err)
}

func (r *roleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	dbRole := &Role{}
	err := r.db.NewSelect().
		Model(dbRole).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return dbRole.ToModel(), nil
}

func (r *roleRepository) List(ctx context.Context) ([]*models.Role, error) {
	var dbRoles []*Role
	err := r.db.NewSelect().
		Model(&dbRoles).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}

	roles := make([]*models.Role, len(dbRoles))
	for i, dbRole := range dbRoles {
		roles[i] = dbRole.ToModel()
	}
	return roles, nil
}

// PermissionRepository manages the permission catalog.
type PermissionRepository interface {
	Create(ctx context.Context, permission *models.Permission) error
	GetByAction(ctx context.Context, action string) (*models.Permission, error)
	List(ctx context.Context) ([]*models.Permission, error)
}

type permissionRepository struct {
	db *bun.DB
}

// NewPermissionRepository creates a new permission repository.
func NewPermissionRepository(db *bun.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) Create(ctx context.Context, permission *models.Permission) error {
	dbPerm := &Permission{}
	dbPerm.FromModel(permission)
	_, err := r.db.NewInsert().Model(dbPerm).Exec(ctx)
	return translate(err)
}

func (r *permissionRepository) GetByAction(ctx context.Context, action string) (*models.Permission, error) {
	dbPerm := &Permission{}
	err := r.db.NewSelect().
		Model(dbPerm).
		Where("action = ?", action).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return dbPerm.ToModel(), nil
}

func (r *permissionRepository) List(ctx context.Context) ([]*models.Permission, error) {
	var dbPerms []*Permission
	err := r.db.NewSelect().
		Model(&dbPerms).
		Order("action ASC").
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}

	permissions := make([]*models.Permission, len(dbPerms))
	for i, dbPerm := range dbPerms {
		permissions[i] = dbPerm.ToModel()
	}
	return permissions, nil
}

// SettingRepository manages named settings.
type SettingRepository interface {
	GetByName(ctx context.Context, name string) (*models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
}

type settingRepository struct {
	db *bun.DB
}

// NewSettingRepository creates a new setting repository.
func NewSettingRepository(db *bun.DB) SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) GetByName(ctx context.Context, name string) (*models.Setting, error) {
	dbSetting := &Setting{}
	err := r.db.NewSelect().
		Model(dbSetting).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return dbSetting.ToModel(), nil
}

func (r *settingRepository) Upsert(ctx context.Context, setting *models.Setting) error {
	dbSetting := &Setting{}
	dbSetting.FromModel(setting)
	_, err := r.db.NewInsert().
		Model(dbSetting).
		On("CONFLICT (name) DO UPDATE").
		Set("\"values\" = EXCLUDED.\"values\"").
		Set("agent_id = EXCLUDED.agent_id").
		Exec(ctx)
	return translate(err)
}
