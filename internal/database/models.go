package database

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

// Agent is the database model for agents.
type Agent struct {
	bun.BaseModel `bun:"table:agents"`

	ID            string    `bun:"id,pk"`
	AgentName     string    `bun:"agent_name,notnull,unique"`
	AddedBy       string    `bun:"added_by,notnull"`
	AddedByUser   string    `bun:"added_by_user"`
	AddedByAgent  string    `bun:"added_by_agent"`
	OS            string    `bun:"os,notnull"`
	Master        bool      `bun:"master,notnull,default:false"`
	PartialMaster bool      `bun:"partial_master,notnull,default:false"`
	Upgraded      bool      `bun:"upgraded,notnull,default:false"`
	TokenHash     string    `bun:"token_hash,notnull"`
	LastCheckIn   time.Time `bun:"last_check_in,nullzero"`
	IPAddress     string    `bun:"ip_address"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

// ToModel converts the database agent to the domain model.
func (a *Agent) ToModel() *models.Agent {
	return &models.Agent{
		ID:            a.ID,
		AgentName:     a.AgentName,
		AddedBy:       models.AddedBy(a.AddedBy),
		AddedByUser:   a.AddedByUser,
		AddedByAgent:  a.AddedByAgent,
		OS:            models.OS(a.OS),
		Master:        a.Master,
		PartialMaster: a.PartialMaster,
		Upgraded:      a.Upgraded,
		TokenHash:     a.TokenHash,
		LastCheckIn:   a.LastCheckIn,
		IPAddress:     a.IPAddress,
		CreatedAt:     a.CreatedAt,
	}
}

// FromModel populates the database agent from the domain model.
func (a *Agent) FromModel(m *models.Agent) {
	a.ID = m.ID
	a.AgentName = m.AgentName
	a.AddedBy = string(m.AddedBy)
	a.AddedByUser = m.AddedByUser
	a.AddedByAgent = m.AddedByAgent
	a.OS = string(m.OS)
	a.Master = m.Master
	a.PartialMaster = m.PartialMaster
	a.Upgraded = m.Upgraded
	a.TokenHash = m.TokenHash
	a.LastCheckIn = m.LastCheckIn
	a.IPAddress = m.IPAddress
	a.CreatedAt = m.CreatedAt
}

// Job is the database model for jobs.
type Job struct {
	bun.BaseModel `bun:"table:jobs"`

	ID              string    `bun:"id,pk"`
	JobName         string    `bun:"job_name,notnull"`
	JobDescription  string    `bun:"job_description"`
	OS              string    `bun:"os"`
	CrossCompatible bool      `bun:"cross_compatible,notnull,default:false"`
	MasterJob       bool      `bun:"master_job,notnull,default:false"`
	AgentID         string    `bun:"agent_id"`
	Available       bool      `bun:"available,notnull,default:false"`
	Disabled        bool      `bun:"disabled,notnull,default:false"`
	Completed       bool      `bun:"completed,notnull,default:false"`
	Hide            bool      `bun:"hide,notnull,default:false"`
	ShellCommand    bool      `bun:"shell_command,notnull,default:false"`
	Command         string    `bun:"command"`
	Subnets         []string  `bun:"subnets,type:json"`
	CreatedBy       string    `bun:"created_by"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,notnull"`
}

// ToModel converts the database job to the domain model.
func (j *Job) ToModel() *models.Job {
	return &models.Job{
		ID:              j.ID,
		JobName:         j.JobName,
		JobDescription:  j.JobDescription,
		OS:              models.OS(j.OS),
		CrossCompatible: j.CrossCompatible,
		MasterJob:       j.MasterJob,
		AgentID:         j.AgentID,
		Available:       j.Available,
		Disabled:        j.Disabled,
		Completed:       j.Completed,
		Hide:            j.Hide,
		ShellCommand:    j.ShellCommand,
		Command:         j.Command,
		Subnets:         j.Subnets,
		CreatedBy:       j.CreatedBy,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}

// FromModel populates the database job from the domain model.
func (j *Job) FromModel(m *models.Job) {
	j.ID = m.ID
	j.JobName = m.JobName
	j.JobDescription = m.JobDescription
	j.OS = string(m.OS)
	j.CrossCompatible = m.CrossCompatible
	j.MasterJob = m.MasterJob
	j.AgentID = m.AgentID
	j.Available = m.Available
	j.Disabled = m.Disabled
	j.Completed = m.Completed
	j.Hide = m.Hide
	j.ShellCommand = m.ShellCommand
	j.Command = m.Command
	j.Subnets = m.Subnets
	j.CreatedBy = m.CreatedBy
	j.CreatedAt = m.CreatedAt
	j.UpdatedAt = m.UpdatedAt
}

// Output is the database model for job outputs.
type Output struct {
	bun.BaseModel `bun:"table:outputs"`

	ID        string    `bun:"id,pk"`
	JobID     string    `bun:"job_id,notnull"`
	AgentID   string    `bun:"agent_id,notnull"`
	Output    string    `bun:"output"`
	Success   bool      `bun:"success,notnull,default:false"`
	Deleted   bool      `bun:"deleted,notnull,default:false"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// ToModel converts the database output to the domain model.
func (o *Output) ToModel() *models.Output {
	return &models.Output{
		ID:        o.ID,
		JobID:     o.JobID,
		AgentID:   o.AgentID,
		Output:    o.Output,
		Success:   o.Success,
		Deleted:   o.Deleted,
		CreatedAt: o.CreatedAt,
	}
}

// FromModel populates the database output from the domain model.
func (o *Output) FromModel(m *models.Output) {
	o.ID = m.ID
	o.JobID = m.JobID
	o.AgentID = m.AgentID
	o.Output = m.Output
	o.Success = m.Success
	o.Deleted = m.Deleted
	o.CreatedAt = m.CreatedAt
}

// User is the database model for operator accounts.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID              string    `bun:"id,pk"`
	FirstName       string    `bun:"first_name"`
	LastName        string    `bun:"last_name"`
	Username        string    `bun:"username,notnull,unique"`
	EmailAddress    string    `bun:"email_address,notnull,unique"`
	PasswordHash    string    `bun:"password_hash"`
	OTPSecretCipher string    `bun:"otp_secret_cipher"`
	OTPSecretNonce  string    `bun:"otp_secret_nonce"`
	InitTokenCipher string    `bun:"init_token_cipher"`
	InitTokenNonce  string    `bun:"init_token_nonce"`
	Locked          bool      `bun:"locked,notnull,default:false"`
	Roles           []string  `bun:"roles,type:json"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
}

// ToModel converts the database user to the domain model.
func (u *User) ToModel() *models.User {
	return &models.User{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		PasswordHash: u.PasswordHash,
		OTPSecret: models.Encrypted{
			Cipher: u.OTPSecretCipher,
			Nonce:  u.OTPSecretNonce,
		},
		InitializationToken: models.Encrypted{
			Cipher: u.InitTokenCipher,
			Nonce:  u.InitTokenNonce,
		},
		Locked:    u.Locked,
		Roles:     u.Roles,
		CreatedAt: u.CreatedAt,
	}
}

// FromModel populates the database user from the domain model.
func (u *User) FromModel(m *models.User) {
	u.ID = m.ID
	u.FirstName = m.FirstName
	u.LastName = m.LastName
	u.Username = m.Username
	u.EmailAddress = m.EmailAddress
	u.PasswordHash = m.PasswordHash
	u.OTPSecretCipher = m.OTPSecret.Cipher
	u.OTPSecretNonce = m.OTPSecret.Nonce
	u.InitTokenCipher = m.InitializationToken.Cipher
	u.InitTokenNonce = m.InitializationToken.Nonce
	u.Locked = m.Locked
	u.Roles = m.Roles
	u.CreatedAt = m.CreatedAt
}

// Role is the database model for roles.
type Role struct {
	bun.BaseModel `bun:"table:roles"`

	ID          string   `bun:"id,pk"`
	Name        string   `bun:"name,notnull,unique"`
	Permissions []string `bun:"permissions,type:json"`
}

// ToModel converts the database role to the domain model.
func (r *Role) ToModel() *models.Role {
	return &models.Role{
		ID:          r.ID,
		Name:        r.Name,
		Permissions: r.Permissions,
	}
}

// FromModel populates the database role from the domain model.
func (r *Role) FromModel(m *models.Role) {
	r.ID = m.ID
	r.Name = m.Name
	r.Permissions = m.Permissions
}

// Permission is the database model for the permission catalog.
type Permission struct {
	bun.BaseModel `bun:"table:permissions"`

	ID          string `bun:"id,pk"`
	Action      string `bun:"action,notnull,unique"`
	Description string `bun:"description"`
}

// ToModel converts the database permission to the domain model.
func (p *Permission) ToModel() *models.Permission {
	return &models.Permission{
		ID:          p.ID,
		Action:      p.Action,
		Description: p.Description,
	}
}

// FromModel populates the database permission from the domain model.
func (p *Permission) FromModel(m *models.Permission) {
	p.ID = m.ID
	p.Action = m.Action
	p.Description = m.Description
}

// Setting is the database model for named settings.
type Setting struct {
	bun.BaseModel `bun:"table:settings"`

	ID      string   `bun:"id,pk"`
	Name    string   `bun:"name,notnull,unique"`
	AgentID string   `bun:"agent_id"`
	Values  []string `bun:"values,type:json"`
}

// ToModel converts the database setting to the domain model.
func (s *Setting) ToModel() *models.Setting {
	return &models.Setting{
		ID:      s.ID,
		Name:    s.Name,
		AgentID: s.AgentID,
		Values:  s.Values,
	}
}

// FromModel populates the database setting from the domain model.
func (s *Setting) FromModel(m *models.Setting) {
	s.ID = m.ID
	s.Name = m.Name
	s.AgentID = m.AgentID
	s.Values = m.Values
}
