// Package models contains the domain models shared by the engine, the
// auth substrate and the HTTP boundary.
package models

import (
	"time"
)

// OS identifies an agent's target operating system.
type OS string

const (
	OSLinux   OS = "linux"
	OSWindows OS = "windows"
)

// Valid reports whether the value is a known operating system.
func (o OS) Valid() bool {
	return o == OSLinux || o == OSWindows
}

// AddedBy identifies what kind of principal created an agent.
type AddedBy string

const (
	AddedByUser  AddedBy = "user"
	AddedByAgent AddedBy = "agent"
)

// Encrypted is a symmetric ciphertext at rest together with its nonce,
// both hex encoded. The key never leaves process configuration.
type Encrypted struct {
	Cipher string `json:"cipher"`
	Nonce  string `json:"nonce"`
}

// Empty reports whether no ciphertext is stored.
func (e Encrypted) Empty() bool {
	return e.Cipher == ""
}

// Agent is a remote worker that polls for jobs. The communication token
// is persisted only as a SHA-256 hash; the plaintext exists exactly once,
// in the AddAgent return value.
type Agent struct {
	ID            string    `json:"id"`
	AgentName     string    `json:"agentName"`
	AddedBy       AddedBy   `json:"addedBy"`
	AddedByUser   string    `json:"addedByUser,omitempty"`
	AddedByAgent  string    `json:"addedByAgent,omitempty"`
	OS            OS        `json:"os"`
	Master        bool      `json:"master"`
	PartialMaster bool      `json:"partialMaster"`
	Upgraded      bool      `json:"upgraded"`
	TokenHash     string    `json:"-"`
	LastCheckIn   time.Time `json:"lastCheckIn,omitempty"`
	IPAddress     string    `json:"ipAddress,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Recruiter reports whether the agent distributes fleet-wide master jobs.
func (a *Agent) Recruiter() bool {
	return a.Master || a.PartialMaster
}

// Job is a unit of work stored in the catalog.
type Job struct {
	ID              string    `json:"id"`
	JobName         string    `json:"jobName"`
	JobDescription  string    `json:"jobDescription"`
	OS              OS        `json:"os,omitempty"`
	CrossCompatible bool      `json:"crossCompatible"`
	MasterJob       bool      `json:"masterJob"`
	AgentID         string    `json:"agentId,omitempty"`
	Available       bool      `json:"available"`
	Disabled        bool      `json:"disabled"`
	Completed       bool      `json:"completed"`
	Hide            bool      `json:"hide"`
	ShellCommand    bool      `json:"shellCommand"`
	Command         string    `json:"command"`
	Subnets         []string  `json:"subnets,omitempty"`
	CreatedBy       string    `json:"createdBy,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// JobPatch is a partial update for a job. At least one field must be set.
type JobPatch struct {
	JobName         *string   `json:"jobName,omitempty"`
	JobDescription  *string   `json:"jobDescription,omitempty"`
	OS              *OS       `json:"os,omitempty"`
	CrossCompatible *bool     `json:"crossCompatible,omitempty"`
	MasterJob       *bool     `json:"masterJob,omitempty"`
	AgentID         *string   `json:"agentId,omitempty"`
	Available       *bool     `json:"available,omitempty"`
	Disabled        *bool     `json:"disabled,omitempty"`
	ShellCommand    *bool     `json:"shellCommand,omitempty"`
	Command         *string   `json:"command,omitempty"`
	Subnets         *[]string `json:"subnets,omitempty"`
}

// Empty reports whether the patch carries no mutable fields.
func (p *JobPatch) Empty() bool {
	return p.JobName == nil && p.JobDescription == nil && p.OS == nil &&
		p.CrossCompatible == nil && p.MasterJob == nil && p.AgentID == nil &&
		p.Available == nil && p.Disabled == nil && p.ShellCommand == nil &&
		p.Command == nil && p.Subnets == nil
}

// Output is one appended result record. Records are never mutated, only
// soft-deleted.
type Output struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	AgentID   string    `json:"agentId"`
	Output    string    `json:"output"`
	Success   bool      `json:"success"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is a human operator. Password is a bcrypt hash; the OTP secret and
// the single-use initialization token are encrypted at rest.
type User struct {
	ID                  string    `json:"id"`
	Username            string    `json:"username"`
	EmailAddress        string    `json:"emailAddress"`
	FirstName           string    `json:"firstName"`
	LastName            string    `json:"lastName"`
	PasswordHash        string    `json:"-"`
	OTPSecret           Encrypted `json:"-"`
	InitializationToken Encrypted `json:"-"`
	Locked              bool      `json:"locked"`
	Roles               []string  `json:"roles"`
	CreatedAt           time.Time `json:"createdAt"`
}

// Role is a named set of permission actions.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Permission grants a single action of the form "resource.verb".
type Permission struct {
	ID          string `json:"id"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// Setting is a named configuration value, optionally scoped to an agent.
type Setting struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	AgentID string   `json:"agentId,omitempty"`
	Values  []string `json:"values"`
}

// SessionClaims are the verified contents of a session token.
type SessionClaims struct {
	Subject  string   `json:"sub"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// MasterConfig is the downloadable configuration for a master node.
type MasterConfig struct {
	APIURL string `json:"apiUrl"`
	Token  string `json:"token"`
}
