package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Daemonophobic/phalerum-api/internal/database"
	"github.com/Daemonophobic/phalerum-api/internal/metrics"
	"github.com/Daemonophobic/phalerum-api/internal/operr"
	"github.com/Daemonophobic/phalerum-api/pkg/crypto"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

// Well-known job identities used by the promotion and rollback paths.
const (
	JobNameRollback      = "Rollback"
	JobNameUpgrade       = "Upgrade agent"
	JobNameRecruiterScan = "Recruiter Scan"

	CommandRecruiterScan = "recruiter.scan"
	CommandDiscoverIP    = "discover.ip"
	CommandUpgrade       = "agent.upgrade"
)

// NewAgent is the result of registering an agent. CommunicationToken is
// the plaintext token, disclosed exactly once; only its hash is stored.
type NewAgent struct {
	Agent              *models.Agent
	CommunicationToken string
}

// Registry manages agent identity and lifecycle.
type Registry struct {
	agents database.AgentRepository
	jobs   database.JobRepository
}

// NewRegistry creates a new agent registry.
func NewRegistry(agents database.AgentRepository, jobs database.JobRepository) *Registry {
	return &Registry{agents: agents, jobs: jobs}
}

// AddAgent registers an agent and mints its communication token. Recruiter
// created agents and unnamed user created agents get a random name.
func (r *Registry) AddAgent(ctx context.Context, master bool, os models.OS, addedBy models.AddedBy, addedByID, displayName string) (*NewAgent, error) {
	if !os.Valid() {
		return nil, operr.InvalidParameters("os")
	}

	if addedBy == models.AddedByAgent || displayName == "" {
		name, err := crypto.GenerateString(16)
		if err != nil {
			return nil, err
		}
		displayName = name
	}

	plain, hash, err := crypto.GenerateToken()
	if err != nil {
		return nil, err
	}

	agent := &models.Agent{
		ID:        uuid.New().String(),
		AgentName: displayName,
		AddedBy:   addedBy,
		OS:        os,
		Master:    master,
		TokenHash: hash,
		CreatedAt: time.Now(),
	}
	switch addedBy {
	case models.AddedByAgent:
		agent.AddedByAgent = addedByID
	default:
		agent.AddedByUser = addedByID
	}

	if err := r.agents.Create(ctx, agent); err != nil {
		return nil, err
	}

	log.Info().
		Str("agent_id", agent.ID).
		Str("agent_name", agent.AgentName).
		Str("added_by", string(addedBy)).
		Msg("Agent registered")

	return &NewAgent{Agent: agent, CommunicationToken: plain}, nil
}

// GetAgentByToken resolves an agent from its plaintext communication token.
func (r *Registry) GetAgentByToken(ctx context.Context, token string) (*models.Agent, error) {
	return r.agents.GetByTokenHash(ctx, crypto.Hash(token))
}

// GetAgent returns a single agent by id.
func (r *Registry) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	return r.agents.Get(ctx, id)
}

// ListAgents returns all registered agents.
func (r *Registry) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	return r.agents.List(ctx)
}

// UpdateAgent persists a direct mutation of the agent record.
func (r *Registry) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	return r.agents.Update(ctx, agent)
}

// RecordCheckIn stamps the agent's last check-in time and source address.
func (r *Registry) RecordCheckIn(ctx context.Context, id string, at time.Time, ip string) error {
	return r.agents.RecordCheckIn(ctx, id, at, ip)
}

// DeleteAgent removes the agent record. Jobs and outputs referencing the
// agent are kept; orphans are logged so an operator can clean them up.
func (r *Registry) DeleteAgent(ctx context.Context, id string) error {
	if err := r.agents.Delete(ctx, id); err != nil {
		return err
	}

	if count, err := r.jobs.CountByAgent(ctx, id); err == nil && count > 0 {
		log.Warn().
			Str("agent_id", id).
			Int("orphaned_jobs", count).
			Msg("Deleted agent still referenced by jobs")
	}

	log.Info().Str("agent_id", id).Msg("Agent deleted")
	return nil
}

// Promote flips the agent into a partial master and injects its upgrade
// and scan jobs in one transaction. The transition is one-way: an already
// upgraded agent is left untouched.
func (r *Registry) Promote(ctx context.Context, agent *models.Agent, subnets []string) error {
	if agent.Upgraded {
		return nil
	}

	agent.Upgraded = true
	agent.PartialMaster = true

	now := time.Now()
	upgrade := &models.Job{
		ID:             uuid.New().String(),
		JobName:        JobNameUpgrade,
		JobDescription: "Marks the agent as master capable",
		OS:             agent.OS,
		MasterJob:      true,
		AgentID:        agent.ID,
		Available:      true,
		Hide:           true,
		Command:        CommandUpgrade,
		CreatedBy:      "system",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	scan := &models.Job{
		ID:             uuid.New().String(),
		JobName:        JobNameRecruiterScan,
		JobDescription: "Makes the recruiter scan the subnets",
		OS:             agent.OS,
		MasterJob:      true,
		AgentID:        agent.ID,
		Available:      true,
		Hide:           true,
		Command:        CommandRecruiterScan,
		Subnets:        subnets,
		CreatedBy:      "system",
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := r.agents.Promote(ctx, agent, upgrade, scan); err != nil {
		return err
	}

	metrics.PromotionsTotal.Inc()
	log.Info().
		Str("agent_id", agent.ID).
		Strs("subnets", subnets).
		Msg("Agent promoted to partial master")
	return nil
}
