package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

// CheckInHandler drives the agent polling protocol: authenticate by
// communication token, assemble the applicable job set, and arm the
// rollback self-destruct when ordered.
type CheckInHandler struct {
	registry *Registry
	catalog  *Catalog
}

// NewCheckInHandler creates a new check-in handler.
func NewCheckInHandler(registry *Registry, catalog *Catalog) *CheckInHandler {
	return &CheckInHandler{registry: registry, catalog: catalog}
}

// HandleCheckIn processes one agent poll. The response set is the generic
// pool, then the agent's targeted jobs, then (for recruiters) the recruiter
// pool. Serving a job named Rollback deletes the agent record, so the same
// token fails with a not found error on its next poll.
func (h *CheckInHandler) HandleCheckIn(ctx context.Context, communicationToken, remoteIP string) ([]*models.Job, error) {
	agent, err := h.registry.GetAgentByToken(ctx, communicationToken)
	if err != nil {
		return nil, err
	}

	if err := h.registry.RecordCheckIn(ctx, agent.ID, time.Now(), remoteIP); err != nil {
		return nil, err
	}
	log.Info().Str("agent_id", agent.ID).Msg("Agent checked in")

	jobs, err := h.catalog.CheckIn(ctx, agent.OS, agent.ID)
	if err != nil {
		return nil, err
	}

	switch {
	case agent.Master:
		pool, err := h.catalog.RecruiterCheckIn(ctx)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, pool...)
	case agent.PartialMaster:
		personal, err := h.catalog.PartialRecruiterCheckIn(ctx, agent.ID)
		if err != nil {
			return nil, err
		}
		jobs = appendNewJobs(jobs, personal)
	}

	for _, job := range jobs {
		if job.JobName == JobNameRollback {
			if err := h.registry.DeleteAgent(ctx, agent.ID); err != nil {
				return nil, err
			}
			log.Info().Str("agent_id", agent.ID).Msg("Rollback served, agent destroyed")
			break
		}
	}

	return jobs, nil
}

// appendNewJobs appends jobs from extra that are not already present.
// The targeted pool and the personal recruiter pool overlap for promoted
// agents.
func appendNewJobs(jobs, extra []*models.Job) []*models.Job {
	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		seen[job.ID] = true
	}
	for _, job := range extra {
		if !seen[job.ID] {
			jobs = append(jobs, job)
		}
	}
	return jobs
}
