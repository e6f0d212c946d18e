package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Daemonophobic/phalerum-api/internal/database"
	"github.com/Daemonophobic/phalerum-api/internal/operr"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

// jobPatchFields are the mutable job fields, reported when a patch
// supplies none of them.
var jobPatchFields = []string{
	"jobName", "jobDescription", "os", "crossCompatible", "masterJob",
	"agentId", "available", "disabled", "shellCommand", "command", "subnets",
}

// Catalog is the job catalog and distribution engine.
type Catalog struct {
	jobs database.JobRepository
}

// NewCatalog creates a new job catalog.
func NewCatalog(jobs database.JobRepository) *Catalog {
	return &Catalog{jobs: jobs}
}

// CheckIn returns the jobs applicable to a worker agent: the generic pool
// for its OS followed by the jobs targeted at it.
func (c *Catalog) CheckIn(ctx context.Context, os models.OS, agentID string) ([]*models.Job, error) {
	generic, err := c.jobs.ListGeneric(ctx, os)
	if err != nil {
		return nil, err
	}
	targeted, err := c.jobs.ListTargeted(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return append(generic, targeted...), nil
}

// RecruiterCheckIn returns the fleet-wide recruiter pool. Scan jobs are
// one-shot: each one served is removed from the catalog so it can never
// be served twice.
func (c *Catalog) RecruiterCheckIn(ctx context.Context) ([]*models.Job, error) {
	jobs, err := c.jobs.ListRecruiterPool(ctx)
	if err != nil {
		return nil, err
	}

	for _, job := range jobs {
		if job.Command != CommandRecruiterScan {
			continue
		}
		if err := c.jobs.Delete(ctx, job.ID); err != nil {
			return nil, err
		}
		log.Info().Str("job_id", job.ID).Msg("Recruiter scan consumed")
	}
	return jobs, nil
}

// PartialRecruiterCheckIn returns the recruiter jobs injected for one
// promoted agent. Its personal scan job is marked completed once served.
func (c *Catalog) PartialRecruiterCheckIn(ctx context.Context, agentID string) ([]*models.Job, error) {
	jobs, err := c.jobs.ListRecruiterTargeted(ctx, agentID)
	if err != nil {
		return nil, err
	}

	for _, job := range jobs {
		if job.Command != CommandRecruiterScan {
			continue
		}
		if err := c.jobs.MarkCompleted(ctx, job.ID); err != nil {
			return nil, err
		}
		log.Info().
			Str("job_id", job.ID).
			Str("agent_id", agentID).
			Msg("Personal recruiter scan consumed")
	}
	return jobs, nil
}

// GetJob returns a single job by id.
func (c *Catalog) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return c.jobs.Get(ctx, id)
}

// ListJobs returns the catalog, excluding hidden jobs unless asked.
func (c *Catalog) ListJobs(ctx context.Context, includeHidden bool) ([]*models.Job, error) {
	return c.jobs.List(ctx, includeHidden)
}

// CreateJob validates and stores a new job.
func (c *Catalog) CreateJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	if job.JobName == "" {
		return nil, operr.MissingParameters("jobName")
	}
	if job.OS != "" && !job.OS.Valid() {
		return nil, operr.InvalidParameters("os")
	}

	now := time.Now()
	job.ID = uuid.New().String()
	job.Completed = false
	job.CreatedAt = now
	job.UpdatedAt = now

	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	log.Info().Str("job_id", job.ID).Str("job_name", job.JobName).Msg("Job created")
	return job, nil
}

// UpdateJob applies a partial update. A patch carrying no mutable fields
// is rejected.
func (c *Catalog) UpdateJob(ctx context.Context, id string, patch *models.JobPatch) (*models.Job, error) {
	if patch == nil || patch.Empty() {
		return nil, operr.MissingParameters(jobPatchFields...)
	}

	job, err := c.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.JobName != nil {
		job.JobName = *patch.JobName
	}
	if patch.JobDescription != nil {
		job.JobDescription = *patch.JobDescription
	}
	if patch.OS != nil {
		if !patch.OS.Valid() {
			return nil, operr.InvalidParameters("os")
		}
		job.OS = *patch.OS
	}
	if patch.CrossCompatible != nil {
		job.CrossCompatible = *patch.CrossCompatible
	}
	if patch.MasterJob != nil {
		job.MasterJob = *patch.MasterJob
	}
	if patch.AgentID != nil {
		job.AgentID = *patch.AgentID
	}
	if patch.Available != nil {
		job.Available = *patch.Available
	}
	if patch.Disabled != nil {
		job.Disabled = *patch.Disabled
	}
	if patch.ShellCommand != nil {
		job.ShellCommand = *patch.ShellCommand
	}
	if patch.Command != nil {
		job.Command = *patch.Command
	}
	if patch.Subnets != nil {
		job.Subnets = *patch.Subnets
	}
	job.UpdatedAt = time.Now()

	if err := c.jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ToggleJob flips the disabled flag, pausing or resuming distribution.
func (c *Catalog) ToggleJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := c.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	job.Disabled = !job.Disabled
	job.UpdatedAt = time.Now()
	if err := c.jobs.Update(ctx, job); err != nil {
		return nil, err
	}

	log.Info().Str("job_id", id).Bool("disabled", job.Disabled).Msg("Job toggled")
	return job, nil
}

// DeleteJob removes a job from the catalog.
func (c *Catalog) DeleteJob(ctx context.Context, id string) error {
	return c.jobs.Delete(ctx, id)
}
