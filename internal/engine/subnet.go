package engine

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Daemonophobic/phalerum-api/internal/database"
	"github.com/Daemonophobic/phalerum-api/internal/operr"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

// SettingSubnets is the setting holding the in-scope subnets.
const SettingSubnets = "subnets"

// classifyIPs splits the reported addresses into in-scope and out-of-scope
// against the configured subnets. An address matches a subnet when their
// network prefixes agree for the subnet's prefix length. Unparseable
// entries on either side are skipped.
func classifyIPs(ips, subnets []string) (inScope, outOfScope []string) {
	prefixes := make([]netip.Prefix, 0, len(subnets))
	for _, s := range subnets {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			log.Warn().Str("subnet", s).Msg("Skipping malformed subnet")
			continue
		}
		prefixes = append(prefixes, prefix.Masked())
	}

	for _, raw := range ips {
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			log.Warn().Str("ip", raw).Msg("Skipping malformed reported address")
			continue
		}

		matched := false
		for _, prefix := range prefixes {
			if prefix.Contains(addr) {
				matched = true
				break
			}
		}
		if matched {
			inScope = append(inScope, raw)
		} else {
			outOfScope = append(outOfScope, raw)
		}
	}
	return inScope, outOfScope
}

// SubnetManager owns the configured scan subnets. Updating them enqueues
// a fleet-wide recruiter scan so the new ranges get swept.
type SubnetManager struct {
	settings database.SettingRepository
	jobs     database.JobRepository
}

// NewSubnetManager creates a new subnet manager.
func NewSubnetManager(settings database.SettingRepository, jobs database.JobRepository) *SubnetManager {
	return &SubnetManager{settings: settings, jobs: jobs}
}

// GetSubnets returns the configured subnets, empty when none are set.
func (m *SubnetManager) GetSubnets(ctx context.Context) ([]string, error) {
	setting, err := m.settings.GetByName(ctx, SettingSubnets)
	if err != nil {
		if errors.Is(err, operr.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return setting.Values, nil
}

// SetSubnets validates and stores the subnet list, then enqueues a
// recruiter scan over it.
func (m *SubnetManager) SetSubnets(ctx context.Context, subnets []string) error {
	if len(subnets) == 0 {
		return operr.MissingParameters("subnets")
	}
	for _, s := range subnets {
		prefix, err := netip.ParsePrefix(s)
		if err != nil || !prefix.Addr().Is4() {
			return operr.InvalidParameters("subnets")
		}
	}

	err := m.settings.Upsert(ctx, &models.Setting{
		ID:     uuid.New().String(),
		Name:   SettingSubnets,
		Values: subnets,
	})
	if err != nil {
		return err
	}

	now := time.Now()
	scan := &models.Job{
		ID:             uuid.New().String(),
		JobName:        JobNameRecruiterScan,
		JobDescription: "Makes the recruiter scan the subnets",
		MasterJob:      true,
		Available:      true,
		Command:        CommandRecruiterScan,
		Subnets:        subnets,
		CreatedBy:      "system",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.jobs.Create(ctx, scan); err != nil {
		return err
	}

	log.Info().Strs("subnets", subnets).Msg("Subnets updated, recruiter scan enqueued")
	return nil
}
