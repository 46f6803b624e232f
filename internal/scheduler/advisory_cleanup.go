package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/codebymuri/DeFiYield/internal/domain"
	"github.com/codebymuri/DeFiYield/internal/modules/rebalancing"
)

// AdvisoryRetention is how long oracle recommendations are kept before the
// daily cleanup removes them. The newest advisory is always retained.
const AdvisoryRetention = 30 * 24 * time.Hour

// AdvisoryCleanupJob prunes stale oracle recommendations. Should be
// scheduled to run daily.
type AdvisoryCleanupJob struct {
	repo  *rebalancing.Repository
	clock domain.Clock
	log   zerolog.Logger
}

// NewAdvisoryCleanupJob creates the advisory cleanup job
func NewAdvisoryCleanupJob(repo *rebalancing.Repository, clock domain.Clock, log zerolog.Logger) *AdvisoryCleanupJob {
	return &AdvisoryCleanupJob{
		repo:  repo,
		clock: clock,
		log:   log.With().Str("job", "advisory_cleanup").Logger(),
	}
}

// Name returns the job name
func (j *AdvisoryCleanupJob) Name() string {
	return "advisory-cleanup"
}

// Run deletes advisories older than the retention window
func (j *AdvisoryCleanupJob) Run() error {
	cutoff := j.clock.Now() - int64(AdvisoryRetention/time.Second)
	deleted, err := j.repo.PruneRecommendations(cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Msg("Pruned stale oracle recommendations")
	}
	return nil
}
