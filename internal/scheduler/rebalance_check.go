package scheduler

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/codebymuri/DeFiYield/internal/domain"
	"github.com/codebymuri/DeFiYield/internal/modules/rebalancing"
)

// RebalanceCheckJob periodically asks the controller whether a rebalance is
// needed and, if so, executes one as the configured agent account. All
// gating (pause, cooldown, drift threshold) lives in the controller; the job
// only supplies the clock tick.
type RebalanceCheckJob struct {
	ctrl  *rebalancing.Service
	agent string
	log   zerolog.Logger
}

// NewRebalanceCheckJob creates the scheduled rebalancing check
func NewRebalanceCheckJob(ctrl *rebalancing.Service, agent string, log zerolog.Logger) *RebalanceCheckJob {
	return &RebalanceCheckJob{
		ctrl:  ctrl,
		agent: agent,
		log:   log.With().Str("job", "rebalance_check").Logger(),
	}
}

// Name returns the job name
func (j *RebalanceCheckJob) Name() string {
	return "scheduled-rebalancing-check"
}

// Run checks drift and executes a rebalance when one is due
func (j *RebalanceCheckJob) Run() error {
	needed, err := j.ctrl.IsRebalancingNeeded()
	if err != nil {
		return err
	}
	if !needed {
		j.log.Debug().Msg("No rebalance needed")
		return nil
	}

	record, err := j.ctrl.ExecuteRebalancing(j.agent)
	if err != nil {
		// Another operator may have slipped in between the check and the
		// execution; the cooldown gate makes that a clean no-op, not a fault.
		if errors.Is(err, domain.ErrCooldownActive) {
			j.log.Debug().Msg("Cooldown became active between check and execution")
			return nil
		}
		return err
	}

	j.log.Info().
		Str("uuid", record.UUID).
		Int64("amount_moved", record.AmountMoved).
		Msg("Scheduled rebalance executed")
	return nil
}
