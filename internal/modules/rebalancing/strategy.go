package rebalancing

import (
	"fmt"

	"github.com/codebymuri/DeFiYield/internal/domain"
	"github.com/codebymuri/DeFiYield/internal/safemath"
)

// WeightVector maps the active strategy to a deterministic per-pool
// basis-point split over the configured allocation targets.
//
// Each variant reshapes the same target vector rather than taking a separate
// code path:
//   - conservative leans every pool halfway toward its configured minimum
//   - moderate uses the configured targets as-is
//   - aggressive leans halfway toward the maximum, capped at it
//   - ai_driven blends the targets with the latest oracle advisory, weighted
//     by the advisory's confidence, then clamps to [min, max]; with no
//     advisory on file it degrades to moderate
//
// The result is re-validated against the basis-point sum invariant before it
// is returned; a vector summing past 100% fails with ErrInvalidAllocation.
func WeightVector(strategy Strategy, targets map[int64]AllocationTarget, advisory *OracleRecommendation) (map[int64]int64, error) {
	weights := make(map[int64]int64, len(targets))

	for poolID, target := range targets {
		var w int64
		switch strategy {
		case StrategyConservative:
			w = (target.TargetBps + target.MinBps) / 2

		case StrategyModerate:
			w = target.TargetBps

		case StrategyAggressive:
			w = (target.TargetBps + target.MaxBps) / 2
			if w > target.MaxBps {
				w = target.MaxBps
			}

		case StrategyAIDriven:
			w = target.TargetBps
			if advisory != nil {
				recommended, ok := advisory.Allocations[poolID]
				if ok {
					blended, err := blend(target.TargetBps, recommended, advisory.ConfidenceBps)
					if err != nil {
						return nil, fmt.Errorf("failed to blend advisory for pool %d: %w", poolID, err)
					}
					w = blended
				}
			}
			if w < target.MinBps {
				w = target.MinBps
			}
			if w > target.MaxBps {
				w = target.MaxBps
			}

		default:
			return nil, fmt.Errorf("unknown strategy %q: %w", strategy, domain.ErrInvalidAllocation)
		}

		weights[poolID] = w
	}

	if err := ValidateWeights(weights); err != nil {
		return nil, err
	}

	return weights, nil
}

// blend mixes target and recommended by confidence (in bps of the
// recommendation's weight): result = ((10000-c)*target + c*recommended)/10000
func blend(target, recommended, confidenceBps int64) (int64, error) {
	if confidenceBps < 0 || confidenceBps > TotalBps {
		return 0, domain.ErrInvalidAllocation
	}
	targetPart, err := safemath.Mul(TotalBps-confidenceBps, target)
	if err != nil {
		return 0, err
	}
	recPart, err := safemath.Mul(confidenceBps, recommended)
	if err != nil {
		return 0, err
	}
	sum, err := safemath.Add(targetPart, recPart)
	if err != nil {
		return 0, err
	}
	return sum / TotalBps, nil
}

// ValidateWeights enforces the basis-point sum invariant: every weight is
// non-negative and the total does not exceed 100%
func ValidateWeights(weights map[int64]int64) error {
	var sum int64
	for poolID, w := range weights {
		if w < 0 {
			return fmt.Errorf("negative weight for pool %d: %w", poolID, domain.ErrInvalidAllocation)
		}
		var err error
		sum, err = safemath.Add(sum, w)
		if err != nil {
			return fmt.Errorf("weight sum overflow: %w", domain.ErrInvalidAllocation)
		}
	}
	if sum > TotalBps {
		return fmt.Errorf("weights sum to %d bps: %w", sum, domain.ErrInvalidAllocation)
	}
	return nil
}
