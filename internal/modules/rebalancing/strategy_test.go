package rebalancing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebymuri/DeFiYield/internal/domain"
)

func testTargets() map[int64]AllocationTarget {
	return map[int64]AllocationTarget{
		1: {PoolID: 1, TargetBps: 6000, MinBps: 4000, MaxBps: 8000},
		2: {PoolID: 2, TargetBps: 3000, MinBps: 1000, MaxBps: 5000},
		3: {PoolID: 3, TargetBps: 1000, MinBps: 0, MaxBps: 2000},
	}
}

func TestWeightVector_Moderate(t *testing.T) {
	weights, err := WeightVector(StrategyModerate, testTargets(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 6000, 2: 3000, 3: 1000}, weights)
}

func TestWeightVector_ConservativeLeansTowardMinimum(t *testing.T) {
	weights, err := WeightVector(StrategyConservative, testTargets(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 5000, 2: 2000, 3: 500}, weights)
}

func TestWeightVector_AggressiveCapsAtMaximum(t *testing.T) {
	targets := map[int64]AllocationTarget{
		1: {PoolID: 1, TargetBps: 4000, MinBps: 2000, MaxBps: 6000},
		// target already at max: halfway toward max must not exceed it
		2: {PoolID: 2, TargetBps: 3000, MinBps: 1000, MaxBps: 3000},
	}
	weights, err := WeightVector(StrategyAggressive, targets, nil)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 5000, 2: 3000}, weights)
}

func TestWeightVector_AIDrivenWithoutAdvisoryFallsBackToTargets(t *testing.T) {
	weights, err := WeightVector(StrategyAIDriven, testTargets(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 6000, 2: 3000, 3: 1000}, weights)
}

func TestWeightVector_AIDrivenBlendsByConfidence(t *testing.T) {
	targets := map[int64]AllocationTarget{
		1: {PoolID: 1, TargetBps: 6000, MinBps: 0, MaxBps: 10000},
		2: {PoolID: 2, TargetBps: 4000, MinBps: 0, MaxBps: 10000},
	}
	advisory := &OracleRecommendation{
		Allocations:   map[int64]int64{1: 2000, 2: 8000},
		ConfidenceBps: 5000,
	}

	// 50% confidence: midpoint between target and recommendation
	weights, err := WeightVector(StrategyAIDriven, targets, advisory)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 4000, 2: 6000}, weights)

	// Full confidence: recommendation applies as-is
	advisory.ConfidenceBps = 10000
	weights, err = WeightVector(StrategyAIDriven, targets, advisory)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 2000, 2: 8000}, weights)

	// Zero confidence: advisory is ignored
	advisory.ConfidenceBps = 0
	weights, err = WeightVector(StrategyAIDriven, targets, advisory)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 6000, 2: 4000}, weights)
}

func TestWeightVector_AIDrivenClampsToConfiguredBounds(t *testing.T) {
	targets := map[int64]AllocationTarget{
		1: {PoolID: 1, TargetBps: 5000, MinBps: 4000, MaxBps: 6000},
		2: {PoolID: 2, TargetBps: 4000, MinBps: 3000, MaxBps: 4000},
	}
	advisory := &OracleRecommendation{
		Allocations:   map[int64]int64{1: 0, 2: 10000},
		ConfidenceBps: 10000,
	}
	weights, err := WeightVector(StrategyAIDriven, targets, advisory)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 4000, 2: 4000}, weights)
}

func TestWeightVector_RejectsSumOverOneHundredPercent(t *testing.T) {
	targets := map[int64]AllocationTarget{
		1: {PoolID: 1, TargetBps: 6000, MinBps: 0, MaxBps: 10000},
		2: {PoolID: 2, TargetBps: 5000, MinBps: 0, MaxBps: 10000},
	}
	_, err := WeightVector(StrategyModerate, targets, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)
}

func TestWeightVector_UnknownStrategy(t *testing.T) {
	_, err := WeightVector(Strategy("yolo"), testTargets(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)
}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights map[int64]int64
		wantErr bool
	}{
		{name: "exact full allocation", weights: map[int64]int64{1: 6000, 2: 3000, 3: 1000}},
		{name: "partial allocation", weights: map[int64]int64{1: 4000, 2: 3000}},
		{name: "empty", weights: map[int64]int64{}},
		{name: "sum over limit", weights: map[int64]int64{1: 6000, 2: 5000, 3: 1000}, wantErr: true},
		{name: "negative weight", weights: map[int64]int64{1: -1, 2: 5000}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWeights(tt.weights)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidAllocation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	for _, name := range []string{"conservative", "moderate", "aggressive", "ai_driven"} {
		parsed, err := ParseStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, Strategy(name), parsed)
	}

	_, err := ParseStrategy("turbo")
	assert.Error(t, err)
}
