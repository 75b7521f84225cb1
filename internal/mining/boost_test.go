package mining

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SIMPLYBOYS/sage_mining/internal/config"
	"github.com/SIMPLYBOYS/sage_mining/internal/db"
	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
)

func TestSteppedReward(t *testing.T) {
	testCases := []struct {
		base int64
		n    int
		want int64
	}{
		{500, 0, 500},
		{500, 1, 550},
		{500, 10, 1000},
		{500, 20, 1500},
		{333, 1, 366},
		{333, 7, 566},
		{1, 3, 1},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, steppedReward(tc.base, 10, tc.n), "base %d, %d boosts", tc.base, tc.n)
	}
}

func TestSteppedBoostCap(t *testing.T) {
	p := SteppedBoost{Cap: 20, StepPercent: 10}
	now := time.Now()
	s := &db.MiningSession{BaseReward: 500, Reward: 500, EndTime: now.Add(time.Minute), IsActive: true}

	for i := 1; i <= 20; i++ {
		require.NoError(t, p.Apply(s, now))
		assert.Equal(t, i, s.BoostCount)
		assert.Equal(t, steppedReward(500, 10, i), s.Reward)
	}
	assert.Equal(t, errors.ErrBoostCapReached, p.Apply(s, now))
	assert.Equal(t, 20, s.BoostCount)
	assert.Equal(t, int64(1500), s.Reward)
}

func TestSteppedBoostTimeCut(t *testing.T) {
	p := SteppedBoost{Cap: 20, StepPercent: 10, TimeCutPercent: 50}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &db.MiningSession{BaseReward: 100, EndTime: now.Add(4 * time.Minute)}

	require.NoError(t, p.Apply(s, now))
	assert.Equal(t, now.Add(2*time.Minute), s.EndTime)

	// Nothing left to cut once the countdown is over.
	later := now.Add(5 * time.Minute)
	require.NoError(t, p.Apply(s, later))
	assert.Equal(t, now.Add(2*time.Minute), s.EndTime)
}

func TestSingleBoost(t *testing.T) {
	var p SingleBoost
	s := &db.MiningSession{BaseReward: 333, Reward: 333}

	require.NoError(t, p.Apply(s, time.Now()))
	assert.Equal(t, int64(499), s.Reward)
	assert.Equal(t, 1, s.BoostCount)
	assert.Equal(t, errors.ErrAlreadyBoosted, p.Apply(s, time.Now()))
}

func TestPolicyFromConfig(t *testing.T) {
	assert.Equal(t, SingleBoost{}, PolicyFromConfig(&config.Config{BoostMode: config.BoostSingle}))
	assert.Equal(t,
		SteppedBoost{Cap: 5, StepPercent: 20, TimeCutPercent: 10},
		PolicyFromConfig(&config.Config{BoostMode: config.BoostStepped, BoostCap: 5, BoostStepPercent: 20, BoostTimeCutPercent: 10}))
}
