package mining

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/SIMPLYBOYS/sage_mining/internal/config"
	"github.com/SIMPLYBOYS/sage_mining/internal/db"
	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
)

// BoostPolicy decides what one more boost does to a session.
type BoostPolicy interface {
	// Apply bumps s.BoostCount and rewrites s.Reward and s.EndTime, or
	// returns the error that forbids the boost.
	Apply(s *db.MiningSession, now time.Time) error
}

// SteppedBoost adds StepPercent of the base reward per boost, up to Cap boosts.
// TimeCutPercent shortens the remaining countdown by that share on every boost.
type SteppedBoost struct {
	Cap            int
	StepPercent    int
	TimeCutPercent int
}

func (p SteppedBoost) Apply(s *db.MiningSession, now time.Time) error {
	if s.BoostCount >= p.Cap {
		return errors.ErrBoostCapReached
	}
	s.BoostCount++
	s.Reward = steppedReward(s.BaseReward, p.StepPercent, s.BoostCount)
	if p.TimeCutPercent > 0 {
		s.EndTime = cutRemaining(s.EndTime, now, p.TimeCutPercent)
	}
	return nil
}

// steppedReward is floor(base * (1 + step% * n)).
func steppedReward(base int64, stepPercent, n int) int64 {
	factor := decimal.NewFromInt(1).Add(decimal.New(int64(stepPercent*n), -2))
	return decimal.NewFromInt(base).Mul(factor).Floor().IntPart()
}

func cutRemaining(end, now time.Time, percent int) time.Time {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return end
	}
	kept := remaining * time.Duration(100-percent) / 100
	return now.Add(kept)
}

// SingleBoost allows exactly one boost worth half the base reward.
type SingleBoost struct{}

var singleFactor = decimal.NewFromFloat(1.5)

func (SingleBoost) Apply(s *db.MiningSession, _ time.Time) error {
	if s.BoostCount > 0 {
		return errors.ErrAlreadyBoosted
	}
	s.BoostCount = 1
	s.Reward = decimal.NewFromInt(s.BaseReward).Mul(singleFactor).Floor().IntPart()
	return nil
}

// PolicyFromConfig picks the boost policy configured for the process.
func PolicyFromConfig(cfg *config.Config) BoostPolicy {
	if cfg.BoostMode == config.BoostSingle {
		return SingleBoost{}
	}
	return SteppedBoost{Cap: cfg.BoostCap, StepPercent: cfg.BoostStepPercent, TimeCutPercent: cfg.BoostTimeCutPercent}
}
