package referral

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SIMPLYBOYS/sage_mining/internal/db"
	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
	"github.com/SIMPLYBOYS/sage_mining/internal/notify"
	"github.com/SIMPLYBOYS/sage_mining/pkg/logger"
)

// Store is the persistence the referral ledger needs.
type Store interface {
	db.ReferralStore
	GetUserByID(ctx context.Context, id string) (*db.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*db.User, error)
}

type Service struct {
	store    Store
	notifier *notify.Notifier
	reward   int64
	now      func() time.Time
}

func NewService(store Store, notifier *notify.Notifier, reward int64) *Service {
	return &Service{store: store, notifier: notifier, reward: reward, now: time.Now}
}

// Summary is what a referrer sees about the people they invited.
type Summary struct {
	ReferralCode       string        `json:"referralCode"`
	Referrals          []db.Referral `json:"referrals"`
	TotalReferrals     int           `json:"totalReferrals"`
	CompletedReferrals int           `json:"completedReferrals"`
	RewardsEarned      int64         `json:"rewardsEarned"`
}

// Register records a pending referral of referred by the owner of code.
// Unknown codes are ignored and yield nil, nil.
func (s *Service) Register(ctx context.Context, code string, referred *db.User) (*db.Referral, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	referrer, err := s.store.GetUserByReferralCode(ctx, code)
	if _, ok := err.(*errors.NotFoundError); ok {
		logger.Info("Ignoring unknown referral code %s for %s", code, referred.Email)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if referrer.ID == referred.ID {
		return nil, errors.Validation("Users cannot refer themselves")
	}

	r := &db.Referral{
		ReferrerID:    referrer.ID,
		ReferrerEmail: referrer.Email,
		ReferredEmail: referred.Email,
		ReferredName:  referred.FullName,
		Status:        db.ReferralPending,
		RewardAmount:  s.reward,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateReferral(ctx, r); err != nil {
		return nil, err
	}
	logger.Info("Referral registered: %s referred %s", referrer.Email, referred.Email)
	return r, nil
}

// SettleOnFirstCompletion pays the referrer of user, if any referral is still
// pending. Calling it again after settlement does nothing.
func (s *Service) SettleOnFirstCompletion(ctx context.Context, user *db.User) (*db.Referral, error) {
	r, err := s.store.SettleReferral(ctx, user.Email, s.now().UTC())
	if err != nil || r == nil {
		return nil, err
	}
	logger.Info("Referral settled: %s earned %d ST for %s", r.ReferrerEmail, r.RewardAmount, r.ReferredEmail)

	msg := fmt.Sprintf("Your referred user %s completed their first task. You earned %d ST!", r.ReferredName, r.RewardAmount)
	if _, err := s.notifier.Notify(ctx, r.ReferrerID, db.NotificationReferral, "Referral Reward Earned", msg); err != nil {
		logger.Warn("Failed to notify referrer %s: %v", r.ReferrerID, err)
	}
	if referrer, err := s.store.GetUserByID(ctx, r.ReferrerID); err == nil {
		s.notifier.PushBalance(referrer.ID, referrer.TokenBalance, "referral")
	}
	return r, nil
}

func (s *Service) ListForReferrer(ctx context.Context, userID string) (*Summary, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	referrals, err := s.store.ListReferralsByReferrer(ctx, userID)
	if err != nil {
		return nil, err
	}
	if referrals == nil {
		referrals = []db.Referral{}
	}

	summary := &Summary{ReferralCode: user.ReferralCode, Referrals: referrals, TotalReferrals: len(referrals)}
	for _, r := range referrals {
		if r.Status == db.ReferralCompleted {
			summary.CompletedReferrals++
			summary.RewardsEarned += r.RewardAmount
		}
	}
	return summary, nil
}
