package mining

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SIMPLYBOYS/sage_mining/internal/db"
	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
	"github.com/SIMPLYBOYS/sage_mining/internal/notify"
	"github.com/SIMPLYBOYS/sage_mining/internal/referral"
	"github.com/SIMPLYBOYS/sage_mining/pkg/logger"
)

const defaultTimeframe = 4 * time.Minute

// Store is what the engine reads and writes.
type Store interface {
	db.SessionStore
	GetTask(ctx context.Context, id string) (*db.Task, error)
	GetUserByID(ctx context.Context, id string) (*db.User, error)
}

// Engine runs the mining session lifecycle: start, boost, complete.
type Engine struct {
	store      Store
	policy     BoostPolicy
	notifier   *notify.Notifier
	referrals  *referral.Service
	staleGrace time.Duration
	now        func() time.Time
}

func NewEngine(store Store, policy BoostPolicy, notifier *notify.Notifier, referrals *referral.Service, staleGrace time.Duration) *Engine {
	return &Engine{
		store:      store,
		policy:     policy,
		notifier:   notifier,
		referrals:  referrals,
		staleGrace: staleGrace,
		now:        time.Now,
	}
}

// SessionView is a session plus the seconds left on its countdown.
type SessionView struct {
	db.MiningSession
	TimeRemaining int64 `json:"timeRemaining"`
}

func (e *Engine) view(s *db.MiningSession) *SessionView {
	v := &SessionView{MiningSession: *s}
	if s.IsActive {
		if left := s.EndTime.Sub(e.now()); left > 0 {
			v.TimeRemaining = int64(left.Round(time.Second) / time.Second)
		}
	}
	return v
}

func (e *Engine) Start(ctx context.Context, userID, taskID string) (*SessionView, error) {
	if _, err := e.store.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.IsMining() {
		return nil, errors.ErrNotMiningTask
	}

	duration := time.Duration(task.Timeframe) * time.Minute
	if duration <= 0 {
		duration = defaultTimeframe
	}
	now := e.now().UTC()
	session := &db.MiningSession{
		ID:         uuid.NewString(),
		UserID:     userID,
		TaskID:     task.ID,
		StartTime:  now,
		EndTime:    now.Add(duration),
		BaseReward: task.Reward,
		Reward:     task.Reward,
		IsActive:   true,
		Status:     db.SessionStatusActive,
	}
	if err := e.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	logger.Info("Mining session %s started: user %s, task %s, ends %s", session.ID, userID, task.ID, session.EndTime.Format(time.RFC3339))
	return e.view(session), nil
}

// owned loads a session and hides it from anyone but its owner.
func (e *Engine) owned(ctx context.Context, userID, sessionID string) (*db.MiningSession, error) {
	s, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, &errors.NotFoundError{Resource: "session", Identifier: sessionID}
	}
	return s, nil
}

func (e *Engine) Boost(ctx context.Context, userID, sessionID string) (*SessionView, error) {
	s, err := e.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.IsActive {
		return nil, errors.ErrSessionInactive
	}

	expected := s.BoostCount
	if err := e.policy.Apply(s, e.now().UTC()); err != nil {
		return nil, err
	}
	if err := e.store.BoostSession(ctx, s, expected); err != nil {
		return nil, err
	}
	logger.Info("Mining session %s boosted (%d): reward %d ST", s.ID, s.BoostCount, s.Reward)
	return e.view(s), nil
}

// Complete credits a finished session. Completing it again reports the
// earlier outcome with AlreadyCompleted set and credits nothing.
func (e *Engine) Complete(ctx context.Context, userID, sessionID string) (*db.Completion, error) {
	c, err := e.store.CompleteSession(ctx, sessionID, userID, e.now().UTC())
	if err != nil {
		return nil, err
	}
	if c.AlreadyCompleted {
		return c, nil
	}
	logger.Info("Mining session %s completed: user %s credited %d ST", sessionID, userID, c.Reward)
	e.afterCredit(ctx, userID, c)
	return c, nil
}

// CompleteTask credits a one-shot task, at most once per user.
func (e *Engine) CompleteTask(ctx context.Context, userID, taskID string) (*db.Completion, error) {
	c, err := e.store.CompleteTask(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	logger.Info("Task %s completed: user %s credited %d ST", taskID, userID, c.Reward)
	e.afterCredit(ctx, userID, c)
	return c, nil
}

// afterCredit runs the best-effort side effects of a credit. Failures are
// logged and never undo the credit.
func (e *Engine) afterCredit(ctx context.Context, userID string, c *db.Completion) {
	title := c.TaskID
	if task, err := e.store.GetTask(ctx, c.TaskID); err == nil {
		title = task.Title
	}
	message := fmt.Sprintf("You earned %d ST for completing %q.", c.Reward, title)
	if _, err := e.notifier.Notify(ctx, userID, db.NotificationTask, "Task Completed", message); err != nil {
		logger.Error("Failed to notify user %s of completion: %v", userID, err)
	}
	e.notifier.PushBalance(userID, c.NewBalance, "task_completed")

	if !c.FirstCompletion || e.referrals == nil {
		return
	}
	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		logger.Error("Referral settlement skipped for %s: %v", userID, err)
		return
	}
	if _, err := e.referrals.SettleOnFirstCompletion(ctx, user); err != nil {
		logger.Error("Referral settlement failed for %s: %v", user.Email, err)
	}
}

func (e *Engine) Session(ctx context.Context, userID, sessionID string) (*SessionView, error) {
	s, err := e.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return e.view(s), nil
}

// Sessions lists the user's sessions, newest first.
func (e *Engine) Sessions(ctx context.Context, userID string, activeOnly bool) ([]*SessionView, error) {
	sessions, err := e.store.ListUserSessions(ctx, userID, activeOnly)
	if err != nil {
		return nil, err
	}
	views := make([]*SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, e.view(&sessions[i]))
	}
	return views, nil
}

func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]*SessionView, error) {
	return e.Sessions(ctx, userID, true)
}

// ExpireStale retires sessions still active staleGrace after their end time.
func (e *Engine) ExpireStale(ctx context.Context) (int64, error) {
	cutoff := e.now().UTC().Add(-e.staleGrace)
	n, err := e.store.ExpireStaleSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("Expired %d stale mining sessions", n)
	}
	return n, nil
}

// RunJanitor calls ExpireStale every interval until ctx is done.
func (e *Engine) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ExpireStale(ctx); err != nil {
				logger.Error("Stale session sweep failed: %v", err)
			}
		}
	}
}
