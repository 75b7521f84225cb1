package withdrawal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SIMPLYBOYS/sage_mining/internal/db"
	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
	"github.com/SIMPLYBOYS/sage_mining/internal/mailer"
	"github.com/SIMPLYBOYS/sage_mining/internal/notify"
	"github.com/SIMPLYBOYS/sage_mining/internal/settings"
	"github.com/SIMPLYBOYS/sage_mining/pkg/logger"
)

type Store interface {
	db.WithdrawalStore
	GetUserByID(ctx context.Context, id string) (*db.User, error)
}

// Queue takes withdrawal requests from users and lets an admin settle them.
type Queue struct {
	store    Store
	settings *settings.Service
	notifier *notify.Notifier
	mail     mailer.Mailer
	now      func() time.Time
}

func NewQueue(store Store, settings *settings.Service, notifier *notify.Notifier, mail mailer.Mailer) *Queue {
	if mail == nil {
		mail = mailer.LogMailer{}
	}
	return &Queue{store: store, settings: settings, notifier: notifier, mail: mail, now: time.Now}
}

// Request debits amount from the user right away and queues it for approval.
func (q *Queue) Request(ctx context.Context, userID string, amount int64) (*db.Withdrawal, int64, error) {
	if amount <= 0 {
		return nil, 0, errors.ErrInvalidAmount
	}
	if minimum := q.settings.Get().MinWithdrawal; amount < minimum {
		return nil, 0, errors.BelowMinimum(minimum)
	}
	user, err := q.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	w := &db.Withdrawal{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Email:       user.Email,
		Amount:      amount,
		WalletID:    user.WalletID,
		Status:      db.WithdrawalPending,
		RequestedAt: q.now().UTC(),
	}
	balance, err := q.store.CreateWithdrawal(ctx, w)
	if err != nil {
		return nil, balance, err
	}
	logger.Info("Withdrawal %s requested: %s, %d ST to %s", w.ID, user.Email, amount, w.WalletID)

	message := fmt.Sprintf("Your withdrawal request for %d ST has been submitted and is pending approval.", amount)
	if _, err := q.notifier.Notify(ctx, user.ID, db.NotificationWithdrawal, "Withdrawal Request Submitted", message); err != nil {
		logger.Error("Failed to notify %s of withdrawal %s: %v", user.Email, w.ID, err)
	}
	q.notifier.PushBalance(user.ID, balance, "withdrawal_requested")
	return w, balance, nil
}

// Approve marks a pending withdrawal completed.
func (q *Queue) Approve(ctx context.Context, id string) (*db.Withdrawal, error) {
	w, err := q.store.ProcessWithdrawal(ctx, id, db.WithdrawalCompleted, "", q.now().UTC())
	if err != nil {
		return nil, err
	}
	logger.Info("Withdrawal %s approved: %d ST to %s", w.ID, w.Amount, w.WalletID)

	message := fmt.Sprintf("Your withdrawal request of %d ST has been approved and will be sent to your wallet shortly.", w.Amount)
	q.tell(ctx, w, "Withdrawal Approved", message)
	if err := q.mail.Send(ctx, w.Email, "Withdrawal Approved", message); err != nil {
		logger.Error("Failed to mail approval of withdrawal %s: %v", w.ID, err)
	}
	return w, nil
}

// Reject marks a pending withdrawal rejected and refunds its amount.
func (q *Queue) Reject(ctx context.Context, id, reason string) (*db.Withdrawal, error) {
	reason = strings.TrimSpace(reason)
	w, err := q.store.ProcessWithdrawal(ctx, id, db.WithdrawalRejected, reason, q.now().UTC())
	if err != nil {
		return nil, err
	}
	logger.Info("Withdrawal %s rejected, %d ST refunded", w.ID, w.Amount)

	message := fmt.Sprintf("Your withdrawal request of %d ST was rejected and the amount has been returned to your balance.", w.Amount)
	if reason != "" {
		message += " Reason: " + reason
	}
	q.tell(ctx, w, "Withdrawal Rejected", message)
	if w.UserID != "" {
		if u, err := q.store.GetUserByID(ctx, w.UserID); err == nil {
			q.notifier.PushBalance(u.ID, u.TokenBalance, "withdrawal_rejected")
		}
	}
	return w, nil
}

// Process dispatches an admin decision given as the target status.
func (q *Queue) Process(ctx context.Context, id, status, reason string) (*db.Withdrawal, error) {
	switch status {
	case db.WithdrawalCompleted, "approved":
		return q.Approve(ctx, id)
	case db.WithdrawalRejected:
		return q.Reject(ctx, id, reason)
	}
	return nil, errors.Validation("Status must be %q or %q", db.WithdrawalCompleted, db.WithdrawalRejected)
}

// tell notifies the owner of w, if the account still exists.
func (q *Queue) tell(ctx context.Context, w *db.Withdrawal, title, message string) {
	if w.UserID == "" {
		return
	}
	if _, err := q.notifier.Notify(ctx, w.UserID, db.NotificationWithdrawal, title, message); err != nil {
		logger.Error("Failed to notify owner of withdrawal %s: %v", w.ID, err)
	}
}

func (q *Queue) ListForUser(ctx context.Context, userID string) ([]db.Withdrawal, error) {
	list, err := q.store.ListWithdrawalsByUser(ctx, userID)
	if list == nil && err == nil {
		list = []db.Withdrawal{}
	}
	return list, err
}

// List returns every withdrawal, or only those in status when it is set.
func (q *Queue) List(ctx context.Context, status string) ([]db.Withdrawal, error) {
	switch status {
	case "", db.WithdrawalPending, db.WithdrawalCompleted, db.WithdrawalRejected:
	default:
		return nil, errors.Validation("Unknown withdrawal status %q", status)
	}
	list, err := q.store.ListWithdrawals(ctx, status)
	if list == nil && err == nil {
		list = []db.Withdrawal{}
	}
	return list, err
}
