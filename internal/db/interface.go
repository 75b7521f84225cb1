package db

import (
	"context"
	"time"
)

type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUserProfile(ctx context.Context, id, fullName, walletID string) (*User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	SetUserBalance(ctx context.Context, id string, balance int64) (*User, error)
	// DeleteUser removes the user and every per-user record keyed to it.
	DeleteUser(ctx context.Context, id string) error
}

type TaskStore interface {
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context) ([]Task, error)
	UpdateTask(ctx context.Context, task *Task) error
	DeleteTask(ctx context.Context, id string) error
}

type SessionStore interface {
	// CreateSession fails with ErrSessionAlreadyActive when the user already
	// has an active session for the task.
	CreateSession(ctx context.Context, session *MiningSession) error
	GetSession(ctx context.Context, id string) (*MiningSession, error)
	ListUserSessions(ctx context.Context, userID string, activeOnly bool) ([]MiningSession, error)
	// BoostSession persists session.Reward, session.BoostCount and session.EndTime
	// only if the stored boost count still equals expectedBoosts.
	BoostSession(ctx context.Context, session *MiningSession, expectedBoosts int) error
	// CompleteSession deactivates the session and credits its reward in one
	// transaction. A session already completed yields AlreadyCompleted.
	CompleteSession(ctx context.Context, sessionID, userID string, now time.Time) (*Completion, error)
	// CompleteTask credits a one-shot task at most once per user.
	CompleteTask(ctx context.Context, taskID, userID string) (*Completion, error)
	ExpireStaleSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

type ReferralStore interface {
	CreateReferral(ctx context.Context, referral *Referral) error
	// SettleReferral completes the pending referral for referredEmail and credits
	// the referrer. It returns nil, nil when nothing is pending.
	SettleReferral(ctx context.Context, referredEmail string, now time.Time) (*Referral, error)
	ListReferralsByReferrer(ctx context.Context, referrerID string) ([]Referral, error)
}

type WithdrawalStore interface {
	// CreateWithdrawal debits the user and records the pending withdrawal,
	// returning the balance left after the debit.
	CreateWithdrawal(ctx context.Context, w *Withdrawal) (int64, error)
	GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error)
	ListWithdrawalsByUser(ctx context.Context, userID string) ([]Withdrawal, error)
	ListWithdrawals(ctx context.Context, status string) ([]Withdrawal, error)
	// ProcessWithdrawal moves a pending withdrawal to status. Rejections refund the amount.
	ProcessWithdrawal(ctx context.Context, id, status, reason string, now time.Time) (*Withdrawal, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	// CreateNotificationForAll copies template to every current user and
	// returns the stored copies.
	CreateNotificationForAll(ctx context.Context, template Notification) ([]Notification, error)
	ListNotifications(ctx context.Context, userID string) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error
}

type AnnouncementStore interface {
	CreateAnnouncement(ctx context.Context, a *Announcement) error
	GetAnnouncement(ctx context.Context, id string) (*Announcement, error)
	ListAnnouncements(ctx context.Context, activeOnly bool) ([]Announcement, error)
	UpdateAnnouncement(ctx context.Context, a *Announcement) error
	DeleteAnnouncement(ctx context.Context, id string) error
}

type SettingsStore interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
	SaveSettings(ctx context.Context, values map[string]string) error
}

type ResetStore interface {
	CreatePasswordReset(ctx context.Context, reset *PasswordReset) error
	// ConsumePasswordReset deletes the token and returns its user if it had not expired.
	ConsumePasswordReset(ctx context.Context, token string, now time.Time) (string, error)
}

type StatsStore interface {
	GetStats(ctx context.Context) (*Stats, error)
}

// DBService interface defines the methods we need from the database
type DBService interface {
	UserStore
	TaskStore
	SessionStore
	ReferralStore
	WithdrawalStore
	NotificationStore
	AnnouncementStore
	SettingsStore
	ResetStore
	StatsStore
	Close() error
}
