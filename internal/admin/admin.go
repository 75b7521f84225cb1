package admin

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/SIMPLYBOYS/sage_mining/internal/auth"
	"github.com/SIMPLYBOYS/sage_mining/internal/db"
	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
	"github.com/SIMPLYBOYS/sage_mining/internal/notify"
	"github.com/SIMPLYBOYS/sage_mining/internal/settings"
	"github.com/SIMPLYBOYS/sage_mining/pkg/logger"
)

var ErrInvalidPassword = &errors.UnauthorizedError{ErrCode: "INVALID_CREDENTIALS", Message: "Invalid admin password"}

type Store interface {
	db.StatsStore
	ListUsers(ctx context.Context) ([]db.User, error)
	SetUserBalance(ctx context.Context, id string, balance int64) (*db.User, error)
}

type Service struct {
	store        Store
	auth         *auth.Manager
	passwordHash string
	settings     *settings.Service
	notifier     *notify.Notifier
}

// NewService hashes the configured admin password once so logins compare
// against a bcrypt hash only.
func NewService(store Store, am *auth.Manager, password string, settings *settings.Service, notifier *notify.Notifier) (*Service, error) {
	hash, err := am.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}
	return &Service{store: store, auth: am, passwordHash: hash, settings: settings, notifier: notifier}, nil
}

// Login exchanges the admin password for an admin token.
func (s *Service) Login(password string) (string, error) {
	if password == "" {
		return "", errors.Validation("Password is required")
	}
	if s.auth.ComparePassword(s.passwordHash, password) != nil {
		logger.Warn("Rejected admin login")
		return "", ErrInvalidPassword
	}
	return s.auth.GenerateToken(auth.AdminSubject, auth.RoleAdmin)
}

type Stats struct {
	db.Stats
	ExchangeRate    decimal.Decimal `json:"exchangeRate"`
	TotalBalanceUSD decimal.Decimal `json:"totalBalanceUSD"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	raw, err := s.store.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Stats:           *raw,
		ExchangeRate:    s.settings.Get().ExchangeRate,
		TotalBalanceUSD: s.settings.USDValue(raw.TotalTokenBalance),
	}, nil
}

func (s *Service) Users(ctx context.Context) ([]db.User, error) {
	users, err := s.store.ListUsers(ctx)
	if users == nil && err == nil {
		users = []db.User{}
	}
	return users, err
}

// SetBalance overwrites a user's balance and tells them about it.
func (s *Service) SetBalance(ctx context.Context, userID string, balance int64) (*db.User, error) {
	if balance < 0 {
		return nil, errors.Validation("Valid new balance is required")
	}
	user, err := s.store.SetUserBalance(ctx, userID, balance)
	if err != nil {
		return nil, err
	}
	logger.Info("Admin set balance of %s to %d ST", user.Email, balance)

	message := fmt.Sprintf("Your token balance has been updated to %d ST by an administrator.", balance)
	if _, err := s.notifier.Notify(ctx, user.ID, db.NotificationAdmin, "Balance Updated", message); err != nil {
		logger.Error("Failed to notify %s of balance change: %v", user.Email, err)
	}
	s.notifier.PushBalance(user.ID, balance, "admin_adjustment")
	return user, nil
}

// Message is an admin notification for one user, or everyone when UserID is empty.
type Message struct {
	UserID  string `json:"userId"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Send delivers m and returns how many users received it.
func (s *Service) Send(ctx context.Context, m Message) (int64, error) {
	if m.Type == "" {
		m.Type = db.NotificationAdmin
	}
	if m.UserID == "" {
		return s.notifier.NotifyAll(ctx, m.Type, m.Title, m.Message)
	}
	if _, err := s.notifier.Notify(ctx, m.UserID, m.Type, m.Title, m.Message); err != nil {
		return 0, err
	}
	return 1, nil
}
