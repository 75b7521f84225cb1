package users

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SIMPLYBOYS/sage_mining/internal/auth"
	"github.com/SIMPLYBOYS/sage_mining/internal/db"
	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
	"github.com/SIMPLYBOYS/sage_mining/internal/mailer"
	"github.com/SIMPLYBOYS/sage_mining/internal/referral"
	"github.com/SIMPLYBOYS/sage_mining/pkg/logger"
	"github.com/SIMPLYBOYS/sage_mining/pkg/validation"
)

const (
	minSignupPassword = 8
	minResetPassword  = 6
	codeAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength        = 6
	codeAttempts      = 5
)

// Store is the persistence the account service needs.
type Store interface {
	db.UserStore
	db.ResetStore
}

type Service struct {
	store     Store
	auth      *auth.Manager
	referrals *referral.Service
	mail      mailer.Mailer
	resetTTL  time.Duration
	now       func() time.Time
}

func NewService(store Store, am *auth.Manager, referrals *referral.Service, mail mailer.Mailer, resetTTL time.Duration) *Service {
	if mail == nil {
		mail = mailer.LogMailer{}
	}
	return &Service{store: store, auth: am, referrals: referrals, mail: mail, resetTTL: resetTTL, now: time.Now}
}

type SignupInput struct {
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	WalletID     string `json:"walletId"`
	ReferralCode string `json:"referralCode"`
}

// Session is a signed-in user together with their bearer token.
type Session struct {
	User  *db.User `json:"user"`
	Token string   `json:"token"`
}

// referralCodeFor builds SAGE-<FIRSTNAME>-<6 random A-Z0-9>.
func referralCodeFor(fullName string) (string, error) {
	first := strings.ToUpper(strings.Fields(fullName)[0])
	suffix := make([]byte, codeLength)
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		suffix[i] = codeAlphabet[n.Int64()]
	}
	return fmt.Sprintf("SAGE-%s-%s", first, suffix), nil
}

func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" || strings.TrimSpace(in.WalletID) == "" {
		return nil, errors.Validation("All fields are required")
	}
	if len(in.Password) < minSignupPassword {
		return nil, errors.Validation("Password must be at least %d characters", minSignupPassword)
	}
	email, err := validation.NormalizeEmail(in.Email)
	if err != nil {
		return nil, errors.Validation("Invalid email address")
	}
	wallet, err := validation.ValidateAndNormalizeWallet(in.WalletID)
	if err != nil {
		return nil, errors.Validation("Invalid wallet address")
	}

	hash, err := s.auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &db.User{
		FullName:     in.FullName,
		Email:        email,
		PasswordHash: hash,
		WalletID:     wallet,
		JoinedAt:     s.now().UTC(),
	}
	for attempt := 0; ; attempt++ {
		user.ID = uuid.NewString()
		if user.ReferralCode, err = referralCodeFor(in.FullName); err != nil {
			return nil, fmt.Errorf("failed to generate referral code: %w", err)
		}
		err = s.store.CreateUser(ctx, user)
		if err != errors.ErrReferralCodeTaken || attempt == codeAttempts {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	logger.Info("User signed up: %s (%s)", user.Email, user.ID)

	if in.ReferralCode != "" && s.referrals != nil {
		if _, err := s.referrals.Register(ctx, in.ReferralCode, user); err != nil {
			logger.Warn("Referral %s for %s not recorded: %v", in.ReferralCode, user.Email, err)
		}
	}
	return s.issue(user)
}

func (s *Service) issue(user *db.User) (*Session, error) {
	token, err := s.auth.GenerateToken(user.ID, auth.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Session{User: user, Token: token}, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, errors.Validation("Email and password are required")
	}
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if _, ok := err.(*errors.NotFoundError); ok {
		return nil, errors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if s.auth.ComparePassword(user.PasswordHash, password) != nil {
		return nil, errors.ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *Service) Profile(ctx context.Context, id string) (*db.User, error) {
	return s.store.GetUserByID(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id, fullName, walletID string) (*db.User, error) {
	fullName, walletID = strings.TrimSpace(fullName), strings.TrimSpace(walletID)
	if fullName == "" && walletID == "" {
		return nil, errors.Validation("Nothing to update")
	}
	if walletID != "" {
		normalized, err := validation.ValidateAndNormalizeWallet(walletID)
		if err != nil {
			return nil, errors.Validation("Invalid wallet address")
		}
		walletID = normalized
	}
	return s.store.UpdateUserProfile(ctx, id, fullName, walletID)
}

func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	if current == "" || next == "" {
		return errors.Validation("Current password and new password are required")
	}
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if s.auth.ComparePassword(user.PasswordHash, current) != nil {
		return &errors.UnauthorizedError{ErrCode: "INVALID_CREDENTIALS", Message: "Current password is incorrect"}
	}
	if len(next) < minResetPassword {
		return errors.Validation("New password must be at least %d characters long", minResetPassword)
	}
	return s.setPassword(ctx, id, next)
}

func (s *Service) setPassword(ctx context.Context, id, password string) error {
	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.store.UpdateUserPassword(ctx, id, hash)
}

// ForgotPassword issues a single-use reset token, mails it and returns it.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", errors.Validation("Email is required")
	}
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", err
	}

	reset := &db.PasswordReset{Token: uuid.NewString(), UserID: user.ID, ExpiresAt: s.now().Add(s.resetTTL)}
	if err := s.store.CreatePasswordReset(ctx, reset); err != nil {
		return "", err
	}
	body := fmt.Sprintf("Use this code to reset your password: %s\nIt expires in %s.", reset.Token, s.resetTTL)
	if err := s.mail.Send(ctx, user.Email, "Password reset", body); err != nil {
		logger.Error("Failed to send password reset mail to %s: %v", user.Email, err)
	}
	return reset.Token, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, next string) error {
	if strings.TrimSpace(token) == "" || next == "" {
		return errors.Validation("Reset token and new password are required")
	}
	if len(next) < minResetPassword {
		return errors.Validation("Password must be at least %d characters long", minResetPassword)
	}
	userID, err := s.store.ConsumePasswordReset(ctx, token, s.now())
	if err != nil {
		return err
	}
	return s.setPassword(ctx, userID, next)
}

// DeleteAccount removes the user and everything keyed to them.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	logger.Info("Account deleted: %s", id)
	return nil
}
