package db

import (
	"time"
)

// Task types. Mining tasks run as timed sessions, every other type is one-shot.
const (
	TaskTypeMining  = "mining"
	TaskTypeSocial  = "social"
	TaskTypeYoutube = "youtube"
	TaskTypeArticle = "article"
	TaskTypeTwitter = "twitter"
	TaskTypeAdmob   = "admob"
)

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusExpired   = "expired"
)

const (
	WithdrawalPending   = "pending"
	WithdrawalCompleted = "completed"
	WithdrawalRejected  = "rejected"
)

const (
	ReferralPending   = "pending"
	ReferralCompleted = "completed"
)

const (
	NotificationTask       = "task"
	NotificationWithdrawal = "withdrawal"
	NotificationReferral   = "referral"
	NotificationAdmin      = "admin"
)

type User struct {
	ID             string    `json:"id"`
	FullName       string    `json:"fullName"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	WalletID       string    `json:"walletId"`
	TokenBalance   int64     `json:"tokenBalance"`
	TasksCompleted int       `json:"tasksCompleted"`
	TotalEarned    int64     `json:"totalEarned"`
	ReferralCode   string    `json:"referralCode"`
	JoinedAt       time.Time `json:"joinedDate"`
}

type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Reward      int64     `json:"reward"`
	Difficulty  string    `json:"difficulty"`
	Type        string    `json:"type"`
	Timeframe   int       `json:"timeframe,omitempty"` // minutes, mining only
	Link        string    `json:"link,omitempty"`      // social/youtube/article url or twitter handle
	CompletedBy []string  `json:"completedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IsMining reports whether the task runs as a timed session.
func (t *Task) IsMining() bool {
	return t.Type == TaskTypeMining
}

// CompletedByUser reports whether userID is in the completedBy list.
func (t *Task) CompletedByUser(userID string) bool {
	for _, id := range t.CompletedBy {
		if id == userID {
			return true
		}
	}
	return false
}

type MiningSession struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	TaskID     string    `json:"taskId"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	BaseReward int64     `json:"baseReward"`
	Reward     int64     `json:"reward"`
	BoostCount int       `json:"boostCount"`
	IsActive   bool      `json:"isActive"`
	Status     string    `json:"status"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// Completion is the outcome of crediting a finished task to a user.
type Completion struct {
	TaskID           string `json:"taskId"`
	SessionID        string `json:"sessionId,omitempty"`
	Reward           int64  `json:"reward"`
	NewBalance       int64  `json:"newBalance"`
	TasksCompleted   int    `json:"tasksCompleted"`
	FirstCompletion  bool   `json:"-"`
	AlreadyCompleted bool   `json:"alreadyCompleted"`
}

type Withdrawal struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId,omitempty"`
	Email       string    `json:"email"`
	Amount      int64     `json:"amount"`
	WalletID    string    `json:"walletId"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"timestamp"`
	ProcessedAt time.Time `json:"processedAt,omitempty"`
}

type Referral struct {
	ID            string    `json:"id"`
	ReferrerID    string    `json:"referrerId"`
	ReferrerEmail string    `json:"referrerEmail"`
	ReferredEmail string    `json:"referredEmail"`
	ReferredName  string    `json:"referredName"`
	Status        string    `json:"status"`
	RewardAmount  int64     `json:"rewardAmount"`
	CreatedAt     time.Time `json:"timestamp"`
	CompletedAt   time.Time `json:"completedAt,omitempty"`
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Email     string    `json:"email"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"timestamp"`
}

type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"timestamp"`
}

type PasswordReset struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

type Stats struct {
	TotalTasks             int   `json:"totalTasks"`
	TotalUsers             int   `json:"totalUsers"`
	TotalTokensDistributed int64 `json:"totalTokensDistributed"`
	TotalTokenBalance      int64 `json:"totalTokenBalance"`
	AvgTaskReward          int64 `json:"avgTaskReward"`
	PendingWithdrawals     int   `json:"pendingWithdrawals"`
}
