package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
)

// MemoryDB is an in-process DBService. Every method holds a single mutex, so
// each call is atomic with respect to the others.
type MemoryDB struct {
	mu sync.Mutex

	users         map[string]*User
	tasks         map[string]*Task
	taskOrder     []string
	sessions      map[string]*MiningSession
	withdrawals   []*Withdrawal
	referrals     []*Referral
	notifications []*Notification
	announcements []*Announcement
	settings      map[string]string
	resets        map[string]*PasswordReset
}

// NewMemoryDB returns an empty in-memory store.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:    make(map[string]*User),
		tasks:    make(map[string]*Task),
		sessions: make(map[string]*MiningSession),
		settings: make(map[string]string),
		resets:   make(map[string]*PasswordReset),
	}
}

func (m *MemoryDB) Close() error { return nil }

func copyTask(t *Task) Task {
	c := *t
	c.CompletedBy = append([]string(nil), t.CompletedBy...)
	return c
}

// Users

func (m *MemoryDB) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == user.Email {
			return errors.ErrUserExists
		}
		if u.ReferralCode == user.ReferralCode {
			return errors.ErrReferralCodeTaken
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.JoinedAt.IsZero() {
		user.JoinedAt = time.Now().UTC()
	}
	u := *user
	m.users[u.ID] = &u
	return nil
}

func (m *MemoryDB) GetUserByID(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "user", Identifier: id}
	}
	c := *u
	return &c, nil
}

func (m *MemoryDB) findUser(match func(*User) bool, ident string) (*User, error) {
	for _, u := range m.users {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, &errors.NotFoundError{Resource: "user", Identifier: ident}
}

func (m *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findUser(func(u *User) bool { return u.Email == email }, email)
}

func (m *MemoryDB) GetUserByReferralCode(ctx context.Context, code string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findUser(func(u *User) bool { return u.ReferralCode == code }, code)
}

func (m *MemoryDB) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].JoinedAt.Before(users[j].JoinedAt) })
	return users, nil
}

func (m *MemoryDB) UpdateUserProfile(ctx context.Context, id, fullName, walletID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "user", Identifier: id}
	}
	if fullName != "" {
		u.FullName = fullName
	}
	if walletID != "" {
		u.WalletID = walletID
	}
	c := *u
	return &c, nil
}

func (m *MemoryDB) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return &errors.NotFoundError{Resource: "user", Identifier: id}
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *MemoryDB) SetUserBalance(ctx context.Context, id string, balance int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "user", Identifier: id}
	}
	u.TokenBalance = balance
	c := *u
	return &c, nil
}

func (m *MemoryDB) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return &errors.NotFoundError{Resource: "user", Identifier: id}
	}
	delete(m.users, id)

	for sid, s := range m.sessions {
		if s.UserID == id {
			delete(m.sessions, sid)
		}
	}
	for _, t := range m.tasks {
		kept := t.CompletedBy[:0]
		for _, uid := range t.CompletedBy {
			if uid != id {
				kept = append(kept, uid)
			}
		}
		t.CompletedBy = kept
	}
	notifications := m.notifications[:0]
	for _, n := range m.notifications {
		if n.UserID != id {
			notifications = append(notifications, n)
		}
	}
	m.notifications = notifications
	referrals := m.referrals[:0]
	for _, r := range m.referrals {
		if r.ReferrerID != id && r.ReferredEmail != u.Email {
			referrals = append(referrals, r)
		}
	}
	m.referrals = referrals
	for token, r := range m.resets {
		if r.UserID == id {
			delete(m.resets, token)
		}
	}
	for _, w := range m.withdrawals {
		if w.UserID == id {
			w.UserID = ""
		}
	}
	return nil
}

// Tasks

func (m *MemoryDB) CreateTask(ctx context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.CompletedBy == nil {
		task.CompletedBy = []string{}
	}
	t := copyTask(task)
	m.tasks[t.ID] = &t
	m.taskOrder = append(m.taskOrder, t.ID)
	return nil
}

func (m *MemoryDB) GetTask(ctx context.Context, id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "task", Identifier: id}
	}
	c := copyTask(t)
	return &c, nil
}

func (m *MemoryDB) ListTasks(ctx context.Context) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]Task, 0, len(m.taskOrder))
	for _, id := range m.taskOrder {
		if t, ok := m.tasks[id]; ok {
			tasks = append(tasks, copyTask(t))
		}
	}
	return tasks, nil
}

func (m *MemoryDB) UpdateTask(ctx context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[task.ID]
	if !ok {
		return &errors.NotFoundError{Resource: "task", Identifier: task.ID}
	}
	completedBy := t.CompletedBy
	*t = copyTask(task)
	t.CompletedBy = completedBy
	task.CompletedBy = append([]string(nil), completedBy...)
	return nil
}

func (m *MemoryDB) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return &errors.NotFoundError{Resource: "task", Identifier: id}
	}
	delete(m.tasks, id)
	for i, tid := range m.taskOrder {
		if tid == id {
			m.taskOrder = append(m.taskOrder[:i], m.taskOrder[i+1:]...)
			break
		}
	}
	for sid, s := range m.sessions {
		if s.TaskID == id {
			delete(m.sessions, sid)
		}
	}
	return nil
}

// Sessions

func (m *MemoryDB) CreateSession(ctx context.Context, session *MiningSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[session.UserID]; !ok {
		return &errors.NotFoundError{Resource: "user", Identifier: session.UserID}
	}
	if _, ok := m.tasks[session.TaskID]; !ok {
		return &errors.NotFoundError{Resource: "task", Identifier: session.TaskID}
	}
	for _, s := range m.sessions {
		if s.UserID == session.UserID && s.TaskID == session.TaskID && s.IsActive {
			return errors.ErrSessionAlreadyActive
		}
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	s := *session
	m.sessions[s.ID] = &s
	return nil
}

func (m *MemoryDB) GetSession(ctx context.Context, id string) (*MiningSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "session", Identifier: id}
	}
	c := *s
	return &c, nil
}

func (m *MemoryDB) ListUserSessions(ctx context.Context, userID string, activeOnly bool) ([]MiningSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sessions []MiningSession
	for _, s := range m.sessions {
		if s.UserID != userID || (activeOnly && !s.IsActive) {
			continue
		}
		sessions = append(sessions, *s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartTime.After(sessions[j].StartTime) })
	return sessions, nil
}

func (m *MemoryDB) BoostSession(ctx context.Context, session *MiningSession, expectedBoosts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[session.ID]
	if !ok {
		return &errors.NotFoundError{Resource: "session", Identifier: session.ID}
	}
	if !s.IsActive {
		return errors.ErrSessionInactive
	}
	if s.BoostCount != expectedBoosts {
		return &errors.ConflictError{ErrCode: "BOOST_CONFLICT", Message: "Session was boosted concurrently, retry"}
	}
	s.Reward = session.Reward
	s.BoostCount = session.BoostCount
	s.EndTime = session.EndTime
	return nil
}

// credit applies a reward to a user and marks the task completed by them.
// Callers hold m.mu.
func (m *MemoryDB) credit(u *User, taskID string, reward int64) *Completion {
	u.TokenBalance += reward
	u.TotalEarned += reward
	u.TasksCompleted++
	if t, ok := m.tasks[taskID]; ok && !t.CompletedByUser(u.ID) {
		t.CompletedBy = append(t.CompletedBy, u.ID)
	}
	return &Completion{
		TaskID:          taskID,
		Reward:          reward,
		NewBalance:      u.TokenBalance,
		TasksCompleted:  u.TasksCompleted,
		FirstCompletion: u.TasksCompleted == 1,
	}
}

func (m *MemoryDB) CompleteSession(ctx context.Context, sessionID, userID string, now time.Time) (*Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, &errors.NotFoundError{Resource: "session", Identifier: sessionID}
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "user", Identifier: userID}
	}
	switch {
	case s.Status == SessionStatusCompleted:
		return &Completion{
			TaskID:           s.TaskID,
			SessionID:        s.ID,
			Reward:           s.Reward,
			NewBalance:       u.TokenBalance,
			TasksCompleted:   u.TasksCompleted,
			AlreadyCompleted: true,
		}, nil
	case !s.IsActive:
		return nil, errors.ErrSessionInactive
	case now.Before(s.EndTime):
		return nil, errors.ErrSessionNotComplete
	}

	s.IsActive = false
	s.Status = SessionStatusCompleted
	s.FinishedAt = now
	c := m.credit(u, s.TaskID, s.Reward)
	c.SessionID = s.ID
	return c, nil
}

func (m *MemoryDB) CompleteTask(ctx context.Context, taskID, userID string) (*Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "task", Identifier: taskID}
	}
	if t.IsMining() {
		return nil, errors.ErrNotOneShotTask
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "user", Identifier: userID}
	}
	if t.CompletedByUser(userID) {
		return nil, errors.ErrTaskAlreadyCompleted
	}
	return m.credit(u, taskID, t.Reward), nil
}

func (m *MemoryDB) ExpireStaleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired int64
	for _, s := range m.sessions {
		if s.IsActive && s.EndTime.Before(cutoff) {
			s.IsActive = false
			s.Status = SessionStatusExpired
			s.FinishedAt = cutoff
			expired++
		}
	}
	return expired, nil
}

// Referrals

func (m *MemoryDB) CreateReferral(ctx context.Context, referral *Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.referrals {
		if r.ReferredEmail == referral.ReferredEmail {
			return errors.ErrReferralExists
		}
	}
	if referral.ID == "" {
		referral.ID = uuid.NewString()
	}
	r := *referral
	m.referrals = append(m.referrals, &r)
	return nil
}

func (m *MemoryDB) SettleReferral(ctx context.Context, referredEmail string, now time.Time) (*Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.referrals {
		if r.ReferredEmail != referredEmail || r.Status != ReferralPending {
			continue
		}
		referrer, ok := m.users[r.ReferrerID]
		if !ok {
			return nil, &errors.NotFoundError{Resource: "user", Identifier: r.ReferrerID}
		}
		r.Status = ReferralCompleted
		r.CompletedAt = now
		referrer.TokenBalance += r.RewardAmount
		referrer.TotalEarned += r.RewardAmount
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (m *MemoryDB) ListReferralsByReferrer(ctx context.Context, referrerID string) ([]Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var referrals []Referral
	for _, r := range m.referrals {
		if r.ReferrerID == referrerID {
			referrals = append(referrals, *r)
		}
	}
	return referrals, nil
}

// Withdrawals

func (m *MemoryDB) CreateWithdrawal(ctx context.Context, w *Withdrawal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[w.UserID]
	if !ok {
		return 0, &errors.NotFoundError{Resource: "user", Identifier: w.UserID}
	}
	if w.Amount > u.TokenBalance {
		return u.TokenBalance, &errors.InsufficientBalanceError{Requested: w.Amount, Available: u.TokenBalance}
	}
	u.TokenBalance -= w.Amount
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	c := *w
	m.withdrawals = append(m.withdrawals, &c)
	return u.TokenBalance, nil
}

func (m *MemoryDB) GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.withdrawals {
		if w.ID == id {
			c := *w
			return &c, nil
		}
	}
	return nil, &errors.NotFoundError{Resource: "withdrawal", Identifier: id}
}

func (m *MemoryDB) ListWithdrawalsByUser(ctx context.Context, userID string) ([]Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Withdrawal
	for i := len(m.withdrawals) - 1; i >= 0; i-- {
		if m.withdrawals[i].UserID == userID {
			out = append(out, *m.withdrawals[i])
		}
	}
	return out, nil
}

func (m *MemoryDB) ListWithdrawals(ctx context.Context, status string) ([]Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Withdrawal
	for i := len(m.withdrawals) - 1; i >= 0; i-- {
		if status == "" || m.withdrawals[i].Status == status {
			out = append(out, *m.withdrawals[i])
		}
	}
	return out, nil
}

func (m *MemoryDB) ProcessWithdrawal(ctx context.Context, id, status, reason string, now time.Time) (*Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.withdrawals {
		if w.ID != id {
			continue
		}
		if w.Status != WithdrawalPending {
			return nil, errors.ErrWithdrawalNotPending
		}
		if status == WithdrawalRejected {
			if u, ok := m.users[w.UserID]; ok {
				u.TokenBalance += w.Amount
			}
		}
		w.Status = status
		w.Reason = reason
		w.ProcessedAt = now
		c := *w
		return &c, nil
	}
	return nil, &errors.NotFoundError{Resource: "withdrawal", Identifier: id}
}

// Notifications

func (m *MemoryDB) CreateNotification(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[n.UserID]
	if !ok {
		return &errors.NotFoundError{Resource: "user", Identifier: n.UserID}
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Email = u.Email
	c := *n
	m.notifications = append(m.notifications, &c)
	return nil
}

func (m *MemoryDB) CreateNotificationForAll(ctx context.Context, template Notification) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := make([]Notification, 0, len(m.users))
	for _, u := range m.users {
		n := template
		n.ID = uuid.NewString()
		n.UserID = u.ID
		n.Email = u.Email
		m.notifications = append(m.notifications, &n)
		created = append(created, n)
	}
	return created, nil
}

func (m *MemoryDB) ListNotifications(ctx context.Context, userID string) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if n := m.notifications[i]; n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryDB) MarkNotificationRead(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notifications {
		if n.ID == id && n.UserID == userID {
			n.Read = true
			return nil
		}
	}
	return &errors.NotFoundError{Resource: "notification", Identifier: id}
}

func (m *MemoryDB) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, n := range m.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			count++
		}
	}
	return count, nil
}

func (m *MemoryDB) DeleteNotification(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, n := range m.notifications {
		if n.ID == id && n.UserID == userID {
			m.notifications = append(m.notifications[:i], m.notifications[i+1:]...)
			return nil
		}
	}
	return &errors.NotFoundError{Resource: "notification", Identifier: id}
}

// Announcements

func (m *MemoryDB) CreateAnnouncement(ctx context.Context, a *Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	c := *a
	m.announcements = append(m.announcements, &c)
	return nil
}

func (m *MemoryDB) GetAnnouncement(ctx context.Context, id string) (*Announcement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.announcements {
		if a.ID == id {
			c := *a
			return &c, nil
		}
	}
	return nil, &errors.NotFoundError{Resource: "announcement", Identifier: id}
}

func (m *MemoryDB) ListAnnouncements(ctx context.Context, activeOnly bool) ([]Announcement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Announcement
	for i := len(m.announcements) - 1; i >= 0; i-- {
		a := m.announcements[i]
		if activeOnly && !a.Active {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *MemoryDB) UpdateAnnouncement(ctx context.Context, a *Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.announcements {
		if existing.ID == a.ID {
			existing.Title = a.Title
			existing.Message = a.Message
			existing.Active = a.Active
			a.CreatedAt = existing.CreatedAt
			return nil
		}
	}
	return &errors.NotFoundError{Resource: "announcement", Identifier: a.ID}
}

func (m *MemoryDB) DeleteAnnouncement(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, a := range m.announcements {
		if a.ID == id {
			m.announcements = append(m.announcements[:i], m.announcements[i+1:]...)
			return nil
		}
	}
	return &errors.NotFoundError{Resource: "announcement", Identifier: id}
}

// Settings

func (m *MemoryDB) LoadSettings(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryDB) SaveSettings(ctx context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range values {
		m.settings[k] = v
	}
	return nil
}

// Password resets

func (m *MemoryDB) CreatePasswordReset(ctx context.Context, reset *PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *reset
	m.resets[r.Token] = &r
	return nil
}

func (m *MemoryDB) ConsumePasswordReset(ctx context.Context, token string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.resets[token]
	if !ok {
		return "", errors.ErrInvalidResetToken
	}
	delete(m.resets, token)
	if now.After(r.ExpiresAt) {
		return "", errors.ErrInvalidResetToken
	}
	return r.UserID, nil
}

// Stats

func (m *MemoryDB) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{TotalTasks: len(m.tasks), TotalUsers: len(m.users)}
	for _, u := range m.users {
		stats.TotalTokensDistributed += u.TotalEarned
		stats.TotalTokenBalance += u.TokenBalance
	}
	if len(m.tasks) > 0 {
		var sum int64
		for _, t := range m.tasks {
			sum += t.Reward
		}
		stats.AvgTaskReward = roundDiv(sum, int64(len(m.tasks)))
	}
	for _, w := range m.withdrawals {
		if w.Status == WithdrawalPending {
			stats.PendingWithdrawals++
		}
	}
	return stats, nil
}

// roundDiv divides and rounds half away from zero for non-negative operands.
func roundDiv(sum, n int64) int64 {
	return (sum + n/2) / n
}
