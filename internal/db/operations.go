package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
)

const userColumns = `id, full_name, email, password_hash, wallet_id, token_balance,
	tasks_completed, total_earned, referral_code, joined_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.WalletID, &u.TokenBalance,
		&u.TasksCompleted, &u.TotalEarned, &u.ReferralCode, &u.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *DBServiceImpl) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.JoinedAt.IsZero() {
		user.JoinedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, email, password_hash, wallet_id, token_balance,
			tasks_completed, total_earned, referral_code, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.FullName, user.Email, user.PasswordHash, user.WalletID, user.TokenBalance,
		user.TasksCompleted, user.TotalEarned, user.ReferralCode, user.JoinedAt)
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == "users_referral_code_key" {
			return errors.ErrReferralCodeTaken
		}
		return errors.ErrUserExists
	}
	if err != nil {
		return &errors.DatabaseError{Operation: "create user", Err: err}
	}
	return nil
}

func (s *DBServiceImpl) getUser(ctx context.Context, column, value string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value))
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "user", Identifier: value}
	}
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "get user", Err: err}
	}
	return u, nil
}

func (s *DBServiceImpl) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *DBServiceImpl) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *DBServiceImpl) GetUserByReferralCode(ctx context.Context, code string) (*User, error) {
	return s.getUser(ctx, "referral_code", code)
}

func (s *DBServiceImpl) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY joined_at`)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "list users", Err: err}
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, &errors.DatabaseError{Operation: "scan user", Err: err}
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate users", Err: err}
	}
	return users, nil
}

func (s *DBServiceImpl) UpdateUserProfile(ctx context.Context, id, fullName, walletID string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users
		SET full_name = COALESCE(NULLIF($2, ''), full_name),
		    wallet_id = COALESCE(NULLIF($3, ''), wallet_id)
		WHERE id = $1
		RETURNING `+userColumns, id, fullName, walletID))
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "user", Identifier: id}
	}
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "update profile", Err: err}
	}
	return u, nil
}

func (s *DBServiceImpl) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return &errors.DatabaseError{Operation: "update password", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.NotFoundError{Resource: "user", Identifier: id}
	}
	return nil
}

func (s *DBServiceImpl) SetUserBalance(ctx context.Context, id string, balance int64) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users SET token_balance = $2 WHERE id = $1
		RETURNING `+userColumns, id, balance))
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "user", Identifier: id}
	}
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "set balance", Err: err}
	}
	return u, nil
}

// DeleteUser relies on ON DELETE CASCADE for per-user rows. Withdrawals keep
// their audit trail with user_id set to NULL.
func (s *DBServiceImpl) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errors.DatabaseError{Operation: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM referrals
		WHERE referred_email = (SELECT email FROM users WHERE id = $1)`, id)
	if err != nil {
		return &errors.DatabaseError{Operation: "delete referrals", Err: err}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return &errors.DatabaseError{Operation: "delete user", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.NotFoundError{Resource: "user", Identifier: id}
	}
	if err := tx.Commit(); err != nil {
		return &errors.DatabaseError{Operation: "commit delete user", Err: err}
	}
	return nil
}

// Tasks

const taskSelect = `
	SELECT t.id, t.title, t.description, t.reward, t.difficulty, t.type, t.timeframe, t.link,
	       t.created_at, COALESCE(array_agg(c.user_id) FILTER (WHERE c.user_id IS NOT NULL), '{}')
	FROM tasks t
	LEFT JOIN task_completions c ON c.task_id = t.id`

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var completedBy pq.StringArray
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Reward, &t.Difficulty, &t.Type,
		&t.Timeframe, &t.Link, &t.CreatedAt, &completedBy)
	if err != nil {
		return nil, err
	}
	t.CompletedBy = []string(completedBy)
	if t.CompletedBy == nil {
		t.CompletedBy = []string{}
	}
	return &t, nil
}

func (s *DBServiceImpl) CreateTask(ctx context.Context, task *Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	task.CompletedBy = []string{}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, reward, difficulty, type, timeframe, link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.Title, task.Description, task.Reward, task.Difficulty, task.Type,
		task.Timeframe, task.Link, task.CreatedAt)
	if err != nil {
		return &errors.DatabaseError{Operation: "create task", Err: err}
	}
	return nil
}

func (s *DBServiceImpl) GetTask(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, taskSelect+` WHERE t.id = $1 GROUP BY t.id`, id))
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "task", Identifier: id}
	}
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "get task", Err: err}
	}
	return t, nil
}

func (s *DBServiceImpl) ListTasks(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+` GROUP BY t.id ORDER BY t.created_at`)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "list tasks", Err: err}
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, &errors.DatabaseError{Operation: "scan task", Err: err}
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate tasks", Err: err}
	}
	return tasks, nil
}

func (s *DBServiceImpl) UpdateTask(ctx context.Context, task *Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, reward = $4, difficulty = $5, type = $6,
		    timeframe = $7, link = $8
		WHERE id = $1`,
		task.ID, task.Title, task.Description, task.Reward, task.Difficulty, task.Type,
		task.Timeframe, task.Link)
	if err != nil {
		return &errors.DatabaseError{Operation: "update task", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.NotFoundError{Resource: "task", Identifier: task.ID}
	}
	return nil
}

func (s *DBServiceImpl) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return &errors.DatabaseError{Operation: "delete task", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.NotFoundError{Resource: "task", Identifier: id}
	}
	return nil
}

// Mining sessions

const sessionColumns = `id, user_id, task_id, start_time, end_time, base_reward, reward,
	boost_count, is_active, status, finished_at`

func scanSession(row rowScanner) (*MiningSession, error) {
	var ms MiningSession
	var finished sql.NullTime
	err := row.Scan(&ms.ID, &ms.UserID, &ms.TaskID, &ms.StartTime, &ms.EndTime, &ms.BaseReward,
		&ms.Reward, &ms.BoostCount, &ms.IsActive, &ms.Status, &finished)
	if err != nil {
		return nil, err
	}
	ms.FinishedAt = fromNullTime(finished)
	return &ms, nil
}

func (s *DBServiceImpl) CreateSession(ctx context.Context, session *MiningSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mining_sessions (id, user_id, task_id, start_time, end_time, base_reward,
			reward, boost_count, is_active, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		session.ID, session.UserID, session.TaskID, session.StartTime, session.EndTime,
		session.BaseReward, session.Reward, session.BoostCount, session.IsActive, session.Status)
	if _, ok := uniqueViolation(err); ok {
		return errors.ErrSessionAlreadyActive
	}
	if constraint, ok := foreignKeyViolation(err); ok {
		if constraint == "mining_sessions_task_id_fkey" {
			return &errors.NotFoundError{Resource: "task", Identifier: session.TaskID}
		}
		return &errors.NotFoundError{Resource: "user", Identifier: session.UserID}
	}
	if err != nil {
		return &errors.DatabaseError{Operation: "create session", Err: err}
	}
	return nil
}

func (s *DBServiceImpl) GetSession(ctx context.Context, id string) (*MiningSession, error) {
	ms, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM mining_sessions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "session", Identifier: id}
	}
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "get session", Err: err}
	}
	return ms, nil
}

func (s *DBServiceImpl) ListUserSessions(ctx context.Context, userID string, activeOnly bool) ([]MiningSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM mining_sessions
		WHERE user_id = $1 AND (is_active OR NOT $2)
		ORDER BY start_time DESC`, userID, activeOnly)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "list sessions", Err: err}
	}
	defer rows.Close()

	var sessions []MiningSession
	for rows.Next() {
		ms, err := scanSession(rows)
		if err != nil {
			return nil, &errors.DatabaseError{Operation: "scan session", Err: err}
		}
		sessions = append(sessions, *ms)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate sessions", Err: err}
	}
	return sessions, nil
}

func (s *DBServiceImpl) BoostSession(ctx context.Context, session *MiningSession, expectedBoosts int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mining_sessions
		SET reward = $2, boost_count = $3, end_time = $4
		WHERE id = $1 AND is_active AND boost_count = $5`,
		session.ID, session.Reward, session.BoostCount, session.EndTime, expectedBoosts)
	if err != nil {
		return &errors.DatabaseError{Operation: "boost session", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	current, err := s.GetSession(ctx, session.ID)
	if err != nil {
		return err
	}
	if !current.IsActive {
		return errors.ErrSessionInactive
	}
	return &errors.ConflictError{ErrCode: "BOOST_CONFLICT", Message: "Session was boosted concurrently, retry"}
}

// creditUser adds reward to the user's balance inside tx and records the
// task completion row.
func creditUser(ctx context.Context, tx *sql.Tx, taskID, userID string, reward int64) (*Completion, error) {
	c := &Completion{TaskID: taskID, Reward: reward}
	err := tx.QueryRowContext(ctx, `
		UPDATE users
		SET token_balance = token_balance + $2,
		    total_earned = total_earned + $2,
		    tasks_completed = tasks_completed + 1
		WHERE id = $1
		RETURNING token_balance, tasks_completed`, userID, reward).Scan(&c.NewBalance, &c.TasksCompleted)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "user", Identifier: userID}
	}
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "credit user", Err: err}
	}
	c.FirstCompletion = c.TasksCompleted == 1
	return c, nil
}

func (s *DBServiceImpl) CompleteSession(ctx context.Context, sessionID, userID string, now time.Time) (*Completion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	var taskID string
	var reward int64
	err = tx.QueryRowContext(ctx, `
		UPDATE mining_sessions
		SET is_active = false, status = 'completed', finished_at = $3
		WHERE id = $1 AND user_id = $2 AND is_active AND end_time <= $3
		RETURNING task_id, reward`, sessionID, userID, now).Scan(&taskID, &reward)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return s.explainIncomplete(ctx, sessionID, userID, now)
	}
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "complete session", Err: err}
	}

	c, err := creditUser(ctx, tx, taskID, userID, reward)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_completions (task_id, user_id, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id, user_id) DO NOTHING`, taskID, userID, now)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "record completion", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &errors.DatabaseError{Operation: "commit completion", Err: err}
	}
	c.SessionID = sessionID
	return c, nil
}

// explainIncomplete maps a failed completion CAS to the reason it failed.
func (s *DBServiceImpl) explainIncomplete(ctx context.Context, sessionID, userID string, now time.Time) (*Completion, error) {
	ms, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ms.UserID != userID {
		return nil, &errors.NotFoundError{Resource: "session", Identifier: sessionID}
	}
	switch {
	case ms.Status == SessionStatusCompleted:
		u, err := s.GetUserByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &Completion{
			TaskID:           ms.TaskID,
			SessionID:        ms.ID,
			Reward:           ms.Reward,
			NewBalance:       u.TokenBalance,
			TasksCompleted:   u.TasksCompleted,
			AlreadyCompleted: true,
		}, nil
	case !ms.IsActive:
		return nil, errors.ErrSessionInactive
	default:
		return nil, errors.ErrSessionNotComplete
	}
}

func (s *DBServiceImpl) CompleteTask(ctx context.Context, taskID, userID string) (*Completion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	var taskType string
	var reward int64
	err = tx.QueryRowContext(ctx, `SELECT type, reward FROM tasks WHERE id = $1`, taskID).Scan(&taskType, &reward)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "task", Identifier: taskID}
	}
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "get task", Err: err}
	}
	if taskType == TaskTypeMining {
		return nil, errors.ErrNotOneShotTask
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO task_completions (task_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (task_id, user_id) DO NOTHING`, taskID, userID)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "record completion", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.ErrTaskAlreadyCompleted
	}

	c, err := creditUser(ctx, tx, taskID, userID, reward)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, &errors.DatabaseError{Operation: "commit completion", Err: err}
	}
	return c, nil
}

func (s *DBServiceImpl) ExpireStaleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mining_sessions
		SET is_active = false, status = 'expired', finished_at = $1
		WHERE is_active AND end_time < $1`, cutoff)
	if err != nil {
		return 0, &errors.DatabaseError{Operation: "expire sessions", Err: err}
	}
	return res.RowsAffected()
}

// Referrals

const referralColumns = `id, referrer_id, referrer_email, referred_email, referred_name, status,
	reward_amount, created_at, completed_at`

func scanReferral(row rowScanner) (*Referral, error) {
	var r Referral
	var completed sql.NullTime
	err := row.Scan(&r.ID, &r.ReferrerID, &r.ReferrerEmail, &r.ReferredEmail, &r.ReferredName,
		&r.Status, &r.RewardAmount, &r.CreatedAt, &completed)
	if err != nil {
		return nil, err
	}
	r.CompletedAt = fromNullTime(completed)
	return &r, nil
}

func (s *DBServiceImpl) CreateReferral(ctx context.Context, referral *Referral) error {
	if referral.ID == "" {
		referral.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO referrals (id, referrer_id, referrer_email, referred_email, referred_name,
			status, reward_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		referral.ID, referral.ReferrerID, referral.ReferrerEmail, referral.ReferredEmail,
		referral.ReferredName, referral.Status, referral.RewardAmount, referral.CreatedAt)
	if _, ok := uniqueViolation(err); ok {
		return errors.ErrReferralExists
	}
	if err != nil {
		return &errors.DatabaseError{Operation: "create referral", Err: err}
	}
	return nil
}

func (s *DBServiceImpl) SettleReferral(ctx context.Context, referredEmail string, now time.Time) (*Referral, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	r, err := scanReferral(tx.QueryRowContext(ctx, `
		UPDATE referrals
		SET status = 'completed', completed_at = $2
		WHERE referred_email = $1 AND status = 'pending'
		RETURNING `+referralColumns, referredEmail, now))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "settle referral", Err: err}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET token_balance = token_balance + $2, total_earned = total_earned + $2
		WHERE id = $1`, r.ReferrerID, r.RewardAmount)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "credit referrer", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &errors.DatabaseError{Operation: "commit referral", Err: err}
	}
	return r, nil
}

func (s *DBServiceImpl) ListReferralsByReferrer(ctx context.Context, referrerID string) ([]Referral, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+referralColumns+`
		FROM referrals
		WHERE referrer_id = $1
		ORDER BY created_at DESC`, referrerID)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "list referrals", Err: err}
	}
	defer rows.Close()

	var referrals []Referral
	for rows.Next() {
		r, err := scanReferral(rows)
		if err != nil {
			return nil, &errors.DatabaseError{Operation: "scan referral", Err: err}
		}
		referrals = append(referrals, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate referrals", Err: err}
	}
	return referrals, nil
}

// Withdrawals

const withdrawalColumns = `id, COALESCE(user_id, ''), email, amount, wallet_id, status, reason,
	requested_at, processed_at`

func scanWithdrawal(row rowScanner) (*Withdrawal, error) {
	var w Withdrawal
	var processed sql.NullTime
	err := row.Scan(&w.ID, &w.UserID, &w.Email, &w.Amount, &w.WalletID, &w.Status, &w.Reason,
		&w.RequestedAt, &processed)
	if err != nil {
		return nil, err
	}
	w.ProcessedAt = fromNullTime(processed)
	return &w, nil
}

func (s *DBServiceImpl) CreateWithdrawal(ctx context.Context, w *Withdrawal) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &errors.DatabaseError{Operation: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE users
		SET token_balance = token_balance - $2
		WHERE id = $1 AND token_balance >= $2
		RETURNING token_balance`, w.UserID, w.Amount).Scan(&balance)
	if err == sql.ErrNoRows {
		tx.Rollback()
		u, err := s.GetUserByID(ctx, w.UserID)
		if err != nil {
			return 0, err
		}
		return u.TokenBalance, &errors.InsufficientBalanceError{Requested: w.Amount, Available: u.TokenBalance}
	}
	if err != nil {
		return 0, &errors.DatabaseError{Operation: "debit balance", Err: err}
	}

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO withdrawals (id, user_id, email, amount, wallet_id, status, reason, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.ID, w.UserID, w.Email, w.Amount, w.WalletID, w.Status, w.Reason, w.RequestedAt)
	if err != nil {
		return 0, &errors.DatabaseError{Operation: "create withdrawal", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &errors.DatabaseError{Operation: "commit withdrawal", Err: err}
	}
	return balance, nil
}

func (s *DBServiceImpl) GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	w, err := scanWithdrawal(s.db.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "withdrawal", Identifier: id}
	}
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "get withdrawal", Err: err}
	}
	return w, nil
}

func (s *DBServiceImpl) queryWithdrawals(ctx context.Context, query string, args ...interface{}) ([]Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "list withdrawals", Err: err}
	}
	defer rows.Close()

	var out []Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, &errors.DatabaseError{Operation: "scan withdrawal", Err: err}
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate withdrawals", Err: err}
	}
	return out, nil
}

func (s *DBServiceImpl) ListWithdrawalsByUser(ctx context.Context, userID string) ([]Withdrawal, error) {
	return s.queryWithdrawals(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawals
		WHERE user_id = $1
		ORDER BY requested_at DESC`, userID)
}

func (s *DBServiceImpl) ListWithdrawals(ctx context.Context, status string) ([]Withdrawal, error) {
	return s.queryWithdrawals(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawals
		WHERE $1 = '' OR status = $1
		ORDER BY requested_at DESC`, status)
}

func (s *DBServiceImpl) ProcessWithdrawal(ctx context.Context, id, status, reason string, now time.Time) (*Withdrawal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	w, err := scanWithdrawal(tx.QueryRowContext(ctx, `
		UPDATE withdrawals
		SET status = $2, reason = $3, processed_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING `+withdrawalColumns, id, status, reason, now))
	if err == sql.ErrNoRows {
		tx.Rollback()
		if _, err := s.GetWithdrawal(ctx, id); err != nil {
			return nil, err
		}
		return nil, errors.ErrWithdrawalNotPending
	}
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "process withdrawal", Err: err}
	}

	if status == WithdrawalRejected && w.UserID != "" {
		_, err = tx.ExecContext(ctx, `
			UPDATE users SET token_balance = token_balance + $2 WHERE id = $1`, w.UserID, w.Amount)
		if err != nil {
			return nil, &errors.DatabaseError{Operation: "refund withdrawal", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, &errors.DatabaseError{Operation: "commit withdrawal", Err: err}
	}
	return w, nil
}
