package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
)

func (s *DBServiceImpl) CreateNotification(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, email, type, title, message, read, created_at)
		SELECT $1, u.id, u.email, $3, $4, $5, $6, $7
		FROM users u WHERE u.id = $2
		RETURNING email`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Read, n.CreatedAt).Scan(&n.Email)
	if err == sql.ErrNoRows {
		return &errors.NotFoundError{Resource: "user", Identifier: n.UserID}
	}
	if err != nil {
		return &errors.DatabaseError{Operation: "create notification", Err: err}
	}
	return nil
}

func (s *DBServiceImpl) CreateNotificationForAll(ctx context.Context, template Notification) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		INSERT INTO notifications (id, user_id, email, type, title, message, read, created_at)
		SELECT gen_random_uuid()::text, id, email, $1, $2, $3, false, $4
		FROM users
		RETURNING id, user_id, email`,
		template.Type, template.Title, template.Message, template.CreatedAt)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "broadcast notification", Err: err}
	}
	defer rows.Close()

	var created []Notification
	for rows.Next() {
		n := template
		n.Read = false
		if err := rows.Scan(&n.ID, &n.UserID, &n.Email); err != nil {
			return nil, &errors.DatabaseError{Operation: "broadcast notification", Err: err}
		}
		created = append(created, n)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "broadcast notification", Err: err}
	}
	return created, nil
}

func (s *DBServiceImpl) ListNotifications(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, email, type, title, message, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "list notifications", Err: err}
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Email, &n.Type, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, &errors.DatabaseError{Operation: "scan notification", Err: err}
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate notifications", Err: err}
	}
	return out, nil
}

func (s *DBServiceImpl) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return &errors.DatabaseError{Operation: "mark notification read", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.NotFoundError{Resource: "notification", Identifier: id}
	}
	return nil
}

func (s *DBServiceImpl) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = true WHERE user_id = $1 AND NOT read`, userID)
	if err != nil {
		return 0, &errors.DatabaseError{Operation: "mark all notifications read", Err: err}
	}
	return res.RowsAffected()
}

func (s *DBServiceImpl) DeleteNotification(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return &errors.DatabaseError{Operation: "delete notification", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.NotFoundError{Resource: "notification", Identifier: id}
	}
	return nil
}

// Announcements

func (s *DBServiceImpl) CreateAnnouncement(ctx context.Context, a *Announcement) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO announcements (id, title, message, active, created_at)
		VALUES ($1, $2, $3, $4, $5)`, a.ID, a.Title, a.Message, a.Active, a.CreatedAt)
	if err != nil {
		return &errors.DatabaseError{Operation: "create announcement", Err: err}
	}
	return nil
}

func (s *DBServiceImpl) GetAnnouncement(ctx context.Context, id string) (*Announcement, error) {
	var a Announcement
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, message, active, created_at FROM announcements WHERE id = $1`, id).
		Scan(&a.ID, &a.Title, &a.Message, &a.Active, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "announcement", Identifier: id}
	}
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "get announcement", Err: err}
	}
	return &a, nil
}

func (s *DBServiceImpl) ListAnnouncements(ctx context.Context, activeOnly bool) ([]Announcement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, message, active, created_at
		FROM announcements
		WHERE active OR NOT $1
		ORDER BY created_at DESC`, activeOnly)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "list announcements", Err: err}
	}
	defer rows.Close()

	var out []Announcement
	for rows.Next() {
		var a Announcement
		if err := rows.Scan(&a.ID, &a.Title, &a.Message, &a.Active, &a.CreatedAt); err != nil {
			return nil, &errors.DatabaseError{Operation: "scan announcement", Err: err}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate announcements", Err: err}
	}
	return out, nil
}

func (s *DBServiceImpl) UpdateAnnouncement(ctx context.Context, a *Announcement) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE announcements SET title = $2, message = $3, active = $4
		WHERE id = $1
		RETURNING created_at`, a.ID, a.Title, a.Message, a.Active).Scan(&a.CreatedAt)
	if err == sql.ErrNoRows {
		return &errors.NotFoundError{Resource: "announcement", Identifier: a.ID}
	}
	if err != nil {
		return &errors.DatabaseError{Operation: "update announcement", Err: err}
	}
	return nil
}

func (s *DBServiceImpl) DeleteAnnouncement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = $1`, id)
	if err != nil {
		return &errors.DatabaseError{Operation: "delete announcement", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.NotFoundError{Resource: "announcement", Identifier: id}
	}
	return nil
}

// Settings

func (s *DBServiceImpl) LoadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM global_settings`)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "load settings", Err: err}
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, &errors.DatabaseError{Operation: "scan setting", Err: err}
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate settings", Err: err}
	}
	return values, nil
}

func (s *DBServiceImpl) SaveSettings(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errors.DatabaseError{Operation: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	for k, v := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO global_settings (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, k, v)
		if err != nil {
			return &errors.DatabaseError{Operation: "save setting " + k, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &errors.DatabaseError{Operation: "commit settings", Err: err}
	}
	return nil
}

// Password resets

func (s *DBServiceImpl) CreatePasswordReset(ctx context.Context, reset *PasswordReset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		reset.Token, reset.UserID, reset.ExpiresAt)
	if err != nil {
		return &errors.DatabaseError{Operation: "create password reset", Err: err}
	}
	return nil
}

func (s *DBServiceImpl) ConsumePasswordReset(ctx context.Context, token string, now time.Time) (string, error) {
	var userID string
	var expires time.Time
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM password_resets WHERE token = $1
		RETURNING user_id, expires_at`, token).Scan(&userID, &expires)
	if err == sql.ErrNoRows {
		return "", errors.ErrInvalidResetToken
	}
	if err != nil {
		return "", &errors.DatabaseError{Operation: "consume password reset", Err: err}
	}
	if now.After(expires) {
		return "", errors.ErrInvalidResetToken
	}
	return userID, nil
}

// Stats

func (s *DBServiceImpl) GetStats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM tasks),
			(SELECT COUNT(*) FROM users),
			(SELECT COALESCE(SUM(total_earned), 0) FROM users),
			(SELECT COALESCE(SUM(token_balance), 0) FROM users),
			(SELECT COALESCE(ROUND(AVG(reward)), 0)::bigint FROM tasks),
			(SELECT COUNT(*) FROM withdrawals WHERE status = 'pending')`).
		Scan(&st.TotalTasks, &st.TotalUsers, &st.TotalTokensDistributed, &st.TotalTokenBalance,
			&st.AvgTaskReward, &st.PendingWithdrawals)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "get stats", Err: err}
	}
	return &st, nil
}
