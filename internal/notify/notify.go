package notify

import (
	"context"
	"strings"
	"time"

	"github.com/SIMPLYBOYS/sage_mining/internal/db"
	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
	"github.com/SIMPLYBOYS/sage_mining/internal/types"
	"github.com/SIMPLYBOYS/sage_mining/pkg/logger"
)

// Pusher delivers live events to connected clients.
type Pusher interface {
	SendToUser(userID string, event types.Event) error
	Broadcast(event types.Event) error
}

type nopPusher struct{}

func (nopPusher) SendToUser(string, types.Event) error { return nil }
func (nopPusher) Broadcast(types.Event) error          { return nil }

type Notifier struct {
	store  db.NotificationStore
	pusher Pusher
	now    func() time.Time
}

// NewNotifier builds a Notifier. A nil pusher disables live delivery.
func NewNotifier(store db.NotificationStore, pusher Pusher) *Notifier {
	if pusher == nil {
		pusher = nopPusher{}
	}
	return &Notifier{store: store, pusher: pusher, now: time.Now}
}

func validType(t string) bool {
	switch t {
	case db.NotificationTask, db.NotificationWithdrawal, db.NotificationReferral, db.NotificationAdmin:
		return true
	}
	return false
}

// Notify stores a notification for userID and pushes it to their live connections.
func (n *Notifier) Notify(ctx context.Context, userID, kind, title, message string) (*db.Notification, error) {
	if !validType(kind) {
		return nil, errors.Validation("unknown notification type %q", kind)
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(message) == "" {
		return nil, errors.Validation("Title and message are required")
	}

	note := &db.Notification{
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: n.now().UTC(),
	}
	if err := n.store.CreateNotification(ctx, note); err != nil {
		return nil, err
	}
	if err := n.pusher.SendToUser(userID, types.Event{Type: types.EventNotification, Payload: note}); err != nil {
		logger.Warn("Failed to push notification %s: %v", note.ID, err)
	}
	return note, nil
}

// NotifyAll copies a notification to every current user and pushes each copy to
// its owner. Users created later do not receive it.
func (n *Notifier) NotifyAll(ctx context.Context, kind, title, message string) (int64, error) {
	created, err := n.fanOut(ctx, kind, title, message)
	if err != nil {
		return 0, err
	}
	for i := range created {
		note := &created[i]
		if err := n.pusher.SendToUser(note.UserID, types.Event{Type: types.EventNotification, Payload: note}); err != nil {
			logger.Warn("Failed to push notification %s: %v", note.ID, err)
		}
	}
	return int64(len(created)), nil
}

// fanOut stores a copy of the notification for every current user without pushing it.
func (n *Notifier) fanOut(ctx context.Context, kind, title, message string) ([]db.Notification, error) {
	if !validType(kind) {
		return nil, errors.Validation("unknown notification type %q", kind)
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(message) == "" {
		return nil, errors.Validation("Title and message are required")
	}

	template := db.Notification{Type: kind, Title: title, Message: message, CreatedAt: n.now().UTC()}
	created, err := n.store.CreateNotificationForAll(ctx, template)
	if err != nil {
		return nil, err
	}
	logger.Info("Notification %q sent to %d users", title, len(created))
	return created, nil
}

// PushBalance tells the user's live clients about a new balance.
func (n *Notifier) PushBalance(userID string, balance int64, reason string) {
	event := types.Event{
		Type:    types.EventBalanceUpdate,
		Payload: types.BalanceUpdate{UserID: userID, TokenBalance: balance, Reason: reason},
	}
	if err := n.pusher.SendToUser(userID, event); err != nil {
		logger.Warn("Failed to push balance update for %s: %v", userID, err)
	}
}

// List returns the user's notifications newest first.
func (n *Notifier) List(ctx context.Context, userID string) ([]db.Notification, error) {
	notes, err := n.store.ListNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []db.Notification{}
	}
	return notes, nil
}

func (n *Notifier) MarkRead(ctx context.Context, userID, id string) error {
	return n.store.MarkNotificationRead(ctx, userID, id)
}

func (n *Notifier) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return n.store.MarkAllNotificationsRead(ctx, userID)
}

func (n *Notifier) Delete(ctx context.Context, userID, id string) error {
	return n.store.DeleteNotification(ctx, userID, id)
}
