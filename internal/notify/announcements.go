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

type Announcements struct {
	store    db.AnnouncementStore
	notifier *Notifier
	now      func() time.Time
}

func NewAnnouncements(store db.AnnouncementStore, notifier *Notifier) *Announcements {
	return &Announcements{store: store, notifier: notifier, now: time.Now}
}

// AnnouncementUpdate is a partial change; nil fields are left untouched.
type AnnouncementUpdate struct {
	Title   *string `json:"title"`
	Message *string `json:"message"`
	Active  *bool   `json:"active"`
}

// Create stores an active announcement and copies it to every user's notifications.
func (a *Announcements) Create(ctx context.Context, title, message string) (*db.Announcement, error) {
	title, message = strings.TrimSpace(title), strings.TrimSpace(message)
	if title == "" || message == "" {
		return nil, errors.Validation("Title and message are required")
	}

	ann := &db.Announcement{Title: title, Message: message, Active: true, CreatedAt: a.now().UTC()}
	if err := a.store.CreateAnnouncement(ctx, ann); err != nil {
		return nil, err
	}
	// Live clients get the single announcement event below instead of their copy.
	if _, err := a.notifier.fanOut(ctx, db.NotificationAdmin, title, message); err != nil {
		logger.Error("Failed to fan out announcement %s: %v", ann.ID, err)
	}
	if err := a.notifier.pusher.Broadcast(types.Event{Type: types.EventAnnouncement, Payload: ann}); err != nil {
		logger.Warn("Failed to broadcast announcement %s: %v", ann.ID, err)
	}
	return ann, nil
}

func (a *Announcements) List(ctx context.Context) ([]db.Announcement, error) {
	return a.list(ctx, false)
}

func (a *Announcements) ListActive(ctx context.Context) ([]db.Announcement, error) {
	return a.list(ctx, true)
}

func (a *Announcements) list(ctx context.Context, activeOnly bool) ([]db.Announcement, error) {
	anns, err := a.store.ListAnnouncements(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	if anns == nil {
		anns = []db.Announcement{}
	}
	return anns, nil
}

func (a *Announcements) Update(ctx context.Context, id string, u AnnouncementUpdate) (*db.Announcement, error) {
	ann, err := a.store.GetAnnouncement(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Title != nil {
		if strings.TrimSpace(*u.Title) == "" {
			return nil, errors.Validation("Title must not be empty")
		}
		ann.Title = strings.TrimSpace(*u.Title)
	}
	if u.Message != nil {
		if strings.TrimSpace(*u.Message) == "" {
			return nil, errors.Validation("Message must not be empty")
		}
		ann.Message = strings.TrimSpace(*u.Message)
	}
	if u.Active != nil {
		ann.Active = *u.Active
	}
	if err := a.store.UpdateAnnouncement(ctx, ann); err != nil {
		return nil, err
	}
	return ann, nil
}

func (a *Announcements) Delete(ctx context.Context, id string) error {
	return a.store.DeleteAnnouncement(ctx, id)
}
