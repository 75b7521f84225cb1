package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SIMPLYBOYS/sage_mining/internal/db"
	"github.com/SIMPLYBOYS/sage_mining/internal/types"
)

type MockPusher struct {
	mock.Mock
}

func (m *MockPusher) SendToUser(userID string, event types.Event) error {
	args := m.Called(userID, event)
	return args.Error(0)
}

func (m *MockPusher) Broadcast(event types.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

func seedUsers(t *testing.T, store *db.MemoryDB, emails ...string) []*db.User {
	var users []*db.User
	for _, email := range emails {
		u := &db.User{FullName: email, Email: email, ReferralCode: "CODE-" + email}
		require.NoError(t, store.CreateUser(context.Background(), u))
		users = append(users, u)
	}
	return users
}

func TestNotifyStoresAndPushes(t *testing.T) {
	store := db.NewMemoryDB()
	users := seedUsers(t, store, "ada@example.com")
	pusher := new(MockPusher)
	pusher.On("SendToUser", users[0].ID, mock.MatchedBy(func(e types.Event) bool {
		return e.Type == types.EventNotification
	})).Return(nil)

	n := NewNotifier(store, pusher)
	note, err := n.Notify(context.Background(), users[0].ID, db.NotificationTask, "Task Completed", "You earned 500 ST")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", note.Email)
	assert.False(t, note.Read)

	list, err := n.List(context.Background(), users[0].ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	pusher.AssertExpectations(t)
}

func TestNotifyValidation(t *testing.T) {
	n := NewNotifier(db.NewMemoryDB(), nil)

	_, err := n.Notify(context.Background(), "u1", "sms", "t", "m")
	assert.Error(t, err)
	_, err = n.Notify(context.Background(), "u1", db.NotificationAdmin, "", "m")
	assert.Error(t, err)
	_, err = n.Notify(context.Background(), "missing", db.NotificationAdmin, "t", "m")
	assert.Error(t, err)
}

func TestNotifyAllOnlyReachesExistingUsers(t *testing.T) {
	store := db.NewMemoryDB()
	users := seedUsers(t, store, "ada@example.com", "bob@example.com")
	n := NewNotifier(store, nil)

	count, err := n.NotifyAll(context.Background(), db.NotificationAdmin, "Maintenance", "Tonight at 10pm")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	late := seedUsers(t, store, "carol@example.com")
	for _, u := range users {
		list, _ := n.List(context.Background(), u.ID)
		assert.Len(t, list, 1)
	}
	list, _ := n.List(context.Background(), late[0].ID)
	assert.Empty(t, list)
}

func TestNotifyAllPushesEachCopyToItsOwner(t *testing.T) {
	store := db.NewMemoryDB()
	users := seedUsers(t, store, "ada@example.com", "bob@example.com")
	pusher := new(MockPusher)
	for _, u := range users {
		owner := u.ID
		pusher.On("SendToUser", owner, mock.MatchedBy(func(e types.Event) bool {
			note, ok := e.Payload.(*db.Notification)
			return ok && e.Type == types.EventNotification && note.ID != "" && note.UserID == owner
		})).Return(nil).Once()
	}
	n := NewNotifier(store, pusher)
	ctx := context.Background()

	count, err := n.NotifyAll(ctx, db.NotificationTask, "New Task Available", "Go mine")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	pusher.AssertExpectations(t)
	pusher.AssertNotCalled(t, "Broadcast", mock.Anything)

	// The pushed copy is the stored one, so its owner can mark it read.
	pushed := pusher.Calls[0].Arguments.Get(1).(types.Event).Payload.(*db.Notification)
	require.NoError(t, n.MarkRead(ctx, pushed.UserID, pushed.ID))
}

func TestReadAndDelete(t *testing.T) {
	store := db.NewMemoryDB()
	users := seedUsers(t, store, "ada@example.com", "bob@example.com")
	n := NewNotifier(store, nil)
	ctx := context.Background()

	first, err := n.Notify(ctx, users[0].ID, db.NotificationTask, "one", "one")
	require.NoError(t, err)
	_, err = n.Notify(ctx, users[0].ID, db.NotificationTask, "two", "two")
	require.NoError(t, err)

	assert.Error(t, n.MarkRead(ctx, users[1].ID, first.ID), "other users cannot touch it")
	require.NoError(t, n.MarkRead(ctx, users[0].ID, first.ID))

	marked, err := n.MarkAllRead(ctx, users[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	require.NoError(t, n.Delete(ctx, users[0].ID, first.ID))
	list, _ := n.List(ctx, users[0].ID)
	assert.Len(t, list, 1)
}

func TestAnnouncements(t *testing.T) {
	store := db.NewMemoryDB()
	users := seedUsers(t, store, "ada@example.com")
	pusher := new(MockPusher)
	pusher.On("Broadcast", mock.Anything).Return(nil)
	a := NewAnnouncements(store, NewNotifier(store, pusher))
	ctx := context.Background()

	ann, err := a.Create(ctx, "Launch", "Season two starts today")
	require.NoError(t, err)
	assert.True(t, ann.Active)

	notes, _ := store.ListNotifications(ctx, users[0].ID)
	require.Len(t, notes, 1)
	assert.Equal(t, db.NotificationAdmin, notes[0].Type)

	inactive := false
	updated, err := a.Update(ctx, ann.ID, AnnouncementUpdate{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, "Launch", updated.Title)

	active, err := a.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, _ := a.List(ctx)
	assert.Len(t, all, 1)

	require.NoError(t, a.Delete(ctx, ann.ID))
	assert.Error(t, a.Delete(ctx, ann.ID))

	_, err = a.Create(ctx, " ", "x")
	assert.Error(t, err)
	pusher.AssertNumberOfCalls(t, "Broadcast", 1)
	pusher.AssertCalled(t, "Broadcast", mock.MatchedBy(func(e types.Event) bool {
		return e.Type == types.EventAnnouncement && e.Payload.(*db.Announcement).ID == ann.ID
	}))
	pusher.AssertNotCalled(t, "SendToUser", mock.Anything, mock.Anything)
}
