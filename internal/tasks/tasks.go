package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SIMPLYBOYS/sage_mining/internal/db"
	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
	"github.com/SIMPLYBOYS/sage_mining/internal/notify"
	"github.com/SIMPLYBOYS/sage_mining/pkg/logger"
)

const (
	DefaultReward     = 500
	DefaultDifficulty = db.DifficultyMedium
	DefaultType       = db.TaskTypeMining
	DefaultTimeframe  = 4 // minutes
)

var taskTypes = map[string]bool{
	db.TaskTypeMining:  true,
	db.TaskTypeSocial:  true,
	db.TaskTypeYoutube: true,
	db.TaskTypeArticle: true,
	db.TaskTypeTwitter: true,
	db.TaskTypeAdmob:   true,
}

var difficulties = map[string]bool{
	db.DifficultyEasy:   true,
	db.DifficultyMedium: true,
	db.DifficultyHard:   true,
}

// hasLink reports whether tasks of type t carry a url or handle.
func hasLink(t string) bool {
	switch t {
	case db.TaskTypeSocial, db.TaskTypeYoutube, db.TaskTypeArticle, db.TaskTypeTwitter:
		return true
	}
	return false
}

type Input struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Reward      int64  `json:"reward"`
	Difficulty  string `json:"difficulty"`
	Type        string `json:"type"`
	Timeframe   int    `json:"timeframe"`
	Link        string `json:"link"`
}

// Update carries the fields an admin edit may change. CompletedBy is never editable.
type Update struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Reward      *int64  `json:"reward"`
	Difficulty  *string `json:"difficulty"`
	Type        *string `json:"type"`
	Timeframe   *int    `json:"timeframe"`
	Link        *string `json:"link"`
}

type Catalog struct {
	store    db.TaskStore
	notifier *notify.Notifier
	now      func() time.Time
}

func NewCatalog(store db.TaskStore, notifier *notify.Notifier) *Catalog {
	return &Catalog{store: store, notifier: notifier, now: time.Now}
}

// normalize validates t in place and applies the per-type field rules.
func normalize(t *db.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	t.Link = strings.TrimSpace(t.Link)

	if t.Title == "" || t.Description == "" {
		return errors.Validation("Title and description are required")
	}
	if t.Reward <= 0 {
		return errors.Validation("Reward must be a positive number")
	}
	if !taskTypes[t.Type] {
		return errors.Validation("Unknown task type %q", t.Type)
	}
	if !difficulties[t.Difficulty] {
		return errors.Validation("Unknown difficulty %q", t.Difficulty)
	}

	if t.IsMining() {
		if t.Timeframe <= 0 {
			return errors.Validation("Timeframe must be a positive number of minutes")
		}
	} else {
		t.Timeframe = 0
	}
	if !hasLink(t.Type) {
		t.Link = ""
	}
	return nil
}

func (c *Catalog) List(ctx context.Context) ([]db.Task, error) {
	tasks, err := c.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []db.Task{}
	}
	return tasks, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*db.Task, error) {
	return c.store.GetTask(ctx, id)
}

// Create stores a new task and tells every user about it.
func (c *Catalog) Create(ctx context.Context, in Input) (*db.Task, error) {
	task := &db.Task{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Reward:      in.Reward,
		Difficulty:  in.Difficulty,
		Type:        in.Type,
		Timeframe:   in.Timeframe,
		Link:        in.Link,
		CompletedBy: []string{},
		CreatedAt:   c.now().UTC(),
	}
	if task.Reward == 0 {
		task.Reward = DefaultReward
	}
	if task.Difficulty == "" {
		task.Difficulty = DefaultDifficulty
	}
	if task.Type == "" {
		task.Type = DefaultType
	}
	if task.IsMining() && task.Timeframe == 0 {
		task.Timeframe = DefaultTimeframe
	}
	if err := normalize(task); err != nil {
		return nil, err
	}

	if err := c.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	logger.Info("Task created: %s (%s, %d ST)", task.ID, task.Type, task.Reward)

	message := fmt.Sprintf("A new task %q is now available. Reward: %d ST", task.Title, task.Reward)
	if _, err := c.notifier.NotifyAll(ctx, db.NotificationTask, "New Task Available", message); err != nil {
		logger.Error("Failed to announce task %s: %v", task.ID, err)
	}
	return task, nil
}

func (c *Catalog) Update(ctx context.Context, id string, u Update) (*db.Task, error) {
	task, err := c.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Title != nil {
		task.Title = *u.Title
	}
	if u.Description != nil {
		task.Description = *u.Description
	}
	if u.Reward != nil {
		task.Reward = *u.Reward
	}
	if u.Difficulty != nil {
		task.Difficulty = *u.Difficulty
	}
	if u.Type != nil {
		task.Type = *u.Type
	}
	if u.Timeframe != nil {
		task.Timeframe = *u.Timeframe
	}
	if u.Link != nil {
		task.Link = *u.Link
	}
	if task.IsMining() && task.Timeframe == 0 {
		task.Timeframe = DefaultTimeframe
	}
	if err := normalize(task); err != nil {
		return nil, err
	}

	if err := c.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	logger.Info("Task updated: %s", task.ID)
	return task, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	logger.Info("Task deleted: %s", id)
	return nil
}
