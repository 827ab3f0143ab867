package task

import (
	"slices"
	"time"
)

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Status string
type Priority string

const StatusPending Status = "pending"
const StatusInProgress Status = "in-progress"
const StatusCompleted Status = "completed"

const PriorityLow Priority = "low"
const PriorityMedium Priority = "medium"
const PriorityHigh Priority = "high"

const DefaultStatus = StatusPending
const DefaultPriority = PriorityMedium

// GroupField - поле, по которому репозиторий умеет группировать и считать задачи
type GroupField string

const GroupByStatus GroupField = "status"
const GroupByPriority GroupField = "priority"

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
)

// Statuses возвращает закрытое множество статусов в порядке жизненного цикла
func Statuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusCompleted}
}

func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh}
}

func (s Status) Valid() bool {
	return slices.Contains(Statuses(), s)
}

func (p Priority) Valid() bool {
	return slices.Contains(Priorities(), p)
}

func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	return s, s.Valid()
}

func ParsePriority(raw string) (Priority, bool) {
	p := Priority(raw)
	return p, p.Valid()
}

// Clone возвращает глубокую копию, чтобы хранилища не делили указатели с вызывающим кодом
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Description != nil {
		d := *t.Description
		c.Description = &d
	}
	if t.DueDate != nil {
		due := *t.DueDate
		c.DueDate = &due
	}
	c.Tags = slices.Clone(t.Tags)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c
}

// IsOverdue - производный признак: срок прошёл, а задача не завершена. Не хранится.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.Status != StatusCompleted && t.DueDate.Before(now)
}
