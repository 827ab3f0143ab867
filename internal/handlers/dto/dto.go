package dto

import (
	"time"

	"taskManager/internal/models/task"
	"taskManager/internal/stats"
)

type TaskResponse struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description *string       `json:"description,omitempty"`
	Status      task.Status   `json:"status"`
	Priority    task.Priority `json:"priority"`
	DueDate     *time.Time    `json:"dueDate,omitempty"`
	Tags        []string      `json:"tags"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	IsOverdue   bool          `json:"isOverdue"`
}

type StatsResponse struct {
	Total          int64                   `json:"total"`
	ByStatus       map[task.Status]int64   `json:"byStatus"`
	ByPriority     map[task.Priority]int64 `json:"byPriority"`
	CompletionRate int                     `json:"completionRate"`
}

// FromTask считает isOverdue на момент ответа, в хранилище признак не попадает
func FromTask(t *task.Task, now time.Time) TaskResponse {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		DueDate:     t.DueDate,
		Tags:        tags,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		IsOverdue:   t.IsOverdue(now),
	}
}

func FromTaskList(tasks []*task.Task, now time.Time) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = FromTask(t, now)
	}
	return result
}

func FromSnapshot(s stats.Snapshot) StatsResponse {
	return StatsResponse{
		Total:          s.Total,
		ByStatus:       s.ByStatus,
		ByPriority:     s.ByPriority,
		CompletionRate: s.CompletionRate,
	}
}
