package handlers

import (
	"context"

	"taskManager/internal/models/task"
	"taskManager/internal/query"
	"taskManager/internal/stats"
)

type Service interface {
	HealthCheck(ctx context.Context) error
	List(ctx context.Context, params query.Params) ([]*task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	Create(ctx context.Context, payload task.Payload) (*task.Task, error)
	Update(ctx context.Context, id string, payload task.Payload) (*task.Task, error)
	SetStatus(ctx context.Context, id string, status string) (*task.Task, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (stats.Snapshot, error)
}
