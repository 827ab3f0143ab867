package service

import (
	"context"

	"taskManager/internal/models/task"
	"taskManager/internal/query"
)

// TaskRepository - узкий контракт хранилища. Отсутствие задачи - repository.ErrNotFound,
// любая другая ошибка считается недоступностью хранилища.
type TaskRepository interface {
	Find(ctx context.Context, d query.Descriptor) ([]*task.Task, error)
	FindByID(ctx context.Context, id string) (*task.Task, error)
	Insert(ctx context.Context, t *task.Task) (*task.Task, error)
	UpdateByID(ctx context.Context, id string, patch task.Patch) (*task.Task, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	CountAll(ctx context.Context) (int64, error)
	GroupCountBy(ctx context.Context, field task.GroupField) (map[string]int64, error)
	HealthCheck(ctx context.Context) error
}
