package service

import (
	"context"
	"errors"
	"fmt"

	"taskManager/internal/models/task"
	"taskManager/internal/query"
	rep "taskManager/internal/repository"
	"taskManager/internal/stats"
)

// здесь ошибки репозитория и валидации превращаются в ошибки бизнес-логики.
// Сервис не логирует и не повторяет запросы: это дело внешних обёрток.

type TaskService struct {
	repo          TaskRepository
	stats         *stats.Aggregator
	canTransition func(from, to task.Status) bool
}

type Option func(*TaskService)

// WithTransitionPolicy заменяет правило смены статуса; по умолчанию task.CanTransition
func WithTransitionPolicy(policy func(from, to task.Status) bool) Option {
	return func(s *TaskService) {
		if policy != nil {
			s.canTransition = policy
		}
	}
}

func NewTaskService(repo TaskRepository, options ...Option) *TaskService {
	s := &TaskService{
		repo:          repo,
		stats:         stats.NewAggregator(repo),
		canTransition: task.CanTransition,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *TaskService) HealthCheck(ctx context.Context) error {
	if err := s.repo.HealthCheck(ctx); err != nil {
		return NewStorageUnavailable("health", fmt.Errorf("проверка здоровья сервиса: %w", err))
	}
	return nil
}

// List - пустой список тоже успех
func (s *TaskService) List(ctx context.Context, params query.Params) ([]*task.Task, error) {
	tasks, err := s.repo.Find(ctx, query.Compose(params))
	if err != nil {
		return nil, NewStorageUnavailable("list", fmt.Errorf("получение задач: %w", err))
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, id string) (*task.Task, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.repoError("get", id, err)
	}
	return t, nil
}

// Create не обращается к хранилищу, пока кандидат не прошёл валидацию
func (s *TaskService) Create(ctx context.Context, payload task.Payload) (*task.Task, error) {
	candidate, err := task.ValidateCreate(payload)
	if err != nil {
		return nil, validationError(err)
	}

	created, err := s.repo.Insert(ctx, candidate)
	if err != nil {
		return nil, NewStorageUnavailable("create", fmt.Errorf("добавление задачи: %w", err))
	}
	return created, nil
}

func (s *TaskService) Update(ctx context.Context, id string, payload task.Payload) (*task.Task, error) {
	patch, err := task.ValidateUpdate(payload)
	if err != nil {
		return nil, validationError(err)
	}
	return s.apply(ctx, "update", id, patch)
}

// SetStatus - минимальное обновление только статуса; результат совпадает с Update({status})
func (s *TaskService) SetStatus(ctx context.Context, id string, status string) (*task.Task, error) {
	patch, err := task.StatusPatch(status)
	if err != nil {
		return nil, NewInvalidStatus(status)
	}
	return s.apply(ctx, "set_status", id, patch)
}

func (s *TaskService) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return NewStorageUnavailable("delete", fmt.Errorf("удаление задачи: %w", err))
	}
	if !deleted {
		return NewNotFound(id)
	}
	return nil
}

func (s *TaskService) Stats(ctx context.Context) (stats.Snapshot, error) {
	snap, err := s.stats.Snapshot(ctx)
	if err != nil {
		return stats.Snapshot{}, NewStorageUnavailable("stats", err)
	}
	return snap, nil
}

// apply проверяет переход статуса по текущему состоянию задачи, если патч его меняет
func (s *TaskService) apply(ctx context.Context, op, id string, patch task.Patch) (*task.Task, error) {
	if patch.Status.Set {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, s.repoError(op, id, err)
		}
		if !s.canTransition(current.Status, patch.Status.Value) {
			return nil, NewInvalidStatus(string(patch.Status.Value))
		}
	}

	updated, err := s.repo.UpdateByID(ctx, id, patch)
	if err != nil {
		return nil, s.repoError(op, id, err)
	}
	return updated, nil
}

func (s *TaskService) repoError(op, id string, err error) error {
	if errors.Is(err, rep.ErrNotFound) {
		return NewNotFound(id)
	}
	return NewStorageUnavailable(op, fmt.Errorf("задача %s: %w", id, err))
}

func validationError(err error) error {
	var verrs task.ValidationErrors
	if errors.As(err, &verrs) {
		return NewValidationFailed(verrs)
	}
	return NewBusinessError(CodeValidationFailed, err.Error())
}
