package inmemory

import (
	"context"
	"slices"
	"sync"
	"time"

	"taskManager/internal/logger"
	"taskManager/internal/models/task"
	"taskManager/internal/query"
	repo "taskManager/internal/repository"

	"github.com/google/uuid"
)

// TaskStorage хранит копии задач: ни вызывающий код, ни хранилище не видят изменений друг друга
type TaskStorage struct {
	storage map[string]*task.Task
	mtx     *sync.RWMutex
	ids     []string
	now     func() time.Time
	last    time.Time
}

func NewTaskStorage() *TaskStorage {
	return &TaskStorage{
		storage: make(map[string]*task.Task),
		mtx:     &sync.RWMutex{},
		ids:     []string{},
		now:     time.Now,
	}
}

func (s *TaskStorage) HealthCheck(ctx context.Context) error {
	logger.Debug("Repository: Соединение стабильно")
	return ctx.Err()
}

func (s *TaskStorage) Close() {
	logger.Info("Repository: Хранилище в памяти закрыто")
}

func (s *TaskStorage) Insert(ctx context.Context, taskToCreate *task.Task) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	stored := taskToCreate.Clone()
	stored.ID = uuid.NewString()
	stored.CreatedAt = s.timestamp()
	stored.UpdatedAt = stored.CreatedAt

	s.storage[stored.ID] = stored
	s.ids = append(s.ids, stored.ID)
	return stored.Clone(), nil
}

func (s *TaskStorage) UpdateByID(ctx context.Context, id string, patch task.Patch) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	existed, ok := s.storage[id]
	if !ok {
		return nil, repo.ErrNotFound
	}

	updated := existed.Clone()
	patch.Apply(updated)
	updated.UpdatedAt = s.timestamp()
	s.storage[id] = updated

	return updated.Clone(), nil
}

func (s *TaskStorage) FindByID(ctx context.Context, id string) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	taskToGet, ok := s.storage[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return taskToGet.Clone(), nil
}

func (s *TaskStorage) DeleteByID(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.storage[id]; !ok {
		return false, nil
	}

	delete(s.storage, id)
	s.ids = slices.DeleteFunc(s.ids, func(v string) bool { return v == id })
	return true, nil
}

// Find фильтрует и сортирует по дескриптору
func (s *TaskStorage) Find(ctx context.Context, d query.Descriptor) ([]*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mtx.RLock()
	res := []*task.Task{}
	for _, id := range s.ids {
		t := s.storage[id]
		if d.Filter.Matches(t) {
			res = append(res, t.Clone())
		}
	}
	s.mtx.RUnlock()

	slices.SortStableFunc(res, func(a, b *task.Task) int {
		switch {
		case d.Sort.Less(a, b):
			return -1
		case d.Sort.Less(b, a):
			return 1
		}
		return 0
	})
	return res, nil
}

func (s *TaskStorage) CountAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return int64(len(s.storage)), nil
}

func (s *TaskStorage) GroupCountBy(ctx context.Context, field task.GroupField) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	groups := make(map[string]int64)
	for _, t := range s.storage {
		switch field {
		case task.GroupByStatus:
			groups[string(t.Status)]++
		case task.GroupByPriority:
			groups[string(t.Priority)]++
		}
	}
	return groups, nil
}

// timestamp строго возрастает, чтобы сортировка по createdAt была однозначной даже при совпадении часов
func (s *TaskStorage) timestamp() time.Time {
	now := s.now().UTC().Truncate(time.Microsecond)
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}
