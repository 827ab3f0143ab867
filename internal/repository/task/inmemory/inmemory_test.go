package inmemory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"taskManager/internal/models/task"
	"taskManager/internal/query"
	"taskManager/internal/repository/repotest"
	"taskManager/internal/repository/task/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type InMemorySuite struct {
	repotest.ContractSuite
}

func TestInMemoryContract(t *testing.T) {
	s := new(InMemorySuite)
	s.Fresh = func() repotest.Repository { return inmemory.NewTaskStorage() }
	suite.Run(t, s)
}

// TestTaskStorage_Isolation проверяет, что изменения снаружи не попадают в хранилище
func TestTaskStorage_Isolation(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewTaskStorage()

	input := &task.Task{Title: "Test Task", Status: task.StatusPending, Priority: task.PriorityLow, Tags: []string{"a"}}
	created, err := storage.Insert(ctx, input)
	require.NoError(t, err)
	assert.Empty(t, input.ID)

	created.Title = "изменено снаружи"
	created.Tags[0] = "b"
	input.Tags[0] = "c"

	got, err := storage.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test Task", got.Title)
	assert.Equal(t, []string{"a"}, got.Tags)
}

// TestTaskStorage_CanceledContext проверяет, что отменённый контекст не доходит до данных
func TestTaskStorage_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	storage := inmemory.NewTaskStorage()

	_, err := storage.Insert(ctx, &task.Task{Title: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = storage.Find(ctx, query.Default())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Error(t, storage.HealthCheck(ctx))

	n, err := storage.CountAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

// TestTaskStorage_ConcurrentAccess тестирует конкурентный доступ
func TestTaskStorage_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewTaskStorage()

	var wg sync.WaitGroup
	numGoroutines := 10
	tasksPerGoroutine := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			for j := 0; j < tasksPerGoroutine; j++ {
				created, err := storage.Insert(ctx, &task.Task{
					Title:    fmt.Sprintf("Task %d-%d", goroutineID, j),
					Status:   task.StatusPending,
					Priority: task.PriorityMedium,
				})
				if !assert.NoError(t, err) {
					return
				}
				_, err = storage.UpdateByID(ctx, created.ID, task.NewPatch(task.WithStatus(task.StatusCompleted)))
				assert.NoError(t, err)
				_, err = storage.Find(ctx, query.Default())
				assert.NoError(t, err)
			}
		}(i)
	}

	wg.Wait()

	n, err := storage.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(numGoroutines*tasksPerGoroutine), n)

	groups, err := storage.GroupCountBy(ctx, task.GroupByStatus)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"completed": n}, groups)

	// createdAt строго возрастает, поэтому порядок по умолчанию однозначен
	tasks, err := storage.Find(ctx, query.Default())
	require.NoError(t, err)
	for i := 1; i < len(tasks); i++ {
		assert.True(t, tasks[i-1].CreatedAt.After(tasks[i].CreatedAt))
	}
}
