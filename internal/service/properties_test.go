package service_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"taskManager/internal/models/task"
	"taskManager/internal/query"
	"taskManager/internal/repository/task/inmemory"
	"taskManager/internal/repository/task/sqlite"
	"taskManager/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// PropertiesSuite проверяет свойства сервиса поверх настоящего хранилища
type PropertiesSuite struct {
	suite.Suite
	newRepo func(t *testing.T) service.TaskRepository
	svc     *service.TaskService
	ctx     context.Context
}

func (s *PropertiesSuite) SetupTest() {
	s.ctx = context.Background()
	s.svc = service.NewTaskService(s.newRepo(s.T()))
}

func TestPropertiesInMemory(t *testing.T) {
	suite.Run(t, &PropertiesSuite{newRepo: func(*testing.T) service.TaskRepository {
		return inmemory.NewTaskStorage()
	}})
}

func TestPropertiesSQLite(t *testing.T) {
	suite.Run(t, &PropertiesSuite{newRepo: func(t *testing.T) service.TaskRepository {
		st, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(st.Close)
		return st
	}})
}

func (s *PropertiesSuite) count() int64 {
	snap, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	return snap.Total
}

// toPayload повторяет путь клиента: задача сериализуется в JSON и декодируется обратно в сырой объект
func toPayload(t *testing.T, tk *task.Task) task.Payload {
	raw, err := json.Marshal(tk)
	require.NoError(t, err)
	var p task.Payload
	require.NoError(t, json.Unmarshal(raw, &p))
	return p
}

func (s *PropertiesSuite) TestCreateThenGetReturnsDefaultedPayload() {
	payloads := []task.Payload{
		{"title": "минимальная"},
		{"title": "полная", "description": "d", "status": "in-progress", "priority": "low",
			"dueDate": "2031-02-03T04:05:06Z", "tags": []any{"x", "y"}},
		{"title": "  с пробелами  ", "description": "", "tags": []any{}},
	}

	for _, p := range payloads {
		created, err := s.svc.Create(s.ctx, p)
		s.Require().NoError(err)

		got, err := s.svc.Get(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(created.Title, got.Title)
		s.Equal(created.Status, got.Status)
		s.Equal(created.Priority, got.Priority)
		s.Equal(created.Description, got.Description)
		s.Equal(created.Tags, got.Tags)

		if _, ok := p["status"]; !ok {
			s.Equal(task.StatusPending, got.Status)
		}
		if _, ok := p["priority"]; !ok {
			s.Equal(task.PriorityMedium, got.Priority)
		}
	}
}

func (s *PropertiesSuite) TestInvalidTitleIsNeverPersisted() {
	before := s.count()

	for _, p := range []task.Payload{
		{},
		{"description": "без заголовка"},
		{"title": strings.Repeat("a", 101)},
		{"title": "   "},
		{"title": "ok", "priority": "urgent"},
	} {
		_, err := s.svc.Create(s.ctx, p)
		s.True(service.HasCode(err, service.CodeValidationFailed))
	}

	s.Equal(before, s.count())
}

func (s *PropertiesSuite) TestUpdateStatusEqualsSetStatus() {
	a, err := s.svc.Create(s.ctx, task.Payload{"title": "одинаковая", "priority": "high", "tags": []any{"t"}})
	s.Require().NoError(err)
	b, err := s.svc.Create(s.ctx, task.Payload{"title": "одинаковая", "priority": "high", "tags": []any{"t"}})
	s.Require().NoError(err)

	viaUpdate, err := s.svc.Update(s.ctx, a.ID, task.Payload{"status": "completed"})
	s.Require().NoError(err)
	viaShortcut, err := s.svc.SetStatus(s.ctx, b.ID, "completed")
	s.Require().NoError(err)

	s.Equal(viaUpdate.Title, viaShortcut.Title)
	s.Equal(viaUpdate.Status, viaShortcut.Status)
	s.Equal(viaUpdate.Priority, viaShortcut.Priority)
	s.Equal(viaUpdate.Description, viaShortcut.Description)
	s.Equal(viaUpdate.DueDate, viaShortcut.DueDate)
	s.Equal(viaUpdate.Tags, viaShortcut.Tags)
}

func (s *PropertiesSuite) TestInvalidSetStatusLeavesTaskUnchanged() {
	created, err := s.svc.Create(s.ctx, task.Payload{"title": "не трогать"})
	s.Require().NoError(err)

	_, err = s.svc.SetStatus(s.ctx, created.ID, "bogus")
	s.True(service.HasCode(err, service.CodeInvalidStatus))

	got, err := s.svc.Get(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.Status, got.Status)
	s.True(created.UpdatedAt.Equal(got.UpdatedAt))
}

func (s *PropertiesSuite) TestFilterReturnsExactSubsetInOrder() {
	for _, p := range []task.Payload{
		{"title": "c", "status": "completed"},
		{"title": "a", "status": "pending"},
		{"title": "b", "status": "completed"},
		{"title": "d", "status": "in-progress"},
		{"title": "a", "status": "completed"},
	} {
		_, err := s.svc.Create(s.ctx, p)
		s.Require().NoError(err)
	}

	tasks, err := s.svc.List(s.ctx, query.Params{Status: "completed", SortBy: "title", SortOrder: "asc"})
	s.Require().NoError(err)

	var titles []string
	for _, tk := range tasks {
		s.Equal(task.StatusCompleted, tk.Status)
		titles = append(titles, tk.Title)
	}
	s.Equal([]string{"a", "b", "c"}, titles)

	tasks, err = s.svc.List(s.ctx, query.Params{Status: "nonexistent"})
	s.Require().NoError(err)
	s.Empty(tasks)
}

func (s *PropertiesSuite) TestStatsEmptyThenOneCompleted() {
	snap, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(0), snap.Total)
	s.Equal(0, snap.CompletionRate)
	for _, st := range task.Statuses() {
		s.Equal(int64(0), snap.ByStatus[st])
	}
	for _, p := range task.Priorities() {
		s.Equal(int64(0), snap.ByPriority[p])
	}

	_, err = s.svc.Create(s.ctx, task.Payload{"title": "готово", "status": "completed"})
	s.Require().NoError(err)

	snap, err = s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), snap.Total)
	s.Equal(int64(1), snap.ByStatus[task.StatusCompleted])
	s.Equal(100, snap.CompletionRate)
}

func (s *PropertiesSuite) TestDeleteTwice() {
	created, err := s.svc.Create(s.ctx, task.Payload{"title": "одноразовая"})
	s.Require().NoError(err)

	s.NoError(s.svc.Delete(s.ctx, created.ID))
	err = s.svc.Delete(s.ctx, created.ID)
	s.True(service.HasCode(err, service.CodeNotFound))
}

func (s *PropertiesSuite) TestRoundTripRefreshesOnlyUpdatedAt() {
	created, err := s.svc.Create(s.ctx, task.Payload{
		"title":       "круг",
		"description": "описание",
		"priority":    "high",
		"dueDate":     "2030-06-15T08:30:00.123456Z",
		"tags":        []any{"b", "a"},
	})
	s.Require().NoError(err)
	time.Sleep(2 * time.Millisecond)

	first, err := s.svc.Update(s.ctx, created.ID, toPayload(s.T(), created))
	s.Require().NoError(err)
	second, err := s.svc.Update(s.ctx, first.ID, toPayload(s.T(), first))
	s.Require().NoError(err)

	for _, got := range []*task.Task{first, second} {
		s.Equal(created.ID, got.ID)
		s.Equal(created.Title, got.Title)
		s.Equal(created.Description, got.Description)
		s.Equal(created.Status, got.Status)
		s.Equal(created.Priority, got.Priority)
		s.Require().NotNil(got.DueDate)
		s.True(created.DueDate.Equal(*got.DueDate))
		s.Equal(created.Tags, got.Tags)
		s.True(created.CreatedAt.Equal(got.CreatedAt))
	}
	s.True(first.UpdatedAt.After(created.UpdatedAt))
	assert.False(s.T(), second.UpdatedAt.Before(first.UpdatedAt))
}
