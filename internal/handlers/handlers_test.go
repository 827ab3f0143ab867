package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskManager/internal/handlers"
	"taskManager/internal/models/task"
	"taskManager/internal/query"
	"taskManager/internal/service"
	"taskManager/internal/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTaskService - мок сервиса
type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTaskService) List(ctx context.Context, params query.Params) ([]*task.Task, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Task), args.Error(1)
}

func (m *MockTaskService) Get(ctx context.Context, id string) (*task.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskService) Create(ctx context.Context, payload task.Payload) (*task.Task, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskService) Update(ctx context.Context, id string, payload task.Payload) (*task.Task, error) {
	args := m.Called(ctx, id, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskService) SetStatus(ctx context.Context, id string, status string) (*task.Task, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskService) Stats(ctx context.Context) (stats.Snapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(stats.Snapshot), args.Error(1)
}

var _ handlers.Service = (*MockTaskService)(nil)

const taskID = "6f1c2a4e-8d7b-4c1e-9a55-0b2f3c4d5e6f"

var errConnLost = errors.New("connection lost")

func sampleTask() *task.Task {
	now := time.Now().UTC()
	return &task.Task{
		ID:        taskID,
		Title:     "Test Task",
		Status:    task.StatusPending,
		Priority:  task.PriorityMedium,
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// serve прогоняет запрос через настоящий роутер
func serve(t *testing.T, svc handlers.Service, method, target, body, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	router := handlers.NewRouter(handlers.NewTaskHandler(svc), handlers.RouterConfig{
		RequestTimeout: 5 * time.Second,
		Metrics:        http.NotFoundHandler(),
	})

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

// TestTaskHandler_HealthCheck тестирует оба адреса проверки здоровья
func TestTaskHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		setupMock      func(*MockTaskService)
		expectedStatus int
	}{
		{
			name: "success - healthy",
			path: "/api/health",
			setupMock: func(m *MockTaskService) {
				m.On("HealthCheck", mock.Anything).Return(nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "success - legacy path",
			path: "/health",
			setupMock: func(m *MockTaskService) {
				m.On("HealthCheck", mock.Anything).Return(nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "error - unhealthy",
			path: "/api/health",
			setupMock: func(m *MockTaskService) {
				m.On("HealthCheck", mock.Anything).Return(service.NewStorageUnavailable("health", errConnLost))
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockTaskService)
			tt.setupMock(mockService)

			w := serve(t, mockService, http.MethodGet, tt.path, "", "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), "task-manager")
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

			mockService.AssertExpectations(t)
		})
	}
}

// TestTaskHandler_ListTasks проверяет разбор параметров запроса и конверт ответа
func TestTaskHandler_ListTasks(t *testing.T) {
	tests := []struct {
		name           string
		target         string
		params         query.Params
		result         []*task.Task
		err            error
		expectedStatus int
		expectedCount  float64
	}{
		{
			name:           "success - no params",
			target:         "/api/tasks",
			params:         query.Params{},
			result:         []*task.Task{sampleTask(), sampleTask()},
			expectedStatus: http.StatusOK,
			expectedCount:  2,
		},
		{
			name:           "success - filters and sort",
			target:         "/api/tasks?status=completed&priority=high&sortBy=title&sortOrder=asc",
			params:         query.Params{Status: "completed", Priority: "high", SortBy: "title", SortOrder: "asc"},
			result:         []*task.Task{},
			expectedStatus: http.StatusOK,
			expectedCount:  0,
		},
		{
			name:           "success - sort aliases",
			target:         "/api/tasks?sortField=dueDate&sortDirection=desc",
			params:         query.Params{SortBy: "dueDate", SortOrder: "desc"},
			result:         []*task.Task{sampleTask()},
			expectedStatus: http.StatusOK,
			expectedCount:  1,
		},
		{
			name:           "error - storage unavailable",
			target:         "/api/tasks",
			params:         query.Params{},
			err:            service.NewStorageUnavailable("list", errConnLost),
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockTaskService)
			if tt.err != nil {
				mockService.On("List", mock.Anything, tt.params).Return(nil, tt.err)
			} else {
				mockService.On("List", mock.Anything, tt.params).Return(tt.result, nil)
			}

			w := serve(t, mockService, http.MethodGet, tt.target, "", "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			body := decode(t, w)

			if tt.err == nil {
				assert.Equal(t, true, body["success"])
				assert.Equal(t, tt.expectedCount, body["count"])
				assert.Len(t, body["data"], int(tt.expectedCount))
			} else {
				assert.Equal(t, false, body["success"])
				assert.Equal(t, "Error fetching tasks", body["message"])
				assert.NotContains(t, w.Body.String(), errConnLost.Error())
			}

			mockService.AssertExpectations(t)
		})
	}
}

// TestTaskHandler_GetTaskByID тестирует получение задачи по ID
func TestTaskHandler_GetTaskByID(t *testing.T) {
	t.Run("success - get task", func(t *testing.T) {
		mockService := new(MockTaskService)
		mockService.On("Get", mock.Anything, taskID).Return(sampleTask(), nil)

		w := serve(t, mockService, http.MethodGet, "/api/tasks/"+taskID, "", "")

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		data := body["data"].(map[string]any)
		assert.Equal(t, taskID, data["id"])
		assert.Equal(t, "Test Task", data["title"])
		assert.Equal(t, false, data["isOverdue"])
		assert.Equal(t, []any{}, data["tags"])
		mockService.AssertExpectations(t)
	})

	t.Run("error - task not found", func(t *testing.T) {
		mockService := new(MockTaskService)
		mockService.On("Get", mock.Anything, "missing").Return(nil, service.NewNotFound("missing"))

		w := serve(t, mockService, http.MethodGet, "/api/tasks/missing", "", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Task not found", body["message"])
		mockService.AssertExpectations(t)
	})

	t.Run("success - overdue flag is derived", func(t *testing.T) {
		overdue := sampleTask()
		past := time.Now().Add(-48 * time.Hour).UTC()
		overdue.DueDate = &past

		mockService := new(MockTaskService)
		mockService.On("Get", mock.Anything, taskID).Return(overdue, nil)

		w := serve(t, mockService, http.MethodGet, "/api/tasks/"+taskID, "", "")

		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, true, data["isOverdue"])
	})
}

// TestTaskHandler_StatsRouteOrder - stats/summary не должен попасть в обработчик /{id}
func TestTaskHandler_StatsRouteOrder(t *testing.T) {
	mockService := new(MockTaskService)
	snap := stats.Build(3, map[string]int64{"completed": 1, "pending": 2}, map[string]int64{"high": 3})
	mockService.On("Stats", mock.Anything).Return(snap, nil)

	w := serve(t, mockService, http.MethodGet, "/api/tasks/stats/summary", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(3), data["total"])
	assert.Equal(t, float64(33), data["completionRate"])
	assert.Equal(t, map[string]any{"pending": float64(2), "in-progress": float64(0), "completed": float64(1)}, data["byStatus"])
	assert.Equal(t, map[string]any{"low": float64(0), "medium": float64(0), "high": float64(3)}, data["byPriority"])

	mockService.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	mockService.AssertExpectations(t)
}

// TestTaskHandler_PostTask тестирует создание задачи
func TestTaskHandler_PostTask(t *testing.T) {
	validation := task.ValidationErrors{{Field: "title", Message: "Title is required"}}

	tests := []struct {
		name           string
		requestBody    string
		contentType    string
		setupMock      func(*MockTaskService)
		expectedStatus int
		check          func(t *testing.T, body map[string]any)
	}{
		{
			name:        "success - create task",
			requestBody: `{"title": "Test Task", "id": "ignored"}`,
			contentType: "application/json; charset=utf-8",
			setupMock: func(m *MockTaskService) {
				m.On("Create", mock.Anything, task.Payload{"title": "Test Task", "id": "ignored"}).
					Return(sampleTask(), nil)
			},
			expectedStatus: http.StatusCreated,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, true, body["success"])
				assert.Equal(t, "Task created successfully", body["message"])
				assert.Equal(t, "Test Task", body["data"].(map[string]any)["title"])
			},
		},
		{
			name:           "error - invalid content type",
			requestBody:    `{}`,
			contentType:    "text/plain",
			setupMock:      func(m *MockTaskService) {},
			expectedStatus: http.StatusUnsupportedMediaType,
		},
		{
			name:           "error - missing content type",
			requestBody:    `{}`,
			setupMock:      func(m *MockTaskService) {},
			expectedStatus: http.StatusUnsupportedMediaType,
		},
		{
			name:           "error - invalid JSON",
			requestBody:    `{invalid json}`,
			contentType:    "application/json",
			setupMock:      func(m *MockTaskService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "error - body is not an object",
			requestBody:    `null`,
			contentType:    "application/json",
			setupMock:      func(m *MockTaskService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "error - validation failed",
			requestBody: `{"description": "без заголовка"}`,
			contentType: "application/json",
			setupMock: func(m *MockTaskService) {
				m.On("Create", mock.Anything, task.Payload{"description": "без заголовка"}).
					Return(nil, service.NewValidationFailed(validation))
			},
			expectedStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, false, body["success"])
				assert.Equal(t, "Validation failed", body["message"])
				assert.Equal(t, []any{map[string]any{"field": "title", "message": "Title is required"}}, body["errors"])
			},
		},
		{
			name:        "error - storage unavailable",
			requestBody: `{"title": "Test Task"}`,
			contentType: "application/json",
			setupMock: func(m *MockTaskService) {
				m.On("Create", mock.Anything, mock.Anything).
					Return(nil, service.NewStorageUnavailable("create", errConnLost))
			},
			expectedStatus: http.StatusServiceUnavailable,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "Error creating task", body["message"])
				assert.Equal(t, service.CodeStorageUnavailable, body["error"])
			},
		},
		{
			name:        "error - unclassified service error",
			requestBody: `{"title": "Test Task"}`,
			contentType: "application/json",
			setupMock: func(m *MockTaskService) {
				m.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockTaskService)
			tt.setupMock(mockService)

			w := serve(t, mockService, http.MethodPost, "/api/tasks", tt.requestBody, tt.contentType)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.check != nil {
				tt.check(t, decode(t, w))
			}

			mockService.AssertExpectations(t)
		})
	}
}

// TestTaskHandler_UpdateTaskByID тестирует полное обновление
func TestTaskHandler_UpdateTaskByID(t *testing.T) {
	t.Run("success - update task", func(t *testing.T) {
		updated := sampleTask()
		updated.Priority = task.PriorityHigh

		mockService := new(MockTaskService)
		mockService.On("Update", mock.Anything, taskID, task.Payload{"priority": "high", "description": nil}).
			Return(updated, nil)

		w := serve(t, mockService, http.MethodPut, "/api/tasks/"+taskID,
			`{"priority": "high", "description": null}`, "application/json")

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Task updated successfully", body["message"])
		assert.Equal(t, "high", body["data"].(map[string]any)["priority"])
		mockService.AssertExpectations(t)
	})

	t.Run("error - task not found", func(t *testing.T) {
		mockService := new(MockTaskService)
		mockService.On("Update", mock.Anything, "missing", mock.Anything).Return(nil, service.NewNotFound("missing"))

		w := serve(t, mockService, http.MethodPut, "/api/tasks/missing", `{"title": "x"}`, "application/json")

		assert.Equal(t, http.StatusNotFound, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("error - invalid content type", func(t *testing.T) {
		mockService := new(MockTaskService)

		w := serve(t, mockService, http.MethodPut, "/api/tasks/"+taskID, `title=x`, "application/x-www-form-urlencoded")

		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
		mockService.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})
}

// TestTaskHandler_UpdateStatus тестирует короткий путь смены статуса
func TestTaskHandler_UpdateStatus(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    string
		setupMock      func(*MockTaskService)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:        "success - set completed",
			requestBody: `{"status": "completed"}`,
			setupMock: func(m *MockTaskService) {
				done := sampleTask()
				done.Status = task.StatusCompleted
				m.On("SetStatus", mock.Anything, taskID, "completed").Return(done, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "Task status updated successfully",
		},
		{
			name:        "error - invalid status",
			requestBody: `{"status": "bogus"}`,
			setupMock: func(m *MockTaskService) {
				m.On("SetStatus", mock.Anything, taskID, "bogus").Return(nil, service.NewInvalidStatus("bogus"))
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "Invalid status. Must be pending, in-progress, or completed",
		},
		{
			name:        "error - status is not a string",
			requestBody: `{"status": 1}`,
			setupMock: func(m *MockTaskService) {
				m.On("SetStatus", mock.Anything, taskID, "").Return(nil, service.NewInvalidStatus(""))
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "Invalid status. Must be pending, in-progress, or completed",
		},
		{
			name:        "error - task not found",
			requestBody: `{"status": "pending"}`,
			setupMock: func(m *MockTaskService) {
				m.On("SetStatus", mock.Anything, taskID, "pending").Return(nil, service.NewNotFound(taskID))
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "Task not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockTaskService)
			tt.setupMock(mockService)

			w := serve(t, mockService, http.MethodPatch, "/api/tasks/"+taskID+"/status", tt.requestBody, "application/json")

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedMsg, decode(t, w)["message"])

			mockService.AssertExpectations(t)
		})
	}
}

// TestTaskHandler_DeleteTaskByID тестирует удаление задачи
func TestTaskHandler_DeleteTaskByID(t *testing.T) {
	t.Run("success - delete task", func(t *testing.T) {
		mockService := new(MockTaskService)
		mockService.On("Delete", mock.Anything, taskID).Return(nil)

		w := serve(t, mockService, http.MethodDelete, "/api/tasks/"+taskID, "", "")

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Task deleted successfully", body["message"])
		mockService.AssertExpectations(t)
	})

	t.Run("error - task not found", func(t *testing.T) {
		mockService := new(MockTaskService)
		mockService.On("Delete", mock.Anything, taskID).Return(service.NewNotFound(taskID))

		w := serve(t, mockService, http.MethodDelete, "/api/tasks/"+taskID, "", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		mockService.AssertExpectations(t)
	})
}

func TestRouter_UnknownMethod(t *testing.T) {
	w := serve(t, new(MockTaskService), http.MethodPatch, "/api/tasks", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
