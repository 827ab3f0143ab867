package handlers

import (
	"net/http"
	"time"

	"taskManager/internal/handlers/dto"
	"taskManager/internal/logger"
	"taskManager/internal/query"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const serviceName = "task-manager"

type TaskHandler struct {
	TaskService Service
	now         func() time.Time
}

func NewTaskHandler(taskService Service) *TaskHandler {
	return &TaskHandler{
		TaskService: taskService,
		now:         time.Now,
	}
}

// Routes регистрирует маршруты API. /stats/summary объявлен до /{id}, иначе "stats" примут за id.
func (s *TaskHandler) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.HealthCheck)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.ListTasks) // GET /api/tasks
			r.Post("/", s.PostTask) // POST /api/tasks

			r.Get("/stats/summary", s.Stats) // GET /api/tasks/stats/summary

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetTaskByID)          // GET /api/tasks/{id}
				r.Put("/", s.UpdateTaskByID)       // PUT /api/tasks/{id}
				r.Delete("/", s.DeleteTaskByID)    // DELETE /api/tasks/{id}
				r.Patch("/status", s.UpdateStatus) // PATCH /api/tasks/{id}/status
			})
		})
	})
}

func (s *TaskHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.TaskService.HealthCheck(r.Context()); err != nil {
		logger.Error("HTTP: Сервис нездоров", err)
		responseWithJSON(w, http.StatusServiceUnavailable,
			toPayload("success", false),
			toPayload("service", serviceName),
			toPayload("status", "unavailable"),
			toPayload("message", "Storage unavailable"),
		)
		return
	}

	responseWithJSON(w, http.StatusOK,
		toPayload("success", true),
		toPayload("service", serviceName),
		toPayload("status", "ok"),
		toPayload("timestamp", s.now().UTC()),
	)
}

// ListTasks принимает sortBy/sortOrder и их синонимы sortField/sortDirection
func (s *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	values := r.URL.Query()

	params := query.Params{
		Status:    values.Get("status"),
		Priority:  values.Get("priority"),
		SortBy:    firstOf(values.Get("sortBy"), values.Get("sortField")),
		SortOrder: firstOf(values.Get("sortOrder"), values.Get("sortDirection")),
	}

	tasks, err := s.TaskService.List(r.Context(), params)
	if err != nil {
		handleBusinessError(w, r, err, "Error fetching tasks")
		return
	}

	logger.Debug("HTTP_OUT: Задачи получены",
		zap.Int("count", len(tasks)),
		zap.Duration("ms", time.Since(start)))

	responseWithSuccess(w, http.StatusOK,
		toPayload("count", len(tasks)),
		toPayload("data", dto.FromTaskList(tasks, s.now())),
	)
}

func (s *TaskHandler) GetTaskByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := s.TaskService.Get(r.Context(), id)
	if err != nil {
		handleBusinessError(w, r, err, "Error fetching task")
		return
	}

	responseWithSuccess(w, http.StatusOK, toPayload("data", dto.FromTask(t, s.now())))
}

func (s *TaskHandler) PostTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if !requireJSON(w, r) {
		return
	}

	payload, err := decodePayload(w, r)
	if err != nil {
		logger.Warn("HTTP: Ошибка чтения JSON",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.TaskService.Create(r.Context(), payload)
	if err != nil {
		handleBusinessError(w, r, err, "Error creating task")
		return
	}

	logger.Info("HTTP_OUT: Задача создана",
		zap.String("task_id", created.ID),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	responseWithSuccess(w, http.StatusCreated,
		toPayload("message", "Task created successfully"),
		toPayload("data", dto.FromTask(created, s.now())),
	)
}

func (s *TaskHandler) UpdateTaskByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	if !requireJSON(w, r) {
		return
	}

	payload, err := decodePayload(w, r)
	if err != nil {
		logger.Warn("HTTP: Ошибка чтения JSON",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.TaskService.Update(r.Context(), id, payload)
	if err != nil {
		handleBusinessError(w, r, err, "Error updating task")
		return
	}

	logger.Info("HTTP_OUT: Задача обновлена",
		zap.String("task_id", id),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithSuccess(w, http.StatusOK,
		toPayload("message", "Task updated successfully"),
		toPayload("data", dto.FromTask(updated, s.now())),
	)
}

// UpdateStatus - статус не строкой считается неверным статусом, а не ошибкой разбора тела
func (s *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !requireJSON(w, r) {
		return
	}

	payload, err := decodePayload(w, r)
	if err != nil {
		responseWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, _ := payload["status"].(string)

	updated, err := s.TaskService.SetStatus(r.Context(), id, status)
	if err != nil {
		handleBusinessError(w, r, err, "Error updating task status")
		return
	}

	logger.Info("HTTP_OUT: Статус задачи обновлён",
		zap.String("task_id", id),
		zap.String("status", string(updated.Status)))

	responseWithSuccess(w, http.StatusOK,
		toPayload("message", "Task status updated successfully"),
		toPayload("data", dto.FromTask(updated, s.now())),
	)
}

func (s *TaskHandler) DeleteTaskByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.TaskService.Delete(r.Context(), id); err != nil {
		handleBusinessError(w, r, err, "Error deleting task")
		return
	}

	logger.Info("HTTP_OUT: Задача удалена", zap.String("task_id", id))

	responseWithSuccess(w, http.StatusOK, toPayload("message", "Task deleted successfully"))
}

func (s *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.TaskService.Stats(r.Context())
	if err != nil {
		handleBusinessError(w, r, err, "Error fetching task statistics")
		return
	}

	responseWithSuccess(w, http.StatusOK, toPayload("data", dto.FromSnapshot(snap)))
}

func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	if checkContentType(r, "application/json") {
		return true
	}

	logger.Warn("HTTP: Неверный тип контента",
		zap.String("expected", "application/json"),
		zap.String("received", r.Header.Get("Content-Type")),
		zap.String("client_ip", r.RemoteAddr))

	responseWithError(w, http.StatusUnsupportedMediaType, "Content-Type должен быть application/json")
	return false
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
