// Package observability оборачивает сервис задач: лог, метрики Prometheus и span OpenTelemetry на каждую операцию.
// Сам сервис ничего не логирует.
package observability

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskManager/internal/handlers"
	"taskManager/internal/logger"
	"taskManager/internal/models/task"
	"taskManager/internal/query"
	"taskManager/internal/service"
	"taskManager/internal/stats"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const metricsNamespace = "taskmanager"

const outcomeOK = "ok"

var tracer = otel.Tracer("taskmanager/service")

type Metrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewMetrics регистрирует метрики в reg; тесты передают свой реестр
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "service_operations_total",
				Help:      "Операции сервиса задач по исходу",
			},
			[]string{"operation", "outcome"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "service_operation_duration_seconds",
				Help:      "Длительность операций сервиса задач",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"operation"},
		),
	}
}

type Service struct {
	next    handlers.Service
	metrics *Metrics
}

var _ handlers.Service = (*Service)(nil)

func Wrap(next handlers.Service, metrics *Metrics) *Service {
	return &Service{next: next, metrics: metrics}
}

func (s *Service) HealthCheck(ctx context.Context) error {
	ctx, done := s.start(ctx, "health")
	err := s.next.HealthCheck(ctx)
	done(err)
	return err
}

func (s *Service) List(ctx context.Context, params query.Params) ([]*task.Task, error) {
	ctx, done := s.start(ctx, "list",
		attribute.String("filter.status", params.Status),
		attribute.String("filter.priority", params.Priority),
		attribute.String("sort.by", params.SortBy),
		attribute.String("sort.order", params.SortOrder),
	)
	tasks, err := s.next.List(ctx, params)
	done(err, zap.Int("count", len(tasks)))
	return tasks, err
}

func (s *Service) Get(ctx context.Context, id string) (*task.Task, error) {
	ctx, done := s.start(ctx, "get", attribute.String("task.id", id))
	t, err := s.next.Get(ctx, id)
	done(err, zap.String("task_id", id))
	return t, err
}

func (s *Service) Create(ctx context.Context, payload task.Payload) (*task.Task, error) {
	ctx, done := s.start(ctx, "create")
	t, err := s.next.Create(ctx, payload)
	if err == nil {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("task.id", t.ID))
		done(nil, zap.String("task_id", t.ID))
		return t, nil
	}
	done(err)
	return nil, err
}

func (s *Service) Update(ctx context.Context, id string, payload task.Payload) (*task.Task, error) {
	ctx, done := s.start(ctx, "update", attribute.String("task.id", id))
	t, err := s.next.Update(ctx, id, payload)
	done(err, zap.String("task_id", id))
	return t, err
}

func (s *Service) SetStatus(ctx context.Context, id string, status string) (*task.Task, error) {
	ctx, done := s.start(ctx, "set_status",
		attribute.String("task.id", id),
		attribute.String("task.status", status),
	)
	t, err := s.next.SetStatus(ctx, id, status)
	done(err, zap.String("task_id", id), zap.String("status", status))
	return t, err
}

func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, done := s.start(ctx, "delete", attribute.String("task.id", id))
	err := s.next.Delete(ctx, id)
	done(err, zap.String("task_id", id))
	return err
}

func (s *Service) Stats(ctx context.Context) (stats.Snapshot, error) {
	ctx, done := s.start(ctx, "stats")
	snap, err := s.next.Stats(ctx)
	done(err, zap.Int64("total", snap.Total))
	return snap, err
}

// start открывает span и возвращает функцию, которая закрывает его и пишет лог и метрики
func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error, ...zap.Field)) {
	begin := time.Now()
	ctx, span := tracer.Start(ctx, "TaskService."+op, trace.WithAttributes(attrs...))

	return ctx, func(err error, fields ...zap.Field) {
		defer span.End()

		elapsed := time.Since(begin)
		outcome := Outcome(err)

		s.metrics.Operations.WithLabelValues(op, outcome).Inc()
		s.metrics.Duration.WithLabelValues(op).Observe(elapsed.Seconds())

		span.SetAttributes(attribute.String("outcome", outcome))
		fields = append(fields,
			zap.String("operation", op),
			zap.String("outcome", outcome),
			zap.Duration("ms", elapsed))

		switch {
		case err == nil:
			logger.Debug("Service: Операция выполнена", fields...)
		case service.HasCode(err, service.CodeStorageUnavailable) || outcome == "error":
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			logger.Error("Service: Операция не выполнена", err, fields...)
		default:
			logger.Warn("Service: Операция отклонена", append(fields, zap.Error(err))...)
		}
	}
}

// Outcome - метка исхода: ok, код бизнес-ошибки в нижнем регистре или error
func Outcome(err error) string {
	if err == nil {
		return outcomeOK
	}
	var businessErr *service.BusinessError
	if errors.As(err, &businessErr) {
		return strings.ToLower(businessErr.Code)
	}
	return "error"
}
