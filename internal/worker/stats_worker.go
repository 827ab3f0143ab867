package worker

import (
	"context"
	"fmt"
	"time"

	"taskManager/internal/logger"
	"taskManager/internal/stats"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const defaultInterval = time.Minute

type SnapshotSource interface {
	Stats(ctx context.Context) (stats.Snapshot, error)
}

type Gauges struct {
	ByStatus       *prometheus.GaugeVec
	ByPriority     *prometheus.GaugeVec
	CompletionRate prometheus.Gauge
}

func NewGauges(reg prometheus.Registerer) *Gauges {
	factory := promauto.With(reg)
	return &Gauges{
		ByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskmanager",
			Name:      "tasks",
			Help:      "Количество задач по статусу",
		}, []string{"status"}),
		ByPriority: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskmanager",
			Name:      "tasks_by_priority",
			Help:      "Количество задач по приоритету",
		}, []string{"priority"}),
		CompletionRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskmanager",
			Name:      "completion_rate",
			Help:      "Процент завершённых задач",
		}),
	}
}

// StatsWorker периодически снимает сводку через сервис и выставляет её в gauge-метрики
type StatsWorker struct {
	source   SnapshotSource
	interval time.Duration
	gauges   *Gauges
}

func NewStatsWorker(source SnapshotSource, interval *time.Duration, gauges *Gauges) *StatsWorker {
	intervalToSet := defaultInterval
	if interval != nil && *interval > 0 {
		intervalToSet = *interval
	}
	return &StatsWorker{
		source:   source,
		interval: intervalToSet,
		gauges:   gauges,
	}
}

// Start блокируется до отмены ctx. Ошибка снимка только логируется, следующая попытка на следующем тике.
func (w *StatsWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logger.Info("Worker: Публикация статистики запущена", zap.Duration("interval", w.interval))
	w.run(ctx)

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			logger.Info("Worker: Публикация статистики останавливается")
			return
		}
	}
}

func (w *StatsWorker) run(ctx context.Context) {
	if err := w.Check(ctx); err != nil {
		logger.Warn("Worker: Ошибка получения статистики", zap.Error(err))
	}
}

func (w *StatsWorker) Check(ctx context.Context) error {
	start := time.Now()

	snap, err := w.source.Stats(ctx)
	if err != nil {
		return fmt.Errorf("снимок статистики: %w", err)
	}

	for status, count := range snap.ByStatus {
		w.gauges.ByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
	for priority, count := range snap.ByPriority {
		w.gauges.ByPriority.WithLabelValues(string(priority)).Set(float64(count))
	}
	w.gauges.CompletionRate.Set(float64(snap.CompletionRate))

	logger.Debug("Worker: Статистика опубликована",
		zap.Int64("total", snap.Total),
		zap.Int("completion_rate", snap.CompletionRate),
		zap.Duration("ms", time.Since(start)))
	return nil
}
