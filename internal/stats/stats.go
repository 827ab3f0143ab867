// Package stats считает сводку по коллекции задач: группы по статусу и приоритету и процент выполнения.
package stats

import (
	"context"
	"fmt"
	"math"

	"taskManager/internal/models/task"

	"golang.org/x/sync/errgroup"
)

type Snapshot struct {
	Total          int64                   `json:"total"`
	ByStatus       map[task.Status]int64   `json:"byStatus"`
	ByPriority     map[task.Priority]int64 `json:"byPriority"`
	CompletionRate int                     `json:"completionRate"`
}

// Source - то, что агрегатору нужно от репозитория
type Source interface {
	CountAll(ctx context.Context) (int64, error)
	GroupCountBy(ctx context.Context, field task.GroupField) (map[string]int64, error)
}

// Build собирает снимок из сырых групп. Отсутствующие группы равны нулю, неизвестные ключи отбрасываются.
func Build(total int64, byStatus, byPriority map[string]int64) Snapshot {
	s := Snapshot{
		Total:      total,
		ByStatus:   make(map[task.Status]int64, 3),
		ByPriority: make(map[task.Priority]int64, 3),
	}
	for _, st := range task.Statuses() {
		s.ByStatus[st] = byStatus[string(st)]
	}
	for _, p := range task.Priorities() {
		s.ByPriority[p] = byPriority[string(p)]
	}
	s.CompletionRate = CompletionRate(s.ByStatus[task.StatusCompleted], total)
	return s
}

// CompletionRate = round(completed / total * 100), для пустой коллекции 0.
// Счётчики читаются не одним снимком, поэтому completed может обогнать total: результат ограничен [0, 100].
func CompletionRate(completed, total int64) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

type Aggregator struct {
	source Source
}

func NewAggregator(source Source) *Aggregator {
	return &Aggregator{source: source}
}

// Snapshot выполняет три запроса к репозиторию параллельно. Первая ошибка отменяет остальные.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	var (
		total      int64
		byStatus   map[string]int64
		byPriority map[string]int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.source.CountAll(gctx)
		if err != nil {
			return fmt.Errorf("подсчёт задач: %w", err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		m, err := a.source.GroupCountBy(gctx, task.GroupByStatus)
		if err != nil {
			return fmt.Errorf("группировка по статусу: %w", err)
		}
		byStatus = m
		return nil
	})
	g.Go(func() error {
		m, err := a.source.GroupCountBy(gctx, task.GroupByPriority)
		if err != nil {
			return fmt.Errorf("группировка по приоритету: %w", err)
		}
		byPriority = m
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return Build(total, byStatus, byPriority), nil
}
