// Package sqlite - файловое хранилище задач на GORM для запуска без внешней базы
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskManager/internal/logger"
	"taskManager/internal/models/task"
	"taskManager/internal/query"
	repo "taskManager/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const slowQuery = 100 * time.Millisecond

type taskRecord struct {
	ID          string     `gorm:"primaryKey;size:36"`
	Title       string     `gorm:"size:100;not null"`
	Description *string    `gorm:"size:500"`
	Status      string     `gorm:"size:16;not null;index"`
	Priority    string     `gorm:"size:16;not null;index"`
	DueDate     *time.Time `gorm:"index"`
	Tags        []string   `gorm:"serializer:json;not null"`
	CreatedAt   time.Time  `gorm:"index;autoCreateTime:false"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime:false"`
}

func (taskRecord) TableName() string {
	return "tasks"
}

var fieldColumns = map[task.FieldName]string{
	task.FieldTitle:       "title",
	task.FieldDescription: "description",
	task.FieldStatus:      "status",
	task.FieldPriority:    "priority",
	task.FieldDueDate:     "due_date",
	task.FieldTags:        "tags",
}

var sortColumns = map[query.SortField]string{
	query.SortByCreatedAt: "created_at",
	query.SortByTitle:     "title",
	query.SortByDueDate:   "due_date",
}

var groupColumns = map[task.GroupField]string{
	task.GroupByStatus:   "status",
	task.GroupByPriority: "priority",
}

type Storage struct {
	db *gorm.DB
}

// New открывает базу по пути (":memory:" для тестов) и создаёт таблицу
func New(path string) (*Storage, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Error("Repository: Не удалось открыть SQLite", err)
		return nil, fmt.Errorf("открытие sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("получение sql.DB: %w", err)
	}
	// одно соединение: у каждой :memory: базы своё содержимое, а SQLite всё равно пишет последовательно
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&taskRecord{}); err != nil {
		_ = sqlDB.Close()
		logger.Error("Repository: Ошибка миграции SQLite", err)
		return nil, fmt.Errorf("миграция sqlite: %w", err)
	}

	logger.Info("Repository: Успешное открытие SQLite", zap.String("path", path))
	return &Storage{db: db}, nil
}

func (s *Storage) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("Repository: Закрытие SQLite")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("получение sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

func (s *Storage) Insert(ctx context.Context, taskToCreate *task.Task) (*task.Task, error) {
	defer observe("insert", time.Now())

	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := toRecord(taskToCreate)
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		logger.Error("Repository: Не удалось добавить задачу", err)
		return nil, fmt.Errorf("добавление задачи: %w", err)
	}
	return rec.toTask(), nil
}

func (s *Storage) FindByID(ctx context.Context, id string) (*task.Task, error) {
	defer observe("find_by_id", time.Now())

	var rec taskRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("получение задачи: %w", err)
	}
	return rec.toTask(), nil
}

// UpdateByID обновляет выбранные колонки и перечитывает строку в одной транзакции
func (s *Storage) UpdateByID(ctx context.Context, id string, patch task.Patch) (*task.Task, error) {
	defer observe("update_by_id", time.Now())

	changes := patch.Changes()
	cols := make([]string, 0, len(changes)+1)
	for _, ch := range changes {
		cols = append(cols, fieldColumns[ch.Field])
	}
	cols = append(cols, "updated_at")

	// значения берутся из записи, собранной патчем; Select ограничивает UPDATE изменёнными колонками
	patched := &task.Task{}
	patch.Apply(patched)
	values := toRecord(patched)
	values.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

	var rec taskRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&taskRecord{}).Where("id = ?", id).Select(cols).Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}
		return tx.First(&rec, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		logger.Error("Repository: Не удалось обновить задачу", err)
		return nil, fmt.Errorf("обновление задачи: %w", err)
	}
	return rec.toTask(), nil
}

func (s *Storage) DeleteByID(ctx context.Context, id string) (bool, error) {
	defer observe("delete_by_id", time.Now())

	res := s.db.WithContext(ctx).Delete(&taskRecord{}, "id = ?", id)
	if res.Error != nil {
		logger.Error("Repository: Удаление задачи", res.Error)
		return false, fmt.Errorf("удаление задачи: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Find полагается на порядок NULL в SQLite: NULL меньше любого значения, поэтому задачи без срока первые при asc
func (s *Storage) Find(ctx context.Context, d query.Descriptor) ([]*task.Task, error) {
	defer observe("find", time.Now())

	q := s.db.WithContext(ctx).Model(&taskRecord{})
	if d.Filter.Status != nil {
		q = q.Where("status = ?", string(*d.Filter.Status))
	}
	if d.Filter.Priority != nil {
		q = q.Where("priority = ?", string(*d.Filter.Priority))
	}

	desc := d.Sort.Direction == query.Desc
	column, ok := sortColumns[d.Sort.Field]
	if !ok {
		column = sortColumns[query.DefaultSortField]
	}
	q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc})
	if column != "created_at" {
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: desc})
	}
	q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc})

	var records []taskRecord
	if err := q.Find(&records).Error; err != nil {
		logger.Error("Repository: Не удалось получить задачи", err)
		return nil, fmt.Errorf("получение задач: %w", err)
	}

	tasks := make([]*task.Task, 0, len(records))
	for i := range records {
		tasks = append(tasks, records[i].toTask())
	}
	return tasks, nil
}

func (s *Storage) CountAll(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&taskRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("подсчёт задач: %w", err)
	}
	return n, nil
}

func (s *Storage) GroupCountBy(ctx context.Context, field task.GroupField) (map[string]int64, error) {
	column, ok := groupColumns[field]
	if !ok {
		return nil, fmt.Errorf("группировка по полю %q не поддерживается", field)
	}

	var rows []struct {
		GroupKey string
		Total    int64
	}
	err := s.db.WithContext(ctx).Model(&taskRecord{}).
		Select(column + " AS group_key, COUNT(*) AS total").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("группировка задач: %w", err)
	}

	groups := make(map[string]int64, len(rows))
	for _, r := range rows {
		groups[r.GroupKey] = r.Total
	}
	return groups, nil
}

func toRecord(t *task.Task) taskRecord {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	rec := taskRecord{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Tags:        tags,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.DueDate != nil {
		due := t.DueDate.UTC()
		rec.DueDate = &due
	}
	return rec
}

func (r *taskRecord) toTask() *task.Task {
	t := &task.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Status:      task.Status(r.Status),
		Priority:    task.Priority(r.Priority),
		Tags:        r.Tags,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.DueDate != nil {
		due := r.DueDate.UTC()
		t.DueDate = &due
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return t
}

func observe(op string, start time.Time) {
	if elapsed := time.Since(start); elapsed > slowQuery {
		logger.Warn("Repository: Медленный запрос", zap.String("op", op), zap.Duration("ms", elapsed))
	}
}
