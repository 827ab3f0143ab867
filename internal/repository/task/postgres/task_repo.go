package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskManager/internal/logger"
	"taskManager/internal/models/task"
	"taskManager/internal/query"
	repo "taskManager/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const slowQuery = 100 * time.Millisecond

const selectColumns = `id::text, title, description, status, priority, due_date, tags, created_at, updated_at`

// колонки для полей патча и сортировки; произвольная строка от клиента сюда не попадает
var columns = map[task.FieldName]string{
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

type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

type Storage struct {
	pool       *pgxpool.Pool
	connString string
}

func New(ctx context.Context, connString string, poolCfg PoolConfig) (*Storage, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		logger.Error("Repository: Ошибка загрузки конфига", err)
		return nil, fmt.Errorf("загрузка конфига: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = time.Minute * 5
	if poolCfg.MaxConns > 0 {
		config.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		config.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		logger.Error("Repository: Ошибка создания пула", err)
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	logger.Info("Repository: Успешное создание подключения к PostgreSQL")
	return &Storage{pool: pool, connString: connString}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
	logger.Info("Repository: Закрытие всех соединений PostgreSQL")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

func (s *Storage) Insert(ctx context.Context, taskToCreate *task.Task) (*task.Task, error) {
	start := time.Now()
	defer observe("insert", start)

	now := time.Now().UTC().Truncate(time.Microsecond)
	tags := taskToCreate.Tags
	if tags == nil {
		tags = []string{}
	}

	q := `INSERT INTO tasks
			(id, title, description, status, priority, due_date, tags, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			RETURNING ` + selectColumns

	created, err := scanTask(s.pool.QueryRow(ctx, q,
		uuid.New(),
		taskToCreate.Title,
		taskToCreate.Description,
		string(taskToCreate.Status),
		string(taskToCreate.Priority),
		taskToCreate.DueDate,
		tags,
		now,
	))
	if err != nil {
		logger.Error("Repository: Не удалось добавить задачу", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("добавление задачи: %w", err)
	}
	return created, nil
}

func (s *Storage) FindByID(ctx context.Context, id string) (*task.Task, error) {
	start := time.Now()
	defer observe("find_by_id", start)

	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, repo.ErrNotFound
	}

	found, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM tasks WHERE id = $1`, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить задачу", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задачи: %w", err)
	}
	return found, nil
}

// UpdateByID меняет только поля патча одним UPDATE ... RETURNING
func (s *Storage) UpdateByID(ctx context.Context, id string, patch task.Patch) (*task.Task, error) {
	start := time.Now()
	defer observe("update_by_id", start)

	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, repo.ErrNotFound
	}

	changes := patch.Changes()
	sets := make([]string, 0, len(changes)+1)
	args := make([]any, 0, len(changes)+2)
	for _, ch := range changes {
		args = append(args, columnValue(ch.Value))
		sets = append(sets, fmt.Sprintf("%s = $%d", columns[ch.Field], len(args)))
	}
	args = append(args, time.Now().UTC().Truncate(time.Microsecond))
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, uid)

	q := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), selectColumns)

	updated, err := scanTask(s.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось обновить задачу", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("обновление задачи: %w", err)
	}
	return updated, nil
}

func (s *Storage) DeleteByID(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	defer observe("delete_by_id", start)

	uid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, uid)
	if err != nil {
		logger.Error("Repository: Удаление задачи", err, zap.Duration("ms", time.Since(start)))
		return false, fmt.Errorf("удаление задачи: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Storage) Find(ctx context.Context, d query.Descriptor) ([]*task.Task, error) {
	start := time.Now()
	defer observe("find", start)

	q, args := buildFind(d)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	defer rows.Close()

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("сканирование задачи: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}
	return tasks, nil
}

// buildFind собирает SELECT по дескриптору. Задачи без срока идут первыми при asc и последними при desc.
func buildFind(d query.Descriptor) (string, []any) {
	var (
		where []string
		args  []any
	)
	if d.Filter.Status != nil {
		args = append(args, string(*d.Filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if d.Filter.Priority != nil {
		args = append(args, string(*d.Filter.Priority))
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + selectColumns + ` FROM tasks`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	dir := "ASC"
	nulls := "NULLS FIRST"
	if d.Sort.Direction == query.Desc {
		dir = "DESC"
		nulls = "NULLS LAST"
	}
	column, ok := sortColumns[d.Sort.Field]
	if !ok {
		column = sortColumns[query.DefaultSortField]
	}

	order := []string{fmt.Sprintf("%s %s", column, dir)}
	if column == "due_date" {
		order[0] += " " + nulls
	}
	if column != "created_at" {
		order = append(order, "created_at "+dir)
	}
	order = append(order, "id::text "+dir)
	b.WriteString(" ORDER BY " + strings.Join(order, ", "))

	return b.String(), args
}

func (s *Storage) CountAll(ctx context.Context) (int64, error) {
	start := time.Now()
	defer observe("count_all", start)

	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		logger.Error("Repository: Не удалось посчитать задачи", err)
		return 0, fmt.Errorf("подсчёт задач: %w", err)
	}
	return n, nil
}

func (s *Storage) GroupCountBy(ctx context.Context, field task.GroupField) (map[string]int64, error) {
	start := time.Now()
	defer observe("group_count_by", start)

	column, ok := groupColumns[field]
	if !ok {
		return nil, fmt.Errorf("группировка по полю %q не поддерживается", field)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %[1]s, COUNT(*) FROM tasks GROUP BY %[1]s`, column))
	if err != nil {
		logger.Error("Repository: Не удалось сгруппировать задачи", err)
		return nil, fmt.Errorf("группировка задач: %w", err)
	}
	defer rows.Close()

	groups := make(map[string]int64)
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("сканирование группы: %w", err)
		}
		groups[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}
	return groups, nil
}

// Truncate очищает таблицу, нужен тестам
func (s *Storage) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE tasks`)
	return err
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t        task.Task
		status   string
		priority string
	)
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&status,
		&priority,
		&t.DueDate,
		&t.Tags,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if t.DueDate != nil {
		due := t.DueDate.UTC()
		t.DueDate = &due
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return &t, nil
}

// columnValue приводит значение патча к типу, который pgx кодирует без отражения
func columnValue(v any) any {
	switch val := v.(type) {
	case task.Status:
		return string(val)
	case task.Priority:
		return string(val)
	default:
		return val
	}
}

func observe(op string, start time.Time) {
	if elapsed := time.Since(start); elapsed > slowQuery {
		logger.Warn("Repository: Медленный запрос", zap.String("op", op), zap.Duration("ms", elapsed))
	}
}
