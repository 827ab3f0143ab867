// Package mongo - документное хранилище задач на MongoDB
package mongo

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
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const (
	collectionName = "tasks"
	slowQuery      = 100 * time.Millisecond
)

// BSON хранит время с точностью до миллисекунд
const precision = time.Millisecond

type taskDocument struct {
	ID          string     `bson:"_id"`
	Title       string     `bson:"title"`
	Description *string    `bson:"description"`
	Status      string     `bson:"status"`
	Priority    string     `bson:"priority"`
	DueDate     *time.Time `bson:"dueDate"`
	Tags        []string   `bson:"tags"`
	CreatedAt   time.Time  `bson:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt"`
}

var sortKeys = map[query.SortField]string{
	query.SortByCreatedAt: "createdAt",
	query.SortByTitle:     "title",
	query.SortByDueDate:   "dueDate",
}

var groupKeys = map[task.GroupField]string{
	task.GroupByStatus:   "status",
	task.GroupByPriority: "priority",
}

type Storage struct {
	client *mongo.Client
	tasks  *mongo.Collection
}

func New(ctx context.Context, uri, database string) (*Storage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		logger.Error("Repository: Ошибка подключения к MongoDB", err)
		return nil, fmt.Errorf("подключение к mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	s := &Storage{client: client, tasks: client.Database(database).Collection(collectionName)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("Repository: Успешное подключение к MongoDB", zap.String("database", database))
	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "priority", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "dueDate", Value: 1}}},
	})
	if err != nil {
		logger.Error("Repository: Не удалось создать индексы", err)
		return fmt.Errorf("создание индексов: %w", err)
	}
	return nil
}

func (s *Storage) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		logger.Warn("Repository: Ошибка отключения от MongoDB", zap.Error(err))
		return
	}
	logger.Info("Repository: Отключение от MongoDB")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

func (s *Storage) Insert(ctx context.Context, taskToCreate *task.Task) (*task.Task, error) {
	defer observe("insert", time.Now())

	now := time.Now().UTC().Truncate(precision)
	doc := toDocument(taskToCreate)
	doc.ID = uuid.NewString()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if _, err := s.tasks.InsertOne(ctx, doc); err != nil {
		logger.Error("Repository: Не удалось добавить задачу", err)
		return nil, fmt.Errorf("добавление задачи: %w", err)
	}
	return doc.toTask(), nil
}

func (s *Storage) FindByID(ctx context.Context, id string) (*task.Task, error) {
	defer observe("find_by_id", time.Now())

	var doc taskDocument
	if err := s.tasks.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("получение задачи: %w", err)
	}
	return doc.toTask(), nil
}

// UpdateByID - атомарный $set изменённых полей с возвратом документа после обновления
func (s *Storage) UpdateByID(ctx context.Context, id string, patch task.Patch) (*task.Task, error) {
	defer observe("update_by_id", time.Now())

	set := bson.D{}
	for _, ch := range patch.Changes() {
		set = append(set, bson.E{Key: string(ch.Field), Value: documentValue(ch.Value)})
	}
	set = append(set, bson.E{Key: "updatedAt", Value: time.Now().UTC().Truncate(precision)})

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc taskDocument
	err := s.tasks.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: set}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось обновить задачу", err)
		return nil, fmt.Errorf("обновление задачи: %w", err)
	}
	return doc.toTask(), nil
}

func (s *Storage) DeleteByID(ctx context.Context, id string) (bool, error) {
	defer observe("delete_by_id", time.Now())

	res, err := s.tasks.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		logger.Error("Repository: Удаление задачи", err)
		return false, fmt.Errorf("удаление задачи: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// Find: null в BSON меньше любой даты, поэтому задачи без срока первые при asc и последние при desc
func (s *Storage) Find(ctx context.Context, d query.Descriptor) ([]*task.Task, error) {
	defer observe("find", time.Now())

	filter := bson.D{}
	if d.Filter.Status != nil {
		filter = append(filter, bson.E{Key: "status", Value: string(*d.Filter.Status)})
	}
	if d.Filter.Priority != nil {
		filter = append(filter, bson.E{Key: "priority", Value: string(*d.Filter.Priority)})
	}

	dir := 1
	if d.Sort.Direction == query.Desc {
		dir = -1
	}
	key, ok := sortKeys[d.Sort.Field]
	if !ok {
		key = sortKeys[query.DefaultSortField]
	}
	sort := bson.D{{Key: key, Value: dir}}
	if key != "createdAt" {
		sort = append(sort, bson.E{Key: "createdAt", Value: dir})
	}
	sort = append(sort, bson.E{Key: "_id", Value: dir})

	cur, err := s.tasks.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err)
		return nil, fmt.Errorf("получение задач: %w", err)
	}

	var docs []taskDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("чтение курсора: %w", err)
	}

	tasks := make([]*task.Task, 0, len(docs))
	for i := range docs {
		tasks = append(tasks, docs[i].toTask())
	}
	return tasks, nil
}

func (s *Storage) CountAll(ctx context.Context) (int64, error) {
	n, err := s.tasks.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("подсчёт задач: %w", err)
	}
	return n, nil
}

func (s *Storage) GroupCountBy(ctx context.Context, field task.GroupField) (map[string]int64, error) {
	key, ok := groupKeys[field]
	if !ok {
		return nil, fmt.Errorf("группировка по полю %q не поддерживается", field)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + key},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cur, err := s.tasks.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("группировка задач: %w", err)
	}

	var rows []struct {
		Key   string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("чтение курсора: %w", err)
	}

	groups := make(map[string]int64, len(rows))
	for _, r := range rows {
		groups[r.Key] = r.Count
	}
	return groups, nil
}

// Truncate очищает коллекцию, нужен тестам
func (s *Storage) Truncate(ctx context.Context) error {
	_, err := s.tasks.DeleteMany(ctx, bson.D{})
	return err
}

func toDocument(t *task.Task) taskDocument {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	doc := taskDocument{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Tags:        tags,
	}
	if t.DueDate != nil {
		due := t.DueDate.UTC().Truncate(precision)
		doc.DueDate = &due
	}
	return doc
}

func (d *taskDocument) toTask() *task.Task {
	t := &task.Task{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Status:      task.Status(d.Status),
		Priority:    task.Priority(d.Priority),
		Tags:        d.Tags,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if d.DueDate != nil {
		due := d.DueDate.UTC()
		t.DueDate = &due
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return t
}

func documentValue(v any) any {
	switch val := v.(type) {
	case task.Status:
		return string(val)
	case task.Priority:
		return string(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Truncate(precision)
	case *string:
		if val == nil {
			return nil
		}
		return *val
	default:
		return val
	}
}

func observe(op string, start time.Time) {
	if elapsed := time.Since(start); elapsed > slowQuery {
		logger.Warn("Repository: Медленный запрос", zap.String("op", op), zap.Duration("ms", elapsed))
	}
}
