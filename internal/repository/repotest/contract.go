// Package repotest - общий набор тестов контракта репозитория задач. Каждое хранилище прогоняет его у себя.
package repotest

import (
	"context"
	"time"

	"taskManager/internal/models/task"
	"taskManager/internal/query"
	repo "taskManager/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type Repository interface {
	Find(ctx context.Context, d query.Descriptor) ([]*task.Task, error)
	FindByID(ctx context.Context, id string) (*task.Task, error)
	Insert(ctx context.Context, t *task.Task) (*task.Task, error)
	UpdateByID(ctx context.Context, id string, patch task.Patch) (*task.Task, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	CountAll(ctx context.Context) (int64, error)
	GroupCountBy(ctx context.Context, field task.GroupField) (map[string]int64, error)
	HealthCheck(ctx context.Context) error
}

// ContractSuite встраивается в suite конкретного хранилища. Fresh должен вернуть пустое хранилище.
type ContractSuite struct {
	suite.Suite
	Ctx   context.Context
	Repo  Repository
	Fresh func() Repository
}

func (s *ContractSuite) SetupTest() {
	s.Ctx = context.Background()
	s.Require().NotNil(s.Fresh, "Fresh не задан")
	s.Repo = s.Fresh()
}

func (s *ContractSuite) insert(title string, options ...task.PatchOption) *task.Task {
	t := &task.Task{Title: title, Status: task.DefaultStatus, Priority: task.DefaultPriority, Tags: []string{}}
	task.NewPatch(options...).Apply(t)

	created, err := s.Repo.Insert(s.Ctx, t)
	s.Require().NoError(err)
	return created
}

func (s *ContractSuite) TestHealthCheck() {
	s.NoError(s.Repo.HealthCheck(s.Ctx))
}

func (s *ContractSuite) TestInsertAssignsIdentityAndTimestamps() {
	desc := "молоко и хлеб"
	due := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)

	created := s.insert("Купить продукты",
		task.WithDescription(&desc),
		task.WithPriority(task.PriorityHigh),
		task.WithDueDate(&due),
		task.WithTags([]string{"дом", "срочно"}),
	)

	s.NotEmpty(created.ID)
	s.False(created.CreatedAt.IsZero())
	s.True(created.CreatedAt.Equal(created.UpdatedAt))

	got, err := s.Repo.FindByID(s.Ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.ID, got.ID)
	s.Equal("Купить продукты", got.Title)
	s.Require().NotNil(got.Description)
	s.Equal(desc, *got.Description)
	s.Equal(task.StatusPending, got.Status)
	s.Equal(task.PriorityHigh, got.Priority)
	s.Require().NotNil(got.DueDate)
	s.True(due.Equal(*got.DueDate))
	s.Equal([]string{"дом", "срочно"}, got.Tags)
	s.True(created.CreatedAt.Equal(got.CreatedAt))
}

func (s *ContractSuite) TestAbsentAndEmptyDescriptionDiffer() {
	empty := ""
	withEmpty := s.insert("с пустым описанием", task.WithDescription(&empty))
	without := s.insert("без описания")

	got, err := s.Repo.FindByID(s.Ctx, withEmpty.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.Description)
	s.Equal("", *got.Description)

	got, err = s.Repo.FindByID(s.Ctx, without.ID)
	s.Require().NoError(err)
	s.Nil(got.Description)
	s.Nil(got.DueDate)
	s.NotNil(got.Tags)
	s.Empty(got.Tags)
}

func (s *ContractSuite) TestFindByIDMissing() {
	_, err := s.Repo.FindByID(s.Ctx, uuid.NewString())
	s.ErrorIs(err, repo.ErrNotFound)

	_, err = s.Repo.FindByID(s.Ctx, "not-an-id")
	s.ErrorIs(err, repo.ErrNotFound)
}

func (s *ContractSuite) TestUpdateByIDTouchesOnlyPatchedFields() {
	desc := "описание"
	due := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)
	created := s.insert("Старое", task.WithDescription(&desc), task.WithDueDate(&due), task.WithTags([]string{"a"}))

	updated, err := s.Repo.UpdateByID(s.Ctx, created.ID, task.NewPatch(
		task.WithTitle("Новое"),
		task.WithStatus(task.StatusCompleted),
		task.WithDueDate(nil),
	))
	s.Require().NoError(err)

	s.Equal(created.ID, updated.ID)
	s.Equal("Новое", updated.Title)
	s.Equal(task.StatusCompleted, updated.Status)
	s.Equal(task.PriorityMedium, updated.Priority)
	s.Nil(updated.DueDate)
	s.Require().NotNil(updated.Description)
	s.Equal(desc, *updated.Description)
	s.Equal([]string{"a"}, updated.Tags)
	s.True(updated.CreatedAt.Equal(created.CreatedAt))
	s.False(updated.UpdatedAt.Before(created.UpdatedAt))

	got, err := s.Repo.FindByID(s.Ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(updated.Title, got.Title)
	s.Equal(updated.Status, got.Status)
	s.Nil(got.DueDate)
	s.True(updated.UpdatedAt.Equal(got.UpdatedAt))
}

func (s *ContractSuite) TestUpdateByIDClearsDescription() {
	desc := "будет удалено"
	created := s.insert("Задача", task.WithDescription(&desc))

	updated, err := s.Repo.UpdateByID(s.Ctx, created.ID, task.NewPatch(task.WithDescription(nil), task.WithTags(nil)))
	s.Require().NoError(err)
	s.Nil(updated.Description)
	s.NotNil(updated.Tags)
	s.Empty(updated.Tags)
}

func (s *ContractSuite) TestUpdateByIDMissing() {
	_, err := s.Repo.UpdateByID(s.Ctx, uuid.NewString(), task.NewPatch(task.WithTitle("x")))
	s.ErrorIs(err, repo.ErrNotFound)
}

func (s *ContractSuite) TestDeleteByIDTwice() {
	created := s.insert("Удаляемая")

	ok, err := s.Repo.DeleteByID(s.Ctx, created.ID)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.Repo.DeleteByID(s.Ctx, created.ID)
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.Repo.FindByID(s.Ctx, created.ID)
	s.ErrorIs(err, repo.ErrNotFound)
}

func (s *ContractSuite) TestFindFilterAndSort() {
	s.insert("b", task.WithStatus(task.StatusCompleted), task.WithPriority(task.PriorityLow))
	s.insert("c", task.WithStatus(task.StatusPending), task.WithPriority(task.PriorityHigh))
	s.insert("a", task.WithStatus(task.StatusCompleted), task.WithPriority(task.PriorityHigh))
	s.insert("d", task.WithStatus(task.StatusInProgress), task.WithPriority(task.PriorityHigh))

	tasks, err := s.Repo.Find(s.Ctx, query.Compose(query.Params{Status: "completed", SortBy: "title", SortOrder: "asc"}))
	s.Require().NoError(err)
	s.Equal([]string{"a", "b"}, titles(tasks))

	tasks, err = s.Repo.Find(s.Ctx, query.Compose(query.Params{Priority: "high", SortBy: "title", SortOrder: "desc"}))
	s.Require().NoError(err)
	s.Equal([]string{"d", "c", "a"}, titles(tasks))

	tasks, err = s.Repo.Find(s.Ctx, query.Compose(query.Params{Status: "completed", Priority: "high"}))
	s.Require().NoError(err)
	s.Equal([]string{"a"}, titles(tasks))

	tasks, err = s.Repo.Find(s.Ctx, query.Compose(query.Params{Status: "archived"}))
	s.Require().NoError(err)
	s.NotNil(tasks)
	s.Empty(tasks)
}

func (s *ContractSuite) TestFindDefaultOrderNewestFirst() {
	for _, title := range []string{"first", "second", "third"} {
		s.insert(title)
		time.Sleep(2 * time.Millisecond)
	}

	tasks, err := s.Repo.Find(s.Ctx, query.Default())
	s.Require().NoError(err)
	s.Equal([]string{"third", "second", "first"}, titles(tasks))
}

func (s *ContractSuite) TestFindByDueDateUndatedFirst() {
	early := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.AddDate(0, 1, 0)
	s.insert("late", task.WithDueDate(&late))
	s.insert("none")
	s.insert("early", task.WithDueDate(&early))

	tasks, err := s.Repo.Find(s.Ctx, query.Compose(query.Params{SortBy: "dueDate", SortOrder: "asc"}))
	s.Require().NoError(err)
	s.Equal([]string{"none", "early", "late"}, titles(tasks))

	tasks, err = s.Repo.Find(s.Ctx, query.Compose(query.Params{SortBy: "dueDate", SortOrder: "desc"}))
	s.Require().NoError(err)
	s.Equal([]string{"late", "early", "none"}, titles(tasks))
}

func (s *ContractSuite) TestCountAndGroup() {
	n, err := s.Repo.CountAll(s.Ctx)
	s.Require().NoError(err)
	s.Zero(n)

	groups, err := s.Repo.GroupCountBy(s.Ctx, task.GroupByStatus)
	s.Require().NoError(err)
	s.Empty(groups)

	s.insert("1", task.WithStatus(task.StatusCompleted), task.WithPriority(task.PriorityLow))
	s.insert("2", task.WithStatus(task.StatusCompleted), task.WithPriority(task.PriorityHigh))
	s.insert("3", task.WithStatus(task.StatusInProgress), task.WithPriority(task.PriorityHigh))

	n, err = s.Repo.CountAll(s.Ctx)
	s.Require().NoError(err)
	s.Equal(int64(3), n)

	groups, err = s.Repo.GroupCountBy(s.Ctx, task.GroupByStatus)
	s.Require().NoError(err)
	s.Equal(map[string]int64{"completed": 2, "in-progress": 1}, groups)

	groups, err = s.Repo.GroupCountBy(s.Ctx, task.GroupByPriority)
	s.Require().NoError(err)
	s.Equal(map[string]int64{"low": 1, "high": 2}, groups)
}

func titles(tasks []*task.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	return out
}
