package task

import (
	"slices"
	"time"
)

// Field - значение частичного обновления. Set == false означает «поле не трогать».
type Field[T any] struct {
	Set   bool
	Value T
}

func SetField[T any](value T) Field[T] {
	return Field[T]{Set: true, Value: value}
}

// Patch - нормализованный фрагмент задачи: только те поля, что пришли в запросе и прошли валидацию.
// Description и DueDate со значением nil означают очистку поля.
type Patch struct {
	Title       Field[string]
	Description Field[*string]
	Status      Field[Status]
	Priority    Field[Priority]
	DueDate     Field[*time.Time]
	Tags        Field[[]string]
}

type PatchOption func(*Patch)

func NewPatch(options ...PatchOption) Patch {
	var p Patch
	for _, opt := range options {
		if opt != nil {
			opt(&p)
		}
	}
	return p
}

func WithTitle(title string) PatchOption {
	return func(p *Patch) {
		p.Title = SetField(title)
	}
}

func WithDescription(description *string) PatchOption {
	return func(p *Patch) {
		p.Description = SetField(description)
	}
}

func WithStatus(status Status) PatchOption {
	return func(p *Patch) {
		p.Status = SetField(status)
	}
}

func WithPriority(priority Priority) PatchOption {
	return func(p *Patch) {
		p.Priority = SetField(priority)
	}
}

func WithDueDate(dueDate *time.Time) PatchOption {
	return func(p *Patch) {
		p.DueDate = SetField(dueDate)
	}
}

func WithTags(tags []string) PatchOption {
	if tags == nil {
		tags = []string{}
	}
	return func(p *Patch) {
		p.Tags = SetField(tags)
	}
}

func (p Patch) IsEmpty() bool {
	return len(p.Changes()) == 0
}

// Apply переносит установленные поля патча на задачу. UpdatedAt выставляет хранилище.
func (p Patch) Apply(t *Task) {
	if p.Title.Set {
		t.Title = p.Title.Value
	}
	if p.Description.Set {
		t.Description = cloneString(p.Description.Value)
	}
	if p.Status.Set {
		t.Status = p.Status.Value
	}
	if p.Priority.Set {
		t.Priority = p.Priority.Value
	}
	if p.DueDate.Set {
		t.DueDate = cloneTime(p.DueDate.Value)
	}
	if p.Tags.Set {
		t.Tags = slices.Clone(p.Tags.Value)
		if t.Tags == nil {
			t.Tags = []string{}
		}
	}
}

type FieldName string

const (
	FieldTitle       FieldName = "title"
	FieldDescription FieldName = "description"
	FieldStatus      FieldName = "status"
	FieldPriority    FieldName = "priority"
	FieldDueDate     FieldName = "dueDate"
	FieldTags        FieldName = "tags"
)

type Change struct {
	Field FieldName
	Value any
}

// Changes перечисляет изменённые поля в фиксированном порядке.
// Значения: string, *string, Status, Priority, *time.Time, []string.
func (p Patch) Changes() []Change {
	changes := make([]Change, 0, 6)
	if p.Title.Set {
		changes = append(changes, Change{Field: FieldTitle, Value: p.Title.Value})
	}
	if p.Description.Set {
		changes = append(changes, Change{Field: FieldDescription, Value: p.Description.Value})
	}
	if p.Status.Set {
		changes = append(changes, Change{Field: FieldStatus, Value: p.Status.Value})
	}
	if p.Priority.Set {
		changes = append(changes, Change{Field: FieldPriority, Value: p.Priority.Value})
	}
	if p.DueDate.Set {
		changes = append(changes, Change{Field: FieldDueDate, Value: p.DueDate.Value})
	}
	if p.Tags.Set {
		tags := p.Tags.Value
		if tags == nil {
			tags = []string{}
		}
		changes = append(changes, Change{Field: FieldTags, Value: tags})
	}
	return changes
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
