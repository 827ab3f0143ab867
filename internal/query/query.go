// Package query превращает необязательные параметры фильтрации и сортировки в нормализованный дескриптор
// для репозитория. С хранилищем пакет не работает.
package query

import (
	"strings"

	"taskManager/internal/models/task"
)

// Params - сырые параметры запроса; пустая строка означает «не передан»
type Params struct {
	Status    string
	Priority  string
	SortBy    string
	SortOrder string
}

type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByTitle     SortField = "title"
	SortByDueDate   SortField = "dueDate"
)

const DefaultSortField = SortByCreatedAt

func SortFields() []SortField {
	return []SortField{SortByCreatedAt, SortByTitle, SortByDueDate}
}

func (f SortField) Valid() bool {
	switch f {
	case SortByCreatedAt, SortByTitle, SortByDueDate:
		return true
	}
	return false
}

type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Filter - nil означает отсутствие фильтра по полю. Значение вне множества не отвергается и просто ничего не находит.
type Filter struct {
	Status   *task.Status
	Priority *task.Priority
}

type Sort struct {
	Field     SortField
	Direction Direction
}

type Descriptor struct {
	Filter Filter
	Sort   Sort
}

// Default - дескриптор без фильтров с сортировкой по умолчанию (createdAt desc)
func Default() Descriptor {
	return Compose(Params{})
}

// Compose нормализует параметры. Поле сортировки проверяется по закрытому множеству,
// неизвестное заменяется на createdAt; направление desc только для токена "desc".
func Compose(p Params) Descriptor {
	var d Descriptor

	if p.Status != "" {
		s := task.Status(p.Status)
		d.Filter.Status = &s
	}
	if p.Priority != "" {
		pr := task.Priority(p.Priority)
		d.Filter.Priority = &pr
	}

	d.Sort.Field = DefaultSortField
	if f := SortField(p.SortBy); f.Valid() {
		d.Sort.Field = f
	}

	d.Sort.Direction = Desc
	if p.SortOrder != "" && p.SortOrder != "desc" {
		d.Sort.Direction = Asc
	}

	return d
}

func (f Filter) IsEmpty() bool {
	return f.Status == nil && f.Priority == nil
}

func (f Filter) Matches(t *task.Task) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	return true
}

// Less - порядок для хранилищ в памяти. Задачи без срока идут раньше датированных при asc.
// При равенстве ключа порядок добирается по createdAt и id, чтобы выдача была стабильной.
func (s Sort) Less(a, b *task.Task) bool {
	c := compare(s.Field, a, b)
	if c == 0 && s.Field != SortByCreatedAt {
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if s.Direction == Desc {
		return c > 0
	}
	return c < 0
}

func compare(field SortField, a, b *task.Task) int {
	switch field {
	case SortByTitle:
		return strings.Compare(a.Title, b.Title)
	case SortByDueDate:
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return -1
		case b.DueDate == nil:
			return 1
		}
		return a.DueDate.Compare(*b.DueDate)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
