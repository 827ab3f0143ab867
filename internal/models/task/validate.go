package task

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Payload - сырой кандидат задачи: декодированный JSON-объект. Неизвестные ключи игнорируются.
type Payload map[string]any

// FieldError - ошибка одного поля с человекочитаемой причиной
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors - все ошибки кандидата сразу, а не только первая
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Message возвращает причину ошибки для поля, если она есть
func (v ValidationErrors) Message(field string) (string, bool) {
	for _, fe := range v {
		if fe.Field == field {
			return fe.Message, true
		}
	}
	return "", false
}

var fieldOrder = []FieldName{FieldTitle, FieldDescription, FieldStatus, FieldPriority, FieldDueDate, FieldTags}

var messages = map[string]string{
	"title.required":    "Title is required",
	"title.nonblank":    "Title is required",
	"title.type":        "Title must be a string",
	"title.max":         fmt.Sprintf("Title cannot exceed %d characters", MaxTitleLength),
	"description.type":  "Description must be a string",
	"description.max":   fmt.Sprintf("Description cannot exceed %d characters", MaxDescriptionLength),
	"status.status":     "Status must be pending, in-progress, or completed",
	"priority.priority": "Priority must be low, medium, or high",
	"dueDate.duedate":   "Due date must be a valid date",
	"tags.type":         "Tags must be an array",
	"tags.elements":     "Tags must be an array of strings",
}

// dueDateLayouts - допустимые форматы срока: ISO 8601 с зоной, без зоны (UTC) и просто дата
var dueDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = validate.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		return Priority(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("duedate", func(fl validator.FieldLevel) bool {
		_, err := ParseDueDate(fl.Field().String())
		return err == nil
	})
}

// candidate - кандидат после проверки типов; nil означает «поле не пришло»
type candidate struct {
	Title       *string `json:"title" validate:"omitnil,nonblank,max=100"`
	Description *string `json:"description" validate:"omitnil,max=500"`
	Status      *string `json:"status" validate:"omitnil,status"`
	Priority    *string `json:"priority" validate:"omitnil,priority"`
	DueDate     *string `json:"dueDate" validate:"omitnil,duedate"`

	// поля, пришедшие явным null
	clearDescription bool
	clearDueDate     bool

	tags    []string
	hasTags bool
}

// ParseDueDate разбирает срок в UTC. Прошедшие даты допустимы.
func ParseDueDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("неверный формат даты %q", raw)
}

// ValidateCreate проверяет полный кандидат и применяет значения по умолчанию
func ValidateCreate(p Payload) (*Task, error) {
	c, errs := decode(p)
	if _, ok := errs[string(FieldTitle)]; !ok && c.Title == nil {
		errs[string(FieldTitle)] = messages["title.required"]
	}
	if err := check(c, errs); err != nil {
		return nil, err
	}

	t := &Task{
		Status:   DefaultStatus,
		Priority: DefaultPriority,
		Tags:     []string{},
	}
	NewPatch(c.options()...).Apply(t)
	return t, nil
}

// ValidateUpdate проверяет только пришедшие поля и возвращает патч
func ValidateUpdate(p Payload) (Patch, error) {
	c, errs := decode(p)
	if err := check(c, errs); err != nil {
		return Patch{}, err
	}
	return NewPatch(c.options()...), nil
}

func (c *candidate) options() []PatchOption {
	var opts []PatchOption
	if c.Title != nil {
		opts = append(opts, WithTitle(*c.Title))
	}
	if c.Description != nil {
		opts = append(opts, WithDescription(c.Description))
	} else if c.clearDescription {
		opts = append(opts, WithDescription(nil))
	}
	if c.Status != nil {
		opts = append(opts, WithStatus(Status(*c.Status)))
	}
	if c.Priority != nil {
		opts = append(opts, WithPriority(Priority(*c.Priority)))
	}
	if c.DueDate != nil {
		due, _ := ParseDueDate(*c.DueDate)
		opts = append(opts, WithDueDate(&due))
	} else if c.clearDueDate {
		opts = append(opts, WithDueDate(nil))
	}
	if c.hasTags {
		opts = append(opts, WithTags(c.tags))
	}
	return opts
}

// decode - первая фаза: приводит сырые значения к типам кандидата, собирая ошибки типов
func decode(p Payload) (*candidate, map[string]string) {
	c := &candidate{}
	errs := make(map[string]string)

	if raw, ok := p[string(FieldTitle)]; ok {
		switch v := raw.(type) {
		case string:
			title := strings.TrimSpace(v)
			c.Title = &title
		case nil:
			errs[string(FieldTitle)] = messages["title.required"]
		default:
			errs[string(FieldTitle)] = messages["title.type"]
		}
	}

	if raw, ok := p[string(FieldDescription)]; ok {
		switch v := raw.(type) {
		case string:
			c.Description = &v
		case *string:
			if v == nil {
				c.clearDescription = true
			} else {
				d := *v
				c.Description = &d
			}
		case nil:
			c.clearDescription = true
		default:
			errs[string(FieldDescription)] = messages["description.type"]
		}
	}

	if raw, ok := p[string(FieldStatus)]; ok {
		if s, ok := enumString(raw); ok {
			c.Status = &s
		} else {
			errs[string(FieldStatus)] = messages["status.status"]
		}
	}
	if raw, ok := p[string(FieldPriority)]; ok {
		if s, ok := enumString(raw); ok {
			c.Priority = &s
		} else {
			errs[string(FieldPriority)] = messages["priority.priority"]
		}
	}

	if raw, ok := p[string(FieldDueDate)]; ok {
		switch v := raw.(type) {
		case string:
			c.DueDate = &v
		case time.Time:
			s := v.Format(time.RFC3339Nano)
			c.DueDate = &s
		case *time.Time:
			if v == nil {
				c.clearDueDate = true
			} else {
				s := v.Format(time.RFC3339Nano)
				c.DueDate = &s
			}
		case nil:
			c.clearDueDate = true
		default:
			errs[string(FieldDueDate)] = messages["dueDate.duedate"]
		}
	}

	if raw, ok := p[string(FieldTags)]; ok {
		tags, msg := decodeTags(raw)
		if msg != "" {
			errs[string(FieldTags)] = msg
		} else {
			c.tags, c.hasTags = tags, true
		}
	}

	return c, errs
}

func enumString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case Status:
		return string(v), true
	case Priority:
		return string(v), true
	default:
		return "", false
	}
}

func decodeTags(raw any) ([]string, string) {
	switch v := raw.(type) {
	case []string:
		return append([]string{}, v...), ""
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, messages["tags.elements"]
			}
			tags = append(tags, s)
		}
		return tags, ""
	default:
		return nil, messages["tags.type"]
	}
}

// check - вторая фаза: правила validator поверх ошибок типов, в порядке полей
func check(c *candidate, errs map[string]string) error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			if _, seen := errs[fe.Field()]; seen {
				continue
			}
			msg, ok := messages[fe.Field()+"."+fe.Tag()]
			if !ok {
				msg = fmt.Sprintf("failed on %s", fe.Tag())
			}
			errs[fe.Field()] = msg
		}
	}

	if len(errs) == 0 {
		return nil
	}
	out := make(ValidationErrors, 0, len(errs))
	for _, name := range fieldOrder {
		if msg, ok := errs[string(name)]; ok {
			out = append(out, FieldError{Field: string(name), Message: msg})
		}
	}
	return out
}
