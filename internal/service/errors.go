package service

import (
	"errors"
	"fmt"

	"taskManager/internal/models/task"
)

const (
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidStatus      = "INVALID_STATUS"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
)

type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

type Detail struct {
	Key     string
	Payload any
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error {
	return b.Err
}

func ToDetail(key string, payload any) Detail {
	return Detail{
		Key:     key,
		Payload: payload,
	}
}

func NewBusinessError(code string, message string, details ...Detail) *BusinessError {
	busErr := &BusinessError{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}

	for _, detail := range details {
		busErr.Details[detail.Key] = detail.Payload
	}

	return busErr
}

func NewValidationFailed(errs task.ValidationErrors) *BusinessError {
	busErr := NewBusinessError(CodeValidationFailed, "Validation failed", ToDetail("errors", errs))
	busErr.Err = errs
	return busErr
}

func NewNotFound(id string) *BusinessError {
	return NewBusinessError(CodeNotFound, "Task not found", ToDetail("id", id))
}

func NewInvalidStatus(value string) *BusinessError {
	busErr := NewBusinessError(CodeInvalidStatus,
		"Status must be pending, in-progress, or completed",
		ToDetail("status", value),
		ToDetail("allowed", task.Statuses()),
	)
	busErr.Err = task.ErrInvalidStatus
	return busErr
}

// NewStorageUnavailable сохраняет причину: транспорт сам решает, что показать пользователю
func NewStorageUnavailable(operation string, cause error) *BusinessError {
	busErr := NewBusinessError(CodeStorageUnavailable, "Storage unavailable", ToDetail("operation", operation))
	busErr.Err = cause
	return busErr
}

func HasCode(err error, code string) bool {
	var busErr *BusinessError
	return errors.As(err, &busErr) && busErr.Code == code
}
