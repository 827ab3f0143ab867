package task

import (
	"errors"
	"fmt"
)

var ErrInvalidStatus = errors.New("status must be pending, in-progress, or completed")

// StatusPatch - короткий путь смены статуса: проверка по тому же множеству и патч только из статуса.
// Результат в хранилище совпадает с полным обновлением {status: raw}.
func StatusPatch(raw string) (Patch, error) {
	s, ok := ParseStatus(raw)
	if !ok {
		return Patch{}, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return NewPatch(WithStatus(s)), nil
}

// CanTransition - переходы не ограничены: любой статус в любой, completed не терминален.
// Неизвестный текущий статус (старые записи) тоже можно исправить.
func CanTransition(_, to Status) bool {
	return to.Valid()
}
