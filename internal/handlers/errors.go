package handlers

import (
	"errors"
	"net/http"

	"taskManager/internal/logger"
	"taskManager/internal/service"

	"go.uber.org/zap"
)

const invalidStatusMessage = "Invalid status. Must be pending, in-progress, or completed"

// handleBusinessError пишет ответ для любой ошибки сервиса. failMessage уходит клиенту,
// когда хранилище недоступно: причина остаётся только в логе.
func handleBusinessError(w http.ResponseWriter, r *http.Request, err error, failMessage string) {
	var businessErr *service.BusinessError
	if !errors.As(err, &businessErr) {
		logger.Error("HTTP: Неизвестная ошибка сервиса", err,
			zap.String("path", r.URL.Path),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusInternalServerError, failMessage)
		return
	}

	statusCode := mapBusinessErrorToHTTP(businessErr.Code)

	switch businessErr.Code {
	case service.CodeValidationFailed:
		logger.Warn("HTTP: Ошибка валидации",
			zap.Any("errors", businessErr.Details["errors"]),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, statusCode, businessErr.Message,
			toPayload("errors", businessErr.Details["errors"]))

	case service.CodeInvalidStatus:
		logger.Warn("HTTP: Неверный статус",
			zap.Any("status", businessErr.Details["status"]),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, statusCode, invalidStatusMessage)

	case service.CodeStorageUnavailable:
		logger.Error("HTTP: Хранилище недоступно", businessErr.Err,
			zap.Any("operation", businessErr.Details["operation"]),
			zap.String("path", r.URL.Path))
		responseWithError(w, statusCode, failMessage,
			toPayload("error", businessErr.Code))

	default:
		logger.Warn("HTTP: Бизнес-ошибка",
			zap.String("error_code", businessErr.Code),
			zap.Int("http_status", statusCode))
		responseWithError(w, statusCode, businessErr.Message)
	}
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeValidationFailed, service.CodeInvalidStatus:
		return http.StatusBadRequest
	case service.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
