package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"taskManager/internal/models/task"
)

const maxBodyBytes = 1 << 20

func checkContentType(r *http.Request, target string) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == target
}

// decodePayload читает тело как JSON-объект. Типы полей проверяет уже валидация задачи.
func decodePayload(w http.ResponseWriter, r *http.Request) (task.Payload, error) {
	defer r.Body.Close()

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	var payload task.Payload
	if err := decoder.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("пустое тело запроса")
		}
		return nil, fmt.Errorf("неверное тело запроса: %w", err)
	}
	if payload == nil {
		return nil, errors.New("тело запроса должно быть JSON-объектом")
	}
	return payload, nil
}
