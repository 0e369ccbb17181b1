package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Единый валидатор для всех обработчиков
var validate = validator.New()

// ErrorResponse представляет структуру ответа с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSONResponse отправляет JSON ответ
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeErrorResponse отправляет ответ с ошибкой
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	writeJSONResponse(w, statusCode, response)
}

// writeCodedError отправляет ошибку с машиночитаемым кодом в поле error
func writeCodedError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: code, Message: message})
}

// writeServiceError преобразует доменную ошибку в HTTP статус с кодом
// в теле ответа. Конфликты назначения отдаются как 400 с кодом,
// недопустимый переход статуса — как 409. Неизвестные ошибки
// логируются и скрываются за 500.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, action string) {
	switch {
	case errors.Is(err, models.ErrDriverNotFound):
		writeCodedError(w, http.StatusNotFound, "DRIVER_NOT_FOUND", err.Error())
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrZoneNotFound):
		writeCodedError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, models.ErrAlreadyAssigned):
		writeCodedError(w, http.StatusBadRequest, "ALREADY_ASSIGNED", err.Error())
	case errors.Is(err, models.ErrDriverBusy):
		writeCodedError(w, http.StatusBadRequest, "DRIVER_BUSY", err.Error())
	case errors.Is(err, models.ErrDriverUnavailable):
		writeCodedError(w, http.StatusBadRequest, "DRIVER_UNAVAILABLE", err.Error())
	case errors.Is(err, models.ErrNoDriversAvailable):
		writeCodedError(w, http.StatusBadRequest, "NO_DRIVERS", err.Error())
	case errors.Is(err, models.ErrInvalidTransition):
		writeCodedError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, models.ErrValidation):
		writeCodedError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		log.WithError(err).Error("Failed to " + action)
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

// extractUUIDFromPath извлекает UUID из пути URL
func extractUUIDFromPath(path, prefix string) (uuid.UUID, error) {
	if !strings.HasPrefix(path, prefix) {
		return uuid.Nil, fmt.Errorf("invalid path format")
	}

	// Убираем префикс и получаем ID
	idStr := strings.TrimPrefix(path, prefix)

	// Убираем возможный суффикс (например, /status)
	parts := strings.Split(idStr, "/")
	if len(parts) == 0 {
		return uuid.Nil, fmt.Errorf("missing ID in path")
	}

	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID format: %w", err)
	}

	return id, nil
}

// parseLimitOffset разбирает параметры пагинации из query string
func parseLimitOffset(r *http.Request) (limit, offset int) {
	limit = 50 // По умолчанию
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	offset = 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}

// enableCORS включает CORS заголовки
func enableCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// corsMiddleware добавляет CORS заголовки
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enableCORS(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// loggingMiddleware логирует HTTP запросы
func loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Вызываем следующий обработчик
		next(w, r)

		// Логируем запрос
		duration := time.Since(start)
		fmt.Printf("[%s] %s %s - %v\n",
			start.Format("2006-01-02 15:04:05"),
			r.Method,
			r.URL.Path,
			duration)
	}
}
