package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"dispatch-engine/internal/kafka"
	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"
	"dispatch-engine/internal/redis"
	"dispatch-engine/internal/services"

	"github.com/google/uuid"
)

// DeliveryHandler представляет обработчик доставок
type DeliveryHandler struct {
	deliveryService *services.DeliveryService
	dispatchService *services.DispatchService
	trackingService *services.TrackingService
	producer        *kafka.Producer
	cacheService    *services.CacheService
	log             *logger.Logger
}

// NewDeliveryHandler создает новый обработчик доставок
func NewDeliveryHandler(deliveryService *services.DeliveryService, dispatchService *services.DispatchService, trackingService *services.TrackingService, producer *kafka.Producer, cacheService *services.CacheService, log *logger.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		deliveryService: deliveryService,
		dispatchService: dispatchService,
		trackingService: trackingService,
		producer:        producer,
		cacheService:    cacheService,
		log:             log,
	}
}

// CreateDelivery создает новую доставку
func (h *DeliveryHandler) CreateDelivery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.CreateDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.PickupLocation.ValidCoordinates() || !req.DeliveryLocation.ValidCoordinates() {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid pickup or delivery coordinates")
		return
	}

	delivery, err := h.deliveryService.CreateDelivery(&req)
	if err != nil {
		writeServiceError(w, h.log, err, "create delivery")
		return
	}

	// Публикация события создания доставки
	if err := h.producer.PublishDeliveryCreated(delivery); err != nil {
		h.log.WithError(err).Error("Failed to publish delivery created event")
	}

	// Кеширование доставки в Redis
	cacheKey := services.BuildKey(redis.KeyPrefixDelivery, delivery.ID.String())
	if err := h.cacheService.Set(r.Context(), cacheKey, delivery, h.cacheService.GetDefaultTTL()); err != nil {
		h.log.WithError(err).Error("Failed to cache delivery")
	}

	writeJSONResponse(w, http.StatusCreated, delivery)
}

// GetDelivery получает доставку по ID
func (h *DeliveryHandler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	deliveryID, err := extractUUIDFromPath(r.URL.Path, "/api/deliveries/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid delivery ID")
		return
	}

	// Попытка получить из кеша
	cacheKey := services.BuildKey(redis.KeyPrefixDelivery, deliveryID.String())
	var cached models.Delivery
	found, _ := h.cacheService.Get(r.Context(), cacheKey, &cached)
	if found {
		h.log.WithField("delivery_id", deliveryID).Debug("Delivery retrieved from cache")
		writeJSONResponse(w, http.StatusOK, &cached)
		return
	}

	delivery, err := h.deliveryService.GetDelivery(deliveryID)
	if err != nil {
		writeServiceError(w, h.log, err, "get delivery")
		return
	}

	if err := h.cacheService.Set(r.Context(), cacheKey, delivery, h.cacheService.GetDefaultTTL()); err != nil {
		h.log.WithError(err).Error("Failed to cache delivery")
	}

	writeJSONResponse(w, http.StatusOK, delivery)
}

// GetDeliveries получает список доставок с фильтрацией
func (h *DeliveryHandler) GetDeliveries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()

	var status *models.DeliveryStatus
	if statusStr := query.Get("status"); statusStr != "" {
		s := models.DeliveryStatus(statusStr)
		if !models.ValidDeliveryStatus(s) {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid delivery status")
			return
		}
		status = &s
	}

	var driverID *uuid.UUID
	if driverStr := query.Get("driver_id"); driverStr != "" {
		id, err := uuid.Parse(driverStr)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid driver_id parameter")
			return
		}
		driverID = &id
	}

	limit, offset := parseLimitOffset(r)

	deliveries, err := h.deliveryService.GetDeliveries(status, driverID, limit, offset)
	if err != nil {
		writeServiceError(w, h.log, err, "get deliveries")
		return
	}

	writeJSONResponse(w, http.StatusOK, deliveries)
}

// AssignDelivery назначает водителя на доставку вручную или автоматически
func (h *DeliveryHandler) AssignDelivery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	deliveryID, err := extractUUIDFromPath(r.URL.Path, "/api/deliveries/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid delivery ID")
		return
	}

	var req models.AssignDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.DriverID == nil && !req.Auto {
		writeErrorResponse(w, http.StatusBadRequest, "Either driver_id or auto must be specified")
		return
	}

	delivery, driver, err := h.dispatchService.Assign(deliveryID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "assign delivery")
		return
	}

	// Публикация события назначения водителя
	if err := h.producer.PublishDriverAssigned(delivery.ID, driver.ID, driver.Name); err != nil {
		h.log.WithError(err).Error("Failed to publish driver assigned event")
	}

	h.invalidateDeliveryCache(r, delivery)

	response := struct {
		Delivery *models.Delivery `json:"delivery"`
		Driver   *models.Driver   `json:"driver"`
	}{
		Delivery: delivery,
		Driver:   driver,
	}

	writeJSONResponse(w, http.StatusOK, response)
}

// GetDispatchCandidates возвращает кандидатов для доставки с оценками
func (h *DeliveryHandler) GetDispatchCandidates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	deliveryID, err := extractUUIDFromPath(r.URL.Path, "/api/deliveries/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid delivery ID")
		return
	}

	candidates, err := h.dispatchService.Candidates(deliveryID)
	if err != nil {
		writeServiceError(w, h.log, err, "get dispatch candidates")
		return
	}

	writeJSONResponse(w, http.StatusOK, candidates)
}

// UpdateDeliveryStatus переводит доставку в новый статус
func (h *DeliveryHandler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	deliveryID, err := extractUUIDFromPath(r.URL.Path, "/api/deliveries/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid delivery ID")
		return
	}

	var req models.UpdateDeliveryStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !models.ValidDeliveryStatus(req.Status) {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid delivery status")
		return
	}
	if req.Location != nil && !req.Location.ValidCoordinates() {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid location coordinates")
		return
	}

	// Старый статус нужен для события
	current, err := h.deliveryService.GetDelivery(deliveryID)
	if err != nil {
		writeServiceError(w, h.log, err, "get delivery")
		return
	}
	oldStatus := current.Status

	delivery, err := h.deliveryService.UpdateDeliveryStatus(deliveryID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "update delivery status")
		return
	}

	if err := h.producer.PublishDeliveryStatusChanged(deliveryID, oldStatus, delivery.Status, delivery.DriverID, req.Notes); err != nil {
		h.log.WithError(err).Error("Failed to publish delivery status changed event")
	}

	h.invalidateDeliveryCache(r, delivery)

	writeJSONResponse(w, http.StatusOK, delivery)
}

// UpdateDeliveryLocation обновляет текущее местоположение доставки
func (h *DeliveryHandler) UpdateDeliveryLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	deliveryID, err := extractUUIDFromPath(r.URL.Path, "/api/deliveries/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid delivery ID")
		return
	}

	var req models.UpdateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	location, eta, err := h.deliveryService.UpdateDeliveryLocation(deliveryID, req.Lat, req.Lng)
	if err != nil {
		writeServiceError(w, h.log, err, "update delivery location")
		return
	}

	h.trackingService.Invalidate(r.Context(), deliveryID)
	cacheKey := services.BuildKey(redis.KeyPrefixDelivery, deliveryID.String())
	if err := h.cacheService.Delete(r.Context(), cacheKey); err != nil {
		h.log.WithError(err).Error("Failed to invalidate delivery cache")
	}

	response := struct {
		CurrentLocation  *models.Location `json:"current_location"`
		EstimatedArrival *time.Time       `json:"estimated_arrival,omitempty"`
	}{
		CurrentLocation:  location,
		EstimatedArrival: eta,
	}

	writeJSONResponse(w, http.StatusOK, response)
}

// SubmitProof сохраняет подтверждение вручения и завершает доставку
func (h *DeliveryHandler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	deliveryID, err := extractUUIDFromPath(r.URL.Path, "/api/deliveries/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid delivery ID")
		return
	}

	var req models.SubmitProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Старый статус нужен для события
	current, err := h.deliveryService.GetDelivery(deliveryID)
	if err != nil {
		writeServiceError(w, h.log, err, "get delivery")
		return
	}
	oldStatus := current.Status

	delivery, err := h.deliveryService.SubmitProof(deliveryID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "submit proof of delivery")
		return
	}

	if err := h.producer.PublishDeliveryStatusChanged(deliveryID, oldStatus, delivery.Status, delivery.DriverID, "Proof of delivery submitted"); err != nil {
		h.log.WithError(err).Error("Failed to publish delivery status changed event")
	}

	h.invalidateDeliveryCache(r, delivery)

	writeJSONResponse(w, http.StatusOK, delivery)
}

// TrackDelivery возвращает информацию для отслеживания доставки
func (h *DeliveryHandler) TrackDelivery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	deliveryID, err := extractUUIDFromPath(r.URL.Path, "/api/deliveries/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid delivery ID")
		return
	}

	info, err := h.trackingService.Track(r.Context(), deliveryID)
	if err != nil {
		writeServiceError(w, h.log, err, "track delivery")
		return
	}

	writeJSONResponse(w, http.StatusOK, info)
}

// GetStats возвращает сводную статистику по системе
func (h *DeliveryHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := h.deliveryService.GetStats()
	if err != nil {
		writeServiceError(w, h.log, err, "get stats")
		return
	}

	writeJSONResponse(w, http.StatusOK, stats)
}

// invalidateDeliveryCache сбрасывает кеши доставки и связанного водителя
func (h *DeliveryHandler) invalidateDeliveryCache(r *http.Request, delivery *models.Delivery) {
	h.trackingService.Invalidate(r.Context(), delivery.ID)

	keys := []string{services.BuildKey(redis.KeyPrefixDelivery, delivery.ID.String())}
	if delivery.DriverID != nil {
		keys = append(keys, services.BuildKey(redis.KeyPrefixDriver, delivery.DriverID.String()))
	}

	if err := h.cacheService.Delete(r.Context(), keys...); err != nil {
		h.log.WithError(err).Error("Failed to invalidate delivery cache")
	}
}
