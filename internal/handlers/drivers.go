package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"dispatch-engine/internal/config"
	"dispatch-engine/internal/kafka"
	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"
	"dispatch-engine/internal/redis"
	"dispatch-engine/internal/services"
)

// DriverHandler представляет обработчик водителей
type DriverHandler struct {
	driverService   *services.DriverService
	deliveryService *services.DeliveryService
	producer        *kafka.Producer
	cacheService    *services.CacheService
	dispatch        *config.DispatchConfig
	log             *logger.Logger
}

// NewDriverHandler создает новый обработчик водителей
func NewDriverHandler(driverService *services.DriverService, deliveryService *services.DeliveryService, producer *kafka.Producer, cacheService *services.CacheService, dispatchCfg *config.DispatchConfig, log *logger.Logger) *DriverHandler {
	return &DriverHandler{
		driverService:   driverService,
		deliveryService: deliveryService,
		producer:        producer,
		cacheService:    cacheService,
		dispatch:        dispatchCfg,
		log:             log,
	}
}

// RegisterDriver регистрирует нового водителя
func (h *DriverHandler) RegisterDriver(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.RegisterDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if !models.ValidVehicleType(req.VehicleType) {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid vehicle type")
		return
	}

	driver, err := h.driverService.RegisterDriver(&req)
	if err != nil {
		writeServiceError(w, h.log, err, "register driver")
		return
	}

	// Кеширование водителя в Redis
	cacheKey := services.BuildKey(redis.KeyPrefixDriver, driver.ID.String())
	if err := h.cacheService.Set(r.Context(), cacheKey, driver, h.cacheService.GetDefaultTTL()); err != nil {
		h.log.WithError(err).Error("Failed to cache driver")
	}

	writeJSONResponse(w, http.StatusCreated, driver)
}

// GetDriver получает водителя по ID
func (h *DriverHandler) GetDriver(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	driverID, err := extractUUIDFromPath(r.URL.Path, "/api/drivers/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid driver ID")
		return
	}

	// Попытка получить из кеша
	cacheKey := services.BuildKey(redis.KeyPrefixDriver, driverID.String())
	var cached models.Driver
	found, _ := h.cacheService.Get(r.Context(), cacheKey, &cached)
	if found {
		h.log.WithField("driver_id", driverID).Debug("Driver retrieved from cache")
		writeJSONResponse(w, http.StatusOK, &cached)
		return
	}

	driver, err := h.driverService.GetDriver(driverID)
	if err != nil {
		writeServiceError(w, h.log, err, "get driver")
		return
	}

	if err := h.cacheService.Set(r.Context(), cacheKey, driver, h.cacheService.GetDefaultTTL()); err != nil {
		h.log.WithError(err).Error("Failed to cache driver")
	}

	writeJSONResponse(w, http.StatusOK, driver)
}

// UpdateDriverStatus обновляет статус водителя
func (h *DriverHandler) UpdateDriverStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	driverID, err := extractUUIDFromPath(r.URL.Path, "/api/drivers/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid driver ID")
		return
	}

	var req models.UpdateDriverStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !models.ValidDriverStatus(req.Status) {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid driver status")
		return
	}

	// Старый статус нужен для события
	current, err := h.driverService.GetDriver(driverID)
	if err != nil {
		writeServiceError(w, h.log, err, "get driver")
		return
	}
	oldStatus := current.Status

	driver, err := h.driverService.UpdateDriverStatus(driverID, req.Status)
	if err != nil {
		writeServiceError(w, h.log, err, "update driver status")
		return
	}

	if err := h.producer.PublishDriverStatusChanged(driverID, oldStatus, driver.Status); err != nil {
		h.log.WithError(err).Error("Failed to publish driver status changed event")
	}

	// Инвалидация кеша
	cacheKey := services.BuildKey(redis.KeyPrefixDriver, driverID.String())
	if err := h.cacheService.Delete(r.Context(), cacheKey); err != nil {
		h.log.WithError(err).Error("Failed to invalidate driver cache")
	}

	writeJSONResponse(w, http.StatusOK, driver)
}

// UpdateDriverLocation обновляет местоположение водителя и переносит
// свежие координаты в его активную доставку
func (h *DriverHandler) UpdateDriverLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	driverID, err := extractUUIDFromPath(r.URL.Path, "/api/drivers/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid driver ID")
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

	if err := h.driverService.UpdateDriverLocation(driverID, req.Lat, req.Lng); err != nil {
		writeServiceError(w, h.log, err, "update driver location")
		return
	}

	// Координаты водителя обновляют и его активную доставку
	if err := h.deliveryService.RefreshDriverDelivery(driverID, req.Lat, req.Lng); err != nil {
		h.log.WithError(err).WithField("driver_id", driverID).Error("Failed to refresh active delivery location")
	}

	if err := h.producer.PublishLocationUpdated(driverID, req.Lat, req.Lng); err != nil {
		h.log.WithError(err).Error("Failed to publish location updated event")
	}

	// Инвалидация кеша
	cacheKey := services.BuildKey(redis.KeyPrefixDriver, driverID.String())
	if err := h.cacheService.Delete(r.Context(), cacheKey); err != nil {
		h.log.WithError(err).Error("Failed to invalidate driver cache")
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Driver location updated successfully"})
}

// GetDrivers получает список водителей с фильтрацией
func (h *DriverHandler) GetDrivers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()

	var status *models.DriverStatus
	if statusStr := query.Get("status"); statusStr != "" {
		s := models.DriverStatus(statusStr)
		if !models.ValidDriverStatus(s) {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid driver status")
			return
		}
		status = &s
	}

	limit, offset := parseLimitOffset(r)

	drivers, err := h.driverService.GetDrivers(status, limit, offset)
	if err != nil {
		writeServiceError(w, h.log, err, "get drivers")
		return
	}

	writeJSONResponse(w, http.StatusOK, drivers)
}

// GetNearbyDrivers получает доступных водителей рядом с точкой
func (h *DriverHandler) GetNearbyDrivers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()

	lat, err := strconv.ParseFloat(query.Get("lat"), 64)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid lat parameter")
		return
	}

	lng, err := strconv.ParseFloat(query.Get("lng"), 64)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid lng parameter")
		return
	}

	radiusKm := h.dispatch.SearchRadiusKm
	if radiusStr := query.Get("radius_km"); radiusStr != "" {
		if rad, err := strconv.ParseFloat(radiusStr, 64); err == nil && rad > 0 {
			radiusKm = rad
		}
	}

	var vehicleType *models.VehicleType
	if vtStr := query.Get("vehicle_type"); vtStr != "" {
		vt := models.VehicleType(vtStr)
		if !models.ValidVehicleType(vt) {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid vehicle type")
			return
		}
		vehicleType = &vt
	}

	drivers, err := h.driverService.FindNearby(lat, lng, radiusKm, vehicleType)
	if err != nil {
		writeServiceError(w, h.log, err, "get nearby drivers")
		return
	}

	writeJSONResponse(w, http.StatusOK, drivers)
}
