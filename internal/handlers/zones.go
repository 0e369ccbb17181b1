package handlers

import (
	"encoding/json"
	"net/http"

	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"
	"dispatch-engine/internal/redis"
	"dispatch-engine/internal/services"
)

// ZoneHandler представляет обработчик зон обслуживания
type ZoneHandler struct {
	zoneService  *services.ZoneService
	cacheService *services.CacheService
	log          *logger.Logger
}

// NewZoneHandler создает новый обработчик зон
func NewZoneHandler(zoneService *services.ZoneService, cacheService *services.CacheService, log *logger.Logger) *ZoneHandler {
	return &ZoneHandler{
		zoneService:  zoneService,
		cacheService: cacheService,
		log:          log,
	}
}

// CreateZone создает новую зону обслуживания
func (h *ZoneHandler) CreateZone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.CreateZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	zone, err := h.zoneService.CreateZone(&req)
	if err != nil {
		writeServiceError(w, h.log, err, "create zone")
		return
	}

	h.invalidateZoneList(r)
	writeJSONResponse(w, http.StatusCreated, zone)
}

// GetZone получает зону по ID
func (h *ZoneHandler) GetZone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	zoneID, err := extractUUIDFromPath(r.URL.Path, "/api/zones/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid zone ID")
		return
	}

	zone, err := h.zoneService.GetZone(zoneID)
	if err != nil {
		writeServiceError(w, h.log, err, "get zone")
		return
	}

	writeJSONResponse(w, http.StatusOK, zone)
}

// GetZones получает список зон с фильтрацией
func (h *ZoneHandler) GetZones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()

	filter := models.ZoneFilter{City: query.Get("city")}
	if activeStr := query.Get("active"); activeStr != "" {
		active := activeStr == "true"
		filter.Active = &active
	}

	// Список всех активных зон кешируется, он нужен каждому назначению
	cacheKey := services.BuildListKey(redis.KeyPrefixZone, filter.City, query.Get("active"))
	var cached []*models.Zone
	found, _ := h.cacheService.Get(r.Context(), cacheKey, &cached)
	if found {
		writeJSONResponse(w, http.StatusOK, cached)
		return
	}

	zones, err := h.zoneService.ListZones(filter)
	if err != nil {
		writeServiceError(w, h.log, err, "get zones")
		return
	}

	if err := h.cacheService.Set(r.Context(), cacheKey, zones, h.cacheService.GetDefaultTTL()); err != nil {
		h.log.WithError(err).Error("Failed to cache zones")
	}

	writeJSONResponse(w, http.StatusOK, zones)
}

// UpdateZone обновляет параметры зоны
func (h *ZoneHandler) UpdateZone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	zoneID, err := extractUUIDFromPath(r.URL.Path, "/api/zones/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid zone ID")
		return
	}

	var req models.UpdateZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	zone, err := h.zoneService.UpdateZone(zoneID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "update zone")
		return
	}

	h.invalidateZoneList(r)
	writeJSONResponse(w, http.StatusOK, zone)
}

// DeactivateZone деактивирует зону, не удаляя ее
func (h *ZoneHandler) DeactivateZone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	zoneID, err := extractUUIDFromPath(r.URL.Path, "/api/zones/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid zone ID")
		return
	}

	if err := h.zoneService.DeactivateZone(zoneID); err != nil {
		writeServiceError(w, h.log, err, "deactivate zone")
		return
	}

	h.invalidateZoneList(r)
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Zone deactivated successfully"})
}

// invalidateZoneList сбрасывает кешированные списки зон
func (h *ZoneHandler) invalidateZoneList(r *http.Request) {
	// Списки кешируются по фильтрам; самый частый вариант - без фильтров
	keys := []string{
		services.BuildListKey(redis.KeyPrefixZone, "", ""),
		services.BuildListKey(redis.KeyPrefixZone, "", "true"),
	}
	if err := h.cacheService.Delete(r.Context(), keys...); err != nil {
		h.log.WithError(err).Error("Failed to invalidate zone cache")
	}
}
