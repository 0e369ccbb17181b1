package services

import (
	"context"
	"time"

	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"
	"dispatch-engine/internal/redis"

	"github.com/google/uuid"
)

// TrackingService собирает публичную картину отслеживания доставки.
// Живое местоположение водителя имеет приоритет над последней
// координатой доставки; горячие данные кешируются в Redis.
type TrackingService struct {
	deliveries *DeliveryService
	drivers    *DriverService
	cache      *CacheService
	log        *logger.Logger
}

// NewTrackingService создает новый сервис отслеживания
func NewTrackingService(deliveries *DeliveryService, drivers *DriverService, cache *CacheService, log *logger.Logger) *TrackingService {
	return &TrackingService{
		deliveries: deliveries,
		drivers:    drivers,
		cache:      cache,
		log:        log,
	}
}

// Track возвращает информацию для отслеживания доставки
func (s *TrackingService) Track(ctx context.Context, deliveryID uuid.UUID) (*models.TrackingInfo, error) {
	cacheKey := BuildKey(redis.KeyPrefixTracking, deliveryID.String())

	var cached models.TrackingInfo
	found, err := s.cache.Get(ctx, cacheKey, &cached)
	if err == nil && found {
		return &cached, nil
	}

	delivery, err := s.deliveries.GetDelivery(deliveryID)
	if err != nil {
		return nil, err
	}

	info := &models.TrackingInfo{
		DeliveryID:       delivery.ID,
		OrderID:          delivery.OrderID,
		Status:           delivery.Status,
		EstimatedArrival: delivery.EstimatedArrival,
		TrackingHistory:  delivery.TrackingHistory,
	}

	if delivery.CurrentLat != nil && delivery.CurrentLng != nil {
		info.CurrentLocation = &models.Location{Lat: *delivery.CurrentLat, Lng: *delivery.CurrentLng}
	}

	// Для активной доставки живые координаты водителя точнее,
	// чем последняя координата, записанная в доставку
	if delivery.DriverID != nil {
		driver, err := s.drivers.GetDriver(*delivery.DriverID)
		if err != nil {
			s.log.WithError(err).WithField("driver_id", *delivery.DriverID).Warn("Failed to get driver for tracking")
		} else {
			info.Driver = driver.Summary()
			if delivery.Status.IsActive() && driver.HasLocation() {
				info.CurrentLocation = &models.Location{Lat: *driver.CurrentLat, Lng: *driver.CurrentLng}
			}
		}
	}

	ttl := s.cache.GetHotDataTTL()
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if err := s.cache.Set(ctx, cacheKey, info, ttl); err != nil {
		s.log.WithError(err).Debug("Failed to cache tracking info")
	}

	return info, nil
}

// Invalidate сбрасывает кеш отслеживания после изменения доставки
func (s *TrackingService) Invalidate(ctx context.Context, deliveryID uuid.UUID) {
	cacheKey := BuildKey(redis.KeyPrefixTracking, deliveryID.String())
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		s.log.WithError(err).WithField("delivery_id", deliveryID).Debug("Failed to invalidate tracking cache")
	}
}
