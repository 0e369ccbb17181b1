package services

import (
	"math"

	"dispatch-engine/internal/config"
	"dispatch-engine/internal/geo"
	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"
)

// PricingService рассчитывает стоимость доставки.
// Для точек внутри известной зоны применяется тариф зоны,
// вне зон — базовая ставка плюс цена за километр.
type PricingService struct {
	config *config.PricingConfig
	log    *logger.Logger
}

// NewPricingService создает новый сервис расчета стоимости
func NewPricingService(cfg *config.PricingConfig, log *logger.Logger) *PricingService {
	return &PricingService{
		config: cfg,
		log:    log,
	}
}

// DeliveryFee возвращает стоимость доставки между двумя точками.
// zone может быть nil, если точка доставки не попала ни в одну зону.
func (s *PricingService) DeliveryFee(pickup, dropoff models.Location, zone *models.Zone) float64 {
	if zone != nil {
		return zone.DeliveryFee
	}

	distance := geo.DistanceKm(pickup, dropoff)
	cost := s.config.BasePrice + distance*s.config.PricePerKm

	if cost < s.config.MinPrice {
		cost = s.config.MinPrice
	}
	if cost > s.config.MaxPrice {
		cost = s.config.MaxPrice
	}

	return math.Round(cost*100) / 100
}
