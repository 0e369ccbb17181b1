package services

import (
	"math"
	"testing"

	"dispatch-engine/internal/config"
	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"

	"github.com/google/uuid"
)

func newTestPricingService() *PricingService {
	cfg := &config.PricingConfig{
		BasePrice:  20.0,
		PricePerKm: 3.5,
		MinPrice:   15.0,
		MaxPrice:   200.0,
	}
	log := logger.New(&config.LoggerConfig{Level: "error", Format: "text"})
	return NewPricingService(cfg, log)
}

func TestDeliveryFeeZoneOverridesDistance(t *testing.T) {
	s := newTestPricingService()

	zone := &models.Zone{ID: uuid.New(), DeliveryFee: 12.5, IsActive: true}
	pickup := models.Location{Lat: 24.7136, Lng: 46.6753}
	dropoff := models.Location{Lat: 24.8136, Lng: 46.7753}

	if got := s.DeliveryFee(pickup, dropoff, zone); got != 12.5 {
		t.Fatalf("fee = %v, want zone fee 12.5", got)
	}
}

func TestDeliveryFeeByDistance(t *testing.T) {
	s := newTestPricingService()

	pickup := models.Location{Lat: 24.7136, Lng: 46.6753}
	// ~10 км к северу
	dropoff := models.Location{Lat: 24.8035, Lng: 46.6753}

	got := s.DeliveryFee(pickup, dropoff, nil)
	want := 20.0 + 10.0*3.5
	if math.Abs(got-want) > 0.5 {
		t.Fatalf("fee = %v, want about %v", got, want)
	}
}

func TestDeliveryFeeClampedToMax(t *testing.T) {
	s := newTestPricingService()

	pickup := models.Location{Lat: 24.7136, Lng: 46.6753}
	dropoff := models.Location{Lat: 26.7136, Lng: 50.0} // сотни километров

	if got := s.DeliveryFee(pickup, dropoff, nil); got != 200.0 {
		t.Fatalf("fee = %v, want max 200", got)
	}
}

func TestDeliveryFeeClampedToMin(t *testing.T) {
	cfg := &config.PricingConfig{
		BasePrice:  5.0,
		PricePerKm: 1.0,
		MinPrice:   15.0,
		MaxPrice:   200.0,
	}
	log := logger.New(&config.LoggerConfig{Level: "error", Format: "text"})
	s := NewPricingService(cfg, log)

	point := models.Location{Lat: 24.7136, Lng: 46.6753}

	if got := s.DeliveryFee(point, point, nil); got != 15.0 {
		t.Fatalf("fee = %v, want min 15", got)
	}
}
