package models

import (
	"time"

	"github.com/google/uuid"
)

// DriverStatus представляет статус водителя
type DriverStatus string

const (
	DriverStatusOffline   DriverStatus = "offline"
	DriverStatusAvailable DriverStatus = "available"
	DriverStatusBusy      DriverStatus = "busy"
	DriverStatusOnBreak   DriverStatus = "on_break"
)

// ValidDriverStatus проверяет, что строка является допустимым статусом водителя
func ValidDriverStatus(s DriverStatus) bool {
	switch s {
	case DriverStatusOffline, DriverStatusAvailable, DriverStatusBusy, DriverStatusOnBreak:
		return true
	}
	return false
}

// VehicleType представляет тип транспортного средства водителя
type VehicleType string

const (
	VehicleTypeMotorcycle VehicleType = "motorcycle"
	VehicleTypeCar        VehicleType = "car"
	VehicleTypeVan        VehicleType = "van"
	VehicleTypeTruck      VehicleType = "truck"
	VehicleTypeBicycle    VehicleType = "bicycle"
)

// ValidVehicleType проверяет, что строка является допустимым типом транспорта
func ValidVehicleType(v VehicleType) bool {
	switch v {
	case VehicleTypeMotorcycle, VehicleTypeCar, VehicleTypeVan, VehicleTypeTruck, VehicleTypeBicycle:
		return true
	}
	return false
}

// HeavyCapable сообщает, может ли транспорт перевозить тяжелые посылки (>10 кг)
func (v VehicleType) HeavyCapable() bool {
	return v == VehicleTypeVan || v == VehicleTypeTruck
}

// Driver представляет водителя в системе
type Driver struct {
	ID                 uuid.UUID    `json:"id" db:"id"`
	Name               string       `json:"name" db:"name"`
	Phone              string       `json:"phone" db:"phone"`
	VehicleType        VehicleType  `json:"vehicle_type" db:"vehicle_type"`
	Status             DriverStatus `json:"status" db:"status"`
	CurrentLat         *float64     `json:"current_lat,omitempty" db:"current_lat"`
	CurrentLng         *float64     `json:"current_lng,omitempty" db:"current_lng"`
	Rating             float64      `json:"rating" db:"rating"`
	TotalDeliveries    int          `json:"total_deliveries" db:"total_deliveries"`
	CompletionRate     float64      `json:"completion_rate" db:"completion_rate"`
	PreferredZones     []string     `json:"preferred_zones" db:"preferred_zones"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at" db:"updated_at"`
	LastLocationUpdate *time.Time   `json:"last_location_update,omitempty" db:"last_location_update"`
}

// HasLocation проверяет, что водитель хотя бы раз сообщил свое местоположение
func (d *Driver) HasLocation() bool {
	return d.CurrentLat != nil && d.CurrentLng != nil
}

// PrefersZone проверяет, входит ли зона в список предпочитаемых зон водителя
func (d *Driver) PrefersZone(zoneID string) bool {
	for _, z := range d.PreferredZones {
		if z == zoneID {
			return true
		}
	}
	return false
}

// DriverSummary представляет краткую информацию о водителе для трекинга
type DriverSummary struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Phone       string      `json:"phone"`
	VehicleType VehicleType `json:"vehicle_type"`
	Rating      float64     `json:"rating"`
}

// Summary возвращает краткую информацию о водителе
func (d *Driver) Summary() *DriverSummary {
	return &DriverSummary{
		ID:          d.ID,
		Name:        d.Name,
		Phone:       d.Phone,
		VehicleType: d.VehicleType,
		Rating:      d.Rating,
	}
}

// NearbyDriver представляет водителя с расстоянием до заданной точки
type NearbyDriver struct {
	*Driver
	DistanceKm float64 `json:"distance_km"`
}

// RegisterDriverRequest представляет запрос на регистрацию водителя
type RegisterDriverRequest struct {
	Name           string      `json:"name" validate:"required"`
	Phone          string      `json:"phone" validate:"required"`
	VehicleType    VehicleType `json:"vehicle_type" validate:"required"`
	PreferredZones []string    `json:"preferred_zones,omitempty"`
}

// UpdateDriverStatusRequest представляет запрос на обновление статуса водителя
type UpdateDriverStatusRequest struct {
	Status DriverStatus `json:"status" validate:"required"`
}

// UpdateLocationRequest представляет запрос на обновление местоположения
type UpdateLocationRequest struct {
	Lat float64 `json:"lat" validate:"min=-90,max=90"`
	Lng float64 `json:"lng" validate:"min=-180,max=180"`
}
