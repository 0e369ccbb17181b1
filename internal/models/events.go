package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType представляет тип события
type EventType string

const (
	EventTypeDeliveryCreated       EventType = "delivery.created"
	EventTypeDeliveryStatusChanged EventType = "delivery.status_changed"
	EventTypeDriverAssigned        EventType = "driver.assigned"
	EventTypeDriverStatusChanged   EventType = "driver.status_changed"
	EventTypeLocationUpdated       EventType = "driver.location_updated"
)

// Event представляет базовое событие
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// DeliveryCreatedEvent представляет событие создания доставки
type DeliveryCreatedEvent struct {
	DeliveryID    uuid.UUID `json:"delivery_id"`
	OrderID       string    `json:"order_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	PickupCity    string    `json:"pickup_city,omitempty"`
	DeliveryCity  string    `json:"delivery_city,omitempty"`
	DeliveryFee   float64   `json:"delivery_fee"`
}

// DeliveryStatusChangedEvent представляет событие изменения статуса доставки
type DeliveryStatusChangedEvent struct {
	DeliveryID uuid.UUID      `json:"delivery_id"`
	OldStatus  DeliveryStatus `json:"old_status"`
	NewStatus  DeliveryStatus `json:"new_status"`
	DriverID   *uuid.UUID     `json:"driver_id,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// DriverAssignedEvent представляет событие назначения водителя на доставку
type DriverAssignedEvent struct {
	DeliveryID uuid.UUID `json:"delivery_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	DriverName string    `json:"driver_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// DriverStatusChangedEvent представляет событие изменения статуса водителя
type DriverStatusChangedEvent struct {
	DriverID  uuid.UUID    `json:"driver_id"`
	OldStatus DriverStatus `json:"old_status"`
	NewStatus DriverStatus `json:"new_status"`
	Timestamp time.Time    `json:"timestamp"`
}

// LocationUpdatedEvent представляет событие обновления местоположения водителя
type LocationUpdatedEvent struct {
	DriverID  uuid.UUID `json:"driver_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}
