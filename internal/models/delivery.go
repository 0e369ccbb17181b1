package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus представляет статус доставки
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusAssigned  DeliveryStatus = "assigned"
	DeliveryStatusPickedUp  DeliveryStatus = "picked_up"
	DeliveryStatusInTransit DeliveryStatus = "in_transit"
	DeliveryStatusArrived   DeliveryStatus = "arrived"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
	DeliveryStatusReturned  DeliveryStatus = "returned"
)

// allowedTransitions описывает граф переходов статусов доставки.
// Переход pending -> assigned выполняется только диспетчером.
var allowedTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusPending: {
		DeliveryStatusAssigned, DeliveryStatusCancelled, DeliveryStatusFailed, DeliveryStatusReturned,
	},
	DeliveryStatusAssigned: {
		DeliveryStatusPickedUp, DeliveryStatusInTransit, DeliveryStatusArrived, DeliveryStatusDelivered,
		DeliveryStatusCancelled, DeliveryStatusFailed, DeliveryStatusReturned,
	},
	DeliveryStatusPickedUp: {
		DeliveryStatusInTransit, DeliveryStatusArrived, DeliveryStatusDelivered,
		DeliveryStatusCancelled, DeliveryStatusFailed, DeliveryStatusReturned,
	},
	DeliveryStatusInTransit: {
		DeliveryStatusArrived, DeliveryStatusDelivered,
		DeliveryStatusCancelled, DeliveryStatusFailed, DeliveryStatusReturned,
	},
	DeliveryStatusArrived: {
		DeliveryStatusDelivered, DeliveryStatusCancelled, DeliveryStatusFailed, DeliveryStatusReturned,
	},
}

// ValidDeliveryStatus проверяет, что строка является допустимым статусом доставки
func ValidDeliveryStatus(s DeliveryStatus) bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusAssigned, DeliveryStatusPickedUp,
		DeliveryStatusInTransit, DeliveryStatusArrived, DeliveryStatusDelivered,
		DeliveryStatusFailed, DeliveryStatusCancelled, DeliveryStatusReturned:
		return true
	}
	return false
}

// IsTerminal сообщает, является ли статус конечным
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case DeliveryStatusDelivered, DeliveryStatusFailed, DeliveryStatusCancelled, DeliveryStatusReturned:
		return true
	}
	return false
}

// IsActive сообщает, что доставка назначена водителю и еще не завершена
func (s DeliveryStatus) IsActive() bool {
	switch s {
	case DeliveryStatusAssigned, DeliveryStatusPickedUp, DeliveryStatusInTransit, DeliveryStatusArrived:
		return true
	}
	return false
}

// CanTransition проверяет допустимость перехода from -> to.
// Повтор текущего статуса разрешен для незавершенных доставок:
// повторная отметка логируется в истории, а не отклоняется.
func CanTransition(from, to DeliveryStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ProofOfDelivery представляет подтверждение вручения заказа
type ProofOfDelivery struct {
	Signature    string    `json:"signature,omitempty"`
	PhotoURL     string    `json:"photo_url,omitempty"`
	ReceiverName string    `json:"receiver_name,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// TrackingEvent представляет запись в истории отслеживания доставки.
// История только дополняется и служит журналом аудита.
type TrackingEvent struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	DeliveryID uuid.UUID      `json:"delivery_id" db:"delivery_id"`
	Status     DeliveryStatus `json:"status" db:"status"`
	Lat        *float64       `json:"lat,omitempty" db:"lat"`
	Lng        *float64       `json:"lng,omitempty" db:"lng"`
	Notes      string         `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// Delivery представляет доставку в системе
type Delivery struct {
	ID                uuid.UUID        `json:"id" db:"id"`
	OrderID           string           `json:"order_id" db:"order_id"`
	CustomerName      string           `json:"customer_name" db:"customer_name"`
	CustomerPhone     string           `json:"customer_phone" db:"customer_phone"`
	PickupLocation    Location         `json:"pickup_location"`
	DeliveryLocation  Location         `json:"delivery_location"`
	DriverID          *uuid.UUID       `json:"driver_id,omitempty" db:"driver_id"`
	DriverName        string           `json:"driver_name,omitempty" db:"driver_name"`
	Status            DeliveryStatus   `json:"status" db:"status"`
	CurrentLat        *float64         `json:"current_lat,omitempty" db:"current_lat"`
	CurrentLng        *float64         `json:"current_lng,omitempty" db:"current_lng"`
	ScheduledPickup   *time.Time       `json:"scheduled_pickup,omitempty" db:"scheduled_pickup"`
	ScheduledDelivery *time.Time       `json:"scheduled_delivery,omitempty" db:"scheduled_delivery"`
	ActualPickup      *time.Time       `json:"actual_pickup,omitempty" db:"actual_pickup"`
	ActualDelivery    *time.Time       `json:"actual_delivery,omitempty" db:"actual_delivery"`
	EstimatedArrival  *time.Time       `json:"estimated_arrival,omitempty" db:"estimated_arrival"`
	PackageWeight     float64          `json:"package_weight" db:"package_weight"`
	PackageVolume     float64          `json:"package_volume" db:"package_volume"`
	PackageDesc       string           `json:"package_description,omitempty" db:"package_description"`
	DeliveryFee       float64          `json:"delivery_fee" db:"delivery_fee"`
	CODAmount         float64          `json:"cod_amount" db:"cod_amount"`
	IsPaid            bool             `json:"is_paid" db:"is_paid"`
	Proof             *ProofOfDelivery `json:"proof_of_delivery,omitempty"`
	TrackingHistory   []TrackingEvent  `json:"tracking_history,omitempty"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// CreateDeliveryRequest представляет запрос на создание доставки
type CreateDeliveryRequest struct {
	OrderID           string     `json:"order_id" validate:"required"`
	CustomerName      string     `json:"customer_name" validate:"required"`
	CustomerPhone     string     `json:"customer_phone" validate:"required"`
	PickupLocation    Location   `json:"pickup_location"`
	DeliveryLocation  Location   `json:"delivery_location"`
	ScheduledPickup   *time.Time `json:"scheduled_pickup,omitempty"`
	ScheduledDelivery *time.Time `json:"scheduled_delivery,omitempty"`
	PackageWeight     float64    `json:"package_weight" validate:"min=0"`
	PackageVolume     float64    `json:"package_volume" validate:"min=0"`
	PackageDesc       string     `json:"package_description,omitempty"`
	DeliveryFee       *float64   `json:"delivery_fee,omitempty"`
	CODAmount         float64    `json:"cod_amount" validate:"min=0"`
}

// AssignDeliveryRequest представляет запрос на назначение водителя.
// Либо указывается конкретный водитель, либо auto=true для автоподбора.
type AssignDeliveryRequest struct {
	DriverID *uuid.UUID `json:"driver_id,omitempty"`
	Auto     bool       `json:"auto,omitempty"`
}

// UpdateDeliveryStatusRequest представляет запрос на смену статуса доставки
type UpdateDeliveryStatusRequest struct {
	Status   DeliveryStatus `json:"status" validate:"required"`
	Notes    string         `json:"notes,omitempty"`
	Location *Location      `json:"location,omitempty"`
}

// SubmitProofRequest представляет запрос на подтверждение вручения
type SubmitProofRequest struct {
	Signature    string `json:"signature,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
	ReceiverName string `json:"receiver_name,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// TrackingInfo представляет проекцию текущего состояния доставки
type TrackingInfo struct {
	DeliveryID       uuid.UUID       `json:"delivery_id"`
	OrderID          string          `json:"order_id"`
	Status           DeliveryStatus  `json:"status"`
	CurrentLocation  *Location       `json:"current_location,omitempty"`
	EstimatedArrival *time.Time      `json:"estimated_arrival,omitempty"`
	Driver           *DriverSummary  `json:"driver,omitempty"`
	TrackingHistory  []TrackingEvent `json:"tracking_history"`
}

// StatsOverview представляет сводную статистику по системе
type StatsOverview struct {
	Deliveries             map[DeliveryStatus]int `json:"deliveries"`
	Drivers                map[DriverStatus]int   `json:"drivers"`
	AvgDeliveryTimeMinutes float64                `json:"avg_delivery_time_minutes"`
}
