package models

import (
	"time"

	"github.com/google/uuid"
)

// Zone представляет зону обслуживания с тарифами по умолчанию
type Zone struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	NameAr         string    `json:"name_ar,omitempty" db:"name_ar"`
	City           string    `json:"city" db:"city"`
	District       string    `json:"district" db:"district"`
	DeliveryFee    float64   `json:"delivery_fee" db:"delivery_fee"`
	MinOrderAmount float64   `json:"min_order_amount" db:"min_order_amount"`
	EstimatedTime  int       `json:"estimated_time" db:"estimated_time"` // минуты
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// CreateZoneRequest представляет запрос на создание зоны
type CreateZoneRequest struct {
	Name           string  `json:"name" validate:"required"`
	NameAr         string  `json:"name_ar,omitempty"`
	City           string  `json:"city" validate:"required"`
	District       string  `json:"district,omitempty"`
	DeliveryFee    float64 `json:"delivery_fee" validate:"min=0"`
	MinOrderAmount float64 `json:"min_order_amount" validate:"min=0"`
	EstimatedTime  int     `json:"estimated_time" validate:"min=1"`
}

// UpdateZoneRequest представляет запрос на обновление зоны.
// Nil-поля не изменяются; IsActive позволяет повторно активировать зону.
type UpdateZoneRequest struct {
	Name           *string  `json:"name,omitempty"`
	NameAr         *string  `json:"name_ar,omitempty"`
	DeliveryFee    *float64 `json:"delivery_fee,omitempty"`
	MinOrderAmount *float64 `json:"min_order_amount,omitempty"`
	EstimatedTime  *int     `json:"estimated_time,omitempty"`
	IsActive       *bool    `json:"is_active,omitempty"`
}

// ZoneFilter представляет фильтры для списка зон
type ZoneFilter struct {
	City   string
	Active *bool
}
