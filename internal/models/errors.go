package models

import "errors"

// Доменные ошибки. Обработчики сопоставляют их с HTTP кодами через errors.Is,
// сервисы оборачивают через fmt.Errorf("...: %w", err).
var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrDriverNotFound     = errors.New("driver not found")
	ErrDriverUnavailable  = errors.New("driver is not available")
	ErrDriverBusy         = errors.New("driver is busy with another delivery")
	ErrAlreadyAssigned    = errors.New("delivery is already assigned")
	ErrNoDriversAvailable = errors.New("no available drivers match the request")
	ErrInvalidTransition  = errors.New("invalid delivery status transition")
	ErrZoneNotFound       = errors.New("zone not found")
	ErrValidation         = errors.New("validation failed")
)
