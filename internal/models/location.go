package models

// Location представляет географическую точку с опциональным адресом
type Location struct {
	Lat      float64 `json:"lat" validate:"min=-90,max=90"`
	Lng      float64 `json:"lng" validate:"min=-180,max=180"`
	Address  string  `json:"address,omitempty"`
	City     string  `json:"city,omitempty"`
	District string  `json:"district,omitempty"`
}

// HasCoordinates проверяет, что точка содержит ненулевые координаты
func (l Location) HasCoordinates() bool {
	return l.Lat != 0 || l.Lng != 0
}

// ValidCoordinates проверяет, что координаты находятся в допустимых диапазонах
func (l Location) ValidCoordinates() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}
