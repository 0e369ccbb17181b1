package geo

import (
	"math"

	"dispatch-engine/internal/models"
)

// Радиус Земли в километрах
const earthRadiusKm = 6371.0

// DefaultSpeedKmh представляет скорость движения по умолчанию для расчета ETA
const DefaultSpeedKmh = 30.0

// DistanceKm вычисляет расстояние по дуге большого круга между двумя точками
// по формуле гаверсинуса. Чистая функция без побочных эффектов.
func DistanceKm(a, b models.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// ETAMinutes вычисляет ожидаемое время в пути в минутах
// для заданного расстояния и средней скорости
func ETAMinutes(distanceKm, speedKmh float64) int {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	return int(math.Round(distanceKm / speedKmh * 60))
}
