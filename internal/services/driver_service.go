package services

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"dispatch-engine/internal/database"
	"dispatch-engine/internal/geo"
	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const driverColumns = `id, name, phone, vehicle_type, status, current_lat, current_lng,
	       rating, total_deliveries, completion_rate, preferred_zones,
	       created_at, updated_at, last_location_update`

// DriverService представляет сервис для работы с водителями
type DriverService struct {
	db  *database.DB
	log *logger.Logger
}

// NewDriverService создает новый экземпляр сервиса водителей
func NewDriverService(db *database.DB, log *logger.Logger) *DriverService {
	return &DriverService{
		db:  db,
		log: log,
	}
}

// RegisterDriver регистрирует нового водителя.
// Новый водитель создается offline с рейтингом 5 и completion rate 100.
func (s *DriverService) RegisterDriver(req *models.RegisterDriverRequest) (*models.Driver, error) {
	now := time.Now()
	driver := &models.Driver{
		ID:              uuid.New(),
		Name:            req.Name,
		Phone:           req.Phone,
		VehicleType:     req.VehicleType,
		Status:          models.DriverStatusOffline,
		Rating:          5,
		TotalDeliveries: 0,
		CompletionRate:  100,
		PreferredZones:  req.PreferredZones,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if driver.PreferredZones == nil {
		driver.PreferredZones = []string{}
	}

	query := `
		INSERT INTO drivers (id, name, phone, vehicle_type, status, rating, total_deliveries, completion_rate, preferred_zones, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.Exec(query, driver.ID, driver.Name, driver.Phone, driver.VehicleType,
		driver.Status, driver.Rating, driver.TotalDeliveries, driver.CompletionRate,
		pq.Array(driver.PreferredZones), driver.CreatedAt, driver.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to register driver: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"driver_id":    driver.ID,
		"driver_name":  driver.Name,
		"vehicle_type": driver.VehicleType,
	}).Info("Driver registered successfully")

	return driver, nil
}

// GetDriver получает водителя по ID
func (s *DriverService) GetDriver(driverID uuid.UUID) (*models.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`

	driver, err := scanDriver(s.db.QueryRow(query, driverID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrDriverNotFound
		}
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}

	return driver, nil
}

// UpdateDriverStatus обновляет статус водителя по его собственной инициативе.
// Статус busy выставляется и снимается только движком назначения,
// поэтому водитель не может ни войти в busy, ни выйти из него сам.
func (s *DriverService) UpdateDriverStatus(driverID uuid.UUID, status models.DriverStatus) (*models.Driver, error) {
	if status == models.DriverStatusBusy {
		return nil, models.ErrInvalidTransition
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Блокируем строку водителя, чтобы не пересечься с назначением
	var current models.DriverStatus
	err = tx.QueryRow(`SELECT status FROM drivers WHERE id = $1 FOR UPDATE`, driverID).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrDriverNotFound
		}
		return nil, fmt.Errorf("failed to check driver status: %w", err)
	}

	if current == models.DriverStatusBusy {
		return nil, models.ErrDriverBusy
	}

	now := time.Now()
	_, err = tx.Exec(`UPDATE drivers SET status = $1, updated_at = $2 WHERE id = $3`, status, now, driverID)
	if err != nil {
		return nil, fmt.Errorf("failed to update driver status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"driver_id":  driverID,
		"old_status": current,
		"new_status": status,
	}).Info("Driver status updated")

	return s.GetDriver(driverID)
}

// UpdateDriverLocation обновляет местоположение водителя
// и проставляет время последнего обновления
func (s *DriverService) UpdateDriverLocation(driverID uuid.UUID, lat, lng float64) error {
	now := time.Now()

	query := `
		UPDATE drivers
		SET current_lat = $1, current_lng = $2, updated_at = $3, last_location_update = $4
		WHERE id = $5
	`

	result, err := s.db.Exec(query, lat, lng, now, now, driverID)
	if err != nil {
		return fmt.Errorf("failed to update driver location: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrDriverNotFound
	}

	s.log.WithFields(map[string]interface{}{
		"driver_id": driverID,
		"lat":       lat,
		"lng":       lng,
	}).Debug("Driver location updated")

	return nil
}

// GetDrivers получает список водителей с фильтрацией
func (s *DriverService) GetDrivers(status *models.DriverStatus, limit, offset int) ([]*models.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, *status)
		argIndex++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, limit)
		argIndex++
	}

	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get drivers: %w", err)
	}
	defer rows.Close()

	var drivers []*models.Driver
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver: %w", err)
		}
		drivers = append(drivers, driver)
	}

	return drivers, nil
}

// FindNearby находит доступных водителей в радиусе radiusKm от точки,
// отсортированных по возрастанию расстояния. Пустой пул — не ошибка.
func (s *DriverService) FindNearby(lat, lng, radiusKm float64, vehicleType *models.VehicleType) ([]*models.NearbyDriver, error) {
	query := `SELECT ` + driverColumns + `
		FROM drivers
		WHERE status = $1 AND current_lat IS NOT NULL AND current_lng IS NOT NULL`
	args := []interface{}{models.DriverStatusAvailable}

	if vehicleType != nil {
		query += " AND vehicle_type = $2"
		args = append(args, *vehicleType)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find nearby drivers: %w", err)
	}
	defer rows.Close()

	var candidates []*models.Driver
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver: %w", err)
		}
		candidates = append(candidates, driver)
	}

	return RankByDistance(candidates, models.Location{Lat: lat, Lng: lng}, radiusKm), nil
}

// RankByDistance отбирает водителей в радиусе radiusKm от точки
// и сортирует их по возрастанию расстояния. Чистая функция.
func RankByDistance(drivers []*models.Driver, origin models.Location, radiusKm float64) []*models.NearbyDriver {
	nearby := make([]*models.NearbyDriver, 0, len(drivers))
	for _, driver := range drivers {
		if !driver.HasLocation() {
			continue
		}
		distance := geo.DistanceKm(models.Location{Lat: *driver.CurrentLat, Lng: *driver.CurrentLng}, origin)
		if radiusKm > 0 && distance > radiusKm {
			continue
		}
		nearby = append(nearby, &models.NearbyDriver{Driver: driver, DistanceKm: distance})
	}

	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].DistanceKm < nearby[j].DistanceKm
	})

	return nearby
}

// scanner покрывает *sql.Row и *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanDriver читает строку результата в модель водителя
func scanDriver(row scanner) (*models.Driver, error) {
	driver := &models.Driver{}
	err := row.Scan(
		&driver.ID, &driver.Name, &driver.Phone, &driver.VehicleType, &driver.Status,
		&driver.CurrentLat, &driver.CurrentLng, &driver.Rating, &driver.TotalDeliveries,
		&driver.CompletionRate, pq.Array(&driver.PreferredZones),
		&driver.CreatedAt, &driver.UpdatedAt, &driver.LastLocationUpdate,
	)
	if err != nil {
		return nil, err
	}
	return driver, nil
}
