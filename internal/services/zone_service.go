package services

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dispatch-engine/internal/database"
	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"

	"github.com/google/uuid"
)

// ZoneService представляет сервис для работы с зонами обслуживания
type ZoneService struct {
	db  *database.DB
	log *logger.Logger
}

// NewZoneService создает новый экземпляр сервиса зон
func NewZoneService(db *database.DB, log *logger.Logger) *ZoneService {
	return &ZoneService{
		db:  db,
		log: log,
	}
}

// CreateZone создает новую зону обслуживания
func (s *ZoneService) CreateZone(req *models.CreateZoneRequest) (*models.Zone, error) {
	now := time.Now()
	zone := &models.Zone{
		ID:             uuid.New(),
		Name:           req.Name,
		NameAr:         req.NameAr,
		City:           req.City,
		District:       req.District,
		DeliveryFee:    req.DeliveryFee,
		MinOrderAmount: req.MinOrderAmount,
		EstimatedTime:  req.EstimatedTime,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	query := `
		INSERT INTO zones (id, name, name_ar, city, district, delivery_fee, min_order_amount, estimated_time, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.Exec(query, zone.ID, zone.Name, zone.NameAr, zone.City, zone.District,
		zone.DeliveryFee, zone.MinOrderAmount, zone.EstimatedTime, zone.IsActive, zone.CreatedAt, zone.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create zone: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"zone_id": zone.ID,
		"city":    zone.City,
	}).Info("Zone created successfully")

	return zone, nil
}

// GetZone получает зону по ID
func (s *ZoneService) GetZone(zoneID uuid.UUID) (*models.Zone, error) {
	zone := &models.Zone{}

	query := `
		SELECT id, name, name_ar, city, district, delivery_fee, min_order_amount, estimated_time, is_active, created_at, updated_at
		FROM zones
		WHERE id = $1
	`

	err := s.db.QueryRow(query, zoneID).Scan(
		&zone.ID, &zone.Name, &zone.NameAr, &zone.City, &zone.District,
		&zone.DeliveryFee, &zone.MinOrderAmount, &zone.EstimatedTime,
		&zone.IsActive, &zone.CreatedAt, &zone.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrZoneNotFound
		}
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}

	return zone, nil
}

// ListZones получает список зон с фильтрацией по городу и активности
func (s *ZoneService) ListZones(filter models.ZoneFilter) ([]*models.Zone, error) {
	query := `
		SELECT id, name, name_ar, city, district, delivery_fee, min_order_amount, estimated_time, is_active, created_at, updated_at
		FROM zones
		WHERE 1=1
	`
	args := []interface{}{}
	argIndex := 1

	if filter.City != "" {
		query += fmt.Sprintf(" AND LOWER(city) = LOWER($%d)", argIndex)
		args = append(args, filter.City)
		argIndex++
	}

	if filter.Active != nil {
		query += fmt.Sprintf(" AND is_active = $%d", argIndex)
		args = append(args, *filter.Active)
	}

	query += " ORDER BY city, district, name"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	defer rows.Close()

	var zones []*models.Zone
	for rows.Next() {
		zone := &models.Zone{}
		if err := rows.Scan(&zone.ID, &zone.Name, &zone.NameAr, &zone.City, &zone.District,
			&zone.DeliveryFee, &zone.MinOrderAmount, &zone.EstimatedTime,
			&zone.IsActive, &zone.CreatedAt, &zone.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		zones = append(zones, zone)
	}

	return zones, nil
}

// UpdateZone обновляет зону. Nil-поля запроса не изменяются.
func (s *ZoneService) UpdateZone(zoneID uuid.UUID, req *models.UpdateZoneRequest) (*models.Zone, error) {
	zone, err := s.GetZone(zoneID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		zone.Name = *req.Name
	}
	if req.NameAr != nil {
		zone.NameAr = *req.NameAr
	}
	if req.DeliveryFee != nil {
		zone.DeliveryFee = *req.DeliveryFee
	}
	if req.MinOrderAmount != nil {
		zone.MinOrderAmount = *req.MinOrderAmount
	}
	if req.EstimatedTime != nil {
		zone.EstimatedTime = *req.EstimatedTime
	}
	if req.IsActive != nil {
		zone.IsActive = *req.IsActive
	}
	zone.UpdatedAt = time.Now()

	query := `
		UPDATE zones
		SET name = $1, name_ar = $2, delivery_fee = $3, min_order_amount = $4, estimated_time = $5, is_active = $6, updated_at = $7
		WHERE id = $8
	`

	result, err := s.db.Exec(query, zone.Name, zone.NameAr, zone.DeliveryFee,
		zone.MinOrderAmount, zone.EstimatedTime, zone.IsActive, zone.UpdatedAt, zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to update zone: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, models.ErrZoneNotFound
	}

	s.log.WithField("zone_id", zoneID).Info("Zone updated")

	return zone, nil
}

// DeactivateZone деактивирует зону: она перестает участвовать в подборе
// и выдаче тарифов, но остается в базе для повторной активации
func (s *ZoneService) DeactivateZone(zoneID uuid.UUID) error {
	query := `UPDATE zones SET is_active = FALSE, updated_at = $1 WHERE id = $2`

	result, err := s.db.Exec(query, time.Now(), zoneID)
	if err != nil {
		return fmt.Errorf("failed to deactivate zone: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrZoneNotFound
	}

	s.log.WithField("zone_id", zoneID).Info("Zone deactivated")

	return nil
}

// ZoneForLocation находит активную зону, которой принадлежит точка.
// Полигонов у зон нет: принадлежность определяется сравнением
// района, затем города. Возвращает nil, если зона не найдена.
func (s *ZoneService) ZoneForLocation(loc models.Location) (*models.Zone, error) {
	active := true
	zones, err := s.ListZones(models.ZoneFilter{Active: &active})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve zone for location: %w", err)
	}

	return MatchZone(zones, loc), nil
}

// MatchZone выбирает зону для точки из списка: сначала точное совпадение
// города и района, затем совпадение только города. Чистая функция.
func MatchZone(zones []*models.Zone, loc models.Location) *models.Zone {
	if loc.City == "" && loc.District == "" {
		return nil
	}

	var cityMatch *models.Zone
	for _, zone := range zones {
		if !zone.IsActive {
			continue
		}
		if !strings.EqualFold(zone.City, loc.City) {
			continue
		}
		if loc.District != "" && strings.EqualFold(zone.District, loc.District) {
			return zone
		}
		if cityMatch == nil && zone.District == "" {
			cityMatch = zone
		}
	}

	// Зона без района покрывает весь город
	return cityMatch
}
