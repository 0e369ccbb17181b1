package services

import (
	"database/sql"
	"fmt"
	"time"

	"dispatch-engine/internal/config"
	"dispatch-engine/internal/database"
	"dispatch-engine/internal/geo"
	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"

	"github.com/google/uuid"
)

const deliveryColumns = `id, order_id, customer_name, customer_phone,
	       pickup_lat, pickup_lng, pickup_address, pickup_city, pickup_district,
	       delivery_lat, delivery_lng, delivery_address, delivery_city, delivery_district,
	       driver_id, driver_name, status, current_lat, current_lng,
	       scheduled_pickup, scheduled_delivery, actual_pickup, actual_delivery, estimated_arrival,
	       package_weight, package_volume, package_description,
	       delivery_fee, cod_amount, is_paid,
	       proof_signature, proof_photo_url, proof_receiver_name, proof_notes, proof_submitted_at,
	       created_at, updated_at`

// DeliveryService представляет сервис жизненного цикла доставок.
// Только этот сервис и диспетчер изменяют статус доставки; каждая смена
// статуса или местоположения дополняет историю отслеживания.
type DeliveryService struct {
	db       *database.DB
	pricing  *PricingService
	zones    *ZoneService
	dispatch *config.DispatchConfig
	log      *logger.Logger
}

// NewDeliveryService создает новый экземпляр сервиса доставок
func NewDeliveryService(db *database.DB, pricing *PricingService, zones *ZoneService, dispatchCfg *config.DispatchConfig, log *logger.Logger) *DeliveryService {
	return &DeliveryService{
		db:       db,
		pricing:  pricing,
		zones:    zones,
		dispatch: dispatchCfg,
		log:      log,
	}
}

// CreateDelivery создает новую доставку в статусе pending.
// Стоимость и ожидаемое время доставки берутся из зоны точки назначения,
// если вызывающая сторона их не указала. История отслеживания
// открывается записью pending.
func (s *DeliveryService) CreateDelivery(req *models.CreateDeliveryRequest) (*models.Delivery, error) {
	now := time.Now()

	zone, err := s.zones.ZoneForLocation(req.DeliveryLocation)
	if err != nil {
		return nil, err
	}

	fee := s.pricing.DeliveryFee(req.PickupLocation, req.DeliveryLocation, zone)
	if req.DeliveryFee != nil {
		fee = *req.DeliveryFee
	}

	scheduledDelivery := req.ScheduledDelivery
	if scheduledDelivery == nil && zone != nil {
		t := now.Add(time.Duration(zone.EstimatedTime) * time.Minute)
		scheduledDelivery = &t
	}

	delivery := &models.Delivery{
		ID:                uuid.New(),
		OrderID:           req.OrderID,
		CustomerName:      req.CustomerName,
		CustomerPhone:     req.CustomerPhone,
		PickupLocation:    req.PickupLocation,
		DeliveryLocation:  req.DeliveryLocation,
		Status:            models.DeliveryStatusPending,
		ScheduledPickup:   req.ScheduledPickup,
		ScheduledDelivery: scheduledDelivery,
		PackageWeight:     req.PackageWeight,
		PackageVolume:     req.PackageVolume,
		PackageDesc:       req.PackageDesc,
		DeliveryFee:       fee,
		CODAmount:         req.CODAmount,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO deliveries (id, order_id, customer_name, customer_phone,
			pickup_lat, pickup_lng, pickup_address, pickup_city, pickup_district,
			delivery_lat, delivery_lng, delivery_address, delivery_city, delivery_district,
			status, scheduled_pickup, scheduled_delivery,
			package_weight, package_volume, package_description,
			delivery_fee, cod_amount, is_paid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
	`

	_, err = tx.Exec(query, delivery.ID, delivery.OrderID, delivery.CustomerName, delivery.CustomerPhone,
		delivery.PickupLocation.Lat, delivery.PickupLocation.Lng, delivery.PickupLocation.Address,
		delivery.PickupLocation.City, delivery.PickupLocation.District,
		delivery.DeliveryLocation.Lat, delivery.DeliveryLocation.Lng, delivery.DeliveryLocation.Address,
		delivery.DeliveryLocation.City, delivery.DeliveryLocation.District,
		delivery.Status, delivery.ScheduledPickup, delivery.ScheduledDelivery,
		delivery.PackageWeight, delivery.PackageVolume, delivery.PackageDesc,
		delivery.DeliveryFee, delivery.CODAmount, delivery.IsPaid, delivery.CreatedAt, delivery.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery: %w", err)
	}

	// Первая запись истории отслеживания
	if err := appendTrackingEvent(tx, delivery.ID, delivery.Status, nil, nil, "Delivery created"); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"delivery_id":  delivery.ID,
		"order_id":     delivery.OrderID,
		"delivery_fee": delivery.DeliveryFee,
	}).Info("Delivery created successfully")

	return delivery, nil
}

// GetDelivery получает доставку по ID вместе с историей отслеживания
func (s *DeliveryService) GetDelivery(deliveryID uuid.UUID) (*models.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`

	delivery, err := scanDelivery(s.db.QueryRow(query, deliveryID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}

	history, err := s.GetTrackingHistory(deliveryID)
	if err != nil {
		return nil, err
	}
	delivery.TrackingHistory = history

	return delivery, nil
}

// GetDeliveries получает список доставок с фильтрацией
func (s *DeliveryService) GetDeliveries(status *models.DeliveryStatus, driverID *uuid.UUID, limit, offset int) ([]*models.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, *status)
		argIndex++
	}

	if driverID != nil {
		query += fmt.Sprintf(" AND driver_id = $%d", argIndex)
		args = append(args, *driverID)
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
		return nil, fmt.Errorf("failed to get deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, delivery)
	}

	return deliveries, nil
}

// GetTrackingHistory получает историю отслеживания доставки
// в хронологическом порядке
func (s *DeliveryService) GetTrackingHistory(deliveryID uuid.UUID) ([]models.TrackingEvent, error) {
	query := `
		SELECT id, delivery_id, status, lat, lng, notes, created_at
		FROM tracking_events
		WHERE delivery_id = $1
		ORDER BY created_at, id
	`

	rows, err := s.db.Query(query, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tracking history: %w", err)
	}
	defer rows.Close()

	var events []models.TrackingEvent
	for rows.Next() {
		var event models.TrackingEvent
		if err := rows.Scan(&event.ID, &event.DeliveryID, &event.Status,
			&event.Lat, &event.Lng, &event.Notes, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracking event: %w", err)
		}
		events = append(events, event)
	}

	return events, nil
}

// UpdateDeliveryStatus переводит доставку в новый статус.
// Недопустимые переходы отклоняются, чтобы история отслеживания
// оставалась достоверным журналом аудита. Переход pending -> assigned
// выполняется только диспетчером, не этим методом.
func (s *DeliveryService) UpdateDeliveryStatus(deliveryID uuid.UUID, req *models.UpdateDeliveryStatusRequest) (*models.Delivery, error) {
	if req.Status == models.DeliveryStatusAssigned {
		return nil, models.ErrInvalidTransition
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Блокировка строки доставки: переходы по одной доставке сериализуются
	var (
		current  models.DeliveryStatus
		driverID *uuid.UUID
		destLat  float64
		destLng  float64
	)
	err = tx.QueryRow(`SELECT status, driver_id, delivery_lat, delivery_lng FROM deliveries WHERE id = $1 FOR UPDATE`, deliveryID).
		Scan(&current, &driverID, &destLat, &destLng)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to check delivery status: %w", err)
	}

	if !models.CanTransition(current, req.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, req.Status)
	}

	now := time.Now()

	query := `UPDATE deliveries SET status = $1, updated_at = $2`
	args := []interface{}{req.Status, now}
	argIndex := 3

	// Повторная отметка picked_up не переписывает время забора
	if req.Status == models.DeliveryStatusPickedUp && current != models.DeliveryStatusPickedUp {
		query += fmt.Sprintf(", actual_pickup = $%d", argIndex)
		args = append(args, now)
		argIndex++
	}
	if req.Status == models.DeliveryStatusDelivered {
		query += fmt.Sprintf(", actual_delivery = $%d", argIndex)
		args = append(args, now)
		argIndex++
	}
	if req.Location != nil {
		query += fmt.Sprintf(", current_lat = $%d, current_lng = $%d", argIndex, argIndex+1)
		args = append(args, req.Location.Lat, req.Location.Lng)
		argIndex += 2

		// ETA пересчитывается только в пути
		if req.Status == models.DeliveryStatusInTransit {
			distance := geo.DistanceKm(*req.Location, models.Location{Lat: destLat, Lng: destLng})
			eta := now.Add(time.Duration(geo.ETAMinutes(distance, s.dispatch.AvgSpeedKmh)) * time.Minute)
			query += fmt.Sprintf(", estimated_arrival = $%d", argIndex)
			args = append(args, eta)
			argIndex++
		}
	}

	query += fmt.Sprintf(" WHERE id = $%d", argIndex)
	args = append(args, deliveryID)

	if _, err = tx.Exec(query, args...); err != nil {
		return nil, fmt.Errorf("failed to update delivery status: %w", err)
	}

	var lat, lng *float64
	if req.Location != nil {
		lat, lng = &req.Location.Lat, &req.Location.Lng
	}
	if err := appendTrackingEvent(tx, deliveryID, req.Status, lat, lng, req.Notes); err != nil {
		return nil, err
	}

	// Терминальный статус возвращает водителя в пул;
	// успешная доставка увеличивает его счетчик
	if req.Status.IsTerminal() && driverID != nil {
		if err := releaseDriver(tx, *driverID, req.Status == models.DeliveryStatusDelivered, now); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"delivery_id": deliveryID,
		"old_status":  current,
		"new_status":  req.Status,
	}).Info("Delivery status updated")

	return s.GetDelivery(deliveryID)
}

// UpdateDeliveryLocation обновляет текущее местоположение доставки
// и пересчитывает ожидаемое время прибытия, когда доставка в пути.
// Возвращает обновленное местоположение и ETA.
func (s *DeliveryService) UpdateDeliveryLocation(deliveryID uuid.UUID, lat, lng float64) (*models.Location, *time.Time, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	location, eta, err := updateDeliveryLocationTx(tx, deliveryID, lat, lng, s.dispatch.AvgSpeedKmh)
	if err != nil {
		return nil, nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"delivery_id": deliveryID,
		"lat":         lat,
		"lng":         lng,
	}).Debug("Delivery location updated")

	return location, eta, nil
}

// RefreshDriverDelivery переносит свежие координаты водителя
// в его активную доставку. Вызывается после обновления
// местоположения водителя; отсутствие активной доставки — не ошибка.
func (s *DeliveryService) RefreshDriverDelivery(driverID uuid.UUID, lat, lng float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var deliveryID uuid.UUID
	err = tx.QueryRow(`
		SELECT id FROM deliveries
		WHERE driver_id = $1 AND status IN ('assigned', 'picked_up', 'in_transit', 'arrived')
		ORDER BY created_at
		LIMIT 1
	`, driverID).Scan(&deliveryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("failed to find active delivery: %w", err)
	}

	if _, _, err := updateDeliveryLocationTx(tx, deliveryID, lat, lng, s.dispatch.AvgSpeedKmh); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SubmitProof сохраняет подтверждение вручения и атомарно переводит
// доставку в статус delivered с освобождением водителя
func (s *DeliveryService) SubmitProof(deliveryID uuid.UUID, req *models.SubmitProofRequest) (*models.Delivery, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		current  models.DeliveryStatus
		driverID *uuid.UUID
	)
	err = tx.QueryRow(`SELECT status, driver_id FROM deliveries WHERE id = $1 FOR UPDATE`, deliveryID).
		Scan(&current, &driverID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to check delivery status: %w", err)
	}

	if current == models.DeliveryStatusDelivered || !models.CanTransition(current, models.DeliveryStatusDelivered) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, models.DeliveryStatusDelivered)
	}

	now := time.Now()

	query := `
		UPDATE deliveries
		SET status = $1, actual_delivery = $2, updated_at = $3,
		    proof_signature = $4, proof_photo_url = $5, proof_receiver_name = $6, proof_notes = $7, proof_submitted_at = $8
		WHERE id = $9
	`
	_, err = tx.Exec(query, models.DeliveryStatusDelivered, now, now,
		req.Signature, req.PhotoURL, req.ReceiverName, req.Notes, now, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("failed to submit proof of delivery: %w", err)
	}

	notes := "Proof of delivery submitted"
	if req.ReceiverName != "" {
		notes = fmt.Sprintf("Proof of delivery submitted, received by %s", req.ReceiverName)
	}
	if err := appendTrackingEvent(tx, deliveryID, models.DeliveryStatusDelivered, nil, nil, notes); err != nil {
		return nil, err
	}

	if driverID != nil {
		if err := releaseDriver(tx, *driverID, true, now); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"delivery_id": deliveryID,
		"receiver":    req.ReceiverName,
	}).Info("Proof of delivery submitted")

	return s.GetDelivery(deliveryID)
}

// GetStats возвращает сводную статистику: количество доставок и водителей
// по статусам и среднее время доставки в минутах
func (s *DeliveryService) GetStats() (*models.StatsOverview, error) {
	stats := &models.StatsOverview{
		Deliveries: make(map[models.DeliveryStatus]int),
		Drivers:    make(map[models.DriverStatus]int),
	}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM deliveries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count deliveries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.DeliveryStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan delivery count: %w", err)
		}
		stats.Deliveries[status] = count
	}

	driverRows, err := s.db.Query(`SELECT status, COUNT(*) FROM drivers GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count drivers: %w", err)
	}
	defer driverRows.Close()

	for driverRows.Next() {
		var status models.DriverStatus
		var count int
		if err := driverRows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan driver count: %w", err)
		}
		stats.Drivers[status] = count
	}

	var avgMinutes sql.NullFloat64
	err = s.db.QueryRow(`
		SELECT AVG(EXTRACT(EPOCH FROM (actual_delivery - created_at)) / 60)
		FROM deliveries
		WHERE status = 'delivered' AND actual_delivery IS NOT NULL
	`).Scan(&avgMinutes)
	if err != nil {
		return nil, fmt.Errorf("failed to compute average delivery time: %w", err)
	}
	if avgMinutes.Valid {
		stats.AvgDeliveryTimeMinutes = avgMinutes.Float64
	}

	return stats, nil
}

// updateDeliveryLocationTx обновляет местоположение доставки внутри
// транзакции и дополняет историю отслеживания записью с текущим статусом
func updateDeliveryLocationTx(tx *sql.Tx, deliveryID uuid.UUID, lat, lng, avgSpeedKmh float64) (*models.Location, *time.Time, error) {
	var (
		status  models.DeliveryStatus
		destLat float64
		destLng float64
	)
	err := tx.QueryRow(`SELECT status, delivery_lat, delivery_lng FROM deliveries WHERE id = $1 FOR UPDATE`, deliveryID).
		Scan(&status, &destLat, &destLng)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, models.ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to check delivery: %w", err)
	}

	now := time.Now()
	var eta *time.Time

	if status == models.DeliveryStatusInTransit {
		distance := geo.DistanceKm(models.Location{Lat: lat, Lng: lng}, models.Location{Lat: destLat, Lng: destLng})
		t := now.Add(time.Duration(geo.ETAMinutes(distance, avgSpeedKmh)) * time.Minute)
		eta = &t
	}

	if eta != nil {
		_, err = tx.Exec(`UPDATE deliveries SET current_lat = $1, current_lng = $2, estimated_arrival = $3, updated_at = $4 WHERE id = $5`,
			lat, lng, *eta, now, deliveryID)
	} else {
		_, err = tx.Exec(`UPDATE deliveries SET current_lat = $1, current_lng = $2, updated_at = $3 WHERE id = $4`,
			lat, lng, now, deliveryID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update delivery location: %w", err)
	}

	if err := appendTrackingEvent(tx, deliveryID, status, &lat, &lng, ""); err != nil {
		return nil, nil, err
	}

	return &models.Location{Lat: lat, Lng: lng}, eta, nil
}

// appendTrackingEvent дополняет историю отслеживания новой записью
func appendTrackingEvent(tx *sql.Tx, deliveryID uuid.UUID, status models.DeliveryStatus, lat, lng *float64, notes string) error {
	_, err := tx.Exec(`
		INSERT INTO tracking_events (id, delivery_id, status, lat, lng, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New(), deliveryID, status, lat, lng, notes, time.Now())
	if err != nil {
		return fmt.Errorf("failed to append tracking event: %w", err)
	}
	return nil
}

// releaseDriver возвращает водителя в пул после завершения доставки.
// Для успешно доставленных заказов увеличивается счетчик доставок.
func releaseDriver(tx *sql.Tx, driverID uuid.UUID, delivered bool, now time.Time) error {
	query := `UPDATE drivers SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	if delivered {
		query = `UPDATE drivers SET status = $1, updated_at = $2, total_deliveries = total_deliveries + 1 WHERE id = $3 AND status = $4`
	}

	_, err := tx.Exec(query, models.DriverStatusAvailable, now, driverID, models.DriverStatusBusy)
	if err != nil {
		return fmt.Errorf("failed to release driver: %w", err)
	}
	return nil
}

// scanDelivery читает строку результата в модель доставки
func scanDelivery(row scanner) (*models.Delivery, error) {
	delivery := &models.Delivery{}
	var (
		proofSignature sql.NullString
		proofPhotoURL  sql.NullString
		proofReceiver  sql.NullString
		proofNotes     sql.NullString
		proofAt        sql.NullTime
	)

	err := row.Scan(
		&delivery.ID, &delivery.OrderID, &delivery.CustomerName, &delivery.CustomerPhone,
		&delivery.PickupLocation.Lat, &delivery.PickupLocation.Lng, &delivery.PickupLocation.Address,
		&delivery.PickupLocation.City, &delivery.PickupLocation.District,
		&delivery.DeliveryLocation.Lat, &delivery.DeliveryLocation.Lng, &delivery.DeliveryLocation.Address,
		&delivery.DeliveryLocation.City, &delivery.DeliveryLocation.District,
		&delivery.DriverID, &delivery.DriverName, &delivery.Status,
		&delivery.CurrentLat, &delivery.CurrentLng,
		&delivery.ScheduledPickup, &delivery.ScheduledDelivery,
		&delivery.ActualPickup, &delivery.ActualDelivery, &delivery.EstimatedArrival,
		&delivery.PackageWeight, &delivery.PackageVolume, &delivery.PackageDesc,
		&delivery.DeliveryFee, &delivery.CODAmount, &delivery.IsPaid,
		&proofSignature, &proofPhotoURL, &proofReceiver, &proofNotes, &proofAt,
		&delivery.CreatedAt, &delivery.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if proofAt.Valid {
		delivery.Proof = &models.ProofOfDelivery{
			Signature:    proofSignature.String,
			PhotoURL:     proofPhotoURL.String,
			ReceiverName: proofReceiver.String,
			Notes:        proofNotes.String,
			SubmittedAt:  proofAt.Time,
		}
	}

	return delivery, nil
}
