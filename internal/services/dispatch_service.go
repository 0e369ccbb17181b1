package services

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"dispatch-engine/internal/config"
	"dispatch-engine/internal/database"
	"dispatch-engine/internal/geo"
	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"

	"github.com/google/uuid"
)

// DispatchService представляет диспетчер назначения водителей.
// Только он выполняет переход pending -> assigned: назначение
// блокирует строки доставки и водителя в фиксированном порядке
// (сначала доставка, потом водитель), чтобы два конкурирующих
// запроса не назначили одного водителя на две доставки.
type DispatchService struct {
	db         *database.DB
	deliveries *DeliveryService
	drivers    *DriverService
	zones      *ZoneService
	dispatch   *config.DispatchConfig
	log        *logger.Logger
}

// NewDispatchService создает новый экземпляр диспетчера
func NewDispatchService(db *database.DB, deliveries *DeliveryService, drivers *DriverService, zones *ZoneService, dispatchCfg *config.DispatchConfig, log *logger.Logger) *DispatchService {
	return &DispatchService{
		db:         db,
		deliveries: deliveries,
		drivers:    drivers,
		zones:      zones,
		dispatch:   dispatchCfg,
		log:        log,
	}
}

// ScoredDriver представляет кандидата с вычисленной оценкой
type ScoredDriver struct {
	*models.Driver
	DistanceKm float64 `json:"distance_km"`
	Score      float64 `json:"score"`
}

// Assign назначает водителя на доставку. При указанном driver_id
// выполняется ручное назначение, иначе диспетчер выбирает лучшего
// доступного кандидата по многофакторной оценке.
// Возвращает обновленную доставку и назначенного водителя.
func (s *DispatchService) Assign(deliveryID uuid.UUID, req *models.AssignDeliveryRequest) (*models.Delivery, *models.Driver, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Блокировка доставки сериализует конкурирующие назначения
	var (
		status   models.DeliveryStatus
		pickup   models.Location
		dest     models.Location
		weightKg float64
	)
	err = tx.QueryRow(`
		SELECT status, pickup_lat, pickup_lng, delivery_lat, delivery_lng, delivery_city, delivery_district, package_weight
		FROM deliveries WHERE id = $1 FOR UPDATE
	`, deliveryID).Scan(&status, &pickup.Lat, &pickup.Lng, &dest.Lat, &dest.Lng, &dest.City, &dest.District, &weightKg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, models.ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to check delivery: %w", err)
	}

	if status != models.DeliveryStatusPending {
		return nil, nil, fmt.Errorf("%w: delivery is %s", models.ErrAlreadyAssigned, status)
	}

	var driverID uuid.UUID
	var driverName string

	if req.DriverID != nil {
		driverID = *req.DriverID
		driverName, err = lockAvailableDriver(tx, driverID)
		if err != nil {
			return nil, nil, err
		}
	} else {
		driverID, driverName, err = s.pickDriver(tx, pickup, dest, weightKg)
		if err != nil {
			return nil, nil, err
		}
	}

	now := time.Now()

	if _, err = tx.Exec(`UPDATE drivers SET status = $1, updated_at = $2 WHERE id = $3`,
		models.DriverStatusBusy, now, driverID); err != nil {
		return nil, nil, fmt.Errorf("failed to mark driver busy: %w", err)
	}

	result, err := tx.Exec(`
		UPDATE deliveries SET driver_id = $1, driver_name = $2, status = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`, driverID, driverName, models.DeliveryStatusAssigned, now, deliveryID, models.DeliveryStatusPending)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to assign delivery: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, nil, models.ErrAlreadyAssigned
	}

	notes := fmt.Sprintf("Assigned to %s", driverName)
	if err := appendTrackingEvent(tx, deliveryID, models.DeliveryStatusAssigned, nil, nil, notes); err != nil {
		return nil, nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"delivery_id": deliveryID,
		"driver_id":   driverID,
		"driver_name": driverName,
		"manual":      req.DriverID != nil,
	}).Info("Delivery assigned to driver")

	delivery, err := s.deliveries.GetDelivery(deliveryID)
	if err != nil {
		return nil, nil, err
	}
	driver, err := s.drivers.GetDriver(driverID)
	if err != nil {
		return nil, nil, err
	}

	return delivery, driver, nil
}

// Candidates возвращает доступных кандидатов для доставки с оценками,
// отсортированных от лучшего к худшему. Ничего не назначает.
func (s *DispatchService) Candidates(deliveryID uuid.UUID) ([]*ScoredDriver, error) {
	var (
		pickup   models.Location
		dest     models.Location
		weightKg float64
	)
	err := s.db.QueryRow(`
		SELECT pickup_lat, pickup_lng, delivery_lat, delivery_lng, delivery_city, delivery_district, package_weight
		FROM deliveries WHERE id = $1
	`, deliveryID).Scan(&pickup.Lat, &pickup.Lng, &dest.Lat, &dest.Lng, &dest.City, &dest.District, &weightKg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to check delivery: %w", err)
	}

	candidates, err := s.candidatePool(s.db.DB)
	if err != nil {
		return nil, err
	}

	zone := s.zoneFor(dest)
	return RankCandidates(candidates, pickup, weightKg, s.dispatch.HeavyWeightKg, zone), nil
}

// pickDriver выбирает и блокирует лучшего доступного водителя.
// Кандидаты перебираются в порядке убывания оценки: если лучшего
// успели занять между выборкой и блокировкой, берется следующий.
// Кандидаты захватываются без ожидания (SKIP LOCKED): два
// конкурирующих автоподбора ранжируют пул по-разному и при
// блокирующем захвате могли бы ждать друг друга крест-накрест.
func (s *DispatchService) pickDriver(tx *sql.Tx, pickup, dest models.Location, weightKg float64) (uuid.UUID, string, error) {
	candidates, err := s.candidatePool(tx)
	if err != nil {
		return uuid.Nil, "", err
	}

	zone := s.zoneFor(dest)
	ranked := RankCandidates(candidates, pickup, weightKg, s.dispatch.HeavyWeightKg, zone)
	if len(ranked) == 0 {
		return uuid.Nil, "", models.ErrNoDriversAvailable
	}

	for _, candidate := range ranked {
		name, err := lockCandidateDriver(tx, candidate.ID)
		if err == models.ErrDriverBusy {
			continue
		}
		if err != nil {
			return uuid.Nil, "", err
		}
		return candidate.ID, name, nil
	}

	return uuid.Nil, "", models.ErrNoDriversAvailable
}

// candidatePool выбирает доступных водителей с известным местоположением.
// Порядок created_at, id детерминирует выбор при равных оценках.
func (s *DispatchService) candidatePool(q queryer) ([]*models.Driver, error) {
	query := `
		SELECT ` + driverColumns + `
		FROM drivers
		WHERE status = $1 AND current_lat IS NOT NULL AND current_lng IS NOT NULL
		ORDER BY created_at, id
		LIMIT $2
	`

	rows, err := q.Query(query, models.DriverStatusAvailable, s.dispatch.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate drivers: %w", err)
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

func (s *DispatchService) zoneFor(dest models.Location) *models.Zone {
	zone, err := s.zones.ZoneForLocation(dest)
	if err != nil {
		s.log.WithError(err).Warn("Failed to resolve delivery zone, scoring without zone bonus")
		return nil
	}
	return zone
}

// queryer абстрагирует *sql.DB и *sql.Tx для выборки кандидатов
type queryer interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

// lockCandidateDriver пытается захватить строку кандидата без ожидания.
// Строка, уже заблокированная конкурирующим назначением, пропускается
// (SKIP LOCKED) и для вызывающего неотличима от занятого водителя.
func lockCandidateDriver(tx *sql.Tx, driverID uuid.UUID) (string, error) {
	var name string
	var status models.DriverStatus

	err := tx.QueryRow(`SELECT name, status FROM drivers WHERE id = $1 FOR UPDATE SKIP LOCKED`, driverID).
		Scan(&name, &status)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", models.ErrDriverBusy
		}
		return "", fmt.Errorf("failed to lock candidate driver: %w", err)
	}

	if status != models.DriverStatusAvailable {
		return "", models.ErrDriverBusy
	}

	return name, nil
}

// lockAvailableDriver блокирует строку водителя и проверяет его доступность
func lockAvailableDriver(tx *sql.Tx, driverID uuid.UUID) (string, error) {
	var name string
	var status models.DriverStatus

	err := tx.QueryRow(`SELECT name, status FROM drivers WHERE id = $1 FOR UPDATE`, driverID).
		Scan(&name, &status)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", models.ErrDriverNotFound
		}
		return "", fmt.Errorf("failed to check driver: %w", err)
	}

	switch status {
	case models.DriverStatusAvailable:
		return name, nil
	case models.DriverStatusBusy:
		return "", models.ErrDriverBusy
	default:
		return "", models.ErrDriverUnavailable
	}
}

// ScoreDriver вычисляет оценку кандидата для доставки.
// Близость дает до 10 баллов и обнуляется за пределами 10 км,
// рейтинг удваивается, процент завершенных доставок дает до 10 баллов.
// Тяжелые грузы добавляют 5 баллов вместительному транспорту,
// предпочитаемая зона — еще 3.
func ScoreDriver(driver *models.Driver, distanceKm, weightKg, heavyWeightKg float64, zone *models.Zone) float64 {
	score := 10.0 - distanceKm
	if score < 0 {
		score = 0
	}

	score += driver.Rating * 2
	score += driver.CompletionRate / 10

	if weightKg > heavyWeightKg && driver.VehicleType.HeavyCapable() {
		score += 5
	}

	if zone != nil && driver.PrefersZone(zone.ID.String()) {
		score += 3
	}

	return score
}

// RankCandidates вычисляет оценки кандидатов и сортирует их от лучшего
// к худшему. Сортировка стабильная: при равных оценках сохраняется
// исходный порядок кандидатов, что делает выбор детерминированным.
func RankCandidates(drivers []*models.Driver, pickup models.Location, weightKg, heavyWeightKg float64, zone *models.Zone) []*ScoredDriver {
	ranked := make([]*ScoredDriver, 0, len(drivers))
	for _, driver := range drivers {
		if !driver.HasLocation() {
			continue
		}
		distance := geo.DistanceKm(models.Location{Lat: *driver.CurrentLat, Lng: *driver.CurrentLng}, pickup)
		ranked = append(ranked, &ScoredDriver{
			Driver:     driver,
			DistanceKm: distance,
			Score:      ScoreDriver(driver, distance, weightKg, heavyWeightKg, zone),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked
}
