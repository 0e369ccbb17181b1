package services

import (
	"database/sql"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"dispatch-engine/internal/config"
	"dispatch-engine/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func ptr(v float64) *float64 { return &v }

func testDriver(name string, lat, lng, rating, completionRate float64, vehicle models.VehicleType) *models.Driver {
	return &models.Driver{
		ID:             uuid.New(),
		Name:           name,
		VehicleType:    vehicle,
		Status:         models.DriverStatusAvailable,
		CurrentLat:     ptr(lat),
		CurrentLng:     ptr(lng),
		Rating:         rating,
		CompletionRate: completionRate,
	}
}

func TestScoreDriverProximityFloor(t *testing.T) {
	driver := testDriver("far", 0, 0, 0, 0, models.VehicleTypeCar)

	// За пределами 10 км фактор близости обнуляется, а не уходит в минус
	got := ScoreDriver(driver, 42.0, 1.0, 10.0, nil)
	if got != 0 {
		t.Fatalf("score = %v, want 0", got)
	}

	got = ScoreDriver(driver, 3.0, 1.0, 10.0, nil)
	if math.Abs(got-7.0) > 1e-9 {
		t.Fatalf("score = %v, want 7", got)
	}
}

func TestScoreDriverWeights(t *testing.T) {
	driver := testDriver("d", 0, 0, 4.5, 95, models.VehicleTypeCar)

	// 2 км: 8 + 4.5*2 + 95/10 = 26.5
	got := ScoreDriver(driver, 2.0, 5.0, 10.0, nil)
	if math.Abs(got-26.5) > 1e-9 {
		t.Fatalf("score = %v, want 26.5", got)
	}
}

func TestScoreDriverHeavyPackageBonus(t *testing.T) {
	van := testDriver("van", 0, 0, 4.0, 90, models.VehicleTypeVan)
	car := testDriver("car", 0, 0, 4.0, 90, models.VehicleTypeCar)

	base := 5.0 + 4.0*2 + 90.0/10 // дистанция 5 км

	// Груз тяжелее порога: бонус только вместительному транспорту
	if got := ScoreDriver(van, 5.0, 15.0, 10.0, nil); math.Abs(got-(base+5)) > 1e-9 {
		t.Errorf("van score = %v, want %v", got, base+5)
	}
	if got := ScoreDriver(car, 5.0, 15.0, 10.0, nil); math.Abs(got-base) > 1e-9 {
		t.Errorf("car score = %v, want %v", got, base)
	}

	// Легкий груз не дает бонуса даже фургону
	if got := ScoreDriver(van, 5.0, 5.0, 10.0, nil); math.Abs(got-base) > 1e-9 {
		t.Errorf("van score with light package = %v, want %v", got, base)
	}
}

func TestScoreDriverPreferredZoneBonus(t *testing.T) {
	zone := &models.Zone{ID: uuid.New(), Name: "Downtown", City: "Riyadh"}

	local := testDriver("local", 0, 0, 4.0, 90, models.VehicleTypeCar)
	local.PreferredZones = []string{zone.ID.String()}
	visitor := testDriver("visitor", 0, 0, 4.0, 90, models.VehicleTypeCar)

	localScore := ScoreDriver(local, 5.0, 1.0, 10.0, zone)
	visitorScore := ScoreDriver(visitor, 5.0, 1.0, 10.0, zone)

	if math.Abs(localScore-visitorScore-3.0) > 1e-9 {
		t.Fatalf("zone bonus = %v, want 3", localScore-visitorScore)
	}
}

func TestRankCandidatesOrdersByScore(t *testing.T) {
	pickup := models.Location{Lat: 24.7136, Lng: 46.6753}

	near := testDriver("near", 24.7136, 46.6753, 3.0, 80, models.VehicleTypeCar)
	far := testDriver("far", 24.8036, 46.6753, 3.0, 80, models.VehicleTypeCar) // ~10 км
	top := testDriver("top", 24.7136, 46.6853, 5.0, 100, models.VehicleTypeCar)

	ranked := RankCandidates([]*models.Driver{far, near, top}, pickup, 1.0, 10.0, nil)

	if len(ranked) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(ranked))
	}
	if ranked[0].Name != "top" {
		t.Fatalf("expected top first, got %s", ranked[0].Name)
	}
	if ranked[1].Name != "near" {
		t.Fatalf("expected near second, got %s", ranked[1].Name)
	}
	if ranked[2].Name != "far" {
		t.Fatalf("expected far last, got %s", ranked[2].Name)
	}
}

func TestRankCandidatesTieBreakKeepsInputOrder(t *testing.T) {
	pickup := models.Location{Lat: 0, Lng: 0}

	first := testDriver("first", 0, 0, 4.0, 90, models.VehicleTypeCar)
	second := testDriver("second", 0, 0, 4.0, 90, models.VehicleTypeCar)
	third := testDriver("third", 0, 0, 4.0, 90, models.VehicleTypeCar)

	// Кандидаты идут в порядке создания; при равных оценках
	// выбор детерминирован и достается первому
	for i := 0; i < 10; i++ {
		ranked := RankCandidates([]*models.Driver{first, second, third}, pickup, 1.0, 10.0, nil)
		if ranked[0].Name != "first" || ranked[1].Name != "second" || ranked[2].Name != "third" {
			t.Fatalf("run %d: tie-break order changed: %s, %s, %s", i, ranked[0].Name, ranked[1].Name, ranked[2].Name)
		}
	}
}

func TestRankCandidatesSkipsDriversWithoutLocation(t *testing.T) {
	pickup := models.Location{Lat: 0, Lng: 0}

	located := testDriver("located", 0, 0, 4.0, 90, models.VehicleTypeCar)
	unlocated := &models.Driver{
		ID:     uuid.New(),
		Name:   "unlocated",
		Status: models.DriverStatusAvailable,
		Rating: 5.0,
	}

	ranked := RankCandidates([]*models.Driver{unlocated, located}, pickup, 1.0, 10.0, nil)
	if len(ranked) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(ranked))
	}
	if ranked[0].Name != "located" {
		t.Fatalf("expected located, got %s", ranked[0].Name)
	}
}

func TestRankCandidatesEmptyPool(t *testing.T) {
	ranked := RankCandidates(nil, models.Location{}, 1.0, 10.0, nil)
	if len(ranked) != 0 {
		t.Fatalf("expected empty ranking, got %d", len(ranked))
	}
}

func TestRankCandidatesHigherRatingBeatsSlightDistance(t *testing.T) {
	pickup := models.Location{Lat: 24.7136, Lng: 46.6753}

	// ~1 км от точки, рейтинг 4.0: 9 + 8 + 9 = 26
	closer := testDriver("closer", 24.7226, 46.6753, 4.0, 90, models.VehicleTypeCar)
	// ~3 км от точки, рейтинг 5.0: 7 + 10 + 10 = 27
	better := testDriver("better", 24.7406, 46.6753, 5.0, 100, models.VehicleTypeCar)

	ranked := RankCandidates([]*models.Driver{closer, better}, pickup, 1.0, 10.0, nil)
	if ranked[0].Name != "better" {
		t.Fatalf("expected better first, got %s", ranked[0].Name)
	}
}

var driverTestColumns = []string{
	"id", "name", "phone", "vehicle_type", "status", "current_lat", "current_lng",
	"rating", "total_deliveries", "completion_rate", "preferred_zones",
	"created_at", "updated_at", "last_location_update",
}

func driverRows(id uuid.UUID, name string, status models.DriverStatus, lat, lng, rating, completion float64, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(driverTestColumns).AddRow(
		id.String(), name, "+966500000000", "car", string(status),
		lat, lng, rating, 10, completion, "{}", now, now, nil,
	)
}

func pendingDeliveryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"status", "pickup_lat", "pickup_lng", "delivery_lat", "delivery_lng", "delivery_city", "delivery_district", "package_weight"}).
		AddRow("pending", 24.7136, 46.6753, 24.7744, 46.7386, "Riyadh", "Al Malaz", 2.5)
}

func newTestDispatchService(t *testing.T) (*DispatchService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock := newTestDB(t)
	log := testLogger()
	cfg := &config.DispatchConfig{AvgSpeedKmh: 30, SearchRadiusKm: 10, MaxCandidates: 100, HeavyWeightKg: 10}
	deliveries := NewDeliveryService(db, nil, nil, cfg, log)
	drivers := NewDriverService(db, log)
	zones := NewZoneService(db, log)
	return NewDispatchService(db, deliveries, drivers, zones, cfg, log), mock
}

func TestAssignManualReturnsDeliveryAndDriver(t *testing.T) {
	svc, mock := newTestDispatchService(t)
	deliveryID := uuid.New()
	driverID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, pickup_lat`).
		WithArgs(deliveryID).
		WillReturnRows(pendingDeliveryRows())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, status FROM drivers WHERE id = $1 FOR UPDATE`)).
		WithArgs(driverID).
		WillReturnRows(sqlmock.NewRows([]string{"name", "status"}).AddRow("Bob", "available"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE drivers SET status = $1, updated_at = $2 WHERE id = $3`)).
		WithArgs(models.DriverStatusBusy, sqlmock.AnyArg(), driverID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE deliveries SET driver_id`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO tracking_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM deliveries WHERE id = $1`)).
		WithArgs(deliveryID).
		WillReturnRows(deliveryRows(deliveryID, &driverID, models.DeliveryStatusAssigned, "", now))
	mock.ExpectQuery(`FROM tracking_events`).
		WithArgs(deliveryID).
		WillReturnRows(trackingRows(deliveryID, models.DeliveryStatusAssigned, "Assigned to Bob", now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM drivers WHERE id = $1`)).
		WithArgs(driverID).
		WillReturnRows(driverRows(driverID, "Bob", models.DriverStatusBusy, 24.7136, 46.6753, 4.5, 95, now))

	delivery, driver, err := svc.Assign(deliveryID, &models.AssignDeliveryRequest{DriverID: &driverID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivery.Status != models.DeliveryStatusAssigned {
		t.Fatalf("delivery status = %s, want assigned", delivery.Status)
	}
	if driver == nil || driver.ID != driverID {
		t.Fatalf("driver = %+v, want id %s", driver, driverID)
	}
	if driver.Status != models.DriverStatusBusy {
		t.Fatalf("driver status = %s, want busy", driver.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignManualBusyDriverLeavesDeliveryUntouched(t *testing.T) {
	svc, mock := newTestDispatchService(t)
	deliveryID := uuid.New()
	driverID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, pickup_lat`).
		WithArgs(deliveryID).
		WillReturnRows(pendingDeliveryRows())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, status FROM drivers WHERE id = $1 FOR UPDATE`)).
		WithArgs(driverID).
		WillReturnRows(sqlmock.NewRows([]string{"name", "status"}).AddRow("Bob", "busy"))
	mock.ExpectRollback()

	delivery, driver, err := svc.Assign(deliveryID, &models.AssignDeliveryRequest{DriverID: &driverID})
	if !errors.Is(err, models.ErrDriverBusy) {
		t.Fatalf("error = %v, want ErrDriverBusy", err)
	}
	if delivery != nil || driver != nil {
		t.Fatalf("expected nil delivery and driver, got %+v / %+v", delivery, driver)
	}
	// Транзакция откатилась без единого UPDATE: доставка осталась pending
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignAutoSkipsLockedCandidate(t *testing.T) {
	svc, mock := newTestDispatchService(t)
	deliveryID := uuid.New()
	bestID := uuid.New()
	secondID := uuid.New()
	now := time.Now()

	pool := sqlmock.NewRows(driverTestColumns).
		AddRow(bestID.String(), "Best", "+966500000001", "car", "available", 24.7136, 46.6753, 5.0, 10, 100.0, "{}", now, now, nil).
		AddRow(secondID.String(), "Second", "+966500000002", "car", "available", 24.8036, 46.6753, 3.0, 10, 80.0, "{}", now, now, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, pickup_lat`).
		WithArgs(deliveryID).
		WillReturnRows(pendingDeliveryRows())
	mock.ExpectQuery(regexp.QuoteMeta(`current_lat IS NOT NULL`)).
		WithArgs(models.DriverStatusAvailable, 100).
		WillReturnRows(pool)
	mock.ExpectQuery(`FROM zones`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "name_ar", "city", "district", "delivery_fee", "min_order_amount", "estimated_time", "is_active", "created_at", "updated_at"}))
	// Лучший кандидат заблокирован конкурирующим назначением
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE SKIP LOCKED`)).
		WithArgs(bestID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE SKIP LOCKED`)).
		WithArgs(secondID).
		WillReturnRows(sqlmock.NewRows([]string{"name", "status"}).AddRow("Second", "available"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE drivers SET status = $1, updated_at = $2 WHERE id = $3`)).
		WithArgs(models.DriverStatusBusy, sqlmock.AnyArg(), secondID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE deliveries SET driver_id`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO tracking_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM deliveries WHERE id = $1`)).
		WithArgs(deliveryID).
		WillReturnRows(deliveryRows(deliveryID, &secondID, models.DeliveryStatusAssigned, "", now))
	mock.ExpectQuery(`FROM tracking_events`).
		WithArgs(deliveryID).
		WillReturnRows(trackingRows(deliveryID, models.DeliveryStatusAssigned, "Assigned to Second", now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM drivers WHERE id = $1`)).
		WithArgs(secondID).
		WillReturnRows(driverRows(secondID, "Second", models.DriverStatusBusy, 24.8036, 46.6753, 3.0, 80, now))

	_, driver, err := svc.Assign(deliveryID, &models.AssignDeliveryRequest{Auto: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if driver == nil || driver.ID != secondID {
		t.Fatalf("driver = %+v, want id %s", driver, secondID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
