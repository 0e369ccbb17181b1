package services

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"dispatch-engine/internal/config"
	"dispatch-engine/internal/database"
	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func newTestDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &database.DB{DB: db}, mock
}

func testLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "panic", Format: "json"})
}

var deliveryTestColumns = []string{
	"id", "order_id", "customer_name", "customer_phone",
	"pickup_lat", "pickup_lng", "pickup_address", "pickup_city", "pickup_district",
	"delivery_lat", "delivery_lng", "delivery_address", "delivery_city", "delivery_district",
	"driver_id", "driver_name", "status", "current_lat", "current_lng",
	"scheduled_pickup", "scheduled_delivery", "actual_pickup", "actual_delivery", "estimated_arrival",
	"package_weight", "package_volume", "package_description",
	"delivery_fee", "cod_amount", "is_paid",
	"proof_signature", "proof_photo_url", "proof_receiver_name", "proof_notes", "proof_submitted_at",
	"created_at", "updated_at",
}

func deliveryRows(id uuid.UUID, driverID *uuid.UUID, status models.DeliveryStatus, receiver string, now time.Time) *sqlmock.Rows {
	var driver interface{}
	if driverID != nil {
		driver = driverID.String()
	}

	var proofReceiver, proofAt, actualDelivery interface{}
	if receiver != "" {
		proofReceiver = receiver
		proofAt = now
		actualDelivery = now
	}

	return sqlmock.NewRows(deliveryTestColumns).AddRow(
		id.String(), "ORD-1001", "Customer", "+966500000001",
		24.7136, 46.6753, "King Fahd Rd", "Riyadh", "Olaya",
		24.7744, 46.7386, "Salah Ad Din Rd", "Riyadh", "Al Malaz",
		driver, "Bob", string(status), nil, nil,
		nil, nil, nil, actualDelivery, nil,
		2.5, 0.2, "Box",
		25.0, 0.0, false,
		nil, nil, proofReceiver, nil, proofAt,
		now, now,
	)
}

func trackingRows(deliveryID uuid.UUID, status models.DeliveryStatus, notes string, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "delivery_id", "status", "lat", "lng", "notes", "created_at"}).
		AddRow(uuid.New().String(), deliveryID.String(), string(status), nil, nil, notes, now)
}

func newTestDeliveryService(t *testing.T) (*DeliveryService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock := newTestDB(t)
	cfg := &config.DispatchConfig{AvgSpeedKmh: 30, SearchRadiusKm: 10, MaxCandidates: 100, HeavyWeightKg: 10}
	return NewDeliveryService(db, nil, nil, cfg, testLogger()), mock
}

func TestSubmitProofCompletesDeliveryAndReleasesDriver(t *testing.T) {
	svc, mock := newTestDeliveryService(t)
	deliveryID := uuid.New()
	driverID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, driver_id FROM deliveries WHERE id = $1 FOR UPDATE`)).
		WithArgs(deliveryID).
		WillReturnRows(sqlmock.NewRows([]string{"status", "driver_id"}).AddRow("arrived", driverID.String()))
	mock.ExpectExec(regexp.QuoteMeta(`SET status = $1, actual_delivery = $2`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO tracking_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Водитель возвращается в пул, счетчик доставок растет
	mock.ExpectExec(regexp.QuoteMeta(`total_deliveries = total_deliveries + 1`)).
		WithArgs(models.DriverStatusAvailable, sqlmock.AnyArg(), driverID, models.DriverStatusBusy).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM deliveries WHERE id = $1`)).
		WithArgs(deliveryID).
		WillReturnRows(deliveryRows(deliveryID, &driverID, models.DeliveryStatusDelivered, "Alice", now))
	mock.ExpectQuery(`FROM tracking_events`).
		WithArgs(deliveryID).
		WillReturnRows(trackingRows(deliveryID, models.DeliveryStatusDelivered, "Proof of delivery submitted, received by Alice", now))

	delivery, err := svc.SubmitProof(deliveryID, &models.SubmitProofRequest{ReceiverName: "Alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivery.Status != models.DeliveryStatusDelivered {
		t.Fatalf("status = %s, want delivered", delivery.Status)
	}
	if delivery.ActualDelivery == nil {
		t.Fatal("expected actual_delivery to be set")
	}
	if delivery.Proof == nil || delivery.Proof.ReceiverName != "Alice" {
		t.Fatalf("proof = %+v, want receiver Alice", delivery.Proof)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubmitProofRejectsDeliveredDelivery(t *testing.T) {
	svc, mock := newTestDeliveryService(t)
	deliveryID := uuid.New()
	driverID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, driver_id FROM deliveries WHERE id = $1 FOR UPDATE`)).
		WithArgs(deliveryID).
		WillReturnRows(sqlmock.NewRows([]string{"status", "driver_id"}).AddRow("delivered", driverID.String()))
	mock.ExpectRollback()

	_, err := svc.SubmitProof(deliveryID, &models.SubmitProofRequest{ReceiverName: "Alice"})
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateDeliveryStatusRepeatedPickupKeepsPickupTime(t *testing.T) {
	svc, mock := newTestDeliveryService(t)
	deliveryID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, driver_id, delivery_lat, delivery_lng FROM deliveries WHERE id = $1 FOR UPDATE`)).
		WithArgs(deliveryID).
		WillReturnRows(sqlmock.NewRows([]string{"status", "driver_id", "delivery_lat", "delivery_lng"}).
			AddRow("picked_up", nil, 24.7744, 46.7386))
	// Повторная отметка не трогает actual_pickup
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE deliveries SET status = $1, updated_at = $2 WHERE id = $3`)).
		WithArgs(models.DeliveryStatusPickedUp, sqlmock.AnyArg(), deliveryID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO tracking_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM deliveries WHERE id = $1`)).
		WithArgs(deliveryID).
		WillReturnRows(deliveryRows(deliveryID, nil, models.DeliveryStatusPickedUp, "", now))
	mock.ExpectQuery(`FROM tracking_events`).
		WithArgs(deliveryID).
		WillReturnRows(trackingRows(deliveryID, models.DeliveryStatusPickedUp, "", now))

	delivery, err := svc.UpdateDeliveryStatus(deliveryID, &models.UpdateDeliveryStatusRequest{Status: models.DeliveryStatusPickedUp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivery.Status != models.DeliveryStatusPickedUp {
		t.Fatalf("status = %s, want picked_up", delivery.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateDeliveryStatusFirstPickupStampsPickupTime(t *testing.T) {
	svc, mock := newTestDeliveryService(t)
	deliveryID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, driver_id, delivery_lat, delivery_lng FROM deliveries WHERE id = $1 FOR UPDATE`)).
		WithArgs(deliveryID).
		WillReturnRows(sqlmock.NewRows([]string{"status", "driver_id", "delivery_lat", "delivery_lng"}).
			AddRow("assigned", nil, 24.7744, 46.7386))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE deliveries SET status = $1, updated_at = $2, actual_pickup = $3 WHERE id = $4`)).
		WithArgs(models.DeliveryStatusPickedUp, sqlmock.AnyArg(), sqlmock.AnyArg(), deliveryID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO tracking_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM deliveries WHERE id = $1`)).
		WithArgs(deliveryID).
		WillReturnRows(deliveryRows(deliveryID, nil, models.DeliveryStatusPickedUp, "", now))
	mock.ExpectQuery(`FROM tracking_events`).
		WithArgs(deliveryID).
		WillReturnRows(trackingRows(deliveryID, models.DeliveryStatusPickedUp, "", now))

	if _, err := svc.UpdateDeliveryStatus(deliveryID, &models.UpdateDeliveryStatusRequest{Status: models.DeliveryStatusPickedUp}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
