package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"dispatch-engine/internal/config"
	"dispatch-engine/internal/logger"
	"dispatch-engine/internal/models"

	"github.com/google/uuid"
)

func TestExtractUUIDFromPath(t *testing.T) {
	id := uuid.New()

	got, err := extractUUIDFromPath("/api/deliveries/"+id.String(), "/api/deliveries/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != id {
		t.Fatalf("got %s, want %s", got, id)
	}
}

func TestExtractUUIDFromPathWithSuffix(t *testing.T) {
	id := uuid.New()

	got, err := extractUUIDFromPath("/api/deliveries/"+id.String()+"/status", "/api/deliveries/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != id {
		t.Fatalf("got %s, want %s", got, id)
	}
}

func TestExtractUUIDFromPathErrors(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		prefix string
	}{
		{"wrong prefix", "/api/drivers/" + uuid.New().String(), "/api/deliveries/"},
		{"not a uuid", "/api/deliveries/not-a-uuid", "/api/deliveries/"},
		{"empty id", "/api/deliveries/", "/api/deliveries/"},
	}

	for _, c := range cases {
		if _, err := extractUUIDFromPath(c.path, c.prefix); err == nil {
			t.Errorf("%s: expected error for %q", c.name, c.path)
		}
	}
}

func TestParseLimitOffset(t *testing.T) {
	cases := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 50, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=0", 50, 0},
		{"limit=500", 50, 0},
		{"limit=abc&offset=xyz", 50, 0},
		{"offset=-5", 50, 0},
	}

	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/api/drivers?"+c.query, nil)
		limit, offset := parseLimitOffset(r)
		if limit != c.wantLimit || offset != c.wantOffset {
			t.Errorf("query %q: got (%d, %d), want (%d, %d)", c.query, limit, offset, c.wantLimit, c.wantOffset)
		}
	}
}

func TestWriteServiceErrorMapsDomainErrors(t *testing.T) {
	log := logger.New(&config.LoggerConfig{Level: "panic", Format: "json"})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", models.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"zone not found", models.ErrZoneNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"driver not found", models.ErrDriverNotFound, http.StatusNotFound, "DRIVER_NOT_FOUND"},
		{"already assigned", fmt.Errorf("%w: delivery is assigned", models.ErrAlreadyAssigned), http.StatusBadRequest, "ALREADY_ASSIGNED"},
		{"driver busy", models.ErrDriverBusy, http.StatusBadRequest, "DRIVER_BUSY"},
		{"driver unavailable", models.ErrDriverUnavailable, http.StatusBadRequest, "DRIVER_UNAVAILABLE"},
		{"no drivers", models.ErrNoDriversAvailable, http.StatusBadRequest, "NO_DRIVERS"},
		{"invalid transition", fmt.Errorf("%w: pending -> delivered", models.ErrInvalidTransition), http.StatusConflict, "INVALID_TRANSITION"},
		{"validation", models.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, log, tt.err, "test operation")

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Error != tt.wantCode {
				t.Fatalf("code = %q, want %q", body.Error, tt.wantCode)
			}
		})
	}
}
