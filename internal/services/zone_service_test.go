package services

import (
	"testing"

	"dispatch-engine/internal/models"

	"github.com/google/uuid"
)

func testZone(city, district string, active bool) *models.Zone {
	return &models.Zone{
		ID:       uuid.New(),
		Name:     city + "/" + district,
		City:     city,
		District: district,
		IsActive: active,
	}
}

func TestMatchZonePrefersDistrictMatch(t *testing.T) {
	cityWide := testZone("Riyadh", "", true)
	downtown := testZone("Riyadh", "Downtown", true)
	zones := []*models.Zone{cityWide, downtown}

	got := MatchZone(zones, models.Location{City: "Riyadh", District: "Downtown"})
	if got != downtown {
		t.Fatalf("expected district zone, got %v", got)
	}
}

func TestMatchZoneFallsBackToCityWideZone(t *testing.T) {
	cityWide := testZone("Riyadh", "", true)
	downtown := testZone("Riyadh", "Downtown", true)
	zones := []*models.Zone{downtown, cityWide}

	got := MatchZone(zones, models.Location{City: "Riyadh", District: "Olaya"})
	if got != cityWide {
		t.Fatalf("expected city-wide zone, got %v", got)
	}
}

func TestMatchZoneCaseInsensitive(t *testing.T) {
	zone := testZone("Riyadh", "Downtown", true)

	got := MatchZone([]*models.Zone{zone}, models.Location{City: "riyadh", District: "DOWNTOWN"})
	if got != zone {
		t.Fatalf("expected case-insensitive match, got %v", got)
	}
}

func TestMatchZoneIgnoresInactiveZones(t *testing.T) {
	inactive := testZone("Riyadh", "Downtown", false)

	got := MatchZone([]*models.Zone{inactive}, models.Location{City: "Riyadh", District: "Downtown"})
	if got != nil {
		t.Fatalf("expected no match for inactive zone, got %v", got)
	}
}

func TestMatchZoneUnknownCity(t *testing.T) {
	zones := []*models.Zone{testZone("Riyadh", "", true)}

	if got := MatchZone(zones, models.Location{City: "Jeddah"}); got != nil {
		t.Fatalf("expected no match, got %v", got)
	}
	if got := MatchZone(zones, models.Location{}); got != nil {
		t.Fatalf("expected no match for empty location, got %v", got)
	}
}
