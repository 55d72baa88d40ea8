package store

import (
	"os"
	"testing"
	"time"

	"parking-finder-cli/model"
)

func setTestConfigDir(t *testing.T) {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", root)
	t.Setenv("AppData", root)
}

func fixedClock(t *testing.T) {
	t.Helper()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	calls := 0
	nowFn = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	}
	t.Cleanup(func() { nowFn = time.Now })
}

func TestRememberBooking_MostRecentFirstAndDeduped(t *testing.T) {
	setTestConfigDir(t)
	fixedClock(t)

	bookings, err := LoadRecentBookings()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(bookings) != 0 {
		t.Fatalf("expected no bookings, got %+v", bookings)
	}

	for _, lot := range []model.ParkingLot{
		{Id: 1, Name: "Central"},
		{Id: 2, Name: "Station"},
		{Id: 1, Name: "Central"},
	} {
		if err := RememberBooking(lot); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	}

	bookings, err = LoadRecentBookings()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(bookings) != 2 {
		t.Fatalf("expected 2 bookings, got %+v", bookings)
	}
	if bookings[0].LotID != 1 || bookings[1].LotID != 2 {
		t.Fatalf("expected lot 1 before lot 2, got %+v", bookings)
	}
	if !bookings[0].BookedAt.After(bookings[1].BookedAt) {
		t.Fatalf("expected newest booking first, got %+v", bookings)
	}
}

func TestRememberBooking_Capped(t *testing.T) {
	setTestConfigDir(t)

	for id := 1; id <= maxRecentBookings+3; id++ {
		if err := RememberBooking(model.ParkingLot{Id: id, Name: "Lot"}); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	}

	bookings, err := LoadRecentBookings()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(bookings) != maxRecentBookings {
		t.Fatalf("expected %d bookings, got %d", maxRecentBookings, len(bookings))
	}
	if bookings[0].LotID != maxRecentBookings+3 {
		t.Fatalf("expected newest lot first, got %d", bookings[0].LotID)
	}
}

func TestLoadRecentBookings_InvalidFormat(t *testing.T) {
	setTestConfigDir(t)

	if err := writeJSON(bookingsFile, []string{"legacy"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, err := LoadRecentBookings(); err == nil {
		t.Fatal("expected error for invalid history")
	}
}

func TestRememberRating_KeepsLastPerLot(t *testing.T) {
	setTestConfigDir(t)

	ratings, err := LoadMyRatings()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(ratings) != 0 {
		t.Fatalf("expected no ratings, got %+v", ratings)
	}

	if err := RememberRating(1, 3); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := RememberRating(2, 5); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := RememberRating(1, 4); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	ratings, err = LoadMyRatings()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if ratings[1].Rating != 4 || ratings[2].Rating != 5 {
		t.Fatalf("expected ratings 1=4 2=5, got %+v", ratings)
	}
}

func TestRememberRating_InvalidInput(t *testing.T) {
	setTestConfigDir(t)

	if err := RememberRating(1, 0); err == nil {
		t.Fatal("expected error for rating 0")
	}
	if err := RememberRating(1, 6); err == nil {
		t.Fatal("expected error for rating 6")
	}
	path, err := configPath(ratingsFile)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no ratings file, got %v", err)
	}
}
