package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"parking-finder-cli/model"
)

const (
	appDir            = "parking-finder-cli"
	bookingsFile      = "bookings.json"
	ratingsFile       = "ratings.json"
	maxRecentBookings = 8
)

var nowFn = time.Now

type RecentBooking struct {
	LotID     int       `json:"lot_id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	BookedAt  time.Time `json:"booked_at"`
}

type bookingHistory struct {
	Bookings []RecentBooking `json:"bookings"`
}

type MyRating struct {
	Rating  int       `json:"rating"`
	RatedAt time.Time `json:"rated_at"`
}

type ratingHistory struct {
	Ratings map[int]MyRating `json:"ratings"`
}

// LoadRecentBookings returns the bookings made from this device, most recent first.
func LoadRecentBookings() ([]RecentBooking, error) {
	path, err := configPath(bookingsFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var history bookingHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, errors.New("invalid booking history format")
	}
	return history.Bookings, nil
}

func RememberBooking(lot model.ParkingLot) error {
	history, _ := LoadRecentBookings()
	next := []RecentBooking{{
		LotID:     lot.Id,
		Name:      strings.TrimSpace(lot.Name),
		Latitude:  lot.Latitude,
		Longitude: lot.Longitude,
		BookedAt:  nowFn(),
	}}

	for _, existing := range history {
		if existing.LotID == lot.Id {
			continue
		}
		next = append(next, existing)
		if len(next) >= maxRecentBookings {
			break
		}
	}

	return writeJSON(bookingsFile, bookingHistory{Bookings: next})
}

// LoadMyRatings maps lot id to the last rating given from this device.
func LoadMyRatings() (map[int]MyRating, error) {
	result := map[int]MyRating{}
	path, err := configPath(ratingsFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, err
	}

	var history ratingHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, errors.New("invalid rating history format")
	}
	for id, rating := range history.Ratings {
		result[id] = rating
	}
	return result, nil
}

func RememberRating(lotID int, rating int) error {
	if rating < 1 || rating > 5 {
		return errors.New("rating must be between 1 and 5")
	}
	ratings, err := LoadMyRatings()
	if err != nil {
		return err
	}
	ratings[lotID] = MyRating{Rating: rating, RatedAt: nowFn()}
	return writeJSON(ratingsFile, ratingHistory{Ratings: ratings})
}

func writeJSON(name string, value any) error {
	path, err := configPath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func configPath(name string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDir, name), nil
}
