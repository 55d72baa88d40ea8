package model

import "math"

const (
	earthRadiusKM   = 6371.0
	DefaultSpeedKMH = 40.0
)

// Coordinates is a single location reading.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	AccuracyM float64 `json:"accuracy,omitempty"`
	Source    string  `json:"-"`
}

func (c Coordinates) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}

// DistanceKm is the great-circle distance between a and b.
func DistanceKm(a Coordinates, b Coordinates) float64 {
	toRad := math.Pi / 180

	lat1Rad := a.Latitude * toRad
	lat2Rad := b.Latitude * toRad
	dLat := (b.Latitude - a.Latitude) * toRad
	dLon := (b.Longitude - a.Longitude) * toRad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

// EstimatedMinutes converts a distance into a drive time at speedKmh.
// A non-positive speed falls back to DefaultSpeedKMH.
func EstimatedMinutes(distanceKm float64, speedKmh float64) float64 {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKMH
	}
	return distanceKm / speedKmh * 60
}
