package model

type ParkingLot struct {
	Id        int     `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Capacity  int     `json:"capacity"`
	Available int     `json:"available"`
	Rate      float64 `json:"rate"`
	Ratings   []int   `json:"ratings"`
}

// Position returns the lot location as coordinates.
func (p ParkingLot) Position() Coordinates {
	return Coordinates{Latitude: p.Latitude, Longitude: p.Longitude}
}

// AverageRating is the mean of the lot's past ratings, 0 when it has none.
func (p ParkingLot) AverageRating() float64 {
	return AverageRating(p.Ratings)
}

// Consistent reports whether 0 <= available <= capacity.
func (p ParkingLot) Consistent() bool {
	return p.Available >= 0 && p.Available <= p.Capacity
}

// AverageRating returns the arithmetic mean of ratings, or 0 for an empty slice.
func AverageRating(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return float64(sum) / float64(len(ratings))
}
