package models

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// DateLayout is the calendar date format used for cache keys and upstream requests.
const DateLayout = "2006-01-02"

// WeatherRecord is a provider payload cached for a rounded coordinate and date.
// Records are written once and never updated or expired.
type WeatherRecord struct {
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Date      string          `json:"date"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Key returns the cache key for the record.
func (r WeatherRecord) Key() string {
	return CacheKey(r.Latitude, r.Longitude, r.Date)
}

// RoundCoordinate quantizes a latitude or longitude to 2 decimal places (~1.1 km).
// math.Round rounds half away from zero. Negative zero is folded into zero so
// -0.001 and 0.001 share a key.
func RoundCoordinate(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

// CacheKey renders an already rounded coordinate pair and date as "lat,lon,date"
// with exactly two decimals, e.g. "38.29,-122.46,2024-03-01".
func CacheKey(lat, lon float64, date string) string {
	return FormatCoordinate(lat) + "," + FormatCoordinate(lon) + "," + date
}

// FormatCoordinate renders a rounded coordinate with two decimals.
func FormatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
