package coords

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Status classifies the outcome of coordinate validation. The values are
// mutually exclusive.
type Status string

const (
	StatusValid          Status = "valid"
	StatusOutOfRange     Status = "out_of_range"
	StatusSuspiciousZero Status = "suspicious_zero"
	StatusSwapped        Status = "swapped"
	StatusInvalid        Status = "invalid"
)

// Validated is the result of validating one latitude/longitude pair.
// IsValid implies latitude in [-90,90] and longitude in [-180,180].
type Validated struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	IsValid    bool    `json:"is_valid"`
	Status     Status  `json:"validation_status"`
	Confidence float64 `json:"confidence"`
	WasSwapped bool    `json:"was_swapped,omitempty"`
}

// Point returns the coordinates as a go-geom point (x=lon, y=lat), or nil
// when the pair is not valid.
func (v Validated) Point() *geom.Point {
	if !v.IsValid {
		return nil
	}
	return geom.NewPointFlat(geom.XY, []float64{v.Longitude, v.Latitude})
}

// swapSignature reports whether the pair looks like an exchanged
// latitude/longitude: a latitude that is out of range but valid as a
// longitude, paired with a longitude that fits the latitude range.
func swapSignature(lat, lon float64) bool {
	return math.Abs(lat) > 90 && math.Abs(lat) <= 180 && math.Abs(lon) <= 90
}

// Validate validates a latitude/longitude pair. Rules apply in order:
// NaN values are invalid; an exact (0,0) is a suspicious placeholder, not a
// real coordinate; a swap signature is repaired when autoFix is set (the
// swap check must precede the plain range check, since an out-of-range
// latitude that is in range as a longitude signals a swap rather than a
// generically bad value); anything else out of range is rejected.
func Validate(lat, lon float64, autoFix bool) Validated {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return Validated{Latitude: lat, Longitude: lon, Status: StatusInvalid}
	}

	if lat == 0 && lon == 0 {
		return Validated{Status: StatusSuspiciousZero, Confidence: 0.1}
	}

	if swapSignature(lat, lon) {
		if autoFix {
			return Validated{
				Latitude:   lon,
				Longitude:  lat,
				IsValid:    true,
				Status:     StatusSwapped,
				Confidence: 0.8,
				WasSwapped: true,
			}
		}
		return Validated{
			Latitude:   lat,
			Longitude:  lon,
			Status:     StatusSwapped,
			Confidence: 0.3,
		}
	}

	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return Validated{Latitude: lat, Longitude: lon, Status: StatusOutOfRange}
	}

	return Validated{
		Latitude:   lat,
		Longitude:  lon,
		IsValid:    true,
		Status:     StatusValid,
		Confidence: 1.0,
	}
}

// LatLon is one sampled coordinate pair.
type LatLon struct {
	Lat float64
	Lon float64
}

// DefaultSwapThreshold is the share of sampled pairs that must exhibit the
// swap signature before auto-fix is applied dataset-wide.
const DefaultSwapThreshold = 0.7

// DetectSwapped inspects a batch sample of coordinate pairs and reports
// whether more than threshold of them exhibit the swap signature. Used as a
// pre-flight check before committing to auto-fix for an entire dataset.
// A threshold <= 0 falls back to DefaultSwapThreshold.
func DetectSwapped(samples []LatLon, threshold float64) bool {
	if len(samples) == 0 {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultSwapThreshold
	}
	swapped := 0
	for _, s := range samples {
		if swapSignature(s.Lat, s.Lon) {
			swapped++
		}
	}
	return float64(swapped)/float64(len(samples)) > threshold
}
