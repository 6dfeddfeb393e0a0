package coords

import "math"

// placeholderPairs are coordinates that show up as defaults or test data in
// real-world spreadsheets far more often than as genuine locations.
var placeholderPairs = []LatLon{
	{0, 0},
	{1, 1},
	{-1, -1},
	{12.345678, 12.345678},
	{123.456789, 123.456789},
}

// Confidence estimates how trustworthy a coordinate pair is, in (0,1].
// Penalties compose multiplicatively: x0.9 when both values are whole
// degrees (rounding suspicion), x0.95 when either axis sits near its
// extreme, x0.5 when the pair matches a known placeholder.
func Confidence(lat, lon float64) float64 {
	score := 1.0

	if lat == math.Trunc(lat) && lon == math.Trunc(lon) {
		score *= 0.9
	}

	if math.Abs(lat) > 85 || math.Abs(lon) > 175 {
		score *= 0.95
	}

	for _, p := range placeholderPairs {
		if lat == p.Lat && lon == p.Lon {
			score *= 0.5
			break
		}
	}

	return score
}
