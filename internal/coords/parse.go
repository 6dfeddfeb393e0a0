// Package coords parses, validates, and repairs geographic coordinate values.
package coords

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// 40°42'46"N — degrees, minutes, seconds with optional hemisphere.
	dmsRe = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\s*[°dD]\s*(\d+(?:\.\d+)?)\s*['′mM]\s*(\d+(?:\.\d+)?)\s*(?:["″sS])?\s*([NSEWnsew])?$`)

	// 40°42.768'N — degrees with decimal minutes.
	dmRe = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\s*[°dD]\s*(\d+(?:\.\d+)?)\s*['′mM]?\s*([NSEWnsew])?$`)

	// 74.0060 W or 74.0060W — decimal degrees with hemisphere suffix.
	suffixRe = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\s*([NSEWnsew])$`)
)

// ParseCoordinate parses one coordinate value into decimal degrees. It tries
// plain decimal first, then DMS, then degrees with decimal minutes, then a
// decimal with a trailing hemisphere letter. ok is false when no form
// matches. A hemisphere letter of S or W forces a negative result; a signed
// decimal degree component keeps its sign when no letter is present.
func ParseCoordinate(value string) (float64, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, false
	}

	if deg, err := strconv.ParseFloat(v, 64); err == nil {
		return deg, true
	}

	if m := dmsRe.FindStringSubmatch(v); m != nil {
		return assemble(m[1], m[2], m[3], m[4])
	}
	if m := dmRe.FindStringSubmatch(v); m != nil {
		return assemble(m[1], m[2], "", m[3])
	}
	if m := suffixRe.FindStringSubmatch(v); m != nil {
		return assemble(m[1], "", "", m[2])
	}

	return 0, false
}

// assemble combines degree, minute, and second components with a hemisphere
// letter into signed decimal degrees.
func assemble(degStr, minStr, secStr, hemi string) (float64, bool) {
	deg, err := strconv.ParseFloat(degStr, 64)
	if err != nil {
		return 0, false
	}

	negative := deg < 0
	magnitude := deg
	if negative {
		magnitude = -magnitude
	}

	if minStr != "" {
		minutes, err := strconv.ParseFloat(minStr, 64)
		if err != nil || minutes >= 60 {
			return 0, false
		}
		magnitude += minutes / 60
	}
	if secStr != "" {
		seconds, err := strconv.ParseFloat(secStr, 64)
		if err != nil || seconds >= 60 {
			return 0, false
		}
		magnitude += seconds / 3600
	}

	switch strings.ToUpper(hemi) {
	case "S", "W":
		return -magnitude, true
	case "N", "E":
		return magnitude, true
	}
	if negative {
		return -magnitude, true
	}
	return magnitude, true
}
