package coords

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Format names the layout of a combined-coordinate cell.
type Format string

const (
	FormatCombinedComma Format = "combined_comma" // "lat,lon"
	FormatCombinedSpace Format = "combined_space" // "lat lon"
	FormatGeoJSON       Format = "geojson"        // {"type":"Point","coordinates":[lon,lat]}
	FormatUnknown       Format = "unknown"        // auto-detect
)

// Extraction is the parsed and validated result of one combined cell.
type Extraction struct {
	Validated
	Raw    string `json:"raw"`
	Format Format `json:"format"`
}

var bracketRe = regexp.MustCompile(`^\[\s*([^,\]]+?)\s*,\s*([^\]]+?)\s*\]$`)

// ExtractFromCombined parses a single cell holding both coordinates. GeoJSON
// carries coordinates in lon,lat order, reversed from the textual formats.
// FormatUnknown tries comma, then space, then a bracketed [lat, lon] form.
func ExtractFromCombined(value string, format Format) (Extraction, error) {
	raw := strings.TrimSpace(value)
	ex := Extraction{Raw: raw, Format: format}
	ex.Status = StatusInvalid
	if raw == "" {
		return ex, eris.New("coords: empty combined value")
	}

	switch format {
	case FormatCombinedComma:
		return extractPair(raw, format, splitComma)
	case FormatCombinedSpace:
		return extractPair(raw, format, splitSpace)
	case FormatGeoJSON:
		return extractGeoJSON(raw)
	case FormatUnknown:
		if ex, err := extractPair(raw, FormatCombinedComma, splitComma); err == nil {
			return ex, nil
		}
		if ex, err := extractPair(raw, FormatCombinedSpace, splitSpace); err == nil {
			return ex, nil
		}
		if m := bracketRe.FindStringSubmatch(raw); m != nil {
			return extractParts(raw, FormatUnknown, m[1], m[2])
		}
		return ex, eris.Errorf("coords: unrecognized combined value %q", raw)
	default:
		return ex, eris.Errorf("coords: unknown combined format %q", format)
	}
}

func splitComma(raw string) (string, string, bool) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func splitSpace(raw string) (string, string, bool) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

func extractPair(raw string, format Format, split func(string) (string, string, bool)) (Extraction, error) {
	latStr, lonStr, ok := split(raw)
	if !ok {
		return Extraction{Raw: raw, Format: format, Validated: Validated{Status: StatusInvalid}},
			eris.Errorf("coords: value %q does not split as %s", raw, format)
	}
	return extractParts(raw, format, latStr, lonStr)
}

func extractParts(raw string, format Format, latStr, lonStr string) (Extraction, error) {
	lat, latOK := ParseCoordinate(latStr)
	lon, lonOK := ParseCoordinate(lonStr)
	if !latOK || !lonOK {
		return Extraction{Raw: raw, Format: format, Validated: Validated{Status: StatusInvalid}},
			eris.Errorf("coords: unparseable coordinate in %q", raw)
	}
	return Extraction{Raw: raw, Format: format, Validated: Validate(lat, lon, true)}, nil
}

func extractGeoJSON(raw string) (Extraction, error) {
	ex := Extraction{Raw: raw, Format: FormatGeoJSON, Validated: Validated{Status: StatusInvalid}}

	var g geom.T
	if err := geojson.Unmarshal([]byte(raw), &g); err != nil {
		return ex, eris.Wrap(err, "coords: decode geojson")
	}
	point, ok := g.(*geom.Point)
	if !ok {
		return ex, eris.Errorf("coords: geojson geometry is %T, want point", g)
	}
	// An empty coordinates array decodes without error; reading the axes
	// of such a point would index out of range.
	if len(point.FlatCoords()) < 2 {
		return ex, eris.Errorf("coords: geojson point in %q has no coordinates", raw)
	}

	// GeoJSON axis order is lon,lat.
	ex.Validated = Validate(point.Y(), point.X(), true)
	return ex, nil
}
