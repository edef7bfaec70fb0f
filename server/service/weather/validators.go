package weather

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/hrygo/weatherproxy/server/internal/errors"
)

// validRegions holds the US states, DC and the territories served by the API.
var validRegions = map[string]struct{}{
	"AL": {}, "AK": {}, "AZ": {}, "AR": {}, "CA": {}, "CO": {}, "CT": {}, "DE": {},
	"FL": {}, "GA": {}, "HI": {}, "ID": {}, "IL": {}, "IN": {}, "IA": {}, "KS": {},
	"KY": {}, "LA": {}, "ME": {}, "MD": {}, "MA": {}, "MI": {}, "MN": {}, "MS": {},
	"MO": {}, "MT": {}, "NE": {}, "NV": {}, "NH": {}, "NJ": {}, "NM": {}, "NY": {},
	"NC": {}, "ND": {}, "OH": {}, "OK": {}, "OR": {}, "PA": {}, "RI": {}, "SC": {},
	"SD": {}, "TN": {}, "TX": {}, "UT": {}, "VT": {}, "VA": {}, "WA": {}, "WV": {},
	"WI": {}, "WY": {}, "DC": {}, "PR": {}, "VI": {}, "GU": {}, "AS": {}, "MP": {},
}

// ValidateRegionCode normalizes a two-letter region code and checks it is known.
func ValidateRegionCode(code string) (string, error) {
	if code == "" {
		return "", apperrors.Validation("State code cannot be empty")
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return "", apperrors.Validation("State code must be exactly 2 characters")
	}
	if _, ok := validRegions[code]; !ok {
		return "", apperrors.Validation(fmt.Sprintf("Invalid state code: %s. Must be a valid US state/territory code.", code))
	}
	return code, nil
}

// ValidateCoordinates checks both values against their inclusive ranges.
// NaN fails the range checks.
func ValidateCoordinates(lat, lon float64) (float64, float64, error) {
	if !(lat >= -90 && lat <= 90) {
		return 0, 0, apperrors.Validation("Latitude must be between -90 and 90 degrees")
	}
	if !(lon >= -180 && lon <= 180) {
		return 0, 0, apperrors.Validation("Longitude must be between -180 and 180 degrees")
	}
	return lat, lon, nil
}

// ParseCoordinates parses textual coordinates and validates them.
func ParseCoordinates(lat, lon string) (float64, float64, error) {
	latitude, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return 0, 0, apperrors.Wrap(err, apperrors.ErrCodeValidation, "Latitude must be a number")
	}
	longitude, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return 0, 0, apperrors.Wrap(err, apperrors.ErrCodeValidation, "Longitude must be a number")
	}
	return ValidateCoordinates(latitude, longitude)
}

// formatCoordinate renders a coordinate for URLs and cache keys.
// Integral values keep one decimal so 40 and 40.0 share a key.
func formatCoordinate(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
