package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrStationEmpty is returned when the station is empty or whitespace-only after trim.
var ErrStationEmpty = errors.New("station is required")

// ErrStationLength is returned when the station length is outside the provider's bounds.
var ErrStationLength = errors.New("station length out of range")

// ErrStationInvalidChars is returned when the station contains disallowed characters.
var ErrStationInvalidChars = errors.New("station contains invalid characters")

const (
	placeMinLen = 2
	placeMaxLen = 100

	nwsMinLen = 3
	nwsMaxLen = 5
)

// ValidateStation trims and checks a station identifier.
//
// For OpenWeatherMap (nws=false) the station is a place query such as
// "london,gb" or "Haymarket,VA,US": letters, digits, space, comma, hyphen,
// underscore and period, 2 to 100 runes. For the National Weather Service
// (nws=true) it is an observation station id such as "KHEF": 3 to 5 ASCII
// letters or digits, returned upper case.
func ValidateStation(nws bool, input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrStationEmpty
	}
	if nws {
		return validateStationID(s)
	}
	return validatePlace(s)
}

func validatePlace(s string) (string, error) {
	r := []rune(s)
	if len(r) < placeMinLen || len(r) > placeMaxLen {
		return "", ErrStationLength
	}
	for _, c := range r {
		if !isAllowedPlaceRune(c) {
			return "", ErrStationInvalidChars
		}
	}
	return s, nil
}

func validateStationID(s string) (string, error) {
	if len(s) < nwsMinLen || len(s) > nwsMaxLen {
		return "", ErrStationLength
	}
	for _, c := range s {
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return "", ErrStationInvalidChars
		}
	}
	return strings.ToUpper(s), nil
}

// isAllowedPlaceRune returns true for letters (Unicode), digits, space, comma, hyphen, underscore, period.
func isAllowedPlaceRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '_', '.':
		return true
	}
	return false
}
