package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrStationEmpty is returned when the station is empty or whitespace-only after trim.
var ErrStationEmpty = errors.New("station is required")

// ErrStationTooShort is returned when the station length is below the minimum.
var ErrStationTooShort = errors.New("station too short")

// ErrStationTooLong is returned when the station length exceeds the maximum.
var ErrStationTooLong = errors.New("station too long")

// ErrStationInvalidChars is returned when the station contains disallowed characters.
var ErrStationInvalidChars = errors.New("station contains invalid characters")

// ValidateStation trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to letters (Unicode), digits, space, hyphen, underscore and period.
// Returns the trimmed string or an error suitable for 400 INVALID_STATION responses.
// Lowercasing is left to the service layer.
func ValidateStation(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrStationEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrStationTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrStationTooLong
	}
	for _, c := range r {
		if !isAllowedStationRune(c) {
			return "", ErrStationInvalidChars
		}
	}
	return s, nil
}

// NormalizeStation trims and lowercases a station name. Every store key,
// registry lookup and metric label uses this form.
func NormalizeStation(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func isAllowedStationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.':
		return true
	}
	return false
}
