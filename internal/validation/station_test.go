package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateStation_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateStation(tc.input, 1, 100)
			if !errors.Is(err, ErrStationEmpty) {
				t.Errorf("error = %v, want ErrStationEmpty", err)
			}
		})
	}
}

func TestValidateStation_Length(t *testing.T) {
	if _, err := ValidateStation("x", 2, 100); !errors.Is(err, ErrStationTooShort) {
		t.Errorf("too short: error = %v, want ErrStationTooShort", err)
	}
	s100 := strings.Repeat("a", 100)
	if got, err := ValidateStation(s100, 1, 100); err != nil || len([]rune(got)) != 100 {
		t.Errorf("max boundary: got %d runes, err = %v", len([]rune(got)), err)
	}
	if _, err := ValidateStation(s100+"a", 1, 100); !errors.Is(err, ErrStationTooLong) {
		t.Errorf("over max: error = %v, want ErrStationTooLong", err)
	}
}

func TestValidateStation_InvalidChars(t *testing.T) {
	for _, input := range []string{"stutt/gart", "stutt?gart", "stutt#gart", "stutt\x00gart", "stutt%gart", "a,b"} {
		t.Run(input, func(t *testing.T) {
			if _, err := ValidateStation(input, 1, 100); !errors.Is(err, ErrStationInvalidChars) {
				t.Errorf("error = %v, want ErrStationInvalidChars", err)
			}
		})
	}
}

func TestValidateStation_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Stuttgart", "Stuttgart"},
		{"Frankfurt am Main", "Frankfurt am Main"},
		{"  berlin  ", "berlin"},
		{"St. Moritz", "St. Moritz"},
		{"Zürich", "Zürich"},
		{"station_42-b", "station_42-b"},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ValidateStation(tc.input, 1, 100)
			if err != nil {
				t.Fatalf("ValidateStation() err = %v", err)
			}
			if got != tc.want {
				t.Errorf("ValidateStation() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeStation(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Stuttgart", "stuttgart"},
		{"  BAD Cannstatt\t", "bad cannstatt"},
		{"münchen", "münchen"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := NormalizeStation(tc.in); got != tc.want {
			t.Errorf("NormalizeStation(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
