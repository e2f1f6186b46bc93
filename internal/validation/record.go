package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/station-forecast-service/internal/models"
)

var (
	// ErrInvalidRecord wraps every record rule violation.
	ErrInvalidRecord = errors.New("invalid weather record")
	// ErrInvalidCoordinates is returned for latitude or longitude out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

var validate = validator.New()

// ValidateRecord checks the physical plausibility of a daily record: both
// temperatures within [-50, 50] with min <= max, precipitation within
// [0, 1000], wind within [0, 100] and a YYYY-MM-DD date.
func ValidateRecord(r models.WeatherRecord) error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field()+" "+fe.Tag())
		}
		return fmt.Errorf("%w %s: %s", ErrInvalidRecord, r.Time, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
}

// CleanRecords returns the records that pass ValidateRecord, in order.
// The input slice is not modified.
func CleanRecords(records []models.WeatherRecord) []models.WeatherRecord {
	out := make([]models.WeatherRecord, 0, len(records))
	for _, r := range records {
		if ValidateRecord(r) == nil {
			out = append(out, r)
		}
	}
	return out
}

// ValidateCoordinates checks WGS84 latitude and longitude ranges.
func ValidateCoordinates(lat, lon float64) error {
	if err := validate.Var(lat, "latitude"); err != nil {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinates, lat)
	}
	if err := validate.Var(lon, "longitude"); err != nil {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinates, lon)
	}
	return nil
}
