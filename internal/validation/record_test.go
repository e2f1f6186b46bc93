package validation

import (
	"errors"
	"math"
	"testing"

	"github.com/kjstillabower/station-forecast-service/internal/models"
)

func validRecord() models.WeatherRecord {
	return models.WeatherRecord{
		Time:             "2024-05-01",
		TemperatureMax:   18,
		TemperatureMin:   4,
		PrecipitationSum: 0.2,
		WindSpeed:        14,
		Station:          "stuttgart",
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *models.WeatherRecord)
		wantErr bool
	}{
		{"valid", func(r *models.WeatherRecord) {}, false},
		{"equal temperatures", func(r *models.WeatherRecord) { r.TemperatureMin = r.TemperatureMax }, false},
		{"boundaries", func(r *models.WeatherRecord) {
			r.TemperatureMax, r.TemperatureMin = 50, -50
			r.PrecipitationSum, r.WindSpeed = 1000, 100
		}, false},
		{"zero precipitation and wind", func(r *models.WeatherRecord) { r.PrecipitationSum, r.WindSpeed = 0, 0 }, false},
		{"min above max", func(r *models.WeatherRecord) { r.TemperatureMin = 20 }, true},
		{"max too hot", func(r *models.WeatherRecord) { r.TemperatureMax = 50.1 }, true},
		{"min too cold", func(r *models.WeatherRecord) { r.TemperatureMin = -50.1 }, true},
		{"negative precipitation", func(r *models.WeatherRecord) { r.PrecipitationSum = -0.1 }, true},
		{"precipitation too high", func(r *models.WeatherRecord) { r.PrecipitationSum = 1000.5 }, true},
		{"negative wind", func(r *models.WeatherRecord) { r.WindSpeed = -1 }, true},
		{"wind too high", func(r *models.WeatherRecord) { r.WindSpeed = 100.1 }, true},
		{"NaN wind", func(r *models.WeatherRecord) { r.WindSpeed = math.NaN() }, true},
		{"missing date", func(r *models.WeatherRecord) { r.Time = "" }, true},
		{"bad date", func(r *models.WeatherRecord) { r.Time = "01.05.2024" }, true},
		{"impossible date", func(r *models.WeatherRecord) { r.Time = "2024-02-30" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(&r)
			err := ValidateRecord(r)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRecord) {
					t.Errorf("ValidateRecord() error = %v, want ErrInvalidRecord", err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateRecord() unexpected error: %v", err)
			}
		})
	}
}

func TestCleanRecords_DropsInvalid(t *testing.T) {
	good1 := validRecord()
	bad := validRecord()
	bad.Time = "2024-05-02"
	bad.WindSpeed = -3
	good2 := validRecord()
	good2.Time = "2024-05-03"

	in := []models.WeatherRecord{good1, bad, good2}
	got := CleanRecords(in)
	if len(got) != 2 {
		t.Fatalf("CleanRecords() len = %d, want 2", len(got))
	}
	if got[0].Time != "2024-05-01" || got[1].Time != "2024-05-03" {
		t.Errorf("CleanRecords() = %s, %s; want 2024-05-01, 2024-05-03", got[0].Time, got[1].Time)
	}
	if len(in) != 3 || in[1].WindSpeed != -3 {
		t.Error("CleanRecords() modified its input")
	}
	if got := CleanRecords(nil); len(got) != 0 {
		t.Errorf("CleanRecords(nil) len = %d, want 0", len(got))
	}
}

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		wantErr  bool
	}{
		{"stuttgart", 48.78, 9.18, false},
		{"extremes", -90, 180, false},
		{"lat too high", 90.5, 0, true},
		{"lon too low", 0, -180.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCoordinates(tt.lat, tt.lon)
			if tt.wantErr != (err != nil) {
				t.Fatalf("ValidateCoordinates() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCoordinates) {
				t.Errorf("error = %v, want ErrInvalidCoordinates", err)
			}
		})
	}
}
