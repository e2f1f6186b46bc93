package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/station-forecast-service/internal/models"
)

var goldenDays = [][4]float64{
	{18, 4, 0.2, 14},
	{13, 9, 0.1, 25},
	{12, 5, 0.0, 26},
	{16, 6, 0.3, 9},
	{17, 7, 0.4, 17},
	{19, 7, 0.1, 12},
	{10, 9, 0.0, 25},
}

func observedWeek(station string, end time.Time, days [][4]float64) []models.WeatherRecord {
	out := make([]models.WeatherRecord, len(days))
	for i, d := range days {
		out[i] = models.WeatherRecord{
			Time:             models.Day(end.AddDate(0, 0, i-len(days)+1)),
			TemperatureMax:   d[0],
			TemperatureMin:   d[1],
			PrecipitationSum: d[2],
			WindSpeed:        d[3],
			Station:          station,
		}
	}
	return out
}

func TestEngine_Forecast_Golden(t *testing.T) {
	today := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	got, err := NewEngine(nil).Forecast(observedWeek("stuttgart", today, goldenDays), today)
	require.NoError(t, err)

	want := [][4]float64{
		{14.0, 8.6, 0.1, 18.0},
		{13.6, 9.2, 0.1, 17.9},
		{13.4, 9.6, 0.1, 17.8},
		{13.2, 10.1, 0.1, 17.8},
		{13.0, 10.5, 0.1, 17.7},
		{12.7, 10.9, 0.1, 17.6},
		{12.5, 11.3, 0.1, 17.6},
	}
	require.Len(t, got, Horizon)
	for i, r := range got {
		assert.Equal(t, models.Day(today.AddDate(0, 0, i+1)), r.Time)
		assert.Equal(t, "stuttgart", r.Station)
		assert.True(t, r.Predicted)
		assert.Equal(t, want[i], [4]float64{r.TemperatureMax, r.TemperatureMin, r.PrecipitationSum, r.WindSpeed}, "day %d", i+1)
	}
	assert.Equal(t, "2024-05-03", got[0].Time)
	assert.Equal(t, "2024-05-09", got[6].Time)
}

// TestEngine_Forecast_UsesLastWindow verifies that older records beyond the
// window do not influence the result.
func TestEngine_Forecast_UsesLastWindow(t *testing.T) {
	today := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	longer := append([][4]float64{{40, -20, 90, 80}, {-10, -30, 50, 70}}, goldenDays...)

	engine := NewEngine(nil)
	want, err := engine.Forecast(observedWeek("stuttgart", today, goldenDays), today)
	require.NoError(t, err)
	got, err := engine.Forecast(observedWeek("stuttgart", today, longer), today)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEngine_Forecast_NonNegative(t *testing.T) {
	today := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	falling := [][4]float64{
		{5, 5, 5, 5}, {4, 4, 4, 4}, {3, 3, 3, 3}, {2, 2, 2, 2},
		{1, 1, 1, 1}, {0.5, 0.5, 0.5, 0.5}, {0, 0, 0, 0},
	}
	got, err := NewEngine(nil).Forecast(observedWeek("berlin", today, falling), today)
	require.NoError(t, err)

	assert.Equal(t, -1.2, got[0].TemperatureMax)
	assert.Equal(t, -1.2, got[0].TemperatureMin)
	for _, r := range got {
		assert.Equal(t, 0.0, r.PrecipitationSum, r.Time)
		assert.Equal(t, 0.0, r.WindSpeed, r.Time)
	}
}

func TestEngine_Forecast_InsufficientData(t *testing.T) {
	today := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	for _, n := range []int{0, 1, 6} {
		got, err := NewEngine(nil).Forecast(observedWeek("stuttgart", today, goldenDays[:n]), today)
		assert.ErrorIs(t, err, ErrInsufficientData, "n=%d", n)
		assert.Nil(t, got)
	}
}

func TestRound1(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{8.571428571428573, 8.6},
		{0.0499, 0},
		{-0.04, 0},
		{17.75, 17.8},
		{-1.2142857, -1.2},
		{0.35, 0.3},
		{1.45, 1.4},
		{2.65, 2.6},
		{0.25, 0.2},
		{-0.25, -0.2},
		{0.05, 0.1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, round1(tt.in), "round1(%v)", tt.in)
	}
}
