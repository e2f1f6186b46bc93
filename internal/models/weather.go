package models

import "time"

// DateLayout is the calendar-day format used for WeatherRecord.Time.
const DateLayout = "2006-01-02"

// WeatherRecord is one observed or predicted day for a station.
// Temperatures are degrees Celsius, precipitation millimetres and wind km/h.
type WeatherRecord struct {
	Time             string  `json:"time" validate:"required,datetime=2006-01-02"`
	TemperatureMax   float64 `json:"temperature_max" validate:"gte=-50,lte=50,gtefield=TemperatureMin"`
	TemperatureMin   float64 `json:"temperature_min" validate:"gte=-50,lte=50"`
	PrecipitationSum float64 `json:"precipitation_sum" validate:"gte=0,lte=1000"`
	WindSpeed        float64 `json:"wind_speed" validate:"gte=0,lte=100"`
	Station          string  `json:"station"`
	Predicted        bool    `json:"predicted"`
}

// Day formats t as a record date.
func Day(t time.Time) string {
	return t.Format(DateLayout)
}

// Station names a place whose weather is cached, with the coordinates used for refills.
type Station struct {
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Lon  float64 `json:"lon" yaml:"lon"`
}
