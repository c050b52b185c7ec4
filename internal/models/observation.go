package models

import "time"

// Observation is a snapshot of current conditions at one station. Temperatures
// are in Scale units; wind is mph for Fahrenheit and km/h for Celsius.
type Observation struct {
	Station       string    `json:"station"`
	Temperature   float64   `json:"temperature"`
	FeelsLike     float64   `json:"feelsLike"`
	Humidity      int       `json:"humidity"`
	WindSpeed     float64   `json:"windSpeed"`
	WindGust      float64   `json:"windGust"`
	ConditionCode int       `json:"conditionCode,omitempty"`
	Conditions    string    `json:"conditions"`
	Scale         Scale     `json:"scale"`
	ObservedAt    time.Time `json:"observedAt"`
	FetchedAt     time.Time `json:"fetchedAt"`
	Cached        bool      `json:"cached,omitempty"`
}

// Scale is the temperature scale, always upper case so it can be drawn directly.
type Scale string

const (
	Fahrenheit Scale = "F"
	Celsius    Scale = "C"
)

// WindUnit returns the wind speed unit paired with the scale.
func (s Scale) WindUnit() string {
	if s == Celsius {
		return "kph"
	}
	return "mph"
}

// Valid reports whether s is F or C.
func (s Scale) Valid() bool {
	return s == Fahrenheit || s == Celsius
}
