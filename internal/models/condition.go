package models

// Condition is a coarse weather category derived from a provider condition code.
type Condition string

const (
	ConditionClear   Condition = "clear"
	ConditionClouds  Condition = "clouds"
	ConditionDrizzle Condition = "drizzle"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionFog     Condition = "fog"
	ConditionUnknown Condition = "unknown"
)

// ConditionCategory maps an OpenWeatherMap condition id to a Condition.
// See https://openweathermap.org/weather-conditions for the id ranges.
func ConditionCategory(code int) Condition {
	switch {
	case code >= 200 && code < 300:
		return ConditionStorm
	case code >= 300 && code < 400:
		return ConditionDrizzle
	case code >= 500 && code < 600:
		return ConditionRain
	case code >= 600 && code < 700:
		return ConditionSnow
	case code >= 700 && code < 800:
		return ConditionFog
	case code == 800:
		return ConditionClear
	case code > 800 && code < 900:
		return ConditionClouds
	default:
		return ConditionUnknown
	}
}

// Category returns the coarse condition for the observation.
func (o Observation) Category() Condition {
	return ConditionCategory(o.ConditionCode)
}
