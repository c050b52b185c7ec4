package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/weatherbot/internal/models"
)

// NWSClient reads the latest observation of a US National Weather Service
// station from api.weather.gov. No API key is needed, but the service asks
// for a User-Agent that identifies the application and a contact.
type NWSClient struct {
	baseURL string
	scale   models.Scale
	caller  *caller
}

// NewNWSClient returns a client for baseURL (normally https://api.weather.gov).
func NewNWSClient(baseURL string, scale models.Scale, opts Options) (*NWSClient, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if !scale.Valid() {
		return nil, fmt.Errorf("unsupported scale %q", scale)
	}
	return &NWSClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		scale:   scale,
		caller:  newCaller("nws", opts, commonStatusError),
	}, nil
}

// nwsValue is a quantitative value; Value is null when the sensor reported nothing.
type nwsValue struct {
	UnitCode string   `json:"unitCode"`
	Value    *float64 `json:"value"`
}

type nwsObservationResponse struct {
	Properties struct {
		Timestamp        time.Time `json:"timestamp"`
		TextDescription  string    `json:"textDescription"`
		Temperature      nwsValue  `json:"temperature"`
		HeatIndex        nwsValue  `json:"heatIndex"`
		WindChill        nwsValue  `json:"windChill"`
		RelativeHumidity nwsValue  `json:"relativeHumidity"`
		WindSpeed        nwsValue  `json:"windSpeed"`
		WindGust         nwsValue  `json:"windGust"`
	} `json:"properties"`
}

// Name implements WeatherClient.
func (c *NWSClient) Name() string { return "nws" }

// CurrentConditions implements WeatherClient. station is an observation
// station id such as "KHEF".
func (c *NWSClient) CurrentConditions(ctx context.Context, station string) (models.Observation, error) {
	reqURL := c.baseURL + "/stations/" + url.PathEscape(station) + "/observations/latest"
	header := http.Header{"Accept": []string{"application/geo+json"}}

	var apiResp nwsObservationResponse
	if err := c.caller.getJSON(ctx, reqURL, header, &apiResp); err != nil {
		return models.Observation{}, err
	}
	return c.mapResponse(apiResp, station)
}

// ValidateAPIKey implements WeatherClient; NWS has no keys.
func (c *NWSClient) ValidateAPIKey(ctx context.Context) error { return nil }

func (c *NWSClient) mapResponse(apiResp nwsObservationResponse, station string) (models.Observation, error) {
	p := apiResp.Properties
	if p.Temperature.Value == nil {
		return models.Observation{}, fmt.Errorf("%w: station %s reported no temperature", ErrIncompleteObservation, station)
	}

	temp := c.temperature(p.Temperature)
	feelsLike := temp
	switch {
	case p.HeatIndex.Value != nil:
		feelsLike = c.temperature(p.HeatIndex)
	case p.WindChill.Value != nil:
		feelsLike = c.temperature(p.WindChill)
	}

	obs := models.Observation{
		Station:     station,
		Temperature: temp,
		FeelsLike:   feelsLike,
		WindSpeed:   c.wind(p.WindSpeed),
		WindGust:    c.wind(p.WindGust),
		Conditions:  strings.ToLower(p.TextDescription),
		Scale:       c.scale,
		ObservedAt:  p.Timestamp.UTC(),
		FetchedAt:   time.Now(),
	}
	if p.RelativeHumidity.Value != nil {
		obs.Humidity = int(*p.RelativeHumidity.Value + 0.5)
	}
	return obs, nil
}

// temperature converts v to the client scale. Unknown units are taken as Celsius,
// which is what the API reports for every station.
func (c *NWSClient) temperature(v nwsValue) float64 {
	t := *v.Value
	fahrenheit := unitName(v.UnitCode) == "degF"
	switch {
	case c.scale == models.Fahrenheit && !fahrenheit:
		return cToF(t)
	case c.scale == models.Celsius && fahrenheit:
		return fToC(t)
	}
	return t
}

// wind converts v to mph (Fahrenheit) or km/h (Celsius). A null value is calm.
func (c *NWSClient) wind(v nwsValue) float64 {
	if v.Value == nil {
		return 0
	}
	kmh := *v.Value
	switch unitName(v.UnitCode) {
	case "m_s-1":
		kmh = msToKmh(kmh)
	case "mi_h-1":
		kmh = kmh * 1.609344
	case "kt":
		kmh = kmh * 1.852
	}
	if c.scale == models.Fahrenheit {
		return kmhToMph(kmh)
	}
	return kmh
}
