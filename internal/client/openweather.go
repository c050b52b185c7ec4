package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/weatherbot/internal/models"
)

// OpenWeatherClient reads the OpenWeatherMap "Current Weather Data" endpoint,
// available on the free subscription.
type OpenWeatherClient struct {
	apiKey string
	apiURL string
	scale  models.Scale
	caller *caller
}

// NewOpenWeatherClient validates the key shape and returns a client that
// requests imperial units for Fahrenheit and metric units for Celsius.
func NewOpenWeatherClient(apiKey, apiURL string, scale models.Scale, opts Options) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if !scale.Valid() {
		return nil, fmt.Errorf("unsupported scale %q", scale)
	}

	return &OpenWeatherClient{
		apiKey: apiKey,
		apiURL: apiURL,
		scale:  scale,
		caller: newCaller("owm", opts, openWeatherStatusError),
	}, nil
}

type openWeatherResponse struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
		Gust  float64 `json:"gust"`
	} `json:"wind"`
}

// Name implements WeatherClient.
func (c *OpenWeatherClient) Name() string { return "owm" }

// CurrentConditions implements WeatherClient. station is an OWM place query
// such as "london,gb".
func (c *OpenWeatherClient) CurrentConditions(ctx context.Context, station string) (models.Observation, error) {
	reqURL, err := c.buildURL(station)
	if err != nil {
		return models.Observation{}, err
	}
	var apiResp openWeatherResponse
	if err := c.caller.getJSON(ctx, reqURL, nil, &apiResp); err != nil {
		return models.Observation{}, err
	}
	return c.mapResponse(apiResp, station), nil
}

func (c *OpenWeatherClient) buildURL(station string) (string, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid API URL: %w", err)
	}

	params := baseURL.Query()
	params.Set("q", station)
	params.Set("appid", c.apiKey)
	params.Set("units", c.units())
	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

func (c *OpenWeatherClient) units() string {
	if c.scale == models.Celsius {
		return "metric"
	}
	return "imperial"
}

func openWeatherStatusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: did you set the API key?", ErrInvalidAPIKey)
	}
	return commonStatusError(resp)
}

func (c *OpenWeatherClient) mapResponse(apiResp openWeatherResponse, station string) models.Observation {
	obs := models.Observation{
		Station:     station,
		Temperature: apiResp.Main.Temp,
		FeelsLike:   apiResp.Main.FeelsLike,
		Humidity:    apiResp.Main.Humidity,
		WindSpeed:   apiResp.Wind.Speed,
		WindGust:    apiResp.Wind.Gust,
		Scale:       c.scale,
		FetchedAt:   time.Now(),
	}
	if c.scale == models.Celsius {
		// metric units report wind in m/s
		obs.WindSpeed = msToKmh(obs.WindSpeed)
		obs.WindGust = msToKmh(obs.WindGust)
	}
	if len(apiResp.Weather) > 0 {
		obs.ConditionCode = apiResp.Weather[0].ID
		obs.Conditions = apiResp.Weather[0].Main
		if apiResp.Weather[0].Description != "" {
			obs.Conditions = apiResp.Weather[0].Description
		}
	}
	if apiResp.Dt > 0 {
		obs.ObservedAt = time.Unix(apiResp.Dt, 0).UTC()
	} else {
		obs.ObservedAt = obs.FetchedAt.UTC()
	}
	return obs
}

// ValidateAPIKey makes one request for a well-known place and reports
// ErrInvalidAPIKey on 401. New keys take a while to activate upstream.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.caller.opts.Timeout)
	defer cancel()

	reqURL, err := c.buildURL("London")
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}
	var apiResp openWeatherResponse
	if err := c.caller.callAPI(ctx, reqURL, nil, &apiResp); err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
