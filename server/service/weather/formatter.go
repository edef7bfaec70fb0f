package weather

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"
)

// alertsPayload mirrors the parts of /alerts/active/area/{code} that are rendered.
// Pointer fields distinguish a missing key from an empty value.
type alertsPayload struct {
	Features *[]AlertFeature `json:"features"`
}

// AlertFeature is one GeoJSON feature of an alerts payload.
type AlertFeature struct {
	Properties AlertProperties `json:"properties"`
}

type AlertProperties struct {
	Event       *string `json:"event"`
	AreaDesc    *string `json:"areaDesc"`
	Severity    *string `json:"severity"`
	Description *string `json:"description"`
	Instruction *string `json:"instruction"`
	Expires     *string `json:"expires"`
}

type pointsPayload struct {
	Properties *pointsProperties `json:"properties"`
}

type pointsProperties struct {
	Forecast         string `json:"forecast"`
	RelativeLocation struct {
		Properties struct {
			City  *string `json:"city"`
			State *string `json:"state"`
		} `json:"properties"`
	} `json:"relativeLocation"`
}

type forecastPayload struct {
	Properties *struct {
		Periods []PeriodPayload `json:"periods"`
	} `json:"properties"`
}

// PeriodPayload is one entry of a forecast payload's periods.
type PeriodPayload struct {
	Name             *string  `json:"name"`
	Temperature      *float64 `json:"temperature"`
	TemperatureUnit  *string  `json:"temperatureUnit"`
	WindSpeed        *string  `json:"windSpeed"`
	WindDirection    *string  `json:"windDirection"`
	DetailedForecast *string  `json:"detailedForecast"`
	IsDaytime        *bool    `json:"isDaytime"`
}

func decode[T any](raw json.RawMessage, what string) (*T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return &v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.Wrapf(err, "decode %s payload", what)
	}
	return &v, nil
}

// FormatAlerts converts alert features into alerts, keeping only those matching
// severityFilter. A filter that names no known severity is ignored.
func FormatAlerts(features []AlertFeature, severityFilter string) []Alert {
	filter, filtered := AlertSeverity(""), false
	if severityFilter != "" {
		filter, filtered = lookupSeverityFilter(severityFilter)
	}

	alerts := make([]Alert, 0, len(features))
	for _, f := range features {
		props := f.Properties
		severity := ParseSeverity(stringOr(props.Severity, string(SeverityUnknown)))
		if filtered && severity != filter {
			continue
		}
		alerts = append(alerts, Alert{
			Event:        stringOr(props.Event, "Unknown Event"),
			Area:         stringOr(props.AreaDesc, "Unknown Area"),
			Severity:     severity,
			Description:  stringOr(props.Description, "No description available"),
			Instructions: stringOr(props.Instruction, "No specific instructions provided"),
			Expires:      stringOr(props.Expires, ""),
		})
	}
	return alerts
}

// FormatForecastPeriods converts at most limit periods.
func FormatForecastPeriods(periods []PeriodPayload, limit int) []ForecastPeriod {
	if limit >= 0 && len(periods) > limit {
		periods = periods[:limit]
	}

	out := make([]ForecastPeriod, 0, len(periods))
	for _, p := range periods {
		temperature := 0
		if p.Temperature != nil {
			temperature = int(math.Round(*p.Temperature))
		}
		daytime := true
		if p.IsDaytime != nil {
			daytime = *p.IsDaytime
		}
		out = append(out, ForecastPeriod{
			Name:             stringOr(p.Name, "Unknown"),
			Temperature:      temperature,
			TemperatureUnit:  stringOr(p.TemperatureUnit, "F"),
			WindSpeed:        stringOr(p.WindSpeed, "Unknown"),
			WindDirection:    stringOr(p.WindDirection, "Unknown"),
			DetailedForecast: stringOr(p.DetailedForecast, "No forecast available"),
			IsDaytime:        daytime,
		})
	}
	return out
}

func stringOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
