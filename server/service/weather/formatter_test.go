package weather

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityExtreme, ParseSeverity("Extreme"))
	assert.Equal(t, SeverityMinor, ParseSeverity("Minor"))
	assert.Equal(t, SeverityUnknown, ParseSeverity("extreme"))
	assert.Equal(t, SeverityUnknown, ParseSeverity(""))
}

func TestFormatAlerts_Defaults(t *testing.T) {
	alerts := FormatAlerts([]AlertFeature{{}}, "")
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, "Unknown Event", a.Event)
	assert.Equal(t, "Unknown Area", a.Area)
	assert.Equal(t, SeverityUnknown, a.Severity)
	assert.Equal(t, "No description available", a.Description)
	assert.Equal(t, "No specific instructions provided", a.Instructions)
	assert.Empty(t, a.Expires)
}

func TestFormatAlerts_SeverityFilter(t *testing.T) {
	features := []AlertFeature{
		{Properties: AlertProperties{Event: strPtr("Flood Warning"), Severity: strPtr("Severe")}},
		{Properties: AlertProperties{Event: strPtr("Heat Advisory"), Severity: strPtr("Moderate")}},
		{Properties: AlertProperties{Event: strPtr("Tornado Warning"), Severity: strPtr("Extreme")}},
	}

	tests := []struct {
		name   string
		filter string
		events []string
	}{
		{"NoFilter", "", []string{"Flood Warning", "Heat Advisory", "Tornado Warning"}},
		{"Exact", "Severe", []string{"Flood Warning"}},
		{"LowercaseIgnored", "extreme", []string{"Flood Warning", "Heat Advisory", "Tornado Warning"}},
		{"PaddedIgnored", " Severe", []string{"Flood Warning", "Heat Advisory", "Tornado Warning"}},
		{"NoMatch", "Minor", []string{}},
		{"UnrecognizedIgnored", "Catastrophic", []string{"Flood Warning", "Heat Advisory", "Tornado Warning"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatAlerts(features, tt.filter)
			events := make([]string, 0, len(got))
			for _, a := range got {
				events = append(events, a.Event)
			}
			assert.Equal(t, tt.events, events)
		})
	}
}

func TestAlert_String(t *testing.T) {
	a := Alert{
		Event:        "Flood Warning",
		Area:         "Sacramento",
		Severity:     SeveritySevere,
		Description:  "Rising water",
		Instructions: "Move to higher ground",
	}
	assert.Equal(t, "🚨 Flood Warning\n📍 Area: Sacramento\n⚠️  Severity: Severe\n📝 Description: Rising water\n💡 Instructions: Move to higher ground\n", a.String())

	a.Expires = "2026-10-18T12:00:00-07:00"
	assert.Contains(t, a.String(), "\n⏰ Expires: 2026-10-18T12:00:00-07:00")
}

func TestFormatForecastPeriods(t *testing.T) {
	var periods []PeriodPayload
	require.NoError(t, json.Unmarshal([]byte(`[
		{"name":"Tonight","temperature":51.6,"temperatureUnit":"F","windSpeed":"5 mph","windDirection":"W","detailedForecast":"Clear.","isDaytime":false},
		{},
		{"name":"P3"},{"name":"P4"},{"name":"P5"},{"name":"P6"},{"name":"P7"}
	]`), &periods))

	got := FormatForecastPeriods(periods, 5)
	require.Len(t, got, 5)

	assert.Equal(t, ForecastPeriod{
		Name: "Tonight", Temperature: 52, TemperatureUnit: "F",
		WindSpeed: "5 mph", WindDirection: "W", DetailedForecast: "Clear.", IsDaytime: false,
	}, got[0])
	assert.Equal(t, ForecastPeriod{
		Name: "Unknown", Temperature: 0, TemperatureUnit: "F",
		WindSpeed: "Unknown", WindDirection: "Unknown", DetailedForecast: "No forecast available", IsDaytime: true,
	}, got[1])
	assert.Equal(t, "P5", got[4].Name)
}

func TestForecastPeriod_String(t *testing.T) {
	p := ForecastPeriod{Name: "Today", Temperature: 72, TemperatureUnit: "F", WindSpeed: "10 mph", WindDirection: "NW", DetailedForecast: "Sunny.", IsDaytime: true}
	assert.Equal(t, "☀️ Today:\n🌡️  Temperature: 72°F\n💨 Wind: 10 mph NW\n📋 Forecast: Sunny.", p.String())

	p.IsDaytime = false
	assert.Contains(t, p.String(), "🌙 Today:")
}

func TestDecode(t *testing.T) {
	p, err := decode[alertsPayload](json.RawMessage(`{"features":[]}`), "alerts")
	require.NoError(t, err)
	require.NotNil(t, p.Features)
	assert.Empty(t, *p.Features)

	p, err = decode[alertsPayload](json.RawMessage(`null`), "alerts")
	require.NoError(t, err)
	assert.Nil(t, p.Features)

	_, err = decode[alertsPayload](json.RawMessage(`[1,2]`), "alerts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode alerts payload")
}
