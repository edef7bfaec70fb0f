package weather

import "fmt"

// AlertSeverity is the severity level reported for an alert.
type AlertSeverity string

const (
	SeverityExtreme  AlertSeverity = "Extreme"
	SeveritySevere   AlertSeverity = "Severe"
	SeverityModerate AlertSeverity = "Moderate"
	SeverityMinor    AlertSeverity = "Minor"
	SeverityUnknown  AlertSeverity = "Unknown"
)

var severities = []AlertSeverity{SeverityExtreme, SeveritySevere, SeverityModerate, SeverityMinor, SeverityUnknown}

// ParseSeverity maps an API severity string to a level. Anything unrecognized is Unknown.
func ParseSeverity(s string) AlertSeverity {
	for _, sev := range severities {
		if string(sev) == s {
			return sev
		}
	}
	return SeverityUnknown
}

// lookupSeverityFilter resolves a user-supplied filter. The match is exact,
// so "extreme" is not a known severity.
func lookupSeverityFilter(s string) (AlertSeverity, bool) {
	for _, sev := range severities {
		if string(sev) == s {
			return sev, true
		}
	}
	return "", false
}

// Alert is a single active weather alert.
type Alert struct {
	Event        string
	Area         string
	Severity     AlertSeverity
	Description  string
	Instructions string
	Expires      string // empty when the API gave none
}

func (a Alert) String() string {
	expires := ""
	if a.Expires != "" {
		expires = "⏰ Expires: " + a.Expires
	}
	return fmt.Sprintf("🚨 %s\n📍 Area: %s\n⚠️  Severity: %s\n📝 Description: %s\n💡 Instructions: %s\n%s",
		a.Event, a.Area, a.Severity, a.Description, a.Instructions, expires)
}

// ForecastPeriod is one named period of a gridpoint forecast.
type ForecastPeriod struct {
	Name             string
	Temperature      int
	TemperatureUnit  string
	WindSpeed        string
	WindDirection    string
	DetailedForecast string
	IsDaytime        bool
}

func (p ForecastPeriod) String() string {
	icon := "🌙"
	if p.IsDaytime {
		icon = "☀️"
	}
	return fmt.Sprintf("%s %s:\n🌡️  Temperature: %d°%s\n💨 Wind: %s %s\n📋 Forecast: %s",
		icon, p.Name, p.Temperature, p.TemperatureUnit, p.WindSpeed, p.WindDirection, p.DetailedForecast)
}
