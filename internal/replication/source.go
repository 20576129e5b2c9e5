package replication

import (
	"fmt"
	"strings"
	"time"
)

// Source is a server publishing OsmChange diffs in the standard
// replication directory layout.
type Source struct {
	Name           string
	BaseURL        string
	UpdateInterval time.Duration
	Description    string
}

// StateURL returns the URL of the current state file
func (s *Source) StateURL() string {
	return s.BaseURL + "/state.txt"
}

// SequenceStateURL returns the URL of the state file for a specific sequence
func (s *Source) SequenceStateURL(seq int64) string {
	return fmt.Sprintf("%s/%s.state.txt", s.BaseURL, SequenceToPath(seq))
}

// SequenceDataURL returns the URL of the OSC file for a specific sequence
func (s *Source) SequenceDataURL(seq int64) string {
	return fmt.Sprintf("%s/%s.osc.gz", s.BaseURL, SequenceToPath(seq))
}

// Predefined replication sources
var (
	SourcePlanetMinute = &Source{
		Name:           "planet-minute",
		BaseURL:        "https://planet.openstreetmap.org/replication/minute",
		UpdateInterval: 1 * time.Minute,
		Description:    "OpenStreetMap planet minutely updates",
	}

	SourcePlanetHour = &Source{
		Name:           "planet-hour",
		BaseURL:        "https://planet.openstreetmap.org/replication/hour",
		UpdateInterval: 1 * time.Hour,
		Description:    "OpenStreetMap planet hourly updates",
	}

	SourcePlanetDay = &Source{
		Name:           "planet-day",
		BaseURL:        "https://planet.openstreetmap.org/replication/day",
		UpdateInterval: 24 * time.Hour,
		Description:    "OpenStreetMap planet daily updates",
	}
)

// Geofabrik regions with their download paths
var geofabrikRegions = map[string]string{
	"europe":         "europe",
	"germany":        "europe/germany",
	"france":         "europe/france",
	"italy":          "europe/italy",
	"spain":          "europe/spain",
	"great-britain":  "europe/great-britain",
	"united-kingdom": "europe/great-britain",
	"netherlands":    "europe/netherlands",
	"belgium":        "europe/belgium",
	"switzerland":    "europe/switzerland",
	"austria":        "europe/austria",
	"poland":         "europe/poland",
	"monaco":         "europe/monaco",

	"north-america": "north-america",
	"us":            "north-america/us",
	"usa":           "north-america/us",
	"canada":        "north-america/canada",
	"mexico":        "north-america/mexico",
	"south-america": "south-america",
	"brazil":        "south-america/brazil",

	"asia":  "asia",
	"japan": "asia/japan",
	"china": "asia/china",
	"india": "asia/india",

	"africa": "africa",

	"oceania":     "australia-oceania",
	"australia":   "australia-oceania/australia",
	"new-zealand": "australia-oceania/new-zealand",
}

// GetGeofabrikSource returns a replication source for a Geofabrik region
func GetGeofabrikSource(region string) (*Source, error) {
	region = strings.ToLower(strings.TrimSpace(region))

	path, ok := geofabrikRegions[region]
	if !ok {
		// Unknown regions pass through as a raw path
		path = region
	}

	return &Source{
		Name:           fmt.Sprintf("geofabrik/%s", region),
		BaseURL:        fmt.Sprintf("https://download.geofabrik.de/%s-updates", path),
		UpdateInterval: 24 * time.Hour,
		Description:    fmt.Sprintf("Geofabrik %s daily updates", region),
	}, nil
}

// ParseSource parses a source string and returns a Source.
// Formats:
//   - "planet-minute", "planet-hour", "planet-day"
//   - "geofabrik/monaco", "geofabrik/germany", etc.
//   - Custom URL: "https://example.com/replication"
func ParseSource(s string) (*Source, error) {
	s = strings.TrimSpace(s)

	switch strings.ToLower(s) {
	case "planet-minute", "planet/minute", "minute":
		return SourcePlanetMinute, nil
	case "planet-hour", "planet/hour", "hour":
		return SourcePlanetHour, nil
	case "planet-day", "planet/day", "day":
		return SourcePlanetDay, nil
	}

	if strings.HasPrefix(strings.ToLower(s), "geofabrik/") {
		region := s[len("geofabrik/"):]
		return GetGeofabrikSource(region)
	}

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return &Source{
			Name:           "custom",
			BaseURL:        strings.TrimSuffix(s, "/"),
			UpdateInterval: 1 * time.Hour,
			Description:    "Custom replication source",
		}, nil
	}

	// Bare region names resolve through the Geofabrik catalog
	if _, ok := geofabrikRegions[strings.ToLower(s)]; ok {
		return GetGeofabrikSource(s)
	}

	return nil, fmt.Errorf("unknown replication source: %s", s)
}

// ListSources returns a list of all predefined sources
func ListSources() []string {
	sources := []string{
		"planet-minute - OpenStreetMap planet minutely updates",
		"planet-hour   - OpenStreetMap planet hourly updates",
		"planet-day    - OpenStreetMap planet daily updates",
	}

	sources = append(sources, "")
	sources = append(sources, "Geofabrik regions (use as geofabrik/<region>):")

	for region := range geofabrikRegions {
		sources = append(sources, fmt.Sprintf("  geofabrik/%s", region))
	}

	return sources
}
