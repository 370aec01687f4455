package weather

import (
	"fmt"
	"strings"

	"github.com/kelvins/geocoder"
)

// ResolveQuery turns one configured location entry into a Location. Plain
// entries ("KSEA", "Norway/Asker", "47.60,-122.33") pass through untouched.
// Entries of the form "geo:City/Country" are resolved to a "lat,lon" query
// through the Google geocoding API, which needs an API key.
func ResolveQuery(entry, geocoderKey string) (Location, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return Location{}, fmt.Errorf("empty location entry")
	}

	rest, ok := strings.CutPrefix(entry, "geo:")
	if !ok {
		return Location{Query: entry}, nil
	}

	if geocoderKey == "" {
		return Location{}, fmt.Errorf("location %q needs GEOCODER_API_KEY to resolve", entry)
	}

	city, country, ok := strings.Cut(rest, "/")
	if !ok || city == "" || country == "" {
		return Location{}, fmt.Errorf("geo location %q must be geo:City/Country", entry)
	}

	geocoder.ApiKey = geocoderKey
	coords, err := geocoder.Geocoding(geocoder.Address{City: city, Country: country})
	if err != nil {
		return Location{}, fmt.Errorf("geocoding %q: %w", entry, err)
	}

	return Location{Query: fmt.Sprintf("%.2f,%.2f", coords.Latitude, coords.Longitude)}, nil
}
