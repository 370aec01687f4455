package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker"

	"github.com/wunderlog/wunderlog/internal/weather"
)

// DefaultBaseURL is the fixed upstream host; overridable for tests.
const DefaultBaseURL = "https://api.wunderground.com"

// DefaultCacheTTL keeps responses just under an hour so an hourly polling
// loop always goes back upstream.
const DefaultCacheTTL = 55 * time.Minute

// WundergroundProvider fetches raw payloads from the Weather Underground API.
// The API key is embedded in the request path and redacted from all logs.
type WundergroundProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	cache   *gocache.Cache
}

// NewWundergroundProvider creates a provider using the shared HTTP client.
// Empty baseURL falls back to DefaultBaseURL; cacheTTL <= 0 disables the
// response cache.
func NewWundergroundProvider(client *http.Client, apiKey, baseURL string, backoff BackoffConfig, cacheTTL time.Duration) *WundergroundProvider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "wunderground",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	var c *gocache.Cache
	if cacheTTL > 0 {
		c = gocache.New(cacheTTL, 2*cacheTTL)
	}

	return &WundergroundProvider{
		name:    "wunderground",
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: cb,
		cache:   c,
	}
}

func (p *WundergroundProvider) Name() string {
	return p.name
}

// Fetch retrieves the raw payload for one record kind. Daily summaries come
// from the history endpoint and must go through FetchHistory instead.
func (p *WundergroundProvider) Fetch(ctx context.Context, loc weather.Location, kind weather.RecordKind) ([]byte, error) {
	feature, err := featureFor(kind)
	if err != nil {
		return nil, err
	}
	return p.fetchFeature(ctx, loc, feature)
}

// FetchHistory retrieves one day of history and splits it into the daily
// summary and the individual observations with their own timestamps.
func (p *WundergroundProvider) FetchHistory(ctx context.Context, loc weather.Location, day time.Time) (weather.HistoryDay, error) {
	feature := day.UTC().Format("history_20060102")
	body, err := p.fetchFeature(ctx, loc, feature)
	if err != nil {
		return weather.HistoryDay{}, err
	}

	var payload struct {
		History struct {
			DailySummary []json.RawMessage `json:"dailysummary"`
			Observations []json.RawMessage `json:"observations"`
		} `json:"history"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return weather.HistoryDay{}, fmt.Errorf("%w: decoding history body: %v", ErrRejected, err)
	}
	if len(payload.History.DailySummary) == 0 {
		return weather.HistoryDay{}, fmt.Errorf("%w: history for %s has no daily summary", ErrRejected, day.Format(weather.DayLayout))
	}

	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	result := weather.HistoryDay{Summary: payload.History.DailySummary[0]}

	for _, raw := range payload.History.Observations {
		ts, err := observationTime(raw)
		if err != nil {
			log.Printf("wunderground: skipping observation with bad date for %s: %v", loc.Key(), err)
			continue
		}
		result.Observations = append(result.Observations, weather.HistoryObservation{
			Time:    ts,
			Payload: raw,
		})
	}
	return result, nil
}

// fetchFeature performs one resilient GET against
// {base}/api/{key}/{feature}/q/{location}.json, consulting the response
// cache first. A 200 body carrying the upstream's error envelope counts as a
// permanent rejection.
func (p *WundergroundProvider) fetchFeature(ctx context.Context, loc weather.Location, feature string) ([]byte, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: wunderground api key is not configured", ErrRejected)
	}

	cacheKey := feature + "/q/" + loc.Key()
	if p.cache != nil {
		if cached, found := p.cache.Get(cacheKey); found {
			return cached.([]byte), nil
		}
	}

	u := fmt.Sprintf("%s/api/%s/%s/q/%s.json", p.baseURL, p.apiKey, feature, loc.Query)
	log.Printf("wunderground: fetching %s", p.redact(u))

	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", ErrFetchFailed, err)
	}

	// API errors still come back with status 200.
	if apiErr := apiError(body); apiErr != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrRejected, p.redact(u), apiErr)
	}

	if p.cache != nil {
		p.cache.Set(cacheKey, body, gocache.DefaultExpiration)
	}
	return body, nil
}

// redact replaces the API key in a URL before it reaches a log line.
func (p *WundergroundProvider) redact(u string) string {
	return strings.ReplaceAll(u, p.apiKey, "{key}")
}

// apiError extracts the error description from the upstream's
// error-inside-200 envelope, or returns "" when the body is clean.
func apiError(body []byte) string {
	var envelope struct {
		Response struct {
			Error *struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			} `json:"error"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Response.Error == nil {
		return ""
	}
	if envelope.Response.Error.Description != "" {
		return fmt.Sprintf("%s: %s", envelope.Response.Error.Type, envelope.Response.Error.Description)
	}
	return envelope.Response.Error.Type
}

func featureFor(kind weather.RecordKind) (string, error) {
	switch kind {
	case weather.KindObservation:
		return "conditions", nil
	case weather.KindForecast:
		return "forecast10day", nil
	case weather.KindHourly:
		return "hourly10day", nil
	case weather.KindDaily:
		return "", fmt.Errorf("daily records are produced by FetchHistory, not Fetch")
	}
	return "", fmt.Errorf("no upstream feature for kind %q", kind)
}

// observationTime parses the split {year,mon,mday,hour,min} date the history
// endpoint attaches to each observation. The fields arrive as strings.
func observationTime(raw json.RawMessage) (time.Time, error) {
	var obs struct {
		Date struct {
			Year string `json:"year"`
			Mon  string `json:"mon"`
			Mday string `json:"mday"`
			Hour string `json:"hour"`
			Min  string `json:"min"`
		} `json:"date"`
	}
	if err := json.Unmarshal(raw, &obs); err != nil {
		return time.Time{}, err
	}

	parts := [5]string{obs.Date.Year, obs.Date.Mon, obs.Date.Mday, obs.Date.Hour, obs.Date.Min}
	var nums [5]int
	for i, s := range parts {
		n, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad observation date field %q", s)
		}
		nums[i] = n
	}
	return time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], 0, 0, time.UTC), nil
}
