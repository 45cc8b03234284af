// Package geocode resolves report coordinates to human readable places using Nominatim.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/geo/s2"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/edgard/civicbot/internal/config"
)

// cacheLevel is the S2 cell level results are shared at (about 150 m).
const cacheLevel = 16

// Location is a resolved place. When Resolved is false, Landmark and Name
// both hold the formatted coordinates.
type Location struct {
	Landmark string
	Name     string
	Lat      float64
	Lng      float64
	Resolved bool
}

type nominatimResponse struct {
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
}

type nominatimAddress struct {
	Amenity       string `json:"amenity"`
	Road          string `json:"road"`
	Neighbourhood string `json:"neighbourhood"`
	Suburb        string `json:"suburb"`
	CityDistrict  string `json:"city_district"`
	City          string `json:"city"`
	Town          string `json:"town"`
}

type cached struct {
	loc     Location
	expires time.Time
}

// Client is a rate limited, caching Nominatim reverse geocoder.
type Client struct {
	baseURL    string
	userAgent  string
	zoom       int
	city       string
	timeout    time.Duration
	ttl        time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	clock      clockwork.Clock
	log        *slog.Logger

	mu    sync.Mutex
	cache map[s2.CellID]cached
}

// NewClient creates a geocoder honoring the public Nominatim policy of one request per second.
func NewClient(cfg config.GeocoderConfig, clock clockwork.Clock, log *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		zoom:       cfg.Zoom,
		city:       cfg.City,
		timeout:    cfg.Timeout,
		ttl:        cfg.CacheTTL,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		clock:      clock,
		log:        log.With("component", "geocoder"),
		cache:      make(map[s2.CellID]cached),
	}
}

// FormatCoordinates renders a coordinate pair with 6 decimals.
func FormatCoordinates(lat, lng float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lng)
}

// MapsLink returns a Google Maps link pinned at the coordinates.
func MapsLink(lat, lng float64) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%.6f,%.6f", lat, lng)
}

// Unresolved is the fallback location for coordinates that could not be geocoded.
func Unresolved(lat, lng float64) Location {
	coords := FormatCoordinates(lat, lng)
	return Location{Landmark: coords, Name: coords, Lat: lat, Lng: lng}
}

// Describe resolves the coordinates and falls back to Unresolved on any failure.
func (c *Client) Describe(ctx context.Context, lat, lng float64) Location {
	loc, err := c.Reverse(ctx, lat, lng)
	if err != nil {
		c.log.WarnContext(ctx, "Reverse geocoding failed, using coordinates", "error", err)
		return Unresolved(lat, lng)
	}
	return loc
}

// Reverse resolves the coordinates, using the cell cache when possible.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) (Location, error) {
	cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)).Parent(cacheLevel)
	now := c.clock.Now()

	c.mu.Lock()
	if hit, ok := c.cache[cell]; ok && now.Before(hit.expires) {
		c.mu.Unlock()
		loc := hit.loc
		loc.Lat, loc.Lng = lat, lng
		return loc, nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return Location{}, fmt.Errorf("geocoder rate limit wait: %w", err)
	}

	resp, err := c.fetch(ctx, lat, lng)
	if err != nil {
		return Location{}, err
	}

	loc, ok := c.toLocation(resp, lat, lng)
	if !ok {
		return Location{}, fmt.Errorf("no usable address components at %s", FormatCoordinates(lat, lng))
	}

	c.mu.Lock()
	c.cache[cell] = cached{loc: loc, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return loc, nil
}

func (c *Client) fetch(ctx context.Context, lat, lng float64) (*nominatimResponse, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	params.Set("zoom", strconv.Itoa(c.zoom))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("nominatim returned status %d", resp.StatusCode)
	}

	var out nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) toLocation(resp *nominatimResponse, lat, lng float64) (Location, bool) {
	a := resp.Address
	city := firstNonEmpty(a.City, a.Town, c.city)
	area := firstNonEmpty(a.Suburb, a.Neighbourhood, a.CityDistrict)
	landmark := firstNonEmpty(a.Amenity, a.Road, a.Suburb)

	if area == "" && landmark == "" {
		return Location{}, false
	}

	name := area
	switch {
	case name == "":
		name = landmark
	case city != "":
		name += ", " + city
	}
	if landmark == "" {
		landmark = area
	}
	return Location{Landmark: landmark, Name: name, Lat: lat, Lng: lng, Resolved: true}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
