package geocode

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/edgard/civicbot/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *clockwork.FakeClock) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clock := clockwork.NewFakeClock()
	c := NewClient(config.GeocoderConfig{
		BaseURL:   srv.URL,
		UserAgent: "BengaluruInfraAgent/1.0",
		Zoom:      14,
		City:      "Bengaluru",
		Timeout:   time.Second,
		CacheTTL:  24 * time.Hour,
	}, clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c, clock
}

func TestReverse(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c, clock := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("User-Agent") != "BengaluruInfraAgent/1.0" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		q := r.URL.Query()
		if r.URL.Path != "/reverse" || q.Get("format") != "json" || q.Get("lat") != "12.971600" || q.Get("zoom") != "14" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = io.WriteString(w, `{"address":{"road":"MG Road","suburb":"Ashok Nagar","city":"Bengaluru"}}`)
	})

	ctx := context.Background()
	loc, err := c.Reverse(ctx, 12.9716, 77.5946)
	if err != nil {
		t.Fatalf("Reverse() error = %v", err)
	}
	if loc.Landmark != "MG Road" || loc.Name != "Ashok Nagar, Bengaluru" || !loc.Resolved {
		t.Errorf("Reverse() = %+v", loc)
	}

	// A repeat lookup in the same cell hits the cache.
	if _, err := c.Reverse(ctx, 12.9716, 77.5946); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (cached)", calls.Load())
	}

	clock.Advance(25 * time.Hour)
	if _, err := c.Reverse(ctx, 12.9716, 77.5946); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 after expiry", calls.Load())
	}
}

func TestToLocationPreferences(t *testing.T) {
	t.Parallel()

	c := &Client{city: "Bengaluru"}
	tests := []struct {
		name     string
		addr     nominatimAddress
		landmark string
		locName  string
		ok       bool
	}{
		{"amenity wins", nominatimAddress{Amenity: "Cubbon Park Metro", Road: "MG Road", Suburb: "Shivajinagar"}, "Cubbon Park Metro", "Shivajinagar, Bengaluru", true},
		{"neighbourhood fallback", nominatimAddress{Neighbourhood: "Koramangala 5th Block"}, "Koramangala 5th Block", "Koramangala 5th Block, Bengaluru", true},
		{"district only", nominatimAddress{CityDistrict: "East Zone", City: "Bangalore"}, "East Zone", "East Zone, Bangalore", true},
		{"road only", nominatimAddress{Road: "Outer Ring Road"}, "Outer Ring Road", "Outer Ring Road", true},
		{"nothing", nominatimAddress{City: "Bengaluru"}, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			loc, ok := c.toLocation(&nominatimResponse{Address: tt.addr}, 1, 2)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && (loc.Landmark != tt.landmark || loc.Name != tt.locName) {
				t.Errorf("toLocation() = %+v", loc)
			}
		})
	}
}

func TestDescribeFallsBackToCoordinates(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	loc := c.Describe(context.Background(), 12.9716, 77.5946)
	if loc.Resolved || loc.Landmark != "12.971600, 77.594600" || loc.Name != loc.Landmark {
		t.Errorf("Describe() = %+v", loc)
	}
}

func TestDescribeTimesOut(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c.timeout = 50 * time.Millisecond

	start := time.Now()
	loc := c.Describe(context.Background(), 1.5, 2.5)
	if loc.Resolved {
		t.Errorf("expected unresolved location, got %+v", loc)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Describe did not honor timeout")
	}
}

func TestFormatting(t *testing.T) {
	t.Parallel()

	if got := MapsLink(12.9716, 77.5946); got != "https://www.google.com/maps?q=12.971600,77.594600" {
		t.Errorf("MapsLink() = %q", got)
	}
	if got := FormatCoordinates(-1.5, 2); got != "-1.500000, 2.000000" {
		t.Errorf("FormatCoordinates() = %q", got)
	}
}
