// Package health probes the service's dependencies for the status endpoint.
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Service states.
const (
	StateOK          = "ok"
	StateDisabled    = "disabled"
	StateUnreachable = "unreachable"
)

// Overall states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Probe checks one dependency. It should honour ctx.
type Probe func(ctx context.Context) error

// Report is the outcome of a check.
type Report struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services"`
	Timestamp time.Time         `json:"timestamp"`
}

// Checker runs registered probes concurrently.
type Checker struct {
	timeout time.Duration
	clock   clockwork.Clock
	names   []string
	probes  map[string]Probe
}

// NewChecker creates a Checker. Each probe gets at most timeout.
func NewChecker(timeout time.Duration, clock clockwork.Clock) *Checker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Checker{timeout: timeout, clock: clock, probes: make(map[string]Probe)}
}

// Add registers a probe under name. A nil probe reports the service as disabled.
func (c *Checker) Add(name string, p Probe) {
	if _, ok := c.probes[name]; !ok {
		c.names = append(c.names, name)
		sort.Strings(c.names)
	}
	c.probes[name] = p
}

// Check runs every probe and summarises them. The web service is always ok
// since the check is being served.
func (c *Checker) Check(ctx context.Context) Report {
	rep := Report{
		Status:    StatusOK,
		Services:  map[string]string{"web": StateOK},
		Timestamp: c.clock.Now().UTC(),
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range c.names {
		probe := c.probes[name]
		if probe == nil {
			mu.Lock()
			rep.Services[name] = StateDisabled
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			state := StateOK
			if err := probe(pctx); err != nil {
				state = StateUnreachable
			}
			mu.Lock()
			rep.Services[name] = state
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, state := range rep.Services {
		if state == StateUnreachable {
			rep.Status = StatusDegraded
			break
		}
	}
	return rep
}

// TCPProbe dials addr.
func TCPProbe(addr string) Probe {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// HTTPProbe issues a GET to url and expects a non-5xx answer.
func HTTPProbe(client *http.Client, url string) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("health probe %s: status %d", url, resp.StatusCode)
		}
		return nil
	}
}
