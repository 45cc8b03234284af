package classify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/edgard/civicbot/internal/llm"
)

func TestFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		desc     string
		category Category
		severity Severity
	}{
		{"Large pothole on MG Road", Pothole, Medium},
		{"Huge pothole near the signal", Pothole, High},
		{"Streetlight flickering", Streetlight, Medium},
		{"small pile of trash", Garbage, Low},
		{"Water pipe leak, severe flooding", WaterLeak, High},
		{"Fallen TREE blocking lane", Tree, Medium},
		{"Signal jammed", Traffic, Medium},
		{"", Traffic, Medium},
		{"minor pothole with broken light", Pothole, Low},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			t.Parallel()
			got := Fallback(tt.desc)
			if got.Category != tt.category || got.Severity != tt.severity {
				t.Errorf("Fallback(%q) = %s/%s, want %s/%s", tt.desc, got.Category, got.Severity, tt.category, tt.severity)
			}
			if !got.Simulated || got.Source != SourceFallback {
				t.Errorf("Fallback(%q) should be simulated with fallback source, got %+v", tt.desc, got)
			}
		})
	}
}

func TestFallbackIsTotal(t *testing.T) {
	t.Parallel()

	inputs := []string{"\x00\xff", "🚧🚧🚧", "LIGHT WATER TREE", string(make([]byte, 4096))}
	for _, in := range inputs {
		got := Fallback(in)
		if !slices.Contains(Categories, got.Category) || !slices.Contains(Severities, got.Severity) {
			t.Errorf("Fallback(%q) = %+v outside vocabularies", in, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw      llm.Classification
		category Category
		severity Severity
	}{
		{llm.Classification{Category: "pothole", Severity: "high"}, Pothole, High},
		{llm.Classification{Category: " Water-Leak ", Severity: "LOW"}, WaterLeak, Low},
		{llm.Classification{Category: "flooding", Severity: "catastrophic"}, Traffic, Medium},
		{llm.Classification{}, Traffic, Medium},
	}
	for _, tt := range tests {
		cat, sev := Normalize(tt.raw)
		if cat != tt.category || sev != tt.severity {
			t.Errorf("Normalize(%+v) = %s/%s, want %s/%s", tt.raw, cat, sev, tt.category, tt.severity)
		}
	}
}

type fakeUsage struct {
	allow    bool
	recorded int
}

func (f *fakeUsage) CanUseAI(context.Context) bool { return f.allow }

func (f *fakeUsage) RecordUsage(context.Context) error {
	f.recorded++
	return nil
}

type fakeGateway struct {
	llm.Gateway
	out   llm.Classification
	err   error
	delay time.Duration
}

func (f *fakeGateway) ClassifyReport(ctx context.Context, _ string) (llm.Classification, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return llm.Classification{}, ctx.Err()
		}
	}
	return f.out, f.err
}

func TestClassifier(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("ai path records usage", func(t *testing.T) {
		t.Parallel()
		usage := &fakeUsage{allow: true}
		gw := &fakeGateway{out: llm.Classification{Category: "garbage", Severity: "bogus"}}
		got := New(gw, usage, time.Second, log).Classify(ctx, "pothole")
		if got.Category != Garbage || got.Severity != Medium || got.Simulated || got.Source != SourceAI {
			t.Errorf("Classify() = %+v", got)
		}
		if usage.recorded != 1 {
			t.Errorf("recorded = %d, want 1", usage.recorded)
		}
	})

	t.Run("gateway failure falls back without usage", func(t *testing.T) {
		t.Parallel()
		usage := &fakeUsage{allow: true}
		gw := &fakeGateway{err: errors.New("boom")}
		got := New(gw, usage, time.Second, log).Classify(ctx, "huge pothole")
		if got.Category != Pothole || got.Severity != High || !got.Simulated || got.Source != SourceFallback {
			t.Errorf("Classify() = %+v", got)
		}
		if usage.recorded != 0 {
			t.Errorf("recorded = %d, want 0", usage.recorded)
		}
	})

	t.Run("timeout falls back", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{delay: time.Second, out: llm.Classification{Category: "tree", Severity: "low"}}
		got := New(gw, &fakeUsage{allow: true}, 20*time.Millisecond, log).Classify(ctx, "streetlight")
		if got.Source != SourceFallback || got.Category != Streetlight {
			t.Errorf("Classify() = %+v", got)
		}
	})

	t.Run("capped skips gateway", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{err: errors.New("must not be called")}
		got := New(gw, &fakeUsage{allow: false}, time.Second, log).Classify(ctx, "tree down")
		if got.Source != SourceCapped || got.Category != Tree || !got.Simulated {
			t.Errorf("Classify() = %+v", got)
		}
	})
}
