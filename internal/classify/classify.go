// Package classify assigns a category and severity to report descriptions.
package classify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/civicbot/internal/llm"
	"github.com/edgard/civicbot/internal/metrics"
)

// Category is one of the fixed report categories.
type Category string

const (
	Pothole     Category = "pothole"
	Streetlight Category = "streetlight"
	Garbage     Category = "garbage"
	WaterLeak   Category = "water-leak"
	Tree        Category = "tree"
	Traffic     Category = "traffic"
)

// Categories lists every valid category.
var Categories = []Category{Pothole, Streetlight, Garbage, WaterLeak, Tree, Traffic}

// Severity is one of low, medium or high.
type Severity string

const (
	Low    Severity = "low"
	Medium Severity = "medium"
	High   Severity = "high"
)

// Severities lists every valid severity.
var Severities = []Severity{Low, Medium, High}

// Defaults substituted for values outside the vocabularies.
const (
	DefaultCategory = Traffic
	DefaultSeverity = Medium
)

// Sources of a classification result.
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
	SourceCapped   = "capped"
)

// ParseCategory returns the category named by s, if valid.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// ParseSeverity returns the severity named by s, if valid.
func ParseSeverity(s string) (Severity, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, sev := range Severities {
		if string(sev) == s {
			return sev, true
		}
	}
	return "", false
}

// Result is the outcome of classifying a description.
type Result struct {
	Category  Category
	Severity  Severity
	Simulated bool
	Source    string
}

// Normalize maps raw model output onto the vocabularies, substituting defaults.
func Normalize(raw llm.Classification) (Category, Severity) {
	cat, ok := ParseCategory(raw.Category)
	if !ok {
		cat = DefaultCategory
	}
	sev, ok := ParseSeverity(raw.Severity)
	if !ok {
		sev = DefaultSeverity
	}
	return cat, sev
}

// Fallback classifies by keyword matching. It is total and never fails.
func Fallback(description string) Result {
	text := strings.ToLower(description)

	category := DefaultCategory
	switch {
	case strings.Contains(text, "pothole"):
		category = Pothole
	case strings.Contains(text, "light"):
		category = Streetlight
	case strings.Contains(text, "garbage"), strings.Contains(text, "trash"):
		category = Garbage
	case strings.Contains(text, "water"), strings.Contains(text, "leak"):
		category = WaterLeak
	case strings.Contains(text, "tree"):
		category = Tree
	}

	severity := DefaultSeverity
	switch {
	case strings.Contains(text, "major"), strings.Contains(text, "huge"), strings.Contains(text, "severe"):
		severity = High
	case strings.Contains(text, "small"), strings.Contains(text, "minor"):
		severity = Low
	}

	return Result{Category: category, Severity: severity, Simulated: true, Source: SourceFallback}
}

// UsageGate is the daily AI cap consulted before each model call.
type UsageGate interface {
	CanUseAI(ctx context.Context) bool
	RecordUsage(ctx context.Context) error
}

// Classifier classifies with the language model when allowed, else by keywords.
type Classifier struct {
	gateway llm.Gateway
	usage   UsageGate
	timeout time.Duration
	log     *slog.Logger
}

// New creates a Classifier. Model calls are bounded by timeout.
func New(gateway llm.Gateway, usage UsageGate, timeout time.Duration, log *slog.Logger) *Classifier {
	return &Classifier{
		gateway: gateway,
		usage:   usage,
		timeout: timeout,
		log:     log.With("component", "classifier"),
	}
}

// Classify never fails. When the daily cap is exhausted the result has Source SourceCapped.
func (c *Classifier) Classify(ctx context.Context, description string) Result {
	if !c.usage.CanUseAI(ctx) {
		c.log.InfoContext(ctx, "Daily AI limit reached, using keyword classification")
		res := Fallback(description)
		res.Source = SourceCapped
		metrics.ClassificationsTotal.WithLabelValues(SourceCapped).Inc()
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.gateway.ClassifyReport(callCtx, description)
	if err != nil {
		c.log.WarnContext(ctx, "AI classification failed, using keyword classification", "error", err)
		metrics.ClassificationsTotal.WithLabelValues(SourceFallback).Inc()
		return Fallback(description)
	}

	if err := c.usage.RecordUsage(ctx); err != nil {
		c.log.WarnContext(ctx, "Failed to record AI usage", "error", err)
	}

	cat, sev := Normalize(raw)
	metrics.ClassificationsTotal.WithLabelValues(SourceAI).Inc()
	return Result{Category: cat, Severity: sev, Simulated: false, Source: SourceAI}
}
