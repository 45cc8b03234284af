// Package tweet composes report tweets and posts them within the daily and
// provider limits.
package tweet

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/edgard/civicbot/internal/classify"
	"github.com/edgard/civicbot/internal/database"
	"github.com/edgard/civicbot/internal/geocode"
	"github.com/edgard/civicbot/internal/llm"
)

const (
	// MaxLength is the hard cap on tweet length in characters.
	MaxLength = 280

	minAIRunes          = 30
	maxDescriptionRunes = 100
	maxLandmarkRunes    = 80

	locationMarker = "📍"
	mapMarker      = "🗺️"
	ellipsis       = "…"
)

var categoryEmoji = map[classify.Category]string{
	classify.Pothole:     "🕳️",
	classify.Streetlight: "💡",
	classify.Garbage:     "🗑️",
	classify.WaterLeak:   "💧",
	classify.Tree:        "🌳",
	classify.Traffic:     "🚦",
}

var categoryTitle = map[classify.Category]string{
	classify.Pothole:     "Pothole",
	classify.Streetlight: "Streetlight out",
	classify.Garbage:     "Garbage dump",
	classify.WaterLeak:   "Water leak",
	classify.Tree:        "Fallen tree",
	classify.Traffic:     "Traffic hazard",
}

// Geocoder resolves coordinates into a readable place. It never fails.
type Geocoder interface {
	Describe(ctx context.Context, lat, lng float64) geocode.Location
}

// Composition is a finished tweet and where its text came from.
type Composition struct {
	Text       string
	AIEnhanced bool
	Location   geocode.Location
	MapsLink   string
}

// Composer writes tweet text for reports.
type Composer struct {
	gateway     llm.Gateway
	geocoder    Geocoder
	civicHandle string
	icccHandle  string
	stale       []*regexp.Regexp
	aiTimeout   time.Duration
	log         *slog.Logger
}

// NewComposer creates a Composer. Occurrences of staleHandles in model output
// are rewritten to civicHandle.
func NewComposer(gateway llm.Gateway, geocoder Geocoder, civicHandle, icccHandle string, staleHandles []string, aiTimeout time.Duration, log *slog.Logger) *Composer {
	c := &Composer{
		gateway:     gateway,
		geocoder:    geocoder,
		civicHandle: civicHandle,
		icccHandle:  icccHandle,
		aiTimeout:   aiTimeout,
		log:         log.With("component", "tweet_composer"),
	}
	for _, h := range staleHandles {
		if strings.EqualFold(h, civicHandle) || h == "" {
			continue
		}
		c.stale = append(c.stale, handlePattern(h))
	}
	return c
}

// handlePattern matches a handle case-insensitively and not as a prefix of a longer one.
func handlePattern(handle string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(handle) + `\b`)
}

// Compose builds the tweet for r. The model writes the text when it can;
// anything shorter than a sentence falls back to the fixed template.
func (c *Composer) Compose(ctx context.Context, r *database.Report) Composition {
	loc := c.geocoder.Describe(ctx, r.Lat, r.Lng)
	link := geocode.MapsLink(r.Lat, r.Lng)
	out := Composition{Location: loc, MapsLink: link}

	callCtx, cancel := context.WithTimeout(ctx, c.aiTimeout)
	defer cancel()

	text, err := c.gateway.GenerateTweet(callCtx, llm.TweetRequest{
		Description:  r.Description,
		Category:     r.Category.String,
		Severity:     r.Severity.String,
		LocationName: loc.Name,
		Landmark:     loc.Landmark,
		Lat:          r.Lat,
		Lng:          r.Lng,
		MapsLink:     link,
		CivicHandle:  c.civicHandle,
		ICCCHandle:   c.icccHandle,
	})
	switch {
	case err != nil:
		c.log.DebugContext(ctx, "AI tweet unavailable, using template", "report_id", r.ID, "error", err)
	case utf8.RuneCountInString(strings.TrimSpace(text)) < minAIRunes:
		c.log.DebugContext(ctx, "AI tweet too short, using template", "report_id", r.ID, "length", utf8.RuneCountInString(text))
	default:
		out.Text = c.Finalize(text, loc.Landmark, link)
		out.AIEnhanced = true
		return out
	}

	out.Text = c.Finalize(c.FallbackText(r, loc, link), loc.Landmark, link)
	return out
}

// FallbackText is the template tweet used without model output.
func (c *Composer) FallbackText(r *database.Report, loc geocode.Location, mapsLink string) string {
	cat, _ := classify.ParseCategory(r.Category.String)
	emoji, ok := categoryEmoji[cat]
	if !ok {
		emoji = "🚨"
	}
	title, ok := categoryTitle[cat]
	if !ok {
		title = "Infrastructure issue"
	}

	lines := []string{
		fmt.Sprintf("%s %s: %s", emoji, title, truncate(flatten(r.Description), maxDescriptionRunes)),
		locationMarker + " " + truncate(loc.Landmark, maxLandmarkRunes),
		mapMarker + " " + mapsLink,
		c.handles(),
	}
	return strings.Join(lines, "\n")
}

// Finalize enforces the rules every published tweet follows: stale handles are
// rewritten, the handles, landmark and maps link are present, and the text fits
// MaxLength. When it has to cut, only the free text is shortened.
func (c *Composer) Finalize(text, landmark, mapsLink string) string {
	text = strings.TrimSpace(text)
	for _, re := range c.stale {
		text = re.ReplaceAllString(text, c.civicHandle)
	}
	landmark = truncate(flatten(landmark), maxLandmarkRunes)

	var missing []string
	if landmark != "" && !strings.Contains(text, landmark) {
		missing = append(missing, locationMarker+" "+landmark)
	}
	if mapsLink != "" && !strings.Contains(text, mapsLink) {
		missing = append(missing, mapMarker+" "+mapsLink)
	}
	var absent []string
	for _, h := range c.required() {
		if !handlePattern(h).MatchString(text) {
			absent = append(absent, h)
		}
	}
	if len(absent) > 0 {
		missing = append(missing, strings.Join(absent, " "))
	}

	parts := missing
	if text != "" {
		parts = append([]string{text}, missing...)
	}
	out := strings.Join(parts, "\n")
	if utf8.RuneCountInString(out) <= MaxLength {
		return out
	}
	return c.rebuild(text, landmark, mapsLink)
}

// rebuild strips the required parts out of text, cuts what is left and
// appends the required parts as one suffix.
func (c *Composer) rebuild(text, landmark, mapsLink string) string {
	body := text
	if mapsLink != "" {
		body = strings.ReplaceAll(body, mapsLink, "")
	}
	if landmark != "" {
		body = strings.ReplaceAll(body, landmark, "")
	}
	for _, h := range c.required() {
		body = handlePattern(h).ReplaceAllString(body, "")
	}
	body = strings.ReplaceAll(body, locationMarker, "")
	body = strings.ReplaceAll(body, mapMarker, "")
	body = flatten(body)

	var suffix []string
	if landmark != "" {
		suffix = append(suffix, locationMarker+" "+landmark)
	}
	if mapsLink != "" {
		suffix = append(suffix, mapMarker+" "+mapsLink)
	}
	if h := c.handles(); h != "" {
		suffix = append(suffix, h)
	}
	tail := "\n" + strings.Join(suffix, "\n")

	budget := MaxLength - utf8.RuneCountInString(tail)
	if body == "" || budget <= utf8.RuneCountInString(ellipsis) {
		return strings.TrimPrefix(tail, "\n")
	}
	return truncate(body, budget) + tail
}

func (c *Composer) required() []string {
	var hs []string
	if c.civicHandle != "" {
		hs = append(hs, c.civicHandle)
	}
	if c.icccHandle != "" && !strings.EqualFold(c.icccHandle, c.civicHandle) {
		hs = append(hs, c.icccHandle)
	}
	return hs
}

func (c *Composer) handles() string {
	return strings.Join(c.required(), " ")
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate shortens s to at most n characters, ending in an ellipsis when cut.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-1])) + ellipsis
}
