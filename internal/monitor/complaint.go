package monitor

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/edgard/civicbot/internal/twitter"
)

const maxReplyRunes = 280

type keywordGroup struct {
	category string
	hashtag  string
	keywords []string
}

// Order matters: on equal keyword counts the earlier group wins.
var keywordTable = []keywordGroup{
	{"roads", "#FixOurRoads", []string{"pothole", "road", "highway", "street", "patch", "crack", "damage", "asphalting"}},
	{"water", "#BengaluruWater", []string{"water", "leak", "pipeline", "supply", "drainage", "sewage", "stp", "borewell"}},
	{"waste", "#CleanBengaluru", []string{"garbage", "waste", "trash", "dustbin", "litter", "dump", "cleanup"}},
	{"lighting", "#SafeStreets", []string{"street light", "lamp", "dark", "lighting", "bulb", "electricity"}},
	{"parks", "#GreenBengaluru", []string{"park", "tree", "garden", "playground", "green", "horticulture"}},
}

const defaultHashtag = "#BengaluruInfra"

var (
	highWords   = []string{"urgent", "emergency", "danger", "accident", "injury", "death", "critical"}
	mediumWords = []string{"please", "fix", "soon", "days", "weeks", "month"}
)

const placeSuffix = `(?:road|street|avenue|layout|nagar|circle|junction)`

var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:at|near|on|in)\s+([a-z]+(?:\s+[a-z]+)*?\s+` + placeSuffix + `)\b`),
	regexp.MustCompile(`(?i)\b([a-z]+(?:\s+[a-z]+)*?\s+` + placeSuffix + `)\b`),
}

// Complaint is a mention that reads as an infrastructure complaint.
type Complaint struct {
	Tweet    twitter.Tweet
	Category string
	Severity string
	Location string
	Keywords []string
}

// Classify decides whether t is a complaint. Mentions matching no keyword are not.
func Classify(t twitter.Tweet) (Complaint, bool) {
	text := strings.ToLower(t.Text)

	var found []string
	category, best := "", 0
	for _, g := range keywordTable {
		n := 0
		for _, kw := range g.keywords {
			if strings.Contains(text, kw) {
				found = append(found, kw)
				n++
			}
		}
		if n > best {
			category, best = g.category, n
		}
	}
	if len(found) == 0 {
		return Complaint{}, false
	}

	return Complaint{
		Tweet:    t,
		Category: category,
		Severity: Severity(text),
		Location: ExtractLocation(t.Text),
		Keywords: found,
	}, true
}

// Severity grades text by the first word class it contains, checked high before medium.
func Severity(text string) string {
	text = strings.ToLower(text)
	for _, w := range highWords {
		if strings.Contains(text, w) {
			return "high"
		}
	}
	for _, w := range mediumWords {
		if strings.Contains(text, w) {
			return "medium"
		}
	}
	return "low"
}

// ExtractLocation returns a place phrase such as "MG Road", or "".
func ExtractLocation(text string) string {
	for _, re := range locationPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

func hashtagFor(category string) string {
	for _, g := range keywordTable {
		if g.category == category {
			return g.hashtag
		}
	}
	return defaultHashtag
}

var concerns = map[string]map[string]string{
	"waste": {
		"high":   "This garbage issue%s is a serious health hazard affecting our community.",
		"medium": "This waste problem%s is concerning and needs prompt attention.",
		"low":    "This garbage accumulation%s should be addressed before it worsens.",
	},
	"roads": {
		"high":   "URGENT: This road hazard%s poses serious safety risk to commuters and pedestrians!",
		"medium": "This road condition%s is causing daily inconvenience and safety concerns.",
		"low":    "This road issue%s needs attention to prevent accidents.",
	},
	"water": {
		"high":   "URGENT: This water leak%s is wasting precious resources and damaging infrastructure!",
		"medium": "This water problem%s is affecting residents and needs quick resolution.",
		"low":    "This water issue%s should be fixed to prevent further wastage.",
	},
	"lighting": {
		"high":   "URGENT: Dark streets%s are a major safety concern, especially for women and children!",
		"medium": "Poor lighting%s is creating unsafe conditions after dark.",
		"low":    "Street lighting%s needs improvement for better safety.",
	},
	"parks": {
		"high":   "URGENT: This park issue%s is affecting community well-being and safety!",
		"medium": "This green space problem%s needs attention for our community.",
		"low":    "This park maintenance issue%s should be addressed.",
	},
}

var defaultConcerns = map[string]string{
	"high":   "URGENT: This infrastructure issue%s needs immediate attention!",
	"medium": "This issue%s is affecting our community and needs prompt action.",
	"low":    "This infrastructure problem%s should be addressed soon.",
}

// Reply writes the public reply to c, tagging handles. Replies never exceed
// the tweet length; an over-long one is replaced by a shorter form.
func Reply(c Complaint, handles []string) string {
	where := ""
	if c.Location != "" {
		where = " in " + c.Location
	}
	table, ok := concerns[c.Category]
	if !ok {
		table = defaultConcerns
	}
	concern, ok := table[c.Severity]
	if !ok {
		concern = table["low"]
	}

	tags := strings.Join(handles, " ")
	hashtag := hashtagFor(c.Category)

	reply := strings.TrimSpace(fmt.Sprintf("%s %s Please prioritize this. %s", tags, fmt.Sprintf(concern, where), hashtag))
	if utf8.RuneCountInString(reply) <= maxReplyRunes {
		return reply
	}

	urgent := ""
	if c.Severity == "high" {
		urgent = "URGENT: "
	}
	short := strings.TrimSpace(fmt.Sprintf("%s %s%s issue%s. Please take action. %s", tags, urgent, c.Category, where, hashtag))
	if utf8.RuneCountInString(short) > maxReplyRunes {
		short = string([]rune(short)[:maxReplyRunes])
	}
	return short
}
