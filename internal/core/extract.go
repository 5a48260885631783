package core

import (
	"regexp"
	"strings"
)

// Field is one extracted lead detail. Found distinguishes "field not
// mentioned" from "field mentioned with this value", so callers never infer
// absence from an empty string.
type Field struct {
	Value string
	Found bool
}

// Details holds whatever lead fields a piece of text mentioned.
type Details struct {
	Name     Field
	Age      Field
	Country  Field
	Interest Field
}

var (
	markdownBold  = regexp.MustCompile(`\*\*`)
	leadingBullet = regexp.MustCompile(`(?m)^\s*-\s*`)

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:your|the|their|customer'?s?)\s*name:\s*([^\n.,]+)`),
		regexp.MustCompile(`(?i)\bname:\s*([^\n.,\-]+)`),
		regexp.MustCompile(`(?i)\bmy\s+name\s+is\s+([^\n.,!?]+)`),
		regexp.MustCompile(`(?i)\bi(?:'m|\s+am)\s+called\s+([^\n.,!?]+)`),
	}

	agePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:your|the|their|customer'?s?)\s*age:\s*(\d{1,3})`),
		regexp.MustCompile(`(?i)\bage:\s*(\d{1,3})`),
		regexp.MustCompile(`(?i)\b(\d{1,3})\s+years?\s+old\b`),
		regexp.MustCompile(`(?i)\bi(?:'m|\s+am)\s+(\d{1,3})\b`),
	}

	countryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:your|the|their|customer'?s?)\s*country:\s*([^\n.,]+)`),
		regexp.MustCompile(`(?i)\bcountry:\s*([^\n.,\-]+)`),
		regexp.MustCompile(`(?i)\bi(?:'m|\s+am)\s+from\s+([^\n.,!?]+)`),
		regexp.MustCompile(`(?i)\bi\s+live\s+in\s+([^\n.,!?]+)`),
	}

	interestPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bproduct\s+interest:\s*([^\n.,]+)`),
		regexp.MustCompile(`(?i)\binterest:\s*([^\n.,\-]+)`),
		regexp.MustCompile(`(?i)\bi(?:'m|\s+am)?\s*(?:am\s+)?interested\s+in\s+([^\n.,!?]+)`),
		regexp.MustCompile(`(?i)\bi\s+like\s+([^\n.,!?]+)`),
		regexp.MustCompile(`(?i)\blooking\s+for\s+([^\n.,!?]+)`),
		regexp.MustCompile(`(?i)\bwant\s+to\s+buy\s+([^\n.,!?]+)`),
	}

	questionLike = regexp.MustCompile(`(?i)[?]|\b(what|how|when|where|why|who)\b`)
)

// ExtractDetails pulls lead fields out of free text, either a user message
// ("My name is Dana") or a model reply echoing a structured summary
// ("Name: Dana"). Ambiguous candidates are dropped rather than guessed at.
func ExtractDetails(text string) Details {
	clean := markdownBold.ReplaceAllString(text, "")
	clean = leadingBullet.ReplaceAllString(clean, "")

	var d Details
	if v, ok := firstMatch(namePatterns, clean); ok && validName(v) {
		d.Name = Field{Value: v, Found: true}
	}
	if v, ok := firstMatch(agePatterns, clean); ok {
		d.Age = Field{Value: v, Found: true}
	}
	if v, ok := firstMatch(countryPatterns, clean); ok {
		d.Country = Field{Value: v, Found: true}
	}
	if v, ok := firstMatch(interestPatterns, clean); ok {
		d.Interest = Field{Value: v, Found: true}
	}
	return d
}

// placeholders are values a model echoes for fields it does not know yet;
// never treat them as collected data.
var placeholders = map[string]struct{}{
	"unknown": {}, "(unknown)": {}, "n/a": {}, "none": {}, "not provided": {}, "not specified": {},
}

func firstMatch(patterns []*regexp.Regexp, text string) (string, bool) {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			v := strings.Trim(strings.TrimSpace(m[1]), `"'`)
			if v == "" || len(v) > 80 {
				continue
			}
			if _, ok := placeholders[strings.ToLower(v)]; ok {
				continue
			}
			return v, true
		}
	}
	return "", false
}

// validName rejects candidates that look like questions or filler rather
// than an actual name.
func validName(v string) bool {
	return !questionLike.MatchString(v)
}
