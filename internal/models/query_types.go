// internal/models/query_types.go
package models

import "strings"

// Intent is the domain routing decision for a question.
type Intent string

const (
	IntentAnalytics Intent = "analytics"
	IntentSEO       Intent = "seo"
	IntentBoth      Intent = "both"
)

// Intents lists the labels the classifier may produce.
var Intents = []Intent{IntentAnalytics, IntentSEO, IntentBoth}

// ParseIntent accepts a label case-insensitively. "multi" is read as both.
func ParseIntent(s string) (Intent, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "analytics", "ga4":
		return IntentAnalytics, true
	case "seo":
		return IntentSEO, true
	case "both", "multi":
		return IntentBoth, true
	}
	return "", false
}

func (i Intent) NeedsAnalytics() bool {
	return i == IntentAnalytics || i == IntentBoth
}

func (i Intent) NeedsSEO() bool {
	return i == IntentSEO || i == IntentBoth
}

func (i Intent) String() string {
	return string(i)
}
