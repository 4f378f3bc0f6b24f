// This file maps instrument mentions to the hashtags appended to feed posts.
package feeds

import "strings"

// hashtagRule pairs a lowercase keyword with the hashtags it triggers.
// Order matters: rules are evaluated top to bottom and tags appended once.
type hashtagRule struct {
	keyword string
	tags    string
}

var hashtagRules = []hashtagRule{
	{"eurusd", "#EURUSD"},
	{"gbpusd", "#GBPUSD"},
	{"usdjpy", "#USDJPY"},
	{"usdchf", "#USDCHF"},
	{"audusd", "#AUDUSD"},
	{"usdcad", "#USDCAD"},
	{"nzdusd", "#NZDUSD"},
	{"eurgbp", "#EURGBP"},
	{"eurjpy", "#EURJPY"},
	{"gbpjpy", "#GBPJPY"},
	{"xauusd", "#XAUUSD #GOLD"},
	{"gold", "#GOLD"},
	{"xagusd", "#XAGUSD #SILVER"},
	{"silver", "#SILVER"},
	{"dax", "#DAX"},
	{"dow", "#DOWJONES"},
	{"nasdaq", "#NASDAQ"},
	{"ndx", "#NASDAQ"},
	{"spx", "#SP500"},
	{"brent", "#BRENT"},
	{"wti", "#WTI"},
	{"crude oil", "#OIL"},
}

// DetectHashtags returns the hashtags for every instrument mentioned in text,
// deduplicated, in rule order.
func DetectHashtags(text string) string {
	lower := strings.ToLower(text)
	var tags []string
	seen := make(map[string]bool)

	for _, rule := range hashtagRules {
		if !strings.Contains(lower, rule.keyword) {
			continue
		}
		for _, tag := range strings.Fields(rule.tags) {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}

	return strings.Join(tags, " ")
}
