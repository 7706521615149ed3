// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package categorize

import "strings"

// keywordTable pairs a category with its curated keyword list. Order matters:
// the first category whose list contains a substring match wins. Healthcare
// leads because this feeds a health-monitoring pipeline.
var keywordTable = []struct {
	category Category
	keywords []string
}{
	{CategoryHealthcare, []string{
		"hospital", "clinic", "medical", "doctor", "health", "pharmacy",
		"urgent care", "emergency", "dental", "physician", "laboratory",
		"diagnostic", "radiology", "cardiology", "therapy", "rehabilitation",
	}},
	{CategoryFitness, []string{
		"gym", "fitness", "yoga", "crossfit", "athletic", "sport",
		"swimming pool", "tennis", "basketball", "recreation center",
		"pilates", "martial arts", "boxing", "climbing",
	}},
	{CategoryShopping, []string{
		"mall", "store", "shop", "market", "walmart", "target", "costco",
		"grocery", "supermarket", "outlet", "plaza", "retail",
		"drugstore", "department store", "shopping center",
	}},
	{CategoryDining, []string{
		"restaurant", "cafe", "coffee", "starbucks", "mcdonald", "food",
		"diner", "bistro", "bar", "pub", "brewery", "bakery", "pizzeria",
		"grill", "kitchen", "eatery", "tavern", "lounge",
	}},
	{CategoryLeisure, []string{
		"theater", "theatre", "cinema", "movie", "museum", "library",
		"gallery", "entertainment", "arcade", "bowling", "amusement",
		"zoo", "aquarium", "concert", "stadium", "arena",
	}},
	{CategoryTransit, []string{
		"airport", "station", "terminal", "bus stop", "subway", "metro",
		"train", "transit", "ferry", "port", "parking", "gas station",
		"fuel", "rental car",
	}},
	{CategoryOutdoors, []string{
		"park", "trail", "hiking", "nature", "beach", "lake", "mountain",
		"forest", "garden", "reserve", "wilderness", "campground",
		"playground", "field", "golf",
	}},
}

// MatchKeywords scans geocoded place text against the keyword tables,
// case-insensitively, in fixed priority order.
func MatchKeywords(text string) (Category, bool) {
	lower := strings.ToLower(text)
	for _, entry := range keywordTable {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.category, true
			}
		}
	}
	return "", false
}
