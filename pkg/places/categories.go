package places

import (
	"sort"

	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
)

// AllCategoriesLabel is the tab that clears the category filter
const AllCategoriesLabel = "Wszystkie"

// Style is how a category is drawn on pins and list rows
type Style struct {
	Emoji string `json:"emoji"`
	Color string `json:"color,omitempty"`
}

// DefaultStyle applies to categories without an entry in Categories
var DefaultStyle = Style{Emoji: "📍"}

// Categories maps each known normalised category to its style
var Categories = map[string]Style{
	"Meczet":      {Emoji: "🕌", Color: "#2e7d32"},
	"Sklep":       {Emoji: "🛒", Color: "#1565c0"},
	"Restauracja": {Emoji: "🍽️", Color: "#ef6c00"},
	"Cmentarz":    {Emoji: "🪦", Color: "#616161"},
}

// StyleFor returns the style of category, or DefaultStyle
func StyleFor(category string) Style {
	if s, ok := Categories[category]; ok {
		return s
	}
	return DefaultStyle
}

// KnownCategories returns the keys of Categories in alphabetical order
func KnownCategories() []string {
	keys := make([]string, 0, len(Categories))
	for k := range Categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CategoriesIn returns the distinct non-empty categories present in places, sorted
func CategoriesIn(places []models.Place) []string {
	seen := make(map[string]struct{})
	for _, p := range places {
		if p.Category != "" {
			seen[p.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
