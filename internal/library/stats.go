package library

import "sort"

// UnknownPlatform labels items saved without a platform tag.
const UnknownPlatform = "genérico"

// Stats aggregates the library for reporting.
type Stats struct {
	Total      int            `json:"total"`
	ByPlatform map[string]int `json:"byPlatform"`
	ByPersona  map[string]int `json:"byPersona"`
	ByBrand    map[string]int `json:"byBrand"`
}

// Stats counts the visible items by platform, persona, and brand. Items
// without a persona are left out of ByPersona.
func (r *Registry) Stats() Stats {
	return Summarize(r.Items())
}

// Summarize aggregates items.
func Summarize(items []Item) Stats {
	s := Stats{
		Total:      len(items),
		ByPlatform: map[string]int{},
		ByPersona:  map[string]int{},
		ByBrand:    map[string]int{},
	}
	for _, item := range items {
		platform := item.PlatformID
		if platform == "" {
			platform = UnknownPlatform
		}
		s.ByPlatform[platform]++
		if item.PersonaID != "" {
			s.ByPersona[item.PersonaID]++
		}
		if item.BrandName != "" {
			s.ByBrand[item.BrandName]++
		}
	}
	return s
}

// Share returns count as a percentage of Total.
func (s Stats) Share(count int) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(count) * 100 / float64(s.Total)
}

// SortedKeys returns the keys of counts ordered by count, then name.
func SortedKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
