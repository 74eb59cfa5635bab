package aggregation

// TagMode selects how a tag filter is applied in ByTags.
type TagMode string

const (
	// TagModeAny matches positions with at least one filter tag.
	TagModeAny TagMode = "any"
	// TagModeAll matches positions with every filter tag.
	TagModeAll TagMode = "all"
)

// TagGroup is one tag's aggregated exposure within ByTags.
type TagGroup struct {
	Count    int
	Exposure float64
}

// ByTags groups positions by tag. With an empty filter it returns every
// distinct tag present across positions. With a filter, mode "any"
// matches positions carrying at least one filter tag and mode "all"
// requires every filter tag to be present.
func ByTags(positions []PositionAggregate, filter []string, mode TagMode) map[string]TagGroup {
	groups := map[string]TagGroup{}

	for _, p := range positions {
		if len(filter) > 0 && !matchesFilter(p.Tags, filter, mode) {
			continue
		}
		for _, tag := range p.Tags {
			if len(filter) > 0 && !containsTag(filter, tag) {
				continue
			}
			g := groups[tag]
			g.Count++
			g.Exposure += p.Exposure
			groups[tag] = g
		}
	}

	for tag, g := range groups {
		g.Exposure = round(g.Exposure, 2)
		groups[tag] = g
	}
	return groups
}

func matchesFilter(tags, filter []string, mode TagMode) bool {
	if mode == TagModeAll {
		for _, f := range filter {
			if !containsTag(tags, f) {
				return false
			}
		}
		return true
	}
	for _, f := range filter {
		if containsTag(tags, f) {
			return true
		}
	}
	return false
}

func containsTag(tags []string, target string) bool {
	for _, t := range tags {
		if t == target {
			return true
		}
	}
	return false
}

// UnderlyingGroup is the per-underlying-symbol aggregation within ByUnderlying.
type UnderlyingGroup struct {
	Count    int
	Exposure float64
	Greeks   GreeksResult
}

// ByUnderlying groups a stock position and its related options under the
// same underlying symbol (spec.md §4.D). A stock position's own symbol is
// treated as its underlying when UnderlyingSymbol is unset.
func ByUnderlying(positions []PositionAggregate) map[string]UnderlyingGroup {
	buckets := map[string][]PositionAggregate{}

	for _, p := range positions {
		key := p.UnderlyingSymbol
		if key == "" {
			key = p.Symbol
		}
		buckets[key] = append(buckets[key], p)
	}

	groups := map[string]UnderlyingGroup{}
	for key, bucket := range buckets {
		var g UnderlyingGroup
		g.Count = len(bucket)
		for _, p := range bucket {
			g.Exposure += p.Exposure
		}
		g.Exposure = round(g.Exposure, 2)
		g.Greeks = Greeks(bucket)
		groups[key] = g
	}
	return groups
}
