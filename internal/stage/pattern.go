package stage

import (
	"strings"

	"github.com/newsreaper/newsreaper/internal/catalog"
	"github.com/newsreaper/newsreaper/internal/config"
	"github.com/newsreaper/newsreaper/internal/store"
)

// PatternMatch is one template the pattern miner matched against an item.
type PatternMatch struct {
	PatternID  string
	Confidence float64
}

// MinePatterns evaluates every catalog template against the item. A template
// matches when at least one of its trigger predicates holds; confidence is
// the weight of the matched signals normalized by the template's total
// weight, clamped to [0,1]. Matches below the configured confidence floor
// are discarded. Zero matches is a valid empty result, not an error.
func MinePatterns(item store.RawItem, cat *catalog.Catalog, cfg config.StagesConfig) []PatternMatch {
	var out []PatternMatch
	for _, tpl := range cat.Templates {
		conf, matched := matchTemplate(item, tpl)
		if !matched || conf < cfg.MinConfidence {
			continue
		}
		out = append(out, PatternMatch{PatternID: tpl.ID, Confidence: conf})
	}
	return out
}

// matchTemplate evaluates one template's predicates and returns the
// normalized confidence plus whether anything matched at all.
func matchTemplate(item store.RawItem, tpl catalog.Template) (float64, bool) {
	title := strings.ToLower(item.Title)
	url := strings.ToLower(item.URL)

	var earned float64
	var any bool

	if len(tpl.Trigger.TitleContains) > 0 && containsAny(title, tpl.Trigger.TitleContains) {
		earned += tpl.Weights.TitleMatch
		any = true
	}
	if len(tpl.Trigger.URLContains) > 0 && containsAny(url, tpl.Trigger.URLContains) {
		earned += tpl.Weights.URLMatch
		any = true
	}
	if tpl.Trigger.MinComments > 0 && item.Descendants >= tpl.Trigger.MinComments {
		earned += tpl.Weights.Engagement
		any = true
	}
	if tpl.Trigger.MinScore > 0 && item.Score >= tpl.Trigger.MinScore {
		earned += tpl.Weights.Score
		any = true
	}

	if !any {
		return 0, false
	}
	return clamp01(earned / tpl.Weights.Sum()), true
}

// containsAny reports whether any keyword occurs in the lowercased haystack.
func containsAny(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
