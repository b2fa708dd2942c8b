package stage

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/newsreaper/newsreaper/internal/config"
	"github.com/newsreaper/newsreaper/internal/store"
)

// Sub-signal weights of the composite ambiguity score. The comment-volume
// proxy saturates at volumeSaturation comments.
const (
	weightClickbait  = 0.50
	weightQuestions  = 0.10
	weightUppercase  = 0.05
	weightVolume     = 0.35
	volumeSaturation = 100.0
)

// clickbaitTerms are lexical markers of manufactured-curiosity headlines,
// matched against the lowercased title.
var clickbaitTerms = []string{
	"you won't believe",
	"you wont believe",
	"what happens next",
	"this one trick",
	"will shock you",
	"doctors hate",
	"number one reason",
	"went viral",
	"jaw-dropping",
	"mind-blowing",
}

// Score is the ambiguity agent's output for one item.
type Score struct {
	Value   float64
	Flagged bool
	Reason  string
}

// Ambiguity computes the composite ambiguity score of an item: weighted
// lexical heuristics (clickbait-term presence, question-mark density,
// uppercase ratio) plus a comment-volume variance proxy, clamped to [0,1].
// The item is flagged when the score meets the configured threshold; the
// reason names the dominant weighted sub-signal.
func Ambiguity(item store.RawItem, cfg config.StagesConfig) Score {
	title := strings.ToLower(item.Title)

	var clickbait float64
	for _, term := range clickbaitTerms {
		if strings.Contains(title, term) {
			clickbait = 1
			break
		}
	}

	questions := clamp01(float64(strings.Count(item.Title, "?")) / 2)
	uppercase := uppercaseRatio(item.Title)
	volume := clamp01(float64(item.Descendants) / volumeSaturation)

	parts := []struct {
		name     string
		weighted float64
	}{
		{"clickbait term", weightClickbait * clickbait},
		{"question-mark density", weightQuestions * questions},
		{"uppercase ratio", weightUppercase * uppercase},
		{"comment-volume variance", weightVolume * volume},
	}

	var total float64
	dominant := parts[0]
	for _, p := range parts {
		total += p.weighted
		if p.weighted > dominant.weighted {
			dominant = p
		}
	}
	total = clamp01(total)

	return Score{
		Value:   total,
		Flagged: total >= cfg.AmbiguityThreshold,
		Reason: fmt.Sprintf("dominant signal: %s (%.2f of %.2f)",
			dominant.name, dominant.weighted, total),
	}
}

// uppercaseRatio returns the share of letters in s that are upper case.
func uppercaseRatio(s string) float64 {
	var letters, upper int
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

// clamp01 bounds v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
