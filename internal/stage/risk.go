package stage

import (
	"fmt"
	"strings"

	"github.com/newsreaper/newsreaper/internal/config"
	"github.com/newsreaper/newsreaper/internal/store"
)

// Mitigation labels by risk band.
const (
	MitigationMonitor   = "monitor"
	MitigationWatchList = "watch-list"
	MitigationAutoDefer = "auto-defer"
)

// Risk band boundaries. [0, 0.4) monitor, [0.4, 0.75) watch-list,
// [0.75, 1] auto-defer.
const (
	riskBandWatch = 0.40
	riskBandDefer = 0.75
)

// RiskAssessment is the risk agent's output for one pattern instance.
type RiskAssessment struct {
	Risk       float64
	Mitigation string
	Reason     string
}

// AnalyzeRisk scores one pattern instance: a weighted sum of the
// low-engagement penalty, the spam indicator, and a sentiment-variance
// proxy, each normalized to [0,1] before weighting, the sum clamped.
// The risk band selects the mitigation label.
func AnalyzeRisk(item store.RawItem, cfg config.StagesConfig) RiskAssessment {
	engagement := lowEngagementPenalty(item.Descendants, cfg.LowEngagementThreshold)
	spam := spamIndicator(item.URL, cfg.SpamDomains)
	sentiment := sentimentVariance(item.Score, item.Descendants)

	risk := clamp01(cfg.EngagementWeight*engagement +
		cfg.SpamWeight*spam +
		cfg.SentimentWeight*sentiment)

	return RiskAssessment{
		Risk:       risk,
		Mitigation: mitigationFor(risk),
		Reason: fmt.Sprintf("engagement %.2f, spam %.2f, sentiment %.2f -> risk %.2f",
			engagement, spam, sentiment, risk),
	}
}

// lowEngagementPenalty ramps from 1 (no comments) to 0 at the configured
// threshold.
func lowEngagementPenalty(comments, threshold int) float64 {
	if threshold <= 0 || comments >= threshold {
		return 0
	}
	return 1 - float64(comments)/float64(threshold)
}

// spamIndicator is 1 when the URL contains a known spam domain.
func spamIndicator(url string, spamDomains []string) float64 {
	lowered := strings.ToLower(url)
	for _, d := range spamDomains {
		if d != "" && strings.Contains(lowered, strings.ToLower(d)) {
			return 1
		}
	}
	return 0
}

// sentimentVariance approximates contentiousness: a large comment count
// against a small score suggests a divided thread.
func sentimentVariance(score, comments int) float64 {
	if comments <= 0 {
		return 0
	}
	return clamp01(float64(comments) / float64(score+comments+1))
}

func mitigationFor(risk float64) string {
	switch {
	case risk < riskBandWatch:
		return MitigationMonitor
	case risk < riskBandDefer:
		return MitigationWatchList
	default:
		return MitigationAutoDefer
	}
}
