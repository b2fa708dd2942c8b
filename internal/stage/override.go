package stage

import (
	"fmt"

	"github.com/newsreaper/newsreaper/internal/catalog"
	"github.com/newsreaper/newsreaper/internal/config"
)

// GateDecision is the override gate's verdict for one item.
type GateDecision struct {
	RequiresOverride bool
	Reason           string
}

// EvaluateOverride decides whether an item needs a human decision before any
// further automated action. Two independent gates, either is sufficient:
// risk meets the override threshold (boundary equality included), or the
// matched template belongs to a sensitive domain.
func EvaluateOverride(tpl catalog.Template, risk float64, cfg config.StagesConfig) GateDecision {
	if risk >= cfg.OverrideThreshold {
		return GateDecision{
			RequiresOverride: true,
			Reason: fmt.Sprintf("risk %.2f meets override threshold %.2f",
				risk, cfg.OverrideThreshold),
		}
	}
	for _, d := range cfg.SensitiveDomains {
		if tpl.Domain == d {
			return GateDecision{
				RequiresOverride: true,
				Reason:           fmt.Sprintf("pattern %s is in sensitive domain %s", tpl.ID, d),
			}
		}
	}
	return GateDecision{
		RequiresOverride: false,
		Reason:           fmt.Sprintf("risk %.2f below threshold, domain not sensitive", risk),
	}
}
