package stage

import (
	"testing"

	"github.com/newsreaper/newsreaper/internal/catalog"
)

func TestEvaluateOverride_MonotonicGating(t *testing.T) {
	general := catalog.Template{ID: "tpl", Domain: "general"}

	tests := []struct {
		name      string
		risk      float64
		threshold float64
		want      bool
	}{
		{"well below", 0.1, 0.9, false},
		{"just below", 0.8999, 0.9, false},
		{"boundary equality gates", 0.9, 0.9, true},
		{"above", 0.95, 0.9, true},
		{"threshold zero gates everything", 0, 0, true},
		{"threshold one gates only max", 1, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := stagesCfg()
			cfg.OverrideThreshold = tt.threshold
			got := EvaluateOverride(general, tt.risk, cfg)
			if got.RequiresOverride != tt.want {
				t.Errorf("RequiresOverride: got %v, want %v (risk %v, threshold %v)",
					got.RequiresOverride, tt.want, tt.risk, tt.threshold)
			}
		})
	}
}

func TestEvaluateOverride_SensitiveDomainGatesIndependently(t *testing.T) {
	cfg := stagesCfg()

	// Low risk, but the template's domain is sensitive.
	financial := catalog.Template{ID: "crypto-pump", Domain: "financial"}
	got := EvaluateOverride(financial, 0.1, cfg)
	if !got.RequiresOverride {
		t.Error("financial domain must require override regardless of risk")
	}

	security := catalog.Template{ID: "cve-bait", Domain: "security"}
	got = EvaluateOverride(security, 0, cfg)
	if !got.RequiresOverride {
		t.Error("security domain must require override regardless of risk")
	}

	general := catalog.Template{ID: "clickbait-surge", Domain: "general"}
	got = EvaluateOverride(general, 0.1, cfg)
	if got.RequiresOverride {
		t.Errorf("general domain at low risk must not require override: %+v", got)
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateFetched, StateAmbiguityScored, true},
		{StateAmbiguityScored, StatePatternMined, true},
		{StatePatternMined, StateRiskAssessed, true},
		{StatePatternMined, StateAutoCleared, true},
		{StateRiskAssessed, StatePendingOverride, true},
		{StateRiskAssessed, StateAutoCleared, true},
		{StatePendingOverride, StateResolved, true},
		{StateFetched, StateFailed, true},

		{StateFetched, StateRiskAssessed, false},
		{StateAutoCleared, StatePendingOverride, false},
		{StateResolved, StateFetched, false},
		{StatePendingOverride, StateFailed, false},
	}
	for _, tt := range tests {
		got, err := Transition(tt.from, tt.to)
		if tt.ok {
			if err != nil {
				t.Errorf("Transition(%s, %s): unexpected error %v", tt.from, tt.to, err)
			}
			if got != tt.to {
				t.Errorf("Transition(%s, %s): got %s", tt.from, tt.to, got)
			}
		} else {
			if err == nil {
				t.Errorf("Transition(%s, %s): expected error", tt.from, tt.to)
			}
			if got != tt.from {
				t.Errorf("Transition(%s, %s): state must not change on error, got %s",
					tt.from, tt.to, got)
			}
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []State{StateAutoCleared, StateResolved, StateFailed} {
		if !Terminal(s) {
			t.Errorf("Terminal(%s): want true", s)
		}
	}
	for _, s := range []State{StateFetched, StateAmbiguityScored, StatePatternMined,
		StateRiskAssessed, StatePendingOverride} {
		if Terminal(s) {
			t.Errorf("Terminal(%s): want false", s)
		}
	}
}
