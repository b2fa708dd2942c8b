package stage

import (
	"strings"
	"testing"

	"github.com/newsreaper/newsreaper/internal/config"
	"github.com/newsreaper/newsreaper/internal/store"
)

func stagesCfg() config.StagesConfig {
	return config.StagesConfig{
		AmbiguityThreshold:     0.78,
		MinConfidence:          0.5,
		OverrideThreshold:      0.9,
		EngagementWeight:       0.4,
		SpamWeight:             0.35,
		SentimentWeight:        0.25,
		LowEngagementThreshold: 5,
		SensitiveDomains:       []string{"financial", "security"},
	}
}

func TestAmbiguity(t *testing.T) {
	cfg := stagesCfg()

	tests := []struct {
		name        string
		title       string
		descendants int
		wantFlagged bool
	}{
		{
			name:        "clickbait title with heavy comment volume",
			title:       "You won't believe this!!",
			descendants: 80,
			wantFlagged: true,
		},
		{
			name:        "ordinary title with few comments",
			title:       "A quiet update to the build system",
			descendants: 3,
			wantFlagged: false,
		},
		{
			name:        "clickbait alone stays below threshold",
			title:       "you won't believe this",
			descendants: 0,
			wantFlagged: false,
		},
		{
			name:        "volume alone stays below threshold",
			title:       "release notes",
			descendants: 500,
			wantFlagged: false,
		},
		{
			name:        "empty title",
			title:       "",
			descendants: 0,
			wantFlagged: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := store.RawItem{ID: "x", Title: tt.title, Descendants: tt.descendants}
			got := Ambiguity(item, cfg)
			if got.Flagged != tt.wantFlagged {
				t.Errorf("Flagged: got %v (score %.4f), want %v",
					got.Flagged, got.Value, tt.wantFlagged)
			}
			if got.Value < 0 || got.Value > 1 {
				t.Errorf("Value %.4f outside [0,1]", got.Value)
			}
			if got.Reason == "" {
				t.Error("Reason: expected non-empty")
			}
		})
	}
}

func TestAmbiguity_ReasonNamesDominantSignal(t *testing.T) {
	item := store.RawItem{Title: "You won't believe this!!", Descendants: 80}
	got := Ambiguity(item, stagesCfg())
	if !strings.Contains(got.Reason, "clickbait term") {
		t.Errorf("Reason: got %q, want dominant clickbait term named", got.Reason)
	}

	item = store.RawItem{Title: "release notes", Descendants: 500}
	got = Ambiguity(item, stagesCfg())
	if !strings.Contains(got.Reason, "comment-volume variance") {
		t.Errorf("Reason: got %q, want dominant volume signal named", got.Reason)
	}
}

func TestAmbiguity_Deterministic(t *testing.T) {
	item := store.RawItem{Title: "Why did THIS happen??", Score: 12, Descendants: 47}
	cfg := stagesCfg()

	first := Ambiguity(item, cfg)
	for i := 0; i < 100; i++ {
		if got := Ambiguity(item, cfg); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
}

func TestAmbiguity_QuestionDensitySaturates(t *testing.T) {
	two := Ambiguity(store.RawItem{Title: "what?? really??"}, stagesCfg())
	ten := Ambiguity(store.RawItem{Title: "what?????????? really"}, stagesCfg())
	if ten.Value > two.Value {
		t.Errorf("question density should saturate at two marks: %.4f > %.4f",
			ten.Value, two.Value)
	}
}

func TestUppercaseRatio(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"1234 !!", 0},
		{"abcd", 0},
		{"ABCD", 1},
		{"AbCd", 0.5},
	}
	for _, tt := range tests {
		if got := uppercaseRatio(tt.in); got != tt.want {
			t.Errorf("uppercaseRatio(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClamp01(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{-0.5, 0}, {0, 0}, {0.42, 0.42}, {1, 1}, {1.7, 1},
	}
	for _, tt := range tests {
		if got := clamp01(tt.in); got != tt.want {
			t.Errorf("clamp01(%v): got %v, want %v", tt.in, got, tt.want)
		}
	}
}
