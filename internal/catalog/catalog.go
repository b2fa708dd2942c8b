package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Template is one read-only pattern definition from the catalog file.
// Templates are loaded once per run and never mutated afterward.
type Template struct {
	// ID is the unique pattern identifier referenced by PatternInstance rows.
	ID string `yaml:"id"`

	// Description is a short human-readable summary of what the pattern means.
	Description string `yaml:"description"`

	// Domain classifies the pattern: general | financial | security.
	// Sensitive domains force a human override regardless of risk score.
	Domain string `yaml:"domain"`

	// Trigger holds the predicates an item must satisfy to match.
	Trigger Trigger `yaml:"trigger"`

	// Weights are the confidence contributions of each matched signal.
	Weights Weights `yaml:"weights"`
}

// Trigger describes the match predicates of a template. A predicate with a
// zero value is absent and contributes nothing to confidence.
type Trigger struct {
	// TitleContains matches when any keyword occurs in the lowercased title.
	TitleContains []string `yaml:"title_contains"`

	// URLContains matches when any keyword occurs in the lowercased URL.
	URLContains []string `yaml:"url_contains"`

	// MinScore matches when the item's upstream score meets the minimum.
	MinScore int `yaml:"min_score"`

	// MinComments matches when the item's comment count meets the minimum.
	MinComments int `yaml:"min_comments"`
}

// Weights holds the confidence-contribution weight per trigger signal.
// Confidence is the weighted sum of matched signals divided by the weight sum.
type Weights struct {
	TitleMatch float64 `yaml:"title_match"`
	URLMatch   float64 `yaml:"url_match"`
	Engagement float64 `yaml:"engagement"`
	Score      float64 `yaml:"score"`
}

// Sum returns the total weight available to a template.
func (w Weights) Sum() float64 {
	return w.TitleMatch + w.URLMatch + w.Engagement + w.Score
}

// Catalog is the full set of templates for one run.
type Catalog struct {
	Templates []Template `yaml:"patterns"`
}

// Load reads and validates the template catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read file: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}

	if err := validate(&c); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return &c, nil
}

// validate checks template identity, weight ranges, and trigger presence.
func validate(c *Catalog) error {
	seen := make(map[string]bool, len(c.Templates))
	for i, tpl := range c.Templates {
		if tpl.ID == "" {
			return fmt.Errorf("patterns[%d]: id is required", i)
		}
		if seen[tpl.ID] {
			return fmt.Errorf("patterns[%d]: duplicate id %q", i, tpl.ID)
		}
		seen[tpl.ID] = true

		switch tpl.Domain {
		case "", "general", "financial", "security":
		default:
			return fmt.Errorf("patterns[%d] %q: unknown domain %q", i, tpl.ID, tpl.Domain)
		}

		weights := []struct {
			name string
			v    float64
		}{
			{"title_match", tpl.Weights.TitleMatch},
			{"url_match", tpl.Weights.URLMatch},
			{"engagement", tpl.Weights.Engagement},
			{"score", tpl.Weights.Score},
		}
		for _, w := range weights {
			if w.v < 0 || w.v > 1 {
				return fmt.Errorf("patterns[%d] %q: weight %s %.4f is outside [0,1]",
					i, tpl.ID, w.name, w.v)
			}
		}
		if tpl.Weights.Sum() == 0 {
			return fmt.Errorf("patterns[%d] %q: all weights are zero", i, tpl.ID)
		}

		tr := tpl.Trigger
		if len(tr.TitleContains) == 0 && len(tr.URLContains) == 0 &&
			tr.MinScore == 0 && tr.MinComments == 0 {
			return fmt.Errorf("patterns[%d] %q: trigger has no predicates", i, tpl.ID)
		}
	}
	return nil
}

// Get returns the template with the given id, if present.
func (c *Catalog) Get(id string) (Template, bool) {
	for _, tpl := range c.Templates {
		if tpl.ID == id {
			return tpl, true
		}
	}
	return Template{}, false
}
