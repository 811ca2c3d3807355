package scorer

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable the scoring functions consult. The defaults
// encode the production scoring policy; operators override individual tables
// from a YAML file.
type Config struct {
	// Threshold is the alerting threshold for high-score notifications.
	Threshold int `yaml:"threshold"`

	// StatusPoints maps a lowercased lead status to its bonus.
	StatusPoints map[string]int `yaml:"status_points"`

	// CompetitorDomains lists email domains that draw a penalty.
	CompetitorDomains []string `yaml:"competitor_domains"`

	// InteractionDeltas maps an interaction type to its score adjustment.
	// Unrecognized types fall back to DefaultInteractionDelta.
	InteractionDeltas       map[string]int `yaml:"interaction_deltas"`
	DefaultInteractionDelta int            `yaml:"default_interaction_delta"`

	// Keyword phrase groups scanned in interaction summaries.
	PositivePhrases []string `yaml:"positive_phrases"`
	NegativePhrases []string `yaml:"negative_phrases"`
	ProposalPhrases []string `yaml:"proposal_phrases"`
}

// Default returns the production scoring policy.
func Default() Config {
	return Config{
		Threshold: 85,
		StatusPoints: map[string]int{
			"open":           5,
			"contacted":      10,
			"engaged":        15,
			"qualified lead": 25,
			"opportunity":    30,
		},
		CompetitorDomains: []string{"rivalspas.com", "competitor.com"},
		InteractionDeltas: map[string]int{
			"call":    10,
			"meeting": 15,
			"demo":    25,
			"sms":     5,
			"email":   5,
			"note":    2,
		},
		DefaultInteractionDelta: 1,
		PositivePhrases: []string{
			"interested", "sounds good", "next steps", "follow up scheduled",
			"positive", "excited",
		},
		NegativePhrases: []string{
			"not interested", "too expensive", "went with", "objection",
			"no budget",
		},
		ProposalPhrases: []string{
			"proposal sent", "sent a proposal", "quote requested",
			"requested a quote", "pricing sent",
		},
	}
}

// LoadConfig reads a YAML scoring policy file layered over the defaults.
// Missing file fields keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "scorer: read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, eris.Wrapf(err, "scorer: parse config %s", path)
	}
	return cfg, nil
}
