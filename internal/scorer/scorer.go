// Package scorer computes lead scores. Both entry points are pure: identical
// input always produces identical output, and results never go below zero.
package scorer

import (
	"math"
	"strings"

	"github.com/sells-group/lead-intake/internal/model"
)

// Title keyword bonuses. Both groups are additive when a title matches both.
var (
	seniorTitleKeywords    = []string{"manager", "director", "vp", "owner"}
	executiveTitleKeywords = []string{"ceo", "president"}
)

// Timeframe bonuses, checked in order; the first substring match wins.
var timeframeBonuses = []struct {
	phrase string
	points int
}{
	{"within 1 month", 25},
	{"within 3 month", 15},
	{"within 6 month", 10},
}

// Initial computes a lead's score from its canonical fields: status and
// title bonuses, field completeness, purchase timeframe, half of the
// upstream system's own score, then the customer multiplier, competitor
// penalty, and unsubscribed dampener, clamped at zero.
func Initial(f *model.LeadFields, cfg Config) int {
	score := 0

	if f.Status != nil {
		score += cfg.StatusPoints[strings.ToLower(*f.Status)]
	}

	if f.Title != nil {
		title := strings.ToLower(*f.Title)
		if containsAny(title, seniorTitleKeywords) {
			score += 15
		}
		if containsAny(title, executiveTitleKeywords) {
			score += 20
		}
	}

	if f.HasEmail() {
		score += 5
	}
	if f.Phone != nil && *f.Phone != "" {
		score += 5
	}
	if f.Company != nil && *f.Company != "" {
		score += 5
	}

	if f.Timeframe != nil {
		tf := strings.ToLower(*f.Timeframe)
		for _, b := range timeframeBonuses {
			if strings.Contains(tf, b.phrase) {
				score += b.points
				break
			}
		}
	}

	if f.UpstreamScore != nil {
		score += int(math.Floor(float64(*f.UpstreamScore) * 0.5))
	}

	if f.IsCustomer {
		score = int(math.Floor(float64(score) * 1.5))
	}

	if domain := f.EmailDomain(); domain != "" {
		for _, d := range cfg.CompetitorDomains {
			if strings.EqualFold(domain, d) {
				score -= 10
				break
			}
		}
	}

	if f.IsUnsubscribed {
		score = int(math.Floor(float64(score) * 0.5))
	}

	if score < 0 {
		score = 0
	}
	return score
}

// Rescore adjusts a lead's current score for one logged interaction: a fixed
// delta for the interaction type plus keyword-driven adjustments scanned
// from the derived summary. The phrase groups are independently additive.
func Rescore(current int, interactionType model.InteractionType, summary string, cfg Config) int {
	delta, ok := cfg.InteractionDeltas[string(interactionType)]
	if !ok {
		delta = cfg.DefaultInteractionDelta
	}

	text := strings.ToLower(summary)
	if text != "" {
		if containsAny(stripPhrases(text, cfg.NegativePhrases), cfg.PositivePhrases) {
			delta += 10
		}
		if containsAny(text, cfg.NegativePhrases) {
			delta -= 5
		}
		if containsAny(text, cfg.ProposalPhrases) {
			delta += 15
		}
	}

	score := current + delta
	if score < 0 {
		score = 0
	}
	return score
}

// Crossed reports a threshold crossing: the score moved from below the
// threshold to at-or-above it in this update.
func Crossed(originalScore, newScore, threshold int) bool {
	return newScore >= threshold && originalScore < threshold
}

// stripPhrases removes every occurrence of the given phrases so a phrase
// like "interested" cannot match inside "not interested".
func stripPhrases(text string, phrases []string) string {
	for _, p := range phrases {
		text = strings.ReplaceAll(text, strings.ToLower(p), "")
	}
	return text
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
