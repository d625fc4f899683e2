package guidance

import "github.com/liamcoop/riskscore/risk"

// DefaultMessages is the headline shown for each tier
var DefaultMessages = map[risk.Tier]string{
	risk.Low:      "Low Risk: Great job maintaining your mental health!",
	risk.Moderate: "Moderate Risk: Consider reaching out or making small changes.",
	risk.High:     "High Risk: It’s important to seek support and talk to someone.",
}

// DefaultRules returns a fresh copy of the built-in tip rules.
// The bands are on the score, not the tier, so a score of 60 gets the middle tips.
func DefaultRules() []*Rule {
	return []*Rule{
		{
			ID:         "high-score",
			Name:       "Score above 75",
			Expression: "score > 75.0",
			Priority:   10,
			Active:     true,
			Tips: []string{
				"Book an appointment with a therapist",
				"Try guided meditation and journaling",
				"Avoid social isolation",
			},
		},
		{
			ID:         "elevated-score",
			Name:       "Score between 50 and 75",
			Expression: "score > 50.0 && score <= 75.0",
			Priority:   20,
			Active:     true,
			Tips: []string{
				"Take regular breaks",
				"Talk to friends or support groups",
				"Practice mindfulness or yoga",
			},
		},
		{
			ID:         "baseline",
			Name:       "Score of 50 or below",
			Expression: "score <= 50.0",
			Priority:   30,
			Active:     true,
			Tips: []string{
				"Maintain a work-life balance",
				"Keep physical activity and hobbies",
			},
		},
	}
}
