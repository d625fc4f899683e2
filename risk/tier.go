// Package risk maps a treatment probability to an ordered risk tier.
package risk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Tier is one of three ordered risk bands
type Tier int

const (
	Low Tier = iota
	Moderate
	High
)

// Band edges. Each band is closed below and open above, except High which includes 1.0.
const (
	LowUpperBound      = 0.30
	ModerateUpperBound = 0.70
)

var tierNames = [...]string{
	Low:      "Low",
	Moderate: "Moderate",
	High:     "High",
}

func (t Tier) String() string {
	if t < Low || t > High {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier is the inverse of String. Matching is case-insensitive.
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if strings.EqualFold(s, name) {
			return Tier(i), nil
		}
	}
	return Low, fmt.Errorf("invalid risk tier: %q", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	if t < Low || t > High {
		return nil, fmt.Errorf("invalid risk tier: %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Assessment is the result for a single record. It is never persisted.
type Assessment struct {
	Probability float64 `json:"probability"`
	Tier        Tier    `json:"tier"`
	Score       float64 `json:"score"`
}

// InvalidProbabilityError reports a probability outside [0,1]
type InvalidProbabilityError struct {
	Probability float64
}

func (e *InvalidProbabilityError) Error() string {
	return fmt.Sprintf("probability %v is outside [0, 1]", e.Probability)
}

// TierFor returns the band containing p. It does not check the range.
func TierFor(p float64) Tier {
	switch {
	case p < LowUpperBound:
		return Low
	case p < ModerateUpperBound:
		return Moderate
	default:
		return High
	}
}

// Classify builds the Assessment for a probability
func Classify(p float64) (Assessment, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return Assessment{}, &InvalidProbabilityError{Probability: p}
	}

	return Assessment{
		Probability: p,
		Tier:        TierFor(p),
		Score:       Score(p),
	}, nil
}

// Score is p*100 rounded to two decimals on its exact binary value
// (round(p*100, 2) semantics, not math.Round(x*100)/100).
func Score(p float64) float64 {
	s, _ := strconv.ParseFloat(strconv.FormatFloat(p*100, 'f', 2, 64), 64)
	return s
}
