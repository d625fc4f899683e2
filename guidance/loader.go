package guidance

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/liamcoop/riskscore/risk"
)

// RuleSet is the content of a guidance rules file
type RuleSet struct {
	Messages map[risk.Tier]string
	Rules    []*Rule
}

type ruleFile struct {
	Messages map[string]string `toml:"messages"`
	Rules    []ruleEntry       `toml:"rule"`
}

type ruleEntry struct {
	ID         string   `toml:"id"`
	Name       string   `toml:"name"`
	Expression string   `toml:"expression"`
	Priority   int      `toml:"priority"`
	Tips       []string `toml:"tips"`
	Active     *bool    `toml:"active"` // defaults to true
}

// ParseRuleSet decodes a TOML rules document:
//
//	[messages]
//	High = "..."
//
//	[[rule]]
//	id = "high-score"
//	expression = "score > 75.0"
//	tips = ["..."]
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var f ruleFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse TOML rules: %w", err)
	}

	set := &RuleSet{Messages: make(map[risk.Tier]string, len(f.Messages))}
	for name, msg := range f.Messages {
		tier, err := risk.ParseTier(name)
		if err != nil {
			return nil, fmt.Errorf("messages: %w", err)
		}
		set.Messages[tier] = msg
	}

	seen := make(map[string]bool, len(f.Rules))
	for i, e := range f.Rules {
		if e.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("rule %s: duplicate id", e.ID)
		}
		seen[e.ID] = true
		if e.Expression == "" {
			return nil, fmt.Errorf("rule %s: expression is required", e.ID)
		}

		active := true
		if e.Active != nil {
			active = *e.Active
		}
		name := e.Name
		if name == "" {
			name = e.ID
		}

		set.Rules = append(set.Rules, &Rule{
			ID:         e.ID,
			Name:       name,
			Expression: e.Expression,
			Priority:   e.Priority,
			Tips:       e.Tips,
			Active:     active,
		})
	}

	return set, nil
}

// LoadRuleSet reads a TOML rules file from disk
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	set, err := ParseRuleSet(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return set, nil
}

// NewEngineFromRuleSet builds an engine over the rule set held in memory
func NewEngineFromRuleSet(set *RuleSet) (*Engine, error) {
	store, err := NewSeededRuleStore(set.Rules)
	if err != nil {
		return nil, err
	}
	return NewEngine(store, set.Messages)
}
