package guidance

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"
)

// RuleStore manages rule persistence and retrieval
type RuleStore interface {
	// Add a new rule
	Add(rule *Rule) error

	// Get a rule by ID
	Get(id string) (*Rule, error)

	// ListActive returns active rules ordered by priority, then ID
	ListActive() ([]*Rule, error)

	// Update an existing rule
	Update(rule *Rule) error

	// Delete a rule
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore over copies of the rules it is given.
// Callers never share a *Rule or a Tips slice with the store, so editing a
// rule returned by Get has no effect until it is passed to Update.
type InMemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewInMemoryRuleStore creates an empty in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{rules: make(map[string]Rule)}
}

// NewSeededRuleStore creates an in-memory store holding the given rules
func NewSeededRuleStore(rules []*Rule) (*InMemoryRuleStore, error) {
	s := NewInMemoryRuleStore()
	for _, r := range rules {
		if err := s.Add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// clone copies r, including its tips
func clone(r Rule) *Rule {
	r.Tips = slices.Clone(r.Tips)
	return &r
}

// Add stores a copy of rule and stamps its timestamps on the caller's value
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.rules[rule.ID]; taken {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	s.rules[rule.ID] = *clone(*rule)
	return nil
}

// Get returns a copy of the rule with the given ID
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	r, ok := s.rules[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("rule with ID %s not found", id)
	}
	return clone(r), nil
}

// ListActive returns copies of the active rules in evaluation order
func (s *InMemoryRuleStore) ListActive() ([]*Rule, error) {
	s.mu.RLock()
	active := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Active {
			active = append(active, clone(r))
		}
	}
	s.mu.RUnlock()

	sortRules(active)
	return active, nil
}

// Update replaces a stored rule, keeping its CreatedAt
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.rules[rule.ID]
	if !ok {
		return fmt.Errorf("rule with ID %s not found", rule.ID)
	}

	rule.CreatedAt = prev.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = *clone(*rule)
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("rule with ID %s not found", id)
	}
	delete(s.rules, id)
	return nil
}

// sortRules orders rules by ascending Priority, breaking ties by ID
func sortRules(rules []*Rule) {
	slices.SortFunc(rules, func(a, b *Rule) int {
		return cmp.Or(cmp.Compare(a.Priority, b.Priority), cmp.Compare(a.ID, b.ID))
	})
}
