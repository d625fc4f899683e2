package guidance

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/riskscore/risk"
)

// costLimit bounds the work a single rule evaluation may do
const costLimit = 1000000

// Engine manages the CEL environment and rule compilation/evaluation.
// It is safe for concurrent use.
type Engine struct {
	env      *cel.Env
	store    RuleStore
	cache    RulesCache
	programs map[string]cel.Program // ruleID -> compiled program
	messages map[risk.Tier]string
	mu       sync.RWMutex
}

// NewEnv declares the variables rule expressions can reference
func NewEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("score", cel.DoubleType),
		cel.Variable("probability", cel.DoubleType),
		cel.Variable("tier", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewEngine compiles every active rule in store.
// Tier messages not present in messages fall back to DefaultMessages.
func NewEngine(store RuleStore, messages map[risk.Tier]string) (*Engine, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, err
	}

	en := &Engine{
		env:      env,
		store:    store,
		cache:    NewInMemoryRulesCache(DefaultCacheConfig()),
		programs: make(map[string]cel.Program),
		messages: make(map[risk.Tier]string, len(DefaultMessages)),
	}
	for tier, msg := range DefaultMessages {
		en.messages[tier] = msg
	}
	for tier, msg := range messages {
		en.messages[tier] = msg
	}

	if err := en.CompileAllRules(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	return en, nil
}

// NewDefaultEngine builds an engine over DefaultRules in memory
func NewDefaultEngine() (*Engine, error) {
	store, err := NewSeededRuleStore(DefaultRules())
	if err != nil {
		return nil, err
	}
	return NewEngine(store, nil)
}

// CompileRule compiles a single rule expression and makes it available for evaluation
func (en *Engine) CompileRule(ruleID, expression string) error {
	prog, err := en.compile(expression)
	if err != nil {
		return err
	}
	en.publish(ruleID, prog)
	return nil
}

func (en *Engine) compile(expression string) (cel.Program, error) {
	ast, issues := en.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := en.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(costLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

func (en *Engine) publish(ruleID string, prog cel.Program) {
	en.mu.Lock()
	en.programs[ruleID] = prog
	en.mu.Unlock()
}

// CompileAllRules compiles all active rules from the store and refreshes the cache
func (en *Engine) CompileAllRules() error {
	rules, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if err := en.CompileRule(rule.ID, rule.Expression); err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rule.ID, err)
		}
	}

	en.cache.Set(rules)

	return nil
}

// AddRule validates, stores and then compiles a new rule.
// The store decides whether the ID is taken; a rejected rule never touches
// the program of an existing one.
func (en *Engine) AddRule(r *Rule) error {
	prog, err := en.compile(r.Expression)
	if err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := en.store.Add(r); err != nil {
		return err
	}

	en.publish(r.ID, prog)
	en.cache.Invalidate()

	return nil
}

// UpdateRule validates and stores an existing rule, then swaps in its program
func (en *Engine) UpdateRule(r *Rule) error {
	prog, err := en.compile(r.Expression)
	if err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := en.store.Update(r); err != nil {
		return err
	}

	en.publish(r.ID, prog)
	en.cache.Invalidate()

	return nil
}

// DeleteRule removes a rule from the store and compiled programs
func (en *Engine) DeleteRule(ruleID string) error {
	if err := en.store.Delete(ruleID); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.programs, ruleID)
	en.mu.Unlock()

	en.cache.Invalidate()

	return nil
}

// Evaluate evaluates a single rule against the provided facts
func (en *Engine) Evaluate(ruleID string, facts map[string]any) (*EvaluationResult, error) {
	rule, err := en.store.Get(ruleID)
	if err != nil {
		return nil, err
	}

	result := en.eval(rule, facts)
	return result, result.Error
}

// EvaluateAll evaluates all active rules in order.
// A failing rule is reported in its result and does not stop the others.
func (en *Engine) EvaluateAll(facts map[string]any) ([]*EvaluationResult, error) {
	rules, err := en.ActiveRules()
	if err != nil {
		return nil, err
	}

	results := make([]*EvaluationResult, 0, len(rules))
	for _, rule := range rules {
		results = append(results, en.eval(rule, facts))
	}

	return results, nil
}

func (en *Engine) eval(rule *Rule, facts map[string]any) *EvaluationResult {
	result := &EvaluationResult{RuleID: rule.ID, RuleName: rule.Name}

	en.mu.RLock()
	prog, exists := en.programs[rule.ID]
	en.mu.RUnlock()

	if !exists {
		result.Error = fmt.Errorf("rule %s is not compiled", rule.ID)
		return result
	}

	out, details, err := prog.Eval(facts)
	if err != nil {
		result.Error = err
		return result
	}

	// Non-boolean results never match
	if matched, ok := out.Value().(bool); ok && matched {
		result.Matched = true
		result.Tips = rule.Tips
	}
	if details != nil {
		result.Trace = details.State()
	}

	return result
}

// Rule returns a stored rule by ID
func (en *Engine) Rule(id string) (*Rule, error) {
	return en.store.Get(id)
}

// ActiveRules returns the rules EvaluateAll runs, in evaluation order
func (en *Engine) ActiveRules() ([]*Rule, error) {
	if rules := en.cache.Get(); rules != nil {
		return rules, nil
	}
	rules, err := en.store.ListActive()
	if err != nil {
		return nil, err
	}
	en.cache.Set(rules)
	return rules, nil
}

// Message returns the headline shown for a tier
func (en *Engine) Message(t risk.Tier) string {
	return en.messages[t]
}

// Advise collects the tier message and the tips of every matching rule.
// Rules that fail to evaluate contribute nothing.
func (en *Engine) Advise(a risk.Assessment) (Advice, error) {
	results, err := en.EvaluateAll(Facts(a))
	if err != nil {
		return Advice{}, err
	}

	advice := Advice{Message: en.Message(a.Tier), Tips: []string{}}
	for _, r := range results {
		if r.Matched {
			advice.Tips = append(advice.Tips, r.Tips...)
		}
	}

	return advice, nil
}
