package survey

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Kind describes how a question's answer is represented
type Kind string

const (
	KindCategorical Kind = "categorical"
	KindNumeric     Kind = "numeric"
)

// Question is a single survey question and its enumerated answer domain
type Question struct {
	Key     string   `json:"key" toml:"key"`
	Prompt  string   `json:"prompt" toml:"prompt"`
	Kind    Kind     `json:"kind" toml:"kind"`
	Options []string `json:"options,omitempty" toml:"options"`
	Min     int      `json:"min,omitempty" toml:"min"`
	Max     int      `json:"max,omitempty" toml:"max"`
}

// Record is one raw answer record keyed by question key.
// Values are strings for categorical questions and numbers for numeric ones.
type Record map[string]any

// Questionnaire is the fixed, ordered set of questions a record must answer
type Questionnaire struct {
	questions []Question
	byKey     map[string]int
}

// NewQuestionnaire builds a questionnaire from question definitions
func NewQuestionnaire(questions []Question) (*Questionnaire, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("questionnaire must contain at least one question")
	}

	q := &Questionnaire{
		questions: make([]Question, len(questions)),
		byKey:     make(map[string]int, len(questions)),
	}
	copy(q.questions, questions)

	for i, question := range q.questions {
		if question.Key == "" {
			return nil, fmt.Errorf("question %d has an empty key", i)
		}
		if _, dup := q.byKey[question.Key]; dup {
			return nil, fmt.Errorf("duplicate question key %q", question.Key)
		}

		switch question.Kind {
		case KindCategorical:
			if len(question.Options) == 0 {
				return nil, fmt.Errorf("categorical question %q has no options", question.Key)
			}
		case KindNumeric:
			if question.Min > question.Max {
				return nil, fmt.Errorf("numeric question %q has min %d above max %d", question.Key, question.Min, question.Max)
			}
		default:
			return nil, fmt.Errorf("question %q has unknown kind %q", question.Key, question.Kind)
		}

		q.byKey[question.Key] = i
	}

	return q, nil
}

// Default returns the questionnaire the deployed model was trained against
func Default() *Questionnaire {
	q, err := NewQuestionnaire(defaultQuestions)
	if err != nil {
		panic(fmt.Sprintf("survey: invalid default questionnaire: %v", err))
	}
	return q
}

// Questions returns the questions in presentation order
func (q *Questionnaire) Questions() []Question {
	out := make([]Question, len(q.questions))
	copy(out, q.questions)
	return out
}

// Question looks up a question by key
func (q *Questionnaire) Question(key string) (Question, bool) {
	i, ok := q.byKey[key]
	if !ok {
		return Question{}, false
	}
	return q.questions[i], true
}

// Validate checks that every question is answered with a value from its domain
// and that the record carries no unknown keys.
func (q *Questionnaire) Validate(r Record) error {
	if len(r) == 0 {
		return &MalformedRecordError{Reason: "record is empty"}
	}

	for _, question := range q.questions {
		value, ok := r[question.Key]
		if !ok || value == nil {
			return &MalformedRecordError{Field: question.Key, Reason: "answer is missing"}
		}

		if err := question.check(value); err != nil {
			return err
		}
	}

	// Report unknown keys in a stable order
	var unknown []string
	for key := range r {
		if _, ok := q.byKey[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return &MalformedRecordError{Field: unknown[0], Reason: "not a known question"}
	}

	return nil
}

func (question Question) check(value any) error {
	switch question.Kind {
	case KindCategorical:
		s, ok := value.(string)
		if !ok {
			return &MalformedRecordError{Field: question.Key, Value: value, Reason: "expected a string answer"}
		}
		if !slices.Contains(question.Options, s) {
			return &MalformedRecordError{Field: question.Key, Value: value, Reason: "answer is not one of the allowed options"}
		}
		return nil

	case KindNumeric:
		n, ok := AsInt(value)
		if !ok {
			return &MalformedRecordError{Field: question.Key, Value: value, Reason: "expected a whole number"}
		}
		if n < question.Min || n > question.Max {
			return &MalformedRecordError{
				Field:  question.Key,
				Value:  value,
				Reason: fmt.Sprintf("must be between %d and %d", question.Min, question.Max),
			}
		}
		return nil
	}

	return &MalformedRecordError{Field: question.Key, Value: value, Reason: "question has no answer domain"}
}

// AsInt converts a decoded JSON or Go numeric value to an int when it is integral
func AsInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return wholeNumber(v)
	case json.Number:
		if n, err := strconv.Atoi(v.String()); err == nil {
			return n, true
		}
		// 30.0 and 3e1 are still whole numbers
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return wholeNumber(f)
	}
	return 0, false
}

func wholeNumber(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

var (
	yesNo         = []string{"Yes", "No"}
	yesNoDontKnow = []string{"Yes", "No", "Don't know"}
	yesNoSome     = []string{"Yes", "No", "Some of them"}
)

var defaultQuestions = []Question{
	{Key: "Age", Prompt: "Your Age", Kind: KindNumeric, Min: 18, Max: 65},
	{Key: "Gender", Prompt: "Gender", Kind: KindCategorical, Options: []string{"Male", "Female", "Other"}},
	{Key: "Country", Prompt: "Country", Kind: KindCategorical, Options: []string{"United States", "India", "United Kingdom", "Germany", "Other"}},
	{Key: "self_employed", Prompt: "Are you self-employed?", Kind: KindCategorical, Options: yesNo},
	{Key: "family_history", Prompt: "Any family history of mental illness?", Kind: KindCategorical, Options: yesNo},
	{Key: "work_interfere", Prompt: "How often does mental health interfere with work?", Kind: KindCategorical, Options: []string{"Never", "Rarely", "Sometimes", "Often"}},
	{Key: "benefits", Prompt: "Does your employer provide mental health benefits?", Kind: KindCategorical, Options: yesNoDontKnow},
	{Key: "care_options", Prompt: "Do you know options for mental health care?", Kind: KindCategorical, Options: []string{"Yes", "No", "Not sure"}},
	{Key: "anonymity", Prompt: "Is anonymity protected at your workplace?", Kind: KindCategorical, Options: yesNoDontKnow},
	{Key: "leave", Prompt: "Is medical leave easy to take for mental health?", Kind: KindCategorical, Options: []string{"Somewhat easy", "Very difficult", "Don't know", "Somewhat difficult"}},
	{Key: "coworkers", Prompt: "Can you talk to coworkers about mental health?", Kind: KindCategorical, Options: yesNoSome},
	{Key: "supervisor", Prompt: "Can you talk to your supervisor?", Kind: KindCategorical, Options: yesNoSome},
	{Key: "mental_health_interview", Prompt: "Would you discuss mental health in an interview?", Kind: KindCategorical, Options: []string{"Yes", "No", "Maybe"}},
	{Key: "obs_consequence", Prompt: "Seen consequences of discussing mental health?", Kind: KindCategorical, Options: yesNo},
}
