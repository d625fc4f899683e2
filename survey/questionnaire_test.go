package survey

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func validRecord() Record {
	return Record{
		"Age":                     30.0,
		"Gender":                  "Female",
		"Country":                 "India",
		"self_employed":           "No",
		"family_history":          "No",
		"work_interfere":          "Never",
		"benefits":                "Yes",
		"care_options":            "Yes",
		"anonymity":               "Yes",
		"leave":                   "Somewhat easy",
		"coworkers":               "Yes",
		"supervisor":              "Yes",
		"mental_health_interview": "Maybe",
		"obs_consequence":         "No",
	}
}

func TestDefaultQuestionnaire(t *testing.T) {
	q := Default()

	questions := q.Questions()
	if len(questions) != 14 {
		t.Fatalf("Expected 14 questions, got %d", len(questions))
	}
	if questions[0].Key != "Age" {
		t.Errorf("Expected Age to be asked first, got %q", questions[0].Key)
	}

	age, ok := q.Question("Age")
	if !ok {
		t.Fatal("Age question should exist")
	}
	if age.Kind != KindNumeric || age.Min != 18 || age.Max != 65 {
		t.Errorf("Unexpected Age definition: %+v", age)
	}
}

func TestQuestionsReturnsCopy(t *testing.T) {
	q := Default()

	questions := q.Questions()
	questions[0].Key = "mutated"

	if q.Questions()[0].Key != "Age" {
		t.Error("Questions() must not expose internal state")
	}
}

func TestValidateAcceptsValidRecord(t *testing.T) {
	if err := Default().Validate(validRecord()); err != nil {
		t.Errorf("Validate() failed for a valid record: %v", err)
	}
}

func TestValidateAgeRepresentations(t *testing.T) {
	testCases := []struct {
		name  string
		value any
	}{
		{"float64", 42.0},
		{"int", 42},
		{"int64", int64(42)},
		{"json.Number", json.Number("42")},
		{"json.Number with fraction digits", json.Number("42.0")},
		{"json.Number in exponent form", json.Number("4.2e1")},
		{"lower bound", 18},
		{"upper bound", 65},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRecord()
			r["Age"] = tc.value
			if err := Default().Validate(r); err != nil {
				t.Errorf("Validate() rejected Age=%v: %v", tc.value, err)
			}
		})
	}
}

func TestValidateRejectsMalformedRecords(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(Record)
		field  string
	}{
		{"missing field", func(r Record) { delete(r, "work_interfere") }, "work_interfere"},
		{"nil value", func(r Record) { r["Gender"] = nil }, "Gender"},
		{"out of domain", func(r Record) { r["benefits"] = "Sometimes" }, "benefits"},
		{"wrong type", func(r Record) { r["family_history"] = true }, "family_history"},
		{"fractional age", func(r Record) { r["Age"] = 30.5 }, "Age"},
		{"fractional age as json.Number", func(r Record) { r["Age"] = json.Number("30.5") }, "Age"},
		{"age too low", func(r Record) { r["Age"] = 17 }, "Age"},
		{"age too high", func(r Record) { r["Age"] = 66.0 }, "Age"},
		{"age as string", func(r Record) { r["Age"] = "30" }, "Age"},
		{"unknown key", func(r Record) { r["comments"] = "none" }, "comments"},
		{"case sensitive option", func(r Record) { r["Gender"] = "male" }, "Gender"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRecord()
			tc.mutate(r)

			err := Default().Validate(r)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}

			var malformed *MalformedRecordError
			if !errors.As(err, &malformed) {
				t.Fatalf("Expected *MalformedRecordError, got %T", err)
			}
			if malformed.Field != tc.field {
				t.Errorf("Expected field %q, got %q", tc.field, malformed.Field)
			}
		})
	}
}

func TestValidateEmptyRecord(t *testing.T) {
	for _, r := range []Record{nil, {}} {
		err := Default().Validate(r)

		var malformed *MalformedRecordError
		if !errors.As(err, &malformed) {
			t.Fatalf("Expected *MalformedRecordError for empty record, got %v", err)
		}
		if !strings.Contains(err.Error(), "empty") {
			t.Errorf("Expected error about empty record, got: %v", err)
		}
	}
}

func TestNewQuestionnaireValidation(t *testing.T) {
	testCases := []struct {
		name      string
		questions []Question
		contains  string
	}{
		{"empty", nil, "at least one"},
		{"empty key", []Question{{Kind: KindNumeric}}, "empty key"},
		{"duplicate", []Question{
			{Key: "a", Kind: KindCategorical, Options: []string{"x"}},
			{Key: "a", Kind: KindCategorical, Options: []string{"y"}},
		}, "duplicate"},
		{"no options", []Question{{Key: "a", Kind: KindCategorical}}, "no options"},
		{"bad range", []Question{{Key: "a", Kind: KindNumeric, Min: 5, Max: 1}}, "min"},
		{"bad kind", []Question{{Key: "a", Kind: "free text"}}, "unknown kind"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewQuestionnaire(tc.questions)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.contains) {
				t.Errorf("Expected error containing %q, got: %v", tc.contains, err)
			}
		})
	}
}

func TestMalformedRecordErrorMessage(t *testing.T) {
	err := &MalformedRecordError{Field: "leave", Value: "Maybe", Reason: "answer is not one of the allowed options"}
	if !strings.Contains(err.Error(), `"leave"`) || !strings.Contains(err.Error(), "Maybe") {
		t.Errorf("Error message should name field and value, got: %v", err)
	}
}
