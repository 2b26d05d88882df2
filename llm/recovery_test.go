package llm

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParseJSONResponseVerbatim(t *testing.T) {
	payload := map[string]any{
		"hospital_name": "City Hospital",
		"test_items":    []any{map[string]any{"item_name": "WBC", "result": "6.2"}},
		"report_date":   "2024-03-01",
	}
	text, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}

	got, ok := ParseJSONResponse(string(text))
	if !ok {
		t.Fatal("ParseJSONResponse failed on verbatim JSON")
	}
	if !reflect.DeepEqual(got, payload) {
		t.Errorf("round trip changed payload:\ngot  %v\nwant %v", got, payload)
	}
}

func TestParseJSONResponseFenced(t *testing.T) {
	text := "Here is the extracted data:\n```json\n{\"brand_name\": \"Motrin\", \"dosage_form\": \"suspension\"}\n```\nLet me know if you need anything else."

	got, ok := ParseJSONResponse(text)
	if !ok {
		t.Fatal("ParseJSONResponse failed on fenced JSON")
	}
	want := map[string]any{"brand_name": "Motrin", "dosage_form": "suspension"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseJSONResponseFencePreferredOverBraceScan(t *testing.T) {
	// Prose braces before the fence would confuse a bare brace scan: the
	// first '{' belongs to the prose, so first-{..last-} is not valid
	// JSON and only the fenced attempt recovers the object.
	text := "The report covers {several} sections.\n```json\n{\"grade\": \"A\"}\n```"

	got, ok := ParseJSONResponse(text)
	if !ok {
		t.Fatal("ParseJSONResponse failed")
	}
	if got["grade"] != "A" {
		t.Errorf("grade = %v, want A", got["grade"])
	}
}

func TestParseJSONResponseBraceScan(t *testing.T) {
	text := "Sure! The extraction is {\"doctor_name\": \"Dr. Wu\", \"notes\": null} as requested."

	got, ok := ParseJSONResponse(text)
	if !ok {
		t.Fatal("ParseJSONResponse failed on brace scan")
	}
	want := map[string]any{"doctor_name": "Dr. Wu", "notes": nil}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseJSONResponseNoJSON(t *testing.T) {
	for _, text := range []string{
		"",
		"I could not read the document.",
		"unbalanced } brace { here",
	} {
		got, ok := ParseJSONResponse(text)
		if ok {
			t.Errorf("ParseJSONResponse(%q) = %v, want no result", text, got)
		}
		if got != nil {
			t.Errorf("ParseJSONResponse(%q) returned non-nil map on failure", text)
		}
	}
}

func TestParseJSONResponseEmptyObjectDistinctFromFailure(t *testing.T) {
	got, ok := ParseJSONResponse("{}")
	if !ok {
		t.Fatal("empty object should parse")
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty map", got)
	}
}

func TestRecoveryFailureSentinel(t *testing.T) {
	raw := "The image shows a lab report."
	payload := RecoveryFailure(raw)

	if payload["error"] != "Failed to parse JSON response" {
		t.Errorf("error = %v", payload["error"])
	}
	if payload["raw_response"] != raw {
		t.Errorf("raw_response = %v, want %q", payload["raw_response"], raw)
	}
	if !IsRecoveryFailure(payload) {
		t.Error("IsRecoveryFailure = false for sentinel payload")
	}
	if IsRecoveryFailure(map[string]any{"error": "something else"}) {
		t.Error("IsRecoveryFailure = true for non-sentinel payload")
	}
	if IsRecoveryFailure(map[string]any{"hospital_name": "x"}) {
		t.Error("IsRecoveryFailure = true for success payload")
	}
}
