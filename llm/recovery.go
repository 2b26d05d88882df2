package llm

import (
	"encoding/json"
	"strings"
)

const recoveryFailureMessage = "Failed to parse JSON response"

// ParseJSONResponse recovers a JSON object from free-form model output.
// Vision models frequently wrap the object in prose or Markdown fencing, so
// three attempts run in order, stopping at the first success:
//
//  1. parse the entire text verbatim;
//  2. parse the substring between a "```json" marker and the next fence;
//  3. parse from the first '{' to the last '}'.
//
// The ordering trades precision for recall: the fence is trusted over the
// brace scan because the scan can seize unrelated braces from surrounding
// prose. When every attempt fails the second return value is false, which
// is distinct from recovering an empty object.
func ParseJSONResponse(text string) (map[string]any, bool) {
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out, true
	}

	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			candidate := strings.TrimSpace(rest[:j])
			out = nil
			if err := json.Unmarshal([]byte(candidate), &out); err == nil {
				return out, true
			}
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		out = nil
		if err := json.Unmarshal([]byte(text[start:end+1]), &out); err == nil {
			return out, true
		}
	}

	return nil, false
}

// RecoveryFailure builds the sentinel payload substituted when no JSON
// object could be recovered from a model response. Extraction failure is a
// representable outcome, not an exceptional one, so the raw text is kept
// for later inspection.
func RecoveryFailure(raw string) map[string]any {
	return map[string]any{
		"error":        recoveryFailureMessage,
		"raw_response": raw,
	}
}

// IsRecoveryFailure reports whether payload is the sentinel produced by
// RecoveryFailure.
func IsRecoveryFailure(payload map[string]any) bool {
	if msg, ok := payload["error"].(string); ok && msg == recoveryFailureMessage {
		_, hasRaw := payload["raw_response"]
		return hasRaw
	}
	return false
}
