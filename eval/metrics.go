package eval

import "math"

// SummaryMetrics derives flat summary metrics from a judge quality
// verdict. The verdict originates from a generative model, so every key is
// optional: missing or mistyped fields default to zero/empty rather than
// failing, keeping the no-throw result contract intact.
func SummaryMetrics(evaluation map[string]any) map[string]any {
	score := numberOr(evaluation["overall_score"], 0)
	total := numberOr(evaluation["total_possible"], 10)

	metrics := map[string]any{
		"overall_score":      score,
		"total_possible":     total,
		"overall_percentage": float64(0),
		"grade":              stringOr(evaluation["grade"], "N/A"),
		"usability":          stringOr(evaluation["usability"], "unknown"),
	}

	if total > 0 {
		metrics["overall_percentage"] = round2(score / total * 100)
	}

	if criteria, ok := evaluation["criteria_scores"].(map[string]any); ok {
		for criterion, raw := range criteria {
			details, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			metrics[criterion+"_score"] = numberOr(details["score"], 0)
			metrics[criterion+"_percentage"] = numberOr(details["percentage"], 0)
		}
	}

	findings, _ := evaluation["detailed_findings"].(map[string]any)
	metrics["error_count"] = listLen(findings, "errors")
	metrics["missing_field_count"] = listLen(findings, "missing_fields")
	metrics["hallucination_count"] = listLen(findings, "hallucinations")
	metrics["correct_extraction_count"] = listLen(findings, "correct_extractions")

	return metrics
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// numberOr coerces a decoded JSON value to float64, falling back when the
// value is absent or not numeric.
func numberOr(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return fallback
	}
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func listLen(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	if list, ok := m[key].([]any); ok {
		return len(list)
	}
	return 0
}
