package plan

import (
	"encoding/json"
	"fmt"

	"query-orchestrator/internal/common/validation"
)

// Shapes a model draft must have before it is even considered. Field names are
// checked later against the registry; these only pin down structure.
var (
	analyticsDraftSchema = validation.MustCompile("analytics-draft", `{
  "type": "object",
  "properties": {
    "metrics":    {"type": "array", "items": {"type": "string"}},
    "dimensions": {"type": "array", "items": {"type": "string"}},
    "date_ranges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["start_date", "end_date"],
        "properties": {
          "start_date": {"type": "string"},
          "end_date":   {"type": "string"}
        }
      }
    },
    "filters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["field"],
        "properties": {
          "field":    {"type": "string"},
          "operator": {"type": "string"},
          "value":    {"type": "string"},
          "values":   {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "order_by": {
      "type": ["object", "null"],
      "properties": {
        "field": {"type": "string"},
        "desc":  {"type": "boolean"}
      }
    },
    "limit": {"type": ["integer", "null"], "minimum": 0}
  }
}`)

	seoDraftSchema = validation.MustCompile("seo-draft", `{
  "type": "object",
  "properties": {
    "filters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["column", "operator"],
        "properties": {
          "column":   {"type": "string"},
          "operator": {"type": "string"},
          "value":    {"type": ["string", "number", "boolean", "array", "null"]}
        }
      }
    },
    "group_by": {"type": ["string", "null"]},
    "aggregations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["function"],
        "properties": {
          "column":   {"type": "string"},
          "function": {"type": "string"}
        }
      }
    },
    "select_columns": {"type": "array", "items": {"type": "string"}},
    "sort_by": {
      "type": ["object", "null"],
      "properties": {
        "column": {"type": "string"},
        "desc":   {"type": "boolean"}
      }
    },
    "limit": {"type": ["integer", "null"], "minimum": 0}
  }
}`)
)

// ParseAnalyticsDraft validates and decodes a model-produced analytics draft.
func ParseAnalyticsDraft(raw []byte) (AnalyticsDraft, error) {
	var d AnalyticsDraft
	if err := analyticsDraftSchema.ValidateJSON(raw).Err(); err != nil {
		return d, fmt.Errorf("analytics draft: %w", err)
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("analytics draft: %w", err)
	}
	return d, nil
}

// ParseSEODraft validates and decodes a model-produced SEO draft.
func ParseSEODraft(raw []byte) (SEODraft, error) {
	var d SEODraft
	if err := seoDraftSchema.ValidateJSON(raw).Err(); err != nil {
		return d, fmt.Errorf("seo draft: %w", err)
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("seo draft: %w", err)
	}
	return d, nil
}
