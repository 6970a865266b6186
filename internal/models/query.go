// internal/models/query.go
package models

// Query is one request-scoped question.
type Query struct {
	Text       string `json:"query"`
	PropertyID string `json:"propertyId,omitempty"`
}
