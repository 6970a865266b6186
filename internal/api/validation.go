package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// queryRequest is the POST /query body.
type queryRequest struct {
	Query      string `json:"query" validate:"required,max=2000"`
	PropertyID string `json:"propertyId" validate:"omitempty,numeric,max=32"`
}

// validateRequest returns a single readable line naming every failed field.
func validateRequest(req *queryRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s %s", jsonFieldName(e.Field()), fieldMessage(e)))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func jsonFieldName(field string) string {
	switch field {
	case "Query":
		return "query"
	case "PropertyID":
		return "propertyId"
	default:
		return strings.ToLower(field[:1]) + field[1:]
	}
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "numeric":
		return "must be a numeric GA4 property id"
	default:
		return fmt.Sprintf("failed validation: %s", e.Tag())
	}
}
