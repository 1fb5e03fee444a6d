// Package validation checks weather query fields with go-playground/validator.
// Presence of the required fields is checked by the caller first; this package
// covers ranges and formats.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// UnitGroups lists the unit systems the provider accepts.
var UnitGroups = []string{"us", "metric", "uk", "base"}

var validate = newValidator()

// IsUnitGroup reports whether g is one of UnitGroups.
func IsUnitGroup(g string) bool {
	for _, u := range UnitGroups {
		if g == u {
			return true
		}
	}
	return false
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("unitgroup", func(fl validator.FieldLevel) bool {
		return IsUnitGroup(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Query is a weather lookup whose required fields are known to be present.
type Query struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	UnitGroup string  `json:"unitGroup" validate:"omitempty,unitgroup"`
}

// FieldError names the first invalid field with a caller-facing message.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}

// ValidateQuery returns a *FieldError for the first invalid field, or nil.
func ValidateQuery(q Query) error {
	err := validate.Struct(q)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate query: %w", err)
	}
	fe := verrs[0]
	return &FieldError{Field: fe.Field(), Message: describe(fe)}
}

func describe(fe validator.FieldError) string {
	switch fe.Field() {
	case "latitude":
		return "latitude must be between -90 and 90"
	case "longitude":
		return "longitude must be between -180 and 180"
	case "date":
		return "date must be a calendar date in YYYY-MM-DD format"
	case "unitGroup":
		return "unitGroup must be one of: " + strings.Join(UnitGroups, ", ")
	}
	return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}
