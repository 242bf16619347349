package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var messages = map[string]string{
	"required":     "The '{field}' field is required.",
	"objectStrict": "The object '{field}' contains forbidden keys: '{actual}'.",
	TypeString:     "The '{field}' field must be a string.",
	TypeNumber:     "The '{field}' field must be a number.",
	TypeBoolean:    "The '{field}' field must be a boolean.",
	TypeObject:     "The '{field}' must be an Object.",
	TypeArray:      "The '{field}' field must be an array.",
	"alpha":        "The '{field}' field must be an alphabetic string.",
	"alphanum":     "The '{field}' field must be an alphanumeric string.",
	"numeric":      "The '{field}' field must be a numeric string.",
	"email":        "The '{field}' field must be a valid e-mail.",
	"uuid":         "The '{field}' field must be a valid UUID.",
	"uuid4":        "The '{field}' field must be a valid UUID.",
	"url":          "The '{field}' field must be a valid URL.",
	"oneof":        "The '{field}' field value '{expected}' does not match any of the allowed values.",
	"eq":           "The '{field}' field value must be equal to '{expected}'.",
	"ne":           "The '{field}' field value must not be equal to '{expected}'.",
	"len":          "The '{field}' field length must be {expected}.",
	"min":          "The '{field}' field must be greater than or equal to {expected}.",
	"max":          "The '{field}' field must be less than or equal to {expected}.",
	"gte":          "The '{field}' field must be greater than or equal to {expected}.",
	"lte":          "The '{field}' field must be less than or equal to {expected}.",
	"gt":           "The '{field}' field must be greater than {expected}.",
	"lt":           "The '{field}' field must be less than {expected}.",
}

// String lengths read better than magnitudes for the size tags.
var stringMessages = map[string]string{
	"len": "The '{field}' field length must be {expected} characters long.",
	"min": "The '{field}' field length must be greater than or equal to {expected} characters long.",
	"max": "The '{field}' field length must be less than or equal to {expected} characters long.",
	"gte": "The '{field}' field length must be greater than or equal to {expected} characters long.",
	"lte": "The '{field}' field length must be less than or equal to {expected} characters long.",
}

func newError(kind, field string, actual, expected any) FieldError {
	return FieldError{
		Type:     kind,
		Field:    field,
		Message:  render(lookupMessage(kind, false), field, actual, expected),
		Expected: expected,
		Actual:   actual,
	}
}

func fromValidatorError(field string, value any, fe validator.FieldError) FieldError {
	var expected any
	if param := fe.Param(); param != "" {
		expected = param
		if fe.Tag() == "oneof" {
			expected = strings.Join(strings.Fields(param), ", ")
		}
	}

	return FieldError{
		Type:     fe.Tag(),
		Field:    field,
		Message:  render(lookupMessage(fe.Tag(), fe.Kind() == reflect.String), field, value, expected),
		Expected: expected,
		Actual:   value,
	}
}

func lookupMessage(kind string, isString bool) string {
	if isString {
		if msg, ok := stringMessages[kind]; ok {
			return msg
		}
	}
	if msg, ok := messages[kind]; ok {
		return msg
	}
	return "The '{field}' field fails the '" + kind + "' rule."
}

func render(msg, field string, actual, expected any) string {
	r := strings.NewReplacer(
		"{field}", field,
		"{actual}", stringify(actual),
		"{expected}", stringify(expected),
	)
	return r.Replace(msg)
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
