// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package validation provides struct validation using go-playground/validator v10.
// A single validator instance is shared by the HTTP handlers and the config loader.
//
//	type blacklistRequest struct {
//	    Kind  string `json:"kind" validate:"required,oneof=author source keyword"`
//	    Value string `json:"value" validate:"required,max=256"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    ...
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/newsdesk/internal/feedback"
	"github.com/tomtom215/newsdesk/internal/preference"
)

// CodeValidationFailed is the API error code for rejected input.
const CodeValidationFailed = "VALIDATION_FAILED"

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError is a single field validation failure.
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   any
	message string
}

// Field returns the field name, taken from the json tag when present.
func (e *ValidationError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *ValidationError) Tag() string { return e.tag }

// Param returns the tag parameter (e.g. "100" for "max=100").
func (e *ValidationError) Param() string { return e.param }

// Value returns the rejected value.
func (e *ValidationError) Value() any { return e.value }

func (e *ValidationError) Error() string { return e.message }

// RequestValidationError collects every failed field of one struct.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the individual failures.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(ve.errors))
	for _, err := range ve.errors {
		messages = append(messages, err.message)
	}
	return strings.Join(messages, "; ")
}

// APIError is the transport-neutral form of a validation failure.
type APIError struct {
	Code    string
	Message string
	Details map[string]any
}

// ToAPIError converts the failures to an APIError. A single failure keeps
// its own message; several are joined and listed under "fields".
func (ve *RequestValidationError) ToAPIError() *APIError {
	switch len(ve.errors) {
	case 0:
		return &APIError{Code: CodeValidationFailed, Message: "Validation failed"}
	case 1:
		err := ve.errors[0]
		return &APIError{
			Code:    CodeValidationFailed,
			Message: err.message,
			Details: map[string]any{"field": err.field, "tag": err.tag},
		}
	}

	fields := make([]map[string]any, len(ve.errors))
	for i, err := range ve.errors {
		fields[i] = map[string]any{"field": err.field, "tag": err.tag, "message": err.message}
	}
	return &APIError{
		Code:    CodeValidationFailed,
		Message: ve.Error(),
		Details: map[string]any{"fields": fields},
	}
}

// GetValidator returns the shared validator. Besides the built-in tags it knows
// "bucket" (a time-of-day bucket name) and "reaction" (like, dislike or refresh, any case).
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)

		mustRegister("bucket", func(fl validator.FieldLevel) bool {
			_, err := preference.ParseBucket(fl.Field().String())
			return err == nil
		})
		mustRegister("reaction", func(fl validator.FieldLevel) bool {
			_, err := feedback.ParseReaction(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validator: %v", tag, err))
	}
}

// jsonFieldName reports fields by their json name so messages match request bodies.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	default:
		return name
	}
}

// ValidateStruct validates s with the shared validator. It returns nil when s is valid.
func ValidateStruct(s any) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{errors: []ValidationError{{field: "unknown", tag: "unknown", message: err.Error()}}}
	}

	fieldErrors := make([]ValidationError, len(validationErrs))
	for i, fe := range validationErrs {
		fieldErrors[i] = ValidationError{
			field:   fe.Field(),
			tag:     fe.Tag(),
			param:   fe.Param(),
			value:   fe.Value(),
			message: translateError(fe),
		}
	}
	return &RequestValidationError{errors: fieldErrors}
}

// Templates use the field name and, for errorMessageWithParam, the tag parameter.
var errorMessageTemplates = map[string]string{
	"required": "%s is required",
	"url":      "%s must be a valid URL",
	"bucket":   "%s must be one of: morning afternoon evening night",
	"reaction": "%s must be one of: like dislike refresh",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translateError(fe validator.FieldError) string {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
