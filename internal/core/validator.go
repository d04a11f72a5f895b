package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"cashier/internal/types"
)

// paddleIDPattern matches Paddle entity identifiers such as
// "ctm_01h8441jn5pcwrfhwh78jqt8hk".
var paddleIDPattern = regexp.MustCompile(`^([a-z]{2,4})_[a-z0-9]{1,64}$`)

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validator wraps go-playground/validator and registers the domain rules used
// by webhook payloads and admin requests.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator with the custom tags registered:
//
//	paddle_id=ctm   value must be a Paddle ID with the given prefix
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	if err := v.RegisterValidation("paddle_id", validatePaddleID); err != nil {
		// Only fails on an empty tag name; a programming error.
		panic(fmt.Sprintf("register paddle_id validation: %v", err))
	}

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates s and returns a validation AppError listing every
// failed field. The code of the returned error follows the first failure.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.logger.Error("validator misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation could not be performed", err)
	}

	details := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, ValidationError{
			Field:   fe.Namespace(),
			Code:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}

	return types.NewAppErrorWithDetails(
		tagToErrorCode(verrs[0].Tag()),
		"request validation failed",
		err,
		map[string]any{"validation_errors": details},
	)
}

// tagToErrorCode maps a failed validation tag to an error code.
func tagToErrorCode(tag string) types.ErrorCode {
	switch tag {
	case "required", "required_if", "required_with":
		return types.ErrCodeValidationMissingField
	default:
		return types.ErrCodeValidationInvalidFormat
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "paddle_id":
		return fmt.Sprintf("%s must be a Paddle ID with prefix %q", fe.Field(), fe.Param()+"_")
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// validatePaddleID checks the "paddle_id" tag. An empty value passes so the
// tag composes with omitempty and required.
func validatePaddleID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	m := paddleIDPattern.FindStringSubmatch(value)
	if m == nil {
		return false
	}
	if prefix := fl.Param(); prefix != "" && m[1] != prefix {
		return false
	}
	return true
}

// jsonFieldName reports fields by their JSON name so details match the wire.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}
