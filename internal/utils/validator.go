// internal/utils/validator.go
package utils

import (
	"encoding/hex"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("public_key", validatePublicKey)
	validate.RegisterValidation("tx_hash", validateTxHash)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// Public keys and account addresses are 32-byte values, hex-encoded.
func validatePublicKey(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if len(value) != 64 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}

// Transaction signatures are hex strings of bounded length. Synthetic
// sentinel hashes (end-tracking) carry an "end:" prefix and skip the check.
func validateTxHash(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if strings.HasPrefix(value, "end:") {
		return true
	}
	if len(value) == 0 || len(value) > 128 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "public_key":
		return e.Field() + " must be a 64-character hex public key"
	case "tx_hash":
		return e.Field() + " must be a hex transaction hash"
	default:
		return e.Field() + " is invalid"
	}
}
