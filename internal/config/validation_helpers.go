package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

// convertValidationError normalizes validator errors into host validation errors.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		ve := ves[0]
		field := fieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		if ve.Param() != "" {
			msg = fmt.Sprintf("%s failed validation for tag '%s=%s' (got %q)", field, ve.Tag(), ve.Param(), fmt.Sprint(ve.Value()))
		}
		return hosterrors.NewValidationError(field, msg, err)
	}

	return hosterrors.NewValidationError("config", err.Error(), err)
}

// fieldName prefers the file-level name registered through the env/yaml tag.
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		ns = ns[idx+1:]
	}
	return ns
}

func fieldForStep(index int, field string) string {
	return fmt.Sprintf("steps[%d].%s", index, field)
}
