package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"quizdesk-service/internal/domain"
)

var validate = validator.New()

// validateStruct runs tag validation and reports failures as a validation error.
func validateStruct(op string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Wrap(domain.KindValidation, op, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return &domain.Error{Kind: domain.KindValidation, Op: op, Msg: strings.Join(msgs, "; ")}
}
