package domain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the "sport" and "skill" tags
// registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("sport", func(fl validator.FieldLevel) bool {
			_, err := ParseSport(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("skill", func(fl validator.FieldLevel) bool {
			_, err := ParseSkillLevel(fl.Field().String())
			return err == nil
		})
		validate = v
	})
	return validate
}

// Validate runs struct validation and folds field errors into ErrBadRequest.
func Validate(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrBadRequest, strings.Join(parts, "; "))
}
