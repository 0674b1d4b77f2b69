package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// SearchParams is the body of the search endpoints. Zero weights mean
// "use the configured defaults"; explicit weights must be non-negative
// and sum to 1 within tolerance, enforced by the ranking engine.
type SearchParams struct {
	Query          string  `json:"query" validate:"required"`
	TopK           *int    `json:"top_k" validate:"omitempty,min=0,max=200"`
	SemanticWeight float64 `json:"semantic_weight" validate:"omitempty,min=0,max=1"`
	TextWeight     float64 `json:"text_weight" validate:"omitempty,min=0,max=1"`
	Offset         int     `json:"offset" validate:"omitempty,min=0"`
	Limit          int     `json:"limit" validate:"omitempty,min=1,max=100"`
}

func (params *SearchParams) Validate() map[string]string {
	return validateStruct(params)
}

// PaperCreateParams is the body for registering a paper by hand,
// mirroring what the crawler writes.
type PaperCreateParams struct {
	Title     string `json:"title" validate:"required"`
	Author    string `json:"author"`
	Publisher string `json:"publisher"`
	Year      int    `json:"year" validate:"omitempty,min=1800,max=2100"`
	URL       string `json:"url" validate:"omitempty,url"`
	Abstract  string `json:"abstract"`
}

func (params *PaperCreateParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(s any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}
