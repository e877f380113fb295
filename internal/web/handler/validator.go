package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type (
	// ErrorResponse represents a validation error response.
	ErrorResponse struct {
		Error       bool   `json:"error"`
		FailedField string `json:"failed_field"`
		Tag         string `json:"tag"`
		Value       any    `json:"value"`
	}

	// XValidator validates query and body structs.
	XValidator struct{}

	// GlobalErrorHandlerResp represents a global error response structure.
	GlobalErrorHandlerResp struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Errors  []ErrorResponse `json:"errors,omitempty"`
	}
)

var validate = validator.New()

// Validate performs validation on the provided data and returns a slice of ErrorResponse.
func (v XValidator) Validate(data any) []ErrorResponse {
	var validationErrors []ErrorResponse

	errs := validate.Struct(data)
	if errs == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(errs, &verrs) {
		return []ErrorResponse{{Error: true, Tag: errs.Error()}}
	}

	for _, err := range verrs {
		validationErrors = append(validationErrors, ErrorResponse{
			Error:       true,
			FailedField: err.Field(),
			Tag:         err.Tag(),
			Value:       err.Value(),
		})
	}

	return validationErrors
}

// ParseQuery fills q from the query string and validates it. On failure the 400
// response has already been written and the returned error is the write result.
func ParseQuery(c *fiber.Ctx, q any) (bool, error) {
	if err := c.QueryParser(q); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(GlobalErrorHandlerResp{Message: err.Error()})
	}

	if errs := (XValidator{}).Validate(q); len(errs) > 0 {
		return false, c.Status(fiber.StatusBadRequest).JSON(GlobalErrorHandlerResp{
			Message: "invalid query",
			Errors:  errs,
		})
	}

	return true, nil
}

// Fail writes an error response with status code.
func Fail(c *fiber.Ctx, code int, err error) error {
	return c.Status(code).JSON(GlobalErrorHandlerResp{Message: err.Error()})
}
