package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"product-ingest/models"
	"product-ingest/utils"
)

// ProductValidator rejects products that still miss a required field after
// backfill.
type ProductValidator struct {
	validate *validator.Validate
	logger   *utils.Logger
}

// NewProductValidator creates a ProductValidator.
func NewProductValidator(logger *utils.Logger) *ProductValidator {
	return &ProductValidator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Check validates one product and describes every failing field.
func (v *ProductValidator) Check(p *models.Product) error {
	err := v.validate.Struct(p)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate %q: %w", p.Name, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fe.Field()+":"+fe.Tag())
	}
	return fmt.Errorf("validate %q: %s: %w", p.Name, strings.Join(parts, ", "), err)
}

// Filter keeps the valid products, in order, logging each rejection.
func (v *ProductValidator) Filter(products []models.Product) []models.Product {
	out := make([]models.Product, 0, len(products))
	for i := range products {
		if err := v.Check(&products[i]); err != nil {
			v.logger.Warn("[validate] Dropping product: %v", err)
			continue
		}
		out = append(out, products[i])
	}
	return out
}
