// Package handler provides the REST handlers of the sale daemon.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Bidon15/licensesale/internal/middleware"
	"github.com/Bidon15/licensesale/internal/models"
	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON decodes and validates a request body.
func decodeJSON(r *http.Request, v *validator.Validate, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierrors.ErrBadRequest.WithMessage("Request body is required")
		}
		return apierrors.ErrBadRequest.WithMessage("Invalid JSON body")
	}
	if err := v.Struct(dst); err != nil {
		return apierrors.NewValidationErrors(formatValidationErrors(err))
	}
	return nil
}

func formatValidationErrors(err error) map[string]string {
	errs := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errs
	}
	for _, fieldError := range validationErrors {
		field := fieldError.Field()
		switch fieldError.Tag() {
		case "required":
			errs[field] = field + " is required"
		case "eth_addr":
			errs[field] = field + " must be a 0x-prefixed 20 byte address"
		case "number":
			errs[field] = field + " must be a non-negative decimal integer"
		case "len", "hexadecimal":
			errs[field] = field + " must be a 0x-prefixed 32 byte hash"
		case "max":
			errs[field] = field + " must be at most " + fieldError.Param() + " characters"
		default:
			errs[field] = field + " is invalid"
		}
	}
	return errs
}

// requireCaller returns the signed caller of the request.
func requireCaller(r *http.Request) (common.Address, error) {
	caller, ok := middleware.GetCallerFromContext(r.Context())
	if !ok {
		return common.Address{}, apierrors.ErrUnauthorized.WithMessage("signed request required")
	}
	return caller, nil
}

// parseTier reads the {tier} URL parameter. Range checks are left to the
// sale so out-of-range tiers report tier_out_of_range.
func parseTier(r *http.Request) (models.Tier, error) {
	tier, err := models.ParseTier(chi.URLParam(r, "tier"))
	if err != nil {
		return 0, apierrors.NewValidationError("tier", "tier must be a number")
	}
	return tier, nil
}
