package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/Bidon15/licensesale/internal/middleware"
	"github.com/Bidon15/licensesale/internal/models"
	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
)

var validate = newValidator()

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

// decodeParams accepts either a params object or a one-element array
// holding it, rejects unknown fields and runs struct validation.
func decodeParams(raw json.RawMessage, dst any) *Error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ErrInvalidParams("params are required")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return ErrInvalidParams(err.Error())
		}
		if len(list) != 1 {
			return ErrInvalidParams("expected a single params object")
		}
		raw = list[0]
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return ErrInvalidParams(err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		return ErrInvalidParams(validationDetails(err))
	}
	return nil
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"params": err.Error()}
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = "failed " + fe.Tag()
	}
	return details
}

// callerFrom returns the signed caller of the request.
func callerFrom(ctx context.Context) (common.Address, *Error) {
	caller, ok := middleware.GetCallerFromContext(ctx)
	if !ok {
		return common.Address{}, ErrUnauthorized("signed request required")
	}
	return caller, nil
}

// optionalAddress parses a validated address param, falling back to def
// when it was omitted.
func optionalAddress(s string, def common.Address) common.Address {
	if s == "" {
		return def
	}
	return common.HexToAddress(s)
}

func parseAmount(s string) (*big.Int, *Error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, ErrInvalidParams(map[string]string{"amount": "failed number"})
	}
	return v, nil
}

func parseTier(tier uint16) (models.Tier, *Error) {
	t := models.Tier(tier)
	if !t.Valid() {
		return 0, FromError(apierrors.ErrTierOutOfRange)
	}
	return t, nil
}

func parseProof(proof []string) []common.Hash {
	hashes := make([]common.Hash, len(proof))
	for i, p := range proof {
		hashes[i] = common.HexToHash(p)
	}
	return hashes
}
