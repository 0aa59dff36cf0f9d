// Package authz provides the authorizers gating the sale's admin actions.
package authz

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/open-policy-agent/opa/rego"

	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
	"github.com/Bidon15/licensesale/internal/sale"
)

// OwnerSource returns the current sale owner.
type OwnerSource func() common.Address

// OwnerAuthorizer allows every action to the current owner and nothing to
// anyone else.
type OwnerAuthorizer struct {
	owner OwnerSource
}

// NewOwnerAuthorizer creates an owner-only authorizer.
func NewOwnerAuthorizer(owner OwnerSource) *OwnerAuthorizer {
	return &OwnerAuthorizer{owner: owner}
}

// Authorize implements sale.Authorizer.
func (a *OwnerAuthorizer) Authorize(ctx context.Context, caller common.Address, action sale.Action) error {
	owner := a.owner()
	if owner == (common.Address{}) || caller != owner {
		return apierrors.ErrUnauthorized.WithMessagef("%s is not allowed to %s", caller.Hex(), action)
	}
	return nil
}

//go:embed policy/default.rego
var defaultPolicy string

const policyQuery = "data.licensesale.authz.allow"

// PolicyAuthorizer evaluates a Rego policy for every admin action. The
// policy sees input.caller, input.owner and input.action, with addresses
// lower-cased, and must define data.licensesale.authz.allow.
type PolicyAuthorizer struct {
	query rego.PreparedEvalQuery
	owner OwnerSource
}

// NewPolicyAuthorizer compiles the policy at path, or the built-in
// owner-only policy when path is empty.
func NewPolicyAuthorizer(ctx context.Context, path string, owner OwnerSource) (*PolicyAuthorizer, error) {
	src := defaultPolicy
	name := "default.rego"
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy: %w", err)
		}
		src, name = string(data), path
	}
	return NewPolicyAuthorizerFromSource(ctx, name, src, owner)
}

// NewPolicyAuthorizerFromSource compiles a policy module given as source.
func NewPolicyAuthorizerFromSource(ctx context.Context, name, src string, owner OwnerSource) (*PolicyAuthorizer, error) {
	prepared, err := rego.New(
		rego.Query(policyQuery),
		rego.Module(name, src),
		rego.StrictBuiltinErrors(true),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", name, err)
	}
	return &PolicyAuthorizer{query: prepared, owner: owner}, nil
}

// Authorize implements sale.Authorizer.
func (a *PolicyAuthorizer) Authorize(ctx context.Context, caller common.Address, action sale.Action) error {
	input := map[string]any{
		"caller": strings.ToLower(caller.Hex()),
		"owner":  strings.ToLower(a.owner().Hex()),
		"action": string(action),
	}
	results, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	if !results.Allowed() {
		return apierrors.ErrUnauthorized.WithMessagef("%s is not allowed to %s", caller.Hex(), action)
	}
	return nil
}
