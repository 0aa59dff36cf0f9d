package token

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/licensesale/internal/models"
	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
	"github.com/Bidon15/licensesale/internal/state"
)

// TransferGuard is consulted on every custody change of a license.
// Issuance is the transfer from the zero address.
type TransferGuard func(from, to common.Address, id uint64) error

// TransferabilityGuard rejects every transfer except issuance while the
// sale's transferable flag is off.
func TransferabilityGuard(st *state.State) TransferGuard {
	return func(from, to common.Address, id uint64) error {
		if from == (common.Address{}) {
			return nil
		}
		if !st.Settings().Transferable {
			return apierrors.ErrNonTransferable
		}
		return nil
	}
}

// Registry is the license identity registry. It owns the sequential id
// counter, shared by every tier and sale mode.
type Registry struct {
	st    *state.State
	guard TransferGuard
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTransferGuard replaces the default transferability guard.
func WithTransferGuard(g TransferGuard) RegistryOption {
	return func(r *Registry) {
		r.guard = g
	}
}

// NewRegistry creates a registry over st.
func NewRegistry(st *state.State, opts ...RegistryOption) *Registry {
	r := &Registry{st: st, guard: TransferabilityGuard(st)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Issue assigns the next id to owner.
func (r *Registry) Issue(ctx context.Context, owner common.Address) (uint64, error) {
	if owner == (common.Address{}) {
		return 0, apierrors.ErrInvalidRequest.WithMessage("cannot issue to the zero address")
	}
	settings := r.st.Settings()
	id := settings.NextTokenID
	settings.NextTokenID++
	r.st.SetSettings(settings)

	if err := r.move(common.Address{}, owner, id); err != nil {
		return 0, err
	}
	return id, nil
}

// Transfer moves a license from its owner. Only the owner may move it.
func (r *Registry) Transfer(ctx context.Context, caller, from, to common.Address, id uint64) error {
	owner := r.st.OwnerOf(id)
	if owner == (common.Address{}) {
		return apierrors.NewNotFoundError("License")
	}
	if owner != from {
		return apierrors.ErrInvalidRequest.WithMessage("from is not the license owner")
	}
	if caller != owner {
		return apierrors.ErrUnauthorized.WithMessage("caller does not own the license")
	}
	if to == (common.Address{}) {
		return apierrors.ErrInvalidRequest.WithMessage("recipient is the zero address")
	}
	return r.move(from, to, id)
}

func (r *Registry) move(from, to common.Address, id uint64) error {
	if err := r.guard(from, to, id); err != nil {
		return err
	}
	r.st.SetOwner(id, to)
	r.st.AddLog(models.NewEvent(models.EventLicenseTransferred, models.LicenseTransferred{
		From:    from,
		To:      to,
		TokenID: id,
	}))
	return nil
}

// OwnerOf returns the owner of a license.
func (r *Registry) OwnerOf(id uint64) (common.Address, error) {
	owner := r.st.OwnerOf(id)
	if owner == (common.Address{}) {
		return common.Address{}, apierrors.NewNotFoundError("License")
	}
	return owner, nil
}

// BalanceOf returns how many licenses owner holds.
func (r *Registry) BalanceOf(owner common.Address) uint64 {
	return r.st.LicenseCount(owner)
}

// TokenURI returns the metadata URI of a license.
func (r *Registry) TokenURI(id uint64) (string, error) {
	if _, err := r.OwnerOf(id); err != nil {
		return "", err
	}
	return r.st.Settings().BaseURI + strconv.FormatUint(id, 10), nil
}
