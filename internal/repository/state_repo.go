// Package repository persists the sale state to PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bidon15/licensesale/internal/models"
	"github.com/Bidon15/licensesale/internal/state"
)

// StateRepository checkpoints committed transactions and restores the
// full state at startup.
type StateRepository interface {
	Load(ctx context.Context) (*state.ChangeSet, error)
	Commit(ctx context.Context, cs *state.ChangeSet) error
}

type stateRepo struct {
	pool *pgxpool.Pool
}

// NewStateRepository creates a new StateRepository instance.
func NewStateRepository(pool *pgxpool.Pool) StateRepository {
	return &stateRepo{pool: pool}
}

// Commit writes every key of the change set and its events in a single
// database transaction.
func (r *stateRepo) Commit(ctx context.Context, cs *state.ChangeSet) error {
	if cs == nil || cs.Empty() {
		return nil
	}
	batch, err := buildCommitBatch(cs)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to write change set: %w", err)
	}
	return tx.Commit(ctx)
}

func buildCommitBatch(cs *state.ChangeSet) (*pgx.Batch, error) {
	batch := &pgx.Batch{}

	if s := cs.Settings; s != nil {
		batch.Queue(`
			INSERT INTO sale_settings (id, owner, base_uri, fund_receiver, payment_token, transferable, next_token_id, updated_at)
			VALUES (1, $1, $2, $3, $4, $5, $6::numeric, NOW())
			ON CONFLICT (id) DO UPDATE SET
				owner = EXCLUDED.owner,
				base_uri = EXCLUDED.base_uri,
				fund_receiver = EXCLUDED.fund_receiver,
				payment_token = EXCLUDED.payment_token,
				transferable = EXCLUDED.transferable,
				next_token_id = EXCLUDED.next_token_id,
				updated_at = NOW()`,
			formatAddress(s.Owner), s.BaseURI, formatAddress(s.FundReceiver), formatAddress(s.PaymentToken),
			s.Transferable, formatUint(s.NextTokenID))
	}

	for tier, cfg := range cs.PublicConfigs {
		batch.Queue(`
			INSERT INTO public_sale_configs (tier, price, max_per_tier, max_per_user, start_at, end_at, updated_at)
			VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6::numeric, NOW())
			ON CONFLICT (tier) DO UPDATE SET
				price = EXCLUDED.price,
				max_per_tier = EXCLUDED.max_per_tier,
				max_per_user = EXCLUDED.max_per_user,
				start_at = EXCLUDED.start_at,
				end_at = EXCLUDED.end_at,
				updated_at = NOW()`,
			int16(tier), formatBig(cfg.Price), formatUint(cfg.MaxPerTier), formatUint(cfg.MaxPerUser),
			formatUint(cfg.Start), formatUint(cfg.End))
	}

	for tier, cfg := range cs.WhitelistConfigs {
		batch.Queue(`
			INSERT INTO whitelist_sale_configs (tier, merkle_root, max_per_tier, start_at, end_at, updated_at)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, NOW())
			ON CONFLICT (tier) DO UPDATE SET
				merkle_root = EXCLUDED.merkle_root,
				max_per_tier = EXCLUDED.max_per_tier,
				start_at = EXCLUDED.start_at,
				end_at = EXCLUDED.end_at,
				updated_at = NOW()`,
			int16(tier), cfg.MerkleRoot.Hex(), formatUint(cfg.MaxPerTier), formatUint(cfg.Start), formatUint(cfg.End))
	}

	for key, count := range cs.MintedPerTier {
		batch.Queue(`
			INSERT INTO minted_per_tier (mode, tier, count) VALUES ($1, $2, $3::numeric)
			ON CONFLICT (mode, tier) DO UPDATE SET count = EXCLUDED.count`,
			string(key.Mode), int16(key.Tier), formatUint(count))
	}

	for key, count := range cs.MintedPerUser {
		batch.Queue(`
			INSERT INTO minted_per_user (mode, tier, claimant, count) VALUES ($1, $2, $3, $4::numeric)
			ON CONFLICT (mode, tier, claimant) DO UPDATE SET count = EXCLUDED.count`,
			string(key.Mode), int16(key.Tier), formatAddress(key.Claimant), formatUint(count))
	}

	for id, owner := range cs.Owners {
		batch.Queue(`
			INSERT INTO licenses (token_id, owner) VALUES ($1::numeric, $2)
			ON CONFLICT (token_id) DO UPDATE SET owner = EXCLUDED.owner`,
			formatUint(id), formatAddress(owner))
	}

	for key, amount := range cs.Balances {
		batch.Queue(`
			INSERT INTO token_balances (token, holder, amount) VALUES ($1, $2, $3::numeric)
			ON CONFLICT (token, holder) DO UPDATE SET amount = EXCLUDED.amount`,
			formatAddress(key.Token), formatAddress(key.Holder), formatBig(amount))
	}

	for key, amount := range cs.Allowances {
		batch.Queue(`
			INSERT INTO token_allowances (token, owner, spender, amount) VALUES ($1, $2, $3, $4::numeric)
			ON CONFLICT (token, owner, spender) DO UPDATE SET amount = EXCLUDED.amount`,
			formatAddress(key.Token), formatAddress(key.Owner), formatAddress(key.Spender), formatBig(amount))
	}

	for _, ev := range cs.Events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s event: %w", ev.Kind, err)
		}
		batch.Queue(`
			INSERT INTO sale_events (id, kind, topic, tx, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			ev.ID, string(ev.Kind), ev.Topic.Hex(), ev.TxName, payload, ev.Timestamp)
	}

	return batch, nil
}

// Load reads the whole persisted state. It returns a change set with nil
// Settings when nothing was ever committed.
func (r *stateRepo) Load(ctx context.Context) (*state.ChangeSet, error) {
	cs := state.NewChangeSet()

	settings, err := r.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	cs.Settings = settings

	loaders := []func(context.Context, *state.ChangeSet) error{
		r.loadPublicConfigs,
		r.loadWhitelistConfigs,
		r.loadCounters,
		r.loadLicenses,
		r.loadBalances,
	}
	for _, load := range loaders {
		if err := load(ctx, cs); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

func (r *stateRepo) loadSettings(ctx context.Context) (*models.Settings, error) {
	query := `
		SELECT owner, base_uri, fund_receiver, payment_token, transferable, next_token_id::text
		FROM sale_settings WHERE id = 1`

	var owner, receiver, tokenAddr, nextID string
	var s models.Settings
	err := r.pool.QueryRow(ctx, query).Scan(&owner, &s.BaseURI, &receiver, &tokenAddr, &s.Transferable, &nextID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSettings(s, owner, receiver, tokenAddr, nextID)
}

func decodeSettings(s models.Settings, owner, receiver, tokenAddr, nextID string) (*models.Settings, error) {
	var err error
	if s.Owner, err = parseAddress(owner); err != nil {
		return nil, err
	}
	if s.FundReceiver, err = parseAddress(receiver); err != nil {
		return nil, err
	}
	if s.PaymentToken, err = parseAddress(tokenAddr); err != nil {
		return nil, err
	}
	if s.NextTokenID, err = parseUint(nextID); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *stateRepo) loadPublicConfigs(ctx context.Context, cs *state.ChangeSet) error {
	rows, err := r.pool.Query(ctx, `
		SELECT tier, price::text, max_per_tier::text, max_per_user::text, start_at::text, end_at::text
		FROM public_sale_configs`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tier int16
		var price, maxTier, maxUser, start, end string
		if err := rows.Scan(&tier, &price, &maxTier, &maxUser, &start, &end); err != nil {
			return err
		}
		cfg, err := decodePublicConfig(price, maxTier, maxUser, start, end)
		if err != nil {
			return fmt.Errorf("public config of tier %d: %w", tier, err)
		}
		cs.PublicConfigs[models.Tier(tier)] = cfg
	}
	return rows.Err()
}

func decodePublicConfig(price, maxTier, maxUser, start, end string) (models.PublicSaleConfig, error) {
	var cfg models.PublicSaleConfig
	var err error
	if cfg.Price, err = parseBig(price); err != nil {
		return cfg, err
	}
	if cfg.MaxPerTier, err = parseUint(maxTier); err != nil {
		return cfg, err
	}
	if cfg.MaxPerUser, err = parseUint(maxUser); err != nil {
		return cfg, err
	}
	if cfg.Start, err = parseUint(start); err != nil {
		return cfg, err
	}
	if cfg.End, err = parseUint(end); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (r *stateRepo) loadWhitelistConfigs(ctx context.Context, cs *state.ChangeSet) error {
	rows, err := r.pool.Query(ctx, `
		SELECT tier, merkle_root, max_per_tier::text, start_at::text, end_at::text
		FROM whitelist_sale_configs`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tier int16
		var root, maxTier, start, end string
		if err := rows.Scan(&tier, &root, &maxTier, &start, &end); err != nil {
			return err
		}
		var cfg models.WhitelistSaleConfig
		if cfg.MerkleRoot, err = parseHash(root); err != nil {
			return fmt.Errorf("whitelist config of tier %d: %w", tier, err)
		}
		if cfg.MaxPerTier, err = parseUint(maxTier); err != nil {
			return fmt.Errorf("whitelist config of tier %d: %w", tier, err)
		}
		if cfg.Start, err = parseUint(start); err != nil {
			return fmt.Errorf("whitelist config of tier %d: %w", tier, err)
		}
		if cfg.End, err = parseUint(end); err != nil {
			return fmt.Errorf("whitelist config of tier %d: %w", tier, err)
		}
		cs.WhitelistConfigs[models.Tier(tier)] = cfg
	}
	return rows.Err()
}

func (r *stateRepo) loadCounters(ctx context.Context, cs *state.ChangeSet) error {
	rows, err := r.pool.Query(ctx, `SELECT mode, tier, count::text FROM minted_per_tier`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var mode, count string
		var tier int16
		if err := rows.Scan(&mode, &tier, &count); err != nil {
			rows.Close()
			return err
		}
		m, err := models.ParseMode(mode)
		if err != nil {
			rows.Close()
			return err
		}
		n, err := parseUint(count)
		if err != nil {
			rows.Close()
			return err
		}
		cs.MintedPerTier[state.TierKey{Mode: m, Tier: models.Tier(tier)}] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `SELECT mode, tier, claimant, count::text FROM minted_per_user`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var mode, claimant, count string
		var tier int16
		if err := rows.Scan(&mode, &tier, &claimant, &count); err != nil {
			return err
		}
		m, err := models.ParseMode(mode)
		if err != nil {
			return err
		}
		addr, err := parseAddress(claimant)
		if err != nil {
			return err
		}
		n, err := parseUint(count)
		if err != nil {
			return err
		}
		cs.MintedPerUser[state.UserKey{Mode: m, Tier: models.Tier(tier), Claimant: addr}] = n
	}
	return rows.Err()
}

func (r *stateRepo) loadLicenses(ctx context.Context, cs *state.ChangeSet) error {
	rows, err := r.pool.Query(ctx, `SELECT token_id::text, owner FROM licenses`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, owner string
		if err := rows.Scan(&id, &owner); err != nil {
			return err
		}
		n, err := parseUint(id)
		if err != nil {
			return err
		}
		addr, err := parseAddress(owner)
		if err != nil {
			return err
		}
		cs.Owners[n] = addr
	}
	return rows.Err()
}

func (r *stateRepo) loadBalances(ctx context.Context, cs *state.ChangeSet) error {
	rows, err := r.pool.Query(ctx, `SELECT token, holder, amount::text FROM token_balances`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var tokenAddr, holder, amount string
		if err := rows.Scan(&tokenAddr, &holder, &amount); err != nil {
			rows.Close()
			return err
		}
		key, v, err := decodeBalance(tokenAddr, holder, amount)
		if err != nil {
			rows.Close()
			return err
		}
		cs.Balances[key] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `SELECT token, owner, spender, amount::text FROM token_allowances`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var tokenAddr, owner, spender, amount string
		if err := rows.Scan(&tokenAddr, &owner, &spender, &amount); err != nil {
			return err
		}
		key, v, err := decodeAllowance(tokenAddr, owner, spender, amount)
		if err != nil {
			return err
		}
		cs.Allowances[key] = v
	}
	return rows.Err()
}

func decodeBalance(tokenAddr, holder, amount string) (state.BalanceKey, *big.Int, error) {
	t, err := parseAddress(tokenAddr)
	if err != nil {
		return state.BalanceKey{}, nil, err
	}
	h, err := parseAddress(holder)
	if err != nil {
		return state.BalanceKey{}, nil, err
	}
	v, err := parseBig(amount)
	if err != nil {
		return state.BalanceKey{}, nil, err
	}
	return state.BalanceKey{Token: t, Holder: h}, v, nil
}

func decodeAllowance(tokenAddr, owner, spender, amount string) (state.AllowanceKey, *big.Int, error) {
	t, err := parseAddress(tokenAddr)
	if err != nil {
		return state.AllowanceKey{}, nil, err
	}
	o, err := parseAddress(owner)
	if err != nil {
		return state.AllowanceKey{}, nil, err
	}
	s, err := parseAddress(spender)
	if err != nil {
		return state.AllowanceKey{}, nil, err
	}
	v, err := parseBig(amount)
	if err != nil {
		return state.AllowanceKey{}, nil, err
	}
	return state.AllowanceKey{Token: t, Owner: o, Spender: s}, v, nil
}
