package repository

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/licensesale/internal/models"
	"github.com/Bidon15/licensesale/internal/state"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	usdc  = common.HexToAddress("0x0000000000000000000000000000000000005dc0")
)

func TestCodec(t *testing.T) {
	n, err := parseUint(formatUint(18446744073709551615))
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), n)

	_, err = parseUint("-1")
	assert.Error(t, err)

	huge, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	v, err := parseBig(formatBig(huge))
	require.NoError(t, err)
	assert.Equal(t, 0, huge.Cmp(v))
	assert.Equal(t, "0", formatBig(nil))

	_, err = parseBig("12.5")
	assert.Error(t, err)
	_, err = parseBig("-3")
	assert.Error(t, err)

	addr, err := parseAddress(formatAddress(alice))
	require.NoError(t, err)
	assert.Equal(t, alice, addr)
	_, err = parseAddress("not-an-address")
	assert.Error(t, err)

	root := common.HexToHash("0xabc123")
	h, err := parseHash(root.Hex())
	require.NoError(t, err)
	assert.Equal(t, root, h)
	_, err = parseHash("0x1234")
	assert.Error(t, err)
}

func TestDecodeSettings(t *testing.T) {
	s, err := decodeSettings(models.Settings{BaseURI: "ipfs://x/", Transferable: true},
		alice.Hex(), alice.Hex(), usdc.Hex(), "42")
	require.NoError(t, err)
	assert.Equal(t, alice, s.Owner)
	assert.Equal(t, usdc, s.PaymentToken)
	assert.Equal(t, uint64(42), s.NextTokenID)
	assert.True(t, s.Transferable)

	_, err = decodeSettings(models.Settings{}, "bad", alice.Hex(), usdc.Hex(), "1")
	assert.Error(t, err)
}

func TestDecodePublicConfig(t *testing.T) {
	cfg, err := decodePublicConfig("100", "2", "1", "1700000000", "1700001000")
	require.NoError(t, err)
	assert.Equal(t, int64(100), cfg.Price.Int64())
	assert.Equal(t, uint64(2), cfg.MaxPerTier)
	assert.Equal(t, uint64(1), cfg.MaxPerUser)
	assert.Equal(t, uint64(1700001000), cfg.End)

	_, err = decodePublicConfig("100", "x", "1", "0", "0")
	assert.Error(t, err)
}

func TestDecodeBalanceAndAllowance(t *testing.T) {
	key, v, err := decodeBalance(usdc.Hex(), alice.Hex(), "900")
	require.NoError(t, err)
	assert.Equal(t, state.BalanceKey{Token: usdc, Holder: alice}, key)
	assert.Equal(t, int64(900), v.Int64())

	akey, av, err := decodeAllowance(usdc.Hex(), alice.Hex(), usdc.Hex(), "5")
	require.NoError(t, err)
	assert.Equal(t, state.AllowanceKey{Token: usdc, Owner: alice, Spender: usdc}, akey)
	assert.Equal(t, int64(5), av.Int64())

	_, _, err = decodeAllowance(usdc.Hex(), alice.Hex(), "zz", "5")
	assert.Error(t, err)
}

func TestBuildCommitBatch(t *testing.T) {
	st := state.New(models.Settings{Owner: alice, PaymentToken: usdc})
	st.SetPublicConfig(1, models.PublicSaleConfig{Price: big.NewInt(100), MaxPerTier: 2, MaxPerUser: 1})
	st.SetWhitelistConfig(2, models.WhitelistSaleConfig{MerkleRoot: common.HexToHash("0x01"), MaxPerTier: 15})
	st.SetMintedPerTier(state.TierKey{Mode: models.ModePublic, Tier: 1}, 1)
	st.SetMintedPerUser(state.UserKey{Mode: models.ModePublic, Tier: 1, Claimant: alice}, 1)
	st.SetOwner(1, alice)
	st.SetBalance(state.BalanceKey{Token: usdc, Holder: alice}, big.NewInt(900))
	st.SetAllowance(state.AllowanceKey{Token: usdc, Owner: alice, Spender: usdc}, big.NewInt(0))
	settings := st.Settings()
	settings.NextTokenID = 2
	st.SetSettings(settings)
	ev := models.NewEvent(models.EventTokenIssued, models.TokenIssued{Receiver: alice, TokenID: 1, Price: big.NewInt(100)})
	ev.ID = "01HZZZZZZZZZZZZZZZZZZZZZZZ"
	ev.Timestamp = time.Now()
	st.AddLog(ev)

	batch, err := buildCommitBatch(st.Commit())
	require.NoError(t, err)
	require.Equal(t, 9, batch.Len())

	tables := map[string]bool{}
	for _, q := range batch.QueuedQueries {
		fields := strings.Fields(q.SQL)
		require.GreaterOrEqual(t, len(fields), 3)
		tables[fields[2]] = true
	}
	for _, table := range []string{
		"sale_settings", "public_sale_configs", "whitelist_sale_configs", "minted_per_tier",
		"minted_per_user", "licenses", "token_balances", "token_allowances", "sale_events",
	} {
		assert.True(t, tables[table], table)
	}

	last := batch.QueuedQueries[len(batch.QueuedQueries)-1]
	assert.Contains(t, string(last.Arguments[4].([]byte)), `"token_id":1`)
}

func TestBuildCommitBatch_BadPayload(t *testing.T) {
	cs := state.NewChangeSet()
	cs.Events = []models.Event{models.NewEvent(models.EventTokenIssued, func() {})}
	_, err := buildCommitBatch(cs)
	assert.Error(t, err)
}

func TestMigrationSource(t *testing.T) {
	src, err := MigrationSource()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	versions := []uint{first}
	for v := first; ; {
		next, err := src.Next(v)
		if err != nil {
			break
		}
		versions = append(versions, next)
		v = next
	}
	assert.Equal(t, []uint{1, 2, 3}, versions)

	r, _, err := src.ReadUp(3)
	require.NoError(t, err)
	defer r.Close()
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/sale?sslmode=disable", migrateURL("postgres://u:p@db:5432/sale?sslmode=disable"))
	assert.Equal(t, "pgx5://db/sale", migrateURL("postgresql://db/sale"))
	assert.Equal(t, "pgx5://db/sale", migrateURL("pgx5://db/sale"))
}
