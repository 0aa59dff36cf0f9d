package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/licensesale/internal/executor"
	"github.com/Bidon15/licensesale/internal/middleware"
	"github.com/Bidon15/licensesale/internal/models"
	"github.com/Bidon15/licensesale/internal/sale"
	"github.com/Bidon15/licensesale/internal/state"
	"github.com/Bidon15/licensesale/internal/token"
)

var (
	owner    = common.HexToAddress("0x000000000000000000000000000000000000a11a")
	treasury = common.HexToAddress("0x0000000000000000000000000000000000007eaf")
	usdc     = common.HexToAddress("0x0000000000000000000000000000000000005dc0")
	saleAddr = common.HexToAddress("0x0000000000000000000000000000000000005a1e")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

const baseTime int64 = 1_700_000_000

type fixture struct {
	st       *state.State
	exec     *executor.Executor
	engine   *sale.Engine
	book     *token.ERC20Book
	registry *token.Registry
	handler  *Handler

	mu       sync.Mutex
	observed map[string]int
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{observed: make(map[string]int)}
	f.st = state.New(models.Settings{
		Owner:        owner,
		BaseURI:      "ipfs://licenses/",
		FundReceiver: treasury,
		PaymentToken: usdc,
	})
	f.exec = executor.New(f.st, executor.WithLogger(quietLogger()))
	f.book = token.NewERC20Book(f.st)
	f.registry = token.NewRegistry(f.st)
	now := time.Unix(baseTime, 0)
	f.engine = sale.NewEngine(f.st, sale.BookPayments(f.book), f.registry, saleAddr,
		sale.WithClock(func() time.Time { return now }),
		sale.WithLogger(quietLogger()),
	)
	f.handler = NewHandler(quietLogger(), WithObserver(func(method string, code int) {
		f.mu.Lock()
		f.observed[method+":"+strconv.Itoa(code)]++
		f.mu.Unlock()
	}))
	Register(f.handler, Services{Executor: f.exec, Engine: f.engine, Registry: f.registry, Book: f.book})
	return f
}

// setup runs fn as a committed transaction.
func (f *fixture) setup(t *testing.T, fn func() error) {
	t.Helper()
	_, err := f.exec.Execute(context.Background(), "setup", func(ctx context.Context) error { return fn() })
	require.NoError(t, err)
}

func (f *fixture) publicTier(t *testing.T, tier models.Tier, price int64, maxPerTier, maxPerUser uint64) {
	f.setup(t, func() error {
		return f.engine.Store().SetPublicConfig(tier, models.PublicSaleConfig{
			Price:      big.NewInt(price),
			MaxPerTier: maxPerTier,
			MaxPerUser: maxPerUser,
			Start:      uint64(baseTime - 60),
			End:        uint64(baseTime + 3600),
		})
	})
}

func (f *fixture) mint(t *testing.T, to common.Address, amount int64) {
	f.setup(t, func() error { return f.book.Mint(usdc, to, big.NewInt(amount)) })
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
	ID json.RawMessage `json:"id"`
}

func (r rpcResponse) reason(t *testing.T) string {
	t.Helper()
	require.NotNil(t, r.Error)
	var data ErrorData
	require.NoError(t, json.Unmarshal(r.Error.Data, &data))
	return data.Reason
}

// call sends one request, signed by caller when it is non-nil.
func (f *fixture) call(t *testing.T, caller *common.Address, method string, params any) rpcResponse {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(Request{JSONRPC: "2.0", Method: method, Params: raw, ID: 1})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req = req.WithContext(middleware.WithCaller(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func ptr(a common.Address) *common.Address {
	return &a
}
