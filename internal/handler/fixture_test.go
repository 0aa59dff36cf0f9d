package handler

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/licensesale/internal/authz"
	"github.com/Bidon15/licensesale/internal/executor"
	"github.com/Bidon15/licensesale/internal/middleware"
	"github.com/Bidon15/licensesale/internal/models"
	"github.com/Bidon15/licensesale/internal/repository"
	"github.com/Bidon15/licensesale/internal/sale"
	"github.com/Bidon15/licensesale/internal/state"
	"github.com/Bidon15/licensesale/internal/token"
)

var (
	treasury = common.HexToAddress("0x0000000000000000000000000000000000007eaf")
	usdc     = common.HexToAddress("0x0000000000000000000000000000000000005dc0")
	saleAddr = common.HexToAddress("0x0000000000000000000000000000000000005a1e")
)

type fixture struct {
	st       *state.State
	exec     *executor.Executor
	engine   *sale.Engine
	book     *token.ERC20Book
	router   http.Handler
	ownerKey *ecdsa.PrivateKey
	owner    common.Address
	userKey  *ecdsa.PrivateKey
	user     common.Address
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, events repository.EventRepository, checks map[string]Check) *fixture {
	t.Helper()
	f := &fixture{}
	var err error
	f.ownerKey, err = crypto.GenerateKey()
	require.NoError(t, err)
	f.userKey, err = crypto.GenerateKey()
	require.NoError(t, err)
	f.owner = crypto.PubkeyToAddress(f.ownerKey.PublicKey)
	f.user = crypto.PubkeyToAddress(f.userKey.PublicKey)

	f.st = state.New(models.Settings{
		Owner:        f.owner,
		BaseURI:      "ipfs://licenses/",
		FundReceiver: treasury,
		PaymentToken: usdc,
	})
	f.exec = executor.New(f.st, executor.WithLogger(quietLogger()))
	f.book = token.NewERC20Book(f.st)
	registry := token.NewRegistry(f.st)
	f.engine = sale.NewEngine(f.st, sale.BookPayments(f.book), registry, saleAddr, sale.WithLogger(quietLogger()))
	admin := sale.NewAdmin(f.st, f.engine.Store(),
		authz.NewOwnerAuthorizer(func() common.Address { return f.st.Settings().Owner }), f.book)

	f.router = NewRouter(RouterConfig{
		Logger:   quietLogger(),
		Version:  "test",
		Executor: f.exec,
		Engine:   f.engine,
		Admin:    admin,
		Registry: registry,
		Book:     f.book,
		Events:   events,
		Checks:   checks,
	})
	return f
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
	Meta *struct {
		Total      int    `json:"total"`
		NextCursor string `json:"next_cursor"`
	} `json:"meta"`
}

// do sends a request through the router, signed by key when it is non-nil.
func (f *fixture) do(t *testing.T, key *ecdsa.PrivateKey, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case nil:
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if key != nil {
		require.NoError(t, middleware.SignRequest(req, key, time.Now(), raw))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func (f *fixture) setup(t *testing.T, fn func() error) {
	t.Helper()
	_, err := f.exec.Execute(context.Background(), "setup", func(ctx context.Context) error { return fn() })
	require.NoError(t, err)
}
