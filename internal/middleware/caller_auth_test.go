package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var authNow = time.Unix(1_700_000_000, 0)

func recordCaller(got *common.Address, seen *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, *seen = GetCallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func signedRequest(t *testing.T, body string, ts time.Time) (*http.Request, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	require.NoError(t, SignRequest(req, key, ts, []byte(body)))
	return req, crypto.PubkeyToAddress(key.PublicKey)
}

func TestCallerAuth(t *testing.T) {
	cfg := CallerAuthConfig{Now: func() time.Time { return authNow }}
	body := `{"jsonrpc":"2.0","method":"sale_publicClaim","params":[],"id":1}`

	tests := []struct {
		name       string
		build      func(t *testing.T) (*http.Request, common.Address)
		wantStatus int
	}{
		{
			name: "valid signature",
			build: func(t *testing.T) (*http.Request, common.Address) {
				return signedRequest(t, body, authNow)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "raw recovery id accepted",
			build: func(t *testing.T) (*http.Request, common.Address) {
				req, addr := signedRequest(t, body, authNow)
				sig, _ := hexutil.Decode(req.Header.Get(HeaderSignature))
				sig[64] -= 27
				req.Header.Set(HeaderSignature, hexutil.Encode(sig))
				return req, addr
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "timestamp within skew",
			build: func(t *testing.T) (*http.Request, common.Address) {
				return signedRequest(t, body, authNow.Add(-4*time.Minute))
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "timestamp outside skew",
			build: func(t *testing.T) (*http.Request, common.Address) {
				return signedRequest(t, body, authNow.Add(-10*time.Minute))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "tampered body",
			build: func(t *testing.T) (*http.Request, common.Address) {
				req, addr := signedRequest(t, body, authNow)
				req.Body = httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body+" ")).Body
				return req, addr
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "claimed address mismatch",
			build: func(t *testing.T) (*http.Request, common.Address) {
				req, addr := signedRequest(t, body, authNow)
				req.Header.Set(HeaderAddress, "0x00000000000000000000000000000000000b0b00")
				return req, addr
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "malformed address",
			build: func(t *testing.T) (*http.Request, common.Address) {
				req, addr := signedRequest(t, body, authNow)
				req.Header.Set(HeaderAddress, "bob")
				return req, addr
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "short signature",
			build: func(t *testing.T) (*http.Request, common.Address) {
				req, addr := signedRequest(t, body, authNow)
				req.Header.Set(HeaderSignature, "0x1234")
				return req, addr
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "missing headers",
			build: func(t *testing.T) (*http.Request, common.Address) {
				return httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body)), common.Address{}
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, want := tt.build(t)
			var got common.Address
			var seen bool
			rec := httptest.NewRecorder()
			CallerAuth(cfg)(recordCaller(&got, &seen)).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.True(t, seen)
				assert.Equal(t, want, got)
			} else {
				assert.False(t, seen)
				assert.Contains(t, rec.Body.String(), `"unauthorized"`)
			}
		})
	}
}

func TestCallerAuth_BodyStillReadable(t *testing.T) {
	body := `{"hello":"world"}`
	req, _ := signedRequest(t, body, authNow)

	var read string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		read = buf.String()
	})
	CallerAuth(CallerAuthConfig{Now: func() time.Time { return authNow }})(h).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, body, read)
}

func TestOptionalCallerAuth(t *testing.T) {
	cfg := CallerAuthConfig{Now: func() time.Time { return authNow }}

	t.Run("unsigned passes without caller", func(t *testing.T) {
		var got common.Address
		var seen bool
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{}`))
		OptionalCallerAuth(cfg)(recordCaller(&got, &seen)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, seen)
	})

	t.Run("bad signature still rejected", func(t *testing.T) {
		req, _ := signedRequest(t, `{}`, authNow.Add(time.Hour))
		var got common.Address
		var seen bool
		rec := httptest.NewRecorder()
		OptionalCallerAuth(cfg)(recordCaller(&got, &seen)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCallerAuth_RPCErrors(t *testing.T) {
	cfg := CallerAuthConfig{RPC: true, Now: func() time.Time { return authNow }}
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	var got common.Address
	var seen bool
	CallerAuth(cfg)(recordCaller(&got, &seen)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp struct {
		JSONRPC string `json:"jsonrpc"`
		Error   struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, -32021, resp.Error.Code)
}

func TestSigningMessage(t *testing.T) {
	msg := string(SigningMessage("POST", "/rpc", 42, []byte("abc")))
	parts := strings.Split(msg, "\n")
	require.Len(t, parts, 4)
	assert.Equal(t, "POST", parts[0])
	assert.Equal(t, "/rpc", parts[1])
	assert.Equal(t, "42", parts[2])
	assert.Equal(t, crypto.Keccak256Hash([]byte("abc")).Hex(), parts[3])
}
