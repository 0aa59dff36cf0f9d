package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/licensesale/internal/database"
)

func TestExtractAddressFromRPCRequest(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "sale_publicClaim extracts receiver",
			body:     `{"jsonrpc":"2.0","method":"sale_publicClaim","params":[{"tier":1,"receiver":"0x742d35Cc6634C0532925a3b844Bc454e4438f44e","amount":1}],"id":1}`,
			expected: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		},
		{
			name:     "sale_whitelistClaim extracts receiver",
			body:     `{"jsonrpc":"2.0","method":"sale_whitelistClaim","params":[{"receiver":"0xABC"}],"id":1}`,
			expected: "0xABC",
		},
		{
			name:     "license_transfer extracts from",
			body:     `{"jsonrpc":"2.0","method":"license_transfer","params":[{"from":"0xF00","to":"0xBAA","token_id":1}],"id":1}`,
			expected: "0xF00",
		},
		{
			name:     "token_approve extracts owner",
			body:     `{"jsonrpc":"2.0","method":"token_approve","params":[{"owner":"0x0A","amount":"5"}],"id":1}`,
			expected: "0x0A",
		},
		{
			name:     "read method returns empty",
			body:     `{"jsonrpc":"2.0","method":"sale_settings","params":[{}],"id":1}`,
			expected: "",
		},
		{
			name:     "no params returns empty",
			body:     `{"jsonrpc":"2.0","method":"sale_publicClaim","id":1}`,
			expected: "",
		},
		{
			name:     "invalid JSON returns empty",
			body:     `invalid json`,
			expected: "",
		},
		{
			name:     "batch request extracts from first request",
			body:     `[{"jsonrpc":"2.0","method":"token_approve","params":[{"owner":"0xABC123"}],"id":1},{"jsonrpc":"2.0","method":"token_approve","params":[{"owner":"0xDEF"}],"id":2}]`,
			expected: "0xABC123",
		},
		{
			name:     "empty batch returns empty",
			body:     `[]`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractAddressFromRPCRequest([]byte(tt.body)))
		})
	}
}

func TestRateLimitKey(t *testing.T) {
	caller := common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	body := []byte(`{"jsonrpc":"2.0","method":"token_approve","params":[{"owner":"0xAbC"}],"id":1}`)

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req = req.WithContext(WithCaller(req.Context(), caller))
	assert.Equal(t, "0x00000000000000000000000000000000000a11ce", rateLimitKey(req, body))

	req = httptest.NewRequest(http.MethodPost, "/rpc", nil)
	assert.Equal(t, "0xabc", rateLimitKey(req, body))

	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "ip:10.1.2.3", rateLimitKey(req, []byte(`{}`)))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	})
}

func TestRPCRateLimit_LocalLimiter(t *testing.T) {
	limited := 0
	mw := RPCRateLimit(nil, RPCRateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         2,
		OnLimited:         func() { limited++ },
	})
	h := mw(okHandler())

	body := `{"jsonrpc":"2.0","method":"token_approve","params":[{"owner":"0xAAA"}],"id":1}`
	var codes []int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(body)))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusOK {
			assert.Equal(t, body, rec.Body.String(), "body must reach the handler")
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, limited)

	other := `{"jsonrpc":"2.0","method":"token_approve","params":[{"owner":"0xBBB"}],"id":1}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(other)))
	assert.Equal(t, http.StatusOK, rec.Code, "limits are per key")
}

func TestRPCRateLimit_RejectionIsJSONRPC(t *testing.T) {
	h := RPCRateLimit(nil, RPCRateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler())
	body := `{"jsonrpc":"2.0","method":"sale_publicClaim","params":[{"receiver":"0x1"}],"id":1}`

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2.0", resp["jsonrpc"])
	assert.Nil(t, resp["id"])
	assert.Equal(t, float64(-32029), resp["error"].(map[string]any)["code"])
}

func TestRPCRateLimit_Disabled(t *testing.T) {
	h := RPCRateLimit(nil, RPCRateLimitConfig{})(okHandler())
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(`{}`)))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRPCRateLimit_FailsOpenOnRedisError(t *testing.T) {
	r := database.WrapRedis(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	}))
	defer r.Close()

	h := RPCRateLimit(r, RPCRateLimitConfig{RequestsPerSecond: 1})(okHandler())
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(`{"method":"sale_settings"}`)))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
