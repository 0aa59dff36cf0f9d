package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/Bidon15/licensesale/internal/database"
)

// JSON-RPC error codes written directly by middleware.
const (
	rpcParseError   = -32700
	rpcUnauthorized = -32021
	rpcRateLimited  = -32029
)

// RPCRateLimitConfig configures the RPC rate limiter.
type RPCRateLimitConfig struct {
	// RequestsPerSecond is the maximum number of requests allowed per second per key.
	RequestsPerSecond int
	// BurstSize only applies to the in-process limiter used without Redis.
	BurstSize int
	// OnLimited is called for every rejected request.
	OnLimited func()
	Logger    *slog.Logger
}

// RPCRateLimit creates middleware that rate limits JSON-RPC traffic per
// address. The key is the authenticated caller when present, otherwise the
// address named in the request params, otherwise the client IP.
// With Redis it uses a one second sliding window shared by all replicas and
// fails open on Redis errors; without Redis it uses local token buckets.
func RPCRateLimit(r *database.Redis, cfg RPCRateLimitConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	local := newLocalLimiter(cfg.RequestsPerSecond, cfg.BurstSize)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if cfg.RequestsPerSecond <= 0 {
				next.ServeHTTP(w, req)
				return
			}

			body, err := io.ReadAll(req.Body)
			if err != nil {
				writeRPCError(w, rpcParseError, "Failed to read request")
				return
			}
			req.Body.Close()
			req.Body = io.NopCloser(bytes.NewReader(body))

			key := rateLimitKey(req, body)

			var allowed bool
			if r != nil {
				allowed, err = checkSlidingWindowRateLimit(req.Context(), r, "rpc_ratelimit:"+key, cfg.RequestsPerSecond)
				if err != nil {
					logger.Warn("Rate limit check failed",
						slog.String("error", err.Error()),
						slog.String("key", key),
					)
					allowed = true
				}
			} else {
				allowed = local.allow(key)
			}

			if !allowed {
				logger.Info("Rate limit exceeded",
					slog.String("key", key),
					slog.Int("limit", cfg.RequestsPerSecond),
				)
				if cfg.OnLimited != nil {
					cfg.OnLimited()
				}
				writeRPCError(w, rpcRateLimited, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, req)
		})
	}
}

func rateLimitKey(r *http.Request, body []byte) string {
	if caller, ok := GetCallerFromContext(r.Context()); ok {
		return strings.ToLower(caller.Hex())
	}
	if addr := extractAddressFromRPCRequest(body); addr != "" {
		return strings.ToLower(addr)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// extractAddressFromRPCRequest extracts the acting address from a JSON-RPC request.
func extractAddressFromRPCRequest(body []byte) string {
	// Handle batch requests - extract from first request
	if len(body) > 0 && body[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil || len(batch) == 0 {
			return ""
		}
		return extractAddressFromSingleRequest(batch[0])
	}

	return extractAddressFromSingleRequest(body)
}

// extractAddressFromSingleRequest extracts the address from a single request.
func extractAddressFromSingleRequest(body []byte) string {
	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(body, &req); err != nil || len(req.Params) == 0 {
		return ""
	}

	var params struct {
		Receiver string `json:"receiver"`
		From     string `json:"from"`
		Owner    string `json:"owner"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		return ""
	}

	switch req.Method {
	case "sale_publicClaim", "sale_whitelistClaim":
		return params.Receiver
	case "license_transfer":
		return params.From
	case "token_approve":
		return params.Owner
	}
	return ""
}

// checkSlidingWindowRateLimit checks if the request is within rate limits using sliding window.
func checkSlidingWindowRateLimit(ctx context.Context, r *database.Redis, key string, requestsPerSecond int) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - int64(time.Second)

	pipe := r.Client().Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: strconv.FormatInt(now, 10)})
	// 2 seconds to handle edge cases
	pipe.Expire(ctx, key, 2*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return countCmd.Val() < int64(requestsPerSecond), nil
}

type localLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newLocalLimiter(rps, burst int) *localLimiter {
	if burst <= 0 {
		burst = rps
	}
	return &localLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// writeRPCError writes a JSON-RPC error response.
func writeRPCError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	switch code {
	case rpcRateLimited:
		w.WriteHeader(http.StatusTooManyRequests)
	case rpcUnauthorized:
		w.WriteHeader(http.StatusUnauthorized)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
	resp := map[string]any{
		"jsonrpc": "2.0",
		"error":   map[string]any{"code": code, "message": message},
		"id":      nil,
	}
	json.NewEncoder(w).Encode(resp)
}
