package jsonrpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned to the call being served.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

const (
	// MaxBodyBytes bounds the size of a request or batch.
	MaxBodyBytes = 1 << 20
	// MaxBatchSize bounds the number of calls in one batch.
	MaxBatchSize = 100
	// DefaultBatchConcurrency is how many calls of a batch run at once.
	DefaultBatchConcurrency = 8
)

// MethodHandler is the function signature for JSON-RPC method handlers.
type MethodHandler func(ctx context.Context, params json.RawMessage) (interface{}, *Error)

// Observer is told the outcome of every processed call. code is 0 on success.
type Observer func(method string, code int)

// Handler serves JSON-RPC 2.0 over HTTP POST.
type Handler struct {
	mu       sync.RWMutex
	methods  map[string]MethodHandler
	logger   *slog.Logger
	observer Observer
	parallel int
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithObserver registers an observer, typically a metrics recorder.
func WithObserver(o Observer) HandlerOption {
	return func(h *Handler) {
		h.observer = o
	}
}

// WithBatchConcurrency sets how many calls of a batch run at once.
func WithBatchConcurrency(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.parallel = n
		}
	}
}

// NewHandler creates a new JSON-RPC handler.
func NewHandler(logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		methods:  make(map[string]MethodHandler),
		logger:   logger,
		parallel: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterMethod binds name to fn, replacing any earlier binding.
func (h *Handler) RegisterMethod(name string, fn MethodHandler) {
	h.mu.Lock()
	h.methods[name] = fn
	h.mu.Unlock()
}

// HasMethod reports whether name is bound.
func (h *Handler) HasMethod(name string) bool {
	_, ok := h.lookup(name)
	return ok
}

// RegisteredMethods returns the bound method names in sorted order.
func (h *Handler) RegisteredMethods() []string {
	h.mu.RLock()
	names := make([]string, 0, len(h.methods))
	for name := range h.methods {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (h *Handler) lookup(name string) (MethodHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.methods[name]
	return fn, ok
}

// ServeHTTP implements http.Handler. Notifications are executed but never
// answered; a request made only of notifications gets 204.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, rpcErr := readBody(w, r)
	if rpcErr != nil {
		writeJSON(w, errorResponse(nil, rpcErr))
		return
	}

	requests, batch, rpcErr := decodeRequests(body)
	if rpcErr != nil {
		writeJSON(w, errorResponse(nil, rpcErr))
		return
	}

	responses := h.dispatch(r.Context(), requests)
	switch {
	case len(responses) == 0:
		w.WriteHeader(http.StatusNoContent)
	case batch:
		writeJSON(w, responses)
	default:
		writeJSON(w, responses[0])
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, *Error) {
	if r.Method != http.MethodPost {
		return nil, NewError(InvalidRequest, "Method not allowed", "use POST")
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			return nil, NewError(InvalidRequest, "Invalid content type", "use application/json")
		}
	}

	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return nil, ErrParseError("failed to read request body")
	}
	if len(body) == 0 {
		return nil, ErrInvalidRequest("empty request body")
	}
	return body, nil
}

// decodeRequests accepts a single request object or a batch array.
func decodeRequests(body []byte) (requests []Request, batch bool, rpcErr *Error) {
	if body[0] != '[' {
		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, false, ErrParseError(err.Error())
		}
		return []Request{req}, false, nil
	}

	var reqs BatchRequest
	if err := json.Unmarshal(body, &reqs); err != nil {
		return nil, true, ErrParseError(err.Error())
	}
	switch {
	case len(reqs) == 0:
		return nil, true, ErrInvalidRequest("empty batch")
	case len(reqs) > MaxBatchSize:
		return nil, true, ErrInvalidRequest("batch exceeds 100 calls")
	}
	return reqs, true, nil
}

// dispatch runs every request and returns the responses of those that
// carry an id, in request order. Mutating calls are still serialized by
// the executor.
func (h *Handler) dispatch(ctx context.Context, requests []Request) []Response {
	out := make([]*Response, len(requests))
	if len(requests) == 1 {
		out[0] = h.call(ctx, &requests[0])
	} else {
		var g errgroup.Group
		g.SetLimit(h.parallel)
		for i := range requests {
			g.Go(func() error {
				out[i] = h.call(ctx, &requests[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	responses := make([]Response, 0, len(out))
	for i, resp := range out {
		if requests[i].ID != nil {
			responses = append(responses, *resp)
		}
	}
	return responses
}

func (h *Handler) call(ctx context.Context, req *Request) *Response {
	if err := req.Validate(); err != nil {
		return errorResponse(req.ID, err)
	}
	fn, ok := h.lookup(req.Method)
	if !ok {
		h.observe(req.Method, MethodNotFound)
		return errorResponse(req.ID, ErrMethodNotFound(req.Method))
	}

	reqID := uuid.NewString()
	log := h.logger.With(slog.String("method", req.Method), slog.String("rpc_request_id", reqID))
	start := time.Now()

	result, rpcErr := fn(context.WithValue(ctx, requestIDKey{}, reqID), req.Params)
	if rpcErr != nil {
		log.Warn("RPC call failed",
			slog.Int("error_code", rpcErr.Code),
			slog.String("error_message", rpcErr.Message),
			slog.Duration("duration", time.Since(start)))
		h.observe(req.Method, rpcErr.Code)
		return errorResponse(req.ID, rpcErr)
	}

	log.Debug("RPC call served", slog.Duration("duration", time.Since(start)))
	h.observe(req.Method, 0)
	return &Response{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func (h *Handler) observe(method string, code int) {
	if h.observer != nil {
		h.observer(method, code)
	}
}

func errorResponse(id interface{}, err *Error) *Response {
	return &Response{JSONRPC: "2.0", Error: err, ID: id}
}

// writeJSON answers with 200; JSON-RPC errors travel in the body.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
