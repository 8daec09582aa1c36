package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"offerkiosk/core/types"
	"offerkiosk/indexer"
	"offerkiosk/native/kiosk"
	"offerkiosk/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	limiterIdleTTL  = 10 * time.Minute
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeNotFound       = -32041
	codeConflict       = -32042
	codeInsufficient   = -32043
	codePaused         = -32044
)

// Engine is the kiosk engine surface the server drives.
type Engine interface {
	CreateKiosk(owner [20]byte, salt [32]byte) (*kiosk.Kiosk, *kiosk.OwnerCap, error)
	SetOwner(capID [32]byte, owner [20]byte) error
	PlaceOffer(capID, assetID [32]byte, amount *big.Int) error
	CancelOffer(capID, assetID [32]byte) (*big.Int, error)
	AcceptOffer(kioskID [32]byte, fulfiller [20]byte, assetID [32]byte) (*big.Int, error)
	WithdrawItem(capID, assetID [32]byte) error
	DepositProfits(capID [32]byte, amount *big.Int) error
	Withdraw(capID [32]byte, amount *big.Int) (*big.Int, error)
	Close(capID [32]byte) (*big.Int, error)
	Kiosk(id [32]byte) (*kiosk.Kiosk, error)
	Capability(capID [32]byte) (*kiosk.OwnerCap, error)
	OwnerCapability(kioskID [32]byte) (*kiosk.OwnerCap, error)
	Balance(addr [20]byte) (*big.Int, error)
	Mint(addr [20]byte, amount *big.Int) error
	MintAsset(holder [20]byte, kind string, data []byte, salt [32]byte) (*types.AssetRecord, error)
	TransferAsset(from, to [20]byte, assetID [32]byte) error
	Asset(id [32]byte) (*types.AssetRecord, error)
}

// EventIndex serves kiosk_listEvents.
type EventIndex interface {
	List(ctx context.Context, q indexer.Query) ([]indexer.EventRecord, error)
}

// ServerConfig carries the RPC server's security and throttling settings.
type ServerConfig struct {
	OperatorToken     string
	CapabilitySecret  []byte
	CapabilityTTL     time.Duration
	RateLimit         rate.Limit
	RateBurst         int
	TrustProxyHeaders bool
	// SignatureSkew bounds how far in the future a signed request deadline
	// may lie.
	SignatureSkew time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Server struct {
	engine  Engine
	index   EventIndex
	stream  EventStream
	tokens  *CapabilityTokens
	cfg     ServerConfig
	logger  *slog.Logger
	methods map[string]method

	mu       sync.Mutex
	limiters map[string]*limiterEntry
	nowFn    func() time.Time
}

// NewServer builds a JSON-RPC server around engine. index may be nil, in
// which case kiosk_listEvents reports an internal error.
func NewServer(engine Engine, index EventIndex, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("rpc: engine required")
	}
	tokens, err := NewCapabilityTokens(cfg.CapabilitySecret, cfg.CapabilityTTL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SignatureSkew <= 0 {
		cfg.SignatureSkew = 10 * time.Minute
	}
	s := &Server{
		engine:   engine,
		index:    index,
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger,
		limiters: make(map[string]*limiterEntry),
		nowFn:    time.Now,
	}
	s.methods = s.routes()
	return s, nil
}

func (s *Server) now() time.Time {
	if s.nowFn == nil {
		return time.Now()
	}
	return s.nowFn()
}

// Router mounts the JSON-RPC endpoint together with health, metrics and the
// live event stream.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/ws/events", s.handleEventsWS)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id,omitempty"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	status int
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

func newError(status, code int, message string, data interface{}) *RPCError {
	return &RPCError{Code: code, Message: message, Data: data, status: status}
}

func invalidParams(message string, data interface{}) *RPCError {
	return newError(http.StatusBadRequest, codeInvalidParams, message, data)
}

func requestID(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle decodes one JSON-RPC request, applies throttling and authentication,
// and dispatches it.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")
	reqLog := s.logger.With("requestId", uuid.NewString(), "remote", s.clientSource(r))

	if !s.allowSource(s.clientSource(r), s.now()) {
		observability.RPC().RecordThrottle("rate_limit")
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	id := requestID(req.ID)
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, id, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, id, codeInvalidRequest, "method required", nil)
		return
	}

	m, ok := s.methods[req.Method]
	if !ok {
		observability.RPC().Observe("unknown", codeMethodNotFound, time.Since(start))
		writeError(w, http.StatusNotFound, id, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}

	call := &rpcCall{req: req, r: r}
	var rpcErr *RPCError
	switch m.auth {
	case authOperator:
		rpcErr = s.requireOperator(r)
	case authCapability:
		call.capID, rpcErr = s.requireCapability(r)
	}
	var result interface{}
	if rpcErr == nil {
		result, rpcErr = m.handler(call)
	}
	if rpcErr != nil {
		observability.RPC().Observe(req.Method, rpcErr.Code, time.Since(start))
		level := slog.LevelDebug
		if rpcErr.Code == codeServerError {
			level = slog.LevelError
		}
		reqLog.Log(r.Context(), level, "rpc call failed", "method", req.Method, "code", rpcErr.Code, "error", rpcErr.Message)
		writeError(w, rpcErr.status, id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	observability.RPC().Observe(req.Method, 0, time.Since(start))
	writeResult(w, id, result)
}

// requireOperator guards admin methods with the static operator token.
func (s *Server) requireOperator(r *http.Request) *RPCError {
	if s.cfg.OperatorToken == "" {
		return newError(http.StatusUnauthorized, codeUnauthorized, "RPC operator token not configured", nil)
	}
	token, rpcErr := bearerToken(r)
	if rpcErr != nil {
		return rpcErr
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.OperatorToken)) != 1 {
		return newError(http.StatusUnauthorized, codeUnauthorized, "invalid RPC credentials", nil)
	}
	return nil
}

// requireCapability resolves the bearer capability token into a capability id.
func (s *Server) requireCapability(r *http.Request) ([32]byte, *RPCError) {
	token, rpcErr := bearerToken(r)
	if rpcErr != nil {
		return [32]byte{}, rpcErr
	}
	claims, err := s.tokens.Verify(token, s.now())
	if err != nil {
		return [32]byte{}, newError(http.StatusUnauthorized, codeUnauthorized, "invalid capability token", err.Error())
	}
	return claims.CapID, nil
}

func bearerToken(r *http.Request) (string, *RPCError) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", newError(http.StatusUnauthorized, codeUnauthorized, "missing Authorization header", nil)
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", newError(http.StatusUnauthorized, codeUnauthorized, "Authorization header must use Bearer scheme", nil)
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", newError(http.StatusUnauthorized, codeUnauthorized, "missing bearer token", nil)
	}
	return token, nil
}

// allowSource applies the per-source token bucket. A zero limit disables
// throttling.
func (s *Server) allowSource(source string, now time.Time) bool {
	if s.cfg.RateLimit <= 0 {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(s.limiters, key)
		}
	}
	entry, ok := s.limiters[source]
	if !ok {
		burst := s.cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(s.cfg.RateLimit, burst)}
		s.limiters[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (s *Server) clientSource(r *http.Request) string {
	if s.cfg.TrustProxyHeaders {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			if candidate := strings.TrimSpace(parts[0]); candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
