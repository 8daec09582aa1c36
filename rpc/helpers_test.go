package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"offerkiosk/core/state"
	"offerkiosk/crypto"
	"offerkiosk/indexer"
	"offerkiosk/native/kiosk"
	"offerkiosk/storage"
)

const (
	testOperatorToken = "operator-token"
	testSecret        = "capability-secret-for-tests"
)

type testEnv struct {
	srv    *Server
	engine *kiosk.Engine
	index  *indexer.Sink
	now    time.Time
}

type testResponse struct {
	Status int
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func newTestEnv(t *testing.T, mutate func(*ServerConfig)) *testEnv {
	t.Helper()
	engine := kiosk.NewEngine()
	engine.SetState(state.NewManager(storage.NewMemDB()))
	sink, err := indexer.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	engine.SetEmitter(sink)

	cfg := ServerConfig{
		OperatorToken:    testOperatorToken,
		CapabilitySecret: []byte(testSecret),
		CapabilityTTL:    time.Hour,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(engine, sink, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	env := &testEnv{srv: srv, engine: engine, index: sink, now: time.Unix(1_700_000_000, 0)}
	srv.nowFn = func() time.Time { return env.now }
	return env
}

func (e *testEnv) call(t *testing.T, method string, params interface{}, bearer string) testResponse {
	t.Helper()
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return e.raw(t, body, bearer)
}

func (e *testEnv) raw(t *testing.T, body []byte, bearer string) testResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.RemoteAddr = "192.0.2.10:4000"
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	resp.Status = rec.Code
	return resp
}

func decodeResult(t *testing.T, resp testResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error")
	require.NoError(t, json.Unmarshal(resp.Result, out))
}

func requireCode(t *testing.T, resp testResponse, status, code int) {
	t.Helper()
	require.NotNil(t, resp.Error, "expected rpc error")
	require.Equal(t, code, resp.Error.Code, resp.Error.Message)
	require.Equal(t, status, resp.Status)
}

type actor struct {
	key  *crypto.PrivateKey
	addr [20]byte
}

func newActor(t *testing.T) actor {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return actor{key: key, addr: key.PubKey().Address().Array()}
}

func (a actor) bech32() string { return crypto.AddressFromArray(a.addr).String() }

func (a actor) sign(t *testing.T, digest [32]byte) string {
	t.Helper()
	sig, err := a.key.Sign(digest)
	require.NoError(t, err)
	return hexutil.Encode(sig)
}
