package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"offerkiosk/config"
	"offerkiosk/core/events"
	"offerkiosk/core/state"
	"offerkiosk/core/types"
	"offerkiosk/crypto"
	"offerkiosk/indexer"
	nativecommon "offerkiosk/native/common"
	"offerkiosk/native/kiosk"
	"offerkiosk/observability"
	"offerkiosk/observability/logging"
	"offerkiosk/observability/otel"
	"offerkiosk/rpc"
	"offerkiosk/storage"
)

const shutdownTimeout = 10 * time.Second

type node struct {
	cfg         *config.Config
	logger      *slog.Logger
	db          storage.Database
	state       *state.Manager
	engine      *kiosk.Engine
	index       *indexer.Sink
	broadcaster *events.Broadcaster
	server      *rpc.Server
}

// logEmitter writes every committed event to the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok || carrier.Event() == nil {
		return
	}
	wire := carrier.Event()
	l.logger.Info("kiosk event", "type", wire.Type, "kioskId", wire.Attributes["kioskId"], "assetId", wire.Attributes["assetId"])
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	if cfg.StorageBackend == config.BackendMemory {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	switch cfg.StorageBackend {
	case config.BackendBolt:
		db, err := storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.bolt"))
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.BackendLevelDB:
		db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}

func newNode(cfg *config.Config) (*node, error) {
	logger := logging.Setup("kioskd", logging.Options{
		Env:        cfg.Log.Env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	n := &node{cfg: cfg, logger: logger, db: db, state: state.NewManager(db)}

	if err := n.applySeed(); err != nil {
		n.Close()
		return nil, err
	}

	n.index, err = indexer.Open(cfg.IndexerPath, logger)
	if err != nil {
		n.Close()
		return nil, err
	}
	n.broadcaster = events.NewBroadcaster(cfg.EventStreamBuffer)

	n.engine = kiosk.NewEngine()
	n.engine.SetState(n.state)
	n.engine.SetEmitter(events.Fanout{n.index, observability.Kiosk(), n.broadcaster, logEmitter{logger: logger}})
	pauses := nativecommon.NewStaticPauses()
	pauses.Set("kiosk", cfg.Pauses.Kiosk)
	n.engine.SetPauses(pauses)

	n.server, err = rpc.NewServer(n.engine, n.index, rpc.ServerConfig{
		OperatorToken:     cfg.RPCToken,
		CapabilitySecret:  []byte(cfg.CapabilitySecret),
		CapabilityTTL:     time.Duration(cfg.CapabilityTokenTTLSec) * time.Second,
		RateLimit:         rate.Limit(cfg.RateLimit.PerSecond),
		RateBurst:         cfg.RateLimit.Burst,
		TrustProxyHeaders: cfg.RPCTrustProxyHeaders,
	}, logger)
	if err != nil {
		n.Close()
		return nil, err
	}
	n.server.SetEventStream(n.broadcaster)
	logger.Info("node configured",
		"rpcAddress", cfg.RPCAddress,
		"backend", cfg.StorageBackend,
		"indexer", indexerTarget(cfg.IndexerPath),
		logging.MaskField("rpcToken", cfg.RPCToken),
		logging.MaskField("capabilitySecret", cfg.CapabilitySecret),
	)
	if cfg.RPCToken == "" {
		logger.Warn("operator token not configured; bank_mint and asset_mint are disabled")
	}
	return n, nil
}

// applySeed loads the configured seed file in one atomic commit, once per
// data directory.
func (n *node) applySeed() error {
	path := strings.TrimSpace(n.cfg.SeedFile)
	if path == "" {
		return nil
	}
	applied, err := n.state.SeedApplied()
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if applied {
		n.logger.Info("seed already applied", "file", path)
		return nil
	}
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	if err := seedState(n.state, seed); err != nil {
		n.state.Discard()
		return fmt.Errorf("seed %s: %w", path, err)
	}
	if err := n.state.Commit(); err != nil {
		return err
	}
	n.logger.Info("seed applied", "file", path, "accounts", len(seed.Accounts), "assets", len(seed.Assets))
	return nil
}

func seedState(st *state.Manager, seed *config.Seed) error {
	for i, entry := range seed.Accounts {
		addr, err := crypto.ParseKioskAddress(entry.Address)
		if err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
		amount, err := entry.Amount()
		if err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
		acc, err := st.GetAccount(addr[:])
		if err != nil {
			return err
		}
		acc = acc.Clone()
		acc.Balance.Add(acc.Balance, amount)
		if err := st.PutAccount(addr[:], acc); err != nil {
			return err
		}
	}
	for i, entry := range seed.Assets {
		holder, err := crypto.ParseKioskAddress(entry.Holder)
		if err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
		data, err := decodeHex(entry.Data)
		if err != nil {
			return fmt.Errorf("assets[%d]: data: %w", i, err)
		}
		rawSalt, err := decodeHex(entry.Salt)
		if err != nil || len(rawSalt) > 32 {
			return fmt.Errorf("assets[%d]: invalid salt %q", i, entry.Salt)
		}
		var salt [32]byte
		copy(salt[32-len(rawSalt):], rawSalt)
		kind := kiosk.NormalizeAssetKind(entry.Kind)
		id := kiosk.DeriveAssetID(kind, data, salt)
		if _, exists, err := st.AssetGet(id); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("assets[%d]: %w", i, kiosk.ErrAssetExists)
		}
		if err := st.AssetPut(&types.AssetRecord{ID: id, Kind: kind, Data: data, Holder: holder}); err != nil {
			return err
		}
	}
	return st.MarkSeedApplied()
}

// indexerTarget hides credentials embedded in a postgres DSN.
func indexerTarget(dsn string) string {
	if strings.Contains(dsn, "://") {
		return logging.RedactedValue
	}
	return dsn
}

func decodeHex(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return []byte{}, nil
	}
	return hex.DecodeString(trimmed)
}

func (n *node) handler() http.Handler {
	handler := n.server.Router()
	if n.cfg.Telemetry.Traces || n.cfg.Telemetry.Metrics {
		handler = otel.Middleware(handler, "kiosk-rpc")
	}
	return handler
}

// Serve runs the RPC server until ctx is cancelled, then shuts down
// gracefully.
func (n *node) Serve(ctx context.Context) error {
	shutdownTelemetry, err := otel.Init(ctx, otel.Config{
		ServiceName: "kioskd",
		Environment: n.cfg.Log.Env,
		Endpoint:    n.cfg.Telemetry.Endpoint,
		Insecure:    n.cfg.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(n.cfg.Telemetry.Headers),
		Traces:      n.cfg.Telemetry.Traces,
		Metrics:     n.cfg.Telemetry.Metrics,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			n.logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	ln, err := net.Listen("tcp", n.cfg.RPCAddress)
	if err != nil {
		return err
	}
	return n.serveListener(ctx, ln)
}

func (n *node) serveListener(ctx context.Context, ln net.Listener) error {
	if n.cfg.RPCMaxConnections > 0 {
		ln = netutil.LimitListener(ln, n.cfg.RPCMaxConnections)
	}
	srv := &http.Server{
		Handler:           n.handler(),
		ReadHeaderTimeout: time.Duration(n.cfg.RPCReadHeaderTimeout) * time.Second,
		ReadTimeout:       time.Duration(n.cfg.RPCReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(n.cfg.RPCWriteTimeout) * time.Second,
		IdleTimeout:       time.Duration(n.cfg.RPCIdleTimeout) * time.Second,
		ErrorLog:          slog.NewLogLogger(n.logger.Handler(), slog.LevelWarn),
	}
	errCh := make(chan error, 1)
	go func() {
		n.logger.Info("rpc server listening", "addr", ln.Addr().String(), "backend", n.cfg.StorageBackend)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	n.logger.Info("shutting down rpc server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the index and the state database.
func (n *node) Close() {
	if n.index != nil {
		if err := n.index.Close(); err != nil {
			n.logger.Warn("close event index", "error", err)
		}
	}
	if n.db != nil {
		n.db.Close()
	}
}
