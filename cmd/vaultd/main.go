package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"stakevault/cmd/internal/passphrase"
	"stakevault/config"
	"stakevault/core"
	"stakevault/core/genesis"
	"stakevault/crypto"
	"stakevault/export"
	"stakevault/indexer"
	"stakevault/observability/logging"
	telemetry "stakevault/observability/otel"
	"stakevault/rpc"
	"stakevault/storage"
)

const (
	serviceName       = "vaultd"
	operatorPassEnv   = "VAULT_OPERATOR_PASS"
	genesisPathEnv    = "VAULT_GENESIS"
	stateDirName      = "state"
	idempotencyDBName = "idempotency.db"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a YAML genesis document (overrides VAULT_GENESIS and config GenesisFile)")
	allowMigrateFlag := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	if err := run(*configFile, *genesisFlag, *allowMigrateFlag); err != nil {
		fmt.Fprintf(os.Stderr, "vaultd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, genesisFlag string, allowMigrate bool) error {
	passSource := passphrase.NewSource(operatorPassEnv, "operator keystore")
	cfg, err := config.Load(configFile, config.WithKeystorePassphraseSource(passSource.Get))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.SetupWithOptions(serviceName, cfg.Environment, cfg.LoggingOptions())
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryCfg := cfg.TelemetryConfig(serviceName)
	shutdownTelemetry, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	if telemetryCfg.Traces || telemetryCfg.Metrics {
		logger.Info("telemetry enabled",
			slog.String("endpoint", telemetryCfg.Endpoint),
			logging.MaskField("headers", cfg.Telemetry.Headers))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	operator, err := crypto.LoadFromKeystore(cfg.OperatorKeystorePath, "")
	if err != nil {
		pass, passErr := passSource.Get()
		if passErr != nil {
			return fmt.Errorf("operator keystore: %w", passErr)
		}
		if operator, err = crypto.LoadFromKeystore(cfg.OperatorKeystorePath, pass); err != nil {
			return fmt.Errorf("operator keystore: %w", err)
		}
	}
	operatorAddr := operator.PubKey().Address()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, stateDirName))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	node, err := core.NewNode(db,
		core.WithLogger(logger),
		core.WithQuota(cfg.NodeQuota()),
		core.WithAllowMigrate(allowMigrate || cfg.AllowMigrate),
		core.WithMetrics(),
	)
	if err != nil {
		db.Close()
		return fmt.Errorf("create node: %w", err)
	}
	defer node.Close()

	if err := ensureGenesis(node, genesisFlag, cfg.GenesisFile, os.LookupEnv, operatorAddr, logger); err != nil {
		return err
	}
	owner, err := node.Owner()
	if err != nil {
		return fmt.Errorf("read owner: %w", err)
	}
	logger.Info("vault ready",
		slog.String("operator", operatorAddr.String()),
		slog.String("owner", owner.String()),
		slog.Bool("operator_is_owner", owner.Equal(operatorAddr)))

	serverCfg := rpc.ServerConfig{
		RateLimit: cfg.RateLimit.RequestsPerSecond,
		Burst:     cfg.RateLimit.Burst,
		Logger:    logger,
		Auth: rpc.AuthConfig{
			Enabled:               cfg.Auth.Enabled,
			Issuer:                cfg.Auth.Issuer,
			Audience:              cfg.Auth.Audience,
			AllowAnonymousQueries: cfg.Auth.AllowAnonymousQueries,
			ClockSkew:             time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
		},
	}
	if cfg.Auth.Enabled {
		secret, err := cfg.Auth.JWTSecret()
		if err != nil {
			return err
		}
		serverCfg.Auth.Secret = secret
	} else {
		logger.Warn("authentication disabled; sender is taken from the " + rpc.SenderHeader + " header")
	}

	idemPath := cfg.Idempotency.Path
	if idemPath == "" {
		idemPath = idempotencyDBName
	}
	idem, err := rpc.OpenIdempotencyStore(cfg.ResolvePath(idemPath), cfg.IdempotencyTTL())
	if err != nil {
		return fmt.Errorf("open idempotency store: %w", err)
	}
	defer idem.Close()
	serverCfg.Idempotency = idem

	if cfg.Indexer.Driver != "" {
		gdb, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return err
		}
		store, err := indexer.New(gdb, logger)
		if err != nil {
			return err
		}
		receipts, cancel := node.Subscribe(1024)
		defer cancel()
		go store.Run(ctx, receipts)
		serverCfg.Index = store
		logger.Info("receipt indexer enabled",
			slog.String("driver", cfg.Indexer.Driver),
			logging.MaskField("dsn", cfg.Indexer.DSN))
	}

	if cfg.Export.Dir != "" {
		scheduler := export.NewScheduler(node, cfg.ResolvePath(cfg.Export.Dir), cfg.ExportInterval(), logger)
		go scheduler.Start(ctx)
		serverCfg.Exporter = scheduler
	}

	go runTicker(ctx, node, cfg.TickInterval(), logger)
	go pruneIdempotency(ctx, idem, logger)

	server := rpc.NewServer(node, serverCfg)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.RPCAddress) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return server.Shutdown(context.Background())
	}
}

// ensureGenesis applies the genesis document to an empty store. An already
// initialised store ignores it. A document without an owner hands the vault
// to the operator key.
func ensureGenesis(node *core.Node, flagPath, cfgPath string, lookup func(string) (string, bool), operator crypto.Address, logger *slog.Logger) error {
	initialized, err := node.Initialized()
	if err != nil {
		return fmt.Errorf("inspect state: %w", err)
	}
	if initialized {
		return nil
	}
	path, err := resolveGenesisPath(flagPath, cfgPath, lookup)
	if err != nil {
		return err
	}
	spec, err := genesis.LoadGenesisSpec(path, genesis.WithDefaultOwner(operator))
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	root, err := node.InitGenesis(spec)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("genesis applied", slog.String("path", path), slog.String("state_root", fmt.Sprintf("%x", root)))
	return nil
}

// resolveGenesisPath prefers the flag, then the environment, then config.
func resolveGenesisPath(flagPath, cfgPath string, lookup func(string) (string, bool)) (string, error) {
	if trimmed := strings.TrimSpace(flagPath); trimmed != "" {
		return trimmed, nil
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), nil
		}
	}
	if trimmed := strings.TrimSpace(cfgPath); trimmed != "" {
		return trimmed, nil
	}
	return "", errors.New("genesis document required for an empty store; pass --genesis, set " + genesisPathEnv + " or GenesisFile")
}

type ticker interface {
	Tick(ctx context.Context) (int, error)
}

// runTicker releases matured unbonding between instructions.
func runTicker(ctx context.Context, node ticker, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := node.Tick(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("unbonding tick failed", slog.Any("error", err))
			}
		}
	}
}

func pruneIdempotency(ctx context.Context, store *rpc.IdempotencyStore, logger *slog.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if removed, err := store.Prune(now); err != nil {
				logger.Warn("idempotency prune failed", slog.Any("error", err))
			} else if removed > 0 {
				logger.Debug("idempotency entries pruned", slog.Int("removed", removed))
			}
		}
	}
}
