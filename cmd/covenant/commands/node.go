package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/covenantdao/covenant/pkg/config"
	"github.com/covenantdao/covenant/pkg/engine"
	"github.com/covenantdao/covenant/pkg/guard"
	"github.com/covenantdao/covenant/pkg/ledger"
	"github.com/covenantdao/covenant/pkg/telemetry"
)

// node is a fully wired engine opened from the node configuration.
type node struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	store  engine.Store
	guard  *guard.Guard
	engine *engine.Engine
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(log.Logger).Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}
	return cfg, nil
}

// openNode loads the configuration and wires telemetry, store, guard and engine.
func openNode(ctx context.Context) (*node, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	telCfg := cfg.Telemetry.Build(buildVersion)
	telCfg.Entity = cfg.Entity.Address
	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	n := &node{cfg: cfg, tel: tel}

	if err := n.wire(ctx); err != nil {
		n.Close(ctx)
		return nil, err
	}
	return n, nil
}

func (n *node) wire(ctx context.Context) error {
	engCfg, err := n.cfg.Entity.Engine()
	if err != nil {
		return err
	}
	svc, verifier, err := n.cfg.Entity.Attestation()
	if err != nil {
		return err
	}

	n.store, err = n.cfg.Store.Open(ctx)
	if err != nil {
		return err
	}

	logger := n.tel.Logger.Zerolog()
	n.guard, err = n.cfg.Guard.Build(ctx, logger)
	if err != nil {
		return err
	}

	opts := append(n.tel.EngineOptions(),
		engine.WithLedger(ledger.NewMemoryLedger(logger)),
		engine.WithHasher(svc),
		engine.WithVerifier(verifier),
	)
	if n.guard != nil {
		opts = append(opts, engine.WithGuard(n.guard))
	}

	n.engine, err = engine.New(engCfg, n.store, opts...)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	n.tel.Logger.Zerolog().Debug().
		Str("entity", string(engCfg.EntityAddress)).
		Str("store", n.cfg.Store.Driver).
		Bool("guard", n.guard != nil).
		Msg("Node opened")
	return nil
}

// Close releases the guard watcher, the store and telemetry.
func (n *node) Close(ctx context.Context) error {
	var errs []error
	if n.guard != nil {
		errs = append(errs, n.guard.Close())
	}
	if n.store != nil {
		errs = append(errs, n.store.Close())
	}
	errs = append(errs, n.tel.Shutdown(ctx))
	return errors.Join(errs...)
}

// instrument runs fn inside a command span carrying the telemetry context.
func (n *node) instrument(ctx context.Context, command string, fn func(ctx context.Context, logger *telemetry.Logger) error) error {
	op := telemetry.StartOperation(n.tel.WithContext(ctx), "command."+command,
		telemetry.AttrCommand.String(command))
	err := fn(op.Ctx, op.Logger)
	op.End(err)
	return err
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError adds the engine error class and code to a failed command.
func describeError(err error) error {
	if err == nil {
		return nil
	}
	if class := engine.ClassOf(err); class != "" {
		return fmt.Errorf("%w (class=%s code=%s)", err, class, engine.CodeOf(err))
	}
	return err
}
