package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/backend"
	"github.com/roach88/hyperdb/internal/backend/badger"
	"github.com/roach88/hyperdb/internal/backend/memory"
	"github.com/roach88/hyperdb/internal/backend/sqlite"
	"github.com/roach88/hyperdb/internal/config"
	"github.com/roach88/hyperdb/internal/loader"
	"github.com/roach88/hyperdb/internal/store"
)

// ErrCodeGeneric is reported for failures that carry no more specific code.
const ErrCodeGeneric = "E001"

// session is an opened store and everything built around it for one
// command.
type session struct {
	cfg      *config.Config
	backend  backend.Backend
	store    *store.Store
	registry *prometheus.Registry
	logger   *slog.Logger
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.LoadFile(opts.ConfigPath); err != nil {
			return nil, err
		}
	}

	if opts.Backend != "" {
		cfg.Backend.Kind = opts.Backend
	}
	if opts.Database != "" {
		cfg.Backend.Path = opts.Database
		if opts.Backend == "" && cfg.Backend.Kind == config.BackendMemory {
			cfg.Backend.Kind = config.BackendSQLite
		}
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSession opens the configured backend and builds a store over it.
// Persistent backends are reindexed so queries see previously committed
// atoms.
func openSession(ctx context.Context, opts *RootOptions, logOut io.Writer) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger := cfg.NewLogger(logOut)

	b, err := openBackend(cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open backend", err)
	}

	registry := prometheus.NewRegistry()
	st := store.New(b, cfg.StoreOptions(logger, store.NewMetrics(registry)))
	if cfg.Backend.Kind != config.BackendMemory {
		if err := st.Reindex(ctx); err != nil {
			b.Close()
			return nil, WrapExitError(ExitCommandError, "failed to rebuild indexes", err)
		}
	}
	logger.Debug("store ready", "backend", cfg.Backend.Kind, "path", cfg.Backend.Path)

	return &session{cfg: cfg, backend: b, store: st, registry: registry, logger: logger}, nil
}

func openBackend(cfg *config.Config, logger *slog.Logger) (backend.Backend, error) {
	switch cfg.Backend.Kind {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLite:
		return sqlite.Open(sqlite.Config{Path: cfg.Backend.Path, SyncWrites: cfg.Backend.SyncWrites, Logger: logger})
	case config.BackendBadger:
		return badger.Open(badger.Config{Path: cfg.Backend.Path, SyncWrites: cfg.Backend.SyncWrites, Logger: logger})
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}
}

func (s *session) Close() error {
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend", "error", err)
		return err
	}
	return nil
}

// fail reports err through the formatter and returns it as an ExitError.
// Lookup misses and rejected input exit with ExitFailure; everything else
// is a command error.
func fail(f *OutputFormatter, message string, err error) error {
	exit := ExitCommandError
	if atom.IsNotFound(err) || atom.IsInvalidInput(err) {
		exit = ExitFailure
	}

	code := string(atom.CodeOf(err))
	var le *loader.LoadError
	if errors.As(err, &le) {
		code = le.Code
	}
	if code == "" {
		code = ErrCodeGeneric
	}

	_ = f.Error(code, err.Error(), nil)
	return WrapExitError(exit, message, err)
}

// withSession opens a session, runs fn and closes the session. Open
// failures are reported through f.
func withSession(ctx context.Context, opts *RootOptions, f *OutputFormatter, fn func(*session) error) error {
	s, err := openSession(ctx, opts, f.GetErrWriter())
	if err != nil {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	defer s.Close()
	return fn(s)
}
