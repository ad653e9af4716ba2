package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lrtpool/internal/config"
	"lrtpool/internal/convert"
	"lrtpool/internal/custodian/simulated"
	"lrtpool/internal/host"
	"lrtpool/internal/host/memstore"
	"lrtpool/internal/pipeline"
	"lrtpool/internal/storage"
	"lrtpool/internal/storage/postgres"
)

// session is the local environment a command runs against: a host over the
// configured store with the simulated custodian programs registered at
// their configured ids.
type session struct {
	ctx      context.Context
	cfg      config.Config
	logger   *zap.Logger
	keys     pipeline.Config
	host     *host.Host
	pipeline *pipeline.Pipeline
	signer   solana.PublicKey

	stop     context.CancelFunc
	mem      *memstore.Store
	snapshot *memstore.SnapshotFile
	pg       *postgres.Store
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger.With(zap.String("network", cfg.Network)), nil
}

func serviceKeys(cfg config.Config) (pipeline.Config, error) {
	var keys pipeline.Config
	var err error
	if keys.ProgramID, err = pipeline.ParseKey(cfg.ProgramID); err != nil {
		return keys, fmt.Errorf("program-id: %w", err)
	}
	if keys.RestakingProgram, err = pipeline.ParseOptionalKey(cfg.RestakingProgram); err != nil {
		return keys, fmt.Errorf("restaking-program: %w", err)
	}
	if keys.RestakingPool, err = pipeline.ParseOptionalKey(cfg.RestakingPool); err != nil {
		return keys, fmt.Errorf("restaking-pool: %w", err)
	}
	if keys.RestakingMint, err = pipeline.ParseOptionalKey(cfg.RestakingMint); err != nil {
		return keys, fmt.Errorf("restaking-mint: %w", err)
	}
	if keys.AVSProgram, err = pipeline.ParseOptionalKey(cfg.AVSProgram); err != nil {
		return keys, fmt.Errorf("avs-program: %w", err)
	}
	return keys, nil
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	keys, err := serviceKeys(cfg)
	if err != nil {
		return nil, err
	}
	policy, err := convert.FromConfig(cfg.Conversion, cfg.ConversionNum, cfg.ConversionDen)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	s := &session{ctx: ctx, cfg: cfg, logger: logger, keys: keys, stop: stop}

	var store host.Store
	switch cfg.Store {
	case "postgres":
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			stop()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			stop()
			return nil, err
		}
		s.pg = pg
		store = pg
	default:
		s.mem = memstore.New()
		s.snapshot = memstore.NewSnapshotFile(cfg.StateFile)
		if _, err := s.snapshot.Load(s.mem); err != nil {
			s.snapshot.Close()
			stop()
			return nil, err
		}
		store = s.mem
	}

	s.host = host.New(store, logger)
	if !keys.RestakingProgram.IsZero() {
		s.host.Register(keys.RestakingProgram, simulated.Restaking{})
	}
	if !keys.AVSProgram.IsZero() {
		s.host.Register(keys.AVSProgram, simulated.AVS{})
	}

	var journal storage.Journal
	if cfg.Journal != "" {
		journal = storage.NewJsonlJournal(cfg.Journal)
	}
	s.pipeline = pipeline.New(keys, s.host, nil, policy, journal, logger)

	if cfg.Keypair != "" {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.Keypair)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("load keypair: %w", err)
		}
		s.signer = key.PublicKey()
	}

	logger.Debug("session open",
		zap.String("store", cfg.Store),
		zap.Stringer("program", keys.ProgramID),
		zap.Stringer("signer", s.signer),
	)
	return s, nil
}

// commit persists the memory store after a successful command.
func (s *session) commit() error {
	if s.snapshot == nil {
		return nil
	}
	return s.snapshot.Save(s.mem)
}

func (s *session) close() {
	if s.pg != nil {
		s.pg.Close()
	}
	if s.snapshot != nil {
		if err := s.snapshot.Close(); err != nil {
			s.logger.Warn("release snapshot", zap.Error(err))
		}
	}
	_ = s.logger.Sync()
	s.stop()
}

func (s *session) lister() pipeline.AccountLister {
	if s.pg != nil {
		return s.pg
	}
	return s.mem
}

func (s *session) requireSigner() (solana.PublicKey, error) {
	if s.signer.IsZero() {
		return solana.PublicKey{}, fmt.Errorf("keypair is required")
	}
	return s.signer, nil
}

// run executes fn against an open session and saves the snapshot when fn
// succeeds.
func run(cmd *cobra.Command, fn func(s *session) (interface{}, error)) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	out, err := fn(s)
	if err != nil {
		return err
	}
	if err := s.commit(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func flagKey(cmd *cobra.Command, name string) (solana.PublicKey, error) {
	raw, _ := cmd.Flags().GetString(name)
	key, err := pipeline.ParseKey(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("--%s: %w", name, err)
	}
	return key, nil
}

func optionalFlagKey(cmd *cobra.Command, name string) (solana.PublicKey, error) {
	raw, _ := cmd.Flags().GetString(name)
	key, err := pipeline.ParseOptionalKey(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("--%s: %w", name, err)
	}
	return key, nil
}

// avsTargets merges --avs/--position-mint with configured avs-target
// entries of the form "<avs>:<position mint>".
func avsTargets(cmd *cobra.Command, cfg config.Config) ([]pipeline.AVSTarget, error) {
	var targets []pipeline.AVSTarget
	if cmd.Flags().Lookup("avs") != nil {
		avs, _ := cmd.Flags().GetString("avs")
		mint, _ := cmd.Flags().GetString("position-mint")
		t, err := pipeline.ParseTarget(avs, mint)
		if err != nil {
			return nil, err
		}
		if !t.AVS.IsZero() || !t.PositionMint.IsZero() {
			targets = append(targets, t)
		}
	}
	for _, entry := range cfg.KnownAVSTargets {
		avs, mint, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("avs-target %q: want <avs>:<position mint>", entry)
		}
		t, err := pipeline.ParseTarget(avs, mint)
		if err != nil {
			return nil, fmt.Errorf("avs-target %q: %w", entry, err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}
