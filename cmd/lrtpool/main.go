package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// A missing .env is fine; real env vars and flags still apply.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "lrtpool",
		Short:        "LRT liquidity pool operations",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file path")
	pf.String("network", "", "network label recorded in logs")
	pf.String("rpc", "", "RPC URL for remote inspection")
	pf.String("program-id", "", "pool program id")
	pf.String("restaking-program", "", "restaking program id")
	pf.String("restaking-pool", "", "restaking pool account")
	pf.String("restaking-mint", "", "intermediate mint issued by the restaking pool")
	pf.String("avs-program", "", "AVS program id")
	pf.String("store", "", "account store (memory, postgres)")
	pf.String("state-file", "", "snapshot file for the memory store")
	pf.String("pg-dsn", "", "Postgres DSN for the postgres store")
	pf.String("journal", "", "operation journal JSONL path (empty disables)")
	pf.String("keypair", "", "signer keypair file")
	pf.String("conversion", "", "conversion policy (identity, ratio)")
	pf.Uint64("conversion-num", 1, "ratio policy numerator")
	pf.Uint64("conversion-den", 1, "ratio policy denominator")
	pf.Int("max-retries", 5, "maximum RPC retry attempts")
	pf.Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newInitCmd(),
		newDepositCmd(),
		newWithdrawCmd(),
		newDelegateCmd("delegate", "Delegate pool funds into an AVS"),
		newDelegateCmd("undelegate", "Return pool funds from an AVS"),
		newTransferAuthorityCmd(),
		newDeriveCmd(),
		newInspectCmd(),
		newPoolsCmd(),
		newJournalCmd(),
		newAssetCmd(),
		newAVSCmd(),
		newRestakingCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
