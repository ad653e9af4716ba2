package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lrtpool/internal/chain"
	"lrtpool/internal/config"
	"lrtpool/internal/pipeline"
	"lrtpool/internal/pool"
)

func assetFlags(cmd *cobra.Command) {
	cmd.Flags().String("input-mint", "", "input asset mint")
	cmd.Flags().String("output-mint", "", "output asset mint")
	cmd.Flags().String("intermediate-mint", "", "intermediate asset mint (three-asset pools)")
}

func assetKeys(cmd *cobra.Command) (input, output, intermediate solana.PublicKey, err error) {
	if input, err = flagKey(cmd, "input-mint"); err != nil {
		return
	}
	if output, err = flagKey(cmd, "output-mint"); err != nil {
		return
	}
	intermediate, err = optionalFlagKey(cmd, "intermediate-mint")
	return
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a pool for an asset tuple",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(s *session) (interface{}, error) {
				caller, err := s.requireSigner()
				if err != nil {
					return nil, err
				}
				input, output, intermediate, err := assetKeys(cmd)
				if err != nil {
					return nil, err
				}
				req := pipeline.InitRequest{
					Caller:           caller,
					InputMint:        input,
					OutputMint:       output,
					IntermediateMint: intermediate,
				}
				if path, _ := cmd.Flags().GetString("authority-keypair"); path != "" {
					key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
					if err != nil {
						return nil, fmt.Errorf("load authority keypair: %w", err)
					}
					req.DelegateAuthority = key.PublicKey()
					req.Cosigners = []solana.PublicKey{key.PublicKey()}
				}
				r, err := s.pipeline.Initialize(s.ctx, req)
				if err != nil {
					return nil, err
				}
				return s.pipeline.Inspect(s.ctx, r.Pool)
			})
		},
	}
	assetFlags(cmd)
	cmd.Flags().String("authority-keypair", "", "delegate authority keypair (defaults to --keypair)")
	return cmd
}

func newDepositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit input asset and receive output asset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(s *session) (interface{}, error) {
				caller, err := s.requireSigner()
				if err != nil {
					return nil, err
				}
				addr, err := flagKey(cmd, "pool")
				if err != nil {
					return nil, err
				}
				amount, _ := cmd.Flags().GetUint64("amount")
				r, err := s.pipeline.Deposit(s.ctx, pipeline.DepositRequest{Pool: addr, Caller: caller, Amount: amount})
				if err != nil {
					return nil, err
				}
				return receiptView(r), nil
			})
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().Uint64("amount", 0, "input amount in base units")
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Burn output asset and receive input asset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(s *session) (interface{}, error) {
				caller, err := s.requireSigner()
				if err != nil {
					return nil, err
				}
				addr, err := flagKey(cmd, "pool")
				if err != nil {
					return nil, err
				}
				amount, _ := cmd.Flags().GetUint64("amount")
				req := pipeline.WithdrawRequest{Pool: addr, Caller: caller, Amount: amount, Route: pipeline.PlainWithdraw{}}
				if undelegate, _ := cmd.Flags().GetBool("undelegate"); undelegate {
					avs, _ := cmd.Flags().GetString("avs")
					mint, _ := cmd.Flags().GetString("position-mint")
					target, err := pipeline.ParseTarget(avs, mint)
					if err != nil {
						return nil, err
					}
					req.Route = pipeline.DelegatedWithdraw{Target: target}
				}
				r, err := s.pipeline.Withdraw(s.ctx, req)
				if err != nil {
					return nil, err
				}
				return receiptView(r), nil
			})
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().Uint64("amount", 0, "output amount in base units")
	cmd.Flags().Bool("undelegate", false, "pull the amount back from an AVS first")
	cmd.Flags().String("avs", "", "AVS account for --undelegate")
	cmd.Flags().String("position-mint", "", "AVS position mint for --undelegate")
	return cmd
}

func newDelegateCmd(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(s *session) (interface{}, error) {
				caller, err := s.requireSigner()
				if err != nil {
					return nil, err
				}
				addr, err := flagKey(cmd, "pool")
				if err != nil {
					return nil, err
				}
				amount, _ := cmd.Flags().GetUint64("amount")
				avs, _ := cmd.Flags().GetString("avs")
				mint, _ := cmd.Flags().GetString("position-mint")
				target, err := pipeline.ParseTarget(avs, mint)
				if err != nil {
					return nil, err
				}
				req := pipeline.DelegateRequest{Pool: addr, Caller: caller, Amount: amount, Target: target}
				var r *pipeline.Receipt
				if use == "delegate" {
					r, err = s.pipeline.Delegate(s.ctx, req)
				} else {
					r, err = s.pipeline.Undelegate(s.ctx, req)
				}
				if err != nil {
					return nil, err
				}
				return receiptView(r), nil
			})
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().Uint64("amount", 0, "amount in base units")
	cmd.Flags().String("avs", "", "AVS account")
	cmd.Flags().String("position-mint", "", "AVS position mint")
	return cmd
}

func newTransferAuthorityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer-authority",
		Short: "Hand delegate authority to another key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(s *session) (interface{}, error) {
				caller, err := s.requireSigner()
				if err != nil {
					return nil, err
				}
				addr, err := flagKey(cmd, "pool")
				if err != nil {
					return nil, err
				}
				next, err := flagKey(cmd, "new-authority")
				if err != nil {
					return nil, err
				}
				r, err := s.pipeline.TransferAuthority(s.ctx, pipeline.TransferAuthorityRequest{Pool: addr, Caller: caller, NewAuthority: next})
				if err != nil {
					return nil, err
				}
				return receiptView(r), nil
			})
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("new-authority", "", "successor delegate authority")
	return cmd
}

func newDeriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the pool address and bump for an asset tuple",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			keys, err := serviceKeys(cfg)
			if err != nil {
				return err
			}
			input, output, intermediate, err := assetKeys(cmd)
			if err != nil {
				return err
			}
			addr, bump, err := pool.NewManager(keys.ProgramID, nil).Address(input, output, intermediate)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"pool": addr.String(),
				"bump": bump,
			})
		},
	}
	assetFlags(cmd)
	return cmd
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show a pool with its live vault balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			remote, _ := cmd.Flags().GetBool("remote")
			if remote {
				return inspectRemote(cmd)
			}
			return run(cmd, func(s *session) (interface{}, error) {
				addr, err := flagKey(cmd, "pool")
				if err != nil {
					return nil, err
				}
				targets, err := avsTargets(cmd, s.cfg)
				if err != nil {
					return nil, err
				}
				return s.pipeline.Inspect(s.ctx, addr, targets...)
			})
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("avs", "", "AVS account whose position to include")
	cmd.Flags().String("position-mint", "", "AVS position mint whose vault to include")
	cmd.Flags().Bool("remote", false, "read the pool from the RPC endpoint instead of the local store")
	return cmd
}

func newPoolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "List every pool in the local store with its vault balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(s *session) (interface{}, error) {
				return s.pipeline.ListPools(s.ctx, s.lister())
			})
		},
	}
}

func inspectRemote(cmd *cobra.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	keys, err := serviceKeys(cfg)
	if err != nil {
		return err
	}
	addr, err := flagKey(cmd, "pool")
	if err != nil {
		return err
	}
	targets, err := avsTargets(cmd, cfg)
	if err != nil {
		return err
	}
	client, err := newChainClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := cmd.Context()
	rec, err := client.LoadPool(ctx, keys.ProgramID, addr)
	if err != nil {
		return err
	}
	view := rec.View(addr, keys.ProgramID)
	if view.OutputSupply, err = client.MintSupply(ctx, rec.OutputMint); err != nil {
		return err
	}
	vaults, err := pipeline.Vaults(addr, rec, targets...)
	if err != nil {
		return err
	}
	for i := range vaults {
		vault, err := solana.PublicKeyFromBase58(vaults[i].Address)
		if err != nil {
			return err
		}
		if vaults[i].Amount, err = client.TokenBalance(ctx, vault); err != nil {
			return err
		}
		mint, err := solana.PublicKeyFromBase58(vaults[i].Mint)
		if err != nil {
			return err
		}
		if vaults[i].Decimals, err = client.MintDecimals(ctx, mint); err != nil {
			return err
		}
	}
	view.Vaults = vaults

	logger.Info("remote inspect", zap.String("rpc", cfg.RPCURL), zap.Stringer("pool", addr))
	return printJSON(cmd, view)
}

func newChainClient(cfg config.Config, logger *zap.Logger) (*chain.Client, error) {
	return chain.NewClient(cfg.RPCURL, chain.Options{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)
}

type receiptJSON struct {
	Operation string   `json:"operation"`
	Pool      string   `json:"pool"`
	Caller    string   `json:"caller"`
	Amount    uint64   `json:"amount"`
	Converted uint64   `json:"converted"`
	Calls     []string `json:"calls,omitempty"`
}

func receiptView(r *pipeline.Receipt) receiptJSON {
	out := receiptJSON{
		Operation: string(r.Operation),
		Pool:      r.Pool.String(),
		Caller:    r.Caller.String(),
		Amount:    r.Amount,
		Converted: r.Converted,
	}
	for _, call := range r.Calls {
		out.Calls = append(out.Calls, call.Program.String())
	}
	return out
}
