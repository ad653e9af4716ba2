package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"lrtpool/internal/aggregate"
	"lrtpool/internal/custodian/simulated"
	"lrtpool/internal/custody"
	"lrtpool/internal/host"
	"lrtpool/internal/pool"
	"lrtpool/internal/storage"
)

func keyOrNew(cmd *cobra.Command, name string) (solana.PublicKey, error) {
	key, err := optionalFlagKey(cmd, name)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if key.IsZero() {
		key = solana.NewWallet().PublicKey()
	}
	return key, nil
}

func (s *session) execute(program solana.PublicKey, fn func(env *host.Env) error) error {
	signers := []solana.PublicKey{}
	if !s.signer.IsZero() {
		signers = append(signers, s.signer)
	}
	_, err := s.host.Execute(s.ctx, host.Call{Program: program, Signers: signers}, fn)
	return err
}

func newAssetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Manage local asset mints",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a mint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(s *session) (interface{}, error) {
				signer, err := s.requireSigner()
				if err != nil {
					return nil, err
				}
				mint, err := keyOrNew(cmd, "address")
				if err != nil {
					return nil, err
				}
				decimals, _ := cmd.Flags().GetUint8("decimals")
				authority, err := optionalFlagKey(cmd, "authority")
				if err != nil {
					return nil, err
				}
				if authority.IsZero() {
					authority = signer
				}

				// An output mint must be controlled by the pool it will serve.
				poolInput, err := optionalFlagKey(cmd, "pool-input")
				if err != nil {
					return nil, err
				}
				var poolAddr solana.PublicKey
				if !poolInput.IsZero() {
					intermediate, err := optionalFlagKey(cmd, "pool-intermediate")
					if err != nil {
						return nil, err
					}
					if poolAddr, _, err = pool.NewManager(s.keys.ProgramID, nil).Address(poolInput, mint, intermediate); err != nil {
						return nil, err
					}
					authority = poolAddr
				}

				err = s.execute(solana.TokenProgramID, func(env *host.Env) error {
					return custody.CreateMint(env, mint, decimals, authority, authority)
				})
				if err != nil {
					return nil, err
				}
				out := map[string]interface{}{
					"mint":      mint.String(),
					"decimals":  decimals,
					"authority": authority.String(),
				}
				if !poolAddr.IsZero() {
					out["pool"] = poolAddr.String()
				}
				return out, nil
			})
		},
	}
	create.Flags().String("address", "", "mint address (random when empty)")
	create.Flags().Uint8("decimals", 9, "mint decimals")
	create.Flags().String("authority", "", "mint and freeze authority (defaults to the signer)")
	create.Flags().String("pool-input", "", "create an output mint for the pool over this input mint")
	create.Flags().String("pool-intermediate", "", "intermediate mint of that pool")

	mintTo := &cobra.Command{
		Use:   "mint",
		Short: "Issue units of a mint to an owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(s *session) (interface{}, error) {
				signer, err := s.requireSigner()
				if err != nil {
					return nil, err
				}
				mint, err := flagKey(cmd, "mint")
				if err != nil {
					return nil, err
				}
				owner, err := optionalFlagKey(cmd, "to")
				if err != nil {
					return nil, err
				}
				if owner.IsZero() {
					owner = signer
				}
				amount, _ := cmd.Flags().GetUint64("amount")

				var vault solana.PublicKey
				err = s.execute(solana.TokenProgramID, func(env *host.Env) error {
					var err error
					if vault, err = custody.EnsureVault(env, owner, mint); err != nil {
						return err
					}
					return custody.MintTo(env, mint, vault, signer, amount)
				})
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{
					"mint":   mint.String(),
					"owner":  owner.String(),
					"vault":  vault.String(),
					"amount": amount,
				}, nil
			})
		},
	}
	mintTo.Flags().String("mint", "", "mint address")
	mintTo.Flags().String("to", "", "owner receiving the units (defaults to the signer)")
	mintTo.Flags().Uint64("amount", 0, "amount in base units")

	cmd.AddCommand(create, mintTo)
	return cmd
}

func newRestakingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restaking",
		Short: "Manage the simulated restaking program",
	}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a restaking pool and its intermediate mint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(s *session) (interface{}, error) {
				if s.keys.RestakingProgram.IsZero() {
					return nil, fmt.Errorf("restaking-program is required")
				}
				addr := s.keys.RestakingPool
				if addr.IsZero() {
					addr = solana.NewWallet().PublicKey()
				}
				input, err := flagKey(cmd, "input-mint")
				if err != nil {
					return nil, err
				}
				intermediate := s.keys.RestakingMint
				if intermediate.IsZero() {
					intermediate = solana.NewWallet().PublicKey()
				}
				err = s.execute(s.keys.RestakingProgram, func(env *host.Env) error {
					return simulated.Restaking{}.InitPool(env, addr, input, intermediate)
				})
				if err != nil {
					return nil, err
				}
				return map[string]string{
					"restaking_pool":    addr.String(),
					"input_mint":        input.String(),
					"intermediate_mint": intermediate.String(),
				}, nil
			})
		},
	}
	initCmd.Flags().String("input-mint", "", "asset the restaking pool accepts")
	cmd.AddCommand(initCmd)
	return cmd
}

func newAVSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "avs",
		Short: "Manage the simulated AVS program",
	}
	create := &cobra.Command{
		Use:   "create",
		Short: "Register an AVS and its position mint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(s *session) (interface{}, error) {
				if s.keys.AVSProgram.IsZero() {
					return nil, fmt.Errorf("avs-program is required")
				}
				avs, err := keyOrNew(cmd, "avs")
				if err != nil {
					return nil, err
				}
				underlying, err := flagKey(cmd, "underlying-mint")
				if err != nil {
					return nil, err
				}
				position, err := keyOrNew(cmd, "position-mint")
				if err != nil {
					return nil, err
				}
				err = s.execute(s.keys.AVSProgram, func(env *host.Env) error {
					return simulated.AVS{}.CreateAVS(env, avs, underlying, position)
				})
				if err != nil {
					return nil, err
				}
				return map[string]string{
					"avs":             avs.String(),
					"underlying_mint": underlying.String(),
					"position_mint":   position.String(),
				}, nil
			})
		},
	}
	create.Flags().String("avs", "", "AVS account (random when empty)")
	create.Flags().String("underlying-mint", "", "asset the AVS accepts")
	create.Flags().String("position-mint", "", "position mint (random when empty)")
	cmd.AddCommand(create)
	return cmd
}

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print recorded operations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.Journal == "" {
				return fmt.Errorf("journal path is not configured")
			}
			if summary, _ := cmd.Flags().GetBool("summary"); summary {
				summaries, err := aggregate.NewAggregator(logger).Run(cfg.Journal)
				if err != nil {
					return err
				}
				return printJSON(cmd, summaries)
			}
			records, err := storage.ReadOperations(cfg.Journal)
			if err != nil {
				return err
			}
			if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(records) > limit {
				records = records[len(records)-limit:]
			}
			return printJSON(cmd, records)
		},
	}
	cmd.Flags().Bool("summary", false, "print per-pool totals instead of records")
	cmd.Flags().Int("limit", 20, "number of most recent records to print (0 for all)")
	return cmd
}
