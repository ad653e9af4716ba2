// Package pipeline runs the top-level pool operations. Each operation is a
// fixed sequence of steps executed inside one host transaction, so the
// first failing step discards everything before it.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"lrtpool/internal/convert"
	"lrtpool/internal/custodian"
	"lrtpool/internal/custody"
	"lrtpool/internal/guard"
	"lrtpool/internal/host"
	"lrtpool/internal/model"
	"lrtpool/internal/pool"
	"lrtpool/internal/poolerr"
	"lrtpool/internal/storage"
)

// Config holds the external service identities a pipeline talks to.
// RestakingMint, when set, is the only intermediate asset a three-asset
// pool may be created with.
type Config struct {
	ProgramID        solana.PublicKey
	RestakingProgram solana.PublicKey
	RestakingPool    solana.PublicKey
	RestakingMint    solana.PublicKey
	AVSProgram       solana.PublicKey
}

// Pipeline composes pool records, custody, vault guards and the external
// custodian into user-facing operations.
type Pipeline struct {
	cfg       Config
	host      *host.Host
	pools     *pool.Manager
	custodian custodian.Custodian
	policy    convert.Policy
	journal   storage.Journal
	logger    *zap.Logger
	now       func() time.Time
}

// New builds a Pipeline. A nil custodian calls the configured programs, a
// nil policy is identity and a nil journal discards records.
func New(cfg Config, h *host.Host, c custodian.Custodian, policy convert.Policy, journal storage.Journal, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = &custodian.Client{RestakingProgram: cfg.RestakingProgram, AVSProgram: cfg.AVSProgram}
	}
	if policy == nil {
		policy = convert.Identity{}
	}
	if journal == nil {
		journal = storage.Discard{}
	}
	return &Pipeline{
		cfg:       cfg,
		host:      h,
		pools:     pool.NewManager(cfg.ProgramID, logger),
		custodian: c,
		policy:    policy,
		journal:   journal,
		logger:    logger,
		now:       time.Now,
	}
}

// Pools exposes the record manager, mainly for address derivation.
func (p *Pipeline) Pools() *pool.Manager {
	return p.pools
}

// Initialize creates a pool and its vaults.
func (p *Pipeline) Initialize(ctx context.Context, req InitRequest) (*Receipt, error) {
	if req.DelegateAuthority.IsZero() {
		req.DelegateAuthority = req.Caller
	}
	addr, _, err := p.pools.Address(req.InputMint, req.OutputMint, req.IntermediateMint)
	if err != nil {
		return nil, err
	}
	signers := append([]solana.PublicKey{req.Caller}, req.Cosigners...)
	op := operation{kind: model.OpInitialize, pool: addr, caller: req.Caller, signers: signers}
	if op.locks, err = initLocks(addr, req); err != nil {
		return nil, err
	}
	return p.run(ctx, op, func(env *host.Env, r *Receipt) error {
		if !req.IntermediateMint.IsZero() && !p.cfg.RestakingMint.IsZero() && !req.IntermediateMint.Equals(p.cfg.RestakingMint) {
			return fmt.Errorf("%w: intermediate mint %s, restaking pool issues %s", poolerr.ErrMintMismatch, req.IntermediateMint, p.cfg.RestakingMint)
		}
		_, _, err := p.pools.Initialize(env, pool.InitParams{
			InputMint:         req.InputMint,
			OutputMint:        req.OutputMint,
			IntermediateMint:  req.IntermediateMint,
			DelegateAuthority: req.DelegateAuthority,
		})
		return err
	})
}

// Deposit moves Amount input units into the pool, restakes them when the
// pool has an intermediate asset and mints the converted amount of output
// to the caller.
func (p *Pipeline) Deposit(ctx context.Context, req DepositRequest) (*Receipt, error) {
	op := operation{kind: model.OpDeposit, pool: req.Pool, caller: req.Caller, amount: req.Amount}
	return p.run(ctx, op, func(env *host.Env, r *Receipt) error {
		rec, err := p.pools.Load(env, req.Pool)
		if err != nil {
			return err
		}
		input, err := custody.LoadMint(env, rec.InputMint)
		if err != nil {
			return err
		}
		callerInput, err := custody.VaultAddress(req.Caller, rec.InputMint)
		if err != nil {
			return err
		}
		poolInput, err := custody.VaultAddress(req.Pool, rec.InputMint)
		if err != nil {
			return err
		}

		p.step(op, "transfer")
		if err := custody.Transfer(env, callerInput, poolInput, rec.InputMint, req.Caller, req.Amount, input.Mint.Decimals); err != nil {
			return err
		}

		if rec.ThreeAsset() {
			p.step(op, "restake")
			accts, err := p.restakeAccounts(req.Pool, rec)
			if err != nil {
				return err
			}
			if err := p.custodian.Restake(env, rec.SignerSeeds(), accts, req.Amount); err != nil {
				return err
			}
		}

		minted, err := p.policy.ToOutput(req.Amount)
		if err != nil {
			return fmt.Errorf("convert %d: %w", req.Amount, err)
		}
		r.Converted = minted

		p.step(op, "mint")
		callerOutput, err := custody.EnsureVault(env, req.Caller, rec.OutputMint)
		if err != nil {
			return err
		}
		signed, err := env.Sign(rec.SignerSeeds())
		if err != nil {
			return err
		}
		return custody.MintTo(signed, rec.OutputMint, callerOutput, req.Pool, minted)
	})
}

// Withdraw burns Amount output units and returns the converted input
// amount, pulling it back through the AVS and restaking hops as needed.
// Every outgoing leg is guarded against the vault's live balance.
func (p *Pipeline) Withdraw(ctx context.Context, req WithdrawRequest) (*Receipt, error) {
	route := req.Route
	if route == nil {
		route = PlainWithdraw{}
	}
	op := operation{kind: model.OpWithdraw, pool: req.Pool, caller: req.Caller, amount: req.Amount, route: route}
	return p.run(ctx, op, func(env *host.Env, r *Receipt) error {
		rec, err := p.pools.Load(env, req.Pool)
		if err != nil {
			return err
		}
		callerOutput, err := custody.VaultAddress(req.Caller, rec.OutputMint)
		if err != nil {
			return err
		}

		p.step(op, "burn")
		if err := custody.Burn(env, rec.OutputMint, callerOutput, req.Caller, req.Amount); err != nil {
			return err
		}
		amount, err := p.policy.ToInput(req.Amount)
		if err != nil {
			return fmt.Errorf("convert back %d: %w", req.Amount, err)
		}
		r.Converted = amount

		switch rt := route.(type) {
		case PlainWithdraw:
		case DelegatedWithdraw:
			accts, err := delegateAccounts(req.Pool, rec, rt.Target)
			if err != nil {
				return err
			}
			p.step(op, "undelegate")
			if _, err := guard.Require(env, accts.StakerPositionVault, amount, poolerr.RolePoolAVS); err != nil {
				return err
			}
			if err := p.custodian.Undelegate(env, rec.SignerSeeds(), accts, amount); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown withdraw route %T", route)
		}

		if rec.ThreeAsset() {
			accts, err := p.restakeAccounts(req.Pool, rec)
			if err != nil {
				return err
			}
			p.step(op, "unrestake")
			if _, err := guard.Require(env, accts.StakerIntermediateVault, amount, poolerr.RolePoolDelegated); err != nil {
				return err
			}
			if err := p.custodian.Unrestake(env, rec.SignerSeeds(), accts, amount); err != nil {
				return err
			}
		}

		p.step(op, "unstake")
		input, err := custody.LoadMint(env, rec.InputMint)
		if err != nil {
			return err
		}
		poolInput, err := custody.VaultAddress(req.Pool, rec.InputMint)
		if err != nil {
			return err
		}
		if _, err := guard.Require(env, poolInput, amount, poolerr.RolePoolInput); err != nil {
			return err
		}
		callerInput, err := custody.EnsureVault(env, req.Caller, rec.InputMint)
		if err != nil {
			return err
		}
		signed, err := env.Sign(rec.SignerSeeds())
		if err != nil {
			return err
		}
		return custody.Transfer(signed, poolInput, callerInput, rec.InputMint, req.Pool, amount, input.Mint.Decimals)
	})
}

// Delegate moves Amount of the pool's delegable asset into an AVS position.
// Only the delegate authority may call it.
func (p *Pipeline) Delegate(ctx context.Context, req DelegateRequest) (*Receipt, error) {
	op := operation{kind: model.OpDelegate, pool: req.Pool, caller: req.Caller, amount: req.Amount, target: req.Target}
	return p.run(ctx, op, func(env *host.Env, r *Receipt) error {
		rec, accts, err := p.loadDelegation(env, req)
		if err != nil {
			return err
		}
		if _, err := guard.Require(env, accts.StakerUnderlyingVault, req.Amount, poolerr.RolePoolDelegated); err != nil {
			return err
		}
		if _, err := custody.EnsureVault(env, req.Pool, req.Target.PositionMint); err != nil {
			return err
		}
		p.step(op, "delegate")
		r.Converted = req.Amount
		return p.custodian.Delegate(env, rec.SignerSeeds(), accts, req.Amount)
	})
}

// Undelegate returns Amount from an AVS position to the pool's own vault.
func (p *Pipeline) Undelegate(ctx context.Context, req DelegateRequest) (*Receipt, error) {
	op := operation{kind: model.OpUndelegate, pool: req.Pool, caller: req.Caller, amount: req.Amount, target: req.Target}
	return p.run(ctx, op, func(env *host.Env, r *Receipt) error {
		rec, accts, err := p.loadDelegation(env, req)
		if err != nil {
			return err
		}
		if _, err := guard.Require(env, accts.StakerPositionVault, req.Amount, poolerr.RolePoolAVS); err != nil {
			return err
		}
		p.step(op, "undelegate")
		r.Converted = req.Amount
		return p.custodian.Undelegate(env, rec.SignerSeeds(), accts, req.Amount)
	})
}

func (p *Pipeline) loadDelegation(env *host.Env, req DelegateRequest) (*pool.Pool, custodian.DelegateAccounts, error) {
	rec, err := p.pools.Load(env, req.Pool)
	if err != nil {
		return nil, custodian.DelegateAccounts{}, err
	}
	if err := pool.Authorize(env, rec, req.Caller); err != nil {
		return nil, custodian.DelegateAccounts{}, err
	}
	accts, err := delegateAccounts(req.Pool, rec, req.Target)
	if err != nil {
		return nil, custodian.DelegateAccounts{}, err
	}
	return rec, accts, nil
}

// TransferAuthority hands delegate rights to NewAuthority.
func (p *Pipeline) TransferAuthority(ctx context.Context, req TransferAuthorityRequest) (*Receipt, error) {
	op := operation{kind: model.OpTransferAuthority, pool: req.Pool, caller: req.Caller, newAuthority: req.NewAuthority}
	return p.run(ctx, op, func(env *host.Env, r *Receipt) error {
		_, err := p.pools.TransferAuthority(env, req.Pool, req.Caller, req.NewAuthority)
		return err
	})
}

type operation struct {
	kind         model.Operation
	pool         solana.PublicKey
	caller       solana.PublicKey
	signers      []solana.PublicKey
	amount       uint64
	route        Route
	target       AVSTarget
	newAuthority solana.PublicKey
	locks        []solana.PublicKey
}

func (p *Pipeline) step(op operation, name string) {
	p.logger.Debug("step",
		zap.String("operation", string(op.kind)),
		zap.String("step", name),
		zap.Stringer("pool", op.pool),
	)
}

func (p *Pipeline) run(ctx context.Context, op operation, fn func(env *host.Env, r *Receipt) error) (*Receipt, error) {
	if p.host == nil {
		return nil, fmt.Errorf("host is nil")
	}
	signers := op.signers
	if signers == nil {
		signers = []solana.PublicKey{op.caller}
	}
	receipt := &Receipt{
		Operation: op.kind,
		Pool:      op.pool,
		Caller:    op.caller,
		Amount:    op.amount,
	}
	locks, err := p.locks(ctx, op)
	if err == nil {
		var calls []host.Invocation
		calls, err = p.host.Execute(ctx, host.Call{
			Program: p.cfg.ProgramID,
			Signers: signers,
			Locks:   locks,
		}, func(env *host.Env) error {
			return fn(env, receipt)
		})
		receipt.Calls = calls
	}

	p.record(op, receipt, err)
	if err != nil {
		p.logger.Warn("operation failed",
			zap.String("operation", string(op.kind)),
			zap.Stringer("pool", op.pool),
			zap.Stringer("caller", op.caller),
			zap.Uint64("amount", op.amount),
			zap.Error(err),
		)
		return nil, err
	}
	p.logger.Info("operation committed",
		zap.String("operation", string(op.kind)),
		zap.Stringer("pool", op.pool),
		zap.Uint64("amount", op.amount),
		zap.Uint64("converted", receipt.Converted),
		zap.Int("external_calls", len(receipt.Calls)),
	)
	return receipt, nil
}

func (p *Pipeline) record(op operation, receipt *Receipt, err error) {
	rec := model.OperationRecord{
		Operation:  op.kind,
		Pool:       op.pool.String(),
		Caller:     op.caller.String(),
		Amount:     op.amount,
		Converted:  receipt.Converted,
		Committed:  err == nil,
		RecordedAt: p.now().UTC().Format(time.RFC3339),
	}
	if op.route != nil {
		rec.Route = op.route.route()
		if d, ok := op.route.(DelegatedWithdraw); ok && !d.Target.AVS.IsZero() {
			rec.Target = d.Target.AVS.String()
		}
	}
	if !op.target.AVS.IsZero() {
		rec.Target = op.target.AVS.String()
	}
	if !op.newAuthority.IsZero() {
		rec.Target = op.newAuthority.String()
	}
	for _, call := range receipt.Calls {
		rec.Calls = append(rec.Calls, externalCall(call))
	}
	if err != nil {
		rec.Converted = 0
		rec.Error = err.Error()
		if role, ok := poolerr.RoleOf(err); ok {
			rec.FailedRole = string(role)
		}
	}
	// The operation outcome is final at this point; a journal failure only
	// loses the audit line.
	if jerr := p.journal.PutOperationBatch([]model.OperationRecord{rec}); jerr != nil {
		p.logger.Warn("journal write failed", zap.Error(jerr))
	}
}

func externalCall(inv host.Invocation) model.ExternalCall {
	call := model.ExternalCall{
		Caller:  inv.Caller.String(),
		Program: inv.Program.String(),
		Depth:   inv.Depth,
		Payload: hexutil.Encode(inv.Data),
	}
	if method, amount, err := custodian.DecodePayload(inv.Data); err == nil {
		call.Method = string(method)
		call.Amount = amount
	}
	return call
}
