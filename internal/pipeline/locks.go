package pipeline

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/custody"
	"lrtpool/internal/host"
	"lrtpool/internal/model"
	"lrtpool/internal/pool"
	"lrtpool/internal/poolerr"
)

// lockSet collects the accounts an operation may write.
type lockSet struct {
	keys []solana.PublicKey
	err  error
}

func (l *lockSet) add(keys ...solana.PublicKey) {
	l.keys = append(l.keys, keys...)
}

func (l *lockSet) vault(owner, mint solana.PublicKey) {
	if l.err != nil || mint.IsZero() {
		return
	}
	addr, err := custody.VaultAddress(owner, mint)
	if err != nil {
		l.err = err
		return
	}
	l.add(addr)
}

// metas adds every writable account of an external call.
func (l *lockSet) metas(metas solana.AccountMetaSlice) {
	for _, meta := range metas {
		if meta.IsWritable {
			l.add(meta.PublicKey)
		}
	}
}

// locks resolves the write set of op. Operations on an existing pool read
// the record first; its mints never change, so the set stays valid for the
// transaction that follows. A pool that does not exist yet gets the pool
// and caller only, and the operation then fails on its own load.
func (p *Pipeline) locks(ctx context.Context, op operation) ([]solana.PublicKey, error) {
	if op.locks != nil {
		return op.locks, nil
	}
	var rec *pool.Pool
	err := p.host.View(ctx, p.cfg.ProgramID, func(env *host.Env) error {
		var err error
		rec, err = p.pools.Load(env, op.pool)
		return err
	})
	if errors.Is(err, poolerr.ErrPoolNotFound) {
		return []solana.PublicKey{op.pool, op.caller}, nil
	}
	if err != nil {
		return nil, err
	}
	return p.writeSet(op, rec)
}

func (p *Pipeline) writeSet(op operation, rec *pool.Pool) ([]solana.PublicKey, error) {
	var l lockSet
	l.add(op.pool, op.caller)

	switch op.kind {
	case model.OpDeposit:
		l.vault(op.caller, rec.InputMint)
		l.vault(op.pool, rec.InputMint)
		l.add(rec.OutputMint)
		l.vault(op.caller, rec.OutputMint)
		if rec.ThreeAsset() {
			accts, err := p.restakeAccounts(op.pool, rec)
			if err != nil {
				return nil, err
			}
			l.metas(accts.Metas())
		}
	case model.OpWithdraw:
		l.add(rec.OutputMint)
		l.vault(op.caller, rec.OutputMint)
		l.vault(op.pool, rec.InputMint)
		l.vault(op.caller, rec.InputMint)
		if d, ok := op.route.(DelegatedWithdraw); ok {
			accts, err := delegateAccounts(op.pool, rec, d.Target)
			if err != nil {
				return nil, err
			}
			l.metas(accts.Metas())
		}
		if rec.ThreeAsset() {
			accts, err := p.restakeAccounts(op.pool, rec)
			if err != nil {
				return nil, err
			}
			l.metas(accts.Metas())
		}
	case model.OpDelegate, model.OpUndelegate:
		accts, err := delegateAccounts(op.pool, rec, op.target)
		if err != nil {
			return nil, err
		}
		l.metas(accts.Metas())
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.keys, nil
}

// initLocks is the write set of pool creation: the record and its vaults.
func initLocks(addr solana.PublicKey, req InitRequest) ([]solana.PublicKey, error) {
	var l lockSet
	l.add(addr, req.Caller)
	l.vault(addr, req.InputMint)
	l.vault(addr, req.IntermediateMint)
	if l.err != nil {
		return nil, l.err
	}
	return l.keys, nil
}
