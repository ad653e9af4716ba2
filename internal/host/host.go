// Package host is the execution environment pool operations run in.
//
// Every top-level call runs inside one store transaction: its effects,
// including those of nested cross-program calls, are committed together or
// discarded together. Signatures are modeled as a signer set; a program can
// extend its set only by presenting seeds that re-derive an address under
// its own program id.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"lrtpool/internal/authority"
	"lrtpool/internal/poolerr"
)

// MaxInvokeDepth bounds nested cross-program calls.
const MaxInvokeDepth = 4

// Program is a callee reachable through Env.Invoke.
type Program interface {
	Process(env *Env, accounts []*solana.AccountMeta, data []byte) error
}

// Call declares the invoking program, its transaction signers and the
// accounts it may write. Writes to any other account fail with
// poolerr.ErrUnlockedWrite. A nil Locks runs the call exclusively against the
// whole store with no write restriction.
type Call struct {
	Program solana.PublicKey
	Signers []solana.PublicKey
	Locks   []solana.PublicKey
}

// Invocation is a recorded cross-program call.
type Invocation struct {
	Caller  solana.PublicKey
	Program solana.PublicKey
	Data    []byte
	Depth   int
}

// Host dispatches calls against a Store.
type Host struct {
	store  Store
	logger *zap.Logger

	mu       sync.RWMutex
	programs map[solana.PublicKey]Program
}

// New builds a Host over store.
func New(store Store, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		store:    store,
		logger:   logger,
		programs: make(map[solana.PublicKey]Program),
	}
}

// Register makes program reachable at id.
func (h *Host) Register(id solana.PublicKey, program Program) {
	h.mu.Lock()
	h.programs[id] = program
	h.mu.Unlock()
}

func (h *Host) program(id solana.PublicKey) (Program, bool) {
	h.mu.RLock()
	p, ok := h.programs[id]
	h.mu.RUnlock()
	return p, ok
}

// Execute runs fn in a fresh transaction and commits only if fn succeeds.
// The returned invocations are the cross-program calls fn attempted.
func (h *Host) Execute(ctx context.Context, call Call, fn func(env *Env) error) ([]Invocation, error) {
	if h.store == nil {
		return nil, fmt.Errorf("store is nil")
	}

	tx, err := h.store.Begin(ctx, call.Locks)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	env, trace := h.newEnv(ctx, tx, call)

	if err := fn(env); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			h.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return *trace, err
	}
	if err := tx.Commit(ctx); err != nil {
		return *trace, fmt.Errorf("commit: %w", err)
	}
	return *trace, nil
}

// View runs fn against committed state without taking any account lock.
// Writes are rejected and the transaction is always rolled back.
func (h *Host) View(ctx context.Context, program solana.PublicKey, fn func(env *Env) error) error {
	if h.store == nil {
		return fmt.Errorf("store is nil")
	}
	call := Call{Program: program, Locks: []solana.PublicKey{}}
	tx, err := h.store.Begin(ctx, call.Locks)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	env, _ := h.newEnv(ctx, tx, call)
	err = fn(env)
	if rbErr := tx.Rollback(ctx); rbErr != nil {
		h.logger.Warn("rollback failed", zap.Error(rbErr))
	}
	return err
}

func (h *Host) newEnv(ctx context.Context, tx Tx, call Call) (*Env, *[]Invocation) {
	signers := make(map[solana.PublicKey]struct{}, len(call.Signers))
	for _, s := range call.Signers {
		signers[s] = struct{}{}
	}
	var writable map[solana.PublicKey]struct{}
	if call.Locks != nil {
		writable = make(map[solana.PublicKey]struct{}, len(call.Locks))
		for _, key := range call.Locks {
			writable[key] = struct{}{}
		}
	}
	trace := make([]Invocation, 0, 4)
	return &Env{
		ctx:      ctx,
		tx:       tx,
		host:     h,
		program:  call.Program,
		signers:  signers,
		writable: writable,
		trace:    &trace,
	}, &trace
}

// Env is the view a program has of the running transaction.
type Env struct {
	ctx      context.Context
	tx       Tx
	host     *Host
	program  solana.PublicKey
	signers  map[solana.PublicKey]struct{}
	writable map[solana.PublicKey]struct{} // nil when the call holds the whole store
	depth    int
	trace    *[]Invocation
}

func (e *Env) Context() context.Context {
	return e.ctx
}

// Program is the id of the program currently executing.
func (e *Env) Program() solana.PublicKey {
	return e.program
}

func (e *Env) IsSigner(key solana.PublicKey) bool {
	_, ok := e.signers[key]
	return ok
}

// Get reloads an account from the transaction.
func (e *Env) Get(address solana.PublicKey) (*Account, error) {
	return e.tx.Get(e.ctx, address)
}

// Exists reports whether address holds an account.
func (e *Env) Exists(address solana.PublicKey) (bool, error) {
	_, err := e.tx.Get(e.ctx, address)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, poolerr.ErrAccountNotFound) {
		return false, nil
	}
	return false, err
}

// Put stages account in the transaction. The account must be one the call
// declared in its locks.
func (e *Env) Put(account *Account) error {
	if account == nil {
		return fmt.Errorf("account is nil")
	}
	if e.writable != nil {
		if _, ok := e.writable[account.Address]; !ok {
			return fmt.Errorf("%w: %s", poolerr.ErrUnlockedWrite, account.Address)
		}
	}
	return e.tx.Put(e.ctx, account)
}

// Sign returns an Env whose signer set also contains the address derived
// from seedsWithBump under the executing program.
func (e *Env) Sign(seedsWithBump [][]byte) (*Env, error) {
	addr, err := authority.Address(e.program, seedsWithBump)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", poolerr.ErrMissingSigner, err)
	}
	return e.withSigners(e.program, e.depth, addr), nil
}

// Invoke dispatches ix to its program. Accounts flagged as signers must
// already be signers here; the callee additionally signs for accounts it
// owns.
func (e *Env) Invoke(ix solana.Instruction) error {
	programID := ix.ProgramID()
	program, ok := e.host.program(programID)
	if !ok {
		return fmt.Errorf("%w: %s", poolerr.ErrUnknownProgram, programID)
	}
	if e.depth+1 > MaxInvokeDepth {
		return fmt.Errorf("invoke depth %d exceeds %d", e.depth+1, MaxInvokeDepth)
	}
	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("instruction data: %w", err)
	}
	accounts := ix.Accounts()

	granted := make([]solana.PublicKey, 0, len(accounts))
	for _, meta := range accounts {
		if meta.IsSigner {
			if !e.IsSigner(meta.PublicKey) {
				return fmt.Errorf("%w: %s", poolerr.ErrMissingSigner, meta.PublicKey)
			}
			granted = append(granted, meta.PublicKey)
			continue
		}
		acct, err := e.Get(meta.PublicKey)
		if err != nil {
			if errors.Is(err, poolerr.ErrAccountNotFound) {
				continue
			}
			return err
		}
		if acct.Kind == KindData && acct.Owner.Equals(programID) {
			granted = append(granted, meta.PublicKey)
		}
	}

	*e.trace = append(*e.trace, Invocation{
		Caller:  e.program,
		Program: programID,
		Data:    data,
		Depth:   e.depth + 1,
	})

	callee := &Env{
		ctx:      e.ctx,
		tx:       e.tx,
		host:     e.host,
		program:  programID,
		signers:  make(map[solana.PublicKey]struct{}, len(granted)),
		writable: e.writable,
		depth:    e.depth + 1,
		trace:    e.trace,
	}
	for _, key := range granted {
		callee.signers[key] = struct{}{}
	}

	e.host.logger.Debug("invoke",
		zap.Stringer("caller", e.program),
		zap.Stringer("program", programID),
		zap.Int("accounts", len(accounts)),
		zap.Int("depth", callee.depth),
	)
	return program.Process(callee, accounts, data)
}

func (e *Env) withSigners(program solana.PublicKey, depth int, extra ...solana.PublicKey) *Env {
	signers := make(map[solana.PublicKey]struct{}, len(e.signers)+len(extra))
	for k := range e.signers {
		signers[k] = struct{}{}
	}
	for _, k := range extra {
		signers[k] = struct{}{}
	}
	return &Env{
		ctx:      e.ctx,
		tx:       e.tx,
		host:     e.host,
		program:  program,
		signers:  signers,
		writable: e.writable,
		depth:    depth,
		trace:    e.trace,
	}
}
