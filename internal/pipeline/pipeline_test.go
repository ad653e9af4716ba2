package pipeline

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/convert"
	"lrtpool/internal/custodian/simulated"
	"lrtpool/internal/custody"
	"lrtpool/internal/host"
	"lrtpool/internal/host/memstore"
	"lrtpool/internal/model"
	"lrtpool/internal/poolerr"
)

func mustVault(owner, mint solana.PublicKey) solana.PublicKey {
	addr, err := custody.VaultAddress(owner, mint)
	if err != nil {
		panic(err)
	}
	return addr
}

type memJournal struct {
	mu      sync.Mutex
	records []model.OperationRecord
}

func (j *memJournal) PutOperationBatch(records []model.OperationRecord) error {
	j.mu.Lock()
	j.records = append(j.records, records...)
	j.mu.Unlock()
	return nil
}

func (j *memJournal) last() model.OperationRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.records[len(j.records)-1]
}

type fixedPolicy struct{ out uint64 }

func (f fixedPolicy) ToOutput(uint64) (uint64, error)       { return f.out, nil }
func (f fixedPolicy) ToInput(amount uint64) (uint64, error) { return amount, nil }

type fixture struct {
	store    *memstore.Store
	host     *host.Host
	cfg      Config
	pipeline *Pipeline
	journal  *memJournal

	admin  solana.PublicKey
	user   solana.PublicKey
	input  solana.PublicKey
	output solana.PublicKey
	inter  solana.PublicKey
	pool   solana.PublicKey
	target AVSTarget
}

const funded = 1000

// newFixture builds an initialized pool. With threeAsset the pool restakes
// through a simulated restaking pool; either way an AVS accepting the
// pool's delegable asset is registered as f.target.
func newFixture(t *testing.T, threeAsset bool) *fixture {
	t.Helper()
	store := memstore.New()
	f := &fixture{
		store: store,
		host:  host.New(store, nil),
		cfg: Config{
			ProgramID:        solana.NewWallet().PublicKey(),
			RestakingProgram: solana.NewWallet().PublicKey(),
			RestakingPool:    solana.NewWallet().PublicKey(),
			AVSProgram:       solana.NewWallet().PublicKey(),
		},
		journal: &memJournal{},
		admin:   solana.NewWallet().PublicKey(),
		user:    solana.NewWallet().PublicKey(),
		input:   solana.NewWallet().PublicKey(),
		output:  solana.NewWallet().PublicKey(),
		target: AVSTarget{
			AVS:          solana.NewWallet().PublicKey(),
			PositionMint: solana.NewWallet().PublicKey(),
		},
	}
	if threeAsset {
		f.inter = solana.NewWallet().PublicKey()
	}
	f.host.Register(f.cfg.RestakingProgram, simulated.Restaking{})
	f.host.Register(f.cfg.AVSProgram, simulated.AVS{})
	f.pipeline = New(f.cfg, f.host, nil, nil, f.journal, nil)

	addr, _, err := f.pipeline.Pools().Address(f.input, f.output, f.inter)
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	f.pool = addr

	f.exec(t, f.cfg.RestakingProgram, func(env *host.Env) error {
		if err := custody.CreateMint(env, f.input, 9, f.admin, f.admin); err != nil {
			return err
		}
		if err := custody.CreateMint(env, f.output, 9, addr, addr); err != nil {
			return err
		}
		vault, err := custody.EnsureVault(env, f.user, f.input)
		if err != nil {
			return err
		}
		if err := custody.MintTo(env, f.input, vault, f.admin, funded); err != nil {
			return err
		}
		if threeAsset {
			return simulated.Restaking{}.InitPool(env, f.cfg.RestakingPool, f.input, f.inter)
		}
		return nil
	})
	delegable := f.input
	if threeAsset {
		delegable = f.inter
	}
	f.exec(t, f.cfg.AVSProgram, func(env *host.Env) error {
		return simulated.AVS{}.CreateAVS(env, f.target.AVS, delegable, f.target.PositionMint)
	})

	_, err = f.pipeline.Initialize(context.Background(), InitRequest{
		Caller:           f.admin,
		InputMint:        f.input,
		OutputMint:       f.output,
		IntermediateMint: f.inter,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return f
}

func (f *fixture) exec(t *testing.T, program solana.PublicKey, fn func(env *host.Env) error) {
	t.Helper()
	_, err := f.host.Execute(context.Background(), host.Call{
		Program: program,
		Signers: []solana.PublicKey{f.admin},
	}, fn)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, owner, mint solana.PublicKey) uint64 {
	t.Helper()
	var amount uint64
	f.exec(t, solana.SystemProgramID, func(env *host.Env) error {
		var err error
		amount, err = custody.Balance(env, mustVault(owner, mint))
		return err
	})
	return amount
}

func (f *fixture) deposit(t *testing.T, amount uint64) *Receipt {
	t.Helper()
	r, err := f.pipeline.Deposit(context.Background(), DepositRequest{Pool: f.pool, Caller: f.user, Amount: amount})
	if err != nil {
		t.Fatalf("deposit %d: %v", amount, err)
	}
	return r
}

func (f *fixture) delegate(t *testing.T, amount uint64) {
	t.Helper()
	_, err := f.pipeline.Delegate(context.Background(), DelegateRequest{Pool: f.pool, Caller: f.admin, Amount: amount, Target: f.target})
	if err != nil {
		t.Fatalf("delegate %d: %v", amount, err)
	}
}

func TestDepositConservation(t *testing.T) {
	f := newFixture(t, false)
	for _, amount := range []uint64{0, 1, 399} {
		poolBefore := f.balance(t, f.pool, f.input)
		outBefore := f.balance(t, f.user, f.output)

		r := f.deposit(t, amount)
		if r.Converted != amount {
			t.Fatalf("converted = %d, want %d", r.Converted, amount)
		}
		if got := f.balance(t, f.pool, f.input); got != poolBefore+amount {
			t.Fatalf("pool input = %d, want %d", got, poolBefore+amount)
		}
		if got := f.balance(t, f.user, f.output); got != outBefore+amount {
			t.Fatalf("user output = %d, want %d", got, outBefore+amount)
		}
	}
	if got := f.balance(t, f.user, f.input); got != funded-400 {
		t.Fatalf("user input = %d, want %d", got, funded-400)
	}
}

func TestDepositWithRatioPolicy(t *testing.T) {
	f := newFixture(t, false)
	ratio, err := convert.NewRatio(3, 2)
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}
	p := New(f.cfg, f.host, nil, ratio, nil, nil)

	r, err := p.Deposit(context.Background(), DepositRequest{Pool: f.pool, Caller: f.user, Amount: 200})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if r.Converted != 300 || f.balance(t, f.user, f.output) != 300 {
		t.Fatalf("minted %d, want 300", r.Converted)
	}

	r, err = p.Withdraw(context.Background(), WithdrawRequest{Pool: f.pool, Caller: f.user, Amount: 300})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if r.Converted != 200 || f.balance(t, f.user, f.input) != funded {
		t.Fatalf("returned %d, want 200", r.Converted)
	}
}

func TestWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t, false)
	f.deposit(t, 400)

	r, err := f.pipeline.Withdraw(context.Background(), WithdrawRequest{Pool: f.pool, Caller: f.user, Amount: 150})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if r.Converted != 150 {
		t.Fatalf("converted = %d, want 150", r.Converted)
	}
	if got := f.balance(t, f.user, f.output); got != 250 {
		t.Fatalf("user output = %d, want 250", got)
	}
	if got := f.balance(t, f.user, f.input); got != funded-250 {
		t.Fatalf("user input = %d, want %d", got, funded-250)
	}

	if _, err := f.pipeline.Withdraw(context.Background(), WithdrawRequest{Pool: f.pool, Caller: f.user, Amount: 250, Route: PlainWithdraw{}}); err != nil {
		t.Fatalf("withdraw rest: %v", err)
	}
	if got := f.balance(t, f.user, f.input); got != funded {
		t.Fatalf("user input = %d, want %d", got, funded)
	}
	if got := f.balance(t, f.pool, f.input); got != 0 {
		t.Fatalf("pool input = %d, want 0", got)
	}
}

func TestWithdrawInsufficientPoolInput(t *testing.T) {
	f := newFixture(t, false)
	f.deposit(t, 500)
	f.delegate(t, 200)

	_, err := f.pipeline.Withdraw(context.Background(), WithdrawRequest{Pool: f.pool, Caller: f.user, Amount: 500})
	if !errors.Is(err, poolerr.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if role, _ := poolerr.RoleOf(err); role != poolerr.RolePoolInput {
		t.Fatalf("role = %q, want %q", role, poolerr.RolePoolInput)
	}
	if got := f.balance(t, f.pool, f.input); got != 300 {
		t.Fatalf("pool input = %d, want 300", got)
	}
	if got := f.balance(t, f.user, f.output); got != 500 {
		t.Fatalf("burn was not rolled back: user output = %d", got)
	}

	rec := f.journal.last()
	if rec.Committed || rec.FailedRole != string(poolerr.RolePoolInput) {
		t.Fatalf("journal recorded %+v", rec)
	}
}

func TestDepositAtomicity(t *testing.T) {
	f := newFixture(t, false)
	f.deposit(t, 100)

	// The second mint overflows the output supply after the transfer step.
	p := New(f.cfg, f.host, nil, fixedPolicy{out: math.MaxUint64}, nil, nil)
	_, err := p.Deposit(context.Background(), DepositRequest{Pool: f.pool, Caller: f.user, Amount: 300})
	if !errors.Is(err, poolerr.ErrAssetTransferFailed) {
		t.Fatalf("expected ErrAssetTransferFailed, got %v", err)
	}
	if got := f.balance(t, f.pool, f.input); got != 100 {
		t.Fatalf("pool input = %d, want 100", got)
	}
	if got := f.balance(t, f.user, f.input); got != funded-100 {
		t.Fatalf("user input = %d, want %d", got, funded-100)
	}
}

func TestDepositBeyondCallerBalance(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.pipeline.Deposit(context.Background(), DepositRequest{Pool: f.pool, Caller: f.user, Amount: funded + 1})
	if !errors.Is(err, poolerr.ErrAssetTransferFailed) {
		t.Fatalf("expected ErrAssetTransferFailed, got %v", err)
	}
}

func TestAuthorityTransfer(t *testing.T) {
	f := newFixture(t, false)
	f.deposit(t, 300)
	next := solana.NewWallet().PublicKey()

	if _, err := f.pipeline.TransferAuthority(context.Background(), TransferAuthorityRequest{Pool: f.pool, Caller: f.user, NewAuthority: f.user}); !errors.Is(err, poolerr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-authority, got %v", err)
	}
	if _, err := f.pipeline.TransferAuthority(context.Background(), TransferAuthorityRequest{Pool: f.pool, Caller: f.admin, NewAuthority: next}); err != nil {
		t.Fatalf("transfer authority: %v", err)
	}

	req := DelegateRequest{Pool: f.pool, Caller: f.admin, Amount: 100, Target: f.target}
	if _, err := f.pipeline.Delegate(context.Background(), req); !errors.Is(err, poolerr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for old authority, got %v", err)
	}
	req.Caller = next
	if _, err := f.pipeline.Delegate(context.Background(), req); err != nil {
		t.Fatalf("delegate by new authority: %v", err)
	}
}

func TestDelegateRoundTrip(t *testing.T) {
	f := newFixture(t, false)
	f.deposit(t, 500)
	f.delegate(t, 200)

	if got := f.balance(t, f.pool, f.input); got != 300 {
		t.Fatalf("pool input = %d, want 300", got)
	}
	if got := f.balance(t, f.pool, f.target.PositionMint); got != 200 {
		t.Fatalf("pool position = %d, want 200", got)
	}

	_, err := f.pipeline.Undelegate(context.Background(), DelegateRequest{Pool: f.pool, Caller: f.admin, Amount: 200, Target: f.target})
	if err != nil {
		t.Fatalf("undelegate: %v", err)
	}
	if got := f.balance(t, f.pool, f.input); got != 500 {
		t.Fatalf("pool input = %d, want 500", got)
	}
	if got := f.balance(t, f.pool, f.target.PositionMint); got != 0 {
		t.Fatalf("pool position = %d, want 0", got)
	}

	_, err = f.pipeline.Undelegate(context.Background(), DelegateRequest{Pool: f.pool, Caller: f.admin, Amount: 1, Target: f.target})
	if role, _ := poolerr.RoleOf(err); role != poolerr.RolePoolAVS {
		t.Fatalf("expected pool-avs shortfall, got %v", err)
	}
	_, err = f.pipeline.Delegate(context.Background(), DelegateRequest{Pool: f.pool, Caller: f.admin, Amount: 501, Target: f.target})
	if role, _ := poolerr.RoleOf(err); role != poolerr.RolePoolDelegated {
		t.Fatalf("expected pool-delegated shortfall, got %v", err)
	}
}

func TestDelegatedWithdraw(t *testing.T) {
	f := newFixture(t, false)
	f.deposit(t, 500)
	f.delegate(t, 500)

	route := DelegatedWithdraw{Target: f.target}
	r, err := f.pipeline.Withdraw(context.Background(), WithdrawRequest{Pool: f.pool, Caller: f.user, Amount: 200, Route: route})
	if err != nil {
		t.Fatalf("delegated withdraw: %v", err)
	}
	if got := f.balance(t, f.user, f.input); got != funded-300 {
		t.Fatalf("user input = %d, want %d", got, funded-300)
	}
	if got := f.balance(t, f.pool, f.target.PositionMint); got != 300 {
		t.Fatalf("pool position = %d, want 300", got)
	}
	if len(r.Calls) != 1 || !r.Calls[0].Program.Equals(f.cfg.AVSProgram) {
		t.Fatalf("unexpected calls %+v", r.Calls)
	}

	// Shrink the position below what the user still holds.
	if _, err := f.pipeline.Undelegate(context.Background(), DelegateRequest{Pool: f.pool, Caller: f.admin, Amount: 100, Target: f.target}); err != nil {
		t.Fatalf("undelegate: %v", err)
	}
	_, err = f.pipeline.Withdraw(context.Background(), WithdrawRequest{Pool: f.pool, Caller: f.user, Amount: 300, Route: route})
	if role, _ := poolerr.RoleOf(err); role != poolerr.RolePoolAVS {
		t.Fatalf("expected pool-avs shortfall, got %v", err)
	}
}

func TestThreeAssetPath(t *testing.T) {
	f := newFixture(t, true)
	r := f.deposit(t, 400)

	if got := f.balance(t, f.pool, f.inter); got != 400 {
		t.Fatalf("pool intermediate = %d, want 400", got)
	}
	if got := f.balance(t, f.pool, f.input); got != 0 {
		t.Fatalf("pool input = %d, want 0", got)
	}
	if got := f.balance(t, f.cfg.RestakingPool, f.input); got != 400 {
		t.Fatalf("restaking vault = %d, want 400", got)
	}
	if len(r.Calls) != 1 || !r.Calls[0].Program.Equals(f.cfg.RestakingProgram) {
		t.Fatalf("unexpected calls %+v", r.Calls)
	}
	if rec := f.journal.last(); len(rec.Calls) != 1 || rec.Calls[0].Method != "restake" || rec.Calls[0].Amount != 400 {
		t.Fatalf("journal calls = %+v", rec.Calls)
	}

	f.delegate(t, 100)
	_, err := f.pipeline.Withdraw(context.Background(), WithdrawRequest{Pool: f.pool, Caller: f.user, Amount: 400})
	if role, _ := poolerr.RoleOf(err); role != poolerr.RolePoolDelegated {
		t.Fatalf("expected pool-delegated shortfall, got %v", err)
	}

	if _, err := f.pipeline.Withdraw(context.Background(), WithdrawRequest{Pool: f.pool, Caller: f.user, Amount: 300}); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	_, err = f.pipeline.Withdraw(context.Background(), WithdrawRequest{Pool: f.pool, Caller: f.user, Amount: 100, Route: DelegatedWithdraw{Target: f.target}})
	if err != nil {
		t.Fatalf("delegated withdraw: %v", err)
	}
	if got := f.balance(t, f.user, f.input); got != funded {
		t.Fatalf("user input = %d, want %d", got, funded)
	}
	if got := f.balance(t, f.pool, f.inter); got != 0 {
		t.Fatalf("pool intermediate = %d, want 0", got)
	}
}

func TestMissingAccounts(t *testing.T) {
	f := newFixture(t, false)
	f.deposit(t, 100)

	_, err := f.pipeline.Withdraw(context.Background(), WithdrawRequest{Pool: f.pool, Caller: f.user, Amount: 10, Route: DelegatedWithdraw{}})
	if !errors.Is(err, poolerr.ErrMissingAccounts) {
		t.Fatalf("expected ErrMissingAccounts, got %v", err)
	}
	_, err = f.pipeline.Delegate(context.Background(), DelegateRequest{Pool: f.pool, Caller: f.admin, Amount: 10})
	if !errors.Is(err, poolerr.ErrMissingAccounts) {
		t.Fatalf("expected ErrMissingAccounts, got %v", err)
	}
	if got := f.balance(t, f.user, f.output); got != 100 {
		t.Fatalf("user output = %d, want 100", got)
	}
}

type rejecting struct{}

func (rejecting) Process(*host.Env, []*solana.AccountMeta, []byte) error {
	return errors.New("avs paused")
}

func TestExternalCallRejected(t *testing.T) {
	f := newFixture(t, false)
	f.deposit(t, 100)
	f.host.Register(f.cfg.AVSProgram, rejecting{})

	_, err := f.pipeline.Delegate(context.Background(), DelegateRequest{Pool: f.pool, Caller: f.admin, Amount: 50, Target: f.target})
	if !errors.Is(err, poolerr.ErrExternalCallRejected) {
		t.Fatalf("expected ErrExternalCallRejected, got %v", err)
	}
	if got := f.balance(t, f.pool, f.input); got != 100 {
		t.Fatalf("pool input = %d, want 100", got)
	}
}

func TestUnknownPool(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.pipeline.Deposit(context.Background(), DepositRequest{Pool: solana.NewWallet().PublicKey(), Caller: f.user, Amount: 1})
	if !errors.Is(err, poolerr.ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}
}

func TestInspect(t *testing.T) {
	f := newFixture(t, true)
	f.deposit(t, 400)
	f.delegate(t, 150)

	view, err := f.pipeline.Inspect(context.Background(), f.pool, f.target)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if view.Shape != "three-asset" || view.OutputSupply != 400 {
		t.Fatalf("unexpected view %+v", view)
	}
	want := map[string]uint64{
		string(poolerr.RolePoolInput):     0,
		string(poolerr.RolePoolDelegated): 250,
		string(poolerr.RolePoolAVS):       150,
	}
	if len(view.Vaults) != len(want) {
		t.Fatalf("vaults = %+v", view.Vaults)
	}
	for _, v := range view.Vaults {
		if v.Amount != want[v.Role] {
			t.Fatalf("%s vault = %d, want %d", v.Role, v.Amount, want[v.Role])
		}
		if v.Decimals != 9 {
			t.Fatalf("%s vault decimals = %d, want 9", v.Role, v.Decimals)
		}
	}
}

func TestListPools(t *testing.T) {
	f := newFixture(t, true)
	second, _ := f.addPool(t)
	f.deposit(t, 40)
	f.exec(t, f.cfg.ProgramID, func(env *host.Env) error {
		return env.Put(&host.Account{
			Address: solana.NewWallet().PublicKey(),
			Owner:   f.cfg.ProgramID,
			Kind:    host.KindData,
			Data:    []byte("not a pool"),
		})
	})

	views, err := f.pipeline.ListPools(context.Background(), f.store)
	if err != nil {
		t.Fatalf("list pools: %v", err)
	}
	supply := make(map[string]uint64, len(views))
	for _, v := range views {
		supply[v.Address] = v.OutputSupply
	}
	want := map[string]uint64{f.pool.String(): 40, second.String(): 0}
	if !reflect.DeepEqual(supply, want) {
		t.Fatalf("pools = %v, want %v", supply, want)
	}
}
