// Package memstore keeps host accounts in memory.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/host"
	"lrtpool/internal/poolerr"
)

// Store is a copy-on-write account map with per-key locks. Transactions
// that declare keys share the store lock; a transaction declaring none
// holds it alone.
type Store struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*host.Account

	world  sync.RWMutex
	lockMu sync.Mutex
	locks  map[solana.PublicKey]chan struct{}
}

func New() *Store {
	return &Store{
		accounts: make(map[solana.PublicKey]*host.Account),
		locks:    make(map[solana.PublicKey]chan struct{}),
	}
}

// Begin acquires locks in sorted order and returns an isolated overlay.
func (s *Store) Begin(ctx context.Context, locks []solana.PublicKey) (host.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if locks == nil {
		s.world.Lock()
		return &tx{
			store:   s,
			unlock:  s.world.Unlock,
			overlay: make(map[solana.PublicKey]*host.Account),
		}, nil
	}

	s.world.RLock()
	keys := host.SortedLocks(locks)
	held := make([]chan struct{}, 0, len(keys))
	for _, key := range keys {
		ch := s.lockFor(key)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release(held)
			s.world.RUnlock()
			return nil, ctx.Err()
		}
	}
	return &tx{
		store:   s,
		held:    held,
		unlock:  s.world.RUnlock,
		overlay: make(map[solana.PublicKey]*host.Account),
	}, nil
}

func (s *Store) lockFor(key solana.PublicKey) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

func release(held []chan struct{}) {
	for i := len(held) - 1; i >= 0; i-- {
		<-held[i]
	}
}

// Accounts returns a copy of every committed account ordered by address.
func (s *Store) Accounts() []host.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]host.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		out = append(out, *acct.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// OwnedBy lists committed accounts owned by owner, ordered by address.
func (s *Store) OwnedBy(_ context.Context, owner solana.PublicKey) ([]host.Account, error) {
	var out []host.Account
	for _, acct := range s.Accounts() {
		if acct.Owner.Equals(owner) {
			out = append(out, acct)
		}
	}
	return out, nil
}

// Replace swaps in a committed account set, used when loading snapshots.
func (s *Store) Replace(accounts []host.Account) {
	next := make(map[solana.PublicKey]*host.Account, len(accounts))
	for i := range accounts {
		next[accounts[i].Address] = accounts[i].Clone()
	}
	s.mu.Lock()
	s.accounts = next
	s.mu.Unlock()
}

type tx struct {
	store   *Store
	held    []chan struct{}
	unlock  func()
	overlay map[solana.PublicKey]*host.Account
	done    bool
}

func (t *tx) Get(_ context.Context, address solana.PublicKey) (*host.Account, error) {
	if t.done {
		return nil, fmt.Errorf("transaction closed")
	}
	if acct, ok := t.overlay[address]; ok {
		return acct.Clone(), nil
	}
	t.store.mu.RLock()
	acct, ok := t.store.accounts[address]
	t.store.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", poolerr.ErrAccountNotFound, address)
	}
	return acct.Clone(), nil
}

func (t *tx) Put(_ context.Context, account *host.Account) error {
	if t.done {
		return fmt.Errorf("transaction closed")
	}
	if account == nil || account.Address.IsZero() {
		return fmt.Errorf("account address is required")
	}
	t.overlay[account.Address] = account.Clone()
	return nil
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return fmt.Errorf("transaction closed")
	}
	t.store.mu.Lock()
	for addr, acct := range t.overlay {
		t.store.accounts[addr] = acct
	}
	t.store.mu.Unlock()
	t.finish()
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.overlay = nil
	release(t.held)
	t.held = nil
	t.unlock()
}
