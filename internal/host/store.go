package host

import (
	"bytes"
	"context"
	"sort"

	"github.com/gagliardetto/solana-go"
)

// Store hands out transactions over account state.
//
// Begin must not return until every key in locks is held exclusively by the
// new transaction; a second Begin naming any of the same keys waits until
// the first transaction commits or rolls back. A nil locks slice holds the
// entire store: it waits for, and then excludes, every other transaction.
type Store interface {
	Begin(ctx context.Context, locks []solana.PublicKey) (Tx, error)
}

// Tx is one all-or-nothing unit of account mutations.
type Tx interface {
	// Get returns a private copy of the account, or an error wrapping
	// poolerr.ErrAccountNotFound.
	Get(ctx context.Context, address solana.PublicKey) (*Account, error)
	Put(ctx context.Context, account *Account) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SortedLocks deduplicates and orders lock keys so every store acquires
// them in the same order.
func SortedLocks(locks []solana.PublicKey) []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{}, len(locks))
	out := make([]solana.PublicKey, 0, len(locks))
	for _, key := range locks {
		if key.IsZero() {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
