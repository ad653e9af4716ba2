// Package chain reads pool state from a live cluster over JSON-RPC.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"lrtpool/internal/pool"
	"lrtpool/internal/poolerr"
)

// Options tune RPC behavior.
type Options struct {
	Commitment   rpc.CommitmentType
	MaxRetries   int
	RetryBackoff time.Duration
}

// Client wraps the solana-go RPC client and caches mint decimals.
type Client struct {
	rpcClient *rpc.Client
	opts      Options
	retry     rpcRetry
	logger    *zap.Logger

	mu       sync.RWMutex
	decimals map[solana.PublicKey]uint8
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(rpcURL string, opts Options, logger *zap.Logger) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		rpcClient: rpc.New(rpcURL),
		opts:      opts,
		retry:     newRPCRetry(opts, logger),
		logger:    logger,
		decimals:  make(map[solana.PublicKey]uint8),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		_ = c.rpcClient.Close()
	}
}

// AccountData returns the owner and raw data of an account.
func (c *Client) AccountData(ctx context.Context, address solana.PublicKey) (solana.PublicKey, []byte, error) {
	var out *rpc.GetAccountInfoResult
	err := c.retry.do(ctx, "getAccountInfo", func(ctx context.Context) error {
		var err error
		out, err = c.rpcClient.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Commitment: c.opts.Commitment,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			return permanent{err}
		}
		return err
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return solana.PublicKey{}, nil, fmt.Errorf("%w: %s", poolerr.ErrAccountNotFound, address)
		}
		return solana.PublicKey{}, nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if out == nil || out.Value == nil {
		return solana.PublicKey{}, nil, fmt.Errorf("%w: %s", poolerr.ErrAccountNotFound, address)
	}
	return out.Value.Owner, out.Value.Data.GetBinary(), nil
}

// LoadPool fetches and decodes the pool record at address, checking the
// owning program and the seed derivation.
func (c *Client) LoadPool(ctx context.Context, programID, address solana.PublicKey) (*pool.Pool, error) {
	owner, data, err := c.AccountData(ctx, address)
	if err != nil {
		if errors.Is(err, poolerr.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", poolerr.ErrPoolNotFound, address)
		}
		return nil, err
	}
	if !owner.Equals(programID) {
		return nil, fmt.Errorf("%w: %s is owned by %s", poolerr.ErrPoolNotFound, address, owner)
	}
	p, err := pool.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if !pool.NewManager(programID, c.logger).Derives(address, p) {
		return nil, fmt.Errorf("%w: %s does not derive from its seeds", poolerr.ErrPoolNotFound, address)
	}
	return p, nil
}

// TokenBalance returns the raw amount held by a token account. A missing
// account holds nothing.
func (c *Client) TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var out *rpc.GetTokenAccountBalanceResult
	err := c.retry.do(ctx, "getTokenAccountBalance", func(ctx context.Context) error {
		var err error
		out, err = c.rpcClient.GetTokenAccountBalance(ctx, account, c.opts.Commitment)
		if errors.Is(err, rpc.ErrNotFound) {
			return permanent{err}
		}
		return err
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("token balance %s: %w", account, err)
	}
	if out == nil || out.Value == nil {
		return 0, nil
	}
	return parseAmount(out.Value.Amount)
}

// MintSupply returns the issued supply of mint and caches its decimals.
func (c *Client) MintSupply(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	var out *rpc.GetTokenSupplyResult
	err := c.retry.do(ctx, "getTokenSupply", func(ctx context.Context) error {
		var err error
		out, err = c.rpcClient.GetTokenSupply(ctx, mint, c.opts.Commitment)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("token supply %s: %w", mint, err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("%w: mint %s", poolerr.ErrAccountNotFound, mint)
	}
	c.mu.Lock()
	c.decimals[mint] = out.Value.Decimals
	c.mu.Unlock()
	return parseAmount(out.Value.Amount)
}

// MintDecimals returns the decimals of mint, using an in-memory cache.
func (c *Client) MintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	c.mu.RLock()
	d, ok := c.decimals[mint]
	c.mu.RUnlock()
	if ok {
		return d, nil
	}
	if _, err := c.MintSupply(ctx, mint); err != nil {
		return 0, err
	}
	c.mu.RLock()
	d = c.decimals[mint]
	c.mu.RUnlock()
	return d, nil
}

func parseAmount(raw string) (uint64, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return v, nil
}
