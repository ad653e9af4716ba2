// Package simulated provides amount-preserving restaking and AVS programs
// that honor the custodian wire contract. They back the local CLI
// environment and the pipeline tests.
package simulated

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/host"
	"lrtpool/internal/poolerr"
)

// RestakingPoolState is the data account of a restaking pool.
type RestakingPoolState struct {
	InputMint        solana.PublicKey
	IntermediateMint solana.PublicKey
}

// AVSState is the data account of an AVS.
type AVSState struct {
	UnderlyingMint solana.PublicKey
	PositionMint   solana.PublicKey
}

func putState(env *host.Env, address solana.PublicKey, state interface{}) error {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(state); err != nil {
		return fmt.Errorf("encode state %s: %w", address, err)
	}
	return env.Put(&host.Account{
		Address: address,
		Owner:   env.Program(),
		Kind:    host.KindData,
		Data:    buf.Bytes(),
	})
}

func loadState(env *host.Env, address solana.PublicKey, state interface{}) error {
	acct, err := env.Get(address)
	if err != nil {
		return err
	}
	if acct.Kind != host.KindData || !acct.Owner.Equals(env.Program()) {
		return fmt.Errorf("%s is not owned by %s", address, env.Program())
	}
	if err := bin.NewBorshDecoder(acct.Data).Decode(state); err != nil {
		return fmt.Errorf("decode state %s: %w", address, err)
	}
	return nil
}

func createState(env *host.Env, address solana.PublicKey, state interface{}) error {
	exists, err := env.Exists(address)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", poolerr.ErrAlreadyExists, address)
	}
	return putState(env, address, state)
}

func expect(name string, got, want solana.PublicKey) error {
	if !got.Equals(want) {
		return fmt.Errorf("%s: got %s, want %s", name, got, want)
	}
	return nil
}
