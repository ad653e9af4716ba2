package custodian

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/host"
	"lrtpool/internal/poolerr"
)

// Build assembles a call to program. The account order of metas is passed
// through untouched.
func Build(program solana.PublicKey, method Method, amount uint64, metas solana.AccountMetaSlice) (*solana.GenericInstruction, error) {
	if program.IsZero() {
		return nil, fmt.Errorf("%s: program id is empty", method)
	}
	data, err := EncodePayload(method, amount)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(program, metas, data), nil
}

// InvokeSigned runs ix with the authority derived from signerSeeds added to
// the signer set. With no seeds the call carries only the signers env
// already has. Any failure in the callee surfaces as
// poolerr.ErrExternalCallRejected.
func InvokeSigned(env *host.Env, signerSeeds [][]byte, ix solana.Instruction) error {
	signed := env
	if len(signerSeeds) > 0 {
		var err error
		if signed, err = env.Sign(signerSeeds); err != nil {
			return err
		}
	}
	if err := signed.Invoke(ix); err != nil {
		return fmt.Errorf("%w: %s: %v", poolerr.ErrExternalCallRejected, ix.ProgramID(), err)
	}
	return nil
}
