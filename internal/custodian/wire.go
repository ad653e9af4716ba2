package custodian

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// Method names a custodian entry point.
type Method string

const (
	MethodDelegate   Method = "delegate"
	MethodUndelegate Method = "undelegate"
	MethodRestake    Method = "restake"
	MethodUnrestake  Method = "unrestake"
)

// Methods lists every entry point the pool calls out to.
var Methods = []Method{MethodDelegate, MethodUndelegate, MethodRestake, MethodUnrestake}

// PayloadSize is discriminator(8) followed by a little-endian u64 amount.
const PayloadSize = 16

// Discriminator is the first 8 bytes of sha256("global:" + method).
func Discriminator(m Method) [8]byte {
	return [8]byte(bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, string(m)))
}

type payload struct {
	Discriminator [8]byte
	Amount        uint64
}

// EncodePayload builds the instruction data for m.
func EncodePayload(m Method, amount uint64) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(payload{
		Discriminator: Discriminator(m),
		Amount:        amount,
	}); err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", m, err)
	}
	return buf.Bytes(), nil
}

// DecodePayload recovers the method and amount from instruction data.
func DecodePayload(data []byte) (Method, uint64, error) {
	if len(data) != PayloadSize {
		return "", 0, fmt.Errorf("payload length %d, want %d", len(data), PayloadSize)
	}
	var p payload
	if err := bin.NewBorshDecoder(data).Decode(&p); err != nil {
		return "", 0, fmt.Errorf("decode payload: %w", err)
	}
	for _, m := range Methods {
		if Discriminator(m) == p.Discriminator {
			return m, p.Amount, nil
		}
	}
	return "", 0, fmt.Errorf("unknown discriminator %x", p.Discriminator)
}
