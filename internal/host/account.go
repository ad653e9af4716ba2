package host

import (
	"github.com/gagliardetto/solana-go"
)

// Kind tags the payload carried by an Account.
type Kind string

const (
	KindMint  Kind = "mint"
	KindToken Kind = "token"
	KindData  Kind = "data"
)

// Account is the unit of state the host stores and locks.
type Account struct {
	Address solana.PublicKey `json:"address"`
	Owner   solana.PublicKey `json:"owner"`
	Kind    Kind             `json:"kind"`
	Mint    *Mint            `json:"mint,omitempty"`
	Token   *TokenAccount    `json:"token,omitempty"`
	Data    []byte           `json:"data,omitempty"`
}

// Mint is an asset definition with its issued supply.
type Mint struct {
	Decimals        uint8            `json:"decimals"`
	Supply          uint64           `json:"supply"`
	MintAuthority   solana.PublicKey `json:"mint_authority"`
	FreezeAuthority solana.PublicKey `json:"freeze_authority"`
}

// TokenAccount is a single-asset balance held for an owner.
type TokenAccount struct {
	Mint   solana.PublicKey `json:"mint"`
	Owner  solana.PublicKey `json:"owner"`
	Amount uint64           `json:"amount"`
}

// Clone returns a deep copy so transactions never alias committed state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Mint != nil {
		m := *a.Mint
		out.Mint = &m
	}
	if a.Token != nil {
		t := *a.Token
		out.Token = &t
	}
	if a.Data != nil {
		out.Data = append([]byte(nil), a.Data...)
	}
	return &out
}
