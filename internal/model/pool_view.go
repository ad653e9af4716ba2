package model

// PoolView is a pool record with its live balances, as printed by inspect.
type PoolView struct {
	Address           string         `json:"address"`
	Program           string         `json:"program"`
	Bump              uint8          `json:"bump"`
	Shape             string         `json:"shape"`
	InputMint         string         `json:"input_mint"`
	OutputMint        string         `json:"output_mint"`
	IntermediateMint  string         `json:"intermediate_mint,omitempty"`
	DelegateAuthority string         `json:"delegate_authority"`
	OutputSupply      uint64         `json:"output_supply"`
	Vaults            []VaultBalance `json:"vaults"`
}

// VaultBalance is the live amount held by one pool vault.
type VaultBalance struct {
	Role     string `json:"role"`
	Mint     string `json:"mint"`
	Decimals uint8  `json:"decimals"`
	Address  string `json:"address"`
	Amount   uint64 `json:"amount"`
}
