package model

// WorldStateVersion is bumped whenever the snapshot layout changes.
const WorldStateVersion = 1

// WorldState is a serializable snapshot of every ledger, pool and registry
// entry, plus the scenario progress it was taken at. Amounts are decimal
// integer strings keyed by hex address.
type WorldState struct {
	Version       int               `json:"version"`
	ChainID       uint64            `json:"chain_id"`
	Seq           uint64            `json:"seq"`
	LastApplied   int64             `json:"last_applied"`
	TokenNonce    uint64            `json:"token_nonce"`
	RegistryNonce uint64            `json:"registry_nonce"`
	Registry      string            `json:"registry"`
	Bank          map[string]string `json:"bank"`
	Tokens        []TokenState      `json:"tokens"`
	Pools         []PoolState       `json:"pools"`
	UpdatedAt     string            `json:"updated_at,omitempty"`
}

// TokenState is one token ledger.
type TokenState struct {
	Address    string                       `json:"address"`
	Symbol     string                       `json:"symbol"`
	Balances   map[string]string            `json:"balances"`
	Allowances map[string]map[string]string `json:"allowances,omitempty"`
}

// PoolState is one pool's share ledger. Reserves live in the token and bank
// ledgers and are repeated here for readers only.
type PoolState struct {
	Address      string            `json:"address"`
	Token        string            `json:"token"`
	Shares       map[string]string `json:"shares"`
	TokenReserve string            `json:"token_reserve,omitempty"`
	BaseReserve  string            `json:"base_reserve,omitempty"`
	ShareSupply  string            `json:"share_supply,omitempty"`
}

// NewWorldState returns an empty snapshot at the current version.
func NewWorldState() WorldState {
	return WorldState{
		Version:     WorldStateVersion,
		LastApplied: -1,
		Bank:        map[string]string{},
	}
}
