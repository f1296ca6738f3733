package model

// Pool is a registered exchange pool row for storage.
type Pool struct {
	ChainID    uint64 `json:"chain_id"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	Symbol     string `json:"symbol"`
	Registry   string `json:"registry"`
	CreatedSeq uint64 `json:"created_seq"`
}

// PoolMeta is the pool context attached to a decoded event.
type PoolMeta struct {
	Token        string `json:"token"`
	Symbol       string `json:"symbol,omitempty"`
	Decimals     uint8  `json:"decimals"`
	TokenReserve string `json:"token_reserve,omitempty"`
	BaseReserve  string `json:"base_reserve,omitempty"`
}
