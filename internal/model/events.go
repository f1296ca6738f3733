package model

// AddLiquidityEventData is the decoded AddLiquidity payload.
type AddLiquidityEventData struct {
	Provider    string `json:"provider"`
	EthAmount   string `json:"eth_amount"`
	TokenAmount string `json:"token_amount"`
}

// RemoveLiquidityEventData is the decoded RemoveLiquidity payload.
type RemoveLiquidityEventData struct {
	Provider    string `json:"provider"`
	EthAmount   string `json:"eth_amount"`
	TokenAmount string `json:"token_amount"`
}

// TokenPurchaseEventData is the decoded TokenPurchase payload (base in, token out).
type TokenPurchaseEventData struct {
	Buyer        string `json:"buyer"`
	EthSold      string `json:"eth_sold"`
	TokensBought string `json:"tokens_bought"`
}

// EthPurchaseEventData is the decoded EthPurchase payload (token in, base out).
type EthPurchaseEventData struct {
	Seller     string `json:"seller"`
	EthBought  string `json:"eth_bought"`
	TokensSold string `json:"tokens_sold"`
}
