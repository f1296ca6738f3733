package model

// LogRecord is the normalized, EVM-shaped representation of an exchange
// event. Simulated runs use the operation sequence as BlockNumber.
type LogRecord struct {
	ChainID     uint64   `json:"chain_id"`
	BlockNumber uint64   `json:"block_number"`
	TxHash      string   `json:"tx_hash"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Timestamp   uint64   `json:"timestamp"`
	Op          string   `json:"op,omitempty"`
	IngestedAt  string   `json:"ingested_at,omitempty"`
}
