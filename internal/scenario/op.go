package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"liquidityEngine/internal/storage"
)

// Op names accepted in scenario files.
const (
	OpCreateToken     = "create_token"
	OpMintToken       = "mint_token"
	OpFund            = "fund"
	OpApprove         = "approve"
	OpCreatePool      = "create_pool"
	OpAddLiquidity    = "add_liquidity"
	OpRemoveLiquidity = "remove_liquidity"
	OpEthToToken      = "eth_to_token"
	OpTokenToEth      = "token_to_eth"
	OpTokenToToken    = "token_to_token"
)

var ErrInvalidOp = errors.New("invalid scenario op")

// Op is one line of a scenario file. Accounts are hex addresses or names;
// a name maps to the last 20 bytes of its keccak256 hash. Tokens are hex
// addresses or symbols of tokens created earlier. A spender written as
// "pool:SYMBOL" is that token's pool. Amounts are decimal unit strings,
// or raw integers with a "raw:" prefix.
type Op struct {
	Op      string `json:"op"`
	Symbol  string `json:"symbol,omitempty"`
	Token   string `json:"token,omitempty"`
	Target  string `json:"target,omitempty"`
	Sender  string `json:"sender,omitempty"`
	To      string `json:"to,omitempty"`
	Spender string `json:"spender,omitempty"`
	Value   string `json:"value,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Min     string `json:"min,omitempty"`

	Line int `json:"-"`
}

func (o Op) String() string {
	return fmt.Sprintf("%s (line %d)", o.Op, o.Line)
}

// Validate checks the fields each op needs.
func (o Op) Validate() error {
	need := func(fields ...string) error {
		var missing []string
		values := map[string]string{
			"symbol": o.Symbol, "token": o.Token, "target": o.Target, "sender": o.Sender,
			"to": o.To, "spender": o.Spender, "value": o.Value, "amount": o.Amount,
		}
		for _, f := range fields {
			if strings.TrimSpace(values[f]) == "" {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s missing %s", ErrInvalidOp, o, strings.Join(missing, ", "))
		}
		return nil
	}

	switch o.Op {
	case OpCreateToken:
		return need("symbol")
	case OpMintToken:
		return need("token", "to", "amount")
	case OpFund:
		return need("to", "amount")
	case OpApprove:
		return need("token", "sender", "spender", "amount")
	case OpCreatePool:
		return need("token")
	case OpAddLiquidity:
		return need("token", "sender", "value", "amount")
	case OpRemoveLiquidity, OpTokenToEth:
		return need("token", "sender", "amount")
	case OpEthToToken:
		return need("token", "sender", "value")
	case OpTokenToToken:
		return need("token", "target", "sender", "amount")
	default:
		return fmt.Errorf("%w: unknown op %q (line %d)", ErrInvalidOp, o.Op, o.Line)
	}
}

// ReadOps parses a JSONL scenario.
func ReadOps(r io.Reader) ([]Op, error) {
	var ops []Op
	err := storage.ScanJSONL(r, func(lineNo int, line []byte) error {
		var op Op
		if err := json.Unmarshal(line, &op); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrInvalidOp, lineNo, err)
		}
		op.Op = strings.ToLower(strings.TrimSpace(op.Op))
		op.Line = lineNo
		if err := op.Validate(); err != nil {
			return err
		}
		ops = append(ops, op)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// ReadOpsFile parses the scenario at path.
func ReadOpsFile(path string) ([]Op, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer file.Close()
	return ReadOps(file)
}

// AccountAddress resolves an account field.
func AccountAddress(s string) common.Address {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return common.HexToAddress(s)
	}
	return common.BytesToAddress(crypto.Keccak256([]byte(s))[12:])
}
