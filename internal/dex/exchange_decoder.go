package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"liquidityEngine/internal/model"
)

// DecoderConfig configures decoder behavior. Topic0Map adds aliases for
// deployments whose event signatures differ from the canonical ABI.
type DecoderConfig struct {
	Topic0Map map[string]string
}

// ExchangeDecoder decodes exchange pool events.
type ExchangeDecoder struct {
	exchangeABI abi.ABI
	topicToName map[string]string
}

var eventNames = []string{"AddLiquidity", "RemoveLiquidity", "TokenPurchase", "EthPurchase"}

// NewExchangeDecoder builds an exchange event decoder.
func NewExchangeDecoder(cfg DecoderConfig) (*ExchangeDecoder, error) {
	exchangeABI, err := ExchangeABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(eventNames)+len(cfg.Topic0Map))
	for _, name := range eventNames {
		topicToName[strings.ToLower(exchangeABI.Events[name].ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &ExchangeDecoder{
		exchangeABI: exchangeABI,
		topicToName: topicToName,
	}, nil
}

// Topic0s returns the canonical topic0 of every supported event.
func (d *ExchangeDecoder) Topic0s() []common.Hash {
	out := make([]common.Hash, 0, len(eventNames))
	for _, name := range eventNames {
		out = append(out, d.exchangeABI.Events[name].ID)
	}
	return out
}

// CanDecode checks if the topic0 is supported.
func (d *ExchangeDecoder) CanDecode(topic0 string) bool {
	_, ok := d.EventName(topic0)
	return ok
}

// EventName returns the exchange event a topic0 selects.
func (d *ExchangeDecoder) EventName(topic0 string) (string, bool) {
	if topic0 == "" {
		return "", false
	}
	name, ok := d.topicToName[strings.ToLower(topic0)]
	return name, ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *ExchangeDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}

	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}
	pool := common.HexToAddress(log.Address)

	account, first, second, err := d.decodeAmounts(name, log)
	if err != nil {
		return nil, err
	}

	poolMeta, err := getPoolMeta(ctx, pool, log.BlockNumber)
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	switch name {
	case "AddLiquidity":
		decoded = model.AddLiquidityEventData{Provider: account.Hex(), EthAmount: first.String(), TokenAmount: second.String()}
	case "RemoveLiquidity":
		decoded = model.RemoveLiquidityEventData{Provider: account.Hex(), EthAmount: first.String(), TokenAmount: second.String()}
	case "TokenPurchase":
		decoded = model.TokenPurchaseEventData{Buyer: account.Hex(), EthSold: first.String(), TokensBought: second.String()}
	case "EthPurchase":
		decoded = model.EthPurchaseEventData{Seller: account.Hex(), EthBought: first.String(), TokensSold: second.String()}
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
	return buildTypedEvent(log, name, decoded, poolMeta), nil
}

// decodeAmounts reads the indexed account and the two uint256 amounts every
// exchange event carries, in ABI order (base side first).
func (d *ExchangeDecoder) decodeAmounts(name string, log model.LogRecord) (common.Address, *big.Int, *big.Int, error) {
	event := d.exchangeABI.Events[name]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return common.Address{}, nil, nil, err
	}

	var indexed struct {
		Provider common.Address
		Buyer    common.Address
		Seller   common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("parse topics: %w", err)
	}
	account := indexed.Provider
	switch name {
	case "TokenPurchase":
		account = indexed.Buyer
	case "EthPurchase":
		account = indexed.Seller
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	if len(values) != 2 {
		return common.Address{}, nil, nil, fmt.Errorf("unexpected %s values: %d", name, len(values))
	}
	first, err := asBigInt(values[0])
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	second, err := asBigInt(values[1])
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	return account, first, second, nil
}

func normalizeEventName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "addliquidity", "add_liquidity":
		return "AddLiquidity"
	case "removeliquidity", "remove_liquidity":
		return "RemoveLiquidity"
	case "tokenpurchase", "token_purchase":
		return "TokenPurchase"
	case "ethpurchase", "eth_purchase":
		return "EthPurchase"
	default:
		return ""
	}
}

func getPoolMeta(ctx DecodeContext, pool common.Address, blockNumber uint64) (model.PoolMeta, error) {
	var meta model.PoolMeta
	var ok bool
	if ctx.PoolMetaCache != nil {
		meta, ok = ctx.PoolMetaCache.Get(pool)
	}
	if ok && (!ctx.IncludeLiveReserves || ctx.Chain == nil) {
		return meta, nil
	}
	if ctx.Chain == nil {
		return model.PoolMeta{}, fmt.Errorf("no metadata for pool %s and chain client is nil", pool.Hex())
	}

	callCtx := ctx.Context
	if callCtx == nil {
		callCtx = context.Background()
	}

	if !ok {
		var err error
		meta, err = FetchPoolMeta(callCtx, ctx.Chain, pool, ctx.TokenMetaCache, ctx.Logger)
		if err != nil {
			return model.PoolMeta{}, err
		}
		if ctx.PoolMetaCache != nil {
			ctx.PoolMetaCache.Set(pool, meta)
		}
	}

	if ctx.IncludeLiveReserves {
		var block *big.Int
		if blockNumber > 0 {
			block = new(big.Int).SetUint64(blockNumber)
		}
		token := common.HexToAddress(meta.Token)
		if reserves, err := FetchReserves(callCtx, ctx.Chain, pool, token, block); err == nil {
			meta.TokenReserve = reserves.Token.String()
			meta.BaseReserve = reserves.Base.String()
		}
	}
	return meta, nil
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}, meta model.PoolMeta) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Op:          log.Op,
		Decoded:     decoded,
		PoolMeta:    meta,
		Raw:         raw,
	}
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
