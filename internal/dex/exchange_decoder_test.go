package dex

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/exchange"
	"liquidityEngine/internal/model"
)

func TestExchangeDecoderAddLiquidity(t *testing.T) {
	exchangeABI, err := ExchangeABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	poolMetaCache := NewPoolMetaCache()
	poolMetaCache.Set(pool, model.PoolMeta{
		Token:    "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Symbol:   "TKN",
		Decimals: 18,
	})

	decoder, err := NewExchangeDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	ctx := DecodeContext{PoolMetaCache: poolMetaCache, Logger: zap.NewNop()}

	provider := common.HexToAddress("0x2222222222222222222222222222222222222222")
	data, err := exchangeABI.Events["AddLiquidity"].Inputs.NonIndexed().Pack(big.NewInt(1000), big.NewInt(2000))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	logRecord := buildLogRecord(pool, exchangeABI.Events["AddLiquidity"].ID, data, []common.Hash{topicFromAddress(provider)})

	event, err := decoder.Decode(logRecord, ctx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	add, ok := event.Decoded.(model.AddLiquidityEventData)
	if !ok {
		t.Fatalf("decoded type mismatch: %T", event.Decoded)
	}
	if add.Provider != provider.Hex() || add.EthAmount != "1000" || add.TokenAmount != "2000" {
		t.Fatalf("add liquidity mismatch: %+v", add)
	}
	if event.EventName != "AddLiquidity" || event.PoolMeta.Symbol != "TKN" {
		t.Fatalf("event mismatch: %+v", event)
	}
	if event.Raw == nil || event.Raw.Topic0 != logRecord.Topics[0] {
		t.Fatalf("raw ref mismatch")
	}
}

func TestExchangeDecoderRejects(t *testing.T) {
	exchangeABI, err := ExchangeABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewExchangeDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	ctx := DecodeContext{PoolMetaCache: NewPoolMetaCache()}

	if decoder.CanDecode("0x" + common.Bytes2Hex(make([]byte, 32))) {
		t.Fatalf("zero topic should not decode")
	}

	data, _ := exchangeABI.Events["EthPurchase"].Inputs.NonIndexed().Pack(big.NewInt(1), big.NewInt(2))
	noIndexed := buildLogRecord(pool, exchangeABI.Events["EthPurchase"].ID, data, nil)
	if _, err := decoder.Decode(noIndexed, ctx); err == nil {
		t.Fatalf("expected topic count error")
	}

	// unknown pool without a chain client cannot be enriched
	full := buildLogRecord(pool, exchangeABI.Events["EthPurchase"].ID, data, []common.Hash{topicFromAddress(pool)})
	if _, err := decoder.Decode(full, ctx); err == nil {
		t.Fatalf("expected missing metadata error")
	}

	if _, err := NewExchangeDecoder(DecoderConfig{Topic0Map: map[string]string{"0x01": "Swap"}}); err == nil {
		t.Fatalf("expected unsupported alias error")
	}
}

func TestExchangeDecoderTopicAlias(t *testing.T) {
	exchangeABI, err := ExchangeABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	alias := "0x00000000000000000000000000000000000000000000000000000000deadbeef"
	decoder, err := NewExchangeDecoder(DecoderConfig{Topic0Map: map[string]string{alias: "token_purchase"}})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if !decoder.CanDecode(alias) {
		t.Fatalf("alias not registered")
	}
	if _, ok := decoder.EventName(""); ok {
		t.Fatalf("empty topic should not resolve")
	}
	if name, ok := decoder.EventName(alias); !ok || name != "TokenPurchase" {
		t.Fatalf("alias resolves to %q", name)
	}

	pool := common.HexToAddress("0x3333333333333333333333333333333333333333")
	cache := NewPoolMetaCache()
	cache.Set(pool, model.PoolMeta{Token: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"})
	buyer := common.HexToAddress("0x4444444444444444444444444444444444444444")
	data, _ := exchangeABI.Events["TokenPurchase"].Inputs.NonIndexed().Pack(big.NewInt(7), big.NewInt(9))
	logRecord := buildLogRecord(pool, common.HexToHash(alias), data, []common.Hash{topicFromAddress(buyer)})

	event, err := decoder.Decode(logRecord, DecodeContext{PoolMetaCache: cache})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	purchase, ok := event.Decoded.(model.TokenPurchaseEventData)
	if !ok || purchase.Buyer != buyer.Hex() || purchase.EthSold != "7" || purchase.TokensBought != "9" {
		t.Fatalf("token purchase mismatch: %+v", event.Decoded)
	}
}

func TestEncoderDecoderRoundTrip(t *testing.T) {
	var receipts []exchange.Receipt
	ex := exchange.New(nil, common.Address{}, exchange.ObserverFunc(func(r exchange.Receipt) {
		receipts = append(receipts, r)
	}))

	lp := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	trader := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	e18 := uint256.NewInt(1_000_000_000_000_000_000)
	units := func(n uint64) *uint256.Int { return new(uint256.Int).Mul(uint256.NewInt(n), e18) }

	token, err := ex.CreateToken("TKN")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	pool, err := ex.CreatePool(token)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	must(ex.MintToken(token, lp, units(2000)))
	must(ex.Fund(lp, units(1000)))
	must(ex.Fund(trader, units(10)))
	must(ex.Approve(token, lp, pool, units(2000)))
	_, err = ex.AddLiquidity(token, exchange.Msg{Sender: lp, Value: units(1000)}, units(2000))
	must(err)
	bought, err := ex.EthToTokenSwap(token, exchange.Msg{Sender: trader, Value: units(2)}, nil)
	must(err)

	encoder, err := NewEncoder(31337)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	decoder, err := NewExchangeDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	poolCache := NewPoolMetaCache()
	tokenCache := NewTokenMetaCache()
	SeedFromWorld(ex.Snapshot(), 18, poolCache, tokenCache)
	ctx := DecodeContext{PoolMetaCache: poolCache, TokenMetaCache: tokenCache}

	var decoded []*model.TypedEvent
	ingestedAt := time.Unix(1700000000, 0)
	for _, r := range receipts {
		records, err := encoder.Records(r, 1700000000+r.Seq, ingestedAt)
		if err != nil {
			t.Fatalf("encode seq %d: %v", r.Seq, err)
		}
		for _, rec := range records {
			if rec.BlockNumber != r.Seq || rec.Op != r.Op || rec.ChainID != 31337 {
				t.Fatalf("record header mismatch: %+v", rec)
			}
			if !decoder.CanDecode(rec.Topics[0]) {
				t.Fatalf("cannot decode %s", rec.Topics[0])
			}
			event, err := decoder.Decode(rec, ctx)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			decoded = append(decoded, event)
		}
	}

	if len(decoded) != 2 {
		t.Fatalf("expected 2 events, got %d", len(decoded))
	}
	add, ok := decoded[0].Decoded.(model.AddLiquidityEventData)
	if !ok || add.Provider != lp.Hex() || add.EthAmount != units(1000).Dec() || add.TokenAmount != units(2000).Dec() {
		t.Fatalf("add liquidity mismatch: %+v", decoded[0].Decoded)
	}
	purchase, ok := decoded[1].Decoded.(model.TokenPurchaseEventData)
	if !ok {
		t.Fatalf("expected token purchase, got %T", decoded[1].Decoded)
	}
	if purchase.Buyer != trader.Hex() || purchase.EthSold != units(2).Dec() || purchase.TokensBought != bought.Dec() {
		t.Fatalf("token purchase mismatch: %+v", purchase)
	}
	if decoded[1].PoolMeta.Symbol != "TKN" || decoded[1].PoolMeta.Token != token.Hex() {
		t.Fatalf("pool meta mismatch: %+v", decoded[1].PoolMeta)
	}
	if decoded[1].Address != pool.Hex() {
		t.Fatalf("address mismatch: %s", decoded[1].Address)
	}
	if decoded[0].Op != "add_liquidity" || decoded[1].Op != "eth_to_token" {
		t.Fatalf("op mismatch: %s %s", decoded[0].Op, decoded[1].Op)
	}
}

func TestEncoderSkipsRevertedReceipts(t *testing.T) {
	encoder, err := NewEncoder(1)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	logs, err := encoder.Logs(exchange.Receipt{Seq: 3, Op: "eth_to_token", Err: exchange.ErrInsufficientOutputAmount})
	if err != nil || len(logs) != 0 {
		t.Fatalf("expected no logs, got %d (%v)", len(logs), err)
	}
}

func buildLogRecord(pool common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) model.LogRecord {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, topic0.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     56,
		BlockNumber: 12345,
		TxHash:      "0xdef",
		LogIndex:    1,
		Address:     pool.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   1700000000,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
