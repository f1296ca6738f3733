package dex

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"liquidityEngine/internal/chain"
	"liquidityEngine/internal/model"
)

// fakeEth serves the eth_ namespace for one exchange and its token.
type fakeEth struct {
	pool         common.Address
	token        common.Address
	tokenReserve *big.Int
	baseReserve  *big.Int
	exchangeABI  abi.ABI
	erc20ABI     abi.ABI
}

func (f *fakeEth) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(31337))
}

func (f *fakeEth) GetBalance(account common.Address, block string) *hexutil.Big {
	if account == f.pool {
		return (*hexutil.Big)(f.baseReserve)
	}
	return (*hexutil.Big)(new(big.Int))
}

func (f *fakeEth) Call(args map[string]interface{}, block string) (hexutil.Bytes, error) {
	raw, _ := args["input"].(string)
	if raw == "" {
		raw, _ = args["data"].(string)
	}
	input, err := hexutil.Decode(raw)
	if err != nil || len(input) < 4 {
		return nil, fmt.Errorf("bad call input %q", raw)
	}
	to := common.HexToAddress(fmt.Sprint(args["to"]))

	var parsed abi.ABI
	var results []interface{}
	switch to {
	case f.pool:
		parsed = f.exchangeABI
	case f.token:
		parsed = f.erc20ABI
	default:
		return nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	method, err := parsed.MethodById(input[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "tokenAddress":
		results = []interface{}{f.token}
	case "decimals":
		results = []interface{}{uint8(18)}
	case "symbol":
		results = []interface{}{"TKN"}
	case "name":
		results = []interface{}{"Token"}
	case "balanceOf":
		results = []interface{}{f.tokenReserve}
	default:
		return nil, fmt.Errorf("unsupported method %s", method.Name)
	}
	return method.Outputs.Pack(results...)
}

func newFakeChain(t *testing.T) (*chain.Client, *fakeEth) {
	t.Helper()
	exchangeABI, err := ExchangeABI()
	if err != nil {
		t.Fatalf("exchange abi: %v", err)
	}
	erc20, err := erc20ABIStringInstance()
	if err != nil {
		t.Fatalf("erc20 abi: %v", err)
	}
	fake := &fakeEth{
		pool:         common.HexToAddress("0x5555555555555555555555555555555555555555"),
		token:        common.HexToAddress("0x6666666666666666666666666666666666666666"),
		tokenReserve: big.NewInt(2000),
		baseReserve:  big.NewInt(1000),
		exchangeABI:  exchangeABI,
		erc20ABI:     erc20,
	}
	server := rpc.NewServer()
	if err := server.RegisterName("eth", fake); err != nil {
		t.Fatalf("register: %v", err)
	}
	client := chain.NewClientFromRPC(rpc.DialInProc(server))
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client, fake
}

func TestFetchPoolMetaAndReserves(t *testing.T) {
	client, fake := newFakeChain(t)
	ctx := context.Background()

	tokenCache := NewTokenMetaCache()
	meta, err := FetchPoolMeta(ctx, client, fake.pool, tokenCache, zap.NewNop())
	if err != nil {
		t.Fatalf("fetch pool meta: %v", err)
	}
	if meta.Token != fake.token.Hex() || meta.Symbol != "TKN" || meta.Decimals != 18 {
		t.Fatalf("pool meta mismatch: %+v", meta)
	}
	if cached, ok := tokenCache.Get(fake.token); !ok || cached.Name != "Token" {
		t.Fatalf("token cache not filled: %+v", cached)
	}

	reserves, err := FetchReserves(ctx, client, fake.pool, fake.token, nil)
	if err != nil {
		t.Fatalf("fetch reserves: %v", err)
	}
	if reserves.Token.Cmp(big.NewInt(2000)) != 0 || reserves.Base.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("reserves mismatch: %s/%s", reserves.Token, reserves.Base)
	}

	chainID, err := client.GetChainID(ctx)
	if err != nil || chainID.Uint64() != 31337 {
		t.Fatalf("chain id mismatch: %v %v", chainID, err)
	}
}

func TestDecodeWithLiveReserves(t *testing.T) {
	client, fake := newFakeChain(t)
	exchangeABI, _ := ExchangeABI()
	decoder, err := NewExchangeDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	seller := common.HexToAddress("0x7777777777777777777777777777777777777777")
	data, _ := exchangeABI.Events["EthPurchase"].Inputs.NonIndexed().Pack(big.NewInt(10), big.NewInt(21))
	logRecord := buildLogRecord(fake.pool, exchangeABI.Events["EthPurchase"].ID, data, []common.Hash{topicFromAddress(seller)})

	poolCache := NewPoolMetaCache()
	event, err := decoder.Decode(logRecord, DecodeContext{
		Context:             context.Background(),
		Chain:               client,
		PoolMetaCache:       poolCache,
		TokenMetaCache:      NewTokenMetaCache(),
		Logger:              zap.NewNop(),
		IncludeLiveReserves: true,
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.PoolMeta.TokenReserve != "2000" || event.PoolMeta.BaseReserve != "1000" {
		t.Fatalf("live reserves missing: %+v", event.PoolMeta)
	}
	cached, ok := poolCache.Get(fake.pool)
	if !ok || cached.Symbol != "TKN" || cached.TokenReserve != "" {
		t.Fatalf("cache should hold static metadata only: %+v", cached)
	}
}

func TestSeedFromWorld(t *testing.T) {
	state := model.NewWorldState()
	state.Tokens = []model.TokenState{{Address: "0x6666666666666666666666666666666666666666", Symbol: "TKN"}}
	state.Pools = []model.PoolState{{Address: "0x5555555555555555555555555555555555555555", Token: "0x6666666666666666666666666666666666666666"}}

	pools := NewPoolMetaCache()
	tokens := NewTokenMetaCache()
	SeedFromWorld(state, 18, pools, tokens)

	meta, ok := pools.Get(common.HexToAddress("0x5555555555555555555555555555555555555555"))
	if !ok || meta.Symbol != "TKN" || meta.Decimals != 18 {
		t.Fatalf("pool meta mismatch: %+v", meta)
	}
	if _, ok := tokens.Get(common.HexToAddress("0x6666666666666666666666666666666666666666")); !ok {
		t.Fatalf("token meta missing")
	}
}
