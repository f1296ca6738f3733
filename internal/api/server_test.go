package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityEngine/internal/exchange"
	"liquidityEngine/internal/metrics"
	"liquidityEngine/internal/units"
)

var lp = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func newTestServer(t *testing.T) (*Server, common.Address) {
	t.Helper()
	reg := prometheus.NewRegistry()
	ex := exchange.New(nil, common.Address{}, metrics.New(reg, units.DefaultDecimals))

	token, err := ex.CreateToken("TKN")
	require.NoError(t, err)
	pool, err := ex.CreatePool(token)
	require.NoError(t, err)
	tokenReserve := units.MustParse("2000", units.DefaultDecimals)
	baseReserve := units.MustParse("1000", units.DefaultDecimals)
	require.NoError(t, ex.MintToken(token, lp, tokenReserve))
	require.NoError(t, ex.Fund(lp, baseReserve))
	require.NoError(t, ex.Approve(token, lp, pool, tokenReserve))
	_, err = ex.AddLiquidity(token, exchange.Msg{Sender: lp, Value: baseReserve}, tokenReserve)
	require.NoError(t, err)

	// a second token without liquidity
	empty, err := ex.CreateToken("NIL")
	require.NoError(t, err)
	_, err = ex.CreatePool(empty)
	require.NoError(t, err)

	return NewServer(ex, reg, units.DefaultDecimals, nil), token
}

func get(t *testing.T, s *Server, path string) (int, []byte) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return rec.Code, body
}

func TestPools(t *testing.T) {
	s, token := newTestServer(t)

	code, body := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"status":"ok"`)

	code, body = get(t, s, "/pools")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Pools []PoolView `json:"pools"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Pools, 2)

	code, body = get(t, s, "/pools/"+token.Hex())
	require.Equal(t, http.StatusOK, code)
	var view PoolView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "TKN", view.Symbol)
	assert.Equal(t, "2000000000000000000000", view.TokenReserve)
	assert.Equal(t, "1000000000000000000000", view.BaseReserve)
	assert.Equal(t, "1000000000000000000000", view.ShareSupply)
	assert.Equal(t, "0.5", view.SpotPrice)

	code, body = get(t, s, "/pools/tkn")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, token.Hex(), view.Token)

	code, _ = get(t, s, "/pools/UNKNOWN")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestQuote(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := get(t, s, "/pools/TKN/quote?side=base&amount=1")
	require.Equal(t, http.StatusOK, code, string(body))
	var quote QuoteView
	require.NoError(t, json.Unmarshal(body, &quote))
	assert.Equal(t, "1000000000000000000", quote.AmountIn)
	assert.Equal(t, "1978041738678708079", quote.AmountOut)
	assert.Equal(t, "1.978041738678708079", quote.Display)

	code, _ = get(t, s, "/pools/TKN/quote?side=sideways&amount=1")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = get(t, s, "/pools/TKN/quote?amount=-1")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = get(t, s, "/pools/TKN/quote?amount=1e2000000000")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(body), "256 bits")

	code, _ = get(t, s, "/pools/NIL/quote?side=token&amount=1")
	assert.Equal(t, http.StatusConflict, code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	code, body := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(string(body), "amm_exchange_operations_total"))
	assert.Contains(t, string(body), `amm_pool_reserve{`)
}
