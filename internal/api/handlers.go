package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityEngine/internal/exchange"
	"liquidityEngine/internal/pricing"
	"liquidityEngine/internal/units"
)

var errBadRequest = errors.New("bad request")

// PoolView is the JSON shape of a pool. Amounts are raw integer strings;
// SpotPrice is base per whole token.
type PoolView struct {
	Address      string `json:"address"`
	Token        string `json:"token"`
	Symbol       string `json:"symbol"`
	TokenReserve string `json:"token_reserve"`
	BaseReserve  string `json:"base_reserve"`
	ShareSupply  string `json:"share_supply"`
	SpotPrice    string `json:"spot_price,omitempty"`
}

// QuoteView is the JSON shape of a quote.
type QuoteView struct {
	Pool      string `json:"pool"`
	Side      string `json:"side"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	// Display renders AmountOut in whole units.
	Display string `json:"amount_out_display"`
}

func newPoolView(p exchange.PoolSnapshot) PoolView {
	view := PoolView{
		Address:      p.Address.Hex(),
		Token:        p.Token.Hex(),
		Symbol:       p.Symbol,
		TokenReserve: p.TokenReserve.Dec(),
		BaseReserve:  p.BaseReserve.Dec(),
		ShareSupply:  p.ShareSupply.Dec(),
	}
	if !p.TokenReserve.IsZero() {
		base := decimal.NewFromBigInt(p.BaseReserve.ToBig(), 0)
		token := decimal.NewFromBigInt(p.TokenReserve.ToBig(), 0)
		view.SpotPrice = base.DivRound(token, 18).String()
	}
	return view
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"seq":    s.ex.Seq(),
		"pools":  len(s.ex.Pools()),
	})
}

func (s *Server) handleListPools(c *gin.Context) {
	pools := s.ex.Pools()
	out := make([]PoolView, 0, len(pools))
	for _, p := range pools {
		out = append(out, newPoolView(p))
	}
	c.JSON(http.StatusOK, gin.H{"pools": out})
}

func (s *Server) handleGetPool(c *gin.Context) {
	token, err := s.resolveToken(c.Param("token"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	snap, err := s.ex.PoolState(token)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPoolView(snap))
}

// handleQuote handles GET /pools/:token/quote?side=base|token&amount=...
// side names the asset being sold.
func (s *Server) handleQuote(c *gin.Context) {
	token, err := s.resolveToken(c.Param("token"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	side := strings.ToLower(c.DefaultQuery("side", "base"))
	amount, err := units.Parse(c.Query("amount"), s.decimals)
	if err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	var out *uint256.Int
	switch side {
	case "base":
		out, err = s.ex.GetTokenAmount(token, amount)
	case "token":
		out, err = s.ex.GetEthAmount(token, amount)
	default:
		err = fmt.Errorf("%w: side must be base or token", errBadRequest)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	pool, _ := s.ex.GetPool(token)
	c.JSON(http.StatusOK, QuoteView{
		Pool:      pool.Hex(),
		Side:      side,
		AmountIn:  amount.Dec(),
		AmountOut: out.Dec(),
		Display:   units.Format(out, s.decimals),
	})
}

// resolveToken accepts a token address or a pool's token symbol.
func (s *Server) resolveToken(raw string) (common.Address, error) {
	if common.IsHexAddress(raw) {
		return common.HexToAddress(raw), nil
	}
	for _, p := range s.ex.Pools() {
		if strings.EqualFold(p.Symbol, raw) {
			return p.Token, nil
		}
	}
	return common.Address{}, fmt.Errorf("%w: %s", exchange.ErrPoolNotFound, raw)
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("api error", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, exchange.ErrPoolNotFound), errors.Is(err, exchange.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, pricing.ErrDegenerateReserves):
		return http.StatusConflict
	case errors.Is(err, pricing.ErrOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
