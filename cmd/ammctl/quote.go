package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityEngine/internal/chain"
	"liquidityEngine/internal/config"
	"liquidityEngine/internal/dex"
	"liquidityEngine/internal/pricing"
	"liquidityEngine/internal/units"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap against given reserves or a deployed exchange",
		RunE:  runQuote,
	}

	cmd.Flags().String("amount", "", "input amount")
	cmd.Flags().String("reserve-in", "", "input-side reserve (offline quote)")
	cmd.Flags().String("reserve-out", "", "output-side reserve (offline quote)")
	cmd.Flags().String("rpc", "", "RPC URL (live quote)")
	cmd.Flags().String("exchange", "", "exchange address (live quote)")
	cmd.Flags().Uint64("block", 0, "block to read reserves at, 0 means latest")
	cmd.Flags().String("side", "base", "asset sold on a live quote (base, token)")
	cmd.Flags().Uint("decimals", 18, "decimals of amounts and reserves")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadQuote(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	amount, err := units.Parse(cfg.Amount, cfg.Decimals)
	if err != nil {
		return err
	}

	var reserveIn, reserveOut *uint256.Int
	if cfg.Live() {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		reserveIn, reserveOut, err = liveReserves(ctx, cfg, logger)
	} else {
		reserveIn, reserveOut, err = offlineReserves(cfg)
	}
	if err != nil {
		return err
	}

	out, err := pricing.GetAmount(amount, reserveIn, reserveOut)
	if err != nil {
		return err
	}

	logger.Info("quote",
		zap.String("amount_in", amount.Dec()),
		zap.String("reserve_in", reserveIn.Dec()),
		zap.String("reserve_out", reserveOut.Dec()),
		zap.String("amount_out", out.Dec()),
	)
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (raw %s)\n", units.Format(out, cfg.Decimals), out.Dec())
	return err
}

func offlineReserves(cfg config.QuoteConfig) (*uint256.Int, *uint256.Int, error) {
	in, err := units.Parse(cfg.ReserveIn, cfg.Decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("reserve-in: %w", err)
	}
	out, err := units.Parse(cfg.ReserveOut, cfg.Decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("reserve-out: %w", err)
	}
	return in, out, nil
}

// liveReserves orders the exchange's reserves so the sold side comes first.
func liveReserves(ctx context.Context, cfg config.QuoteConfig, logger *zap.Logger) (*uint256.Int, *uint256.Int, error) {
	if !common.IsHexAddress(cfg.Exchange) {
		return nil, nil, fmt.Errorf("invalid exchange address: %s", cfg.Exchange)
	}
	pool := common.HexToAddress(cfg.Exchange)

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	token, err := dex.FetchExchangeToken(ctx, chainClient, pool)
	if err != nil {
		return nil, nil, err
	}

	var block *big.Int
	if cfg.Block > 0 {
		block = new(big.Int).SetUint64(cfg.Block)
	}
	reserves, err := dex.FetchReserves(ctx, chainClient, pool, token, block)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("live reserves",
		zap.String("exchange", pool.Hex()),
		zap.String("token", token.Hex()),
		zap.String("base", units.FormatString(reserves.Base.String(), cfg.Decimals)),
		zap.String("token_reserve", units.FormatString(reserves.Token.String(), cfg.Decimals)),
	)

	base, overflow := uint256.FromBig(reserves.Base)
	if overflow {
		return nil, nil, fmt.Errorf("base reserve: %w", units.ErrRange)
	}
	tokenReserve, overflow := uint256.FromBig(reserves.Token)
	if overflow {
		return nil, nil, fmt.Errorf("token reserve: %w", units.ErrRange)
	}

	if cfg.Side == "token" {
		return tokenReserve, base, nil
	}
	return base, tokenReserve, nil
}
