package dex

import (
	"context"

	"go.uber.org/zap"

	"liquidityEngine/internal/chain"
	"liquidityEngine/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext provides shared dependencies for decoders. Chain may be nil
// when PoolMetaCache was seeded from a world snapshot.
type DecodeContext struct {
	Context             context.Context
	Chain               *chain.Client
	PoolMetaCache       *PoolMetaCache
	TokenMetaCache      *TokenMetaCache
	Logger              *zap.Logger
	IncludeLiveReserves bool
}
