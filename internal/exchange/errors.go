package exchange

import "errors"

var (
	// ErrInsufficientTokenAmount is returned when a deposit's token amount is
	// zero or below the amount the current ratio requires.
	ErrInsufficientTokenAmount = errors.New("insufficient token amount")
	// ErrInvalidWithdrawAmount is returned when shares to burn are zero or exceed the caller's balance.
	ErrInvalidWithdrawAmount = errors.New("invalid withdraw amount")
	// ErrInsufficientOutputAmount is returned when a swap yields less than the caller's minimum.
	ErrInsufficientOutputAmount = errors.New("insufficient output amount")
	// ErrInvalidPoolAddress is returned when a token-to-token swap has no pool for its target.
	ErrInvalidPoolAddress = errors.New("invalid pool address")
	// ErrInvalidTokenAddress is returned when a pool is requested for a zero or unknown token.
	ErrInvalidTokenAddress = errors.New("invalid token address")
	// ErrPoolAlreadyExists is returned when a token is registered twice.
	ErrPoolAlreadyExists = errors.New("pool already exists")
	// ErrReentrantCall is returned when a pool is re-entered while one of its
	// mutating operations is still in flight.
	ErrReentrantCall = errors.New("reentrant call")
	// ErrZeroLiquidity is returned when the first deposit leaves either reserve empty.
	ErrZeroLiquidity = errors.New("zero liquidity")
	// ErrPoolNotFound is returned when no pool is registered for a token.
	ErrPoolNotFound = errors.New("pool not found")
	// ErrTokenNotFound is returned when an address names no token in the world.
	ErrTokenNotFound = errors.New("token not found")
	// ErrSnapshotMismatch is returned by Restore when recorded pool totals
	// disagree with the balances rebuilt from the snapshot.
	ErrSnapshotMismatch = errors.New("snapshot mismatch")
)
