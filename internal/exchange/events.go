package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityEngine/internal/ledger"
)

type EventKind string

const (
	EventAddLiquidity    EventKind = "AddLiquidity"
	EventRemoveLiquidity EventKind = "RemoveLiquidity"
	EventTokenPurchase   EventKind = "TokenPurchase"
	EventEthPurchase     EventKind = "EthPurchase"
)

// Event is emitted once per successful mutating pool call. Account is the
// provider, buyer or seller; for routed swaps it is the original caller.
type Event struct {
	Kind        EventKind
	Pool        common.Address
	Token       common.Address
	Account     common.Address
	BaseAmount  *uint256.Int
	TokenAmount *uint256.Int
}

// EventLog is the ordered, journaled event buffer shared by all pools.
type EventLog struct {
	journal *ledger.Journal
	events  []Event
}

func NewEventLog(journal *ledger.Journal) *EventLog {
	return &EventLog{journal: journal}
}

func (l *EventLog) emit(e Event) {
	n := len(l.events)
	l.events = append(l.events, e)
	l.journal.Append(func() { l.events = l.events[:n] })
}

// Drain returns the buffered events and empties the buffer. Only call it
// after the journal has been committed or reverted.
func (l *EventLog) Drain() []Event {
	out := l.events
	l.events = nil
	return out
}

func (l *EventLog) Len() int {
	return len(l.events)
}
