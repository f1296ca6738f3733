package dex

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"liquidityEngine/internal/exchange"
	"liquidityEngine/internal/model"
)

// Encoder renders exchange receipts as the logs a deployed exchange would
// emit, so simulated and on-chain activity share one decode path.
type Encoder struct {
	chainID     uint64
	exchangeABI abi.ABI
}

func NewEncoder(chainID uint64) (*Encoder, error) {
	exchangeABI, err := ExchangeABI()
	if err != nil {
		return nil, err
	}
	return &Encoder{chainID: chainID, exchangeABI: exchangeABI}, nil
}

// Logs encodes every event of a committed receipt. The receipt sequence is
// used as the block number and a hash of (seq, op, sender) as the tx hash.
func (e *Encoder) Logs(r exchange.Receipt) ([]types.Log, error) {
	if r.Err != nil || len(r.Events) == 0 {
		return nil, nil
	}
	txHash := receiptHash(r)
	out := make([]types.Log, 0, len(r.Events))
	for i, ev := range r.Events {
		event, ok := e.exchangeABI.Events[string(ev.Kind)]
		if !ok {
			return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
		}
		data, err := event.Inputs.NonIndexed().Pack(ev.BaseAmount.ToBig(), ev.TokenAmount.ToBig())
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", ev.Kind, err)
		}
		out = append(out, types.Log{
			Address:     ev.Pool,
			Topics:      []common.Hash{event.ID, common.BytesToHash(ev.Account.Bytes())},
			Data:        data,
			BlockNumber: r.Seq,
			TxHash:      txHash,
			Index:       uint(i),
		})
	}
	return out, nil
}

// Records encodes a receipt straight to LogRecords stamped with timestamp.
func (e *Encoder) Records(r exchange.Receipt, timestamp uint64, ingestedAt time.Time) ([]model.LogRecord, error) {
	logs, err := e.Logs(r)
	if err != nil {
		return nil, err
	}
	out := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		rec := LogRecordFromLog(e.chainID, log, timestamp, ingestedAt)
		rec.Op = r.Op
		out = append(out, rec)
	}
	return out, nil
}

// LogRecordFromLog normalizes a go-ethereum log. A zero ingestedAt leaves
// the field empty.
func LogRecordFromLog(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	rec := model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Timestamp:   timestamp,
	}
	if !ingestedAt.IsZero() {
		rec.IngestedAt = ingestedAt.UTC().Format(time.RFC3339Nano)
	}
	return rec
}

func receiptHash(r exchange.Receipt) common.Hash {
	seq := binary.BigEndian.AppendUint64(nil, r.Seq)
	return crypto.Keccak256Hash(seq, []byte(r.Op), r.Sender.Bytes())
}
