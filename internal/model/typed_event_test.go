package model

import (
	"encoding/json"
	"testing"
)

func TestEventDataJSONStringAmounts(t *testing.T) {
	payload := TokenPurchaseEventData{
		Buyer:        "0x1111111111111111111111111111111111111111",
		EthSold:      "2000000000000000000",
		TokensBought: "3952174694105670771",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, ok := decoded["eth_sold"].(string); !ok {
		t.Fatalf("eth_sold should be string")
	}
	if _, ok := decoded["tokens_bought"].(string); !ok {
		t.Fatalf("tokens_bought should be string")
	}
}

func TestTypedEventRecordKeepsRawPayload(t *testing.T) {
	in := TypedEvent{
		EventName: "EthPurchase",
		Address:   "0x2222222222222222222222222222222222222222",
		Decoded: EthPurchaseEventData{
			Seller:     "0x1111111111111111111111111111111111111111",
			EthBought:  "989020869339354039",
			TokensSold: "2000000000000000000",
		},
		PoolMeta: PoolMeta{Token: "0x3333333333333333333333333333333333333333", Decimals: 18},
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var rec TypedEventRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	var payload EthPurchaseEventData
	if err := json.Unmarshal(rec.Decoded, &payload); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if payload.EthBought != "989020869339354039" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if rec.PoolMeta.Decimals != 18 {
		t.Fatalf("pool meta lost: %+v", rec.PoolMeta)
	}
}
