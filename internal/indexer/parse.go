package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"liquidityEngine/internal/dex"
)

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// ParseTopic0 accepts exchange event names or their 32-byte topic0
// hashes. An empty list selects every exchange event.
func ParseTopic0(inputs []string) ([]common.Hash, error) {
	decoder, err := dex.NewExchangeDecoder(dex.DecoderConfig{})
	if err != nil {
		return nil, err
	}
	byName := make(map[string]common.Hash)
	for _, topic := range decoder.Topic0s() {
		name, _ := decoder.EventName(topic.Hex())
		byName[name] = topic
	}

	topics := make([]common.Hash, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if topic, ok := byName[input]; ok {
			topics = append(topics, topic)
			continue
		}
		data, err := hexutil.Decode(input)
		if err != nil {
			return nil, fmt.Errorf("invalid topic0: %s", input)
		}
		if len(data) != 32 {
			return nil, fmt.Errorf("invalid topic0 length: %s", input)
		}
		if !decoder.CanDecode(input) {
			return nil, fmt.Errorf("topic0 %s is not an exchange event", input)
		}
		topics = append(topics, common.BytesToHash(data))
	}
	if len(topics) > 0 {
		return topics, nil
	}
	return decoder.Topic0s(), nil
}
