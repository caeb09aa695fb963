package swap

import (
	"fmt"
	"strconv"
	"strings"

	"devcamp/pkg/chain"
	"devcamp/pkg/client"
	"devcamp/pkg/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// txRequest maps a firm quote onto a transaction. Missing gas fields are
// left for the wallet to fill from the node.
func txRequest(q *client.QuoteResponse) (chain.TxRequest, error) {
	if q == nil || q.To == (common.Address{}) {
		return chain.TxRequest{}, fmt.Errorf("quote has no destination")
	}

	data, err := hexutil.Decode(q.Data)
	if err != nil {
		return chain.TxRequest{}, fmt.Errorf("invalid quote calldata: %w", err)
	}

	req := chain.TxRequest{To: q.To, Data: data}

	if q.Value != "" {
		if req.Value, err = units.ParseString(q.Value); err != nil {
			return chain.TxRequest{}, fmt.Errorf("invalid quote value: %w", err)
		}
	}
	if q.GasPrice != "" {
		if req.GasPrice, err = units.ParseString(q.GasPrice); err != nil {
			return chain.TxRequest{}, fmt.Errorf("invalid quote gas price: %w", err)
		}
	}
	if gas := strings.TrimSpace(q.Gas); gas != "" {
		if req.Gas, err = strconv.ParseUint(gas, 10, 64); err != nil {
			return chain.TxRequest{}, fmt.Errorf("invalid quote gas: %w", err)
		}
	}
	return req, nil
}
