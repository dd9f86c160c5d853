package oracle

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Checker reads the fulfillment flag of a request straight from contract storage.
type Checker struct {
	ledger   Ledger
	contract common.Address
}

// NewChecker creates a checker for the oracle contract at contract.
func NewChecker(ledger Ledger, contract common.Address) *Checker {
	return &Checker{ledger: ledger, contract: contract}
}

// IsFulfilled reports whether the flag word for requestID is non-zero.
// Every call goes to the ledger; nothing is cached.
func (c *Checker) IsFulfilled(ctx context.Context, requestID common.Hash) (bool, error) {
	word, err := c.ledger.GetStorageAt(ctx, c.contract, FulfillmentSlot(requestID))
	if err != nil {
		return false, fmt.Errorf("read fulfillment flag of %s: %w", requestID.Hex(), err)
	}
	return word != (common.Hash{}), nil
}
