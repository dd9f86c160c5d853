package oracle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// FulfillmentMappingSlot is the declared storage position of the
// requestId => flag mapping in the oracle contract.
const FulfillmentMappingSlot = 2

// MappingSlot returns the storage key of mapping[key] for a mapping declared
// at baseSlot: keccak256(key || leftPad32(baseSlot)).
func MappingSlot(key common.Hash, baseSlot uint64) common.Hash {
	base := common.LeftPadBytes(new(big.Int).SetUint64(baseSlot).Bytes(), common.HashLength)
	return crypto.Keccak256Hash(key.Bytes(), base)
}

// FulfillmentSlot returns the storage key holding the fulfillment flag for requestID.
func FulfillmentSlot(requestID common.Hash) common.Hash {
	return MappingSlot(requestID, FulfillmentMappingSlot)
}

// FulfillmentSlotBytes is FulfillmentSlot for raw identifiers.
// It panics unless requestID is exactly 32 bytes.
func FulfillmentSlotBytes(requestID []byte) common.Hash {
	if len(requestID) != common.HashLength {
		panic(fmt.Sprintf("oracle: request id must be %d bytes, got %d", common.HashLength, len(requestID)))
	}
	return FulfillmentSlot(common.BytesToHash(requestID))
}
