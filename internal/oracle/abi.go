// Package oracle holds the oracle-contract specific logic: locating the
// fulfillment flag in contract storage, decoding OracleRequest logs, checking
// whether a request was answered, and probing a compensating fulfillment.
package oracle

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const oracleABIJSON = `[
  {
    "anonymous": false,
    "name": "OracleRequest",
    "type": "event",
    "inputs": [
      {"indexed": true,  "name": "specId",             "type": "bytes32"},
      {"indexed": false, "name": "requester",          "type": "address"},
      {"indexed": false, "name": "requestId",          "type": "bytes32"},
      {"indexed": false, "name": "payment",            "type": "uint256"},
      {"indexed": false, "name": "callbackAddr",       "type": "address"},
      {"indexed": false, "name": "callbackFunctionId", "type": "bytes4"},
      {"indexed": false, "name": "cancelExpiration",   "type": "uint256"},
      {"indexed": false, "name": "dataVersion",        "type": "uint256"},
      {"indexed": false, "name": "data",               "type": "bytes"}
    ]
  },
  {
    "name": "fulfillOracleRequest",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "_requestId",          "type": "bytes32"},
      {"name": "_payment",            "type": "uint256"},
      {"name": "_callbackAddress",    "type": "address"},
      {"name": "_callbackFunctionId", "type": "bytes4"},
      {"name": "_expiration",         "type": "uint256"},
      {"name": "_data",               "type": "bytes32"}
    ],
    "outputs": [{"name": "", "type": "bool"}]
  }
]`

const (
	requestEventName  = "OracleRequest"
	fulfillMethodName = "fulfillOracleRequest"
)

// OracleRequestTopic is keccak256 of the OracleRequest event signature.
var OracleRequestTopic = common.HexToHash("0xd8d7ecc4800d25fa53ce0372f13a416d98907a7ef3d8d3bdd79cf4fe75529c65")

// OracleABI is the parsed subset of the oracle contract ABI used here.
var OracleABI = mustParseABI(oracleABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("oracle: invalid ABI definition: " + err.Error())
	}
	return parsed
}
