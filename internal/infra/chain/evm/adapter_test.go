package evm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/reconciler/internal/infra/rpc"
	"github.com/vietddude/reconciler/internal/oracle"
)

var (
	testOracle = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	testJob    = common.HexToHash("0x4c7b7ffb66b344fbaa64995af81e355a00000000000000000000000000000000")
)

type rpcCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     uint64            `json:"id"`
}

// newNode starts a JSON-RPC server answering with handle and records each call.
func newNode(t *testing.T, handle func(call rpcCall) (result any, rpcErr map[string]any)) (*EVMAdapter, *[]rpcCall) {
	t.Helper()
	var calls []rpcCall

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var call rpcCall
		if err := json.Unmarshal(body, &call); err != nil {
			t.Errorf("bad request body: %v", err)
			return
		}
		calls = append(calls, call)

		result, rpcErr := handle(call)
		resp := map[string]any{"jsonrpc": "2.0", "id": call.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	client := rpc.NewClient(rpc.NewHTTPProvider("test", srv.URL, 5*time.Second), rpc.DefaultRetryConfig)
	return NewEVMAdapter(client, testOracle), &calls
}

func TestEVMAdapter_GetLatestBlock(t *testing.T) {
	adapter, _ := newNode(t, func(call rpcCall) (any, map[string]any) {
		return "0x12d687", nil // 1234567
	})

	height, err := adapter.GetLatestBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if height != 1234567 {
		t.Errorf("expected height 1234567, got %d", height)
	}
}

func TestEVMAdapter_GetLogs(t *testing.T) {
	goodLog := map[string]any{
		"address":          testOracle.Hex(),
		"topics":           []string{oracle.OracleRequestTopic.Hex(), testJob.Hex()},
		"data":             "0x01",
		"blockNumber":      "0x3ea",
		"transactionHash":  "0x00000000000000000000000000000000000000000000000000000000000000f1",
		"transactionIndex": "0x0",
		"blockHash":        "0x00000000000000000000000000000000000000000000000000000000000000b1",
		"logIndex":         "0x2",
		"removed":          false,
	}
	malformed := map[string]any{"topics": "not-a-list"}

	adapter, calls := newNode(t, func(call rpcCall) (any, map[string]any) {
		return []any{goodLog, malformed}, nil
	})

	logs, err := adapter.GetLogs(context.Background(), 1000, 1100, testJob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].BlockNumber != 1002 || logs[0].Index != 2 {
		t.Errorf("unexpected log position (%d, %d)", logs[0].BlockNumber, logs[0].Index)
	}
	if len(logs[1].Topics) != 0 {
		t.Errorf("malformed entry should carry no topics, got %v", logs[1].Topics)
	}

	if len(*calls) != 1 || (*calls)[0].Method != "eth_getLogs" {
		t.Fatalf("expected one eth_getLogs call, got %+v", *calls)
	}
	var filter struct {
		FromBlock string   `json:"fromBlock"`
		ToBlock   string   `json:"toBlock"`
		Address   string   `json:"address"`
		Topics    []string `json:"topics"`
	}
	if err := json.Unmarshal((*calls)[0].Params[0], &filter); err != nil {
		t.Fatalf("bad filter: %v", err)
	}
	if filter.FromBlock != "0x3e8" || filter.ToBlock != "0x44b" {
		t.Errorf("range = [%s, %s], want [0x3e8, 0x44b]", filter.FromBlock, filter.ToBlock)
	}
	if filter.Address != testOracle.Hex() {
		t.Errorf("address = %s, want %s", filter.Address, testOracle.Hex())
	}
	if len(filter.Topics) != 2 || filter.Topics[0] != oracle.OracleRequestTopic.Hex() || filter.Topics[1] != testJob.Hex() {
		t.Errorf("unexpected topics %v", filter.Topics)
	}
}

func TestEVMAdapter_GetLogs_MalformedEntryIsCountedAsDropped(t *testing.T) {
	malformed := map[string]any{
		"topics":      "not-a-list",
		"blockNumber": "0x3ec",
		"logIndex":    "0x1",
	}
	adapter, _ := newNode(t, func(call rpcCall) (any, map[string]any) {
		return []any{malformed}, nil
	})

	logs, err := adapter.GetLogs(context.Background(), 1000, 1100, testJob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 1 || logs[0].BlockNumber != 1004 || logs[0].Index != 1 {
		t.Fatalf("unexpected logs: %+v", logs)
	}

	events, dropped := oracle.NewDecoder(nil).DecodeAll(logs)
	if len(events) != 0 || dropped != 1 {
		t.Errorf("DecodeAll = %d events, %d dropped; want 0, 1", len(events), dropped)
	}
}

func TestEVMAdapter_GetLogs_EmptyRange(t *testing.T) {
	adapter, calls := newNode(t, func(call rpcCall) (any, map[string]any) {
		return []any{}, nil
	})

	logs, err := adapter.GetLogs(context.Background(), 1100, 1100, testJob)
	if err != nil || len(logs) != 0 {
		t.Fatalf("expected no logs and no error, got %d, %v", len(logs), err)
	}
	if len(*calls) != 0 {
		t.Errorf("empty range must not reach the node")
	}
}

func TestEVMAdapter_GetStorageAt(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   common.Hash
	}{
		{"full word", "0x0000000000000000000000000000000000000000000000000000000000000001", common.HexToHash("0x01")},
		{"compact zero", "0x0", common.Hash{}},
		{"compact odd", "0x123", common.HexToHash("0x0123")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, calls := newNode(t, func(call rpcCall) (any, map[string]any) {
				return tt.answer, nil
			})

			slot := oracle.FulfillmentSlot(common.HexToHash("0x01"))
			got, err := adapter.GetStorageAt(context.Background(), testOracle, slot)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("word = %s, want %s", got.Hex(), tt.want.Hex())
			}

			var params []string
			for _, p := range (*calls)[0].Params {
				var s string
				_ = json.Unmarshal(p, &s)
				params = append(params, s)
			}
			if params[0] != testOracle.Hex() || params[1] != slot.Hex() || params[2] != "latest" {
				t.Errorf("unexpected params %v", params)
			}
		})
	}
}

func TestEVMAdapter_GetStorageAt_Invalid(t *testing.T) {
	adapter, _ := newNode(t, func(call rpcCall) (any, map[string]any) {
		return "zz", nil
	})

	if _, err := adapter.GetStorageAt(context.Background(), testOracle, common.Hash{}); err == nil {
		t.Fatal("expected error for non-hex word")
	}
}

func TestEVMAdapter_Call(t *testing.T) {
	from := common.HexToAddress("0x00000000000000000000000000000000000000dd")

	adapter, calls := newNode(t, func(call rpcCall) (any, map[string]any) {
		return "0x0000000000000000000000000000000000000000000000000000000000000001", nil
	})

	out, err := adapter.Call(context.Background(), testOracle, []byte{0x4a, 0xb0, 0xd1, 0x90}, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 32 || out[31] != 1 {
		t.Errorf("unexpected result %x", out)
	}

	var msg struct {
		From string `json:"from"`
		To   string `json:"to"`
		Data string `json:"data"`
	}
	if err := json.Unmarshal((*calls)[0].Params[0], &msg); err != nil {
		t.Fatalf("bad call message: %v", err)
	}
	if msg.From != from.Hex() || msg.To != testOracle.Hex() || msg.Data != "0x4ab0d190" {
		t.Errorf("unexpected call message %+v", msg)
	}
}

func TestEVMAdapter_Call_Revert(t *testing.T) {
	tests := []struct {
		name   string
		rpcErr map[string]any
	}{
		{"geth code 3", map[string]any{"code": 3, "message": "execution reverted: Must have a valid requestId"}},
		{"message only", map[string]any{"code": -32000, "message": "VM Exception while processing transaction: revert"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, _ := newNode(t, func(call rpcCall) (any, map[string]any) {
				return nil, tt.rpcErr
			})

			_, err := adapter.Call(context.Background(), testOracle, []byte{0x01}, common.Address{})
			if !errors.Is(err, oracle.ErrReverted) {
				t.Fatalf("expected ErrReverted, got %v", err)
			}
		})
	}
}

func TestEVMAdapter_Call_OtherRPCError(t *testing.T) {
	adapter, _ := newNode(t, func(call rpcCall) (any, map[string]any) {
		return nil, map[string]any{"code": -32602, "message": "invalid argument 0"}
	})

	_, err := adapter.Call(context.Background(), testOracle, []byte{0x01}, common.Address{})
	if err == nil || errors.Is(err, oracle.ErrReverted) {
		t.Fatalf("expected non-revert error, got %v", err)
	}
}
