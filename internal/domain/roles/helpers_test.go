package roles

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// testABI describes the functions of the fixture contract the tests call.
var testABI = mustParseABI(`[
	{"type":"function","name":"doNothing","inputs":[],"outputs":[]},
	{"type":"function","name":"doEvenLess","inputs":[],"outputs":[]},
	{"type":"function","name":"fnWithSingleParam","inputs":[{"name":"a","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"fnWithTwoParams","inputs":[{"name":"a","type":"uint256"},{"name":"b","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"dynamic","inputs":[{"name":"a","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"dynamic32","inputs":[{"name":"a","type":"uint256[]"}],"outputs":[]},
	{"type":"function","name":"mixed","inputs":[{"name":"a","type":"bool"},{"name":"b","type":"bytes"},{"name":"c","type":"uint256[]"}],"outputs":[]}
]`)

var (
	targetA   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	targetB   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	multisend = common.HexToAddress("0x000000000000000000000000000000000000d00d")
	recipient = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func pack(t *testing.T, method string, args ...interface{}) []byte {
	t.Helper()
	data, err := testABI.Pack(method, args...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	return data
}

func sel(method string) Selector {
	var s Selector
	copy(s[:], testABI.Methods[method].ID)
	return s
}

func word(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func call(to common.Address, data []byte) Transaction {
	return Transaction{To: to, Value: new(big.Int), Data: data, Operation: Call}
}

func mustScope(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("configure role: %v", err)
	}
}
