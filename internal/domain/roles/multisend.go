package roles

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const multiSendJSON = `[{"type":"function","name":"multiSend","stateMutability":"payable","inputs":[{"name":"transactions","type":"bytes"}],"outputs":[]}]`

// Packed sub-call layout: operation(1) | to(20) | value(32) | dataLength(32) | data.
const (
	packedOperationSize = 1
	packedHeaderSize    = packedOperationSize + common.AddressLength + wordSize + wordSize
)

var multiSendABI = mustParseABI(multiSendJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// MultisendSelector is the selector of multiSend(bytes).
func MultisendSelector() Selector {
	var sel Selector
	copy(sel[:], multiSendABI.Methods["multiSend"].ID)
	return sel
}

// UnpackMultisend decodes a multiSend(bytes) call into its sub-calls.
func UnpackMultisend(data []byte) ([]Transaction, error) {
	method := multiSendABI.Methods["multiSend"]
	if len(data) < selectorSize || !bytes.Equal(data[:selectorSize], method.ID) {
		return nil, fmt.Errorf("%w: not a multiSend call", ErrMalformedMultisend)
	}
	values, err := method.Inputs.Unpack(data[selectorSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMultisend, err)
	}
	packed, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected argument type %T", ErrMalformedMultisend, values[0])
	}
	return unpackTransactions(packed)
}

func unpackTransactions(packed []byte) ([]Transaction, error) {
	var txs []Transaction
	for pos := 0; pos < len(packed); {
		if len(packed)-pos < packedHeaderSize {
			return nil, fmt.Errorf("%w: truncated header at byte %d", ErrMalformedMultisend, pos)
		}
		op := Operation(packed[pos])
		if op != Call && op != DelegateCall {
			return nil, fmt.Errorf("%w: operation %d at byte %d", ErrMalformedMultisend, op, pos)
		}
		pos += packedOperationSize
		to := common.BytesToAddress(packed[pos : pos+common.AddressLength])
		pos += common.AddressLength
		value := new(big.Int).SetBytes(packed[pos : pos+wordSize])
		pos += wordSize
		length, err := readLength(packed, uint64(pos))
		if err != nil {
			return nil, fmt.Errorf("%w: data length at byte %d", ErrMalformedMultisend, pos)
		}
		pos += wordSize
		if length > uint64(len(packed)-pos) {
			return nil, fmt.Errorf("%w: data overruns payload at byte %d", ErrMalformedMultisend, pos)
		}
		data := packed[pos : pos+int(length)]
		pos += int(length)
		txs = append(txs, Transaction{To: to, Value: value, Data: data, Operation: op})
	}
	return txs, nil
}

// PackMultisend encodes txs as a multiSend(bytes) call.
func PackMultisend(txs []Transaction) ([]byte, error) {
	var buf bytes.Buffer
	for _, tx := range txs {
		buf.WriteByte(byte(tx.Operation))
		buf.Write(tx.To.Bytes())
		value := tx.Value
		if value == nil {
			value = new(big.Int)
		}
		if value.Sign() < 0 || value.BitLen() > 256 {
			return nil, fmt.Errorf("pack multisend: value %s out of range", value)
		}
		buf.Write(common.LeftPadBytes(value.Bytes(), wordSize))
		buf.Write(common.LeftPadBytes(new(big.Int).SetInt64(int64(len(tx.Data))).Bytes(), wordSize))
		buf.Write(tx.Data)
	}
	return multiSendABI.Pack("multiSend", buf.Bytes())
}
