// Package avatar forwards approved transactions to the avatar account.
package avatar

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

const moduleABIJSON = `[{"type":"function","name":"execTransactionFromModuleReturnData","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operation","type":"uint8"}],"outputs":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}]}]`

const execMethod = "execTransactionFromModuleReturnData"

var moduleABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(moduleABIJSON))
	if err != nil {
		panic(fmt.Sprintf("parse module abi: %v", err))
	}
	return parsed
}()

// RPCForwarder runs approved transactions through the avatar's
// execTransactionFromModuleReturnData over JSON-RPC, calling as the module
// address. Calls go through eth_call, so the result is the avatar's answer
// at the latest block.
type RPCForwarder struct {
	caller  ethereum.ContractCaller
	avatar  common.Address
	module  common.Address
	timeout time.Duration
	logger  *slog.Logger
}

// NewRPCForwarder creates a forwarder that calls avatar through caller.
func NewRPCForwarder(caller ethereum.ContractCaller, avatar, module common.Address, logger *slog.Logger) *RPCForwarder {
	return &RPCForwarder{caller: caller, avatar: avatar, module: module, logger: logger}
}

// WithTimeout bounds each forwarded call by d. Zero means no bound.
func (f *RPCForwarder) WithTimeout(d time.Duration) *RPCForwarder {
	f.timeout = d
	return f
}

// Dial connects to the JSON-RPC endpoint at url and returns a forwarder on
// top of it. Close the returned client when done.
func Dial(ctx context.Context, url string, avatar, module common.Address, logger *slog.Logger) (*RPCForwarder, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}
	return NewRPCForwarder(client, avatar, module, logger), client, nil
}

// Exec forwards tx. A reverted inner call is reported as Success false,
// not as an error; errors are transport or decoding failures.
func (f *RPCForwarder) Exec(ctx context.Context, tx roles.Transaction) (roles.ExecResult, error) {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	input, err := moduleABI.Pack(execMethod, tx.To, value, tx.Data, uint8(tx.Operation))
	if err != nil {
		return roles.ExecResult{}, fmt.Errorf("pack %s: %w", execMethod, err)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	avatar := f.avatar
	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{
		From: f.module,
		To:   &avatar,
		Data: input,
	}, nil)
	if err != nil {
		return roles.ExecResult{}, fmt.Errorf("call avatar %s: %w", f.avatar.Hex(), err)
	}

	values, err := moduleABI.Unpack(execMethod, out)
	if err != nil {
		return roles.ExecResult{}, fmt.Errorf("unpack %s result: %w", execMethod, err)
	}
	success, ok := values[0].(bool)
	if !ok {
		return roles.ExecResult{}, fmt.Errorf("unpack %s result: success is %T", execMethod, values[0])
	}
	returnData, ok := values[1].([]byte)
	if !ok {
		return roles.ExecResult{}, fmt.Errorf("unpack %s result: returnData is %T", execMethod, values[1])
	}

	f.logger.Debug("avatar call forwarded",
		"avatar", f.avatar.Hex(),
		"to", tx.To.Hex(),
		"operation", tx.Operation.String(),
		"success", success,
	)
	return roles.ExecResult{Success: success, ReturnData: returnData}, nil
}

// Compile-time interface verification.
var _ roles.Forwarder = (*RPCForwarder)(nil)
