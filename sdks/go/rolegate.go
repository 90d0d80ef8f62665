// Package rolegate provides a Go client for the rolegate admin API.
//
// Modules use it to ask whether a transaction would pass their role before
// submitting it, to execute through the avatar, and to read the event log.
// It uses only the Go standard library.
//
// Quick start:
//
//	// Set ROLEGATE_SERVER_ADDR and ROLEGATE_API_KEY env vars, then:
//	client := rolegate.NewClient()
//
//	resp, err := client.Check(ctx, rolegate.CheckRequest{
//	    Role: 1,
//	    To:   "0x6B175474E89094C44Da98b954EedeAC495271d0F",
//	    Data: calldata,
//	})
//	if err != nil {
//	    var rejected *rolegate.RejectedError
//	    if errors.As(err, &rejected) {
//	        fmt.Println("rejected:", rejected.Reason)
//	    }
//	}
package rolegate

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Operation is the call type of a transaction.
type Operation string

const (
	OperationCall         Operation = "call"
	OperationDelegateCall Operation = "delegatecall"
)

// CheckRequest asks whether Role may send the transaction. Nothing is
// executed.
type CheckRequest struct {
	Role      uint16
	To        string
	Value     *big.Int
	Data      []byte
	Operation Operation
}

// CheckResponse is the outcome of an allowed check.
type CheckResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// ExecRequest executes a transaction on behalf of Module. A nil Role uses
// the module's default role.
type ExecRequest struct {
	Module       string
	Role         *uint16
	ShouldRevert bool
	To           string
	Value        *big.Int
	Data         []byte
	Operation    Operation
}

// ExecResponse is the result of a forwarded transaction.
type ExecResponse struct {
	Role       uint16 `json:"role"`
	Success    bool   `json:"success"`
	ReturnData []byte `json:"-"`
}

// EventQuery filters GET /admin/api/events. Zero fields match everything.
type EventQuery struct {
	Kind     string
	Event    string
	Role     *uint16
	Module   string
	Decision string
	Limit    int
}

// Event is one entry of the event log.
type Event struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Kind          string         `json:"kind"`
	Event         string         `json:"event"`
	Role          *uint16        `json:"role,omitempty"`
	Module        string         `json:"module,omitempty"`
	Target        string         `json:"target,omitempty"`
	Selector      string         `json:"selector,omitempty"`
	Decision      string         `json:"decision,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	RequestID     string         `json:"request_id,omitempty"`
	LatencyMicros int64          `json:"latency_us,omitempty"`
}

// wireTx is the transaction body shared by /check and /exec.
type wireTx struct {
	To        string `json:"to"`
	Value     string `json:"value,omitempty"`
	Data      string `json:"data,omitempty"`
	Operation string `json:"operation,omitempty"`
}

func newWireTx(to string, value *big.Int, data []byte, op Operation) wireTx {
	tx := wireTx{To: to, Operation: string(op)}
	if value != nil {
		tx.Value = fmt.Sprintf("0x%x", value)
	}
	if len(data) > 0 {
		tx.Data = "0x" + hex.EncodeToString(data)
	}
	return tx
}

type wireCheck struct {
	Role uint16 `json:"role"`
	wireTx
}

type wireExec struct {
	Module       string  `json:"module"`
	Role         *uint16 `json:"role,omitempty"`
	ShouldRevert bool    `json:"should_revert,omitempty"`
	wireTx
}

type wireExecResponse struct {
	Role       uint16 `json:"role"`
	Success    bool   `json:"success"`
	ReturnData string `json:"return_data"`
	Error      string `json:"error,omitempty"`
}

type wireRejection struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Error   string `json:"error"`
}

type wireEvents struct {
	Records []Event `json:"records"`
	Count   int     `json:"count"`
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
