package admin

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
	"github.com/Sentinel-Gate/rolegate/internal/service"
)

// txRequest is a transaction as submitted to /check and /exec. Value is a
// 0x-prefixed quantity, Data 0x-prefixed calldata, Operation "call" or
// "delegatecall".
type txRequest struct {
	To        *common.Address `json:"to"`
	Value     *hexutil.Big    `json:"value"`
	Data      hexutil.Bytes   `json:"data"`
	Operation string          `json:"operation"`
}

type checkRequest struct {
	Role uint16 `json:"role"`
	txRequest
}

// execRequest executes on behalf of Module. Without Role the module's
// default role is used and a failed inner call is reported, not raised.
type execRequest struct {
	Module       *common.Address `json:"module"`
	Role         *uint16         `json:"role"`
	ShouldRevert bool            `json:"should_revert"`
	txRequest
}

type checkResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

type execResponse struct {
	Role       uint16        `json:"role"`
	Success    bool          `json:"success"`
	ReturnData hexutil.Bytes `json:"return_data"`
	Error      string        `json:"error,omitempty"`
}

func (req txRequest) transaction() (roles.Transaction, error) {
	if req.To == nil {
		return roles.Transaction{}, errors.New("to is required")
	}
	op, err := roles.ParseOperation(req.Operation)
	if err != nil {
		return roles.Transaction{}, err
	}
	tx := roles.Transaction{To: *req.To, Data: req.Data, Operation: op}
	if req.Value != nil {
		tx.Value = (*big.Int)(req.Value)
	}
	return tx, nil
}

// handleCheck handles POST /admin/api/check. Nothing is forwarded.
func (h *AdminAPIHandler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	tx, err := req.transaction()
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.authService.Check(r.Context(), req.Role, tx); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, checkResponse{Allowed: true, Reason: roles.Reason(nil)})
}

// handleExec handles POST /admin/api/exec. A failed inner call with
// should_revert set answers 422 with the returned data.
func (h *AdminAPIHandler) handleExec(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Module == nil {
		h.respondError(w, http.StatusBadRequest, "module is required")
		return
	}
	tx, err := req.transaction()
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var out *service.ExecOutcome
	if req.Role != nil {
		out, err = h.authService.ExecTransactionWithRole(r.Context(), *req.Module, tx, *req.Role, req.ShouldRevert)
	} else {
		out, err = h.authService.ExecTransactionFromModule(r.Context(), *req.Module, tx)
	}

	switch {
	case errors.Is(err, roles.ErrModuleTransactionFailed) && out != nil:
		h.respondJSON(w, http.StatusUnprocessableEntity, execResponse{
			Role: out.Role, ReturnData: out.ReturnData, Error: err.Error(),
		})
	case err != nil:
		h.respondServiceError(w, r, err)
	default:
		h.respondJSON(w, http.StatusOK, execResponse{Role: out.Role, Success: out.Success, ReturnData: out.ReturnData})
	}
}
