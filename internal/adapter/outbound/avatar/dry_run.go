package avatar

import (
	"context"
	"log/slog"

	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

// DryRunForwarder accepts every transaction without contacting a chain.
// It stands in for RPCForwarder when no RPC endpoint is configured.
type DryRunForwarder struct {
	logger *slog.Logger
}

// NewDryRunForwarder creates a DryRunForwarder.
func NewDryRunForwarder(logger *slog.Logger) *DryRunForwarder {
	return &DryRunForwarder{logger: logger}
}

// Exec logs tx and reports success with no return data.
func (f *DryRunForwarder) Exec(ctx context.Context, tx roles.Transaction) (roles.ExecResult, error) {
	f.logger.Info("dry run: transaction not forwarded",
		"to", tx.To.Hex(),
		"operation", tx.Operation.String(),
		"data_len", len(tx.Data),
	)
	return roles.ExecResult{Success: true}, nil
}

var _ roles.Forwarder = (*DryRunForwarder)(nil)
