package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Sentinel-Gate/rolegate/internal/domain/audit"
	"github.com/Sentinel-Gate/rolegate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

// ErrRateLimited is returned when a module executes faster than its limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitedError is the ErrRateLimited returned by executions. It carries
// the wait until the module may execute again.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Millisecond))
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// ErrNoDefaultRole is returned by ExecTransactionFromModule when the module
// has no default role.
var ErrNoDefaultRole = errors.New("module has no default role")

// ExecOutcome is the result of a forwarded transaction.
type ExecOutcome struct {
	Role       uint16
	Success    bool
	ReturnData []byte
}

// AuthorizationService checks transactions against stored roles and
// forwards the approved ones to the avatar.
type AuthorizationService struct {
	rules      roles.RuleStore
	members    roles.MembershipOracle
	authorizer *roles.Authorizer
	forwarder  roles.Forwarder
	limiter    ratelimit.RateLimiter
	limit      ratelimit.Config
	recorder   Recorder
	events     EventSink
	logger     *slog.Logger
}

// AuthorizationOption configures optional AuthorizationService behavior.
type AuthorizationOption func(*AuthorizationService)

// WithExecRateLimit throttles executions per module. A disabled config
// leaves executions unthrottled.
func WithExecRateLimit(limiter ratelimit.RateLimiter, cfg ratelimit.Config) AuthorizationOption {
	return func(s *AuthorizationService) {
		s.limiter = limiter
		s.limit = cfg
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) AuthorizationOption {
	return func(s *AuthorizationService) {
		s.recorder = recorderOrNop(r)
	}
}

// WithEvents sets the sink that receives one event per check and per
// execution attempt.
func WithEvents(sink EventSink) AuthorizationOption {
	return func(s *AuthorizationService) {
		s.events = sinkOrNop(sink)
	}
}

// NewAuthorizationService creates a new AuthorizationService.
func NewAuthorizationService(
	rules roles.RuleStore,
	members roles.MembershipOracle,
	authorizer *roles.Authorizer,
	forwarder roles.Forwarder,
	logger *slog.Logger,
	opts ...AuthorizationOption,
) *AuthorizationService {
	s := &AuthorizationService{
		rules:      rules,
		members:    members,
		authorizer: authorizer,
		forwarder:  forwarder,
		recorder:   nopRecorder{},
		events:     nopSink{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check reports whether roleID permits tx, without membership checks or
// forwarding. A nil error means allowed; rejections satisfy
// roles.IsRejection.
func (s *AuthorizationService) Check(ctx context.Context, roleID uint16, tx roles.Transaction) error {
	start := time.Now()
	err := s.evaluate(ctx, roleID, tx)
	s.emit(ctx, audit.KindCheck, "check", roleID, common.Address{}, tx, err, time.Since(start), nil)
	return err
}

func (s *AuthorizationService) evaluate(ctx context.Context, roleID uint16, tx roles.Transaction) error {
	role, err := s.rules.GetRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("get role %d: %w", roleID, err)
	}

	start := time.Now()
	err = s.authorizer.Check(role, tx)
	reason := roles.Reason(err)
	s.recorder.ObserveCheck(reason, time.Since(start))

	if err != nil {
		s.logger.Debug("transaction rejected",
			"role", roleID,
			"to", tx.To.Hex(),
			"operation", tx.Operation.String(),
			"reason", reason,
			"error", err,
		)
		return err
	}
	s.logger.Debug("transaction allowed", "role", roleID, "to", tx.To.Hex(), "operation", tx.Operation.String())
	return nil
}

// ExecTransactionWithRole checks tx against roleID on behalf of module and
// forwards it. With shouldRevert, a failed inner call returns
// roles.ErrModuleTransactionFailed; without it, the failure is reported in
// the outcome only.
func (s *AuthorizationService) ExecTransactionWithRole(
	ctx context.Context,
	module common.Address,
	tx roles.Transaction,
	roleID uint16,
	shouldRevert bool,
) (*ExecOutcome, error) {
	return s.exec(ctx, "exec_transaction_with_role", module, tx, roleID, shouldRevert)
}

func (s *AuthorizationService) exec(
	ctx context.Context,
	event string,
	module common.Address,
	tx roles.Transaction,
	roleID uint16,
	shouldRevert bool,
) (*ExecOutcome, error) {
	start := time.Now()
	out, err := s.forward(ctx, module, tx, roleID, shouldRevert)
	var details map[string]any
	if out != nil {
		details = map[string]any{"success": out.Success, "should_revert": shouldRevert}
	}
	s.emit(ctx, audit.KindExec, event, roleID, module, tx, err, time.Since(start), details)
	return out, err
}

func (s *AuthorizationService) forward(
	ctx context.Context,
	module common.Address,
	tx roles.Transaction,
	roleID uint16,
	shouldRevert bool,
) (*ExecOutcome, error) {
	member, err := s.members.IsMember(ctx, module, roleID)
	if err != nil {
		return nil, fmt.Errorf("membership of %s: %w", module.Hex(), err)
	}
	if !member {
		s.recorder.ObserveCheck(roles.Reason(roles.ErrNoMembership), 0)
		s.logger.Debug("module is not a member", "module", module.Hex(), "role", roleID)
		return nil, fmt.Errorf("%s role %d: %w", module.Hex(), roleID, roles.ErrNoMembership)
	}

	if err := s.throttle(ctx, module); err != nil {
		return nil, err
	}

	if err := s.evaluate(ctx, roleID, tx); err != nil {
		return nil, err
	}

	res, err := s.forwarder.Exec(ctx, tx)
	if err != nil {
		s.recorder.Execution("error")
		s.logger.Error("forwarding failed", "module", module.Hex(), "role", roleID, "to", tx.To.Hex(), "error", err)
		return nil, fmt.Errorf("forward transaction: %w", err)
	}

	out := &ExecOutcome{Role: roleID, Success: res.Success, ReturnData: res.ReturnData}
	if !res.Success {
		s.recorder.Execution("failed")
		s.logger.Info("module transaction failed", "module", module.Hex(), "role", roleID, "to", tx.To.Hex())
		if shouldRevert {
			return out, roles.ErrModuleTransactionFailed
		}
		return out, nil
	}

	s.recorder.Execution("success")
	s.logger.Info("module transaction executed", "module", module.Hex(), "role", roleID, "to", tx.To.Hex())
	return out, nil
}

// ExecTransactionWithRoleReturnData is ExecTransactionWithRole returning
// the success flag and the data the avatar returned.
func (s *AuthorizationService) ExecTransactionWithRoleReturnData(
	ctx context.Context,
	module common.Address,
	tx roles.Transaction,
	roleID uint16,
	shouldRevert bool,
) (bool, []byte, error) {
	out, err := s.ExecTransactionWithRole(ctx, module, tx, roleID, shouldRevert)
	if out == nil {
		return false, nil, err
	}
	return out.Success, out.ReturnData, err
}

// ExecTransactionFromModule executes tx with the default role of module.
func (s *AuthorizationService) ExecTransactionFromModule(ctx context.Context, module common.Address, tx roles.Transaction) (*ExecOutcome, error) {
	roleID, ok, err := s.members.DefaultRole(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("default role of %s: %w", module.Hex(), err)
	}
	if !ok {
		err := fmt.Errorf("%s: %w", module.Hex(), ErrNoDefaultRole)
		s.events.Emit(ctx, audit.Record{
			Kind:     audit.KindExec,
			Event:    "exec_transaction_from_module",
			Module:   module.Hex(),
			Target:   tx.To.Hex(),
			Decision: audit.DecisionDeny,
			Reason:   "no_default_role",
		})
		return nil, err
	}
	return s.exec(ctx, "exec_transaction_from_module", module, tx, roleID, false)
}

func (s *AuthorizationService) throttle(ctx context.Context, module common.Address) error {
	if s.limiter == nil || !s.limit.Enabled() {
		return nil
	}
	res, err := s.limiter.Allow(ctx, ratelimit.FormatKey(ratelimit.KeyTypeModule, module.Hex()), s.limit)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if !res.Allowed {
		s.recorder.Execution("rate_limited")
		s.logger.Warn("module rate limited", "module", module.Hex(), "retry_after", res.RetryAfter)
		return &RateLimitedError{RetryAfter: res.RetryAfter}
	}
	return nil
}

// emit records one decision. A zero module means the check was made
// without one.
func (s *AuthorizationService) emit(
	ctx context.Context,
	kind, event string,
	roleID uint16,
	module common.Address,
	tx roles.Transaction,
	err error,
	latency time.Duration,
	details map[string]any,
) {
	rec := audit.Record{
		Kind:          kind,
		Event:         event,
		Role:          audit.RoleID(roleID),
		Target:        tx.To.Hex(),
		Details:       details,
		LatencyMicros: latency.Microseconds(),
	}
	if module != (common.Address{}) {
		rec.Module = module.Hex()
	}
	if len(tx.Data) >= 4 {
		var sel roles.Selector
		copy(sel[:], tx.Data[:4])
		rec.Selector = sel.String()
	}

	switch {
	case err == nil:
		rec.Decision, rec.Reason = audit.DecisionAllow, roles.Reason(nil)
	case errors.Is(err, roles.ErrModuleTransactionFailed):
		rec.Decision, rec.Reason = audit.DecisionAllow, roles.Reason(err)
	case errors.Is(err, ErrRateLimited):
		rec.Decision, rec.Reason = audit.DecisionDeny, "rate_limited"
	case roles.IsRejection(err), errors.Is(err, roles.ErrNoMembership):
		rec.Decision, rec.Reason = audit.DecisionDeny, roles.Reason(err)
	default:
		rec.Reason = "error"
	}
	s.events.Emit(ctx, rec)
}
