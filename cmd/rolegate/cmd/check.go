package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/avatar"
	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
	"github.com/Sentinel-Gate/rolegate/internal/service"
)

var (
	checkRole      uint16
	checkModule    string
	checkTo        string
	checkData      string
	checkValue     string
	checkOperation string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a transaction against a role without forwarding it",
	Long: `Check a transaction against the roles in state.json and the config file.

Nothing is executed and nothing is written. The command exits non-zero when
the transaction is rejected.

With --module, the module must hold the role; without --role the module's
default role is used.

Examples:
  # May role 1 call transfer on the token?
  rolegate check --role 1 --to 0xA0b8...eB48 --data 0xa9059cbb...

  # Would this module's default role allow a value transfer?
  rolegate check --module 0x1111...1111 --to 0x2222...2222 --value 1000000000000000000`,
	SilenceUsage: true,
	RunE:         runCheck,
}

func init() {
	checkCmd.Flags().Uint16Var(&checkRole, "role", 0, "role id to check against")
	checkCmd.Flags().StringVar(&checkModule, "module", "", "module address that would send the transaction")
	checkCmd.Flags().StringVar(&checkTo, "to", "", "target address (required)")
	checkCmd.Flags().StringVar(&checkData, "data", "0x", "0x-prefixed calldata")
	checkCmd.Flags().StringVar(&checkValue, "value", "0", "wei value, decimal or 0x-prefixed")
	checkCmd.Flags().StringVar(&checkOperation, "operation", "call", `"call" or "delegatecall"`)
	_ = checkCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	tx, err := checkTransaction()
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("role") && checkModule == "" {
		return errors.New("one of --role or --module is required")
	}

	cfg, appState, err := loadOfflineConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := cmd.Context()

	rules, err := loadRuleSet(ctx, cfg, appState, nil, nil, logger)
	if err != nil {
		return err
	}

	roleID := checkRole
	if checkModule != "" {
		if !common.IsHexAddress(checkModule) {
			return fmt.Errorf("invalid --module address %q", checkModule)
		}
		module := common.HexToAddress(checkModule)
		if !cmd.Flags().Changed("role") {
			def, ok, err := rules.memberStore.DefaultRole(ctx, module)
			if err != nil {
				return err
			}
			if !ok {
				return reportRejection(cmd, fmt.Errorf("module %s: %w", module.Hex(), service.ErrNoDefaultRole), "no_default_role")
			}
			roleID = def
		}
		member, err := rules.memberStore.IsMember(ctx, module, roleID)
		if err != nil {
			return err
		}
		if !member {
			return reportRejection(cmd, fmt.Errorf("module %s role %d: %w", module.Hex(), roleID, roles.ErrNoMembership), roles.Reason(roles.ErrNoMembership))
		}
	}

	authorizer := roles.NewAuthorizer(cfg.Modifier.MultisendAddress(), cfg.Modifier.MaxMultisendDepth)
	authService := service.NewAuthorizationService(rules.roleStore, rules.memberStore, authorizer, avatar.NewDryRunForwarder(logger), logger)
	if err := authService.Check(ctx, roleID, tx); err != nil {
		if roles.IsRejection(err) {
			return reportRejection(cmd, err, roles.Reason(err))
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "allowed (role %d)\n", roleID)
	return nil
}

func reportRejection(cmd *cobra.Command, err error, reason string) error {
	fmt.Fprintf(cmd.OutOrStdout(), "rejected: %s\n", reason)
	return err
}

// checkTransaction builds the transaction from the command flags.
func checkTransaction() (roles.Transaction, error) {
	if !common.IsHexAddress(checkTo) {
		return roles.Transaction{}, fmt.Errorf("invalid --to address %q", checkTo)
	}
	data, err := hexutil.Decode(checkData)
	if err != nil && !errors.Is(err, hexutil.ErrEmptyString) {
		return roles.Transaction{}, fmt.Errorf("invalid --data: %w", err)
	}
	value, ok := new(big.Int).SetString(checkValue, 0)
	if !ok || value.Sign() < 0 {
		return roles.Transaction{}, fmt.Errorf("invalid --value %q", checkValue)
	}
	op, err := roles.ParseOperation(checkOperation)
	if err != nil {
		return roles.Transaction{}, err
	}
	return roles.Transaction{To: common.HexToAddress(checkTo), Value: value, Data: data, Operation: op}, nil
}
