package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/state"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset to clean state (empty state.json)",
	Long: `Reset rolegate by replacing state.json with an empty state.

Every role and membership written through the admin API is dropped. The
previous file is kept as state.json.bak. On next start, roles and members
from the config file are seeded again.

Examples:
  # Reset with a confirmation prompt
  rolegate reset

  # Reset without prompting
  rolegate reset --force`,
	SilenceUsage: true,
	RunE:         runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	store := state.NewFileStateStore(resolveStatePath(), slog.New(slog.DiscardHandler))
	errOut := cmd.ErrOrStderr()

	if !store.Exists() {
		fmt.Fprintln(errOut, "Nothing to reset, no state file at", store.Path())
		return nil
	}

	if !resetForce {
		fmt.Fprintf(errOut, "All roles and memberships in %s will be removed.\nProceed? [y/N] ", store.Path())
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if a := strings.TrimSpace(answer); a != "y" && a != "Y" {
			fmt.Fprintln(errOut, "Aborted.")
			return nil
		}
	}

	if err := store.Reset(); err != nil {
		return fmt.Errorf("failed to reset state: %w", err)
	}
	fmt.Fprintf(errOut, "Reset complete. Previous state kept at %s.bak\n", store.Path())
	return nil
}
