package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/rolegate/internal/config"
	"github.com/Sentinel-Gate/rolegate/internal/service"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print stored roles and members as YAML config",
	Long: `Print the roles and memberships in state.json, merged with the config
seeds, as the roles and members sections of a rolegate.yaml.

Revoked functions and dormant targets cannot be expressed in the config
file and are left out; a note on stderr says how many were skipped.`,
	SilenceUsage: true,
	RunE:         runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

// exportDocument is the YAML written by export.
type exportDocument struct {
	Roles   []config.RoleConfig   `yaml:"roles"`
	Members []config.MemberConfig `yaml:"members"`
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, appState, err := loadOfflineConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rules, err := loadRuleSet(ctx, cfg, appState, nil, nil, slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}

	list, err := rules.roleAdmin.ListRoles(ctx)
	if err != nil {
		return err
	}
	members, err := rules.members.List(ctx)
	if err != nil {
		return err
	}

	doc := exportDocument{
		Roles:   make([]config.RoleConfig, 0, len(list)),
		Members: make([]config.MemberConfig, 0, len(members)),
	}
	skipped := 0
	for _, role := range list {
		rc, n := roleConfigFromEntry(service.RoleToEntry(role))
		doc.Roles = append(doc.Roles, rc)
		skipped += n
	}
	for _, m := range members {
		doc.Members = append(doc.Members, memberConfigFromEntry(service.MemberToEntry(m)))
	}

	if err := writeExport(cmd.OutOrStdout(), doc); err != nil {
		return err
	}
	if skipped > 0 {
		fmt.Fprintf(os.Stderr, "note: %d revoked function or dormant target entries were not exported\n", skipped)
	}
	return nil
}

func writeExport(w io.Writer, doc exportDocument) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// roleConfigFromEntry converts a stored role to its config form. It
// returns the number of entries that have no config equivalent.
func roleConfigFromEntry(entry state.RoleEntry) (config.RoleConfig, int) {
	rc := config.RoleConfig{ID: entry.ID, Targets: []config.TargetConfig{}}
	skipped := 0
	for _, te := range entry.Targets {
		switch te.Clearance {
		case "target":
			rc.Targets = append(rc.Targets, config.TargetConfig{
				Address:   te.Address,
				Clearance: te.Clearance,
				Options:   te.Options,
			})
			skipped += len(te.Functions)
		case "function":
			tc := config.TargetConfig{Address: te.Address, Clearance: te.Clearance}
			for _, fe := range te.Functions {
				if !fe.Allowed {
					skipped++
					continue
				}
				tc.Functions = append(tc.Functions, functionConfigFromEntry(fe))
			}
			rc.Targets = append(rc.Targets, tc)
		default:
			skipped++
		}
	}
	return rc, skipped
}

func functionConfigFromEntry(fe state.FunctionEntry) config.FunctionConfig {
	fc := config.FunctionConfig{Selector: fe.Selector, Options: fe.Options}
	for _, pe := range fe.Parameters {
		fc.Parameters = append(fc.Parameters, config.ParameterConfig{
			Index:      pe.Index,
			Type:       pe.Type,
			Comparison: pe.Comparison,
			Values:     pe.Values,
		})
	}
	return fc
}

func memberConfigFromEntry(me state.MemberEntry) config.MemberConfig {
	return config.MemberConfig{Module: me.Module, Roles: me.Roles, DefaultRole: me.DefaultRole}
}
