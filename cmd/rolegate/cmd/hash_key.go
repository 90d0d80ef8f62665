package cmd

import (
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/spf13/cobra"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [admin-key]",
	Short: "Generate an argon2id hash for the admin key",
	Long: `Generate an argon2id hash of an admin key for use in config.

The output starts with "$argon2id$" and goes in the admin.key_hash field.
Remote admin API callers then send "Authorization: Bearer <admin-key>".

Example:
  rolegate hash-key "my-admin-key"
  # Output: $argon2id$v=19$m=65536,t=1,p=...

Security note: The key will appear in shell history.
Consider clearing history after use or using environment variable:
  rolegate hash-key "$ROLEGATE_ADMIN_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := argon2id.CreateHash(args[0], argon2id.DefaultParams)
		if err != nil {
			return fmt.Errorf("hash key: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}
