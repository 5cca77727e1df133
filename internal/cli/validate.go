package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uagent/toolcore/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file and check it for errors: malformed
permissions, unknown security levels, invalid provider bounds and tools
referencing providers that do not exist.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %d tools, %d providers, %d roles\n",
		len(cfg.Tools), len(cfg.Providers), len(cfg.Access.Roles))

	return nil
}
