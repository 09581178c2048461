package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	var writePath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Print the configuration after defaults, the config file, KITVISION_
environment variables and flags have been applied. With --write the result is
saved as a YAML file that can be edited and passed back with --config.`,
		Example: `  kitvision config
  kitvision config --write kitvision.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := GetConfig(ctx)
			w := cmd.OutOrStdout()

			if writePath != "" {
				if err := cfg.Save(writePath); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(w, "wrote configuration to %s\n", writePath)
				return nil
			}

			if f := GetConfigFile(ctx); f != "" {
				_, _ = fmt.Fprintf(w, "# loaded from %s\n", f)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, _ = w.Write(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&writePath, "write", "", "write the configuration to this file")

	return cmd
}
