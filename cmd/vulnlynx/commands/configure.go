package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bl4ck0w1/vulnlynx/pkg/utils"
)

func NewConfigureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Write a starter config file with the current effective settings",
		Long: `Materialize the effective configuration (defaults, environment, and any
loaded config file) into a YAML file that can be edited by hand. Defaults to
$HOME/.vulnlynx/config.yaml.`,
		RunE: runConfigure,
	}

	cmd.Flags().StringP("output", "o", "", "Path to write the config file to")
	cmd.Flags().Bool("force", false, "Overwrite an existing config file")
	cmd.Flags().Bool("show", false, "Print the effective configuration instead of writing it")

	return cmd
}

func runConfigure(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	if show, _ := cmd.Flags().GetBool("show"); show {
		return writeIndented(cfg)
	}

	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home dir: %w", err)
		}
		path = filepath.Join(home, ".vulnlynx", "config.yaml")
	}

	if force, _ := cmd.Flags().GetBool("force"); !force && utils.FileExists(path) {
		return fmt.Errorf("config file %s already exists, use --force to overwrite", path)
	}

	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}
