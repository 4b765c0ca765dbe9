package cli

import (
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"snapseek/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, used, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Config file: %s\n", used)
		cfg.Print(out)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := flagConfig
		if path == "" {
			path = config.DefaultPath()
		}
		out := cmd.OutOrStdout()
		if _, err := os.Stat(path); err == nil && !flagYes {
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("Overwrite %s", path),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}
		def := config.Default()
		if flagDownloadDir != "" {
			def.DownloadDir = flagDownloadDir
		}
		if err := config.Save(def, path); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		fmt.Fprintln(out, "Config created at:", path)
		def.Print(out)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "overwrite without asking")
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
