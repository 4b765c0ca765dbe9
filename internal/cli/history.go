package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"snapseek/internal/history"
	"snapseek/internal/pipeline"
)

var (
	flagJSON bool
	flagYes  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear the download history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent downloads, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		entries, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		printHistory(cmd.OutOrStdout(), entries, pipeline.Exists)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every history entry (files are kept)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if !flagYes {
			prompt := promptui.Prompt{
				Label:     "Clear download history",
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}
		store, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
		return nil
	},
}

func init() {
	historyListCmd.Flags().BoolVar(&flagJSON, "json", false, "print entries as JSON")
	historyClearCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "do not ask for confirmation")
	historyCmd.AddCommand(historyListCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

// printHistory writes one line per entry; files no longer on disk are
// flagged.
func printHistory(w io.Writer, entries []history.Entry, exists func(string) bool) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No downloads yet.")
		return
	}
	for i, e := range entries {
		mark := " "
		if !exists(e.Path) {
			mark = "!"
		}
		fmt.Fprintf(w, "%3d) %s %-40s %s\n     %s\n", i+1, mark, e.Filename, humanize.Time(e.Time()), e.SourceURL)
	}
}
