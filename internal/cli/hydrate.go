package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"snapseek/internal/dom/htmldom"
	"snapseek/internal/hydrate"
	"snapseek/internal/surveil"
)

var (
	flagOutput string
	flagBase   string
)

func init() {
	hydrateCmd := &cobra.Command{
		Use:   "hydrate <page.html>",
		Short: "Hydrate the lazy images of a saved page and write the result",
		Args:  cobra.ExactArgs(1),
		RunE:  runHydrate,
	}
	hydrateCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output file (default stdout)")
	hydrateCmd.Flags().StringVar(&flagBase, "base", "", "URL relative sources resolve against")
	rootCmd.AddCommand(hydrateCmd)
}

func runHydrate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	doc, err := htmldom.Parse(f, flagBase)
	f.Close()
	if err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	engine := hydrate.New(doc, hydrate.Config{Logger: logger(), Debug: cfg.Debug})
	w := surveil.New(engine, surveil.Config{Logger: logger(), Debug: cfg.Debug})
	w.Sweep(cmd.Context())
	hydrated := w.Observed()

	out := cmd.OutOrStdout()
	if flagOutput != "" {
		of, err := os.Create(flagOutput)
		if err != nil {
			return err
		}
		defer of.Close()
		out = of
	}
	if err := doc.Render(out); err != nil {
		return err
	}
	if flagOutput != "" {
		logger().Printf("HYD %d images, %d writes -> %s", hydrated, doc.Writes(), flagOutput)
	}
	return nil
}
