package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"snapseek/internal/api"
	"snapseek/internal/bridge"
	"snapseek/internal/browser"
	"snapseek/internal/overlay"
	"snapseek/internal/pipeline"
)

var (
	flagHeadless bool
	flagNoAPI    bool
)

const defaultSite = "pinterest"

func init() {
	browseCmd := &cobra.Command{
		Use:   "browse [site|url]",
		Short: "Open a site in Chrome, hydrate its images and add download buttons",
		Long: "Open a site in Chrome, hydrate its images and add download buttons.\n" +
			"The argument is a configured site shortcut or a URL (default " + defaultSite + ").",
		Args: cobra.MaximumNArgs(1),
		RunE: runBrowse,
	}
	browseCmd.Flags().BoolVar(&flagHeadless, "headless", false, "run Chrome without a window")
	browseCmd.Flags().BoolVar(&flagNoAPI, "no-api", false, "do not serve the local history API")
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	cfg, used, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = flagHeadless
	}
	site := defaultSite
	if len(args) == 1 {
		site = args[0]
	}
	target, err := cfg.SiteURL(site)
	if err != nil {
		return err
	}
	lg := logger()
	lg.Printf("Config file: %s", used)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hist pipeline.Appender
	store, err := openHistory(cfg)
	if err != nil {
		lg.Printf("DL history disabled: %v", err)
	} else {
		defer store.Close()
		hist = store
	}

	alloc := browser.NewAllocator(cfg.Browser, lg)
	defer alloc.Close()
	sess := browser.NewSession(alloc, cfg.Debug)
	defer sess.Close()

	local := bridge.NewLocal(newPipeline(cfg, hist, sess), lg)

	if !flagNoAPI {
		apiCfg := api.DefaultConfig()
		apiCfg.Addr = cfg.APIAddr
		apiCfg.Logger = lg
		if store != nil {
			apiCfg.History = store
		}
		srv := api.New(apiCfg)
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil {
				lg.Printf("REQ server stopped: %v", err)
			}
		}()
	}

	err = sess.Browse(ctx, target, local, browser.Options{
		Interval: cfg.PollInterval,
		Overlay: overlay.Config{
			Formats:      cfg.Formats,
			MinWidth:     cfg.MinImageSize,
			MinHeight:    cfg.MinImageSize,
			SuccessDelay: cfg.SuccessDelay,
			ErrorDelay:   cfg.ErrorDelay,
			Logger:       lg,
			OnResult: func(req bridge.Request, res bridge.Result) {
				if res.Success {
					lg.Printf("DL saved %s from %s", res.Path, req.SourceURL)
					return
				}
				lg.Printf("DL failed %s: %s", req.SourceURL, res.Error)
			},
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("browse %s: %w", target, err)
	}
	return nil
}
